// Copyright 2024 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package actor

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	runningComponents = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vecflow",
			Subsystem: "component",
			Name:      "number_of_running_components",
			Help:      "The number of running components.",
		}, []string{"name", "placement"})
	mailboxLength = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vecflow",
			Subsystem: "component",
			Name:      "mailbox_length",
			Help:      "The number of messages queued in component mailboxes.",
		}, []string{"name"})
	handleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vecflow",
			Subsystem: "component",
			Name:      "handle_duration_seconds",
			Help:      "Bucketed histogram of handler processing time.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 18), // 100us ~ 13s
		}, []string{"name"})
	processedMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vecflow",
			Subsystem: "component",
			Name:      "processed_messages_total",
			Help:      "Total number of messages handed to handlers.",
		}, []string{"name"})
	handlerPanics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vecflow",
			Subsystem: "component",
			Name:      "handler_panics_total",
			Help:      "Total number of handler invocations that panicked.",
		}, []string{"name"})
)

// Metrics is a set of metric collectors bound to one component name.
type Metrics struct {
	name      string
	placement string

	MailboxLength     prometheus.Gauge
	HandleDuration    prometheus.Observer
	ProcessedMessages prometheus.Counter
	HandlerPanics     prometheus.Counter
}

// NewMetrics returns the collectors of the given component.
func NewMetrics(name, placement string) *Metrics {
	return &Metrics{
		name:              name,
		placement:         placement,
		MailboxLength:     mailboxLength.WithLabelValues(name),
		HandleDuration:    handleDuration.WithLabelValues(name),
		ProcessedMessages: processedMessages.WithLabelValues(name),
		HandlerPanics:     handlerPanics.WithLabelValues(name),
	}
}

// OnStart must be called when a component starts.
func (m *Metrics) OnStart() {
	runningComponents.WithLabelValues(m.name, m.placement).Inc()
}

// OnStop must be called when a component stops.
func (m *Metrics) OnStop() {
	runningComponents.WithLabelValues(m.name, m.placement).Dec()
}

// InitMetrics registers all metrics in this file
func InitMetrics(registry *prometheus.Registry) {
	registry.MustRegister(runningComponents)
	registry.MustRegister(mailboxLength)
	registry.MustRegister(handleDuration)
	registry.MustRegister(processedMessages)
	registry.MustRegister(handlerPanics)
}
