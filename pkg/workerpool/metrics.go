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

package workerpool

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	poolTaskCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vecflow",
			Subsystem: "workerpool",
			Name:      "tasks_total",
			Help:      "The number of tasks run by a worker pool.",
		}, []string{"pool", "result"})
	poolPendingGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vecflow",
			Subsystem: "workerpool",
			Name:      "pending_tasks",
			Help:      "The number of submitted tasks not yet started.",
		}, []string{"pool"})
)

// InitMetrics registers all metrics in this file
func InitMetrics(registry *prometheus.Registry) {
	registry.MustRegister(poolTaskCounter)
	registry.MustRegister(poolPendingGauge)
}
