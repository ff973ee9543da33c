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

package promutil

import (
	"net/http"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"
)

// NewRegistry returns a registry with the process and go runtime collectors.
// We don't use prometheus.DefaultRegistry, so tests can build as many
// registries as they need.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(collectors.NewGoCollector())
	return registry
}

// HTTPHandlerForMetric returns the http.Handler serving the metrics of gatherer.
func HTTPHandlerForMetric(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorLog:      zap.NewStdLog(log.L()),
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// SumCounter returns the sum of all series of the counter name.
// A counter without series sums to 0.
func SumCounter(gatherer prometheus.Gatherer, name string) (float64, error) {
	families, err := gatherer.Gather()
	if err != nil {
		return 0, errors.Trace(err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		if family.GetType() != dto.MetricType_COUNTER {
			return 0, errors.Errorf("metric %s is a %s, not a counter", name, family.GetType())
		}
		var sum float64
		for _, m := range family.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
		return sum, nil
	}
	return 0, nil
}
