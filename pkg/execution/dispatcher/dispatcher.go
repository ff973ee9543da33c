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

package dispatcher

import (
	"context"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/pingcap/vecflow/pkg/config"
	"github.com/pingcap/vecflow/pkg/system"
	"github.com/pingcap/vecflow/pkg/workerpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const componentName = "dispatcher"

var dispatchedTaskCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "vecflow",
		Subsystem: "dispatcher",
		Name:      "dispatched_tasks_total",
		Help:      "The number of tasks dispatched to the worker pool.",
	}, []string{"operator", "result"})

// InitMetrics registers all metrics in this file
func InitMetrics(registry *prometheus.Registry) {
	registry.MustRegister(dispatchedTaskCounter)
}

// Dispatcher is a component running operator tasks on a worker pool. Tasks
// are handed to the pool in mailbox order, they may finish in any order.
type Dispatcher struct {
	queueSize  int
	pool       workerpool.AsyncPool
	dispatched int64

	cancel context.CancelFunc
	eg     *errgroup.Group
}

var (
	_ system.Component            = (*Dispatcher)(nil)
	_ system.Starter[*Dispatcher] = (*Dispatcher)(nil)
	_ system.Stopper              = (*Dispatcher)(nil)
)

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg *config.DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		queueSize: cfg.QueueSize,
		pool:      workerpool.NewDefaultAsyncPool(componentName, cfg.NumWorkers, cfg.QueueSize),
	}
}

// Name implements system.Component.
func (d *Dispatcher) Name() string { return componentName }

// QueueSize implements system.Component.
func (d *Dispatcher) QueueSize() int { return d.queueSize }

// Placement implements system.Component.
func (d *Dispatcher) Placement() system.Placement { return system.PlacementInherit }

// OnHandlerPanic implements system.Component.
func (d *Dispatcher) OnHandlerPanic(panicValue any) {
	log.Error("dispatcher handler panicked", zap.String("panic", system.PanicMessage(panicValue)))
}

// OnStart starts the worker pool.
func (d *Dispatcher) OnStart(ctx context.Context, _ *system.ComponentContext[*Dispatcher]) {
	poolCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.eg = &errgroup.Group{}
	d.eg.Go(func() error {
		return d.pool.Run(poolCtx)
	})
}

// OnStop stops the worker pool and waits for the tasks already submitted.
func (d *Dispatcher) OnStop(_ context.Context) {
	if d.cancel == nil {
		return
	}
	d.cancel()
	err := d.eg.Wait()
	if err != nil && errors.Cause(err) != context.Canceled {
		log.Warn("worker pool exited with error", zap.Error(err))
	}
}

// Dispatch hands task to the worker pool. If it can not, the task fails
// with the submission error.
func (d *Dispatcher) Dispatch(
	ctx context.Context, task Task, cctx *system.ComponentContext[*Dispatcher],
) (struct{}, error) {
	if err := d.pool.Go(ctx, task.Run); err != nil {
		cctx.Logger().Warn("failed to dispatch task",
			zap.String("operator", task.OperatorName()),
			zap.Stringer("task", task.ID()),
			zap.Error(err))
		dispatchedTaskCounter.WithLabelValues(task.OperatorName(), "failure").Inc()
		task.Fail(ctx, err)
		return struct{}{}, errors.Trace(err)
	}
	d.dispatched++
	dispatchedTaskCounter.WithLabelValues(task.OperatorName(), "success").Inc()
	return struct{}{}, nil
}

// Stats is a snapshot of a dispatcher.
type Stats struct {
	PendingTasks    int   `json:"pending-tasks"`
	DispatchedTasks int64 `json:"dispatched-tasks"`
}

func (d *Dispatcher) stats(
	_ context.Context, _ struct{}, _ *system.ComponentContext[*Dispatcher],
) (Stats, error) {
	return Stats{PendingTasks: d.pool.Pending(), DispatchedTasks: d.dispatched}, nil
}

// QueryStats asks the dispatcher h for its stats.
func QueryStats(
	ctx context.Context, h *system.ComponentHandle[*Dispatcher], timeout time.Duration,
) (Stats, error) {
	return system.Request(ctx, h, (*Dispatcher).stats, struct{}{}, timeout)
}

// Pending returns the number of tasks waiting for a worker.
func (d *Dispatcher) Pending() int {
	return d.pool.Pending()
}

// Submit sends task to the dispatcher h.
func Submit(ctx context.Context, h *system.ComponentHandle[*Dispatcher], task Task) error {
	return system.Send(ctx, h, (*Dispatcher).Dispatch, task)
}
