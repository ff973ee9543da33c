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

package system

import (
	"context"
	"runtime"

	"github.com/benbjohnson/clock"
	"github.com/pingcap/log"
	"github.com/pingcap/vecflow/pkg/actor"
	cerrors "github.com/pingcap/vecflow/pkg/errors"
	"github.com/pingcap/vecflow/pkg/logutil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const tracerName = "github.com/pingcap/vecflow/pkg/system"

// System starts components and owns the scheduler that supervises them.
// A System is safe for concurrent use.
type System struct {
	scheduler *Scheduler
	clock     clock.Clock
	tracer    trace.Tracer

	nextID atomic.Uint64
}

// Option configures a System.
type Option func(*System)

// WithClock sets the clock used by delayed sends.
func WithClock(c clock.Clock) Option {
	return func(s *System) {
		s.clock = c
	}
}

// WithTracer sets the tracer used for component spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *System) {
		s.tracer = t
	}
}

// NewSystem creates a System.
func NewSystem(opts ...Option) *System {
	s := &System{
		scheduler: newScheduler(),
		clock:     clock.New(),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scheduler returns the scheduler of the system.
func (s *System) Scheduler() *Scheduler {
	return s.scheduler
}

// Clock returns the clock of the system.
func (s *System) Clock() clock.Clock {
	return s.clock
}

// Stop triggers cancellation of all running components.
func (s *System) Stop() {
	s.scheduler.Stop()
}

// Join blocks until all components are stopped or ctx is done.
func (s *System) Join(ctx context.Context) error {
	return s.scheduler.Join(ctx)
}

// StartComponent starts the component and returns its handle. The mailbox
// capacity and the placement are read from the component once.
func StartComponent[C Component](s *System, component C) (*ComponentHandle[C], error) {
	name := component.Name()
	queueSize := component.QueueSize()
	if queueSize <= 0 {
		return nil, cerrors.ErrInvalidQueueSize.GenWithStackByArgs(queueSize, name)
	}
	placement := component.Placement()
	if placement != PlacementInherit && placement != PlacementDedicated {
		return nil, cerrors.ErrUnknownPlacement.GenWithStackByArgs(int(placement), name)
	}

	id := actor.ID(s.nextID.Inc())
	logger := log.L().With(zap.String("component", name), zap.Uint64("id", uint64(id)))
	ctx, cancel := context.WithCancel(
		logutil.NewContextWithLogger(context.Background(), logger))

	mailbox := actor.NewMailbox[envelope[C]](id, queueSize)
	handle := &ComponentHandle[C]{
		id:      id,
		name:    name,
		mailbox: mailbox,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	e := &executor[C]{
		id:        id,
		name:      name,
		component: component,
		ctx:       ctx,
		mailbox:   mailbox,
		handle:    handle,
		cctx: &ComponentContext[C]{
			ctx:    ctx,
			system: s,
			self:   handle,
			logger: logger,
		},
		scheduler: s.scheduler,
		tracer:    s.tracer,
		metrics:   actor.NewMetrics(name, placement.String()),
		logger:    logger,
	}

	_, span := s.tracer.Start(ctx, "component spawn",
		trace.WithAttributes(
			attribute.String("name", name),
			attribute.String("placement", placement.String())))
	defer span.End()

	s.scheduler.register(id, name, handle.Stop, handle.done)
	e.metrics.OnStart()
	switch placement {
	case PlacementInherit:
		go e.run()
	case PlacementDedicated:
		go func() {
			// The thread is never unlocked, so it is torn down together
			// with the executor goroutine.
			runtime.LockOSThread()
			e.run()
		}()
	}
	logger.Debug("component started",
		zap.Stringer("placement", placement), zap.Int("queueSize", queueSize))
	return handle, nil
}
