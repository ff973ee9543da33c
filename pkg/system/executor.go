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
	"time"

	"github.com/pingcap/vecflow/pkg/actor"
	cerrors "github.com/pingcap/vecflow/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// executor drains the mailbox of one component. It owns the component
// instance, no one else may touch it.
//
// The executor goes through the following states:
//
//	Running  -- cancellation --> Stopped (queued messages are failed)
//	Running  -- mailbox closed --> Draining -- queue empty --> Stopped
//
// A message received together with cancellation is failed, it is never
// handed to the handler.
type executor[C Component] struct {
	id        actor.ID
	name      string
	component C

	ctx     context.Context
	mailbox actor.Mailbox[envelope[C]]
	handle  *ComponentHandle[C]
	cctx    *ComponentContext[C]

	scheduler *Scheduler
	tracer    trace.Tracer
	metrics   *actor.Metrics
	logger    *zap.Logger
}

func (e *executor[C]) run() {
	defer e.finish()

	if starter, ok := any(e.component).(Starter[C]); ok {
		starter.OnStart(e.ctx, e.cctx)
	}

	for {
		// Cancellation takes priority over queued messages.
		select {
		case <-e.ctx.Done():
			return
		default:
		}

		select {
		case <-e.ctx.Done():
			return
		case env := <-e.mailbox.C():
			e.process(env)
		case <-e.mailbox.Closed():
			e.logger.Debug("mailbox is closed, draining queued messages",
				zap.Int("queued", e.mailbox.Len()))
			e.drain()
			return
		}
	}
}

// drain handles the messages queued before the mailbox was closed.
func (e *executor[C]) drain() {
	for e.ctx.Err() == nil {
		env, ok := e.mailbox.Receive()
		if !ok {
			return
		}
		e.process(env)
	}
}

func (e *executor[C]) process(env envelope[C]) {
	if e.ctx.Err() != nil {
		env.fail(e.handle.errStopped())
		return
	}
	e.metrics.MailboxLength.Set(float64(e.mailbox.Len()))

	ctx := e.ctx
	if env.spanCtx.IsValid() {
		ctx = trace.ContextWithSpanContext(ctx, env.spanCtx)
	}
	ctx, span := e.tracer.Start(ctx, "component process",
		trace.WithAttributes(
			attribute.String("name", e.name),
			attribute.String("message", env.msgType)))
	defer span.End()

	start := time.Now()
	e.invoke(ctx, env)
	e.metrics.HandleDuration.Observe(time.Since(start).Seconds())
	e.metrics.ProcessedMessages.Inc()
}

// invoke runs one handler inside a failure boundary. A panic is reported to
// the component and to the requester, and the loop goes on.
func (e *executor[C]) invoke(ctx context.Context, env envelope[C]) {
	defer func() {
		if r := recover(); r != nil {
			msg := PanicMessage(r)
			e.logger.Error("component handler panicked",
				zap.String("message", env.msgType),
				zap.String("panic", msg),
				zap.Stack("stack"))
			e.metrics.HandlerPanics.Inc()
			e.component.OnHandlerPanic(r)
			env.fail(cerrors.ErrHandlerPanic.GenWithStackByArgs(e.name, msg))
		}
	}()
	env.handle(ctx, e.component, e.cctx)
}

func (e *executor[C]) finish() {
	e.handle.cancel()
	e.mailbox.Close()

	dropped := 0
	for {
		env, ok := e.mailbox.Receive()
		if !ok {
			break
		}
		env.fail(e.handle.errStopped())
		dropped++
	}

	if stopper, ok := any(e.component).(Stopper); ok {
		stopper.OnStop(context.WithoutCancel(e.ctx))
	}

	e.metrics.MailboxLength.Set(0)
	e.metrics.OnStop()
	e.scheduler.deregister(e.id)
	e.logger.Info("component stopped", zap.Int("droppedMessages", dropped))
	close(e.handle.done)
}
