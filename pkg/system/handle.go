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

	"github.com/pingcap/errors"
	"github.com/pingcap/vecflow/pkg/actor"
	cerrors "github.com/pingcap/vecflow/pkg/errors"
)

// ComponentHandle is the external controller of a started component.
// Dropping a handle does not stop the component, call Stop or Close.
type ComponentHandle[C any] struct {
	id      actor.ID
	name    string
	mailbox actor.Mailbox[envelope[C]]

	// ctx is canceled once cancellation of the component is triggered.
	ctx    context.Context
	cancel context.CancelFunc
	// done is closed once the executor reaches Stopped.
	done chan struct{}
}

// ID returns the id of the component.
func (h *ComponentHandle[C]) ID() actor.ID {
	return h.id
}

// Name returns the name of the component.
func (h *ComponentHandle[C]) Name() string {
	return h.name
}

// Stop triggers cancellation of the component. It never blocks, an in-flight
// handler runs to completion and queued messages are dropped.
func (h *ComponentHandle[C]) Stop() {
	h.cancel()
}

// Close closes the mailbox. Messages already queued are still handled, then
// the component stops.
func (h *ComponentHandle[C]) Close() {
	h.mailbox.Close()
}

// IsStopped returns true if cancellation of the component is triggered.
func (h *ComponentHandle[C]) IsStopped() bool {
	return h.ctx.Err() != nil
}

// Done is closed once the component is stopped.
func (h *ComponentHandle[C]) Done() <-chan struct{} {
	return h.done
}

// Join blocks until the component is stopped or ctx is done.
// It returns immediately if the component is already stopped.
func (h *ComponentHandle[C]) Join(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	}
}

// MailboxLen returns the number of queued messages.
func (h *ComponentHandle[C]) MailboxLen() int {
	return h.mailbox.Len()
}

func (h *ComponentHandle[C]) errStopped() error {
	return cerrors.ErrComponentStopped.GenWithStackByArgs(h.name)
}

func (h *ComponentHandle[C]) deliver(ctx context.Context, env envelope[C], block bool) error {
	if h.IsStopped() {
		return h.errStopped()
	}
	if !block {
		return h.mailbox.Send(env)
	}

	// A blocked send must be released by cancellation of the component too.
	sendCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(h.ctx, cancel)
	defer stop()

	err := h.mailbox.SendB(sendCtx, env)
	if err != nil && ctx.Err() == nil && h.IsStopped() {
		return h.errStopped()
	}
	return err
}

// Send posts msg to the component without reply slot, blocking while the
// mailbox is full. It does not wait for msg to be handled.
func Send[C, M, R any](
	ctx context.Context, h *ComponentHandle[C],
	handler func(C, context.Context, M, *ComponentContext[C]) (R, error), msg M,
) error {
	return h.deliver(ctx, newEnvelope[C, M, R](ctx, handler, msg, nil), true)
}

// TrySend posts msg to the component without reply slot. It never blocks and
// returns ErrMailboxFull if the mailbox is full.
func TrySend[C, M, R any](
	h *ComponentHandle[C],
	handler func(C, context.Context, M, *ComponentContext[C]) (R, error), msg M,
) error {
	return h.deliver(context.Background(), newEnvelope[C, M, R](context.Background(), handler, msg, nil), false)
}

// Request posts msg to the component and waits for the handler result.
//
// A positive timeout bounds the wait with ErrRequestTimeout. Timing out
// abandons the request only, the handler may still run later. Other
// failures are ErrMailboxClosed, ErrComponentStopped and ErrHandlerPanic.
func Request[C, M, R any](
	ctx context.Context, h *ComponentHandle[C],
	handler func(C, context.Context, M, *ComponentContext[C]) (R, error), msg M,
	timeout time.Duration,
) (R, error) {
	var zero R
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	onCtxDone := func() error {
		if timeout > 0 && ctx.Err() == nil {
			return cerrors.ErrRequestTimeout.GenWithStackByArgs(h.name, timeout)
		}
		return errors.Trace(waitCtx.Err())
	}

	// The reply slot is buffered, so an abandoned request never blocks the
	// executor.
	replyCh := make(chan reply[R], 1)
	env := newEnvelope[C, M, R](ctx, handler, msg, replyCh)
	if err := h.deliver(waitCtx, env, true); err != nil {
		if waitCtx.Err() != nil {
			return zero, onCtxDone()
		}
		return zero, err
	}

	select {
	case r := <-replyCh:
		return r.val, r.err
	case <-h.done:
		// The reply may race with the executor exit.
		select {
		case r := <-replyCh:
			return r.val, r.err
		default:
		}
		return zero, h.errStopped()
	case <-waitCtx.Done():
		return zero, onCtxDone()
	}
}
