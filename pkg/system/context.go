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

	"go.uber.org/zap"
)

// Handler binds a message type M with result type R to a component type C.
// Handlers are usually method expressions, for example
//
//	func (c *counter) add(ctx context.Context, n int, cctx *ComponentContext[*counter]) (int, error)
//
// is bound as (*counter).add. A handler has exclusive access to the
// component for the duration of the call.
type Handler[C, M, R any] func(c C, ctx context.Context, msg M, cctx *ComponentContext[C]) (R, error)

// ComponentContext is the capability handle passed to every handler
// invocation of a component.
type ComponentContext[C any] struct {
	ctx    context.Context
	system *System
	self   *ComponentHandle[C]
	logger *zap.Logger
}

// System returns the system the component runs in.
func (c *ComponentContext[C]) System() *System {
	return c.system
}

// Scheduler returns the scheduler of the system.
func (c *ComponentContext[C]) Scheduler() *Scheduler {
	return c.system.scheduler
}

// Self returns the handle of the component. Sends to it are queued in the
// mailbox, they are never handled inline. A handler must not Join its own
// component, it would never return.
func (c *ComponentContext[C]) Self() *ComponentHandle[C] {
	return c.self
}

// Logger returns the logger of the component.
func (c *ComponentContext[C]) Logger() *zap.Logger {
	return c.logger
}

// Context returns a context that is canceled when the component is stopped.
func (c *ComponentContext[C]) Context() context.Context {
	return c.ctx
}

// Done is closed once cancellation of the component is triggered.
func (c *ComponentContext[C]) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Cancelled returns true if cancellation of the component is triggered.
func (c *ComponentContext[C]) Cancelled() bool {
	return c.ctx.Err() != nil
}
