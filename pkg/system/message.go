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
	"fmt"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// envelope carries one message to the executor. The message and its handler
// are captured in handle, so a mailbox can carry messages of any type
// accepted by the component.
type envelope[C any] struct {
	msgType string
	spanCtx trace.SpanContext

	// handle invokes the handler and fulfills the reply slot, if any.
	handle func(ctx context.Context, c C, cctx *ComponentContext[C])
	// fail fulfills the reply slot with err, if any. It is called at most
	// once, and only when handle did not return.
	fail func(err error)
}

type reply[R any] struct {
	val R
	err error
}

func newEnvelope[C, M, R any](
	ctx context.Context, handler func(C, context.Context, M, *ComponentContext[C]) (R, error),
	msg M, replyCh chan<- reply[R],
) envelope[C] {
	env := envelope[C]{
		msgType: fmt.Sprintf("%T", msg),
		spanCtx: trace.SpanContextFromContext(ctx),
	}
	if replyCh == nil {
		env.handle = func(ctx context.Context, c C, cctx *ComponentContext[C]) {
			if _, err := handler(c, ctx, msg, cctx); err != nil {
				cctx.Logger().Warn("handler failed on a message without reply slot",
					zap.String("message", env.msgType), zap.Error(err))
			}
		}
		env.fail = func(error) {}
		return env
	}
	env.handle = func(ctx context.Context, c C, cctx *ComponentContext[C]) {
		val, err := handler(c, ctx, msg, cctx)
		replyCh <- reply[R]{val: val, err: err}
	}
	env.fail = func(err error) {
		replyCh <- reply[R]{err: err}
	}
	return env
}
