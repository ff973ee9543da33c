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

	"github.com/pingcap/errors"
	"github.com/pingcap/vecflow/pkg/logutil"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// StreamBridge forwards items of an external source to a component.
type StreamBridge struct {
	done      chan struct{}
	forwarded atomic.Int64
}

// Done is closed once the bridge terminates.
func (b *StreamBridge) Done() <-chan struct{} {
	return b.done
}

// Wait blocks until the bridge terminates or ctx is done.
func (b *StreamBridge) Wait(ctx context.Context) error {
	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	}
}

// Forwarded returns the number of items delivered to the component.
func (b *StreamBridge) Forwarded() int64 {
	return b.forwarded.Load()
}

// RegisterStream forwards every item of src to the component with handler,
// in a goroutine of its own. The bridge terminates when src is closed, when
// the component is stopped, or when a delivery fails. It is never restarted.
func RegisterStream[C, M, R any](
	h *ComponentHandle[C],
	handler func(C, context.Context, M, *ComponentContext[C]) (R, error),
	src <-chan M,
) *StreamBridge {
	b := &StreamBridge{done: make(chan struct{})}
	logger := logutil.FromContext(h.ctx)
	go func() {
		defer close(b.done)
		for {
			select {
			case <-h.ctx.Done():
				logger.Debug("stream bridge terminated by cancellation")
				return
			case item, ok := <-src:
				if !ok {
					logger.Debug("stream source is exhausted",
						zap.Int64("forwarded", b.forwarded.Load()))
					return
				}
				if err := Send(h.ctx, h, handler, item); err != nil {
					logger.Error("failed to send stream message", zap.Error(err))
					return
				}
				b.forwarded.Inc()
			}
		}
	}()
	return b
}
