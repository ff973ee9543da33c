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
	"sync"
	"time"

	"go.uber.org/zap"
)

// ScheduleSend sends msg to the component itself after delay, measured on
// the system clock. The returned func cancels the send if it has not
// happened yet. The send is dropped if the component stops first.
func ScheduleSend[C, M, R any](
	cctx *ComponentContext[C], delay time.Duration,
	handler func(C, context.Context, M, *ComponentContext[C]) (R, error), msg M,
) (cancel func()) {
	timer := cctx.system.clock.Timer(delay)
	stopCh := make(chan struct{})
	var once sync.Once
	cancel = func() {
		once.Do(func() {
			timer.Stop()
			close(stopCh)
		})
	}
	go func() {
		select {
		case <-timer.C:
		case <-stopCh:
			return
		case <-cctx.Done():
			timer.Stop()
			return
		}
		if err := Send(cctx.ctx, cctx.self, handler, msg); err != nil {
			cctx.Logger().Debug("scheduled send dropped", zap.Error(err))
		}
	}()
	return cancel
}

// ScheduleInterval sends msg to the component itself every interval, until
// the returned func is called or the component stops.
func ScheduleInterval[C, M, R any](
	cctx *ComponentContext[C], interval time.Duration,
	handler func(C, context.Context, M, *ComponentContext[C]) (R, error), msg M,
) (cancel func()) {
	ticker := cctx.system.clock.Ticker(interval)
	stopCh := make(chan struct{})
	var once sync.Once
	cancel = func() {
		once.Do(func() { close(stopCh) })
	}
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
			case <-stopCh:
				return
			case <-cctx.Done():
				return
			}
			if err := Send(cctx.ctx, cctx.self, handler, msg); err != nil {
				cctx.Logger().Debug("interval send stopped", zap.Error(err))
				return
			}
		}
	}()
	return cancel
}
