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
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	cerrors "github.com/pingcap/vecflow/pkg/errors"
	"github.com/pingcap/vecflow/pkg/leakutil"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

func TestMain(m *testing.M) {
	leakutil.SetUpLeakTest(m)
}

func TestBasic(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	errg, ctx := errgroup.WithContext(ctx)

	pool := newDefaultAsyncPoolImpl("basic", 4, 0)
	errg.Go(func() error {
		return pool.Run(ctx)
	})

	var sum atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		finalI := i
		err := pool.Go(ctx, func(context.Context) {
			time.Sleep(time.Millisecond * time.Duration(rand.Int()%10))
			sum.Add(int32(finalI + 1))
			wg.Done()
		})
		require.Nil(t, err)
	}

	wg.Wait()
	require.Equal(t, int32(5050), sum.Load())
	require.Equal(t, float64(100),
		testutil.ToFloat64(poolTaskCounter.WithLabelValues("basic", "success")))

	cancel()
	err := errg.Wait()
	require.Regexp(t, "context canceled", err)
}

func TestTaskPanicDoesNotStopWorker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := newDefaultAsyncPoolImpl("panic", 1, 0)
	errCh := make(chan error, 1)
	go func() {
		errCh <- pool.Run(ctx)
	}()

	require.Nil(t, pool.Go(ctx, func(context.Context) {
		panic("task failed")
	}))
	done := make(chan struct{})
	require.Nil(t, pool.Go(ctx, func(context.Context) {
		close(done)
	}))
	<-done
	require.Equal(t, float64(1),
		testutil.ToFloat64(poolTaskCounter.WithLabelValues("panic", "panic")))

	cancel()
	require.Equal(t, context.Canceled, errors.Cause(<-errCh))
}

func TestGoBeforeRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := newDefaultAsyncPoolImpl("not-running", 2, 0)
	submitCtx, cancelSubmit := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancelSubmit()
	err := pool.Go(submitCtx, func(context.Context) {})
	require.Error(t, err)
	require.True(t, cerrors.ErrAsyncPoolExited.Equal(err) ||
		errors.Cause(err) == context.DeadlineExceeded, "%v", err)
	require.Equal(t, 0, pool.Pending())
}

func TestTasksSubmittedBeforeStopAreRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	pool := newDefaultAsyncPoolImpl("drain", 1, 16)
	errCh := make(chan error, 1)
	go func() {
		errCh <- pool.Run(ctx)
	}()

	gate := make(chan struct{})
	var ran atomic.Int32
	require.Nil(t, pool.Go(ctx, func(context.Context) {
		<-gate
		ran.Inc()
	}))
	for i := 0; i < 5; i++ {
		require.Nil(t, pool.Go(ctx, func(context.Context) {
			ran.Inc()
		}))
	}
	cancel()
	close(gate)
	<-errCh
	require.Equal(t, int32(6), ran.Load())
}

func TestEventuallyRun(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	errg, ctx := errgroup.WithContext(ctx)
	loopCtx, cancelLoop := context.WithCancel(ctx)
	defer cancelLoop()

	pool := newDefaultAsyncPoolImpl("eventually", 4, 0)
	errg.Go(func() error {
		defer cancelLoop()
		for i := 0; i < 5; i++ {
			log.Info("running pool")
			err := runForDuration(ctx, time.Millisecond*200, func(ctx context.Context) error {
				return pool.Run(ctx)
			})
			if err != nil {
				return errors.Trace(err)
			}
		}
		return nil
	})

	var sum atomic.Int32
	var sumExpected int32
loop:
	for i := 0; ; i++ {
		select {
		case <-loopCtx.Done():
			break loop
		default:
		}
		finalI := i
		err := pool.Go(loopCtx, func(context.Context) {
			if rand.Int()%128 == 0 {
				time.Sleep(2 * time.Millisecond)
			}
			sum.Add(int32(finalI + 1))
		})
		if err != nil {
			require.Regexp(t, "context canceled", err)
		} else {
			sumExpected += int32(i + 1)
		}
	}

	cancel()
	err := errg.Wait()
	require.Nil(t, err)
	require.Equal(t, sumExpected, sum.Load())
}

func runForDuration(ctx context.Context, duration time.Duration, f func(ctx context.Context) error) error {
	timedCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- f(timedCtx)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if errors.Cause(err) == context.DeadlineExceeded {
			return nil
		}
		return errors.Trace(err)
	}
}
