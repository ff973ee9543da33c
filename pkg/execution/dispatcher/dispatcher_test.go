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
	"testing"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/vecflow/pkg/config"
	cerrors "github.com/pingcap/vecflow/pkg/errors"
	"github.com/pingcap/vecflow/pkg/leakutil"
	"github.com/pingcap/vecflow/pkg/system"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	leakutil.SetUpLeakTest(m)
}

type squareOperator struct{}

func (squareOperator) Name() string { return "square" }

func (squareOperator) Run(_ context.Context, input int) (int, error) {
	if input < 0 {
		panic("negative input")
	}
	if input == 0 {
		return 0, errors.New("zero input")
	}
	return input * input, nil
}

type collector struct {
	sum     int
	results int
	errs    []error
}

func (c *collector) Name() string                { return "collector" }
func (c *collector) QueueSize() int              { return 100 }
func (c *collector) Placement() system.Placement { return system.PlacementInherit }
func (c *collector) OnHandlerPanic(any)          {}

func (c *collector) onResult(
	_ context.Context, result TaskResult[int], _ *system.ComponentContext[*collector],
) (struct{}, error) {
	c.results++
	if result.Err != nil {
		c.errs = append(c.errs, result.Err)
		return struct{}{}, nil
	}
	c.sum += result.Output
	return struct{}{}, nil
}

type snapshot struct{}

func (c *collector) snapshot(
	_ context.Context, _ snapshot, _ *system.ComponentContext[*collector],
) (collector, error) {
	return collector{sum: c.sum, results: c.results, errs: append([]error(nil), c.errs...)}, nil
}

func startDispatcher(t *testing.T, sys *system.System) *system.ComponentHandle[*Dispatcher] {
	h, err := system.StartComponent(sys, NewDispatcher(&config.DispatcherConfig{
		NumWorkers: 4,
		QueueSize:  16,
	}))
	require.Nil(t, err)
	return h
}

func stopAndJoin(t *testing.T, sys *system.System) {
	sys.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.Nil(t, sys.Join(ctx))
}

func TestDispatchTasks(t *testing.T) {
	ctx := context.Background()
	sys := system.NewSystem()
	h := startDispatcher(t, sys)

	results := make(chan TaskResult[int], 10)
	deliver := func(_ context.Context, result TaskResult[int]) {
		results <- result
	}
	expected := 0
	for i := 1; i <= 10; i++ {
		expected += i * i
		require.Nil(t, Submit(ctx, h, NewTask[int, int](squareOperator{}, i, deliver)))
	}
	sum := 0
	for i := 0; i < 10; i++ {
		result := <-results
		require.Nil(t, result.Err)
		require.Equal(t, "square", result.Operator)
		sum += result.Output
	}
	require.Equal(t, expected, sum)

	stats, err := QueryStats(ctx, h, time.Second)
	require.Nil(t, err)
	require.Equal(t, int64(10), stats.DispatchedTasks)
	require.Equal(t, 0, stats.PendingTasks)

	stopAndJoin(t, sys)
}

func TestTaskFailures(t *testing.T) {
	ctx := context.Background()
	sys := system.NewSystem()
	h := startDispatcher(t, sys)

	results := make(chan TaskResult[int], 2)
	deliver := func(_ context.Context, result TaskResult[int]) {
		results <- result
	}
	require.Nil(t, Submit(ctx, h, NewTask[int, int](squareOperator{}, -1, deliver)))
	result := <-results
	require.True(t, cerrors.ErrHandlerPanic.Equal(result.Err), "%v", result.Err)
	require.Contains(t, result.Err.Error(), "negative input")

	require.Nil(t, Submit(ctx, h, NewTask[int, int](squareOperator{}, 0, deliver)))
	result = <-results
	require.Regexp(t, "zero input", result.Err)

	// A task failed before running reports its error.
	task := NewTask[int, int](squareOperator{}, 3, deliver)
	canceled, cancel := context.WithCancel(ctx)
	cancel()
	task.Run(canceled)
	result = <-results
	require.Equal(t, context.Canceled, errors.Cause(result.Err))
	require.Equal(t, task.ID(), result.TaskID)

	stopAndJoin(t, sys)

	err := Submit(ctx, h, NewTask[int, int](squareOperator{}, 1, deliver))
	require.True(t, cerrors.IsComponentGone(err), "%v", err)
}

func TestReplyToComponent(t *testing.T) {
	ctx := context.Background()
	sys := system.NewSystem()
	h := startDispatcher(t, sys)
	c, err := system.StartComponent(sys, &collector{})
	require.Nil(t, err)

	deliver := ReplyTo(c, (*collector).onResult)
	for i := -1; i <= 5; i++ {
		require.Nil(t, Submit(ctx, h, NewTask[int, int](squareOperator{}, i, deliver)))
	}
	require.Eventually(t, func() bool {
		snap, err := system.Request(ctx, c, (*collector).snapshot, snapshot{}, time.Second)
		return err == nil && snap.results == 7
	}, 5*time.Second, 10*time.Millisecond)

	snap, err := system.Request(ctx, c, (*collector).snapshot, snapshot{}, time.Second)
	require.Nil(t, err)
	require.Equal(t, 1+4+9+16+25, snap.sum)
	require.Len(t, snap.errs, 2)

	stopAndJoin(t, sys)
}
