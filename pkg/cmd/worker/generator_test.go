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

package worker

import (
	"context"
	"testing"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/vecflow/pkg/system"
	"github.com/pingcap/vecflow/pkg/types"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestSyntheticRecords(t *testing.T) {
	ops := []types.Operation{
		types.OperationAdd, types.OperationUpdate, types.OperationUpsert, types.OperationDelete,
	}
	for i := 0; i < 8; i++ {
		record := syntheticRecord(i, 4)
		require.Equal(t, ops[i%4], record.Operation, "%d", i)
		if record.Operation == types.OperationAdd {
			require.Len(t, record.Embedding, embeddingDim)
			continue
		}
		require.Equal(t, seedUserID(i%4), record.ID)
	}

	seeds := seedLogs(3)
	require.Equal(t, 3, seeds.Len())
	last, ok := seeds.Get(2)
	require.True(t, ok)
	require.Equal(t, int64(3), last.LogOffset)
	require.Equal(t, "seed-2", last.Record.ID)
}

func TestNewLimiter(t *testing.T) {
	require.Equal(t, rate.Inf, newLimiter(0).Limit())
	require.Equal(t, rate.Limit(50), newLimiter(50).Limit())
}

func TestGenerateLogs(t *testing.T) {
	out := make(chan types.OperationRecord, 10)
	require.Nil(t, generateLogs(context.Background(), 5, 5, newLimiter(0), out))
	n := 0
	for range out {
		n++
	}
	require.Equal(t, 5, n)

	// A canceled generator still closes its output.
	ctx, cancel := context.WithCancel(context.Background())
	out = make(chan types.OperationRecord)
	errCh := make(chan error, 1)
	go func() {
		errCh <- generateLogs(ctx, 100, 5, rate.NewLimiter(rate.Every(time.Hour), 1), out)
	}()
	<-out
	cancel()
	require.Equal(t, context.Canceled, errors.Cause(<-errCh))
	_, ok := <-out
	require.False(t, ok)
}

func TestLogBufferAssignsOffsets(t *testing.T) {
	ctx := context.Background()
	sys := system.NewSystem()
	h, err := system.StartComponent(sys, newLogBuffer(4, 10))
	require.Nil(t, err)

	src := make(chan types.OperationRecord, 3)
	for i := 0; i < 3; i++ {
		src <- syntheticRecord(i, 3)
	}
	close(src)
	bridge := system.RegisterStream(h, (*logBuffer).append, src)
	require.Nil(t, bridge.Wait(ctx))
	require.Equal(t, int64(3), bridge.Forwarded())

	logs, err := system.Request(ctx, h, (*logBuffer).drain, struct{}{}, time.Second)
	require.Nil(t, err)
	require.Equal(t, 3, logs.Len())
	logs.Each(func(i int, log types.LogRecord) bool {
		require.Equal(t, int64(11+i), log.LogOffset)
		return true
	})

	logs, err = system.Request(ctx, h, (*logBuffer).drain, struct{}{}, time.Second)
	require.Nil(t, err)
	require.Equal(t, 0, logs.Len())

	sys.Stop()
	require.Nil(t, sys.Join(ctx))
}
