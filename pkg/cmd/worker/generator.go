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
	"fmt"
	"math"

	"github.com/pingcap/errors"
	"github.com/pingcap/vecflow/pkg/types"
	"golang.org/x/time/rate"
)

const embeddingDim = 4

func embedding(seed int) []float32 {
	emb := make([]float32, embeddingDim)
	for i := range emb {
		emb[i] = float32(seed*embeddingDim+i) / 100
	}
	return emb
}

func document(format string, args ...any) *string {
	doc := fmt.Sprintf(format, args...)
	return &doc
}

// seedLogs returns the logs adding n records to an empty collection.
func seedLogs(n int) *types.Chunk[types.LogRecord] {
	logs := make([]types.LogRecord, 0, n)
	for i := 0; i < n; i++ {
		value := types.IntValue(int64(i))
		logs = append(logs, types.LogRecord{
			LogOffset: int64(i + 1),
			Record: types.OperationRecord{
				ID:        seedUserID(i),
				Embedding: embedding(i),
				Document:  document("seed document %d", i),
				Metadata:  types.UpdateMetadata{"seq": &value},
				Operation: types.OperationAdd,
			},
		})
	}
	return types.NewChunk(logs)
}

func seedUserID(i int) string {
	return fmt.Sprintf("seed-%d", i)
}

// syntheticRecord returns the i-th operation of the synthetic log. It
// rotates through adds of new records, updates, upserts and deletes of the
// seeded records.
func syntheticRecord(i, seeded int) types.OperationRecord {
	target := seedUserID(i % max(seeded, 1))
	switch i % 4 {
	case 0:
		return types.OperationRecord{
			ID:        fmt.Sprintf("user-%d", i),
			Embedding: embedding(i),
			Document:  document("user document %d", i),
			Operation: types.OperationAdd,
		}
	case 1:
		flag := types.BoolValue(true)
		return types.OperationRecord{
			ID:        target,
			Metadata:  types.UpdateMetadata{"updated": &flag, "seq": nil},
			Operation: types.OperationUpdate,
		}
	case 2:
		score := types.FloatValue(float64(i) / 10)
		return types.OperationRecord{
			ID:        target,
			Embedding: embedding(i),
			Document:  document("upserted document %d", i),
			Metadata:  types.UpdateMetadata{"score": &score},
			Operation: types.OperationUpsert,
		}
	default:
		return types.OperationRecord{
			ID:        target,
			Operation: types.OperationDelete,
		}
	}
}

// newLimiter returns a limiter allowing logRate records per second, a
// non-positive rate is unlimited.
func newLimiter(logRate float64) *rate.Limiter {
	if logRate <= 0 || math.IsInf(logRate, 1) {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(logRate), 1)
}

// generateLogs writes n synthetic operations to out, paced by limiter, and
// closes out.
func generateLogs(
	ctx context.Context, n, seeded int, limiter *rate.Limiter, out chan<- types.OperationRecord,
) error {
	defer close(out)
	for i := 0; i < n; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return errors.Trace(err)
		}
		select {
		case out <- syntheticRecord(i, seeded):
		case <-ctx.Done():
			return errors.Trace(ctx.Err())
		}
	}
	return nil
}
