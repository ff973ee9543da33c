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

package orchestration

import (
	"hash/fnv"

	"github.com/pingcap/vecflow/pkg/types"
)

// partitionLogs splits the visible records of logs into partitions of about
// chunkSize records. All records of one user id land in the same partition
// and keep their log order, so partitions can be materialized concurrently.
func partitionLogs(logs *types.Chunk[types.LogRecord], chunkSize int) []*types.Chunk[types.LogRecord] {
	if logs.Len() == 0 {
		return nil
	}
	n := 1
	if chunkSize > 0 {
		n = (logs.Len() + chunkSize - 1) / chunkSize
	}
	if n == 1 {
		return []*types.Chunk[types.LogRecord]{logs}
	}

	parts := make([][]types.LogRecord, n)
	logs.Each(func(_ int, record types.LogRecord) bool {
		h := fnv.New32a()
		_, _ = h.Write([]byte(record.Record.ID))
		i := int(h.Sum32() % uint32(n))
		parts[i] = append(parts[i], record)
		return true
	})

	chunks := make([]*types.Chunk[types.LogRecord], 0, n)
	for _, part := range parts {
		if len(part) > 0 {
			chunks = append(chunks, types.NewChunk(part))
		}
	}
	return chunks
}
