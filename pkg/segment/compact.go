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

package segment

import (
	"context"

	"github.com/pingcap/errors"
	cerrors "github.com/pingcap/vecflow/pkg/errors"
	"github.com/pingcap/vecflow/pkg/types"
)

// CompactLogs materializes logs against segment, writes the result and
// updates the file paths of segment. It returns the change of the logical
// size of the collection.
func CompactLogs(
	ctx context.Context,
	segment *types.Segment,
	provider *BlockfileProvider,
	logs *types.Chunk[types.LogRecord],
) (int64, error) {
	reader, err := NewRecordSegmentReader(ctx, segment, provider)
	if err != nil {
		if !cerrors.ErrRecordSegmentUninitialized.Equal(err) {
			return 0, errors.Trace(err)
		}
		reader = nil
	}
	materialized, err := MaterializeLogs(ctx, reader, logs, nil)
	if err != nil {
		return 0, errors.Trace(err)
	}
	hydrated := make([]*HydratedMaterializedLogRecord, 0, len(materialized))
	var delta int64
	for _, record := range materialized {
		h, err := record.Hydrate(ctx, reader)
		if err != nil {
			return 0, errors.Trace(err)
		}
		delta += h.ComputeLogicalSizeDeltaBytes()
		hydrated = append(hydrated, h)
	}

	writer, err := NewRecordSegmentWriter(ctx, segment, provider)
	if err != nil {
		return 0, errors.Trace(err)
	}
	if err := writer.Apply(ctx, hydrated); err != nil {
		return 0, errors.Trace(err)
	}
	paths, err := writer.Commit()
	if err != nil {
		return 0, errors.Trace(err)
	}
	segment.FilePath = paths
	return delta, nil
}
