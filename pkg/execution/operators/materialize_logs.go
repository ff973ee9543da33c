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

package operators

import (
	"context"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	cerrors "github.com/pingcap/vecflow/pkg/errors"
	"github.com/pingcap/vecflow/pkg/segment"
	"github.com/pingcap/vecflow/pkg/system"
	"github.com/pingcap/vecflow/pkg/types"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// MaterializeLogOperatorName is the name of MaterializeLogOperator.
const MaterializeLogOperatorName = "MaterializeLogOperator"

// MaterializeLogInput is the input of MaterializeLogOperator.
type MaterializeLogInput struct {
	Logs          *types.Chunk[types.LogRecord]
	Provider      *segment.BlockfileProvider
	RecordSegment *types.Segment
	// OffsetID allocates offset ids of new records. It is shared by all
	// chunks of one materialization.
	OffsetID *atomic.Uint32
}

// MaterializeLogOutput is the output of MaterializeLogOperator.
type MaterializeLogOutput struct {
	Result []*segment.MaterializedLogRecord
	// CollectionLogicalSizeDelta is the change of the logical size of the
	// collection in bytes.
	CollectionLogicalSizeDelta int64
}

// MaterializeLogOperator materializes a chunk of logs against the record
// segment of a collection.
type MaterializeLogOperator struct{}

var _ system.Operator[*MaterializeLogInput, *MaterializeLogOutput] = (*MaterializeLogOperator)(nil)

// NewMaterializeLogOperator creates a MaterializeLogOperator.
func NewMaterializeLogOperator() *MaterializeLogOperator {
	return &MaterializeLogOperator{}
}

// Name implements system.Operator.
func (o *MaterializeLogOperator) Name() string {
	return MaterializeLogOperatorName
}

// Run implements system.Operator.
func (o *MaterializeLogOperator) Run(
	ctx context.Context, input *MaterializeLogInput,
) (*MaterializeLogOutput, error) {
	log.Debug("materializing log entries", zap.Int("count", input.Logs.TotalLen()))

	reader, err := segment.NewRecordSegmentReader(ctx, input.RecordSegment, input.Provider)
	if err != nil {
		if !cerrors.ErrRecordSegmentUninitialized.Equal(err) {
			log.Error("error creating record segment reader",
				zap.Stringer("segment", input.RecordSegment.ID), zap.Error(err))
			if cerrors.ErrRecordSegmentReaderCreation.Equal(err) {
				return nil, err
			}
			return nil, cerrors.ErrRecordSegmentReaderCreation.GenWithStackByArgs(err.Error())
		}
		// The record segment is not yet written to storage.
		reader = nil
	}

	result, err := segment.MaterializeLogs(ctx, reader, input.Logs, input.OffsetID)
	if err != nil {
		return nil, toMaterializationError(err)
	}

	var delta int64
	for _, record := range result {
		hydrated, err := record.Hydrate(ctx, reader)
		if err != nil {
			return nil, toMaterializationError(err)
		}
		delta += hydrated.ComputeLogicalSizeDeltaBytes()
	}
	return &MaterializeLogOutput{
		Result:                     result,
		CollectionLogicalSizeDelta: delta,
	}, nil
}

func toMaterializationError(err error) error {
	cause := errors.Cause(err)
	if cause == context.Canceled || cause == context.DeadlineExceeded ||
		cerrors.ErrLogMaterialization.Equal(err) {
		return err
	}
	return cerrors.ErrLogMaterialization.GenWithStackByArgs(err.Error())
}
