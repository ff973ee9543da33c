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

	"github.com/pingcap/log"
	"github.com/pingcap/vecflow/pkg/system"
	"github.com/pingcap/vecflow/pkg/types"
	"go.uber.org/zap"
)

// logBuffer is a component assigning log offsets to the operations it
// receives and buffering them until they are drained.
type logBuffer struct {
	queueSize  int
	nextOffset int64
	logs       []types.LogRecord
}

var _ system.Component = (*logBuffer)(nil)

func newLogBuffer(queueSize int, lastOffset int64) *logBuffer {
	return &logBuffer{queueSize: queueSize, nextOffset: lastOffset + 1}
}

func (b *logBuffer) Name() string                { return "log-buffer" }
func (b *logBuffer) QueueSize() int              { return b.queueSize }
func (b *logBuffer) Placement() system.Placement { return system.PlacementInherit }

func (b *logBuffer) OnHandlerPanic(panicValue any) {
	log.Error("log buffer handler panicked", zap.String("panic", system.PanicMessage(panicValue)))
}

func (b *logBuffer) append(
	_ context.Context, record types.OperationRecord, _ *system.ComponentContext[*logBuffer],
) (struct{}, error) {
	b.logs = append(b.logs, types.LogRecord{LogOffset: b.nextOffset, Record: record})
	b.nextOffset++
	return struct{}{}, nil
}

// drain returns the buffered logs and empties the buffer.
func (b *logBuffer) drain(
	_ context.Context, _ struct{}, cctx *system.ComponentContext[*logBuffer],
) (*types.Chunk[types.LogRecord], error) {
	logs := b.logs
	b.logs = nil
	cctx.Logger().Debug("log buffer drained", zap.Int("logs", len(logs)))
	return types.NewChunk(logs), nil
}
