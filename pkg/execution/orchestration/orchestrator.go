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
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/pingcap/vecflow/pkg/config"
	cerrors "github.com/pingcap/vecflow/pkg/errors"
	"github.com/pingcap/vecflow/pkg/execution/dispatcher"
	"github.com/pingcap/vecflow/pkg/execution/operators"
	"github.com/pingcap/vecflow/pkg/segment"
	"github.com/pingcap/vecflow/pkg/system"
	"github.com/pingcap/vecflow/pkg/types"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const componentName = "materialize-orchestrator"

// MaterializeResult is the outcome of a materialization.
type MaterializeResult struct {
	Records                    []*segment.MaterializedLogRecord
	CollectionLogicalSizeDelta int64
	NumTasks                   int
	Err                        error
}

type materializeOutput = dispatcher.TaskResult[*operators.MaterializeLogOutput]

// MaterializeOrchestrator is a component materializing the log of a
// collection. It partitions the log, dispatches one MaterializeLogOperator
// task per partition and collects their outputs. The result is delivered
// once on Result, then the orchestrator stops itself.
type MaterializeOrchestrator struct {
	queueSize  int
	dispatcher *system.ComponentHandle[*dispatcher.Dispatcher]
	provider   *segment.BlockfileProvider
	segment    *types.Segment
	logs       *types.Chunk[types.LogRecord]
	partitions []*types.Chunk[types.LogRecord]

	// tasks maps task ids to partition indexes.
	tasks   map[uuid.UUID]int
	outputs []*operators.MaterializeLogOutput
	pending int

	start    time.Time
	finished bool
	resultCh chan *MaterializeResult
}

var (
	_ system.Component                         = (*MaterializeOrchestrator)(nil)
	_ system.Starter[*MaterializeOrchestrator] = (*MaterializeOrchestrator)(nil)
	_ system.Stopper                           = (*MaterializeOrchestrator)(nil)
)

// NewMaterializeOrchestrator creates an orchestrator materializing logs
// against seg.
func NewMaterializeOrchestrator(
	cfg *config.MaterializeConfig,
	dispatcherHandle *system.ComponentHandle[*dispatcher.Dispatcher],
	provider *segment.BlockfileProvider,
	seg *types.Segment,
	logs *types.Chunk[types.LogRecord],
) *MaterializeOrchestrator {
	partitions := partitionLogs(logs, cfg.ChunkSize)
	// Every task result fits in the mailbox, so workers never block on
	// delivering them.
	queueSize := cfg.OrchestratorQueue
	if queueSize < len(partitions) {
		queueSize = len(partitions)
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &MaterializeOrchestrator{
		queueSize:  queueSize,
		dispatcher: dispatcherHandle,
		provider:   provider,
		segment:    seg,
		logs:       logs,
		partitions: partitions,
		tasks:      make(map[uuid.UUID]int),
		resultCh:   make(chan *MaterializeResult, 1),
	}
}

// Name implements system.Component.
func (o *MaterializeOrchestrator) Name() string { return componentName }

// QueueSize implements system.Component.
func (o *MaterializeOrchestrator) QueueSize() int { return o.queueSize }

// Placement implements system.Component.
func (o *MaterializeOrchestrator) Placement() system.Placement { return system.PlacementInherit }

// OnHandlerPanic implements system.Component.
func (o *MaterializeOrchestrator) OnHandlerPanic(panicValue any) {
	log.Error("orchestrator handler panicked",
		zap.Stringer("segment", o.segment.ID),
		zap.String("panic", system.PanicMessage(panicValue)))
}

// Result returns the channel the result is delivered on.
func (o *MaterializeOrchestrator) Result() <-chan *MaterializeResult {
	return o.resultCh
}

// OnStart dispatches the materialization tasks.
func (o *MaterializeOrchestrator) OnStart(
	ctx context.Context, cctx *system.ComponentContext[*MaterializeOrchestrator],
) {
	o.start = time.Now()
	reader, err := segment.NewRecordSegmentReader(ctx, o.segment, o.provider)
	var maxOffsetID uint32
	switch {
	case err == nil:
		maxOffsetID = reader.MaxOffsetID()
	case cerrors.ErrRecordSegmentUninitialized.Equal(err):
	default:
		o.finish(cctx, &MaterializeResult{Err: err})
		return
	}

	if len(o.partitions) == 0 {
		o.finish(cctx, &MaterializeResult{})
		return
	}
	offsetID := atomic.NewUint32(maxOffsetID)
	o.outputs = make([]*operators.MaterializeLogOutput, len(o.partitions))
	deliver := dispatcher.ReplyTo(cctx.Self(), (*MaterializeOrchestrator).onMaterializeOutput)
	operator := operators.NewMaterializeLogOperator()
	for i, partition := range o.partitions {
		task := dispatcher.NewTask[*operators.MaterializeLogInput, *operators.MaterializeLogOutput](
			operator, &operators.MaterializeLogInput{
				Logs:          partition,
				Provider:      o.provider,
				RecordSegment: o.segment,
				OffsetID:      offsetID,
			}, deliver)
		o.tasks[task.ID()] = i
		o.pending++
		if err := dispatcher.Submit(ctx, o.dispatcher, task); err != nil {
			o.finish(cctx, &MaterializeResult{Err: errors.Trace(err)})
			return
		}
	}
	cctx.Logger().Info("materialization tasks dispatched",
		zap.Stringer("segment", o.segment.ID),
		zap.Int("logs", o.logs.Len()),
		zap.Int("tasks", len(o.partitions)),
		zap.Uint32("maxOffsetID", maxOffsetID))
}

func (o *MaterializeOrchestrator) onMaterializeOutput(
	_ context.Context, result materializeOutput, cctx *system.ComponentContext[*MaterializeOrchestrator],
) (struct{}, error) {
	if o.finished {
		return struct{}{}, nil
	}
	i, ok := o.tasks[result.TaskID]
	if !ok {
		cctx.Logger().Warn("unknown task result", zap.Stringer("task", result.TaskID))
		return struct{}{}, nil
	}
	delete(o.tasks, result.TaskID)
	o.pending--
	if result.Err != nil {
		o.finish(cctx, &MaterializeResult{Err: result.Err})
		return struct{}{}, nil
	}
	o.outputs[i] = result.Output
	if o.pending > 0 {
		return struct{}{}, nil
	}

	aggregated := &MaterializeResult{NumTasks: len(o.outputs)}
	for _, output := range o.outputs {
		aggregated.Records = append(aggregated.Records, output.Result...)
		aggregated.CollectionLogicalSizeDelta += output.CollectionLogicalSizeDelta
	}
	o.finish(cctx, aggregated)
	return struct{}{}, nil
}

func (o *MaterializeOrchestrator) finish(
	cctx *system.ComponentContext[*MaterializeOrchestrator], result *MaterializeResult,
) {
	o.finished = true
	o.resultCh <- result
	fields := []zap.Field{
		zap.Stringer("segment", o.segment.ID),
		zap.Int("records", len(result.Records)),
		zap.Int64("sizeDelta", result.CollectionLogicalSizeDelta),
		zap.Duration("duration", time.Since(o.start)),
	}
	if result.Err != nil {
		cctx.Logger().Warn("materialization failed", append(fields, zap.Error(result.Err))...)
	} else {
		cctx.Logger().Info("materialization finished", fields...)
	}
	cctx.Self().Stop()
}

// OnStop delivers ErrComponentStopped if the orchestrator is stopped before
// it finished.
func (o *MaterializeOrchestrator) OnStop(_ context.Context) {
	if o.finished {
		return
	}
	o.finished = true
	o.resultCh <- &MaterializeResult{
		Err: cerrors.ErrComponentStopped.GenWithStackByArgs(componentName),
	}
}

// Materialize runs an orchestrator to completion and returns its result.
func Materialize(ctx context.Context, sys *system.System, o *MaterializeOrchestrator) (*MaterializeResult, error) {
	h, err := system.StartComponent(sys, o)
	if err != nil {
		return nil, errors.Trace(err)
	}
	select {
	case result := <-o.Result():
		if err := h.Join(ctx); err != nil {
			return nil, errors.Trace(err)
		}
		if result.Err != nil {
			return nil, result.Err
		}
		return result, nil
	case <-ctx.Done():
		h.Stop()
		return nil, errors.Trace(ctx.Err())
	}
}
