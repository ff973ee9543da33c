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
	"net"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/pingcap/vecflow/pkg/actor"
	"github.com/pingcap/vecflow/pkg/config"
	"github.com/pingcap/vecflow/pkg/execution/dispatcher"
	"github.com/pingcap/vecflow/pkg/execution/orchestration"
	"github.com/pingcap/vecflow/pkg/promutil"
	"github.com/pingcap/vecflow/pkg/segment"
	"github.com/pingcap/vecflow/pkg/system"
	"github.com/pingcap/vecflow/pkg/types"
	vecutil "github.com/pingcap/vecflow/pkg/util"
	vecuuid "github.com/pingcap/vecflow/pkg/uuid"
	"github.com/pingcap/vecflow/pkg/workerpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	processedMessagesMetric = "vecflow_component_processed_messages_total"
	logStreamBuffer         = 128
	// memoryWarnPercent is the memory usage a worker warns about at start.
	memoryWarnPercent = 90
)

// Summary describes one materialization run of a worker.
type Summary struct {
	Collection             string         `json:"collection"`
	Segment                string         `json:"segment"`
	SeededRecords          int            `json:"seeded-records"`
	Logs                   int            `json:"logs"`
	Tasks                  int            `json:"tasks"`
	MaterializedRecords    int            `json:"materialized-records"`
	Operations             map[string]int `json:"operations"`
	LogicalSizeDelta       int64          `json:"logical-size-delta"`
	LogicalSizeDeltaHuman  string         `json:"logical-size-delta-human"`
	RecordsAfterCompaction int            `json:"records-after-compaction"`
	ProcessedMessages      float64        `json:"processed-messages"`
	Duration               string         `json:"duration"`
}

// runOptions are the parameters of one worker run that are not part of
// the worker config.
type runOptions struct {
	records int
	logRate float64
	// serve keeps the status server running after the summary is printed
	// until ctx is done.
	serve bool
}

type worker struct {
	id       uuid.UUID
	idGen    vecuuid.Generator
	conf     *config.WorkerConfig
	registry *prometheus.Registry
	sys      *system.System
	provider *segment.BlockfileProvider
	// memoryLimit is 0 if it is unknown.
	memoryLimit uint64

	dispatcher   *system.ComponentHandle[*dispatcher.Dispatcher]
	statusServer *http.Server
	eg           *errgroup.Group
}

func newWorker(conf *config.WorkerConfig, idGen vecuuid.Generator) *worker {
	registry := promutil.NewRegistry()
	actor.InitMetrics(registry)
	workerpool.InitMetrics(registry)
	dispatcher.InitMetrics(registry)
	return &worker{
		id:       idGen.New(),
		idGen:    idGen,
		conf:     conf,
		registry: registry,
		sys:      system.NewSystem(),
		provider: segment.NewBlockfileProvider(),
		eg:       &errgroup.Group{},
	}
}

// start starts the dispatcher and the status server.
func (w *worker) start() error {
	if limit, err := vecutil.GetMemoryLimit(); err != nil {
		log.Warn("failed to get memory limit", zap.Error(err))
	} else {
		w.memoryLimit = limit
		log.Info("worker memory limit", zap.String("limit", humanize.IBytes(limit)))
	}
	if stats, err := vecutil.GetMemoryStats(w.memoryLimit); err == nil && stats.Exceeds(memoryWarnPercent) {
		log.Warn("memory usage is high",
			zap.String("used", humanize.IBytes(stats.Used)),
			zap.Float64("usedPercent", stats.UsedPercent))
	}
	h, err := system.StartComponent(w.sys, dispatcher.NewDispatcher(w.conf.Dispatcher))
	if err != nil {
		return errors.Trace(err)
	}
	w.dispatcher = h
	if w.conf.MetricsAddr == "" {
		return nil
	}
	lis, err := net.Listen("tcp", w.conf.MetricsAddr)
	if err != nil {
		return errors.Annotate(err, "listen status address")
	}
	w.startStatusHTTP(lis)
	return nil
}

// shutdown stops every component and the status server, then waits for
// them to exit.
func (w *worker) shutdown(ctx context.Context) error {
	w.sys.Stop()
	w.stopStatusHTTP(ctx)
	joinErr := w.sys.Join(ctx)
	if err := w.eg.Wait(); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(joinErr)
}

// streamLogs streams n synthetic operations through a log buffer component
// and returns the buffered log.
func (w *worker) streamLogs(
	ctx context.Context, opts *runOptions, seeded int, lastOffset int64,
) (*types.Chunk[types.LogRecord], error) {
	h, err := system.StartComponent(w.sys, newLogBuffer(logStreamBuffer, lastOffset))
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer h.Stop()

	src := make(chan types.OperationRecord, logStreamBuffer)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return generateLogs(egCtx, opts.records, seeded, newLimiter(opts.logRate), src)
	})
	bridge := system.RegisterStream(h, (*logBuffer).append, src)
	if err := eg.Wait(); err != nil {
		return nil, errors.Trace(err)
	}
	if err := bridge.Wait(ctx); err != nil {
		return nil, errors.Trace(err)
	}
	logs, err := system.Request(ctx, h, (*logBuffer).drain, struct{}{}, w.conf.RequestTimeout.Duration())
	if err != nil {
		return nil, errors.Trace(err)
	}
	log.Info("synthetic log streamed",
		zap.Int64("forwarded", bridge.Forwarded()),
		zap.Int("logs", logs.Len()))
	return logs, nil
}

// materialize seeds a collection, streams a synthetic log, materializes it
// with the orchestrator and compacts it into the segment.
func (w *worker) materialize(ctx context.Context, opts *runOptions) (*Summary, error) {
	start := time.Now()
	collection := w.idGen.New()
	seg := types.NewRecordSegment(collection)

	seeded := opts.records
	if _, err := segment.CompactLogs(ctx, seg, w.provider, seedLogs(seeded)); err != nil {
		return nil, errors.Trace(err)
	}
	logs, err := w.streamLogs(ctx, opts, seeded, int64(seeded))
	if err != nil {
		return nil, errors.Trace(err)
	}

	orchestrator := orchestration.NewMaterializeOrchestrator(
		w.conf.Materialize, w.dispatcher, w.provider, seg, logs)
	result, err := orchestration.Materialize(ctx, w.sys, orchestrator)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if _, err := segment.CompactLogs(ctx, seg, w.provider, logs); err != nil {
		return nil, errors.Trace(err)
	}
	reader, err := segment.NewRecordSegmentReader(ctx, seg, w.provider)
	if err != nil {
		return nil, errors.Trace(err)
	}
	processed, err := promutil.SumCounter(w.registry, processedMessagesMetric)
	if err != nil {
		return nil, errors.Trace(err)
	}

	operations := make(map[string]int)
	for _, record := range result.Records {
		operations[record.Operation().String()]++
	}
	return &Summary{
		Collection:             collection.String(),
		Segment:                seg.ID.String(),
		SeededRecords:          seeded,
		Logs:                   logs.Len(),
		Tasks:                  result.NumTasks,
		MaterializedRecords:    len(result.Records),
		Operations:             operations,
		LogicalSizeDelta:       result.CollectionLogicalSizeDelta,
		LogicalSizeDeltaHuman:  humanizeDelta(result.CollectionLogicalSizeDelta),
		RecordsAfterCompaction: reader.Count(),
		ProcessedMessages:      processed,
		Duration:               time.Since(start).String(),
	}, nil
}

func humanizeDelta(delta int64) string {
	if delta < 0 {
		return fmt.Sprintf("-%s", humanize.IBytes(uint64(-delta)))
	}
	return fmt.Sprintf("+%s", humanize.IBytes(uint64(delta)))
}
