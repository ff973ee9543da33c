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
	"sync"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	cerrors "github.com/pingcap/vecflow/pkg/errors"
	"github.com/pingcap/vecflow/pkg/retry"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	backoffBaseDelay = time.Millisecond
	maxTries         = 25

	// DefaultQueueSize is the per worker capacity of submitted tasks.
	DefaultQueueSize = 1024
)

type defaultAsyncPoolImpl struct {
	name        string
	numWorkers  int
	queueSize   int
	workers     []*asyncWorker
	nextWorker  atomic.Int32
	isRunning   atomic.Bool
	runningLock sync.RWMutex

	succeeded prometheus.Counter
	panicked  prometheus.Counter
	pending   prometheus.Gauge
}

// NewDefaultAsyncPool creates a new AsyncPool that uses the default
// implementation. queueSize is the capacity of each worker.
func NewDefaultAsyncPool(name string, numWorkers, queueSize int) AsyncPool {
	return newDefaultAsyncPoolImpl(name, numWorkers, queueSize)
}

func newDefaultAsyncPoolImpl(name string, numWorkers, queueSize int) *defaultAsyncPoolImpl {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &defaultAsyncPoolImpl{
		name:       name,
		numWorkers: numWorkers,
		queueSize:  queueSize,
		workers:    make([]*asyncWorker, numWorkers),
		succeeded:  poolTaskCounter.WithLabelValues(name, "success"),
		panicked:   poolTaskCounter.WithLabelValues(name, "panic"),
		pending:    poolPendingGauge.WithLabelValues(name),
	}
}

func (p *defaultAsyncPoolImpl) Go(ctx context.Context, task Task) error {
	if p.doGo(ctx, task) == nil {
		return nil
	}

	err := retry.Do(ctx, func() error {
		return errors.Trace(p.doGo(ctx, task))
	}, retry.WithBackoffBaseDelay(backoffBaseDelay), retry.WithMaxTries(maxTries), retry.WithIsRetryableErr(isRetryable))
	return errors.Trace(err)
}

func isRetryable(err error) bool {
	return cerrors.IsRetryableError(err) && cerrors.ErrAsyncPoolExited.Equal(err)
}

func (p *defaultAsyncPoolImpl) doGo(ctx context.Context, task Task) error {
	p.runningLock.RLock()
	defer p.runningLock.RUnlock()

	if !p.isRunning.Load() {
		return cerrors.ErrAsyncPoolExited.GenWithStackByArgs()
	}

	worker := p.workers[int(p.nextWorker.Inc())%len(p.workers)]

	worker.chLock.RLock()
	defer worker.chLock.RUnlock()

	if worker.isClosed.Load() {
		return cerrors.ErrAsyncPoolExited.GenWithStackByArgs()
	}

	select {
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	case worker.inputCh <- task:
		p.pending.Inc()
	}
	return nil
}

func (p *defaultAsyncPoolImpl) Run(ctx context.Context) error {
	p.runningLock.Lock()
	for i := range p.workers {
		p.workers[i] = newAsyncWorker(p.queueSize)
	}
	p.isRunning.Store(true)
	p.runningLock.Unlock()

	defer func() {
		p.runningLock.Lock()
		p.isRunning.Store(false)
		p.runningLock.Unlock()
	}()

	log.Info("worker pool started",
		zap.String("pool", p.name), zap.Int("workers", p.numWorkers))
	errg, taskCtx := errgroup.WithContext(ctx)
	for _, worker := range p.workers {
		w := worker
		errg.Go(func() error {
			w.run(taskCtx, p)
			return nil
		})
	}
	errg.Go(func() error {
		<-ctx.Done()
		for _, worker := range p.workers {
			worker.close()
		}
		return ctx.Err()
	})

	err := errg.Wait()
	log.Info("worker pool exited", zap.String("pool", p.name), zap.Error(err))
	return errors.Trace(err)
}

func (p *defaultAsyncPoolImpl) Pending() int {
	p.runningLock.RLock()
	defer p.runningLock.RUnlock()
	n := 0
	for _, w := range p.workers {
		if w != nil {
			n += len(w.inputCh)
		}
	}
	return n
}

// runTask runs one task. A panicking task is logged and counted, it does not
// bring down the worker.
func (p *defaultAsyncPoolImpl) runTask(ctx context.Context, task Task) {
	p.pending.Dec()
	defer func() {
		if r := recover(); r != nil {
			log.Error("worker pool task panicked",
				zap.String("pool", p.name), zap.Any("panic", r), zap.Stack("stack"))
			p.panicked.Inc()
		}
	}()
	task(ctx)
	p.succeeded.Inc()
}

type asyncWorker struct {
	inputCh  chan Task
	isClosed atomic.Bool
	chLock   sync.RWMutex
}

func newAsyncWorker(queueSize int) *asyncWorker {
	return &asyncWorker{inputCh: make(chan Task, queueSize)}
}

// run drains the input channel, including the tasks queued before close.
func (w *asyncWorker) run(ctx context.Context, p *defaultAsyncPoolImpl) {
	for task := range w.inputCh {
		p.runTask(ctx, task)
	}
}

func (w *asyncWorker) close() {
	if w.isClosed.Swap(true) {
		return
	}

	w.chLock.Lock()
	defer w.chLock.Unlock()

	close(w.inputCh)
}
