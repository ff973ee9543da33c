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

import "context"

// Task is a unit of work run by an AsyncPool. ctx is canceled once the pool
// stops running.
type Task func(ctx context.Context)

// AsyncPool is a goroutine pool where the order in which tasks run is
// non-deterministic.
type AsyncPool interface {
	// Go submits a task. ctx only bounds the submission.
	// Every task successfully submitted runs eventually, even if the pool is
	// stopped right after. Go retries for a while if the pool is not running.
	Go(ctx context.Context, task Task) error

	// Run runs the AsyncPool until ctx is done or a task fails the pool.
	// It can be called again after it returns.
	Run(ctx context.Context) error

	// Pending returns the number of submitted tasks not yet started.
	Pending() int
}
