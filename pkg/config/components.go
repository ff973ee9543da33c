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

package config

import (
	cerrors "github.com/pingcap/vecflow/pkg/errors"
	"go.uber.org/multierr"
)

// DispatcherConfig configs the dispatcher component and its worker pool.
type DispatcherConfig struct {
	NumWorkers int `toml:"num-workers" json:"num-workers"`
	// QueueSize is the mailbox capacity of the dispatcher, it is also the
	// per worker capacity of the pool.
	QueueSize int `toml:"queue-size" json:"queue-size"`
}

func (c *DispatcherConfig) clone() *DispatcherConfig {
	clone := *c
	return &clone
}

// ValidateAndAdjust verifies that each parameter is valid.
func (c *DispatcherConfig) ValidateAndAdjust() error {
	var err error
	if c.NumWorkers <= 0 {
		err = multierr.Append(err, cerrors.ErrInvalidWorkerOption.GenWithStackByArgs(
			"dispatcher.num-workers must be larger than 0"))
	}
	if c.QueueSize <= 0 {
		err = multierr.Append(err, cerrors.ErrInvalidWorkerOption.GenWithStackByArgs(
			"dispatcher.queue-size must be larger than 0"))
	}
	return err
}

// MaterializeConfig configs log materialization.
type MaterializeConfig struct {
	// ChunkSize is the number of log records materialized by one task.
	ChunkSize int `toml:"chunk-size" json:"chunk-size"`
	// OrchestratorQueue is the mailbox capacity of the orchestrator.
	OrchestratorQueue int `toml:"orchestrator-queue" json:"orchestrator-queue"`
}

func (c *MaterializeConfig) clone() *MaterializeConfig {
	clone := *c
	return &clone
}

// ValidateAndAdjust verifies that each parameter is valid.
func (c *MaterializeConfig) ValidateAndAdjust() error {
	if c.OrchestratorQueue == 0 {
		c.OrchestratorQueue = defaultWorkerConfig.Materialize.OrchestratorQueue
	}
	var err error
	if c.ChunkSize <= 0 {
		err = multierr.Append(err, cerrors.ErrInvalidWorkerOption.GenWithStackByArgs(
			"materialize.chunk-size must be larger than 0"))
	}
	if c.OrchestratorQueue < 0 {
		err = multierr.Append(err, cerrors.ErrInvalidWorkerOption.GenWithStackByArgs(
			"materialize.orchestrator-queue must be larger than 0"))
	}
	return err
}
