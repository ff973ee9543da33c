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
	"encoding/json"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	cerrors "github.com/pingcap/vecflow/pkg/errors"
	"github.com/pingcap/vecflow/pkg/logutil"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	defaultMetricsAddr    = "127.0.0.1:9464"
	defaultRequestTimeout = 30 * time.Second
)

var defaultWorkerConfig = &WorkerConfig{
	Log: &logutil.Config{
		Level: "info",
	},
	MetricsAddr:    defaultMetricsAddr,
	RequestTimeout: TomlDuration(defaultRequestTimeout),
	Dispatcher: &DispatcherConfig{
		NumWorkers: 4,
		QueueSize:  1000,
	},
	Materialize: &MaterializeConfig{
		ChunkSize:         100,
		OrchestratorQueue: 1000,
	},
}

// WorkerConfig represents the config of a vecflow worker.
type WorkerConfig struct {
	Log *logutil.Config `toml:"log" json:"log"`
	// MetricsAddr is the address prometheus metrics are served on,
	// leave empty to disable the metrics server.
	MetricsAddr    string       `toml:"metrics-addr" json:"metrics-addr"`
	RequestTimeout TomlDuration `toml:"request-timeout" json:"request-timeout"`

	Dispatcher  *DispatcherConfig  `toml:"dispatcher" json:"dispatcher"`
	Materialize *MaterializeConfig `toml:"materialize" json:"materialize"`
}

// GetDefaultWorkerConfig returns the default worker config.
func GetDefaultWorkerConfig() *WorkerConfig {
	return defaultWorkerConfig.Clone()
}

// Clone clones a worker config.
func (c *WorkerConfig) Clone() *WorkerConfig {
	str, err := json.Marshal(c)
	if err != nil {
		log.Panic("failed to marshal worker config", zap.Error(err))
	}
	clone := new(WorkerConfig)
	if err := json.Unmarshal(str, clone); err != nil {
		log.Panic("failed to unmarshal worker config", zap.Error(err))
	}
	return clone
}

// String implements fmt.Stringer.
func (c *WorkerConfig) String() string {
	str, err := json.Marshal(c)
	if err != nil {
		log.Error("failed to marshal worker config", zap.Error(err))
		return ""
	}
	return string(str)
}

// ValidateAndAdjust validates and adjusts the worker config. All invalid
// fields are reported at once.
func (c *WorkerConfig) ValidateAndAdjust() error {
	if c.Log == nil {
		c.Log = &logutil.Config{}
	}
	c.Log.Adjust()
	if c.Dispatcher == nil {
		c.Dispatcher = defaultWorkerConfig.Dispatcher.clone()
	}
	if c.Materialize == nil {
		c.Materialize = defaultWorkerConfig.Materialize.clone()
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = TomlDuration(defaultRequestTimeout)
	}

	var err error
	if c.RequestTimeout < 0 {
		err = multierr.Append(err, cerrors.ErrInvalidWorkerOption.GenWithStackByArgs(
			"request-timeout must not be negative"))
	}
	err = multierr.Append(err, c.Dispatcher.ValidateAndAdjust())
	err = multierr.Append(err, c.Materialize.ValidateAndAdjust())
	return err
}

// TomlDuration is a time.Duration decoded from strings like "10s".
type TomlDuration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *TomlDuration) UnmarshalText(text []byte) error {
	du, err := time.ParseDuration(string(text))
	if err != nil {
		return cerrors.ErrInvalidConfig.GenWithStackByArgs(errors.Annotate(err, "invalid duration").Error())
	}
	*d = TomlDuration(du)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d TomlDuration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Duration returns d as time.Duration.
func (d TomlDuration) Duration() time.Duration {
	return time.Duration(d)
}
