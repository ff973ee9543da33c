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

	"github.com/fatih/color"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/pingcap/vecflow/pkg/cmd/util"
	"github.com/pingcap/vecflow/pkg/config"
	cerrors "github.com/pingcap/vecflow/pkg/errors"
	"github.com/pingcap/vecflow/pkg/uuid"
	"github.com/pingcap/vecflow/pkg/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const (
	defaultRecords = 1000
	// maxRecords keeps the in-memory demo collection small.
	maxRecords = 1_000_000
)

// options defines flags for the `worker` command.
type options struct {
	workerConfigFilePath string
	records              int
	logRate              float64
	serve                bool

	workerConfig *config.WorkerConfig
}

// newOptions creates new options for the `worker` command.
func newOptions() *options {
	return &options{
		workerConfig: config.GetDefaultWorkerConfig(),
	}
}

// addFlags receives a *cobra.Command reference and binds
// flags related to template printing to it.
func (o *options) addFlags(cmd *cobra.Command) {
	defaultWorkerConfig := config.GetDefaultWorkerConfig()
	cmd.Flags().StringVar(&o.workerConfig.Log.File, "log-file", defaultWorkerConfig.Log.File, "log file path")
	cmd.Flags().StringVar(&o.workerConfig.Log.Level, "log-level", defaultWorkerConfig.Log.Level, "log level (etc: debug|info|warn|error)")
	cmd.Flags().StringVar(&o.workerConfig.MetricsAddr, "metrics-addr", defaultWorkerConfig.MetricsAddr, "Set the address serving metrics and the status API, empty to disable")
	cmd.Flags().IntVar(&o.workerConfig.Dispatcher.NumWorkers, "dispatcher-workers", defaultWorkerConfig.Dispatcher.NumWorkers, "number of goroutines running operator tasks")
	cmd.Flags().IntVar(&o.workerConfig.Materialize.ChunkSize, "chunk-size", defaultWorkerConfig.Materialize.ChunkSize, "max number of logs materialized by one task")

	cmd.Flags().IntVar(&o.records, "records", defaultRecords, "number of records seeded into the collection and of synthetic log operations")
	cmd.Flags().Float64Var(&o.logRate, "log-rate", 0, "synthetic log operations per second, 0 for unlimited")
	cmd.Flags().BoolVar(&o.serve, "serve", false, "keep serving the status API after the materialization finishes")
	cmd.Flags().StringVar(&o.workerConfigFilePath, "config", "", "Path of the configuration file")
}

// complete loads the config file and applies the flags set on the command line.
func (o *options) complete(cmd *cobra.Command) error {
	conf := config.GetDefaultWorkerConfig()
	if len(o.workerConfigFilePath) > 0 {
		if err := util.StrictDecodeFile(o.workerConfigFilePath, "vecflow worker", conf); err != nil {
			return err
		}
	}
	cmd.Flags().Visit(func(flag *pflag.Flag) {
		switch flag.Name {
		case "log-file":
			conf.Log.File = o.workerConfig.Log.File
		case "log-level":
			conf.Log.Level = o.workerConfig.Log.Level
		case "metrics-addr":
			conf.MetricsAddr = o.workerConfig.MetricsAddr
		case "dispatcher-workers":
			conf.Dispatcher.NumWorkers = o.workerConfig.Dispatcher.NumWorkers
		case "chunk-size":
			conf.Materialize.ChunkSize = o.workerConfig.Materialize.ChunkSize
		case "records", "log-rate", "serve", "config":
			// do nothing
		default:
			log.Panic("unknown flag, please report a bug", zap.String("flagName", flag.Name))
		}
	})
	if conf.MetricsAddr == "" {
		cmd.Printf(color.HiYellowString("[WARN] vecflow worker metrics-addr is not set. " +
			"Metrics and the status API are disabled.\n"))
	}
	if o.serve && conf.MetricsAddr == "" {
		cmd.Printf(color.HiYellowString("[WARN] --serve has no status API to keep serving.\n"))
	}
	o.workerConfig = conf
	return nil
}

// validate checks the options and adjusts the worker config.
func (o *options) validate() error {
	if err := o.workerConfig.ValidateAndAdjust(); err != nil {
		return errors.Trace(err)
	}
	if o.records < 0 || o.records > maxRecords {
		return cerrors.ErrInvalidWorkerOption.GenWithStackByArgs("records must be in [0, 1000000]")
	}
	if o.logRate < 0 {
		return cerrors.ErrInvalidWorkerOption.GenWithStackByArgs("log-rate must not be negative")
	}
	return nil
}

func (o *options) runOptions() *runOptions {
	return &runOptions{records: o.records, logRate: o.logRate, serve: o.serve}
}

func (o *options) run(cmd *cobra.Command) error {
	ctx, cancel := util.InitCmd(cmd, o.workerConfig.Log)
	defer cancel()
	version.LogVersionInfo()

	w := newWorker(o.workerConfig, uuid.NewGenerator())
	util.InitSignalHandling(func() <-chan struct{} {
		done := make(chan struct{})
		go func() {
			defer close(done)
			w.sys.Stop()
			if err := w.sys.Join(context.Background()); err != nil {
				log.Warn("failed to join components", zap.Error(err))
			}
		}()
		return done
	}, cancel)

	err := runWorker(ctx, cmd, w, o.runOptions())
	if err != nil && errors.Cause(err) != context.Canceled {
		log.Error("run worker", zap.String("error", errors.ErrorStack(err)))
		return errors.Annotate(err, "run worker")
	}
	log.Info("vecflow worker exits successfully")
	return nil
}

// runWorker runs one materialization on w and prints its summary. The
// components of w are stopped and joined before it returns.
func runWorker(ctx context.Context, cmd *cobra.Command, w *worker, opts *runOptions) (err error) {
	defer func() {
		if shutdownErr := w.shutdown(context.Background()); shutdownErr != nil && err == nil {
			err = shutdownErr
		}
	}()
	if err := w.start(); err != nil {
		return errors.Trace(err)
	}
	summary, err := w.materialize(ctx, opts)
	if err != nil {
		return errors.Trace(err)
	}
	if err := util.JSONPrint(cmd, summary); err != nil {
		return errors.Trace(err)
	}
	if opts.serve && w.statusServer != nil {
		log.Info("serving status API until shutdown")
		<-ctx.Done()
		return errors.Trace(ctx.Err())
	}
	return nil
}

// NewCmdWorker creates the `worker` command.
func NewCmdWorker() *cobra.Command {
	o := newOptions()

	command := &cobra.Command{
		Use:   "worker",
		Short: "Materialize a synthetic collection log on a vecflow component system",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.complete(cmd); err != nil {
				return err
			}
			if err := o.validate(); err != nil {
				return err
			}
			return o.run(cmd)
		},
	}
	o.addFlags(command)

	return command
}
