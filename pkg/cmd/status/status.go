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

package status

import (
	"context"
	"fmt"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/vecflow/pkg/cmd/util"
	cerrors "github.com/pingcap/vecflow/pkg/errors"
	"github.com/pingcap/vecflow/pkg/httputil"
	"github.com/pingcap/vecflow/pkg/retry"
	"github.com/spf13/cobra"
)

const defaultTimeout = 5 * time.Second

// options defines flags for the `status` command.
type options struct {
	addr    string
	timeout time.Duration
	retries int64
}

// newOptions creates new options for the `status` command.
func newOptions() *options {
	return &options{}
}

// addFlags receives a *cobra.Command reference and binds
// flags related to template printing to it.
func (o *options) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.addr, "addr", "127.0.0.1:9464", "status address of the vecflow worker")
	cmd.Flags().DurationVar(&o.timeout, "timeout", defaultTimeout, "timeout of one status request")
	cmd.Flags().Int64Var(&o.retries, "retries", 3, "max number of attempts")
}

func (o *options) validate() error {
	if o.addr == "" {
		return cerrors.ErrInvalidWorkerOption.GenWithStackByArgs("empty status address")
	}
	if o.retries <= 0 {
		return cerrors.ErrInvalidWorkerOption.GenWithStackByArgs("retries must be positive")
	}
	return nil
}

// queryStatus fetches the status of the worker, retrying failed requests.
func (o *options) queryStatus(ctx context.Context) (map[string]any, error) {
	cli := httputil.NewClient(o.timeout)
	defer cli.CloseIdleConnections()
	url := fmt.Sprintf("http://%s/api/v1/status", o.addr)
	var status map[string]any
	err := retry.Do(ctx, func() error {
		return cli.GetJSON(ctx, url, &status)
	}, retry.WithBackoffBaseDelay(100*time.Millisecond),
		retry.WithBackoffMaxDelay(time.Second),
		retry.WithMaxTries(uint64(o.retries)),
		retry.WithIsRetryableErr(cerrors.IsRetryableError))
	if err != nil {
		return nil, errors.Annotatef(err, "query status of %s", o.addr)
	}
	return status, nil
}

func (o *options) run(cmd *cobra.Command) error {
	status, err := o.queryStatus(cmd.Context())
	if err != nil {
		return err
	}
	return util.JSONPrint(cmd, status)
}

// NewCmdStatus creates the `status` command.
func NewCmdStatus() *cobra.Command {
	o := newOptions()

	command := &cobra.Command{
		Use:   "status",
		Short: "Query the status of a running vecflow worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.validate(); err != nil {
				return err
			}
			return o.run(cmd)
		},
	}
	o.addFlags(command)

	return command
}
