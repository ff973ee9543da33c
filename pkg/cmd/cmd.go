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

package cmd

import (
	"github.com/pingcap/vecflow/pkg/cmd/status"
	"github.com/pingcap/vecflow/pkg/cmd/util"
	"github.com/pingcap/vecflow/pkg/cmd/version"
	"github.com/pingcap/vecflow/pkg/cmd/worker"
	"github.com/spf13/cobra"
)

// NewCmd creates the root command.
func NewCmd() *cobra.Command {
	return &cobra.Command{
		Use: "vecflow",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
}

// AddVecflowCommands adds all vecflow commands to cmd.
func AddVecflowCommands(cmd *cobra.Command) {
	cmd.AddCommand(worker.NewCmdWorker())
	cmd.AddCommand(status.NewCmdStatus())
	cmd.AddCommand(version.NewCmdVersion())
}

// Run runs the root command.
func Run() {
	cmd := NewCmd()

	cmd.SetOut(cmd.OutOrStdout())
	AddVecflowCommands(cmd)

	util.CheckErr(cmd.Execute())
}
