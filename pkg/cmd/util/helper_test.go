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

package util

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/pingcap/vecflow/pkg/config"
	"github.com/pingcap/vecflow/pkg/leakutil"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	leakutil.SetUpLeakTest(m)
}

func TestStrictDecodeValidFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "vecflow.toml")
	configContent := `
metrics-addr = "127.0.0.1:9999"
request-timeout = "5s"

[log]
level = "warn"
file = "/tmp/vecflow.log"
max-size = 200
max-days = 1
max-backups = 1

[dispatcher]
num-workers = 8
queue-size = 64

[materialize]
chunk-size = 10
orchestrator-queue = 32
`
	err := os.WriteFile(configPath, []byte(configContent), 0o644)
	require.Nil(t, err)

	conf := config.GetDefaultWorkerConfig()
	err = StrictDecodeFile(configPath, "test", conf)
	require.Nil(t, err)
	require.Equal(t, "127.0.0.1:9999", conf.MetricsAddr)
	require.Equal(t, "warn", conf.Log.Level)
	require.Equal(t, 8, conf.Dispatcher.NumWorkers)
	require.Equal(t, 10, conf.Materialize.ChunkSize)
}

func TestStrictDecodeInvalidFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "vecflow.toml")
	configContent := `
unknown = "128.0.0.1:1234"

[log.unkown]
max-size = 200
max-days = 1
max-backups = 1
`
	err := os.WriteFile(configPath, []byte(configContent), 0o644)
	require.Nil(t, err)

	conf := config.GetDefaultWorkerConfig()
	err = StrictDecodeFile(configPath, "test", conf)
	require.Regexp(t, ".*contained unknown configuration options.*", err)

	// Ignored items are not reported.
	conf = config.GetDefaultWorkerConfig()
	err = StrictDecodeFile(configPath, "test", conf, "unknown", "log")
	require.Nil(t, err)
}

func TestJSONPrint(t *testing.T) {
	cmd := new(cobra.Command)
	var b bytes.Buffer
	cmd.SetOut(&b)

	require.Nil(t, JSONPrint(cmd, map[string]int{"records": 3}))
	require.Equal(t, "{\n  \"records\": 3\n}\n", b.String())
}
