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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	guuid "github.com/google/uuid"
	"github.com/phayes/freeport"
	"github.com/pingcap/errors"
	"github.com/pingcap/vecflow/pkg/config"
	"github.com/pingcap/vecflow/pkg/httputil"
	"github.com/pingcap/vecflow/pkg/leakutil"
	vecuuid "github.com/pingcap/vecflow/pkg/uuid"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	leakutil.SetUpLeakTest(m)
}

func TestCompleteWithFlags(t *testing.T) {
	cmd := new(cobra.Command)
	o := newOptions()
	o.addFlags(cmd)

	require.Nil(t, cmd.ParseFlags([]string{
		"--log-level=debug",
		"--metrics-addr=127.0.0.1:12345",
		"--dispatcher-workers=2",
		"--chunk-size=7",
		"--records=10",
		"--log-rate=100",
	}))
	require.Nil(t, o.complete(cmd))
	require.Nil(t, o.validate())
	require.Equal(t, "debug", o.workerConfig.Log.Level)
	require.Equal(t, "127.0.0.1:12345", o.workerConfig.MetricsAddr)
	require.Equal(t, 2, o.workerConfig.Dispatcher.NumWorkers)
	require.Equal(t, 7, o.workerConfig.Materialize.ChunkSize)
	require.Equal(t, &runOptions{records: 10, logRate: 100}, o.runOptions())
}

func TestCompleteWithConfigFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "vecflow.toml")
	configContent := `
metrics-addr = ""
request-timeout = "3s"

[dispatcher]
num-workers = 3

[materialize]
chunk-size = 20
`
	require.Nil(t, os.WriteFile(configPath, []byte(configContent), 0o644))

	cmd := new(cobra.Command)
	var out bytes.Buffer
	cmd.SetOut(&out)
	o := newOptions()
	o.addFlags(cmd)
	require.Nil(t, cmd.ParseFlags([]string{"--config=" + configPath, "--chunk-size=5"}))
	require.Nil(t, o.complete(cmd))
	require.Nil(t, o.validate())

	require.Equal(t, "", o.workerConfig.MetricsAddr)
	require.Equal(t, 3*time.Second, o.workerConfig.RequestTimeout.Duration())
	require.Equal(t, 3, o.workerConfig.Dispatcher.NumWorkers)
	// Flags take precedence over the config file.
	require.Equal(t, 5, o.workerConfig.Materialize.ChunkSize)
	require.Contains(t, out.String(), "metrics-addr is not set")
}

func TestValidateInvalidOptions(t *testing.T) {
	cases := []struct {
		args    []string
		message string
	}{
		{[]string{"--records=-1"}, "records must be in"},
		{[]string{"--log-rate=-2"}, "log-rate must not be negative"},
		{[]string{"--dispatcher-workers=0"}, ".*ErrInvalidWorkerOption.*"},
		{[]string{"--chunk-size=-1"}, ".*ErrInvalidWorkerOption.*"},
	}
	for _, c := range cases {
		cmd := new(cobra.Command)
		o := newOptions()
		o.addFlags(cmd)
		require.Nil(t, cmd.ParseFlags(c.args))
		require.Nil(t, o.complete(cmd))
		require.Regexp(t, c.message, o.validate(), "%v", c.args)
	}
}

func TestCompleteWithUnknownConfigItem(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "vecflow.toml")
	require.Nil(t, os.WriteFile(configPath, []byte(`unknown-item = 1`), 0o644))

	cmd := new(cobra.Command)
	o := newOptions()
	o.addFlags(cmd)
	require.Nil(t, cmd.ParseFlags([]string{"--config=" + configPath}))
	require.Regexp(t, "contained unknown configuration options: unknown-item", o.complete(cmd))
}

func newTestConfig(t *testing.T, withStatus bool) *config.WorkerConfig {
	conf := config.GetDefaultWorkerConfig()
	conf.MetricsAddr = ""
	if withStatus {
		port, err := freeport.GetFreePort()
		require.Nil(t, err)
		conf.MetricsAddr = fmt.Sprintf("127.0.0.1:%d", port)
	}
	conf.Dispatcher.NumWorkers = 2
	conf.Materialize.ChunkSize = 8
	require.Nil(t, conf.ValidateAndAdjust())
	return conf
}

func decodeSummary(t *testing.T, out *bytes.Buffer) *Summary {
	summary := &Summary{}
	require.Nil(t, json.Unmarshal(out.Bytes(), summary), out.String())
	return summary
}

func TestRunWorker(t *testing.T) {
	cmd := new(cobra.Command)
	var out bytes.Buffer
	cmd.SetOut(&out)

	w := newWorker(newTestConfig(t, false), vecuuid.NewGenerator())
	err := runWorker(context.Background(), cmd, w, &runOptions{records: 40})
	require.Nil(t, err)

	summary := decodeSummary(t, &out)
	require.Equal(t, 40, summary.SeededRecords)
	require.Equal(t, 40, summary.Logs)
	require.Equal(t, 40, summary.MaterializedRecords)
	require.Equal(t, map[string]int{
		"add-new":         10,
		"update-existing": 20,
		"delete-existing": 10,
	}, summary.Operations)
	require.Equal(t, 40, summary.RecordsAfterCompaction)
	require.GreaterOrEqual(t, summary.Tasks, 1)
	require.Greater(t, summary.ProcessedMessages, float64(0))
	require.Equal(t, humanizeDelta(summary.LogicalSizeDelta), summary.LogicalSizeDeltaHuman)
	require.Equal(t, 0, w.sys.Scheduler().Len())
}

func TestRunWorkerEmptyLog(t *testing.T) {
	cmd := new(cobra.Command)
	var out bytes.Buffer
	cmd.SetOut(&out)

	w := newWorker(newTestConfig(t, false), vecuuid.NewGenerator())
	require.Nil(t, runWorker(context.Background(), cmd, w, &runOptions{}))
	summary := decodeSummary(t, &out)
	require.Equal(t, 0, summary.Logs)
	require.Equal(t, 0, summary.Tasks)
	require.Equal(t, 0, summary.RecordsAfterCompaction)
	require.Equal(t, "+0 B", summary.LogicalSizeDeltaHuman)
}

func TestRunWorkerCanceled(t *testing.T) {
	cmd := new(cobra.Command)
	cmd.SetOut(&bytes.Buffer{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := newWorker(newTestConfig(t, false), vecuuid.NewGenerator())
	err := runWorker(ctx, cmd, w, &runOptions{records: 10, logRate: 1})
	require.Equal(t, context.Canceled, errors.Cause(err))
	require.Equal(t, 0, w.sys.Scheduler().Len())
}

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

func TestServeStatusAPI(t *testing.T) {
	cmd := new(cobra.Command)
	out := &syncBuffer{}
	cmd.SetOut(out)

	conf := newTestConfig(t, true)
	workerID, collectionID := guuid.New(), guuid.New()
	idGen := vecuuid.NewMock()
	idGen.Push(workerID, collectionID)
	w := newWorker(conf, idGen)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		errCh <- runWorker(ctx, cmd, w, &runOptions{records: 8, logRate: 1000, serve: true})
	}()

	cli := httputil.NewClient(time.Second)
	defer cli.CloseIdleConnections()
	baseURL := "http://" + conf.MetricsAddr
	var status Status
	require.Eventually(t, func() bool {
		return cli.GetJSON(ctx, baseURL+"/api/v1/status", &status) == nil
	}, 5*time.Second, 20*time.Millisecond)
	require.Equal(t, workerID.String(), status.ID)
	require.Contains(t, status.Components, "dispatcher")
	require.Greater(t, status.Memory.Limit, uint64(0))

	_, err := cli.DoRequest(ctx, baseURL+"/api/v1/health", http.MethodGet, nil, nil)
	require.Nil(t, err)
	metrics, err := cli.DoRequest(ctx, baseURL+"/metrics", http.MethodGet, nil, nil)
	require.Nil(t, err)
	require.Contains(t, string(metrics), "vecflow_component_number_of_running_components")

	// The summary is printed before the worker starts waiting for shutdown.
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), collectionID.String())
	}, 5*time.Second, 20*time.Millisecond)
	cancel()
	err = <-errCh
	require.Equal(t, context.Canceled, errors.Cause(err))
}
