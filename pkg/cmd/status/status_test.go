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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pingcap/vecflow/pkg/leakutil"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestMain(m *testing.M) {
	leakutil.SetUpLeakTest(m)
}

func TestQueryStatusRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/api/v1/status" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if calls.Inc() < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		//nolint:errcheck
		w.Write([]byte(`{"id": "worker-1", "components": ["dispatcher"]}`))
	}))
	defer server.Close()

	o := newOptions()
	o.addr = strings.TrimPrefix(server.URL, "http://")
	o.timeout = time.Second
	o.retries = 3
	require.Nil(t, o.validate())

	status, err := o.queryStatus(context.Background())
	require.Nil(t, err)
	require.Equal(t, "worker-1", status["id"])
	require.Equal(t, int32(2), calls.Load())

	calls.Store(-10)
	o.retries = 2
	_, err = o.queryStatus(context.Background())
	require.Regexp(t, "query status of", err)
}

func TestValidate(t *testing.T) {
	cmd := new(cobra.Command)
	o := newOptions()
	o.addFlags(cmd)
	require.Nil(t, cmd.ParseFlags([]string{"--addr="}))
	require.Regexp(t, "empty status address", o.validate())

	require.Nil(t, cmd.ParseFlags([]string{"--addr=127.0.0.1:1", "--retries=0"}))
	require.Regexp(t, "retries must be positive", o.validate())
}
