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

package httputil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pingcap/vecflow/pkg/leakutil"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	leakutil.SetUpLeakTest(m)
}

func runServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		//nolint:errcheck
		w.Write([]byte(`{"id": "value", "count": 3}`))
	})
	mux.HandleFunc("/create", func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("X-Test") != "yes" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
		//nolint:errcheck
		w.Write([]byte(`created`))
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		//nolint:errcheck
		w.Write([]byte(`boom`))
	})
	return httptest.NewServer(mux)
}

func TestStatusCodeCreated(t *testing.T) {
	server := runServer()
	defer server.Close()
	cli := NewClient(time.Second)
	defer cli.CloseIdleConnections()

	respBody, err := cli.DoRequest(context.Background(), server.URL+"/create",
		http.MethodPost, http.Header{"X-Test": []string{"yes"}}, nil)
	require.NoError(t, err)
	require.Equal(t, []byte(`created`), respBody)
}

func TestGetJSON(t *testing.T) {
	server := runServer()
	defer server.Close()
	cli := NewClient(time.Second)
	defer cli.CloseIdleConnections()

	var status struct {
		ID    string `json:"id"`
		Count int    `json:"count"`
	}
	require.Nil(t, cli.GetJSON(context.Background(), server.URL+"/status", &status))
	require.Equal(t, "value", status.ID)
	require.Equal(t, 3, status.Count)

	err := cli.GetJSON(context.Background(), server.URL+"/broken", &status)
	require.Regexp(t, `\[500\] boom`, err)
}
