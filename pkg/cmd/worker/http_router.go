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
	"io"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	cerrors "github.com/pingcap/vecflow/pkg/errors"
	"github.com/pingcap/vecflow/pkg/execution/dispatcher"
	"github.com/pingcap/vecflow/pkg/promutil"
	vecutil "github.com/pingcap/vecflow/pkg/util"
	"github.com/pingcap/vecflow/pkg/version"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"
)

const (
	// maxHTTPConnection limits the concurrent connections of the status server.
	maxHTTPConnection     = 64
	httpConnectionTimeout = 10 * time.Second
)

// Status is the status of a worker.
type Status struct {
	Version    string              `json:"version"`
	GitHash    string              `json:"git_hash"`
	ID         string              `json:"id"`
	Pid        int                 `json:"pid"`
	Memory     vecutil.MemoryStats `json:"memory"`
	Components []string            `json:"components"`
	Dispatcher dispatcher.Stats    `json:"dispatcher"`
}

// HTTPError is the error returned by the status API.
type HTTPError struct {
	Error string `json:"error_msg"`
	Code  string `json:"error_code"`
}

func newHTTPError(err error) HTTPError {
	code, _ := cerrors.RFCCode(err)
	return HTTPError{Error: err.Error(), Code: string(code)}
}

// newRouter creates the router of the status API.
func newRouter(w *worker) *gin.Engine {
	// discard gin default log output
	gin.DefaultWriter = io.Discard

	router := gin.New()
	// add gin.Recovery() to handle unexpected panic
	router.Use(gin.Recovery())
	router.Use(timeoutMiddleware(httpConnectionTimeout))
	router.Use(errorHandleMiddleware())

	router.GET("/api/v1/status", w.serverStatus)
	router.GET("/api/v1/health", w.health)
	router.GET("/metrics", gin.WrapH(promutil.HTTPHandlerForMetric(w.registry)))

	// pprof debug API
	pprofGroup := router.Group("/debug/pprof")
	{
		pprofGroup.GET("", gin.WrapF(pprof.Index))
		pprofGroup.GET("/:any", gin.WrapF(pprof.Index))
		pprofGroup.GET("/cmdline", gin.WrapF(pprof.Cmdline))
		pprofGroup.GET("/profile", gin.WrapF(pprof.Profile))
		pprofGroup.GET("/symbol", gin.WrapF(pprof.Symbol))
		pprofGroup.GET("/trace", gin.WrapF(pprof.Trace))
	}
	return router
}

func (w *worker) serverStatus(c *gin.Context) {
	stats, err := dispatcher.QueryStats(c.Request.Context(), w.dispatcher, w.conf.RequestTimeout.Duration())
	if err != nil {
		_ = c.Error(err)
		return
	}
	memory, err := vecutil.GetMemoryStats(w.memoryLimit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.IndentedJSON(http.StatusOK, &Status{
		Version:    version.ReleaseVersion,
		GitHash:    version.GitHash,
		ID:         w.id.String(),
		Pid:        os.Getpid(),
		Memory:     memory,
		Components: w.sys.Scheduler().Names(),
		Dispatcher: stats,
	})
}

func (w *worker) health(c *gin.Context) {
	if w.dispatcher.IsStopped() {
		_ = c.Error(cerrors.ErrComponentStopped.GenWithStackByArgs(w.dispatcher.Name()))
		return
	}
	c.Status(http.StatusOK)
}

// timeoutMiddleware wraps the request context with a timeout
func timeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer func() {
			if ctx.Err() == context.DeadlineExceeded {
				c.Writer.WriteHeader(http.StatusGatewayTimeout)
				c.Abort()
			}
			cancel()
		}()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func errorHandleMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		// handlers return right after an error, there is only one error in c.Errors
		lastError := c.Errors.Last()
		if lastError == nil {
			return
		}
		err := lastError.Err
		if cerrors.IsComponentGone(err) {
			c.IndentedJSON(http.StatusServiceUnavailable, newHTTPError(err))
		} else {
			c.IndentedJSON(http.StatusInternalServerError, newHTTPError(err))
		}
		c.Abort()
	}
}

// startStatusHTTP serves the status API on lis until the server is shut down.
func (w *worker) startStatusHTTP(lis net.Listener) {
	lis = netutil.LimitListener(lis, maxHTTPConnection)
	w.statusServer = &http.Server{
		Handler:      newRouter(w),
		ReadTimeout:  httpConnectionTimeout,
		WriteTimeout: httpConnectionTimeout,
	}
	w.eg.Go(func() error {
		log.Info("status server is running", zap.Stringer("addr", lis.Addr()))
		err := w.statusServer.Serve(lis)
		if err != nil && err != http.ErrServerClosed {
			log.Error("status server error", zap.Error(err))
			return errors.Trace(err)
		}
		return nil
	})
}

func (w *worker) stopStatusHTTP(ctx context.Context) {
	if w.statusServer == nil {
		return
	}
	if err := w.statusServer.Shutdown(ctx); err != nil {
		log.Warn("failed to shut down status server", zap.Error(err))
	}
}
