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

package retry

import (
	"time"
)

const (
	defaultBackoffBase = 10 * time.Millisecond
	defaultBackoffCap  = 100 * time.Millisecond
	defaultMaxTries    = 3
)

// Option configures Do.
type Option func(*retryOptions)

// IsRetryableErr checks the error is safe to retry or not, eg. "context.Canceled" better not retry
type IsRetryableErr func(error) bool

type retryOptions struct {
	// maxTries is 0 for infinite tries.
	maxTries    uint64
	backoffBase time.Duration
	backoffCap  time.Duration
	isRetryable IsRetryableErr
	onRetry     func(err error, backoff time.Duration)
}

func newRetryOptions() *retryOptions {
	return &retryOptions{
		maxTries:    defaultMaxTries,
		backoffBase: defaultBackoffBase,
		backoffCap:  defaultBackoffCap,
		isRetryable: func(err error) bool { return true },
	}
}

// WithBackoffBaseDelay configures the first backoff delay.
func WithBackoffBaseDelay(delay time.Duration) Option {
	return func(o *retryOptions) {
		if delay > 0 {
			o.backoffBase = delay
		}
	}
}

// WithBackoffMaxDelay configures the maximum backoff delay.
func WithBackoffMaxDelay(delay time.Duration) Option {
	return func(o *retryOptions) {
		if delay > 0 {
			o.backoffCap = delay
		}
	}
}

// WithMaxTries configures the maximum number of calls of the operation.
func WithMaxTries(tries uint64) Option {
	return func(o *retryOptions) {
		if tries > 0 {
			o.maxTries = tries
		}
	}
}

// WithInfiniteTries retries until success, a permanent error or ctx is done.
func WithInfiniteTries() Option {
	return func(o *retryOptions) {
		o.maxTries = 0
	}
}

// WithIsRetryableErr configures the error handler, if not set, retry by default
func WithIsRetryableErr(f IsRetryableErr) Option {
	return func(o *retryOptions) {
		if f != nil {
			o.isRetryable = f
		}
	}
}

// WithOnRetry registers a callback invoked before every backoff sleep.
func WithOnRetry(f func(err error, backoff time.Duration)) Option {
	return func(o *retryOptions) {
		o.onRetry = f
	}
}
