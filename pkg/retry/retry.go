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
	"context"

	"github.com/cenkalti/backoff/v4"
	"github.com/pingcap/errors"
)

// Operation is the action that needs to be retried.
type Operation func() error

// Do executes the operation until it succeeds, the error is not retryable,
// the max tries are exhausted or ctx is done. The last error of the
// operation is returned.
func Do(ctx context.Context, operation Operation, opts ...Option) error {
	retryOption := newRetryOptions()
	for _, opt := range opts {
		opt(retryOption)
	}
	return run(ctx, operation, retryOption)
}

func run(ctx context.Context, op Operation, retryOption *retryOptions) error {
	select {
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	default:
	}

	var b backoff.BackOff = newExponentialBackoff(retryOption)
	if retryOption.maxTries > 0 {
		b = backoff.WithMaxRetries(b, retryOption.maxTries-1)
	}
	b = backoff.WithContext(b, ctx)

	wrapped := func() error {
		err := op()
		if err != nil && !retryOption.isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	var notify backoff.Notify
	if retryOption.onRetry != nil {
		notify = retryOption.onRetry
	}
	return errors.Trace(backoff.RetryNotify(wrapped, b, notify))
}

func newExponentialBackoff(retryOption *retryOptions) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryOption.backoffBase
	b.MaxInterval = retryOption.backoffCap
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	// Bounded by tries and ctx only.
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
