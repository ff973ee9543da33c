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

package errors

import (
	"context"

	"github.com/pingcap/errors"
)

// IsComponentGone returns true if the error means the target component
// can not process messages anymore.
func IsComponentGone(err error) bool {
	if err == nil {
		return false
	}
	return ErrMailboxClosed.Equal(err) || ErrComponentStopped.Equal(err)
}

// IsRetryableError checks the error is safe or worth to retry, eg. "context.Canceled" better not retry.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	switch errors.Cause(err) {
	case context.Canceled, context.DeadlineExceeded:
		return false
	}
	return true
}

// RFCCode returns the RFC code of a normalized error.
func RFCCode(err error) (errors.RFCErrorCode, bool) {
	type rfcCoder interface {
		RFCCode() errors.RFCErrorCode
	}
	if coder, ok := errors.Cause(err).(rfcCoder); ok {
		return coder.RFCCode(), true
	}
	return "", false
}
