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
	"testing"

	"github.com/pingcap/errors"
	"github.com/stretchr/testify/require"
)

func TestIsComponentGone(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err      error
		expected bool
	}{
		{nil, false},
		{errors.New("test"), false},
		{ErrMailboxFull.FastGenByArgs(), false},
		{ErrMailboxClosed.FastGenByArgs(), true},
		{ErrComponentStopped.GenWithStackByArgs("counter"), true},
		{errors.Trace(ErrComponentStopped.GenWithStackByArgs("counter")), true},
		{ErrHandlerPanic.GenWithStackByArgs("counter", "boom"), false},
	}
	for _, c := range cases {
		require.Equal(t, c.expected, IsComponentGone(c.err), "%v", c.err)
	}
}

func TestIsRetryableError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err      error
		expected bool
	}{
		{nil, false},
		{errors.New("test"), true},
		{ErrAsyncPoolExited.GenWithStackByArgs(), true},
		{context.Canceled, false},
		{errors.Trace(context.DeadlineExceeded), false},
	}
	for _, c := range cases {
		require.Equal(t, c.expected, IsRetryableError(c.err), "%v", c.err)
	}
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	err := ErrHandlerPanic.GenWithStackByArgs("counter", "Invalid input")
	require.Contains(t, err.Error(), "VEC:ErrHandlerPanic")
	require.Contains(t, err.Error(), "handler of component counter panicked: Invalid input")
}

func TestRFCCode(t *testing.T) {
	t.Parallel()

	code, ok := RFCCode(errors.Trace(ErrComponentStopped.GenWithStackByArgs("counter")))
	require.True(t, ok)
	require.Equal(t, errors.RFCErrorCode("VEC:ErrComponentStopped"), code)

	_, ok = RFCCode(errors.New("test"))
	require.False(t, ok)
}
