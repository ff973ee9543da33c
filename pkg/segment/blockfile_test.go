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

package segment

import (
	"context"
	"testing"

	"github.com/google/uuid"
	cerrors "github.com/pingcap/vecflow/pkg/errors"
	"github.com/pingcap/vecflow/pkg/leakutil"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	leakutil.SetUpLeakTest(m)
}

func TestBlockfileWriteAndRead(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := NewBlockfileProvider()
	w := CreateBlockfileWriter[uint32, string](p)
	for i := uint32(10); i > 0; i-- {
		require.Nil(t, w.Set("a", i, "v"))
	}
	require.Nil(t, w.Set("b", 1, "other"))
	require.Nil(t, w.Delete("a", 5))

	// Not visible before commit.
	_, err := OpenBlockfileReader[uint32, string](ctx, p, w.ID())
	require.True(t, cerrors.ErrBlockfileNotFound.Equal(err), "%v", err)

	require.Nil(t, w.Commit())
	require.True(t, cerrors.ErrBlockfileCommitted.Equal(w.Set("a", 1, "x")))
	require.True(t, cerrors.ErrBlockfileCommitted.Equal(w.Commit()))
	require.Equal(t, 1, p.Len())

	r, err := OpenBlockfileReader[uint32, string](ctx, p, w.ID())
	require.Nil(t, err)
	require.Equal(t, 10, r.Count())
	v, ok := r.Get("b", 1)
	require.True(t, ok)
	require.Equal(t, "other", v)
	_, ok = r.Get("a", 5)
	require.False(t, ok)

	var keys []uint32
	r.Range("a", func(key uint32, _ string) bool {
		keys = append(keys, key)
		return true
	})
	require.Equal(t, []uint32{1, 2, 3, 4, 6, 7, 8, 9, 10}, keys)

	_, err = OpenBlockfileReader[string, string](ctx, p, w.ID())
	require.True(t, cerrors.ErrBlockfileTypeMismatch.Equal(err), "%v", err)
}

func TestBlockfileFork(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := NewBlockfileProvider()
	w := CreateBlockfileWriter[string, int](p)
	require.Nil(t, w.Set("", "k", 1))
	require.Nil(t, w.Commit())

	fork, err := ForkBlockfileWriter[string, int](ctx, p, w.ID())
	require.Nil(t, err)
	require.NotEqual(t, w.ID(), fork.ID())
	require.Nil(t, fork.Set("", "k", 2))
	require.Nil(t, fork.Set("", "l", 3))
	require.Nil(t, fork.Commit())

	old, err := OpenBlockfileReader[string, int](ctx, p, w.ID())
	require.Nil(t, err)
	v, _ := old.Get("", "k")
	require.Equal(t, 1, v)
	require.Equal(t, 1, old.Count())

	forked, err := OpenBlockfileReader[string, int](ctx, p, fork.ID())
	require.Nil(t, err)
	v, _ = forked.Get("", "k")
	require.Equal(t, 2, v)
	require.Equal(t, 2, forked.Count())

	_, err = ForkBlockfileWriter[string, int](ctx, p, uuid.New())
	require.True(t, cerrors.ErrBlockfileNotFound.Equal(err), "%v", err)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = OpenBlockfileReader[string, int](canceled, p, w.ID())
	require.Error(t, err)
}
