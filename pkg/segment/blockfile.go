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
	"cmp"
	"context"
	"sync"

	"github.com/google/btree"
	"github.com/google/uuid"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	cerrors "github.com/pingcap/vecflow/pkg/errors"
	"go.uber.org/zap"
)

const btreeDegree = 32

type entry[K cmp.Ordered, V any] struct {
	prefix string
	key    K
	value  V
}

func lessEntry[K cmp.Ordered, V any](a, b entry[K, V]) bool {
	if a.prefix != b.prefix {
		return a.prefix < b.prefix
	}
	return a.key < b.key
}

// committedBlockfile is an immutable sorted map stored by a provider.
type committedBlockfile[K cmp.Ordered, V any] struct {
	id uuid.UUID
	// mu guards tree.Clone, which is not safe for concurrent use.
	mu   sync.Mutex
	tree *btree.BTreeG[entry[K, V]]
}

func (f *committedBlockfile[K, V]) clone() *btree.BTreeG[entry[K, V]] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tree.Clone()
}

// BlockfileProvider stores blockfiles in memory. Blockfiles are sorted maps
// from (prefix, key) to value. A committed blockfile never changes, writers
// fork it into a new blockfile instead.
type BlockfileProvider struct {
	mu    sync.RWMutex
	files map[uuid.UUID]any
}

// NewBlockfileProvider creates an empty provider.
func NewBlockfileProvider() *BlockfileProvider {
	return &BlockfileProvider{files: make(map[uuid.UUID]any)}
}

// Len returns the number of committed blockfiles.
func (p *BlockfileProvider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.files)
}

func (p *BlockfileProvider) commit(id uuid.UUID, file any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.files[id] = file
}

func lookup[K cmp.Ordered, V any](
	ctx context.Context, p *BlockfileProvider, id uuid.UUID,
) (*committedBlockfile[K, V], error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	p.mu.RLock()
	file, ok := p.files[id]
	p.mu.RUnlock()
	if !ok {
		return nil, cerrors.ErrBlockfileNotFound.GenWithStackByArgs(id)
	}
	typed, ok := file.(*committedBlockfile[K, V])
	if !ok {
		return nil, cerrors.ErrBlockfileTypeMismatch.GenWithStackByArgs(id)
	}
	return typed, nil
}

// BlockfileReader reads a snapshot of a committed blockfile. It is safe for
// concurrent use.
type BlockfileReader[K cmp.Ordered, V any] struct {
	id   uuid.UUID
	tree *btree.BTreeG[entry[K, V]]
}

// OpenBlockfileReader opens the committed blockfile id.
func OpenBlockfileReader[K cmp.Ordered, V any](
	ctx context.Context, p *BlockfileProvider, id uuid.UUID,
) (*BlockfileReader[K, V], error) {
	file, err := lookup[K, V](ctx, p, id)
	if err != nil {
		return nil, err
	}
	return &BlockfileReader[K, V]{id: id, tree: file.clone()}, nil
}

// ID returns the id of the blockfile.
func (r *BlockfileReader[K, V]) ID() uuid.UUID {
	return r.id
}

// Get returns the value of (prefix, key).
func (r *BlockfileReader[K, V]) Get(prefix string, key K) (V, bool) {
	e, ok := r.tree.Get(entry[K, V]{prefix: prefix, key: key})
	return e.value, ok
}

// Count returns the number of entries.
func (r *BlockfileReader[K, V]) Count() int {
	return r.tree.Len()
}

// Range calls fn for every entry of prefix in key order, until fn returns
// false.
func (r *BlockfileReader[K, V]) Range(prefix string, fn func(key K, value V) bool) {
	r.tree.AscendGreaterOrEqual(entry[K, V]{prefix: prefix}, func(e entry[K, V]) bool {
		if e.prefix != prefix {
			return false
		}
		return fn(e.key, e.value)
	})
}

// BlockfileWriter builds a new blockfile. It is not safe for concurrent use.
type BlockfileWriter[K cmp.Ordered, V any] struct {
	id        uuid.UUID
	provider  *BlockfileProvider
	tree      *btree.BTreeG[entry[K, V]]
	committed bool
}

// CreateBlockfileWriter creates a writer of an empty blockfile.
func CreateBlockfileWriter[K cmp.Ordered, V any](p *BlockfileProvider) *BlockfileWriter[K, V] {
	return &BlockfileWriter[K, V]{
		id:       uuid.New(),
		provider: p,
		tree:     btree.NewG[entry[K, V]](btreeDegree, lessEntry[K, V]),
	}
}

// ForkBlockfileWriter creates a writer of a new blockfile starting with the
// content of the committed blockfile id.
func ForkBlockfileWriter[K cmp.Ordered, V any](
	ctx context.Context, p *BlockfileProvider, id uuid.UUID,
) (*BlockfileWriter[K, V], error) {
	file, err := lookup[K, V](ctx, p, id)
	if err != nil {
		return nil, err
	}
	return &BlockfileWriter[K, V]{
		id:       uuid.New(),
		provider: p,
		tree:     file.clone(),
	}, nil
}

// ID returns the id the blockfile is committed with.
func (w *BlockfileWriter[K, V]) ID() uuid.UUID {
	return w.id
}

// Set sets the value of (prefix, key).
func (w *BlockfileWriter[K, V]) Set(prefix string, key K, value V) error {
	if w.committed {
		return cerrors.ErrBlockfileCommitted.GenWithStackByArgs(w.id)
	}
	w.tree.ReplaceOrInsert(entry[K, V]{prefix: prefix, key: key, value: value})
	return nil
}

// Delete deletes (prefix, key), it is a no-op if the key is absent.
func (w *BlockfileWriter[K, V]) Delete(prefix string, key K) error {
	if w.committed {
		return cerrors.ErrBlockfileCommitted.GenWithStackByArgs(w.id)
	}
	w.tree.Delete(entry[K, V]{prefix: prefix, key: key})
	return nil
}

// Commit makes the blockfile visible to readers. The writer can not be used
// afterwards.
func (w *BlockfileWriter[K, V]) Commit() error {
	if w.committed {
		return cerrors.ErrBlockfileCommitted.GenWithStackByArgs(w.id)
	}
	w.committed = true
	w.provider.commit(w.id, &committedBlockfile[K, V]{id: w.id, tree: w.tree})
	log.Debug("blockfile committed",
		zap.Stringer("id", w.id), zap.Int("entries", w.tree.Len()))
	return nil
}
