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

package types

// Chunk is an immutable batch of items with a visibility mask. Hidden items
// are skipped by readers but still count in TotalLen.
type Chunk[T any] struct {
	data       []T
	visibility []bool
	visible    int
}

// NewChunk creates a chunk where every item is visible. The chunk takes
// ownership of data.
func NewChunk[T any](data []T) *Chunk[T] {
	visibility := make([]bool, len(data))
	for i := range visibility {
		visibility[i] = true
	}
	return &Chunk[T]{data: data, visibility: visibility, visible: len(data)}
}

// TotalLen returns the number of items, visible or not.
func (c *Chunk[T]) TotalLen() int {
	return len(c.data)
}

// Len returns the number of visible items.
func (c *Chunk[T]) Len() int {
	return c.visible
}

// Get returns the item at index i and whether it is visible.
func (c *Chunk[T]) Get(i int) (T, bool) {
	return c.data[i], c.visibility[i]
}

// WithVisibility returns a chunk sharing the items of c with a new
// visibility mask.
func (c *Chunk[T]) WithVisibility(visibility []bool) *Chunk[T] {
	if len(visibility) != len(c.data) {
		panic("visibility mask length mismatch")
	}
	visible := 0
	for _, v := range visibility {
		if v {
			visible++
		}
	}
	return &Chunk[T]{
		data:       c.data,
		visibility: append([]bool(nil), visibility...),
		visible:    visible,
	}
}

// Each calls fn for every visible item in order, until fn returns false.
func (c *Chunk[T]) Each(fn func(i int, item T) bool) {
	for i, item := range c.data {
		if !c.visibility[i] {
			continue
		}
		if !fn(i, item) {
			return
		}
	}
}

// Split splits c into chunks of at most size items, keeping visibility.
func (c *Chunk[T]) Split(size int) []*Chunk[T] {
	if size <= 0 || len(c.data) <= size {
		return []*Chunk[T]{c}
	}
	chunks := make([]*Chunk[T], 0, (len(c.data)+size-1)/size)
	for start := 0; start < len(c.data); start += size {
		end := start + size
		if end > len(c.data) {
			end = len(c.data)
		}
		part := &Chunk[T]{
			data:       c.data[start:end:end],
			visibility: c.visibility[start:end:end],
		}
		for _, v := range part.visibility {
			if v {
				part.visible++
			}
		}
		chunks = append(chunks, part)
	}
	return chunks
}
