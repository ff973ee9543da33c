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

package actor

import (
	"context"
	"sync"

	"github.com/pingcap/errors"
	cerrors "github.com/pingcap/vecflow/pkg/errors"
)

var (
	errMailboxFull   = cerrors.ErrMailboxFull.FastGenByArgs()
	errMailboxClosed = cerrors.ErrMailboxClosed.FastGenByArgs()
)

// ID is ID for actors.
type ID uint64

// Mailbox is a bounded, ordered, multi-producer single-consumer queue
// feeding one actor.
// Mailbox is threadsafe.
type Mailbox[T any] interface {
	ID() ID
	// Send a message to its actor.
	// It's a non-blocking send, returns ErrMailboxFull when it's full.
	Send(msg T) error
	// SendB sends a message to its actor, blocks when it's full.
	// It may return context.Canceled, context.DeadlineExceeded or
	// ErrMailboxClosed.
	SendB(ctx context.Context, msg T) error

	// Receive tries to receive a message, it never blocks.
	Receive() (T, bool)
	// C returns the channel messages are received from.
	// It should only be used by the single consumer of the mailbox.
	C() <-chan T

	// Close closes the mailbox. Sends after close fail with
	// ErrMailboxClosed, messages already queued can still be received.
	Close()
	// Closed is closed once Close is called.
	Closed() <-chan struct{}

	// Len returns the number of queued messages.
	Len() int
	// Cap returns the capacity of the mailbox.
	Cap() int
}

// NewMailbox creates a fixed capacity mailbox.
func NewMailbox[T any](id ID, cap int) Mailbox[T] {
	return &mailbox[T]{
		id:     id,
		ch:     make(chan T, cap),
		closed: make(chan struct{}),
	}
}

var _ Mailbox[int] = (*mailbox[int])(nil)

type mailbox[T any] struct {
	id ID
	ch chan T

	closeOnce sync.Once
	closed    chan struct{}
}

func (m *mailbox[T]) ID() ID {
	return m.id
}

func (m *mailbox[T]) Send(msg T) error {
	select {
	case <-m.closed:
		return errMailboxClosed
	default:
	}
	select {
	case m.ch <- msg:
		return nil
	default:
		return errMailboxFull
	}
}

func (m *mailbox[T]) SendB(ctx context.Context, msg T) error {
	select {
	case <-m.closed:
		return errMailboxClosed
	default:
	}
	select {
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	case <-m.closed:
		return errMailboxClosed
	case m.ch <- msg:
		return nil
	}
}

func (m *mailbox[T]) Receive() (T, bool) {
	select {
	case msg := <-m.ch:
		return msg, true
	default:
	}
	var zero T
	return zero, false
}

func (m *mailbox[T]) C() <-chan T {
	return m.ch
}

func (m *mailbox[T]) Close() {
	m.closeOnce.Do(func() {
		close(m.closed)
	})
}

func (m *mailbox[T]) Closed() <-chan struct{} {
	return m.closed
}

func (m *mailbox[T]) Len() int {
	return len(m.ch)
}

func (m *mailbox[T]) Cap() int {
	return cap(m.ch)
}
