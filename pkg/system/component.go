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

package system

import (
	"context"
	"fmt"
)

// Placement is where the executor loop of a component runs.
type Placement int

const (
	// PlacementInherit runs the executor as a goroutine on the shared Go
	// scheduler. It suits I/O bound components.
	PlacementInherit Placement = iota
	// PlacementDedicated runs the executor on its own OS thread. It suits
	// components whose handlers block or burn CPU.
	PlacementDedicated
)

func (p Placement) String() string {
	switch p {
	case PlacementInherit:
		return "inherit"
	case PlacementDedicated:
		return "dedicated"
	}
	return fmt.Sprintf("unknown(%d)", int(p))
}

// Component is a unit of exclusively owned state. It is only reachable
// through its mailbox, and all its handlers run one at a time on its
// executor.
type Component interface {
	// Name is used for diagnostics only, it needs not be unique.
	Name() string
	// QueueSize is the capacity of the mailbox, it must be positive.
	QueueSize() int
	// Placement is read once when the component starts.
	Placement() Placement
	// OnHandlerPanic is called on the executor after a handler panicked,
	// before the requester is notified. It must not panic itself, a panic
	// here crashes the process.
	OnHandlerPanic(panicValue any)
}

// Starter is implemented by components that need to run code on their
// executor before the first message is handled.
type Starter[C any] interface {
	OnStart(ctx context.Context, cctx *ComponentContext[C])
}

// Stopper is implemented by components that need to release resources
// after their executor loop has exited.
type Stopper interface {
	OnStop(ctx context.Context)
}

// PanicMessage extracts a readable message from a recovered panic value.
func PanicMessage(panicValue any) string {
	switch v := panicValue.(type) {
	case string:
		return v
	case error:
		return v.Error()
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprintf("%v", panicValue)
}
