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

// Package system implements components, units of exclusively owned state
// driven by messages.
//
// A component is started with StartComponent and is reachable only through
// its ComponentHandle. Messages are queued in a bounded mailbox and handled
// one at a time by the executor of the component, so handlers never need
// locks to access component state.
//
// A handler binds one message type to a component type:
//
//	type counter struct{ sum int }
//
//	func (c *counter) add(ctx context.Context, n int, cctx *system.ComponentContext[*counter]) (int, error) {
//		c.sum += n
//		return c.sum, nil
//	}
//
//	h, _ := system.StartComponent(sys, &counter{})
//	sum, err := system.Request(ctx, h, (*counter).add, 1, time.Second)
//
// A panicking handler does not kill its component. The panic is reported to
// OnHandlerPanic and the requester receives ErrHandlerPanic.
package system
