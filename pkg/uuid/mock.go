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

package uuid

import (
	guuid "github.com/google/uuid"
	"github.com/pingcap/log"
)

// MockGenerator returns the uuids pushed to it in FIFO order.
type MockGenerator struct {
	list []guuid.UUID
}

// NewMock creates a new MockGenerator instance
func NewMock() *MockGenerator {
	return &MockGenerator{}
}

// New implements Generator.New
func (g *MockGenerator) New() (ret guuid.UUID) {
	if len(g.list) == 0 {
		log.Panic("Empty uuid list. Please use Push() to add a uuid to the list.")
	}

	ret, g.list = g.list[0], g.list[1:]
	return
}

// Push adds a candidate uuid in FIFO list
func (g *MockGenerator) Push(uuids ...guuid.UUID) {
	g.list = append(g.list, uuids...)
}
