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
	"sort"
	"sync"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/pingcap/vecflow/pkg/actor"
	"go.uber.org/zap"
)

// Scheduler is the registry of all running components of a System.
// It does not schedule work inside components, it only coordinates stopping
// and joining them.
type Scheduler struct {
	mu         sync.Mutex
	components map[actor.ID]*registration
}

type registration struct {
	name string
	stop func()
	done <-chan struct{}
}

func newScheduler() *Scheduler {
	return &Scheduler{
		components: make(map[actor.ID]*registration),
	}
}

func (s *Scheduler) register(id actor.ID, name string, stop func(), done <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.components[id]; ok {
		log.Panic("component registered twice",
			zap.Uint64("id", uint64(id)), zap.String("name", name))
	}
	s.components[id] = &registration{name: name, stop: stop, done: done}
}

func (s *Scheduler) deregister(id actor.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.components, id)
}

func (s *Scheduler) snapshot() []*registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	regs := make([]*registration, 0, len(s.components))
	for _, r := range s.components {
		regs = append(regs, r)
	}
	return regs
}

// Stop triggers cancellation of every registered component.
// It does not wait, use Join for that.
func (s *Scheduler) Stop() {
	regs := s.snapshot()
	for _, r := range regs {
		r.stop()
	}
	log.Info("stop all components", zap.Int("count", len(regs)))
}

// Join blocks until every registered component is stopped, including the
// ones started while joining, or until ctx is done.
func (s *Scheduler) Join(ctx context.Context) error {
	for {
		regs := s.snapshot()
		if len(regs) == 0 {
			return nil
		}
		for _, r := range regs {
			select {
			case <-r.done:
			case <-ctx.Done():
				return errors.Trace(ctx.Err())
			}
		}
	}
}

// Len returns the number of running components.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.components)
}

// Names returns the sorted names of running components.
func (s *Scheduler) Names() []string {
	regs := s.snapshot()
	names := make([]string, 0, len(regs))
	for _, r := range regs {
		names = append(names, r.name)
	}
	sort.Strings(names)
	return names
}
