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

package util

import (
	"math"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

const memoryMax uint64 = math.MaxUint64

// MemoryStats is the memory usage of the host measured against the memory
// limit of the process.
type MemoryStats struct {
	Limit uint64 `json:"limit"`
	Used  uint64 `json:"used"`
	// UsedPercent is Used in percent of Limit.
	UsedPercent float64 `json:"used_percent"`
}

// Exceeds returns true if the used memory is at least percent of the limit.
func (s MemoryStats) Exceeds(percent float64) bool {
	return s.UsedPercent >= percent
}

// GetMemoryLimit gets the memory limit of the process from its cgroup.
// The total memory of the host is returned if there is no cgroup limit.
func GetMemoryLimit() (uint64, error) {
	limit, err := memlimit.FromCgroup()
	if err == nil && limit != memoryMax {
		return limit, nil
	}
	log.Info("no cgroup memory limit, fall back to host memory", zap.Error(err))
	stat, err := mem.VirtualMemory()
	if err != nil {
		return 0, errors.Trace(err)
	}
	return stat.Total, nil
}

// GetMemoryStats measures the used memory of the host against limit.
// A zero limit is replaced by the total memory of the host.
func GetMemoryStats(limit uint64) (MemoryStats, error) {
	stat, err := mem.VirtualMemory()
	if err != nil {
		return MemoryStats{}, errors.Trace(err)
	}
	if limit == 0 {
		limit = stat.Total
	}
	stats := MemoryStats{Limit: limit, Used: stat.Used}
	if limit > 0 {
		stats.UsedPercent = float64(stat.Used) / float64(limit) * 100
	}
	return stats, nil
}
