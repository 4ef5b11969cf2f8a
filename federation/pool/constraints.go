// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pool implements C4, the in-memory Federation/FederationPool cache
// and the constraint-based best-fit matcher of §4.4.
package pool

import (
	"encoding/json"
	"strings"

	"github.com/c2h5oh/datasize"
)

// Tristate represents a constraint that may require, forbid, or ignore a
// property, matching §4.4.2's gpu/infiniband tri-state match semantics.
type Tristate int

// Tristate values.
const (
	TristateIgnore Tristate = iota
	TristateRequire
	TristateForbid
)

// Variance implements §4.4.2's schedulable_variance semantics for
// cores.amount/memory.amount: 0 means exact equality, a nil pointer means
// no upper bound, and a positive value allows amount*(1+v) as the upper
// bound.
type Variance struct {
	Amount   float64
	Variance *float64 // nil: unbounded upper; non-nil, 0: exact match
}

// MemoryVariance is a Variance whose wire amount is given in §4.4.2's
// suffixed memory notation (a bare number of bytes, or a string with a
// B/K/G/T suffix) and normalized to MB on unmarshal.
type MemoryVariance struct {
	Variance
}

// UnmarshalJSON normalizes amount via datasize.ByteSize, the same
// suffix-parsing type the teacher's metainfogen config uses for piece
// lengths.
func (m *MemoryVariance) UnmarshalJSON(b []byte) error {
	var raw struct {
		Amount   datasize.ByteSize `json:"amount"`
		Variance *float64          `json:"variance"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	m.Amount = float64(raw.Amount) / float64(datasize.MB)
	m.Variance.Variance = raw.Variance
	return nil
}

// Satisfies reports whether value falls within v's allowed range.
func (v Variance) Satisfies(value float64) bool {
	if value < v.Amount {
		return false
	}
	if v.Variance == nil {
		return true
	}
	if *v.Variance == 0 {
		return value == v.Amount
	}
	return value <= v.Amount*(1+*v.Variance)
}

// RegistryKey returns the key naming one container registry login a pool or
// task constraint may reference, keyed as "<server>-<username>" with dockerhub substituted
// for an empty server, per §4.4.3.
func RegistryKey(server, username string) string {
	if server == "" {
		server = "dockerhub"
	}
	return server + "-" + username
}

// PoolConstraints is §4.4.2's pool-level constraint set.
type PoolConstraints struct {
	Location                       string
	VirtualNetworkARMID            string
	CustomImageARMID                string
	Windows                         Tristate
	Native                          Tristate
	AutoscaleAllow                  bool
	AutoscaleExclusive              bool
	LowPriorityNodesAllow           bool
	LowPriorityNodesExclusive       bool
	Registries                      []string
	MaxActiveTaskBacklogRatio       *float64
	MaxActiveTaskBacklogAutoscaleExempt bool
}

// NodeConstraints is §4.4.2's compute-node constraint set.
type NodeConstraints struct {
	VMSize      string
	Cores       *Variance
	MemoryMB    *MemoryVariance
	Exclusive   bool
	GPU         Tristate
	Infiniband  Tristate
}

// TaskConstraints is §4.4.2's task-level constraint set.
type TaskConstraints struct {
	HasMultiInstance     bool
	HasTaskDependencies  bool
	AutoComplete         bool
	InstanceCountsMax    int
	InstanceCountsTotal  int
	TasksPerRecurrence   int
	MergeTaskID          string
}

// Constraints bundles all three constraint levels for one submission, per
// §3's Constraints entity.
type Constraints struct {
	Pool PoolConstraints
	Node NodeConstraints
	Task TaskConstraints
}

// rdmaInstances and rdmaInstanceSuffixes are carried unchanged from the
// original implementation's `_RDMA_INSTANCES`/`_RDMA_INSTANCE_SUFFIXES`
// constant sets (§9 supplemented features): VM sizes with an Infiniband
// fabric, used by both the infiniband tri-state filter and the IB fix-up
// of §4.4.6.
var rdmaInstances = map[string]bool{
	"standard_a8":   true,
	"standard_a9":   true,
	"standard_h16r": true,
	"standard_h16mr": true,
}

var rdmaInstanceSuffixes = []string{"r", "rs", "rs_v2", "rs_v3"}

// gpuInstancePrefixes is carried unchanged from the original's
// `_GPU_INSTANCE_PREFIXES` (§9 supplemented features): VM-size family
// prefixes that carry a GPU.
var gpuInstancePrefixes = []string{
	"standard_nc", "standard_nd", "standard_nv",
}

// IsRDMAVMSize reports whether vmSize carries an Infiniband fabric, per the
// RDMA instance/suffix constant sets.
func IsRDMAVMSize(vmSize string) bool {
	lower := strings.ToLower(vmSize)
	if rdmaInstances[lower] {
		return true
	}
	for _, suffix := range rdmaInstanceSuffixes {
		if strings.HasSuffix(lower, "_"+suffix) || strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// IsGPUVMSize reports whether vmSize belongs to a GPU-carrying family.
func IsGPUVMSize(vmSize string) bool {
	lower := strings.ToLower(vmSize)
	for _, prefix := range gpuInstancePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// vmSizeSpec carries one VM size's cores and memory (MB).
type vmSizeSpec struct {
	Cores    float64
	MemoryMB float64
}

// vmSizeSpecs is a VM-size→(cores,memoryMB) table covering the RDMA/GPU
// families above plus the general-purpose families most pools use,
// mirroring the original's resolution of these properties through the
// compute-management API (§9 supplemented features).
var vmSizeSpecs = map[string]vmSizeSpec{
	"standard_a8":     {Cores: 8, MemoryMB: 56 * 1024},
	"standard_a9":     {Cores: 16, MemoryMB: 112 * 1024},
	"standard_h16r":   {Cores: 16, MemoryMB: 112 * 1024},
	"standard_h16mr":  {Cores: 16, MemoryMB: 225 * 1024},
	"standard_d1_v2":  {Cores: 1, MemoryMB: 3584},
	"standard_d2_v2":  {Cores: 2, MemoryMB: 7 * 1024},
	"standard_d2_v3":  {Cores: 2, MemoryMB: 8 * 1024},
	"standard_d4_v3":  {Cores: 4, MemoryMB: 16 * 1024},
	"standard_d8_v3":  {Cores: 8, MemoryMB: 32 * 1024},
	"standard_d16_v3": {Cores: 16, MemoryMB: 64 * 1024},
	"standard_e2_v3":  {Cores: 2, MemoryMB: 16 * 1024},
	"standard_e4_v3":  {Cores: 4, MemoryMB: 32 * 1024},
	"standard_e8_v3":  {Cores: 8, MemoryMB: 64 * 1024},
	"standard_nc6":    {Cores: 6, MemoryMB: 56 * 1024},
	"standard_nc12":   {Cores: 12, MemoryMB: 112 * 1024},
	"standard_nc24":   {Cores: 24, MemoryMB: 224 * 1024},
}

// VMSizeCoresMemoryMB returns vmSize's cores and memory (MB) from the
// static table above. ok is false for an unrecognized VM size.
func VMSizeCoresMemoryMB(vmSize string) (cores, memoryMB float64, ok bool) {
	spec, ok := vmSizeSpecs[strings.ToLower(vmSize)]
	return spec.Cores, spec.MemoryMB, ok
}

func tristateMatch(t Tristate, actual bool) bool {
	switch t {
	case TristateRequire:
		return actual
	case TristateForbid:
		return !actual
	default:
		return true
	}
}
