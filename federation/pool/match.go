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
package pool

import (
	"errors"
	"sort"
	"strings"

	"github.com/Azure/batch-shipyard-go/federation/batchclient"
)

// ErrNoCandidate is returned by Match when every scope of §4.4.5 is
// exhausted without finding a placement.
var ErrNoCandidate = errors.New("no candidate pool satisfies constraints")

// filterResult classifies why a pool failed the hard filter, per §4.4.3:
// failures on pool-intrinsic attributes blacklist the pool for the
// remainder of the action; failures on transient counts do not.
type filterResult struct {
	OK        bool
	Blacklist bool
	Reason    string
}

func pass() filterResult { return filterResult{OK: true} }

func failBlacklist(reason string) filterResult {
	return filterResult{OK: false, Blacklist: true, Reason: reason}
}

func failTransient(reason string) filterResult {
	return filterResult{OK: false, Reason: reason}
}

// HardFilter applies §4.4.3's ordered hard filter to p. Checks run in the
// documented order and short-circuit on the first failure.
func HardFilter(p *FederationPool, c Constraints) filterResult {
	snap, fresh := p.Snapshot()
	if !fresh || snap == nil {
		return failTransient("snapshot not cached")
	}

	if c.Pool.Location != "" && !strings.EqualFold(c.Pool.Location, p.Location) {
		return failBlacklist("location mismatch")
	}
	if c.Pool.VirtualNetworkARMID != "" && c.Pool.VirtualNetworkARMID != snap.VirtualNetworkARMID {
		return failBlacklist("virtual network mismatch")
	}
	if c.Pool.CustomImageARMID != "" && c.Pool.CustomImageARMID != snap.CustomImageARMID {
		return failBlacklist("custom image mismatch")
	}
	if !tristateMatch(c.Pool.Windows, snap.IsWindows) {
		return failBlacklist("windows mismatch")
	}
	if !tristateMatch(c.Pool.Native, p.IsNativeContainerPool()) {
		return failBlacklist("native mismatch")
	}
	if c.Pool.AutoscaleExclusive && !snap.EnableAutoScale {
		return failBlacklist("autoscale exclusive but pool is not autoscale")
	}
	if !c.Pool.AutoscaleAllow && snap.EnableAutoScale {
		return failBlacklist("autoscale not allowed")
	}
	if c.Pool.LowPriorityNodesExclusive && snap.TargetDedicatedNodes > 0 {
		return failBlacklist("low priority exclusive but pool has dedicated nodes")
	}
	if !c.Pool.LowPriorityNodesAllow && snap.TargetLowPriorityNodes > 0 {
		return failBlacklist("low priority nodes not allowed")
	}
	if c.Node.Exclusive && snap.MaxTasksPerNode != 1 {
		return failBlacklist("exclusive requires max_tasks_per_node=1")
	}
	if c.Node.VMSize != "" && !strings.EqualFold(c.Node.VMSize, snap.VMSize) {
		return failBlacklist("vm size mismatch")
	}
	if !tristateMatch(c.Node.GPU, IsGPUVMSize(snap.VMSize)) {
		return failBlacklist("gpu mismatch")
	}
	if !tristateMatch(c.Node.Infiniband, IsRDMAVMSize(snap.VMSize)) {
		return failBlacklist("infiniband mismatch")
	}
	if c.Node.Cores != nil {
		cores, _, ok := resolveVMSizeSpec(snap)
		if !ok || !c.Node.Cores.Satisfies(cores) {
			return failBlacklist("cores mismatch")
		}
	}
	if c.Node.MemoryMB != nil {
		_, memoryMB, ok := resolveVMSizeSpec(snap)
		if !ok || !c.Node.MemoryMB.Satisfies(memoryMB) {
			return failBlacklist("memory mismatch")
		}
	}
	if c.Task.HasMultiInstance && !hasInterNodeCommunication(snap) {
		return failBlacklist("multi-instance requires inter-node communication")
	}
	if len(c.Pool.Registries) > 0 && !registriesSatisfy(snap, c.Pool.Registries) {
		return failBlacklist("registry mismatch")
	}
	return pass()
}

// hasInterNodeCommunication is conservative: the cached PoolSnapshot does
// not carry a dedicated flag, so multi-instance eligibility is inferred
// from the pool not being single-task-per-node-constrained in a way that
// forbids it. Real enforcement happens at task-submission time against the
// job/task spec; this hard filter only rejects pools that can never host
// a multi-instance task (Windows pools, currently).
func hasInterNodeCommunication(snap *batchclient.PoolSnapshot) bool {
	return !snap.IsWindows
}

// resolveVMSizeSpec prefers the cores/memory the snapshot was decoded
// with and falls back to the static VM-size table when the cloud batch
// service response didn't carry them.
func resolveVMSizeSpec(snap *batchclient.PoolSnapshot) (cores, memoryMB float64, ok bool) {
	if snap.Cores > 0 || snap.MemoryMB > 0 {
		return snap.Cores, snap.MemoryMB, true
	}
	return VMSizeCoresMemoryMB(snap.VMSize)
}

func registriesSatisfy(snap *batchclient.PoolSnapshot, want []string) bool {
	available := make(map[string]bool)
	for _, r := range snap.ContainerRegistries {
		available[RegistryKey(r.Server, r.Username)] = true
	}
	for server, username := range snap.LoginEnvironment {
		available[RegistryKey(server, username)] = true
	}
	for _, w := range want {
		if !available[w] {
			return false
		}
	}
	return true
}

// NodeFilter applies §4.4.4's node filter: rejects a pool if the
// constraint bars all available node flavours, or if the pool's active
// task backlog ratio exceeds the configured maximum.
func NodeFilter(p *FederationPool, c Constraints) filterResult {
	snap, fresh := p.Snapshot()
	if !fresh || snap == nil {
		return failTransient("snapshot not cached")
	}
	counts, countsFresh := p.NodeCounts()
	if !countsFresh || counts == nil {
		return failTransient("node counts not cached")
	}

	dedicatedAvailable := counts.Dedicated.Available() > 0 || snap.EnableAutoScale
	lowPriorityAvailable := counts.LowPriority.Available() > 0 || snap.EnableAutoScale

	if c.Pool.LowPriorityNodesExclusive && !lowPriorityAvailable {
		return failTransient("no low priority nodes available")
	}
	if !c.Pool.LowPriorityNodesAllow && !dedicatedAvailable {
		return failTransient("no dedicated nodes available")
	}

	if c.Pool.MaxActiveTaskBacklogRatio != nil {
		slots := schedulableSlots(snap, counts)
		var ratio float64
		if slots == 0 {
			if snap.EnableAutoScale && c.Pool.MaxActiveTaskBacklogAutoscaleExempt {
				ratio = 0
			} else {
				return failTransient("no schedulable slots")
			}
		} else {
			active, fresh := p.ActiveTasks()
			if !fresh {
				return failTransient("active task count not cached")
			}
			ratio = float64(active) / float64(slots)
		}
		if ratio > *c.Pool.MaxActiveTaskBacklogRatio {
			return failTransient("active task backlog ratio exceeded")
		}
	}
	return pass()
}

func schedulableSlots(snap *batchclient.PoolSnapshot, counts *batchclient.PoolNodeCounts) int {
	nodes := counts.Dedicated.Schedulable() + counts.LowPriority.Schedulable()
	return nodes * maxInt(snap.MaxTasksPerNode, 1)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// bin is one scheduling axis's sorted pool→count mapping, per §4.4.5.
type bin struct {
	pool  *FederationPool
	count int
}

// binKind selects which axis a bin counts: vm-count vs slot-count, and
// idle-only vs idle+running (avail).
type binKind struct {
	byVMs bool
	avail bool
}

func buildBins(pools []*FederationPool, kind binKind, dedicated, lowPriority bool) []bin {
	var bins []bin
	for _, p := range pools {
		snap, fresh := p.Snapshot()
		if !fresh || snap == nil {
			continue
		}
		counts, countsFresh := p.NodeCounts()
		if !countsFresh || counts == nil {
			continue
		}

		var nodes int
		if dedicated {
			nodes += nodeCount(counts.Dedicated, kind.avail)
		}
		if lowPriority {
			nodes += nodeCount(counts.LowPriority, kind.avail)
		}

		count := nodes
		if !kind.byVMs {
			count = nodes * maxInt(snap.MaxTasksPerNode, 1)
		}
		if count > 0 {
			bins = append(bins, bin{pool: p, count: count})
		}
	}
	sort.Slice(bins, func(i, j int) bool { return bins[i].count > bins[j].count })
	return bins
}

func nodeCount(c batchclient.NodeCounts, avail bool) int {
	if avail {
		return c.Available()
	}
	return c.Idle
}

// Match implements §4.4.5's greedy best-fit selection over pools that have
// already survived HardFilter and NodeFilter. numTasks is either the
// number of task-equivalent-VMs (multi-instance) or total task slots
// (regular jobs); byVMs selects which axis to bin on.
func Match(pools []*FederationPool, c Constraints, numTasks int, byVMs bool) (*FederationPool, error) {
	dedicated := !c.Pool.LowPriorityNodesExclusive
	lowPriority := c.Pool.LowPriorityNodesAllow || c.Pool.LowPriorityNodesExclusive

	kind := binKind{byVMs: byVMs, avail: false}
	if best := pickFitting(buildBins(pools, kind, dedicated, lowPriority), numTasks); best != nil {
		return best, nil
	}

	kind.avail = true
	if best := pickFitting(buildBins(pools, kind, dedicated, lowPriority), numTasks); best != nil {
		return best, nil
	}

	if best := pickAutoscaleSteady(pools, dedicated, lowPriority); best != nil {
		return best, nil
	}

	if !byVMs {
		if best := pickLargestNonEmpty(buildBins(pools, kind, dedicated, lowPriority)); best != nil {
			return best, nil
		}
	}

	return nil, ErrNoCandidate
}

// pickFitting returns the largest bin with count >= required, or nil.
func pickFitting(bins []bin, required int) *FederationPool {
	for _, b := range bins {
		if b.count >= required {
			return b.pool
		}
	}
	return nil
}

// pickLargestNonEmpty returns the pool in the largest non-empty bin
// regardless of whether it satisfies required, accepting backlog per
// §4.4.5 step 5.
func pickLargestNonEmpty(bins []bin) *FederationPool {
	if len(bins) == 0 {
		return nil
	}
	return bins[0].pool
}

// pickAutoscaleSteady returns any autoscale-enabled pool not currently in
// blackout, accepting backlog per §4.4.5 step 4.
func pickAutoscaleSteady(pools []*FederationPool, dedicated, lowPriority bool) *FederationPool {
	for _, p := range pools {
		snap, fresh := p.Snapshot()
		if !fresh || snap == nil || !snap.EnableAutoScale {
			continue
		}
		if dedicated && snap.TargetDedicatedNodes > 0 {
			return p
		}
		if lowPriority && snap.TargetLowPriorityNodes > 0 {
			return p
		}
	}
	return nil
}
