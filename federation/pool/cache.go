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
	"sync"
	"time"

	"github.com/Azure/batch-shipyard-go/federation/batchclient"
	"github.com/andres-erbsen/clock"
)

// Cache TTLs and the blackout interval, per §4.4.1.
const (
	snapshotTTL         = 60 * time.Second
	nodeCountsTTL        = 10 * time.Second
	activeTasksTTL       = 20 * time.Second
	defaultBlackoutInterval = 15 * time.Second
)

// ttlValue caches one value with a time-to-live, hard-invalidated on demand
// (§4.4.1's "hard invalidate on task scheduling"), grounded on the
// refresh-on-read idiom tracker/peerstore's local store uses for its own
// in-memory TTL entries.
type ttlValue[T any] struct {
	mu        sync.RWMutex
	value     T
	fetchedAt time.Time
	ttl       time.Duration
	clk       clock.Clock
}

func newTTLValue[T any](ttl time.Duration, clk clock.Clock) *ttlValue[T] {
	return &ttlValue[T]{ttl: ttl, clk: clk}
}

// Get returns the cached value and whether it is still fresh.
func (t *ttlValue[T]) Get() (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	fresh := !t.fetchedAt.IsZero() && t.clk.Now().Sub(t.fetchedAt) < t.ttl
	return t.value, fresh
}

// Set overwrites the cached value and resets its freshness window.
func (t *ttlValue[T]) Set(v T) {
	t.mu.Lock()
	t.value = v
	t.fetchedAt = t.clk.Now()
	t.mu.Unlock()
}

// Invalidate forces the next Get to report stale, per §4.4.1's hard
// invalidation on task scheduling.
func (t *ttlValue[T]) Invalidate() {
	t.mu.Lock()
	t.fetchedAt = time.Time{}
	t.mu.Unlock()
}

// FederationPool is one pool's cached cloud-batch state plus scheduling
// metadata, per §3's FederationPool entity.
type FederationPool struct {
	BatchAccount string
	ServiceURL   string
	Location     string
	PoolID       string

	snapshot    *ttlValue[*batchclient.PoolSnapshot]
	nodeCounts  *ttlValue[*batchclient.PoolNodeCounts]
	activeTasks *ttlValue[int]

	mu            sync.Mutex
	blackoutUntil time.Time
	clk           clock.Clock
}

// NewFederationPool constructs a FederationPool with empty caches.
func NewFederationPool(batchAccount, serviceURL, location, poolID string, clk clock.Clock) *FederationPool {
	return &FederationPool{
		BatchAccount: batchAccount,
		ServiceURL:   serviceURL,
		Location:     location,
		PoolID:       poolID,
		snapshot:     newTTLValue[*batchclient.PoolSnapshot](snapshotTTL, clk),
		nodeCounts:   newTTLValue[*batchclient.PoolNodeCounts](nodeCountsTTL, clk),
		activeTasks:  newTTLValue[int](activeTasksTTL, clk),
		clk:          clk,
	}
}

// Snapshot returns the cached pool snapshot and whether it is fresh.
func (p *FederationPool) Snapshot() (*batchclient.PoolSnapshot, bool) { return p.snapshot.Get() }

// SetSnapshot updates the cached pool snapshot.
func (p *FederationPool) SetSnapshot(s *batchclient.PoolSnapshot) { p.snapshot.Set(s) }

// NodeCounts returns the cached node counts and whether they are fresh.
func (p *FederationPool) NodeCounts() (*batchclient.PoolNodeCounts, bool) { return p.nodeCounts.Get() }

// SetNodeCounts updates the cached node counts.
func (p *FederationPool) SetNodeCounts(c *batchclient.PoolNodeCounts) { p.nodeCounts.Set(c) }

// ActiveTasks returns the cached active task count and whether it is fresh.
func (p *FederationPool) ActiveTasks() (int, bool) { return p.activeTasks.Get() }

// SetActiveTasks updates the cached active task count.
func (p *FederationPool) SetActiveTasks(n int) { p.activeTasks.Set(n) }

// InvalidateCounts hard-invalidates node counts and active tasks after a
// successful task schedule, per §4.4.1.
func (p *FederationPool) InvalidateCounts() {
	p.nodeCounts.Invalidate()
	p.activeTasks.Invalidate()
}

// EnterBlackout marks the pool unschedulable for interval, per §4.4.1's
// post-schedule blackout window.
func (p *FederationPool) EnterBlackout(interval time.Duration) {
	if interval == 0 {
		interval = defaultBlackoutInterval
	}
	p.mu.Lock()
	p.blackoutUntil = p.clk.Now().Add(interval)
	p.mu.Unlock()
}

// InBlackout reports whether the pool is currently inside its scheduling
// blackout window.
func (p *FederationPool) InBlackout() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clk.Now().Before(p.blackoutUntil)
}

// Valid reports whether the pool is a legal placement target, per §3:
// snapshot known, VM properties known, not in blackout, state Active.
func (p *FederationPool) Valid() bool {
	snap, fresh := p.Snapshot()
	if !fresh || snap == nil {
		return false
	}
	if snap.VMSize == "" {
		return false
	}
	if p.InBlackout() {
		return false
	}
	return snap.State == batchclient.PoolStateActive
}

// NativeContainerPoolMetadataKey is the pool metadata flag name carried
// unchanged from the original implementation, per §9 supplemented
// features.
const NativeContainerPoolMetadataKey = "BATCH_SHIPYARD_NATIVE_CONTAINER_POOL"

// IsNativeContainerPool reports whether the pool's cached metadata carries
// the BATCH_SHIPYARD_NATIVE_CONTAINER_POOL flag.
func (p *FederationPool) IsNativeContainerPool() bool {
	snap, fresh := p.Snapshot()
	if !fresh || snap == nil {
		return false
	}
	return snap.Metadata[NativeContainerPoolMetadataKey] == "1"
}

// Federation is a concurrency-safe in-memory cache of a federation's member
// pools, keyed by pool hash, per §4.4's Federation cache.
type Federation struct {
	mu    sync.RWMutex
	hash  string
	id    string
	pools map[string]*FederationPool
}

// NewFederation constructs an empty Federation cache.
func NewFederation(id, hash string) *Federation {
	return &Federation{id: id, hash: hash, pools: make(map[string]*FederationPool)}
}

// ID returns the federation's id.
func (f *Federation) ID() string { return f.id }

// Hash returns the federation's SHA1 hash.
func (f *Federation) Hash() string { return f.hash }

// Pool returns the cached pool at poolHash, or nil.
func (f *Federation) Pool(poolHash string) *FederationPool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.pools[poolHash]
}

// SetPool installs or replaces the cached pool at poolHash.
func (f *Federation) SetPool(poolHash string, p *FederationPool) {
	f.mu.Lock()
	f.pools[poolHash] = p
	f.mu.Unlock()
}

// RemovePool evicts the cached pool at poolHash.
func (f *Federation) RemovePool(poolHash string) {
	f.mu.Lock()
	delete(f.pools, poolHash)
	f.mu.Unlock()
}

// Pools returns a snapshot slice of every cached pool.
func (f *Federation) Pools() []*FederationPool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	pools := make([]*FederationPool, 0, len(f.pools))
	for _, p := range f.pools {
		pools = append(pools, p)
	}
	return pools
}
