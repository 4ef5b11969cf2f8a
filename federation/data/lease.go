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
package data

import (
	"context"
	"sync"
	"time"

	"github.com/Azure/batch-shipyard-go/federation/storageclient"
	"github.com/Azure/batch-shipyard-go/utils/log"
)

// globalLeaseDuration and globalLeaseRenewInterval implement §4.3's
// "acquires a 15-s lease on a well-known blob; schedules itself every 5 s
// to renew" global lock contract.
const (
	globalLeaseDuration      = 15 * time.Second
	globalLeaseRenewInterval = 5 * time.Second
)

// GlobalLock tracks whether this process currently holds the federation
// global lease, backing §4.3's has_global_lock predicate. All processing
// that mutates federation state must check HasGlobalLock before acting,
// per §3 invariant 4: "only the controller holding the global lease
// writes." A single GlobalLock is constructed by the caller of
// LeaseGlobalLock and shared by reference with every consumer (e.g. each
// federation's action.Processor) so they observe the same live hold state.
type GlobalLock struct {
	mu    sync.RWMutex
	held  bool
	lease *storageclient.Lease
}

// NewGlobalLock returns an unheld GlobalLock, ready to be shared with
// LeaseGlobalLock and any number of readers.
func NewGlobalLock() *GlobalLock {
	return &GlobalLock{}
}

// HasGlobalLock reports whether the lease is currently believed to be held.
// This is a cheap, best-effort predicate; it can go stale between renewal
// ticks if another process steals the lease out from under a crashed
// holder, which is why callers also check storage errors on each mutating
// call rather than relying solely on this flag.
func (g *GlobalLock) HasGlobalLock() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.held
}

func (g *GlobalLock) setHeld(held bool) {
	g.mu.Lock()
	g.held = held
	g.mu.Unlock()
}

// LeaseGlobalLock blocks, repeatedly attempting to acquire and then hold
// the federation's global lease until ctx is cancelled, mutating lock in
// place. onAcquired is called (once per acquisition) after the lease is
// first taken; onLost is called whenever a renewal fails and the lease
// must be considered gone, per §7 error kind 6: "loss of global lease: all
// processing suspends; no state is mutated until the lease is
// re-acquired." lock reflects live hold state for the duration of the
// call and is safe to read concurrently from other goroutines via
// HasGlobalLock.
func (c *Client) LeaseGlobalLock(ctx context.Context, lock *GlobalLock, onAcquired, onLost func(*GlobalLock)) {
	for {
		select {
		case <-ctx.Done():
			if lock.HasGlobalLock() {
				c.storage.Lease.ReleaseLease(lock.lease)
			}
			return
		default:
		}

		lease, err := c.storage.Lease.AcquireLease(globalLockContainer, globalLockBlob, globalLeaseDuration)
		if err != nil {
			log.Warnf("federation: failed to acquire global lease, retrying: %s", err)
			if !sleepOrDone(ctx, globalLeaseRenewInterval) {
				return
			}
			continue
		}

		lock.lease = lease
		lock.setHeld(true)
		log.Info("federation: acquired global lease")
		if onAcquired != nil {
			onAcquired(lock)
		}

		c.holdGlobalLock(ctx, lock, onLost)

		lock.setHeld(false)
		if ctx.Err() != nil {
			return
		}
	}
}

func (c *Client) holdGlobalLock(ctx context.Context, lock *GlobalLock, onLost func(*GlobalLock)) {
	ticker := time.NewTicker(globalLeaseRenewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.storage.Lease.ReleaseLease(lock.lease)
			return
		case <-ticker.C:
			if err := c.storage.Lease.RenewLease(lock.lease, globalLeaseDuration); err != nil {
				log.Warnf("federation: lost global lease: %s", err)
				if onLost != nil {
					onLost(lock)
				}
				return
			}
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
