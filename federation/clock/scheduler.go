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

// Package clock implements C8's federation-side cooperative scheduler:
// periodic federation/pool discovery, per-pool property refresh, action
// queue polling, and global-lease renewal, per §4.8.
package clock

import (
	"context"
	"sync"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/uber-go/tally"

	"github.com/Azure/batch-shipyard-go/federation/action"
	"github.com/Azure/batch-shipyard-go/federation/batchclient"
	"github.com/Azure/batch-shipyard-go/federation/data"
	"github.com/Azure/batch-shipyard-go/federation/fedhash"
	"github.com/Azure/batch-shipyard-go/federation/internal/workerpool"
	"github.com/Azure/batch-shipyard-go/federation/pool"
	"github.com/Azure/batch-shipyard-go/utils/log"
)

// maxPoolRefreshWorkers implements §4.8's "bounded worker pool of
// min(|pools|, 32) workers" for cross-federation pool refresh.
const maxPoolRefreshWorkers = 32

// Config holds the scheduler's tick intervals, matching §4.8's named
// defaults and the refresh_intervals.{federations,actions} config key
// group of §6.
type Config struct {
	FederationsRefreshInterval time.Duration `yaml:"federations"`
	ActionsPollInterval        time.Duration `yaml:"actions"`
}

func (c Config) applyDefaults() Config {
	if c.FederationsRefreshInterval == 0 {
		c.FederationsRefreshInterval = 30 * time.Second
	}
	if c.ActionsPollInterval == 0 {
		c.ActionsPollInterval = 5 * time.Second
	}
	return c
}

// Scheduler drives the federation controller's periodic work on two
// ticker loops plus a background lease-renewal loop, matching the
// teacher's tickerLoop/done-channel idiom.
type Scheduler struct {
	config Config
	data   *data.Client
	batch  batchclient.Client
	stats  tally.Scope
	clk    clock.Clock

	globalLock *data.GlobalLock

	mu               sync.RWMutex
	federations      map[string]*pool.Federation
	processors       map[string]*action.Processor
	jobIDsByPoolHash map[string][]string

	wg   sync.WaitGroup
	done chan struct{}
}

// New builds a Scheduler. clk defaults to the real wall clock if nil.
func New(config Config, d *data.Client, b batchclient.Client, stats tally.Scope, clk clock.Clock) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	return &Scheduler{
		config:           config.applyDefaults(),
		data:             d,
		batch:            b,
		stats:            stats,
		clk:              clk,
		globalLock:       data.NewGlobalLock(),
		federations:      make(map[string]*pool.Federation),
		processors:       make(map[string]*action.Processor),
		jobIDsByPoolHash: make(map[string][]string),
		done:             make(chan struct{}),
	}
}

// Run blocks until ctx is cancelled, driving the federations-refresh and
// action-poll ticker loops plus the global-lease renewal loop.
func (s *Scheduler) Run(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.data.LeaseGlobalLock(ctx, s.globalLock, s.onLeaseAcquired, s.onLeaseLost)
	}()

	s.wg.Add(1)
	go s.tickerLoop(ctx, s.config.FederationsRefreshInterval, s.refreshFederations)

	s.wg.Add(1)
	go s.tickerLoop(ctx, s.config.ActionsPollInterval, s.pollActions)

	<-ctx.Done()
	close(s.done)
	s.wg.Wait()
}

func (s *Scheduler) tickerLoop(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func (s *Scheduler) onLeaseAcquired(*data.GlobalLock) {
	log.Info("federation: global lease acquired, action processing enabled")
}

func (s *Scheduler) onLeaseLost(*data.GlobalLock) {
	log.Warn("federation: global lease lost, action processing suspended")
}

// refreshFederations implements §4.8's federations-refresh tick: discover
// federations and their pools, then refresh every pool's cached cloud
// state via a bounded worker pool.
func (s *Scheduler) refreshFederations(ctx context.Context) {
	rows, err := s.data.GetAllFederations()
	if err != nil {
		log.Errorf("federation: list federations: %s", err)
		return
	}

	var allPools []*pool.FederationPool
	for _, row := range rows {
		fed := s.federationFor(row.ID, row.Hash)
		poolRows, err := s.data.GetAllPoolsForFederation(row.Hash)
		if err != nil {
			log.Errorf("federation %s: list pools: %s", row.ID, err)
			continue
		}
		jobIDsByPool, err := s.data.GetActiveJobIDsByPoolForFederation(row.Hash)
		if err != nil {
			log.Warnf("federation %s: list active job ids: %s", row.ID, err)
			jobIDsByPool = nil
		}
		allPools = append(allPools, s.syncPools(fed, poolRows)...)
		s.tagJobIDs(jobIDsByPool)
	}

	if len(allPools) == 0 {
		return
	}
	if err := workerpool.Run(len(allPools), maxPoolRefreshWorkers, func(i int) error {
		s.refreshPool(ctx, allPools[i])
		return nil
	}); err != nil {
		log.Warnf("federation: pool refresh: %s", err)
	}
}

// federationFor returns the cached Federation for (id, hash), registering
// one and its action.Processor the first time it is seen.
func (s *Scheduler) federationFor(id, hash string) *pool.Federation {
	s.mu.Lock()
	defer s.mu.Unlock()

	fed, ok := s.federations[hash]
	if !ok {
		fed = pool.NewFederation(id, hash)
		s.federations[hash] = fed
		s.processors[hash] = action.New(id, s.data, s.batch, fed, s.globalLock, s.stats)
	}
	return fed
}

// syncPools reconciles fed's pool registry against the latest table rows:
// new pools are added, pools no longer listed are dropped. It returns the
// current, post-sync pool set for refreshing.
func (s *Scheduler) syncPools(fed *pool.Federation, rows []*data.PoolRow) []*pool.FederationPool {
	live := make(map[string]bool, len(rows))
	pools := make([]*pool.FederationPool, 0, len(rows))
	for _, row := range rows {
		live[row.PoolHash] = true
		fp := fed.Pool(row.PoolHash)
		if fp == nil {
			fp = pool.NewFederationPool(row.BatchAccount, row.BatchServiceURL, row.Location, row.PoolID, s.clk)
			fed.SetPool(row.PoolHash, fp)
		}
		pools = append(pools, fp)
	}
	for _, fp := range fed.Pools() {
		if !live[fedhash.Pool(fp.ServiceURL, fp.PoolID)] {
			fed.RemovePool(fedhash.Pool(fp.ServiceURL, fp.PoolID))
		}
	}
	return pools
}

// tagJobIDs merges a federation's pool-hash→jobIDs index into the
// scheduler-wide map so refreshPool can look it up without a second table
// scan per pool. Pool hashes are derived from (serviceURL, poolID) and are
// federation-unique in practice, so a single flat map suffices.
func (s *Scheduler) tagJobIDs(byPool map[string][]string) {
	s.mu.Lock()
	for poolHash, jobIDs := range byPool {
		s.jobIDsByPoolHash[poolHash] = jobIDs
	}
	s.mu.Unlock()
}

func (s *Scheduler) refreshPool(ctx context.Context, fp *pool.FederationPool) {
	snap, err := s.batch.GetPool(ctx, fp.ServiceURL, fp.PoolID)
	if err != nil {
		log.Warnf("federation: refresh pool %s: %s", fp.PoolID, err)
		return
	}
	fp.SetSnapshot(snap)

	counts, err := s.batch.GetNodeStateCounts(ctx, fp.ServiceURL, fp.PoolID)
	if err != nil {
		log.Warnf("federation: refresh node counts %s: %s", fp.PoolID, err)
		return
	}
	fp.SetNodeCounts(counts)

	s.mu.RLock()
	jobIDs := s.jobIDsByPoolHash[fedhash.Pool(fp.ServiceURL, fp.PoolID)]
	s.mu.RUnlock()

	active, err := s.batch.AggregateActiveTasksOnPool(ctx, fp.ServiceURL, fp.PoolID, jobIDs)
	if err != nil {
		log.Warnf("federation: refresh active tasks %s: %s", fp.PoolID, err)
		return
	}
	fp.SetActiveTasks(active)
}

// pollActions implements §4.8's action-queue-polling tick: every known
// federation's Processor gets one non-blocking Poll call.
func (s *Scheduler) pollActions(ctx context.Context) {
	s.mu.RLock()
	processors := make([]*action.Processor, 0, len(s.processors))
	for _, p := range s.processors {
		processors = append(processors, p)
	}
	s.mu.RUnlock()

	var wg sync.WaitGroup
	for _, p := range processors {
		wg.Add(1)
		go func(p *action.Processor) {
			defer wg.Done()
			if err := p.Poll(ctx); err != nil {
				log.Warnf("federation: poll actions: %s", err)
			}
		}(p)
	}
	wg.Wait()
}
