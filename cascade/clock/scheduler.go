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

// Package clock implements C8's cascade-side cooperative scheduler: a
// one-time global-resource enumeration into the image driver's seed queue,
// followed by the per-resource status (1s) and torrent-info dump (60s)
// ticker loops of §4.8.
package clock

import (
	"context"
	"sync"
	"time"

	"github.com/Azure/batch-shipyard-go/cascade/data"
	"github.com/Azure/batch-shipyard-go/cascade/imagedriver"
	cascadetorrent "github.com/Azure/batch-shipyard-go/cascade/torrent"
	"github.com/Azure/batch-shipyard-go/utils/log"
)

// Config holds the scheduler's tick intervals, matching §4.8's named
// defaults.
type Config struct {
	ResourceStatusInterval time.Duration `yaml:"resource_status"`
	AggregateDumpInterval  time.Duration `yaml:"aggregate_dump"`
}

func (c Config) applyDefaults() Config {
	if c.ResourceStatusInterval == 0 {
		c.ResourceStatusInterval = time.Second
	}
	if c.AggregateDumpInterval == 0 {
		c.AggregateDumpInterval = time.Minute
	}
	return c
}

// resourceEnqueuer is the subset of *imagedriver.Driver the scheduler
// needs, kept narrow so distributeGlobalResources can be tested against a
// fake without constructing a full Driver.
type resourceEnqueuer interface {
	Enqueue(resource string)
}

// Scheduler drives the node's periodic cascade work on two ticker loops,
// matching the teacher's tickerLoop/done-channel idiom already used by
// federation/clock.
type Scheduler struct {
	config    Config
	partition string
	data      *data.Client
	driver    resourceEnqueuer
	status    *cascadetorrent.StatusLogger

	wg   sync.WaitGroup
	done chan struct{}
}

// New builds a Scheduler for partition (the pool's "acct$pool" key).
func New(config Config, partition string, d *data.Client, driver *imagedriver.Driver, engine *cascadetorrent.Engine) *Scheduler {
	return &Scheduler{
		config:    config.applyDefaults(),
		partition: partition,
		data:      d,
		driver:    driver,
		status:    cascadetorrent.NewStatusLogger(engine),
		done:      make(chan struct{}),
	}
}

// Run enumerates every resource the pool expects this node to eventually
// seed and enqueues it with the image driver, matching
// distribute_global_resources's one-time manifest scan, then blocks
// driving the status/aggregate ticker loops until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.distributeGlobalResources()

	s.wg.Add(1)
	go s.tickerLoop(ctx, s.config.ResourceStatusInterval, func() {
		s.status.LogResourceStatus(time.Now())
	})

	s.wg.Add(1)
	go s.tickerLoop(ctx, s.config.AggregateDumpInterval, func() {
		s.status.LogAggregate(time.Now())
	})

	<-ctx.Done()
	close(s.done)
	s.wg.Wait()
}

func (s *Scheduler) tickerLoop(ctx context.Context, interval time.Duration, fn func()) {
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
			fn()
		}
	}
}

// distributeGlobalResources lists the pool's global-resource manifest and
// enqueues every entry with the image driver, matching
// distribute_global_resources's "check torrent info table for resource"
// scan step.
func (s *Scheduler) distributeGlobalResources() {
	rows, err := s.data.ListGlobalResources(s.partition)
	if err != nil {
		log.Errorf("cascade: list global resources: %s", err)
		return
	}
	if len(rows) == 0 {
		log.Info("cascade: no global resources specified")
		return
	}
	for _, row := range rows {
		s.driver.Enqueue(row.Resource)
	}
	log.Infof("cascade: enqueued %d global resources for seeding", len(rows))
}
