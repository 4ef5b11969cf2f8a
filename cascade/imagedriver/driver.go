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
package imagedriver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/uber-go/tally"

	"github.com/Azure/batch-shipyard-go/cascade/data"
	"github.com/Azure/batch-shipyard-go/cascade/imagedriver/seedretry"
	"github.com/Azure/batch-shipyard-go/cascade/scratch"
	cascadetorrent "github.com/Azure/batch-shipyard-go/cascade/torrent"
	"github.com/Azure/batch-shipyard-go/federation/fedhash"
	"github.com/Azure/batch-shipyard-go/federation/storageclient"
	"github.com/Azure/batch-shipyard-go/lib/containerruntime"
	"github.com/Azure/batch-shipyard-go/lib/metainfogen"
	"github.com/Azure/batch-shipyard-go/lib/persistedretry"
	"github.com/Azure/batch-shipyard-go/utils/log"
)

// Driver implements C7. It owns a single in-process seed queue plus a single
// mutex-guarded load step. A seed worker takes each resource from that queue
// and either starts it from the swarm or pulls it from the registry; there
// are no separate direct-download and torrent-start queues.
type Driver struct {
	config    Config
	partition string
	nodeID    string

	storage  *storageclient.Client
	data     *data.Client
	engine   *cascadetorrent.Engine
	runtimes *containerruntime.Factory
	metainfo *metainfogen.Generator
	scratch  *scratch.Dir

	seedQueue  chan string
	retryQueue persistedretry.Manager
	loadMu     sync.Mutex

	wg sync.WaitGroup
}

// New constructs a Driver. nodeID identifies this node in the services
// table's VmList entries (AZ_BATCH_NODE_ID, per §7). localDB backs the
// §4.7 step 3 persisted retry queue a failed seed attempt falls back to
// once the in-process transient-error ladder of pullWithRetry gives up.
func New(
	config Config,
	partition, nodeID string,
	storage *storageclient.Client,
	engine *cascadetorrent.Engine,
	runtimes *containerruntime.Factory,
	gen *metainfogen.Generator,
	scratchDir *scratch.Dir,
	localDB *sqlx.DB,
	stats tally.Scope,
) (*Driver, error) {
	config = config.applyDefaults()
	d := &Driver{
		config:    config,
		partition: partition,
		nodeID:    nodeID,
		storage:   storage,
		data:      data.New(storage),
		engine:    engine,
		runtimes:  runtimes,
		metainfo:  gen,
		scratch:   scratchDir,
		seedQueue: make(chan string, 256),
	}

	store := seedretry.NewStore(localDB)
	executor := seedretry.NewExecutor(d.seedOne)
	retryQueue, err := persistedretry.NewManager(config.RetryQueue, stats, store, executor)
	if err != nil {
		return nil, fmt.Errorf("create seed retry manager: %s", err)
	}
	d.retryQueue = retryQueue

	return d, nil
}

// Close stops the persisted retry queue's workers.
func (d *Driver) Close() {
	if d.retryQueue != nil {
		d.retryQueue.Close()
	}
}

// Enqueue submits resource for seeding, per §4.7 step 1's "dequeue
// resource". Safe to call concurrently; blocks if the queue is full.
func (d *Driver) Enqueue(resource string) {
	d.seedQueue <- resource
}

// Run starts ConcurrentDownloads seed workers and one load-poll loop, both
// stopping when ctx is cancelled. It returns once every worker has exited.
func (d *Driver) Run(ctx context.Context) {
	for i := 0; i < d.config.ConcurrentDownloads; i++ {
		d.wg.Add(1)
		go d.seedWorker(ctx)
	}
	d.wg.Add(1)
	go d.loadPollLoop(ctx)
	d.wg.Wait()
}

// seedRetryDelay is how long a durably-queued seed retry waits before its
// first attempt, giving whatever caused the original failure (a registry
// outage, a stuck lease) a chance to clear.
const seedRetryDelay = 30 * time.Second

func (d *Driver) seedWorker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case resource, ok := <-d.seedQueue:
			if !ok {
				return
			}
			if err := d.seedOne(ctx, resource); err != nil {
				log.Errorf("cascade: seed %s: %s, falling back to persisted retry", resource, err)
				if qerr := d.retryQueue.Add(seedretry.NewTask(d.partition, resource, seedRetryDelay)); qerr != nil {
					log.Errorf("cascade: queue seed retry for %s: %s", resource, qerr)
				}
			}
		}
	}
}

func resourceHash(resource string) string {
	return fedhash.HashString(resource)
}

// mergeSelfIntoServices publishes this node as a seeder of resource,
// matching both §4.7 step 4 and the load path's post-load registration.
func (d *Driver) mergeSelfIntoServices(resource string) error {
	_, err := d.data.MergeNodeIntoServiceRow(d.partition, resource, resourceHash(resource), d.nodeID)
	return err
}
