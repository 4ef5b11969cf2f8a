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

// Package storageclient implements C1, a typed wrapper over the object
// store's blob, table, and queue services that every other federation and
// cascade component is built on (§4.1).
package storageclient

import (
	"fmt"

	"github.com/Azure/batch-shipyard-go/lib/backend"
	"github.com/andres-erbsen/clock"
	"github.com/jmoiron/sqlx"
)

// Client composes the three narrow storage interfaces into the single
// handle every other component depends on, mirroring §4.1's single
// StorageClient surface.
type Client struct {
	Blob  BlobStore
	Table TableStore
	Queue QueueStore
	Lease LeaseStore

	config Config
}

// New constructs a Client from config, wiring the S3-backed blob store, the
// SQLite-backed table store, and the redis-backed queue/lease stores.
func New(config Config, blobBackend backend.Client, db *sqlx.DB) (*Client, error) {
	config = config.applyDefaults()

	queue, err := NewRedisQueueStore(config.Redis, clock.New())
	if err != nil {
		return nil, fmt.Errorf("new redis queue store: %s", err)
	}
	lease, err := NewRedisLeaseStore(config.Redis)
	if err != nil {
		return nil, fmt.Errorf("new redis lease store: %s", err)
	}
	return &Client{
		Blob:   NewBackendBlobStore(blobBackend),
		Table:  NewSQLiteTableStore(db),
		Queue:  queue,
		Lease:  lease,
		config: config,
	}, nil
}

// Retry retries op against transient-remote errors per §4.1's backoff
// contract, opting in to retrying 409 conflicts when retryOnConflict is
// true.
func (c *Client) Retry(op func() error, retryOnConflict bool) error {
	return c.config.retry(op, retryOnConflict)
}

// UserAgent returns the "batch-shipyard/<version>" string. The stores do not
// attach it to their requests.
func (c *Client) UserAgent() string {
	return userAgent()
}
