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
package clock

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Azure/batch-shipyard-go/cascade/data"
	"github.com/Azure/batch-shipyard-go/federation/storageclient"
)

// fakeEnqueuer records every resource handed to Enqueue, standing in for
// *imagedriver.Driver in tests.
type fakeEnqueuer struct {
	enqueued []string
}

func (f *fakeEnqueuer) Enqueue(resource string) {
	f.enqueued = append(f.enqueued, resource)
}

// fakeGRTableStore is a minimal in-memory storageclient.TableStore, enough
// to exercise ListGlobalResources without a real database.
type fakeGRTableStore struct {
	rows map[string]*storageclient.Entity
}

func newFakeGRTableStore() *fakeGRTableStore {
	return &fakeGRTableStore{rows: make(map[string]*storageclient.Entity)}
}

func (f *fakeGRTableStore) key(table, pk, rk string) string { return table + "/" + pk + "/" + rk }

func (f *fakeGRTableStore) GetEntity(table, pk, rk string) (*storageclient.Entity, error) {
	e, ok := f.rows[f.key(table, pk, rk)]
	if !ok {
		return nil, storageclient.ErrEntityNotFound
	}
	return e.Clone(), nil
}

func (f *fakeGRTableStore) QueryEntities(table, pk string) ([]*storageclient.Entity, error) {
	var out []*storageclient.Entity
	for _, e := range f.rows {
		if e.PartitionKey == pk {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

func (f *fakeGRTableStore) QueryEntitiesByPartitionPrefix(table, prefix string) ([]*storageclient.Entity, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeGRTableStore) InsertEntity(table string, e *storageclient.Entity) error {
	e.ETag = "1"
	f.rows[f.key(table, e.PartitionKey, e.RowKey)] = e.Clone()
	return nil
}

func (f *fakeGRTableStore) MergeEntity(
	table string, e *storageclient.Entity, merge func(existing *storageclient.Entity)) (*storageclient.Entity, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeGRTableStore) UpdateEntityWithETag(table string, e *storageclient.Entity) error {
	return fmt.Errorf("not implemented")
}

func (f *fakeGRTableStore) DeleteEntity(table, pk, rk, etag string) error {
	return fmt.Errorf("not implemented")
}

func insertGlobalResource(t *testing.T, store *fakeGRTableStore, partition, hash, resource string) {
	t.Helper()
	e := &storageclient.Entity{PartitionKey: partition, RowKey: hash}
	e.Set("Resource", resource)
	require.NoError(t, store.InsertEntity("gr", e))
}

func TestDistributeGlobalResourcesEnqueuesEveryManifestEntry(t *testing.T) {
	require := require.New(t)

	store := newFakeGRTableStore()
	insertGlobalResource(t, store, "acct$pool", "hash1", "docker:ubuntu:latest")
	insertGlobalResource(t, store, "acct$pool", "hash2", "docker:alpine:latest")

	d := data.New(&storageclient.Client{Table: store})
	driver := &fakeEnqueuer{}

	s := &Scheduler{config: Config{}.applyDefaults(), partition: "acct$pool", data: d, driver: driver}
	s.distributeGlobalResources()

	require.ElementsMatch([]string{"docker:ubuntu:latest", "docker:alpine:latest"}, driver.enqueued)
}

func TestDistributeGlobalResourcesNoopsOnEmptyManifest(t *testing.T) {
	require := require.New(t)

	store := newFakeGRTableStore()
	d := data.New(&storageclient.Client{Table: store})
	driver := &fakeEnqueuer{}

	s := &Scheduler{config: Config{}.applyDefaults(), partition: "acct$pool", data: d, driver: driver}
	s.distributeGlobalResources()

	require.Empty(driver.enqueued)
}

func TestConfigAppliesDefaults(t *testing.T) {
	require := require.New(t)

	c := Config{}.applyDefaults()
	require.NotZero(c.ResourceStatusInterval)
	require.NotZero(c.AggregateDumpInterval)
}
