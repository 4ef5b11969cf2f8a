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
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Azure/batch-shipyard-go/federation/storageclient"
)

// fakeTableStore is a minimal in-memory storageclient.TableStore, enough to
// exercise MergeNodeIntoServiceRow's optimistic-concurrency loop without a
// real SQLite database.
type fakeTableStore struct {
	rows map[string]*storageclient.Entity
}

func newFakeTableStore() *fakeTableStore {
	return &fakeTableStore{rows: make(map[string]*storageclient.Entity)}
}

func (f *fakeTableStore) key(table, pk, rk string) string { return table + "/" + pk + "/" + rk }

func (f *fakeTableStore) GetEntity(table, pk, rk string) (*storageclient.Entity, error) {
	e, ok := f.rows[f.key(table, pk, rk)]
	if !ok {
		return nil, storageclient.ErrEntityNotFound
	}
	return e.Clone(), nil
}

func (f *fakeTableStore) QueryEntities(table, pk string) ([]*storageclient.Entity, error) {
	var out []*storageclient.Entity
	for _, e := range f.rows {
		if e.PartitionKey == pk {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

func (f *fakeTableStore) QueryEntitiesByPartitionPrefix(table, prefix string) ([]*storageclient.Entity, error) {
	var out []*storageclient.Entity
	for _, e := range f.rows {
		if len(e.PartitionKey) >= len(prefix) && e.PartitionKey[:len(prefix)] == prefix {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

func (f *fakeTableStore) InsertEntity(table string, e *storageclient.Entity) error {
	k := f.key(table, e.PartitionKey, e.RowKey)
	if _, ok := f.rows[k]; ok {
		return fmt.Errorf("insert entity: UNIQUE constraint failed")
	}
	e.ETag = "1"
	f.rows[k] = e.Clone()
	return nil
}

func (f *fakeTableStore) MergeEntity(
	table string, e *storageclient.Entity, merge func(existing *storageclient.Entity)) (*storageclient.Entity, error) {

	for {
		existing, err := f.GetEntity(table, e.PartitionKey, e.RowKey)
		if err == storageclient.ErrEntityNotFound {
			fresh := e.Clone()
			if merge != nil {
				merge(fresh)
			}
			if err := f.InsertEntity(table, fresh); err != nil {
				continue
			}
			return fresh, nil
		}
		if err != nil {
			return nil, err
		}
		if merge != nil {
			merge(existing)
		}
		if err := f.UpdateEntityWithETag(table, existing); err != nil {
			if err == storageclient.ErrETagMismatch {
				continue
			}
			return nil, err
		}
		return existing, nil
	}
}

func (f *fakeTableStore) UpdateEntityWithETag(table string, e *storageclient.Entity) error {
	k := f.key(table, e.PartitionKey, e.RowKey)
	existing, ok := f.rows[k]
	if !ok || existing.ETag != e.ETag {
		return storageclient.ErrETagMismatch
	}
	e.ETag = fmt.Sprintf("%d", mustAtoi(e.ETag)+1)
	f.rows[k] = e.Clone()
	return nil
}

func (f *fakeTableStore) DeleteEntity(table, pk, rk, etag string) error {
	k := f.key(table, pk, rk)
	if _, ok := f.rows[k]; !ok {
		return storageclient.ErrEntityNotFound
	}
	delete(f.rows, k)
	return nil
}

func mustAtoi(s string) int {
	var v int
	fmt.Sscanf(s, "%d", &v)
	return v
}

func newTestClient() (*Client, *fakeTableStore) {
	store := newFakeTableStore()
	return &Client{storage: &storageclient.Client{Table: store}}, store
}

func TestMergeNodeIntoServiceRowCreatesRowOnFirstSeed(t *testing.T) {
	require := require.New(t)

	client, _ := newTestClient()
	row, err := client.MergeNodeIntoServiceRow("acct$pool", "docker:ubuntu:latest", "hash1", "node-1")
	require.NoError(err)
	require.Equal([]string{"node-1"}, row.NodeIDs)
}

func TestMergeNodeIntoServiceRowAppendsDistinctNodes(t *testing.T) {
	require := require.New(t)

	client, _ := newTestClient()
	_, err := client.MergeNodeIntoServiceRow("acct$pool", "docker:ubuntu:latest", "hash1", "node-1")
	require.NoError(err)

	row, err := client.MergeNodeIntoServiceRow("acct$pool", "docker:ubuntu:latest", "hash1", "node-2")
	require.NoError(err)
	require.ElementsMatch([]string{"node-1", "node-2"}, row.NodeIDs)
}

func TestMergeNodeIntoServiceRowIsIdempotent(t *testing.T) {
	require := require.New(t)

	client, _ := newTestClient()
	_, err := client.MergeNodeIntoServiceRow("acct$pool", "docker:ubuntu:latest", "hash1", "node-1")
	require.NoError(err)

	row, err := client.MergeNodeIntoServiceRow("acct$pool", "docker:ubuntu:latest", "hash1", "node-1")
	require.NoError(err)
	require.Equal([]string{"node-1"}, row.NodeIDs)
}

func TestNumSeedersCountsExistingRow(t *testing.T) {
	require := require.New(t)

	client, _ := newTestClient()
	_, err := client.MergeNodeIntoServiceRow("acct$pool", "docker:ubuntu:latest", "hash1", "node-1")
	require.NoError(err)
	_, err = client.MergeNodeIntoServiceRow("acct$pool", "docker:ubuntu:latest", "hash1", "node-2")
	require.NoError(err)

	n, err := client.NumSeeders("acct$pool", "hash1")
	require.NoError(err)
	require.Equal(2, n)
}

func TestNumSeedersZeroWhenRowMissing(t *testing.T) {
	require := require.New(t)

	client, _ := newTestClient()
	n, err := client.NumSeeders("acct$pool", "missing")
	require.NoError(err)
	require.Equal(0, n)
}

func TestRegisterDHTSelfInsertsOnce(t *testing.T) {
	require := require.New(t)

	client, _ := newTestClient()
	require.NoError(client.RegisterDHTSelf("acct$pool", "10.0.0.1", 6881))
	require.NoError(client.RegisterDHTSelf("acct$pool", "10.0.0.1", 6881))

	nodes, err := client.ListDHTNodes("acct$pool")
	require.NoError(err)
	require.Len(nodes, 1)
	require.Equal(6881, nodes[0].Port)
}
