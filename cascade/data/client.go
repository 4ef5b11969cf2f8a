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
	"errors"
	"fmt"

	"github.com/Azure/batch-shipyard-go/federation/storageclient"
)

// Client wraps a storageclient.Client with the cascade domain's table
// accessors, the cascade-side counterpart of federation/data.Client.
type Client struct {
	storage *storageclient.Client
}

// New constructs a Client.
func New(storage *storageclient.Client) *Client {
	return &Client{storage: storage}
}

// GetServiceRow returns the services-table row for resourceHash under
// partition, or storageclient.ErrEntityNotFound.
func (c *Client) GetServiceRow(partition, resourceHash string) (*ServiceRow, error) {
	e, err := c.storage.Table.GetEntity(tableServices, partition, resourceHash)
	if err != nil {
		return nil, err
	}
	return serviceRowFromEntity(e), nil
}

// ListServiceRows returns every services-table row under partition, used by
// the global-resources completion check of §4.7 step 4.
func (c *Client) ListServiceRows(partition string) ([]*ServiceRow, error) {
	entities, err := c.storage.Table.QueryEntities(tableServices, partition)
	if err != nil {
		return nil, err
	}
	rows := make([]*ServiceRow, 0, len(entities))
	for _, e := range entities {
		rows = append(rows, serviceRowFromEntity(e))
	}
	return rows, nil
}

// MergeNodeIntoServiceRow publishes nodeID as a seeder of resource under
// partition, matching §4.7 step 4 and the original implementation's
// _merge_service: insert a fresh row if none exists, otherwise merge nodeID
// into the existing VmList properties under optimistic concurrency. A
// repeat call with a nodeID already present is a no-op.
func (c *Client) MergeNodeIntoServiceRow(partition, resource, resourceHash, nodeID string) (*ServiceRow, error) {
	seed := &ServiceRow{Partition: partition, ResourceHash: resourceHash, Resource: resource, NodeIDs: []string{nodeID}}
	seedEntity, err := seed.toEntity()
	if err != nil {
		return nil, err
	}

	var merged *ServiceRow
	var mergeErr error
	_, err = c.storage.Table.MergeEntity(tableServices, seedEntity, func(existing *storageclient.Entity) {
		row := serviceRowFromEntity(existing)
		if row.Resource == "" {
			row.Resource = resource
		}
		if containsString(row.NodeIDs, nodeID) {
			merged = row
			return
		}
		row.NodeIDs = append(row.NodeIDs, nodeID)
		e, err := row.toEntity()
		if err != nil {
			mergeErr = err
			return
		}
		existing.Properties = e.Properties
		merged = row
	})
	if err != nil {
		return nil, fmt.Errorf("merge service row %s/%s: %s", partition, resourceHash, err)
	}
	if mergeErr != nil {
		return nil, mergeErr
	}
	if merged == nil {
		merged = seed
	}
	return merged, nil
}

func containsString(items []string, s string) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}

// GetTorrentInfo returns the torrent-info row for resourceHash under
// partition, or storageclient.ErrEntityNotFound if the resource has not yet
// been seeded by anyone.
func (c *Client) GetTorrentInfo(partition, resourceHash string) (*TorrentInfoRow, error) {
	e, err := c.storage.Table.GetEntity(tableTorrentInfo, partition, resourceHash)
	if err != nil {
		return nil, err
	}
	return torrentInfoRowFromEntity(e), nil
}

// PutTorrentInfo inserts or replaces the torrent-info row for a resource,
// matching the original implementation's _start_torrent_via_storage.
func (c *Client) PutTorrentInfo(row *TorrentInfoRow) error {
	e := row.toEntity()
	_, err := c.storage.Table.MergeEntity(tableTorrentInfo, e, func(existing *storageclient.Entity) {
		existing.Properties = e.Properties
	})
	return err
}

// NumSeeders returns the count of node ids across all VmList properties of
// the resource's services row, the cheap seeder-count check §4.7 step 2 uses to
// decide whether to seed from the torrent swarm instead of the origin
// registry (seeders >= seed_bias).
func (c *Client) NumSeeders(partition, resourceHash string) (int, error) {
	row, err := c.GetServiceRow(partition, resourceHash)
	if errors.Is(err, storageclient.ErrEntityNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return len(row.NodeIDs), nil
}

// ListDHTNodes returns every known DHT roster entry under partition.
func (c *Client) ListDHTNodes(partition string) ([]*DHTRow, error) {
	entities, err := c.storage.Table.QueryEntities(tableDHT, partition)
	if err != nil {
		return nil, err
	}
	rows := make([]*DHTRow, 0, len(entities))
	for _, e := range entities {
		rows = append(rows, dhtRowFromEntity(e))
	}
	return rows, nil
}

// RegisterDHTSelf inserts this node's roster entry if not already present,
// matching bootstrap_dht_nodes's self-registration step.
func (c *Client) RegisterDHTSelf(partition, ip string, port int) error {
	_, err := c.storage.Table.GetEntity(tableDHT, partition, ip)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storageclient.ErrEntityNotFound) {
		return err
	}
	row := &DHTRow{Partition: partition, IP: ip, Port: port}
	return c.storage.Table.InsertEntity(tableDHT, row.toEntity())
}

// ListGlobalResources returns the resource manifest rows a pool expects
// every node to eventually seed, matching distribute_global_resources.
func (c *Client) ListGlobalResources(partition string) ([]*GlobalResourceRow, error) {
	entities, err := c.storage.Table.QueryEntities(tableGlobalRes, partition)
	if err != nil {
		return nil, err
	}
	rows := make([]*GlobalResourceRow, 0, len(entities))
	for _, e := range entities {
		rows = append(rows, globalResourceRowFromEntity(e))
	}
	return rows, nil
}
