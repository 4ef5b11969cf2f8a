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

	"github.com/Azure/batch-shipyard-go/federation/fedhash"
	"github.com/Azure/batch-shipyard-go/federation/storageclient"
)

// Client backs §4.3's FederationData surface on top of a storageclient.Client.
type Client struct {
	storage *storageclient.Client
}

// New returns a Client.
func New(storage *storageclient.Client) *Client {
	return &Client{storage}
}

// GetAllFederations returns every row of the federations table.
func (c *Client) GetAllFederations() ([]*FederationRow, error) {
	entities, err := c.storage.Table.QueryEntities(federationsTable, federationsPartition)
	if err != nil {
		return nil, fmt.Errorf("query federations: %s", err)
	}
	rows := make([]*FederationRow, len(entities))
	for i, e := range entities {
		rows[i] = federationRowFromEntity(e)
	}
	return rows, nil
}

// GetAllPoolsForFederation returns every pool row under fedHash.
func (c *Client) GetAllPoolsForFederation(fedHash string) ([]*PoolRow, error) {
	entities, err := c.storage.Table.QueryEntities(poolsTable, fedHash)
	if err != nil {
		return nil, fmt.Errorf("query pools for federation %s: %s", fedHash, err)
	}
	rows := make([]*PoolRow, len(entities))
	for i, e := range entities {
		rows[i] = poolRowFromEntity(e)
	}
	return rows, nil
}

// GetPoolForFederation returns the single pool row at (fedHash, poolHash).
func (c *Client) GetPoolForFederation(fedHash, poolHash string) (*PoolRow, error) {
	e, err := c.storage.Table.GetEntity(poolsTable, fedHash, poolHash)
	if err != nil {
		return nil, err
	}
	return poolRowFromEntity(e), nil
}

// GetFirstSequenceIDForJob returns sequence[0] for target, or "" if no
// sequence entity exists, per §4.3.
func (c *Client) GetFirstSequenceIDForJob(fedHash, target string) (string, error) {
	seq, err := c.getSequenceEntity(fedHash, target)
	if errors.Is(err, storageclient.ErrEntityNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if len(seq.IDs) == 0 {
		return "", nil
	}
	return seq.IDs[0], nil
}

func (c *Client) getSequenceEntity(fedHash, target string) (*SequenceEntity, error) {
	rowKey := fedhash.Target(target)
	e, err := c.storage.Table.GetEntity(jobsTable, actionsPartitionPrefix+fedHash, rowKey)
	if err != nil {
		return nil, err
	}
	return sequenceEntityFromEntity(e), nil
}

// PopAndPackSequenceIDsForJob removes the head of target's sequence entity
// and repacks the remainder into the entity's string properties, per §4.3.
// If the result is empty and no location entity remains for target, the
// sequence entity is deleted instead of updated. Returns the updated (or
// deleted) entity and whether it ended up empty.
func (c *Client) PopAndPackSequenceIDsForJob(fedHash, target string) (*SequenceEntity, bool, error) {
	for {
		seq, err := c.getSequenceEntity(fedHash, target)
		if err != nil {
			return nil, false, err
		}
		if len(seq.IDs) == 0 {
			return seq, true, nil
		}
		seq.IDs = seq.IDs[1:]
		empty := len(seq.IDs) == 0

		if empty {
			exist, err := c.LocationEntitiesExistForJob(fedHash, target)
			if err != nil {
				return nil, false, err
			}
			if !exist {
				if err := c.storage.Table.DeleteEntity(jobsTable, seq.PartitionKey, seq.RowKey, seq.ETag); err != nil {
					if errors.Is(err, storageclient.ErrETagMismatch) {
						continue
					}
					return nil, false, fmt.Errorf("delete sequence %s: %s", target, err)
				}
				return seq, true, nil
			}
		}

		entity, err := seq.toEntity()
		if err != nil {
			return nil, false, err
		}
		if err := c.storage.Table.UpdateEntityWithETag(jobsTable, entity); err != nil {
			if errors.Is(err, storageclient.ErrETagMismatch) {
				continue
			}
			return nil, false, fmt.Errorf("update sequence %s: %s", target, err)
		}
		seq.ETag = entity.ETag
		return seq, empty, nil
	}
}

// AppendSequenceIDForJob appends uuid to target's sequence entity, creating
// it if absent, per §3's SequenceEntity invariant of at most one entity per
// (fedHash, target).
func (c *Client) AppendSequenceIDForJob(fedHash, target, uuid string) error {
	rowKey := fedhash.Target(target)
	partitionKey := actionsPartitionPrefix + fedHash

	for {
		seq, err := c.getSequenceEntity(fedHash, target)
		if errors.Is(err, storageclient.ErrEntityNotFound) {
			seq = &SequenceEntity{PartitionKey: partitionKey, RowKey: rowKey}
		} else if err != nil {
			return err
		}
		seq.IDs = append(seq.IDs, uuid)
		entity, err := seq.toEntity()
		if err != nil {
			return err
		}
		if seq.ETag == "" {
			if err := c.storage.Table.InsertEntity(jobsTable, entity); err != nil {
				continue // lost a race to create the entity; retry as an update.
			}
			return nil
		}
		if err := c.storage.Table.UpdateEntityWithETag(jobsTable, entity); err != nil {
			if errors.Is(err, storageclient.ErrETagMismatch) {
				continue
			}
			return fmt.Errorf("append sequence id for %s: %s", target, err)
		}
		return nil
	}
}

// LocationEntitiesExistForJob reports whether any location row exists for
// target within fedHash.
func (c *Client) LocationEntitiesExistForJob(fedHash, target string) (bool, error) {
	entities, err := c.GetAllLocationEntitiesForJob(fedHash, target)
	if err != nil {
		return false, err
	}
	return len(entities) > 0, nil
}

// GetAllLocationEntitiesForJob returns every location row for target,
// i.e. every pool the job is currently placed on.
func (c *Client) GetAllLocationEntitiesForJob(fedHash, target string) ([]*LocationEntity, error) {
	partitionKey := fedHash + "$" + fedhash.Target(target)
	entities, err := c.storage.Table.QueryEntities(jobsTable, partitionKey)
	if err != nil {
		return nil, fmt.Errorf("query location entities for %s: %s", target, err)
	}
	rows := make([]*LocationEntity, len(entities))
	for i, e := range entities {
		rows[i] = locationEntityFromEntity(e)
	}
	return rows, nil
}

// GetActiveJobIDsByPoolForFederation scans every location entity under
// fedHash and groups unterminated targets' job ids by the pool row key
// they landed on, feeding BatchClient.AggregateActiveTasksOnPool per §4.2's
// active_tasks_count refresh path.
func (c *Client) GetActiveJobIDsByPoolForFederation(fedHash string) (map[string][]string, error) {
	entities, err := c.storage.Table.QueryEntitiesByPartitionPrefix(jobsTable, fedHash+"$")
	if err != nil {
		return nil, fmt.Errorf("scan location entities for federation %s: %s", fedHash, err)
	}
	byPool := make(map[string][]string)
	seen := make(map[string]bool)
	for _, e := range entities {
		loc := locationEntityFromEntity(e)
		if loc.TerminateTimestamp != "" || loc.TargetID == "" {
			continue
		}
		key := loc.RowKey + "$" + loc.TargetID
		if seen[key] {
			continue
		}
		seen[key] = true
		byPool[loc.RowKey] = append(byPool[loc.RowKey], loc.TargetID)
	}
	return byPool, nil
}

// InsertOrUpdateEntityWithEtagForJob creates the location row if absent, or
// updates it with optimistic concurrency, appending uniqueID/timestamp to
// the bounded history per §4.3.
func (c *Client) InsertOrUpdateEntityWithEtagForJob(
	fedHash, target, poolID, batchAccount, serviceURL, uniqueID, timestamp string, kind TargetKind) error {

	partitionKey := fedHash + "$" + fedhash.Target(target)
	rowKey := fedhash.Pool(serviceURL, poolID)

	for {
		e, err := c.storage.Table.GetEntity(jobsTable, partitionKey, rowKey)
		if errors.Is(err, storageclient.ErrEntityNotFound) {
			loc := &LocationEntity{
				PartitionKey:       partitionKey,
				RowKey:             rowKey,
				Kind:               kind,
				TargetID:           target,
				PoolID:             poolID,
				BatchAccount:       batchAccount,
				ServiceURL:         serviceURL,
				UniqueIDs:          []string{uniqueID},
				AdditionTimestamps: []string{timestamp},
			}
			if err := c.storage.Table.InsertEntity(jobsTable, loc.toEntity()); err != nil {
				continue
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("get location entity for %s: %s", target, err)
		}
		loc := locationEntityFromEntity(e)
		loc.UniqueIDs = appendBounded(loc.UniqueIDs, uniqueID)
		loc.AdditionTimestamps = appendBounded(loc.AdditionTimestamps, timestamp)
		if err := c.storage.Table.UpdateEntityWithETag(jobsTable, loc.toEntity()); err != nil {
			if errors.Is(err, storageclient.ErrETagMismatch) {
				continue
			}
			return fmt.Errorf("update location entity for %s: %s", target, err)
		}
		return nil
	}
}

// StampTerminateTimestampForJob idempotently records a terminate timestamp
// on a location row, per §8's terminate-is-idempotent property: a
// location row that already carries a TerminateTimestamp is left
// unmodified.
func (c *Client) StampTerminateTimestampForJob(fedHash, target, poolID, serviceURL, timestamp string) error {
	partitionKey := fedHash + "$" + fedhash.Target(target)
	rowKey := fedhash.Pool(serviceURL, poolID)

	for {
		e, err := c.storage.Table.GetEntity(jobsTable, partitionKey, rowKey)
		if err != nil {
			return fmt.Errorf("get location entity for %s: %s", target, err)
		}
		loc := locationEntityFromEntity(e)
		if loc.TerminateTimestamp != "" {
			return nil
		}
		loc.TerminateTimestamp = timestamp
		if err := c.storage.Table.UpdateEntityWithETag(jobsTable, loc.toEntity()); err != nil {
			if errors.Is(err, storageclient.ErrETagMismatch) {
				continue
			}
			return fmt.Errorf("stamp terminate timestamp for %s: %s", target, err)
		}
		return nil
	}
}

// DeleteLocationEntityForJob removes the row for (target, poolID,
// serviceURL), per §3's "controller removes the row only after the job
// delete is accepted (or already gone)" invariant.
func (c *Client) DeleteLocationEntityForJob(fedHash, target, poolID, serviceURL string) error {
	partitionKey := fedHash + "$" + fedhash.Target(target)
	rowKey := fedhash.Pool(serviceURL, poolID)
	err := c.storage.Table.DeleteEntity(jobsTable, partitionKey, rowKey, "")
	if errors.Is(err, storageclient.ErrEntityNotFound) {
		return nil
	}
	return err
}

// AddBlockedActionForJob records (or updates) target's blocked-action row,
// per §4.5: "a target is added to a blocked state whenever a matching
// attempt yields no candidate or all candidates fail submission."
func (c *Client) AddBlockedActionForJob(fedHash, target, uniqueID string, numTasks int, reason string) error {
	partitionKey := actionsBlockedPartitionPrefix + fedHash
	rowKey := fedhash.Target(target)
	blocked := &BlockedActionEntity{
		PartitionKey: partitionKey,
		RowKey:       rowKey,
		UniqueID:     uniqueID,
		NumTasks:     numTasks,
		Reason:       reason,
	}
	_, err := c.storage.Table.MergeEntity(jobsTable, blocked.toEntity(), func(existing *storageclient.Entity) {
		existing.Set(propUniqueID, uniqueID)
		existing.Set(propNumTasks, fmt.Sprintf("%d", numTasks))
		existing.Set(propReason, reason)
	})
	if err != nil {
		return fmt.Errorf("add blocked action for %s: %s", target, err)
	}
	return nil
}

// RemoveBlockedActionForJob clears target's blocked-action row, if any.
// It is the only mechanism that clears a block (§4.5: "cleared
// automatically on the first subsequent successful placement").
func (c *Client) RemoveBlockedActionForJob(fedHash, target string) error {
	partitionKey := actionsBlockedPartitionPrefix + fedHash
	rowKey := fedhash.Target(target)
	err := c.storage.Table.DeleteEntity(jobsTable, partitionKey, rowKey, "")
	if errors.Is(err, storageclient.ErrEntityNotFound) {
		return nil
	}
	return err
}

// GetBlockedActionForJob returns target's blocked-action row, or nil if
// none exists.
func (c *Client) GetBlockedActionForJob(fedHash, target string) (*BlockedActionEntity, error) {
	partitionKey := actionsBlockedPartitionPrefix + fedHash
	rowKey := fedhash.Target(target)
	e, err := c.storage.Table.GetEntity(jobsTable, partitionKey, rowKey)
	if errors.Is(err, storageclient.ErrEntityNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return blockedActionFromEntity(e), nil
}
