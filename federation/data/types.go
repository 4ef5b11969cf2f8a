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
	"strconv"
	"strings"

	"github.com/Azure/batch-shipyard-go/federation/storageclient"
)

// FederationRow names one row of federationsTable, per §6's
// `(PartitionKey='!!FEDERATIONS', RowKey=fedhash, FederationId)`.
type FederationRow struct {
	Hash string
	ID   string
}

func federationRowFromEntity(e *storageclient.Entity) *FederationRow {
	return &FederationRow{Hash: e.RowKey, ID: e.Get(propFederationID)}
}

// PoolRow names one row of poolsTable, per §6's
// `(PartitionKey=fedhash, RowKey=poolhash, BatchAccount, Location, PoolId,
// BatchServiceUrl)`.
type PoolRow struct {
	FedHash        string
	PoolHash       string
	BatchAccount   string
	Location       string
	PoolID         string
	BatchServiceURL string
}

func poolRowFromEntity(e *storageclient.Entity) *PoolRow {
	return &PoolRow{
		FedHash:         e.PartitionKey,
		PoolHash:        e.RowKey,
		BatchAccount:    e.Get(propBatchAccount),
		Location:        e.Get(propLocation),
		PoolID:          e.Get(propPoolID),
		BatchServiceURL: e.Get(propBatchServiceURL),
	}
}

// TargetKind distinguishes a job from a job schedule target, per §3.
type TargetKind string

// Target kinds.
const (
	KindJob         TargetKind = "job"
	KindJobSchedule TargetKind = "job_schedule"
)

// LocationEntity is a JobLocationEntity row, per §3: created when a job is
// first placed, updated with additional submissions, deleted on a
// delete-job action.
type LocationEntity struct {
	PartitionKey       string // fedhash$SHA1(job_id)
	RowKey             string // SHA1(service_url$pool_id)
	Kind               TargetKind
	TargetID           string
	PoolID             string
	BatchAccount       string
	ServiceURL         string
	UniqueIDs          []string
	AdditionTimestamps []string
	TerminateTimestamp string // empty if not terminated
	ETag               string
}

func locationEntityFromEntity(e *storageclient.Entity) *LocationEntity {
	return &LocationEntity{
		PartitionKey:       e.PartitionKey,
		RowKey:             e.RowKey,
		Kind:               TargetKind(e.Get(propKind)),
		TargetID:           e.Get(propTargetID),
		PoolID:             e.Get(propPoolID),
		BatchAccount:       e.Get(propBatchAccount),
		ServiceURL:         e.Get(propBatchServiceURL),
		UniqueIDs:          splitCSV(e.Get(propUniqueIDsPrefix)),
		AdditionTimestamps: splitCSV(e.Get(propAdditionTSPrefix)),
		TerminateTimestamp: e.Get(propTerminateTimestamp),
		ETag:               e.ETag,
	}
}

func (l *LocationEntity) toEntity() *storageclient.Entity {
	e := &storageclient.Entity{
		PartitionKey: l.PartitionKey,
		RowKey:       l.RowKey,
		ETag:         l.ETag,
	}
	e.Set(propKind, string(l.Kind))
	e.Set(propTargetID, l.TargetID)
	e.Set(propPoolID, l.PoolID)
	e.Set(propBatchAccount, l.BatchAccount)
	e.Set(propBatchServiceURL, l.ServiceURL)
	e.Set(propUniqueIDsPrefix, joinCSV(l.UniqueIDs))
	e.Set(propAdditionTSPrefix, joinCSV(l.AdditionTimestamps))
	if l.TerminateTimestamp != "" {
		e.Set(propTerminateTimestamp, l.TerminateTimestamp)
	}
	return e
}

// appendBounded implements §4.3's append-with-bounded-length contract:
// once appending entry would push the comma-joined value past
// maxStringPropertyLength, the result is truncated to the last
// maxAppendEntries entries (including the new one).
func appendBounded(entries []string, entry string) []string {
	next := append(append([]string{}, entries...), entry)
	if len(joinCSV(next)) <= maxStringPropertyLength {
		return next
	}
	if len(next) > maxAppendEntries {
		next = next[len(next)-maxAppendEntries:]
	}
	return next
}

// SequenceEntity is a SequenceEntity row, per §3: an ordered list of action
// uuids guaranteeing FIFO ordering per target across federation members,
// packed across up to 15 string properties.
type SequenceEntity struct {
	PartitionKey string // ACTIONS$fedhash
	RowKey       string // SHA1(target_id)
	IDs          []string
	ETag         string
}

func sequenceEntityFromEntity(e *storageclient.Entity) *SequenceEntity {
	var ids []string
	for i := 0; i < maxSequenceProperties; i++ {
		v := e.Get(fmt.Sprintf("%s%d", propSequencePrefix, i))
		if v == "" {
			continue
		}
		ids = append(ids, strings.Split(v, ",")...)
	}
	return &SequenceEntity{PartitionKey: e.PartitionKey, RowKey: e.RowKey, IDs: ids, ETag: e.ETag}
}

func (s *SequenceEntity) toEntity() (*storageclient.Entity, error) {
	e := &storageclient.Entity{PartitionKey: s.PartitionKey, RowKey: s.RowKey, ETag: s.ETag}

	chunks := chunkStrings(s.IDs, maxSequenceEntriesPerProperty)
	if len(chunks) > maxSequenceProperties {
		return nil, fmt.Errorf("sequence %s has %d entries, exceeds %d×%d capacity",
			s.RowKey, len(s.IDs), maxSequenceProperties, maxSequenceEntriesPerProperty)
	}
	for i := 0; i < maxSequenceProperties; i++ {
		key := fmt.Sprintf("%s%d", propSequencePrefix, i)
		if i < len(chunks) {
			e.Set(key, strings.Join(chunks[i], ","))
		} else {
			e.Set(key, "")
		}
	}
	return e, nil
}

func chunkStrings(items []string, size int) [][]string {
	var chunks [][]string
	for len(items) > 0 {
		n := size
		if n > len(items) {
			n = len(items)
		}
		chunks = append(chunks, items[:n])
		items = items[n:]
	}
	return chunks
}

// BlockedActionEntity is a BlockedActionEntity row, per §3: emitted whenever
// an action cannot be matched, cleared on the next successful match.
type BlockedActionEntity struct {
	PartitionKey string // ACTIONS.BLOCKED$fedhash
	RowKey       string // SHA1(target_id)
	UniqueID     string
	NumTasks     int
	Reason       string
	ETag         string
}

func blockedActionFromEntity(e *storageclient.Entity) *BlockedActionEntity {
	n, _ := strconv.Atoi(e.Get(propNumTasks))
	return &BlockedActionEntity{
		PartitionKey: e.PartitionKey,
		RowKey:       e.RowKey,
		UniqueID:     e.Get(propUniqueID),
		NumTasks:     n,
		Reason:       e.Get(propReason),
		ETag:         e.ETag,
	}
}

func (b *BlockedActionEntity) toEntity() *storageclient.Entity {
	e := &storageclient.Entity{PartitionKey: b.PartitionKey, RowKey: b.RowKey, ETag: b.ETag}
	e.Set(propUniqueID, b.UniqueID)
	e.Set(propNumTasks, strconv.Itoa(b.NumTasks))
	e.Set(propReason, b.Reason)
	return e
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func joinCSV(items []string) string {
	return strings.Join(items, ",")
}
