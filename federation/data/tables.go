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

// Package data implements C3, the typed accessors over the federation and
// job tables and blob containers of §6, built on storageclient.Client.
package data

// Table names, matching the object-store layout of §6. The configurable
// <prefix> is applied by the storageclient.Config the Client is built with.
const (
	federationsTable = "fedglobal_federations"
	poolsTable       = "fedglobal_pools"
	jobsTable        = "fedjobs"
	globalLockContainer = "fedglobal"
	globalLockBlob      = "global.lock"
)

// Partition keys within jobsTable.
const (
	federationsPartition          = "!!FEDERATIONS"
	actionsPartitionPrefix        = "ACTIONS$"
	actionsBlockedPartitionPrefix = "ACTIONS.BLOCKED$"
)

// Property names shared across entity kinds.
const (
	propFederationID       = "FederationId"
	propBatchAccount       = "BatchAccount"
	propLocation           = "Location"
	propPoolID             = "PoolId"
	propBatchServiceURL    = "BatchServiceUrl"
	propKind               = "Kind"
	propTargetID           = "TargetId"
	propUniqueIDsPrefix    = "UniqueIds"
	propAdditionTSPrefix   = "AdditionTimestamps"
	propTerminateTimestamp = "TerminateTimestamp"
	propSequencePrefix     = "Sequence"
	propUniqueID           = "UniqueId"
	propNumTasks           = "NumTasks"
	propReason             = "Reason"
)

// maxSequenceProperties and maxSequenceEntriesPerProperty implement §3's
// "ordered list of UUIDs up to 15×975 entries across properties" sequence
// entity shape: 15 string properties (Sequence0..Sequence14), each holding
// up to 975 comma-joined UUIDs. A full property of 975 36-char UUIDs is
// 975*37-1 = 36074 chars, above maxStringPropertyLength (32174); toEntity
// bounds the entry count per property, not the joined length.
const (
	maxSequenceProperties         = 15
	maxSequenceEntriesPerProperty = 975
)

// maxStringPropertyLength is the object store's string-property ceiling
// (§4.3's append-with-bounded-length contract).
const maxStringPropertyLength = 32174

// maxAppendEntries is how many comma-separated entries UniqueIds and
// AdditionTimestamps are truncated to once a further append would overflow
// maxStringPropertyLength.
const maxAppendEntries = 32
