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

// Package action implements C5, the per-federation action-queue processor:
// dequeue, sequence-head resolution, payload dispatch, and submission
// bookkeeping of §4.5.
package action

import (
	"github.com/Azure/batch-shipyard-go/federation/batchclient"
	"github.com/Azure/batch-shipyard-go/federation/data"
	"github.com/Azure/batch-shipyard-go/federation/pool"
)

// Kind names an action verb, per §3's ActionBlob schema.
type Kind string

// Action kinds.
const (
	KindAdd       Kind = "add"
	KindTerminate Kind = "terminate"
	KindDelete    Kind = "delete"
)

// QueueMessage is the small envelope carried in the action queue, pointing
// at the full payload blob rather than embedding it, per §6's
// "<prefix>fed-<fedhash> blob container of action payloads at
// messages/<uuid>.pickle" layout. The original implementation pickles this
// envelope; this implementation uses JSON (see DESIGN.md).
type QueueMessage struct {
	FederationID string          `json:"federationId"`
	TargetID     string          `json:"targetId"`
	Kind         data.TargetKind `json:"kind"`
	UniqueID     string          `json:"uniqueId"`
	BlobURL      string          `json:"blobUrl"`
}

// Payload is an ActionBlob, per §3: `{version=1, action, kind, target.id,
// target.data, target.constraints, task_naming?, task_map?}`.
type Payload struct {
	Version     int             `json:"version"`
	Action      Kind            `json:"action"`
	TargetKind  data.TargetKind `json:"kind"`
	TargetID    string          `json:"targetId"`
	UniqueID    string          `json:"uniqueId"`

	Job         *batchclient.JobSpec         `json:"job,omitempty"`
	JobSchedule *batchclient.JobScheduleSpec `json:"jobSchedule,omitempty"`
	Tasks       []batchclient.TaskSpec       `json:"tasks,omitempty"`

	Constraints pool.Constraints `json:"constraints,omitempty"`
	// NumTasksEquivalentVMs is the bin-fit requirement for this
	// submission: VM count for multi-instance jobs, total task slots
	// otherwise, per §4.4.5.
	NumTasksEquivalentVMs int  `json:"numTasksEquivalentVms,omitempty"`
	ByVMs                 bool `json:"byVms,omitempty"`

	TaskNaming *batchclient.TaskNaming `json:"taskNaming,omitempty"`
}
