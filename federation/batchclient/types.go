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
package batchclient

import "time"

// PoolState mirrors the cloud batch service's pool lifecycle states. Only
// Active pools are valid placement targets per §3.
type PoolState string

// Pool states.
const (
	PoolStateActive   PoolState = "active"
	PoolStateDeleting PoolState = "deleting"
	PoolStateUpgrading PoolState = "upgrading"
)

// PoolSnapshot is the subset of a cloud pool's properties FederationPool
// caches, per §3/§4.4.1.
type PoolSnapshot struct {
	PoolID                 string            `json:"poolId"`
	State                  PoolState         `json:"state"`
	VMSize                 string            `json:"vmSize"`
	NodeAgentSKUID         string            `json:"nodeAgentSkuId"`
	Cores                  float64           `json:"cores"`
	MemoryMB               float64           `json:"memoryMb"`
	MaxTasksPerNode        int               `json:"maxTasksPerNode"`
	EnableAutoScale        bool              `json:"enableAutoScale"`
	VirtualNetworkARMID    string            `json:"virtualNetworkArmId"`
	CustomImageARMID       string            `json:"customImageArmId"`
	IsWindows              bool              `json:"isWindows"`
	Metadata               map[string]string `json:"metadata"`
	ContainerRegistries    []RegistryRef     `json:"containerRegistries"`
	LoginEnvironment       map[string]string `json:"loginEnvironment"` // comma-joined server/username pairs, non-native mode
	TargetDedicatedNodes   int               `json:"targetDedicatedNodes"`
	TargetLowPriorityNodes int               `json:"targetLowPriorityNodes"`
}

// RegistryRef names a container registry login configured on a native pool.
type RegistryRef struct {
	Server   string `json:"server"`
	Username string `json:"username"`
}

// NodeCounts counts compute nodes in a pool by lifecycle state, per §4.4.1's
// schedulable = idle+running contract.
type NodeCounts struct {
	Idle     int `json:"idle"`
	Running  int `json:"running"`
	Starting int `json:"starting"`
	Other    int `json:"other"`
}

// Schedulable returns idle+running, the slots §4.4.5 treats as immediately
// placeable.
func (c NodeCounts) Schedulable() int {
	return c.Idle + c.Running
}

// Available returns idle+running+starting.
func (c NodeCounts) Available() int {
	return c.Idle + c.Running + c.Starting
}

// PoolNodeCounts splits node counts by dedicated vs low-priority, per
// §4.4.1's `{dedicated:{...}, low_priority:{...}}` shape.
type PoolNodeCounts struct {
	Dedicated   NodeCounts `json:"dedicated"`
	LowPriority NodeCounts `json:"lowPriority"`
}

// JobSpec is the subset of a cloud job submission the federation controller
// patches and forwards, per §4.4.6.
type JobSpec struct {
	ID                   string            `json:"id"`
	PoolID               string            `json:"poolId"`
	JobPrepCommandLine   string            `json:"jobPreparationCommandLine,omitempty"`
	UsesTaskDependencies bool              `json:"usesTaskDependencies"`
	OnTaskFailure        string            `json:"onTaskFailure,omitempty"`
	EnvironmentSettings  map[string]string `json:"environmentSettings,omitempty"`
	Metadata             map[string]string `json:"metadata,omitempty"`
}

// JobScheduleSpec is the job-schedule analog of JobSpec.
type JobScheduleSpec struct {
	ID     string  `json:"id"`
	PoolID string  `json:"poolId"`
	Job    JobSpec `json:"jobSpecification"`
}

// TaskSpec is a single task within an add-tasks bulk request.
type TaskSpec struct {
	ID                           string                 `json:"id"`
	CommandLine                  string                 `json:"commandLine"`
	EnableInterNodeCommunication bool                   `json:"enableInterNodeCommunication"`
	MultiInstanceSettings        *MultiInstanceSettings `json:"multiInstanceSettings,omitempty"`
	DependsOnTaskIDs              []string               `json:"dependsOnTaskIds,omitempty"`
	EnvironmentSettings           map[string]string      `json:"environmentSettings,omitempty"`
}

// MultiInstanceSettings names the subset of a multi-instance task's
// settings the RDMA fix-up of §4.4.6 rewrites.
type MultiInstanceSettings struct {
	NumberOfInstances       int    `json:"numberOfInstances"`
	CoordinationCommandLine string `json:"coordinationCommandLine"`
}

// TaskNaming describes the next-free-id generation scheme of §4.2's
// regenerate_next_generic_task_id.
type TaskNaming struct {
	Prefix  string
	Padding int
}

// AddTaskResult reports one task's outcome from a bulk add-tasks request.
type AddTaskResult struct {
	TaskID  string
	Status  TaskAddStatus
	Err     error
}

// TaskAddStatus classifies a single task's bulk-add outcome per §4.2.
type TaskAddStatus string

// Task add statuses.
const (
	TaskAddSuccess     TaskAddStatus = "success"
	TaskAddServerError TaskAddStatus = "server_error"
	TaskAddClientError TaskAddStatus = "client_error"
)

// activeTaskPollInterval is not referenced; each per-job task-count query
// of AggregateActiveTasksOnPool is bounded by Config.RequestTimeout.
const activeTaskPollInterval = 2 * time.Second
