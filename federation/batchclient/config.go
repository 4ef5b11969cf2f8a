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

// Package batchclient implements C2, a typed wrapper over the cloud batch
// service's REST contract (§4.2). Authentication is out of scope per §1;
// callers inject a TokenProvider.
package batchclient

import "time"

// Config configures a Client.
type Config struct {
	// RequestTimeout bounds a single HTTP request.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MaxAuthRetries bounds retries after a transparent credential refresh
	// on authorization failure (§4.2's get_pool contract: "re-acquires
	// credentials and retries up to 10 times").
	MaxAuthRetries int `yaml:"max_auth_retries"`

	// TaskChunkSize is the number of tasks submitted per bulk add-tasks
	// request before RequestBodyTooLarge halving kicks in (§4.2, default
	// 100).
	TaskChunkSize int `yaml:"task_chunk_size"`

	// ActiveTaskWorkers bounds the worker pool used to fan out per-job
	// active-task-count queries in AggregateActiveTasksOnPool (§4.2,
	// default min(len(jobs), 32)).
	ActiveTaskWorkers int `yaml:"active_task_workers"`
}

func (c Config) applyDefaults() Config {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.MaxAuthRetries == 0 {
		c.MaxAuthRetries = 10
	}
	if c.TaskChunkSize == 0 {
		c.TaskChunkSize = 100
	}
	if c.ActiveTaskWorkers == 0 {
		c.ActiveTaskWorkers = 32
	}
	return c
}

// TokenProvider returns the current bearer token for serviceURL, refreshing
// credentials each call it is invoked after an authorization failure.
type TokenProvider interface {
	Token(serviceURL string) (string, error)
	Refresh(serviceURL string) error
}
