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

// Package seedretry implements a persisted retry queue for §4.7 step 3's
// image pull/seed path: a resource whose in-memory seed attempt fails is
// durably re-queued so it survives a node restart instead of being dropped.
package seedretry

import (
	"fmt"
	"time"
)

// Task is one resource (a "runtime:repo:tag" reference, per
// containerruntime.ParseResource) awaiting a retried seed attempt.
type Task struct {
	Partition   string        `db:"partition"`
	Resource    string        `db:"resource"`
	CreatedAt   time.Time     `db:"created_at"`
	LastAttempt time.Time     `db:"last_attempt"`
	Failures    int           `db:"failures"`
	Delay       time.Duration `db:"delay"`
}

// NewTask creates a Task for resource, ready to run after delay.
func NewTask(partition, resource string, delay time.Duration) *Task {
	now := time.Now()
	return &Task{
		Partition:   partition,
		Resource:    resource,
		CreatedAt:   now,
		LastAttempt: now,
		Delay:       delay,
	}
}

func (t *Task) String() string {
	return fmt.Sprintf("seedretry.Task(partition=%s, resource=%s)", t.Partition, t.Resource)
}

// GetLastAttempt returns when t was last attempted.
func (t *Task) GetLastAttempt() time.Time {
	return t.LastAttempt
}

// GetFailures returns the number of times t has failed.
func (t *Task) GetFailures() int {
	return t.Failures
}

// Ready reports whether t's initial delay has elapsed.
func (t *Task) Ready() bool {
	return time.Since(t.CreatedAt) >= t.Delay
}

// Tags groups this task's metrics by partition, per §4.7's per-pool scoping.
func (t *Task) Tags() map[string]string {
	return map[string]string{"partition": t.Partition}
}
