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
package seedretry

import (
	"context"
	"fmt"

	"github.com/Azure/batch-shipyard-go/lib/persistedretry"
)

// SeedFunc re-attempts seeding resource, matching imagedriver.Driver's
// seedOne signature.
type SeedFunc func(ctx context.Context, resource string) error

// Executor retries a Task's seed attempt through a Driver-supplied SeedFunc.
type Executor struct {
	seed SeedFunc
}

// NewExecutor creates a new Executor.
func NewExecutor(seed SeedFunc) *Executor {
	return &Executor{seed: seed}
}

// Name returns the executor name.
func (e *Executor) Name() string {
	return "cascade_seed_retry"
}

// Exec re-attempts r's seed. Exec runs off the manager's worker pool, not
// the request path, so it is given a fresh background context rather than
// one scoped to the original seed attempt.
func (e *Executor) Exec(r persistedretry.Task) error {
	t, ok := r.(*Task)
	if !ok {
		return fmt.Errorf("expected *Task, got %T", r)
	}
	return e.seed(context.Background(), t.Resource)
}
