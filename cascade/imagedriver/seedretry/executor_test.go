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
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Azure/batch-shipyard-go/lib/persistedretry"
)

type fakeTask struct{ persistedretry.Task }

func TestExecutorExecCallsSeedFuncWithTaskResource(t *testing.T) {
	require := require.New(t)

	task := TaskFixture()
	var gotResource string
	executor := NewExecutor(func(ctx context.Context, resource string) error {
		gotResource = resource
		return nil
	})

	require.NoError(executor.Exec(task))
	require.Equal(task.Resource, gotResource)
}

func TestExecutorExecPropagatesSeedFuncError(t *testing.T) {
	require := require.New(t)

	wantErr := errors.New("pull failed")
	executor := NewExecutor(func(ctx context.Context, resource string) error {
		return wantErr
	})

	require.Equal(wantErr, executor.Exec(TaskFixture()))
}

func TestExecutorExecRejectsWrongTaskType(t *testing.T) {
	require := require.New(t)

	executor := NewExecutor(func(ctx context.Context, resource string) error {
		t.Fatal("seed func should not be called")
		return nil
	})

	require.Error(executor.Exec(&fakeTask{}))
}

func TestExecutorName(t *testing.T) {
	require := require.New(t)
	require.Equal("cascade_seed_retry", NewExecutor(nil).Name())
}
