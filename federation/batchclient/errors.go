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

import "errors"

// ErrPoolNotFound is returned when a named pool does not exist in the
// target federation member.
var ErrPoolNotFound = errors.New("pool not found")

// ErrJobExists is returned by AddJob/AddJobSchedule when the service answers
// 409 Conflict because a job or job schedule with the same ID already
// exists; the existing job's settings are not compared with the submitted
// ones.
var ErrJobExists = errors.New("job already exists with incompatible settings")

// ErrRequestBodyTooLarge is returned internally by addTaskChunk whenever the
// service rejects a chunk as too large; AddTaskCollection halves the chunk
// on it and does not return it to callers.
var ErrRequestBodyTooLarge = errors.New("request body too large")

// ErrAuthExhausted is returned when MaxAuthRetries credential refreshes in
// a row all still result in an authorization failure.
var ErrAuthExhausted = errors.New("exhausted auth retries")
