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
package persistedretry

import (
	"time"

	"github.com/cenkalti/backoff"
)

// Config defines Manager configuration.
type Config struct {
	IncomingBuffer int `yaml:"incoming_buffer"`
	RetryBuffer    int `yaml:"retry_buffer"`

	NumIncomingWorkers int `yaml:"num_incoming_workers"`
	NumRetryWorkers    int `yaml:"num_retry_workers"`

	// Max rate of task execution across all workers.
	MaxTaskThroughput time.Duration `yaml:"max_task_throughput"`

	// Interval at which failed tasks should be retried.
	RetryInterval time.Duration `yaml:"retry_interval"`

	// Interval at which retries should be polled from storage.
	PollRetriesInterval time.Duration `yaml:"poll_retries_interval"`

	// SyncRetryBackoff configures SyncExec's in-place retry loop.
	SyncRetryBackoff SyncRetryBackoff `yaml:"sync_retry_backoff"`

	// Flags that zero-value channel sizes should not have defaults applied.
	Testing bool
}

// SyncRetryBackoff configures the backoff.BackOff SyncExec retries against.
// Zero fields fall back to cenkalti/backoff's own exponential defaults.
type SyncRetryBackoff struct {
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	MaxElapsedTime  time.Duration `yaml:"max_elapsed_time"`
}

// Build constructs the backoff.BackOff SyncExec calls backoff.Retry with.
func (b SyncRetryBackoff) Build() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if b.InitialInterval > 0 {
		eb.InitialInterval = b.InitialInterval
	}
	if b.MaxInterval > 0 {
		eb.MaxInterval = b.MaxInterval
	}
	if b.MaxElapsedTime > 0 {
		eb.MaxElapsedTime = b.MaxElapsedTime
	}
	return eb
}

func (c Config) applyDefaults() Config {
	if c.NumIncomingWorkers == 0 {
		c.NumIncomingWorkers = 4
	}
	if c.NumRetryWorkers == 0 {
		c.NumRetryWorkers = 2
	}
	if c.MaxTaskThroughput == 0 {
		c.MaxTaskThroughput = 10 * time.Millisecond
	}
	if c.PollRetriesInterval == 0 {
		c.PollRetriesInterval = 15 * time.Second
	}
	if c.RetryInterval == 0 {
		c.RetryInterval = 30 * time.Second
	}
	if !c.Testing {
		if c.IncomingBuffer == 0 {
			c.IncomingBuffer = 1000
		}
		if c.RetryBuffer == 0 {
			c.RetryBuffer = 1000
		}
	}
	return c
}
