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

// Package syncutil provides small concurrency primitives shared by the
// worker pools in federation/batchclient and cascade/imagedriver.
package syncutil

import "sync"

// Counters is a fixed-size slice of independently-locked integer counters,
// used to track per-bucket in-flight work (e.g. active pool refreshes, active
// image pulls) without contending on a single mutex.
type Counters struct {
	mus  []sync.Mutex
	vals []int
}

// NewCounters creates n counters, all initialized to 0.
func NewCounters(n int) *Counters {
	return &Counters{
		mus:  make([]sync.Mutex, n),
		vals: make([]int, n),
	}
}

// Len returns the number of counters.
func (c *Counters) Len() int {
	return len(c.vals)
}

// Increment adds 1 to counter k.
func (c *Counters) Increment(k int) {
	c.mus[k].Lock()
	defer c.mus[k].Unlock()
	c.vals[k]++
}

// Decrement subtracts 1 from counter k.
func (c *Counters) Decrement(k int) {
	c.mus[k].Lock()
	defer c.mus[k].Unlock()
	c.vals[k]--
}

// Set assigns v to counter k.
func (c *Counters) Set(k, v int) {
	c.mus[k].Lock()
	defer c.mus[k].Unlock()
	c.vals[k] = v
}

// Get returns the current value of counter k.
func (c *Counters) Get(k int) int {
	c.mus[k].Lock()
	defer c.mus[k].Unlock()
	return c.vals[k]
}
