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

// Package workerpool provides the bounded-worker-pool fan-out used by
// BatchClient.AggregateActiveTasksOnPool (§4.2) and the federation clock's
// pool-refresh step (§4.8), both of which cap concurrency at
// min(len(items), maxWorkers) per §9's "max_workers_for_executor" note.
package workerpool

import "sync"

// Run invokes fn once per index in [0, n), bounded to at most maxWorkers
// concurrent invocations, and returns the first non-nil error encountered
// (all invocations still run to completion).
func Run(n, maxWorkers int, fn func(i int) error) error {
	workers := maxWorkers
	if n < workers {
		workers = n
	}
	if workers <= 0 {
		return nil
	}

	work := make(chan int)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				if err := fn(i); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
				}
			}
		}()
	}
	for i := 0; i < n; i++ {
		work <- i
	}
	close(work)
	wg.Wait()

	return firstErr
}
