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
package imagedriver

import (
	"math/rand"
	"strings"
	"time"
)

// transientPullErrors is the recognized list of registry overload/transient
// errors that §4.7 step 3 retries on, rather than failing the pull outright.
var transientPullErrors = []string{
	"toomanyrequests",
	"connection reset by peer",
	"tls handshake timeout",
	"error pulling image configuration",
	"error parsing http 404 response body",
	"received unexpected http status",
}

// isTransientPullError reports whether err's message matches one of
// transientPullErrors, case-insensitively.
func isTransientPullError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range transientPullErrors {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

const maxPullBackoff = 300 * time.Second

// pullBackoff reproduces the original implementation's randomized
// exponential backoff for a sequence of transient pull retries: each
// failure doubles the window, draws a sleep uniformly from within it, and
// resets once the window reaches the 300 s cap.
type pullBackoff struct {
	seconds int
}

func newPullBackoff() *pullBackoff {
	return &pullBackoff{seconds: randIntn(2, 5)}
}

// next returns how long to sleep before the next retry attempt, advancing
// internal state the same way the original's inline loop does.
func (b *pullBackoff) next() time.Duration {
	b.seconds <<= 1
	end := b.seconds << 1
	if end >= 300 {
		end = 300
		if b.seconds > end {
			b.seconds = end
		}
	}
	delay := time.Duration(randIntn(b.seconds, end)) * time.Second
	if b.seconds >= 300 {
		b.seconds = randIntn(2, 5)
	}
	return delay
}

// randIntn returns a pseudo-random int in [lo, hi], matching Python's
// random.randint(lo, hi) inclusive range.
func randIntn(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rand.Intn(hi-lo+1)
}
