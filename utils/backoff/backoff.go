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

// Package backoff provides a small exponential-backoff retry helper, used
// throughout the federation and cascade clients to retry transient errors
// against remote storage / batch service endpoints.
package backoff

import (
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Config defines backoff parameters.
type Config struct {
	// Min is the initial (and minimum) wait between attempts.
	Min time.Duration `yaml:"min"`

	// Max caps the wait between attempts. Zero means uncapped.
	Max time.Duration `yaml:"max"`

	// Factor is the multiplier applied to the wait after each attempt.
	// Defaults to 2 if unset.
	Factor float64 `yaml:"factor"`

	// NoJitter disables randomizing the wait. Tests should set this so
	// timing is deterministic.
	NoJitter bool `yaml:"-"`

	// RetryTimeout bounds the total time spent retrying. The first attempt
	// always runs regardless of RetryTimeout.
	RetryTimeout time.Duration `yaml:"retry_timeout"`
}

func (c Config) applyDefaults() Config {
	if c.Factor == 0 {
		c.Factor = 2
	}
	if c.Min == 0 {
		c.Min = 100 * time.Millisecond
	}
	return c
}

// Backoff constructs Attempts iterators sharing the same configuration.
type Backoff struct {
	config Config
}

// New creates a Backoff from config.
func New(config Config) *Backoff {
	return &Backoff{config.applyDefaults()}
}

// Attempts starts a new retry sequence.
func (b *Backoff) Attempts() *Attempts {
	return &Attempts{
		config: b.config,
		start:  time.Now(),
		next:   b.config.Min,
	}
}

// Attempts iterates over a single retry sequence. Typical usage:
//
//	a := backoff.Attempts()
//	for a.WaitForNext() {
//	    if err := doSomething(); err == nil {
//	        return nil
//	    }
//	}
//	return a.Err()
type Attempts struct {
	config  Config
	start   time.Time
	next    time.Duration
	started bool
	err     error
}

// WaitForNext blocks until the next attempt should run, returning false once
// RetryTimeout has been exhausted. The very first call always returns true.
func (a *Attempts) WaitForNext() bool {
	if !a.started {
		a.started = true
		return true
	}

	wait := a.next
	if a.config.Max > 0 && wait > a.config.Max {
		wait = a.config.Max
	}
	if !a.config.NoJitter {
		wait = jitter(wait)
	}

	if a.config.RetryTimeout > 0 && time.Since(a.start)+wait >= a.config.RetryTimeout {
		a.err = fmt.Errorf("backoff: retry timeout of %s exceeded", a.config.RetryTimeout)
		return false
	}

	time.Sleep(wait)
	a.next = time.Duration(float64(a.next) * a.config.Factor)
	return true
}

// Err returns the reason WaitForNext stopped returning true. Always non-nil
// after WaitForNext has returned false.
func (a *Attempts) Err() error {
	if a.err == nil {
		a.err = errors.New("backoff: retry timeout exceeded")
	}
	return a.err
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}
