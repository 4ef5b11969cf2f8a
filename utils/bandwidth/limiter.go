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
package bandwidth

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter enforces egress / ingress bandwidth limits using token buckets,
// where each token represents config.TokenSize bits.
type Limiter struct {
	mu     sync.Mutex
	config Config

	egress  *rate.Limiter
	ingress *rate.Limiter
}

// NewLimiter creates a new Limiter. If config.Enable is false, the returned
// Limiter never blocks.
func NewLimiter(config Config) (*Limiter, error) {
	if !config.Enable {
		return &Limiter{config: config}, nil
	}
	if config.EgressBitsPerSec == 0 {
		return nil, errors.New("egress_bits_per_sec must be non-zero when enabled")
	}
	if config.IngressBitsPerSec == 0 {
		return nil, errors.New("ingress_bits_per_sec must be non-zero when enabled")
	}
	if config.TokenSize == 0 {
		config.TokenSize = 1
	}
	return &Limiter{
		config:  config,
		egress:  newTokenLimiter(config.EgressBitsPerSec, config.TokenSize),
		ingress: newTokenLimiter(config.IngressBitsPerSec, config.TokenSize),
	}, nil
}

func newTokenLimiter(bitsPerSec uint64, tokenSize int64) *rate.Limiter {
	tokensPerSec := bitsPerSec / uint64(tokenSize)
	if tokensPerSec < 1 {
		tokensPerSec = 1
	}
	return rate.NewLimiter(rate.Limit(tokensPerSec), int(tokensPerSec))
}

func tokens(nbytes int64, tokenSize int64) int {
	n := nbytes * 8 / tokenSize
	if n < 1 {
		n = 1
	}
	return int(n)
}

func (l *Limiter) reserve(limiter *rate.Limiter, nbytes int64) error {
	if limiter == nil {
		return nil
	}
	r := limiter.ReserveN(time.Now(), tokens(nbytes, l.config.TokenSize))
	if !r.OK() {
		return errors.New("bandwidth: reservation exceeds bucket capacity")
	}
	time.Sleep(r.Delay())
	return nil
}

// ReserveEgress blocks until nbytes of egress bandwidth is available.
func (l *Limiter) ReserveEgress(nbytes int64) error {
	return l.reserve(l.egress, nbytes)
}

// ReserveIngress blocks until nbytes of ingress bandwidth is available.
func (l *Limiter) ReserveIngress(nbytes int64) error {
	return l.reserve(l.ingress, nbytes)
}

// Adjust re-splits the originally configured bandwidth across denominator
// peers, e.g. when the number of active cascade peers changes.
func (l *Limiter) Adjust(denominator int) error {
	if denominator <= 0 {
		return errors.New("denominator must be positive")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.egress != nil {
		l.egress = newTokenLimiter(l.config.EgressBitsPerSec/uint64(denominator), l.config.TokenSize)
	}
	if l.ingress != nil {
		l.ingress = newTokenLimiter(l.config.IngressBitsPerSec/uint64(denominator), l.config.TokenSize)
	}
	return nil
}

// EgressLimit returns the current egress limit in tokens/sec.
func (l *Limiter) EgressLimit() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.egress == nil {
		return 0
	}
	return int64(l.egress.Limit())
}

// IngressLimit returns the current ingress limit in tokens/sec.
func (l *Limiter) IngressLimit() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ingress == nil {
		return 0
	}
	return int64(l.ingress.Limit())
}
