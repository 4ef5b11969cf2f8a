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

// Config defines Limiter configuration.
type Config struct {
	Enable bool `yaml:"enable"`

	// EgressBitsPerSec / IngressBitsPerSec are the overall bandwidth budget,
	// in bits per second, before any Adjust call splits it across peers.
	EgressBitsPerSec  uint64 `yaml:"egress_bits_per_sec"`
	IngressBitsPerSec uint64 `yaml:"ingress_bits_per_sec"`

	// TokenSize is the number of bits represented by a single rate.Limiter
	// token. Larger values reduce scheduling overhead at the cost of burst
	// granularity.
	TokenSize int64 `yaml:"token_size"`
}
