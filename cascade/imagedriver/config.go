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

// Package imagedriver implements C7: pull, reproducible-tar save, load, and
// services-table registration of container images, driving the Torrent
// Engine from a single in-process seed queue and a polled load step.
package imagedriver

import (
	"time"

	"github.com/Azure/batch-shipyard-go/lib/persistedretry"
)

const (
	defaultSeedBias           = 3
	defaultConcurrentPulls    = 3
	defaultLeaseDuration      = 30 * time.Second
	defaultLeaseRenewEvery    = 15 * time.Second
	defaultGlobalResContainer = "gr"
	defaultTorrentContainer   = "tor"
)

// Config configures a Driver, sourced from the p2popts positional argument
// (`enabled:concurrent_downloads:seed_bias:compression`, per §6) plus the
// node's storage prefix.
type Config struct {
	// ConcurrentDownloads bounds how many of this node's blob-lease slots
	// (and therefore concurrent registry pulls) may be held at once.
	ConcurrentDownloads int `yaml:"concurrent_downloads"`

	// SeedBias is the minimum recorded seeder count in the torrent-info
	// table before a node prefers swarm download over an origin pull.
	SeedBias int `yaml:"seed_bias"`

	// Compression enables the reproducible-tarball + pigz path of §4.7
	// step 5. When false, resources are torrented as exploded directories.
	Compression bool `yaml:"compression"`

	// ScratchDir is the per-node root for exploded/packed artifacts.
	ScratchDir string `yaml:"scratch_dir"`

	// GlobalResourcesContainer names the blob container holding this
	// pool's numbered direct-download lease placeholders.
	GlobalResourcesContainer string `yaml:"global_resources_container"`

	// TorrentContainer names the blob container holding uploaded .torrent
	// files.
	TorrentContainer string `yaml:"torrent_container"`

	// LeaseDuration is how long a direct-download slot lease is held
	// before it must be renewed.
	LeaseDuration time.Duration `yaml:"lease_duration"`

	// LeaseRenewEvery is the renewal period of §4.7 step 1's "15-s
	// lease-renewal task".
	LeaseRenewEvery time.Duration `yaml:"lease_renew_every"`

	// RetryQueue configures the persisted retry queue a failed seed
	// attempt falls back to, per §4.7 step 3.
	RetryQueue persistedretry.Config `yaml:"retry_queue"`
}

func (c Config) applyDefaults() Config {
	if c.ConcurrentDownloads == 0 {
		c.ConcurrentDownloads = defaultConcurrentPulls
	}
	if c.SeedBias == 0 {
		c.SeedBias = defaultSeedBias
	}
	if c.GlobalResourcesContainer == "" {
		c.GlobalResourcesContainer = defaultGlobalResContainer
	}
	if c.TorrentContainer == "" {
		c.TorrentContainer = defaultTorrentContainer
	}
	if c.LeaseDuration == 0 {
		c.LeaseDuration = defaultLeaseDuration
	}
	if c.LeaseRenewEvery == 0 {
		c.LeaseRenewEvery = defaultLeaseRenewEvery
	}
	return c
}
