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
package main

import (
	"go.uber.org/zap"

	"github.com/Azure/batch-shipyard-go/cascade/clock"
	"github.com/Azure/batch-shipyard-go/cascade/imagedriver"
	cascadetorrent "github.com/Azure/batch-shipyard-go/cascade/torrent"
	"github.com/Azure/batch-shipyard-go/federation/storageclient"
	"github.com/Azure/batch-shipyard-go/lib/backend"
	"github.com/Azure/batch-shipyard-go/lib/containerruntime"
	"github.com/Azure/batch-shipyard-go/lib/metainfogen"
	"github.com/Azure/batch-shipyard-go/localdb"
	"github.com/Azure/batch-shipyard-go/metrics"
)

// Config defines the node-side P2P image distributor's configuration.
type Config struct {
	ZapLogging  zap.Config              `yaml:"zap"`
	Metrics     metrics.Config          `yaml:"metrics"`
	LocalDB     localdb.Config          `yaml:"localdb"`
	Backends    []backend.Config        `yaml:"backends"`
	BackendAuth backend.AuthConfig      `yaml:"backend_auth"`
	Storage     storageclient.Config    `yaml:"storage"`
	Torrent     cascadetorrent.Config   `yaml:"torrent"`
	ImageDriver imagedriver.Config      `yaml:"imagedriver"`
	Runtime     containerruntime.Config `yaml:"runtime"`
	MetaInfoGen metainfogen.Config      `yaml:"metainfogen"`
	Scheduler   clock.Config            `yaml:"scheduler"`

	// Partition identifies the pool this node belongs to, "acct$pool".
	Partition string `yaml:"partition"`
}
