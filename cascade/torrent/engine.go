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

// Package torrent implements C6, wrapping anacrolix/torrent's *torrent.
// Client to seed and fetch cascade image artifacts over a DHT-only swarm
// per §4.6. Piece verification is delegated entirely to the underlying
// library; this package never touches piece data.
package torrent

import (
	"context"
	"fmt"
	"net"

	anadht "github.com/anacrolix/dht/v2"
	anatorrent "github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"

	"github.com/Azure/batch-shipyard-go/cascade/data"
	"github.com/Azure/batch-shipyard-go/utils/log"
)

// Config configures the engine's torrent.Client.
type Config struct {
	DataDir  string `yaml:"data_dir"`
	ListenIP string `yaml:"listen_ip"`
	Port     int    `yaml:"port"`
}

func (c Config) applyDefaults() Config {
	if c.Port == 0 {
		c.Port = defaultDHTPort
	}
	return c
}

// Engine drives C6: one torrent.Client per node, a DHT-only swarm, and the
// per-resource Pending -> ... -> Registered lifecycle of §4.6.
type Engine struct {
	config    Config
	data      *data.Client
	partition string
	client    *anatorrent.Client
	registry  *registry
}

// New constructs an Engine and starts its torrent.Client with trackers,
// UPnP, NAT-PMP, and local-service discovery disabled, leaving DHT as the
// sole discovery mechanism, per §4.6.
func New(config Config, d *data.Client, partition string) (*Engine, error) {
	config = config.applyDefaults()

	cfg := anatorrent.NewDefaultClientConfig()
	cfg.DataDir = config.DataDir
	cfg.ListenPort = config.Port
	cfg.DisableTrackers = true
	cfg.NoDefaultPortForwarding = true // disables UPnP/NAT-PMP
	cfg.DisableUTP = false
	cfg.Seed = true

	client, err := anatorrent.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("new torrent client: %s", err)
	}

	return &Engine{
		config:    config,
		data:      d,
		partition: partition,
		client:    client,
		registry:  newRegistry(),
	}, nil
}

// Close shuts down the underlying torrent.Client.
func (e *Engine) Close() error {
	errs := e.client.Close()
	if len(errs) > 0 {
		return fmt.Errorf("close torrent client: %v", errs)
	}
	return nil
}

// BootstrapDHT registers this node in the pool's DHT roster and seeds the
// local DHT session with up to minDHTRouters peers, retrying on
// bootstrapBackoff's ladder until ctx is cancelled or enough peers are
// known. Run this once at startup in its own goroutine; it blocks.
func (e *Engine) BootstrapDHT(ctx context.Context) {
	bootstrapDHT(ctx, e.data, clientDHTAdder{e.client}, e.partition, e.config.ListenIP, e.config.Port)
}

// clientDHTAdder adapts *anatorrent.Client's DHT servers to dhtRouterAdder.
type clientDHTAdder struct {
	client *anatorrent.Client
}

func (a clientDHTAdder) AddNode(ip string, port int) error {
	servers := a.client.DHT()
	if len(servers) == 0 {
		return fmt.Errorf("no dht servers configured")
	}
	udpAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", ip, port))
	if err != nil {
		return fmt.Errorf("resolve %s:%d: %s", ip, port, err)
	}
	var lastErr error
	for _, s := range servers {
		if err := s.AddNode(anadht.NewAddr(udpAddr)); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Seed registers resource with the engine and starts downloading/seeding
// mi under the client's DataDir, transitioning it Pending -> Started, per
// §4.6.
func (e *Engine) Seed(resource string, mi *metainfo.MetaInfo) error {
	e.registry.add(resource)

	t, err := e.client.AddTorrent(mi)
	if err != nil {
		return fmt.Errorf("add torrent for %s: %s", resource, err)
	}
	t.DownloadAll()
	e.registry.start(resource, t)
	log.Infof("cascade: created torrent session for %s", resource)
	return nil
}

// Advance runs §4.6's "pending -> active" periodic step: every started
// resource whose handle has finished downloading (is a seed) is promoted to
// Seed-ready. Callers poll this from a ticker; it never blocks on I/O.
func (e *Engine) Advance() []string {
	var readyNow []string
	for _, entry := range e.registry.snapshot() {
		if entry.state != Started || entry.handle == nil {
			continue
		}
		if isSeed(entry.handle) {
			if e.registry.advance(entry.resource, SeedReady) {
				readyNow = append(readyNow, entry.resource)
			}
		}
	}
	return readyNow
}

// MarkLoaded promotes resource to Loaded once the image driver has
// materialized it locally.
func (e *Engine) MarkLoaded(resource string) {
	e.registry.advance(resource, Loaded)
}

// MarkRegistered promotes resource to Registered once it has been merged
// into the services table.
func (e *Engine) MarkRegistered(resource string) {
	e.registry.advance(resource, Registered)
}

// StateOf returns resource's current lifecycle state.
func (e *Engine) StateOf(resource string) (State, bool) {
	entry, ok := e.registry.get(resource)
	if !ok {
		return Pending, false
	}
	return entry.state, true
}

// isSeed reports whether a torrent handle has downloaded everything it
// needs and is now capable of serving pieces to others.
func isSeed(t *anatorrent.Torrent) bool {
	info := t.Info()
	return info != nil && t.BytesCompleted() >= info.TotalLength()
}
