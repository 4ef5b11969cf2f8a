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
package torrent

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/batch-shipyard-go/cascade/data"
	"github.com/Azure/batch-shipyard-go/lib/hrw"
	"github.com/Azure/batch-shipyard-go/utils/log"
)

// defaultDHTPort is the port every node's DHT session listens on, per §4.6.
const defaultDHTPort = 6881

// minDHTRouters is the number of router nodes bootstrap tries to seed the
// local DHT session with before it stops retrying.
const minDHTRouters = 3

// dhtRouterAdder is the capability bootstrapDHT needs from the local DHT
// session: add a candidate router node. Narrowed out of *dht.Server so the
// selection and retry-ladder logic is testable without a real session.
type dhtRouterAdder interface {
	AddNode(ip string, port int) error
}

// bootstrapBackoff implements §4.6's "1s for first 600 attempts, 10s for
// next 600, 30s thereafter" retry ladder.
func bootstrapBackoff(attempt int) time.Duration {
	switch {
	case attempt < 600:
		return time.Second
	case attempt < 1200:
		return 10 * time.Second
	default:
		return 30 * time.Second
	}
}

// selectRouters deterministically ranks every known DHT roster entry
// (excluding self) against selfIP using rendezvous hashing and returns the
// top n. Every node in the pool computes the same ranking from the same
// roster, so the pool converges on a consistent bootstrap topology without
// any coordination beyond the shared roster table.
func selectRouters(nodes []*data.DHTRow, selfIP string, n int) []*data.DHTRow {
	byAddr := make(map[string]*data.DHTRow, len(nodes))
	rh := hrw.NewRendezvousHash(hrw.Murmur3Hash, hrw.UInt64ToFloat64)
	for _, node := range nodes {
		if node.IP == selfIP {
			continue
		}
		addr := fmt.Sprintf("%s:%d", node.IP, node.Port)
		byAddr[addr] = node
		rh.AddNode(addr, 1)
	}
	ordered := rh.GetOrderedNodes(selfIP, n)
	out := make([]*data.DHTRow, 0, len(ordered))
	for _, on := range ordered {
		out = append(out, byAddr[on.Label])
	}
	return out
}

// bootstrapDHT registers self in the pool's DHT roster, ranks the remaining
// roster with selectRouters, and adds up to minDHTRouters of them as
// routers on adder. If fewer than minDHTRouters peers are known it keeps
// retrying on bootstrapBackoff's ladder until ctx is cancelled, matching
// §4.6's bootstrap_dht_nodes.
func bootstrapDHT(ctx context.Context, d *data.Client, adder dhtRouterAdder, partition, selfIP string, selfPort int) {
	attempt := 0
	for {
		if err := d.RegisterDHTSelf(partition, selfIP, selfPort); err != nil {
			log.Warnf("cascade: register dht self: %s", err)
		}

		nodes, err := d.ListDHTNodes(partition)
		if err != nil {
			log.Warnf("cascade: list dht nodes: %s", err)
			nodes = nil
		}

		routers := selectRouters(nodes, selfIP, minDHTRouters)
		for _, node := range routers {
			if err := adder.AddNode(node.IP, node.Port); err != nil {
				log.Warnf("cascade: add dht router %s:%d: %s", node.IP, node.Port, err)
			}
		}

		if len(routers) >= minDHTRouters {
			return
		}

		delay := bootstrapBackoff(attempt)
		attempt++
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}
