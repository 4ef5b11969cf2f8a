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
	"time"

	"github.com/Azure/batch-shipyard-go/utils/log"
)

// rateSample remembers a resource's completed-byte count at the last status
// tick, so LogResourceStatus can report an instantaneous rate without the
// underlying library exposing one directly.
type rateSample struct {
	bytes int64
	at    time.Time
}

// StatusLogger emits §4.6's two logging cadences: per-resource activity
// status (gated on actual activity, called every tick) and minute-
// granularity aggregate DHT stats.
type StatusLogger struct {
	engine        *Engine
	samples       map[string]rateSample
	lastAggregate time.Time
}

// NewStatusLogger returns a StatusLogger for engine.
func NewStatusLogger(engine *Engine) *StatusLogger {
	return &StatusLogger{engine: engine, samples: make(map[string]rateSample)}
}

// LogResourceStatus logs one line per resource whose download rate, peer
// count, or incompleteness is nonzero. Upload rate is not measured and
// plays no part in the gate.
func (l *StatusLogger) LogResourceStatus(now time.Time) {
	for _, entry := range l.engine.registry.snapshot() {
		if entry.handle == nil {
			continue
		}
		completed := entry.handle.BytesCompleted()
		prev, ok := l.samples[entry.resource]
		l.samples[entry.resource] = rateSample{bytes: completed, at: now}
		if !ok {
			continue
		}

		elapsed := now.Sub(prev.at).Seconds()
		if elapsed <= 0 {
			continue
		}
		downRate := float64(completed-prev.bytes) / elapsed

		info := entry.handle.Info()
		total := int64(0)
		if info != nil {
			total = info.TotalLength()
		}
		incomplete := total == 0 || completed < total
		numPeers := len(entry.handle.PeerConns())

		if downRate <= 0 && numPeers == 0 && !incomplete {
			continue
		}
		log.Debugf(
			"%s bytes=%d state=%s peers=%d down=%.3f kB/s",
			entry.resource, completed, entry.state, numPeers, downRate/1000)
	}
}

// LogAggregate logs global swarm stats once per minute, matching the
// original implementation's dht-session dump cadence.
func (l *StatusLogger) LogAggregate(now time.Time) {
	if !l.lastAggregate.IsZero() && now.Sub(l.lastAggregate) < time.Minute {
		return
	}
	l.lastAggregate = now

	var totalTorrents, totalPeers int
	for _, entry := range l.engine.registry.snapshot() {
		if entry.handle == nil {
			continue
		}
		totalTorrents++
		totalPeers += len(entry.handle.PeerConns())
	}
	log.Debugf("cascade: dht running torrents=%d peers=%d", totalTorrents, totalPeers)
}
