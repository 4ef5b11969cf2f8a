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
	"context"
	"fmt"
	"time"

	"github.com/Azure/batch-shipyard-go/lib/containerruntime"
	"github.com/Azure/batch-shipyard-go/utils/log"
)

const loadPollInterval = time.Second

// loadPollLoop polls the Torrent Engine for newly seed-ready resources and
// loads/registers each one, matching §4.8's 1-s per-resource status cadence
// and §4.7's load path. Stops when ctx is cancelled.
func (d *Driver) loadPollLoop(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(loadPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, resource := range d.engine.Advance() {
				if err := d.loadOne(ctx, resource); err != nil {
					log.Errorf("cascade: load %s: %s", resource, err)
				}
			}
		}
	}
}

// loadOne runs §4.7's load path for a seed-ready resource: materialize the
// image into the local runtime, then register this node as a seeder.
// Guarded by loadMu so only one load executes at a time per node, matching
// §5's "load-and-register is guarded by an async-lock."
func (d *Driver) loadOne(ctx context.Context, resource string) error {
	d.loadMu.Lock()
	defer d.loadMu.Unlock()

	runtimeName, image, err := containerruntime.ParseResource(resource)
	if err != nil {
		return err
	}
	rt, err := d.runtimes.Get(runtimeName)
	if err != nil {
		return fmt.Errorf("resolve runtime: %s", err)
	}

	hash := resourceHash(resource)
	if err := d.loadArtifact(ctx, rt, hash); err != nil {
		return fmt.Errorf("load artifact: %s", err)
	}
	d.engine.MarkLoaded(resource)
	log.Infof("cascade: loaded %s image %s", runtimeName, image)

	if err := d.mergeSelfIntoServices(resource); err != nil {
		return fmt.Errorf("merge services after load: %s", err)
	}
	d.engine.MarkRegistered(resource)
	return nil
}

// loadArtifact reads back the artifact produceArtifact wrote for hash and
// hands it to rt.Load, matching §4.7's load path (`pigz -cd <file> | docker
// load` for the compressed case, `tar -cO . | docker load` otherwise).
func (d *Driver) loadArtifact(ctx context.Context, rt containerruntime.ContainerRuntime, hash string) error {
	r, err := d.scratch.OpenArtifact(hash, d.config.Compression)
	if err != nil {
		return fmt.Errorf("open artifact: %s", err)
	}
	defer r.Close()
	return rt.Load(ctx, r)
}
