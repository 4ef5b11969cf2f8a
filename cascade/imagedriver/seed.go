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
	"bytes"
	"context"
	"crypto/sha1"
	"fmt"
	"time"

	"github.com/anacrolix/torrent/metainfo"

	"github.com/Azure/batch-shipyard-go/cascade/data"
	"github.com/Azure/batch-shipyard-go/federation/storageclient"
	"github.com/Azure/batch-shipyard-go/lib/containerruntime"
	"github.com/Azure/batch-shipyard-go/utils/log"
)

// seedOne runs §4.7's seed path for resource: acquire a download slot,
// prefer the swarm over the origin registry when enough seeders are known,
// otherwise pull, then build and publish a torrent so peers can fetch it
// from this node in turn.
func (d *Driver) seedOne(ctx context.Context, resource string) error {
	release, err := d.acquireSlot(ctx)
	if err != nil {
		return fmt.Errorf("acquire slot: %s", err)
	}
	defer release()

	hash := resourceHash(resource)

	info, err := d.data.GetTorrentInfo(d.partition, hash)
	if err == nil {
		seeders, serr := d.data.NumSeeders(d.partition, hash)
		if serr != nil {
			return fmt.Errorf("count seeders: %s", serr)
		}
		if seeders >= d.config.SeedBias {
			return d.seedFromSwarm(resource, info)
		}
	} else if err != storageclient.ErrEntityNotFound {
		return fmt.Errorf("get torrent info: %s", err)
	}

	return d.seedFromRegistry(ctx, resource)
}

// seedFromSwarm downloads the .torrent file named by info's locator and
// hands it to the Torrent Engine, matching §4.7 step 2.
func (d *Driver) seedFromSwarm(resource string, info *data.TorrentInfoRow) error {
	torrentBytes, err := d.storage.Blob.DownloadBlob(info.LocatorContainer, info.LocatorBlobName)
	if err != nil {
		return fmt.Errorf("download torrent file: %s", err)
	}
	mi, err := metainfo.Load(bytes.NewReader(torrentBytes))
	if err != nil {
		return fmt.Errorf("parse torrent file: %s", err)
	}
	log.Infof("cascade: seeding %s from swarm (locator %s/%s)",
		resource, info.LocatorContainer, info.LocatorBlobName)
	return d.engine.Seed(resource, mi)
}

// seedFromRegistry pulls resource from its origin registry with the
// transient-error retry ladder of §4.7 step 3, merges this node into the
// services table, produces a reproducible artifact, builds a torrent over
// it, publishes the torrent file and torrent-info row, and hands the
// resource to the Torrent Engine.
func (d *Driver) seedFromRegistry(ctx context.Context, resource string) error {
	runtimeName, image, err := containerruntime.ParseResource(resource)
	if err != nil {
		return err
	}
	rt, err := d.runtimes.Get(runtimeName)
	if err != nil {
		return fmt.Errorf("resolve runtime: %s", err)
	}
	registry, repo, tag := splitImageRef(image)

	if err := d.pullWithRetry(ctx, rt, registry, repo, tag); err != nil {
		return fmt.Errorf("pull %s: %s", resource, err)
	}
	log.Infof("cascade: pulled %s image %s", runtimeName, image)

	if err := d.mergeSelfIntoServices(resource); err != nil {
		return fmt.Errorf("merge services after pull: %s", err)
	}

	hash := resourceHash(resource)
	artifactPath, isDir, err := d.produceArtifact(ctx, rt, repo, tag, hash)
	if err != nil {
		return fmt.Errorf("produce artifact: %s", err)
	}

	mi, err := d.metainfo.Generate(artifactPath)
	if err != nil {
		return fmt.Errorf("generate torrent metainfo: %s", err)
	}

	var torrentFile bytes.Buffer
	if err := mi.Write(&torrentFile); err != nil {
		return fmt.Errorf("marshal torrent file: %s", err)
	}
	blobName := hash + ".torrent"
	if err := d.storage.Blob.UploadBlob(d.config.TorrentContainer, blobName, torrentFile.Bytes()); err != nil {
		return fmt.Errorf("upload torrent file: %s", err)
	}

	contentSize := int64(0)
	if parsedInfo, err := mi.UnmarshalInfo(); err == nil {
		contentSize = parsedInfo.TotalLength()
	}

	row := &data.TorrentInfoRow{
		Partition:        d.partition,
		ResourceHash:     hash,
		LocatorContainer: d.config.TorrentContainer,
		LocatorBlobName:  blobName,
		SHA1:             fmt.Sprintf("%x", sha1.Sum(torrentFile.Bytes())),
		IsDir:            isDir,
		ContentSizeBytes: contentSize,
	}
	if err := d.data.PutTorrentInfo(row); err != nil {
		return fmt.Errorf("put torrent info: %s", err)
	}

	log.Infof("cascade: created torrent for %s, handing to engine", resource)
	return d.engine.Seed(resource, mi)
}

// pullWithRetry runs rt.Pull, retrying on transientPullErrors with
// pullBackoff's randomized exponential delay, matching §4.7 step 3.
func (d *Driver) pullWithRetry(
	ctx context.Context, rt containerruntime.ContainerRuntime, registry, repo, tag string) error {

	backoff := newPullBackoff()
	for {
		err := rt.Pull(ctx, registry, repo, tag)
		if err == nil {
			return nil
		}
		if !isTransientPullError(err) {
			return err
		}
		delay := backoff.next()
		log.Warnf("cascade: transient pull error for %s/%s:%s, retrying in %s: %s", registry, repo, tag, delay, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// produceArtifact materializes a torrentable artifact for repo:tag under
// the scratch directory, per §4.7 step 5: when compression is enabled, a
// reproducible pigz tarball; otherwise the exploded image directory.
func (d *Driver) produceArtifact(
	ctx context.Context, rt containerruntime.ContainerRuntime, repo, tag, hash string) (path string, isDir bool, err error) {

	var buf bytes.Buffer
	if err := rt.Save(ctx, repo, tag, &buf); err != nil {
		return "", false, fmt.Errorf("save image: %s", err)
	}

	dir, err := d.scratch.Explode(hash, &buf)
	if err != nil {
		return "", false, fmt.Errorf("explode image: %s", err)
	}

	if !d.config.Compression {
		return dir, true, nil
	}

	outPath := d.scratch.PackedPath(hash)
	if err := d.scratch.Pack(dir, outPath); err != nil {
		return "", false, fmt.Errorf("pack image: %s", err)
	}
	return outPath, false, nil
}
