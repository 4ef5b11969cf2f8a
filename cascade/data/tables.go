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

// Package data backs the cascade domain's four object-store tables of §6
// (`torrentinfo`, `images`, `gr`, `dht`) through a storageclient.Client,
// the cascade-side counterpart of federation/data.
package data

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Azure/batch-shipyard-go/federation/storageclient"
)

const (
	tableServices    = "images"
	tableTorrentInfo = "torrentinfo"
	tableGlobalRes   = "gr"
	tableDHT         = "dht"
)

// Property names, matching the original implementation's entity field
// names so the ServicesTable/TorrentInfoTable/dht rows described in §3 and
// §6 are unambiguous from the raw table dump.
const (
	propResource     = "Resource"
	propVMListPrefix = "VmList"
	propLocator      = "TorrentFileLocator"
	propSHA1         = "TorrentFileSHA1"
	propIsDir        = "TorrentIsDir"
	propContentSize  = "TorrentContentSizeBytes"
	propPort         = "Port"
)

// maxVMListProperties and maxVMListIDsPerProperty implement §4.7 step 4's
// "up to 13 string properties of 800 ids each" services-table capacity.
const (
	maxVMListProperties     = 13
	maxVMListIDsPerProperty = 800
)

// ServiceRow is a ServicesTable row, per §3 Cascade: the set of node ids
// currently seeding a resource on (account, pool).
type ServiceRow struct {
	Partition    string // account$pool
	ResourceHash string
	Resource     string
	NodeIDs      []string
	ETag         string
}

func serviceRowFromEntity(e *storageclient.Entity) *ServiceRow {
	var ids []string
	for i := 0; i < maxVMListProperties; i++ {
		v := e.Get(fmt.Sprintf("%s%d", propVMListPrefix, i))
		if v == "" {
			continue
		}
		ids = append(ids, strings.Split(v, ",")...)
	}
	return &ServiceRow{
		Partition:    e.PartitionKey,
		ResourceHash: e.RowKey,
		Resource:     e.Get(propResource),
		NodeIDs:      ids,
		ETag:         e.ETag,
	}
}

// toEntity packs NodeIDs across VmList0..VmList12, maxVMListIDsPerProperty
// per property. Returns an error if NodeIDs no longer fits the table's
// fixed capacity, matching SequenceEntity's overflow contract in
// federation/data.
func (s *ServiceRow) toEntity() (*storageclient.Entity, error) {
	e := &storageclient.Entity{PartitionKey: s.Partition, RowKey: s.ResourceHash, ETag: s.ETag}
	e.Set(propResource, s.Resource)

	chunks := chunkStrings(s.NodeIDs, maxVMListIDsPerProperty)
	if len(chunks) > maxVMListProperties {
		return nil, fmt.Errorf("services row %s/%s has %d node ids, exceeds %d×%d capacity",
			s.Partition, s.ResourceHash, len(s.NodeIDs), maxVMListProperties, maxVMListIDsPerProperty)
	}
	for i := 0; i < maxVMListProperties; i++ {
		key := fmt.Sprintf("%s%d", propVMListPrefix, i)
		if i < len(chunks) {
			e.Set(key, strings.Join(chunks[i], ","))
		} else {
			e.Set(key, "")
		}
	}
	return e, nil
}

func chunkStrings(items []string, size int) [][]string {
	var chunks [][]string
	for len(items) > 0 {
		n := size
		if n > len(items) {
			n = len(items)
		}
		chunks = append(chunks, items[:n])
		items = items[n:]
	}
	return chunks
}

// TorrentInfoRow is a TorrentInfoTable row, per §3 Cascade: where the
// .torrent file for a resource lives and what it describes.
type TorrentInfoRow struct {
	Partition        string
	ResourceHash     string
	LocatorContainer string
	LocatorBlobName  string
	SHA1             string
	IsDir            bool
	ContentSizeBytes int64
	ETag             string
}

func torrentInfoRowFromEntity(e *storageclient.Entity) *TorrentInfoRow {
	size, _ := strconv.ParseInt(e.Get(propContentSize), 10, 64)
	container, blob := splitLocator(e.Get(propLocator))
	return &TorrentInfoRow{
		Partition:        e.PartitionKey,
		ResourceHash:     e.RowKey,
		LocatorContainer: container,
		LocatorBlobName:  blob,
		SHA1:             e.Get(propSHA1),
		IsDir:            e.Get(propIsDir) == "true",
		ContentSizeBytes: size,
		ETag:             e.ETag,
	}
}

func (t *TorrentInfoRow) toEntity() *storageclient.Entity {
	e := &storageclient.Entity{PartitionKey: t.Partition, RowKey: t.ResourceHash, ETag: t.ETag}
	e.Set(propLocator, joinLocator(t.LocatorContainer, t.LocatorBlobName))
	e.Set(propSHA1, t.SHA1)
	e.Set(propIsDir, strconv.FormatBool(t.IsDir))
	e.Set(propContentSize, strconv.FormatInt(t.ContentSizeBytes, 10))
	return e
}

func splitLocator(s string) (string, string) {
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return "", ""
	}
	return parts[0], parts[1]
}

func joinLocator(container, blobName string) string {
	return container + "," + blobName
}

// DHTRow is a dht table row, per §6: `(partition=acct$pool, row=ip, Port)`.
type DHTRow struct {
	Partition string
	IP        string
	Port      int
}

func dhtRowFromEntity(e *storageclient.Entity) *DHTRow {
	port, _ := strconv.Atoi(e.Get(propPort))
	return &DHTRow{Partition: e.PartitionKey, IP: e.RowKey, Port: port}
}

func (d *DHTRow) toEntity() *storageclient.Entity {
	e := &storageclient.Entity{PartitionKey: d.Partition, RowKey: d.IP}
	e.Set(propPort, strconv.Itoa(d.Port))
	return e
}

// GlobalResourceRow is a gr table row, per §6: the manifest of resources a
// pool expects every node to eventually seed.
type GlobalResourceRow struct {
	Partition string
	Hash      string
	Resource  string
}

func globalResourceRowFromEntity(e *storageclient.Entity) *GlobalResourceRow {
	return &GlobalResourceRow{Partition: e.PartitionKey, Hash: e.RowKey, Resource: e.Get(propResource)}
}
