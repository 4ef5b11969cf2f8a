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
package data

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestServiceRowRoundTrip(t *testing.T) {
	require := require.New(t)

	row := &ServiceRow{
		Partition:    "acct$pool",
		ResourceHash: "abc",
		Resource:     "docker:ubuntu:latest",
		NodeIDs:      []string{"node-1", "node-2"},
		ETag:         "1",
	}
	e, err := row.toEntity()
	require.NoError(err)
	require.Equal("docker:ubuntu:latest", e.Get(propResource))

	round := serviceRowFromEntity(e)
	require.Equal(row.NodeIDs, round.NodeIDs)
	require.Equal(row.Resource, round.Resource)
}

func TestServiceRowPacksAcrossVMListProperties(t *testing.T) {
	require := require.New(t)

	ids := make([]string, maxVMListIDsPerProperty+5)
	for i := range ids {
		ids[i] = fmt.Sprintf("node-%d", i)
	}
	row := &ServiceRow{Partition: "p", ResourceHash: "r", NodeIDs: ids}
	e, err := row.toEntity()
	require.NoError(err)

	require.NotEmpty(e.Get("VmList0"))
	require.NotEmpty(e.Get("VmList1"))
	require.Empty(e.Get("VmList2"))

	round := serviceRowFromEntity(e)
	require.Equal(ids, round.NodeIDs)
}

func TestServiceRowOverflowsCapacity(t *testing.T) {
	require := require.New(t)

	ids := make([]string, maxVMListProperties*maxVMListIDsPerProperty+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("node-%d", i)
	}
	row := &ServiceRow{Partition: "p", ResourceHash: "r", NodeIDs: ids}
	_, err := row.toEntity()
	require.Error(err)
}

func TestTorrentInfoRowRoundTrip(t *testing.T) {
	require := require.New(t)

	row := &TorrentInfoRow{
		Partition:        "acct$pool",
		ResourceHash:     "abc",
		LocatorContainer: "tor-acct-pool",
		LocatorBlobName:  "abc.torrent",
		SHA1:             "deadbeef",
		IsDir:            true,
		ContentSizeBytes: 1024,
	}
	e := row.toEntity()
	round := torrentInfoRowFromEntity(e)
	require.Equal(row.LocatorContainer, round.LocatorContainer)
	require.Equal(row.LocatorBlobName, round.LocatorBlobName)
	require.True(round.IsDir)
	require.Equal(row.ContentSizeBytes, round.ContentSizeBytes)
}

func TestDHTRowRoundTrip(t *testing.T) {
	require := require.New(t)

	row := &DHTRow{Partition: "acct$pool", IP: "10.0.0.1", Port: 6881}
	round := dhtRowFromEntity(row.toEntity())
	require.Equal(row.IP, round.IP)
	require.Equal(row.Port, round.Port)
}
