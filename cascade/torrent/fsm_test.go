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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryAddIsIdempotent(t *testing.T) {
	require := require.New(t)

	r := newRegistry()
	require.True(r.add("docker:ubuntu:latest"))
	require.False(r.add("docker:ubuntu:latest"))

	entry, ok := r.get("docker:ubuntu:latest")
	require.True(ok)
	require.Equal(Pending, entry.state)
}

func TestRegistryStartSetsStartedAndHandle(t *testing.T) {
	require := require.New(t)

	r := newRegistry()
	r.add("docker:ubuntu:latest")
	r.start("docker:ubuntu:latest", nil)

	entry, ok := r.get("docker:ubuntu:latest")
	require.True(ok)
	require.Equal(Started, entry.state)
}

func TestRegistryAdvanceOnlyMovesForward(t *testing.T) {
	require := require.New(t)

	r := newRegistry()
	r.add("docker:ubuntu:latest")
	r.start("docker:ubuntu:latest", nil)

	require.True(r.advance("docker:ubuntu:latest", SeedReady))
	require.False(r.advance("docker:ubuntu:latest", Started))

	entry, ok := r.get("docker:ubuntu:latest")
	require.True(ok)
	require.Equal(SeedReady, entry.state)
}

func TestRegistryAdvanceUnknownResourceIsNoop(t *testing.T) {
	require := require.New(t)

	r := newRegistry()
	require.False(r.advance("docker:missing:latest", Started))
}

func TestRegistryGetUnknownResource(t *testing.T) {
	require := require.New(t)

	r := newRegistry()
	_, ok := r.get("docker:missing:latest")
	require.False(ok)
}

func TestRegistrySnapshotReturnsAllEntries(t *testing.T) {
	require := require.New(t)

	r := newRegistry()
	r.add("docker:a:latest")
	r.add("docker:b:latest")
	r.start("docker:b:latest", nil)

	snap := r.snapshot()
	require.Len(snap, 2)
}

func TestStateStringNames(t *testing.T) {
	require := require.New(t)

	require.Equal("pending", Pending.String())
	require.Equal("started", Started.String())
	require.Equal("seed-ready", SeedReady.String())
	require.Equal("loaded", Loaded.String())
	require.Equal("registered", Registered.String())
	require.Equal("unknown", State(99).String())
}
