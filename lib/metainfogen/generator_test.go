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
package metainfogen

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Azure/batch-shipyard-go/core"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/require"
)

func TestGenerateFromFile(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	pieceLength := 10

	generator, err := New(Config{
		PieceLengths: map[datasize.ByteSize]datasize.ByteSize{
			0: datasize.ByteSize(pieceLength),
		},
	})
	require.NoError(err)

	blob := core.SizedBlobFixture(100)
	path := filepath.Join(dir, blob.Digest.Hex())
	require.NoError(os.WriteFile(path, blob.Content, 0644))

	mi, err := generator.Generate(path)
	require.NoError(err)
	require.NotNil(mi)

	info, err := mi.UnmarshalInfo()
	require.NoError(err)
	require.EqualValues(pieceLength, info.PieceLength)
	require.EqualValues(len(blob.Content), info.Length)
}

func TestGenerateFromDirectory(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	require.NoError(os.WriteFile(filepath.Join(dir, "a"), []byte("hello"), 0644))
	require.NoError(os.WriteFile(filepath.Join(dir, "b"), []byte("world!!"), 0644))

	generator, err := New(Config{
		PieceLengths: map[datasize.ByteSize]datasize.ByteSize{0: 4},
	})
	require.NoError(err)

	mi, err := generator.Generate(dir)
	require.NoError(err)

	info, err := mi.UnmarshalInfo()
	require.NoError(err)
	require.Len(info.Files, 2)
}
