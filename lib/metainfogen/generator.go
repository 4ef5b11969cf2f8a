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

// Package metainfogen builds BitTorrent metainfo for cascade artifacts,
// choosing a piece length from a static file-size-to-piece-length table
// instead of the teacher's own core.MetaInfo: §4.7 hands the Torrent Engine
// an anacrolix/torrent/metainfo.MetaInfo, so this package builds that type
// directly rather than the teacher's internal representation.
package metainfogen

import (
	"fmt"
	"os"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
)

// Generator wraps static piece length configuration in order to
// deterministically generate metainfo for a cascade artifact on disk.
type Generator struct {
	pieceLengthConfig *pieceLengthConfig
}

// New creates a new Generator.
func New(config Config) (*Generator, error) {
	plConfig, err := newPieceLengthConfig(config.PieceLengths)
	if err != nil {
		return nil, fmt.Errorf("piece length config: %s", err)
	}
	return &Generator{plConfig}, nil
}

// Generate builds torrent metainfo for the artifact at path, which is either
// a single compressed tarball (§4.7 step 5, compression enabled) or a
// directory of an image's exploded layers (compression disabled). The piece
// length is chosen from the artifact's total size per the table in Config.
func (g *Generator) Generate(path string) (*metainfo.MetaInfo, error) {
	size, err := totalSize(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %s", path, err)
	}

	info := metainfo.Info{
		PieceLength: g.pieceLengthConfig.get(size),
	}
	if err := info.BuildFromFilePath(path); err != nil {
		return nil, fmt.Errorf("build info from %s: %s", path, err)
	}

	infoBytes, err := bencode.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("marshal info: %s", err)
	}
	return &metainfo.MetaInfo{
		InfoBytes: infoBytes,
	}, nil
}

// totalSize returns the total byte size of path, walking it if it is a
// directory (the uncompressed-artifact case of §4.7 step 5).
func totalSize(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if !fi.IsDir() {
		return fi.Size(), nil
	}
	var total int64
	err = walkDir(path, func(size int64) { total += size })
	return total, err
}

func walkDir(root string, add func(size int64)) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		full := root + string(os.PathSeparator) + e.Name()
		if e.IsDir() {
			if err := walkDir(full, add); err != nil {
				return err
			}
			continue
		}
		info, err := e.Info()
		if err != nil {
			return err
		}
		add(info.Size())
	}
	return nil
}
