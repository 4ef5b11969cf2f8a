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
package core

import (
	"crypto/rand"
)

// BlobFixture joins a blob's content and digest for testing convenience.
type BlobFixture struct {
	Content []byte
	Digest  Digest
}

// Length returns the length of the blob.
func (f *BlobFixture) Length() int64 {
	return int64(len(f.Content))
}

// Info returns a BlobInfo for f.
func (f *BlobFixture) Info() *BlobInfo {
	return NewBlobInfo(f.Length())
}

// SizedBlobFixture creates a randomly generated BlobFixture of the given
// size.
func SizedBlobFixture(size uint64) *BlobFixture {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	d, err := NewDigester().FromBytes(b)
	if err != nil {
		panic(err)
	}
	return &BlobFixture{Content: b, Digest: d}
}

// NewBlobFixture creates a randomly generated 256-byte BlobFixture.
func NewBlobFixture() *BlobFixture {
	return SizedBlobFixture(256)
}

// DigestFixture returns a random Digest.
func DigestFixture() Digest {
	return NewBlobFixture().Digest
}

// DigestListFixture returns a list of random Digests.
func DigestListFixture(n int) []Digest {
	var l DigestList
	for i := 0; i < n; i++ {
		l = append(l, DigestFixture())
	}
	return l
}
