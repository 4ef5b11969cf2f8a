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
	"net/url"
	"strings"
)

// BlobRef identifies a downloaded blob's origin, per §4.3's
// retrieve_blob_data(url) → (client, container, name, bytes) contract. This
// implementation has a single storage backend per process, so "client" is
// always the Client itself; a SAS query string is accepted but does not
// change which backend answers the request, since storageclient.Client
// already holds the credentials needed to read any container it owns.
type BlobRef struct {
	Container string
	Name      string
}

// RetrieveBlobData parses rawURL of the form
// "https://<acct>.blob.<ep>/<container>/<path>[?<sas>]" and downloads the
// referenced blob.
func (c *Client) RetrieveBlobData(rawURL string) (*BlobRef, []byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse blob url %q: %s", rawURL, err)
	}
	path := strings.TrimPrefix(u.Path, "/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("malformed blob url %q: expected /<container>/<name>", rawURL)
	}
	ref := &BlobRef{Container: parts[0], Name: parts[1]}

	data, err := c.storage.Blob.DownloadBlob(ref.Container, ref.Name)
	if err != nil {
		return nil, nil, fmt.Errorf("download blob %s/%s: %s", ref.Container, ref.Name, err)
	}
	return ref, data, nil
}

// DeleteActionPayload removes an action payload blob after it has been
// consumed, per §4.5 step 7.
func (c *Client) DeleteActionPayload(ref *BlobRef) error {
	return c.storage.Blob.DeleteBlob(ref.Container, ref.Name)
}
