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
package backend

import (
	"io"

	"github.com/Azure/batch-shipyard-go/utils/bandwidth"
	"github.com/Azure/batch-shipyard-go/utils/log"
)

// ThrottledClient is a backend client with speed limit.
type ThrottledClient struct {
	Client
	bandwidth *bandwidth.Limiter
}

// throttle wraps client with bandwidth limits.
func throttle(client Client, bandwidth *bandwidth.Limiter) *ThrottledClient {
	return &ThrottledClient{client, bandwidth}
}

// sizer is implemented by readers that know their total size up front, such
// as os.File or bytes.Reader.
type sizer interface {
	Size() int64
}

// Upload uploads src into name.
func (c *ThrottledClient) Upload(namespace, name string, src io.Reader) error {
	if s, ok := src.(sizer); ok {
		// Only throttle if the src implements a Size method.
		if err := c.bandwidth.ReserveEgress(s.Size()); err != nil {
			log.With("name", name).Errorf("Error reserving egress: %s", err)
			// Ignore error.
		}
	}
	return c.Client.Upload(namespace, name, src)
}

// Download downloads name into dst.
func (c *ThrottledClient) Download(namespace, name string, dst io.Writer) error {
	info, err := c.Client.Stat(namespace, name)
	if err != nil {
		return err
	}
	if err := c.bandwidth.ReserveIngress(info.Size); err != nil {
		log.With("name", name).Errorf("Error reserving ingress: %s", err)
		// Ignore error.
	}
	return c.Client.Download(namespace, name, dst)
}

func (c *ThrottledClient) adjustBandwidth(denominator int) error {
	return c.bandwidth.Adjust(denominator)
}

// EgressLimit returns egress limit.
func (c *ThrottledClient) EgressLimit() int64 {
	return c.bandwidth.EgressLimit()
}

// IngressLimit returns ingress limit.
func (c *ThrottledClient) IngressLimit() int64 {
	return c.bandwidth.IngressLimit()
}

