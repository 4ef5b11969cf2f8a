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
package main

// staticTokenProvider hands out a single configured bearer token for every
// service URL and never refreshes it. Authentication flows are explicitly
// out of scope; real deployments must supply a batchclient.TokenProvider
// backed by their identity provider instead.
type staticTokenProvider struct {
	token string
}

func (p *staticTokenProvider) Token(serviceURL string) (string, error) {
	return p.token, nil
}

func (p *staticTokenProvider) Refresh(serviceURL string) error {
	return nil
}
