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

import "strings"

// splitImageRef splits a docker-style image reference ("image" as named by
// containerruntime.ParseResource) into registry host, repo path, and tag.
// The registry segment is present only when the first path component looks
// like a host (contains a "." or ":" or is "localhost").
func splitImageRef(image string) (registry, repo, tag string) {
	repoAndTag := image
	if idx := strings.Index(image, "/"); idx >= 0 {
		first := image[:idx]
		if strings.ContainsAny(first, ".:") || first == "localhost" {
			registry = first
			repoAndTag = image[idx+1:]
		}
	}

	tag = "latest"
	repo = repoAndTag
	if idx := strings.LastIndex(repoAndTag, ":"); idx >= 0 && !strings.Contains(repoAndTag[idx:], "/") {
		repo = repoAndTag[:idx]
		tag = repoAndTag[idx+1:]
	}
	return registry, repo, tag
}
