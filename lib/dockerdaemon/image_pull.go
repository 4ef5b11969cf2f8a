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
package dockerdaemon

import (
	"context"
	"fmt"
	"io/ioutil"
	"net/url"

	"github.com/Azure/batch-shipyard-go/utils/log"
)

// ImagePull calls `docker pull` on an image. A single attempt; callers
// (cascade/imagedriver) wrap this with the registry-error retry ladder of
// §4.7 step 3.
func (cli *dockerClient) ImagePull(ctx context.Context, registry, repo, tag string) error {
	v := url.Values{}
	fromImage := repo
	if registry != "" {
		fromImage = fmt.Sprintf("%s/%s", registry, repo)
	}
	v.Set("fromImage", fromImage)
	v.Set("tag", tag)
	headers := map[string][]string{"X-Registry-Auth": {""}}

	resp, err := cli.do(ctx, "POST", "/images/create", v, nil, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	progress, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read resp body: %s", err)
	}
	if resp.StatusCode != 200 {
		return fmt.Errorf("error pulling image configuration: code %d, err: %s", resp.StatusCode, progress)
	}
	log.Debugf("Pulled %s:%s: %s", fromImage, tag, progress)
	return nil
}
