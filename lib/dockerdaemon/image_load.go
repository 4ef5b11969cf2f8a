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
	"io"
	"io/ioutil"
)

// ImageLoad streams a tar produced by ImageSave (or cascade/scratch's
// reproducible re-tar) back into the docker daemon via `docker load`,
// matching §4.7's load path.
func (cli *dockerClient) ImageLoad(ctx context.Context, src io.Reader) error {
	headers := map[string][]string{"Content-Type": {"application/x-tar"}}
	resp, err := cli.do(ctx, "POST", "/images/load", nil, src, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read resp body: %s", err)
	}
	if resp.StatusCode != 200 {
		return fmt.Errorf("error loading image: code %d, err: %s", resp.StatusCode, body)
	}
	return nil
}
