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
	"net/url"
)

// ImageSave streams `docker save` of repo:tag into dst, matching §4.7 step
// 5's "reproducible-tar save" input: cascade/scratch re-tars this stream
// deterministically before handing it to the torrent engine.
func (cli *dockerClient) ImageSave(ctx context.Context, repo, tag string, dst io.Writer) error {
	v := url.Values{}
	v.Set("names", fmt.Sprintf("%s:%s", repo, tag))

	resp, err := cli.do(ctx, "GET", "/images/get", v, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		errMsg, _ := ioutil.ReadAll(resp.Body)
		return fmt.Errorf("error saving image configuration: code %d, err: %s", resp.StatusCode, errMsg)
	}
	if _, err := io.Copy(dst, resp.Body); err != nil {
		return fmt.Errorf("copy image tar: %s", err)
	}
	return nil
}

// ImageExists reports whether repo:tag is present in the local docker image
// store, used by the load path to avoid redundant docker load calls.
func (cli *dockerClient) ImageExists(ctx context.Context, repo, tag string) (bool, error) {
	name := fmt.Sprintf("%s:%s", repo, tag)
	resp, err := cli.do(ctx, "GET", "/images/"+name+"/json", nil, nil, nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == 404 {
		return false, nil
	}
	if resp.StatusCode != 200 {
		errMsg, _ := ioutil.ReadAll(resp.Body)
		return false, fmt.Errorf("error inspecting image: code %d, err: %s", resp.StatusCode, errMsg)
	}
	return true, nil
}
