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
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"golang.org/x/net/context/ctxhttp"
)

const _defaultTimeout = 32 * time.Second

// DockerClient is a docker daemon client, covering the subset of the Docker
// Engine API the cascade image driver needs to pull, save, load, and check
// for locally-materialized images (§4.7).
type DockerClient interface {
	ImagePull(ctx context.Context, registry, repo, tag string) error
	ImageExists(ctx context.Context, repo, tag string) (bool, error)
	ImageSave(ctx context.Context, repo, tag string, dst io.Writer) error
	ImageLoad(ctx context.Context, src io.Reader) error
}

type dockerClient struct {
	version string // docker version
	host    string // host that client connects to
	scheme  string // http/https

	addr     string       // client address
	protocol string       // unix
	basePath string       // base part of the url
	client   *http.Client // opens http.transport
}

// NewDockerClient creates a new DockerClient.
func NewDockerClient(host, scheme, version string) (DockerClient, error) {
	protocol, addr, basePath, err := parseHost(host)
	if err != nil {
		return nil, err
	}

	transport := new(http.Transport)
	configureTransport(transport, protocol, addr)
	client := &http.Client{
		Transport: transport,
	}

	return &dockerClient{
		scheme:   scheme,
		host:     host,
		version:  version,
		protocol: protocol,
		addr:     addr,
		basePath: basePath,
		client:   client,
	}, nil
}

func parseHost(host string) (string, string, string, error) {
	strs := strings.SplitN(host, "://", 2)
	if len(strs) == 1 {
		return "", "", "", fmt.Errorf("unable to parse docker host `%s`", host)
	}

	var basePath string
	protocol, addr := strs[0], strs[1]
	if protocol == "tcp" {
		parsed, err := url.Parse("tcp://" + addr)
		if err != nil {
			return "", "", "", err
		}
		addr = parsed.Host
		basePath = parsed.Path
	}
	return protocol, addr, basePath, nil
}

func configureTransport(tr *http.Transport, protocol, addr string) error {
	switch protocol {
	case "unix":
		if len(addr) > len(syscall.RawSockaddrUnix{}.Path) {
			return fmt.Errorf("Unix socket path %q is too long", addr)
		}

		tr.DisableCompression = true
		tr.Dial = func(_, _ string) (net.Conn, error) {
			return net.DialTimeout(protocol, addr, _defaultTimeout)
		}
		return nil
	}

	return fmt.Errorf("Protocol %s not supported", protocol)
}

func (cli *dockerClient) apiPath(urlPath string, query url.Values) string {
	var base string
	if cli.version != "" {
		v := strings.TrimPrefix(cli.version, "v")
		base = fmt.Sprintf("%s/v%s%s", cli.basePath, v, urlPath)
	} else {
		base = fmt.Sprintf("%s%s", cli.basePath, urlPath)
	}
	u := &url.URL{Path: base}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do issues a single request against the docker daemon, returning the raw
// response so callers can decide how to drain the body (buffered for
// control-plane calls, streamed for save/load).
func (cli *dockerClient) do(
	ctx context.Context, method, urlPath string, query url.Values,
	body io.Reader, header http.Header) (*http.Response, error) {

	req, err := http.NewRequest(method, cli.apiPath(urlPath, query), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %s", err)
	}
	if header != nil {
		req.Header = header
	}
	req.Host = "docker"
	req.URL.Host = cli.addr
	req.URL.Scheme = cli.scheme

	resp, err := ctxhttp.Do(ctx, cli.client, req)
	if err != nil {
		return nil, fmt.Errorf("send %s request: %s", method, err)
	}
	return resp, nil
}
