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

// Package containerruntime abstracts over the two container runtimes a
// resource string in §3's `docker:<image>` / `singularity:<image>` scheme
// can name, per §9's redesign note ("Polymorphism over container runtimes ->
// a ContainerRuntime capability set {pull(image), save(image, path),
// load(path)}").
package containerruntime

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Azure/batch-shipyard-go/lib/dockerdaemon"
)

// Config configures the docker runtime. The singularity runtime takes no
// configuration.
type Config struct {
	Docker DockerConfig `yaml:"docker"`
}

// DockerConfig configures the docker daemon client.
type DockerConfig struct {
	Host    string `yaml:"host"`
	Scheme  string `yaml:"scheme"`
	Version string `yaml:"version"`
}

func (c DockerConfig) applyDefaults() DockerConfig {
	if c.Host == "" {
		c.Host = "unix:///var/run/docker.sock"
	}
	if c.Scheme == "" {
		c.Scheme = "http"
	}
	return c
}

// Runtime names a resource's container runtime, parsed from the
// `<runtime>:<image>` resource string of §3.
type Runtime string

// Supported runtimes.
const (
	Docker      Runtime = "docker"
	Singularity Runtime = "singularity"
)

// ParseResource splits a cascade resource string of the form
// "docker:<image>" or "singularity:<image>" into its runtime and image
// reference.
func ParseResource(resource string) (Runtime, string, error) {
	parts := strings.SplitN(resource, ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid resource %q: expected <runtime>:<image>", resource)
	}
	switch Runtime(parts[0]) {
	case Docker:
		return Docker, parts[1], nil
	case Singularity:
		return Singularity, parts[1], nil
	default:
		return "", "", fmt.Errorf("invalid resource %q: unknown runtime %q", resource, parts[0])
	}
}

// ContainerRuntime is the minimal capability set CascadeImageDriver needs
// from a container runtime: pull an image from its origin registry, save a
// materialized image to a tar stream, and load a tar stream back into the
// local image store.
type ContainerRuntime interface {
	// Pull fetches image (registry/repo:tag, already split by the caller)
	// from its origin registry into the local runtime.
	Pull(ctx context.Context, registry, repo, tag string) error

	// Exists reports whether repo:tag is already materialized locally.
	Exists(ctx context.Context, repo, tag string) (bool, error)

	// Save streams a tar of repo:tag's filesystem layers to dst.
	Save(ctx context.Context, repo, tag string, dst io.Writer) error

	// Load reads a tar produced by Save (or a reproducible re-tar of one)
	// and registers it with the local runtime.
	Load(ctx context.Context, src io.Reader) error
}

// Factory resolves a ContainerRuntime by name, caching one client per
// runtime it has been asked for.
type Factory struct {
	config   Config
	docker   ContainerRuntime
	singular ContainerRuntime
}

// NewFactory constructs a Factory. Docker and Singularity clients are
// created lazily on first use, since a node may only exercise one runtime.
func NewFactory(config Config) *Factory {
	return &Factory{config: config}
}

// Get returns the ContainerRuntime implementation for name.
func (f *Factory) Get(name Runtime) (ContainerRuntime, error) {
	switch name {
	case Docker:
		if f.docker == nil {
			dc := f.config.Docker.applyDefaults()
			d, err := dockerdaemon.NewDockerClient(dc.Host, dc.Scheme, dc.Version)
			if err != nil {
				return nil, fmt.Errorf("new docker client: %s", err)
			}
			f.docker = &dockerRuntime{d}
		}
		return f.docker, nil
	case Singularity:
		if f.singular == nil {
			f.singular = newSingularityRuntime()
		}
		return f.singular, nil
	default:
		return nil, fmt.Errorf("unknown container runtime %q", name)
	}
}

// dockerRuntime adapts dockerdaemon.DockerClient to ContainerRuntime.
type dockerRuntime struct {
	cli dockerdaemon.DockerClient
}

func (r *dockerRuntime) Pull(ctx context.Context, registry, repo, tag string) error {
	return r.cli.ImagePull(ctx, registry, repo, tag)
}

func (r *dockerRuntime) Exists(ctx context.Context, repo, tag string) (bool, error) {
	return r.cli.ImageExists(ctx, repo, tag)
}

func (r *dockerRuntime) Save(ctx context.Context, repo, tag string, dst io.Writer) error {
	return r.cli.ImageSave(ctx, repo, tag, dst)
}

func (r *dockerRuntime) Load(ctx context.Context, src io.Reader) error {
	return r.cli.ImageLoad(ctx, src)
}
