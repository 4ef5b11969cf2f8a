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

// Package configutil loads YAML configuration files into structs, supporting
// an "extends" chain (each file may name a base file its values overlay) and
// validate.v2 struct tag validation.
package configutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	validator "gopkg.in/validator.v2"
	yaml "gopkg.in/yaml.v2"
)

// ErrCycleRef is returned when an extends chain references itself.
var ErrCycleRef = errors.New("cyclic reference in configuration extends detected")

type extendsStub struct {
	Extends string `yaml:"extends"`
}

// extendsOf reads filename and returns the (possibly empty) file it extends,
// resolved relative to filename's directory.
func extendsOf(filename string) (string, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return "", err
	}
	var stub extendsStub
	if err := yaml.Unmarshal(data, &stub); err != nil {
		return "", err
	}
	if stub.Extends == "" {
		return "", nil
	}
	if filepath.IsAbs(stub.Extends) {
		return stub.Extends, nil
	}
	return filepath.Join(filepath.Dir(filename), stub.Extends), nil
}

// resolveExtends walks the extends chain starting at fpath, returning
// filenames ordered from the root ancestor to fpath itself. lookup returns
// the file that filename extends, or "" if it extends nothing; a relative
// result is resolved against filename's directory.
func resolveExtends(fpath string, lookup func(filename string) (string, error)) ([]string, error) {
	var chain []string
	seen := make(map[string]bool)
	cur := fpath
	for {
		if seen[cur] {
			return nil, ErrCycleRef
		}
		seen[cur] = true
		chain = append([]string{cur}, chain...)

		parent, err := lookup(cur)
		if err != nil {
			return nil, err
		}
		if parent == "" {
			break
		}
		if !filepath.IsAbs(parent) {
			parent = filepath.Join(filepath.Dir(cur), parent)
		}
		cur = parent
	}
	return chain, nil
}

// Load reads fpath, follows its extends chain (root-first), merges all
// files' YAML into v, and validates the result.
func Load(fpath string, v interface{}) error {
	filenames, err := resolveExtends(fpath, extendsOf)
	if err != nil {
		return err
	}
	return loadFiles(v, filenames)
}

// loadFiles merges the YAML content of filenames, in order, into v, with
// later files overriding earlier ones, then validates once.
func loadFiles(v interface{}, filenames []string) error {
	merged := map[string]interface{}{}
	for _, fname := range filenames {
		data, err := os.ReadFile(fname)
		if err != nil {
			return fmt.Errorf("read %s: %s", fname, err)
		}
		var doc map[string]interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("unmarshal %s: %s", fname, err)
		}
		mergeInto(merged, doc)
	}
	delete(merged, "extends")

	remarshaled, err := yaml.Marshal(merged)
	if err != nil {
		return fmt.Errorf("remarshal merged config: %s", err)
	}
	if err := yaml.Unmarshal(remarshaled, v); err != nil {
		return fmt.Errorf("unmarshal merged config: %s", err)
	}

	if err := validator.Validate(v); err != nil {
		if verrs, ok := err.(validator.ErrorMap); ok {
			return ValidationError{verrs}
		}
		return err
	}
	return nil
}

// mergeInto deep-merges src into dst, with src's values winning conflicts.
func mergeInto(dst, src map[string]interface{}) {
	for k, v := range src {
		if srcMap, ok := v.(map[interface{}]interface{}); ok {
			dstMap, ok := dst[k].(map[string]interface{})
			if !ok {
				dstMap = map[string]interface{}{}
			}
			mergeInto(dstMap, toStringKeyMap(srcMap))
			dst[k] = dstMap
			continue
		}
		dst[k] = v
	}
}

func toStringKeyMap(m map[interface{}]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[fmt.Sprintf("%v", k)] = v
	}
	return out
}
