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

// Package osutil provides small filesystem helpers shared across
// federation and cascade for preparing local scratch paths.
package osutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureFilePresent creates path (and its parent directories) if it does not
// already exist, leaving existing files untouched.
func EnsureFilePresent(path string, perm os.FileMode) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat %s: %s", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0775); err != nil {
		return fmt.Errorf("mkdir %s: %s", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, perm)
	if err != nil {
		return fmt.Errorf("create %s: %s", path, err)
	}
	return f.Close()
}

// EnsureDirExists creates dir if it does not already exist.
func EnsureDirExists(dir string) error {
	if err := os.MkdirAll(dir, 0775); err != nil {
		return fmt.Errorf("mkdir %s: %s", dir, err)
	}
	return nil
}
