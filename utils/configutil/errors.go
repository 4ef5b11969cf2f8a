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
package configutil

import (
	"fmt"
	"sort"
	"strings"

	validator "gopkg.in/validator.v2"
)

// ValidationError wraps a validator.v2 field-level error map.
type ValidationError struct {
	Errs validator.ErrorMap
}

func (e ValidationError) Error() string {
	fields := make([]string, 0, len(e.Errs))
	for f := range e.Errs {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var parts []string
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, e.Errs[f]))
	}
	return strings.Join(parts, "; ")
}

// ErrForField returns the validation errors for field, or nil if field is
// valid.
func (e ValidationError) ErrForField(field string) validator.ErrorArray {
	return e.Errs[field]
}
