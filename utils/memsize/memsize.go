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

// Package memsize defines byte / bit magnitude constants and human-readable
// formatters for them.
package memsize

import "fmt"

// Byte magnitudes.
const (
	B  uint64 = 1
	KB        = B * 1024
	MB        = KB * 1024
	GB        = MB * 1024
	TB        = GB * 1024
)

// Bit magnitudes.
const (
	bit  uint64 = 1
	Kbit        = bit * 1024
	Mbit        = Kbit * 1024
	Gbit        = Mbit * 1024
	Tbit        = Gbit * 1024
)

// Format renders nbytes using the largest magnitude that keeps the integral
// part non-zero, e.g. 1610612736 -> "1.50GB".
func Format(nbytes uint64) string {
	return format(nbytes, []uint64{TB, GB, MB, KB}, []string{"TB", "GB", "MB", "KB"}, "B")
}

// BitFormat renders nbits the same way Format does, but with bit magnitudes.
func BitFormat(nbits uint64) string {
	return format(nbits, []uint64{Tbit, Gbit, Mbit, Kbit}, []string{"Tbit", "Gbit", "Mbit", "Kbit"}, "bit")
}

func format(n uint64, magnitudes []uint64, suffixes []string, base string) string {
	if n == 0 {
		return "0" + base
	}
	for i, m := range magnitudes {
		if n >= m {
			return fmt.Sprintf("%.2f%s", float64(n)/float64(m), suffixes[i])
		}
	}
	return fmt.Sprintf("%.2f%s", float64(n), base)
}
