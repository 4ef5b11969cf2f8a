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
package pool

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVarianceSatisfiesExact(t *testing.T) {
	require := require.New(t)

	zero := 0.0
	v := Variance{Amount: 4, Variance: &zero}
	require.True(v.Satisfies(4))
	require.False(v.Satisfies(5))
	require.False(v.Satisfies(3))
}

func TestVarianceSatisfiesUnbounded(t *testing.T) {
	require := require.New(t)

	v := Variance{Amount: 4, Variance: nil}
	require.True(v.Satisfies(4))
	require.True(v.Satisfies(1000))
	require.False(v.Satisfies(3))
}

func TestVarianceSatisfiesPositive(t *testing.T) {
	require := require.New(t)

	half := 0.5
	v := Variance{Amount: 4, Variance: &half}
	require.True(v.Satisfies(4))
	require.True(v.Satisfies(6))
	require.False(v.Satisfies(7))
}

func TestRegistryKeyDefaultsToDockerhub(t *testing.T) {
	require := require.New(t)

	require.Equal("dockerhub-alice", RegistryKey("", "alice"))
	require.Equal("myregistry.azurecr.io-alice", RegistryKey("myregistry.azurecr.io", "alice"))
}

func TestTristateMatch(t *testing.T) {
	require := require.New(t)

	require.True(tristateMatch(TristateIgnore, true))
	require.True(tristateMatch(TristateIgnore, false))
	require.True(tristateMatch(TristateRequire, true))
	require.False(tristateMatch(TristateRequire, false))
	require.True(tristateMatch(TristateForbid, false))
	require.False(tristateMatch(TristateForbid, true))
}

func TestIsRDMAVMSize(t *testing.T) {
	require := require.New(t)

	require.True(IsRDMAVMSize("Standard_A8"))
	require.True(IsRDMAVMSize("Standard_H16r"))
	require.True(IsRDMAVMSize("standard_hb120rs_v3"))
	require.False(IsRDMAVMSize("standard_d2_v3"))
}

func TestMemoryVarianceUnmarshalNormalizesSuffixToMB(t *testing.T) {
	require := require.New(t)

	var m MemoryVariance
	require.NoError(json.Unmarshal([]byte(`{"amount":"4GB"}`), &m))
	require.Equal(float64(4*1024), m.Amount)

	var exact MemoryVariance
	require.NoError(json.Unmarshal([]byte(`{"amount":"512MB","variance":0}`), &exact))
	require.Equal(float64(512), exact.Amount)
	require.True(exact.Satisfies(512))
	require.False(exact.Satisfies(513))
}

func TestMemoryVarianceUnmarshalAcceptsBareBytes(t *testing.T) {
	require := require.New(t)

	var m MemoryVariance
	require.NoError(json.Unmarshal([]byte(`{"amount":1048576}`), &m))
	require.Equal(float64(1), m.Amount)
}

func TestVMSizeCoresMemoryMB(t *testing.T) {
	require := require.New(t)

	cores, memoryMB, ok := VMSizeCoresMemoryMB("Standard_D2_v3")
	require.True(ok)
	require.Equal(float64(2), cores)
	require.Equal(float64(8*1024), memoryMB)

	_, _, ok = VMSizeCoresMemoryMB("standard_unknown_size")
	require.False(ok)
}

func TestIsGPUVMSize(t *testing.T) {
	require := require.New(t)

	require.True(IsGPUVMSize("Standard_NC6"))
	require.True(IsGPUVMSize("standard_nv24"))
	require.False(IsGPUVMSize("standard_d2_v3"))
}
