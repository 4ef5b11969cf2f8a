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
package action

import (
	"context"
	"fmt"
	"testing"

	"github.com/andres-erbsen/clock"
	"github.com/stretchr/testify/require"

	"github.com/Azure/batch-shipyard-go/federation/batchclient"
	"github.com/Azure/batch-shipyard-go/federation/pool"
)

// fakeBatchClient implements batchclient.Client, handing out sequential
// generic task ids so prepareTasks's renumbering can be exercised without
// a real cloud batch service.
type fakeBatchClient struct {
	nextID int
}

func (f *fakeBatchClient) GetPool(ctx context.Context, serviceURL, poolID string) (*batchclient.PoolSnapshot, error) {
	return nil, fmt.Errorf("not implemented")
}
func (f *fakeBatchClient) GetNodeStateCounts(ctx context.Context, serviceURL, poolID string) (*batchclient.PoolNodeCounts, error) {
	return nil, fmt.Errorf("not implemented")
}
func (f *fakeBatchClient) AggregateActiveTasksOnPool(ctx context.Context, serviceURL, poolID string, jobIDs []string) (int, error) {
	return 0, fmt.Errorf("not implemented")
}
func (f *fakeBatchClient) ImmediatelyEvaluateAutoscale(ctx context.Context, serviceURL, poolID string) error {
	return fmt.Errorf("not implemented")
}
func (f *fakeBatchClient) AddJob(ctx context.Context, serviceURL string, job batchclient.JobSpec) error {
	return fmt.Errorf("not implemented")
}
func (f *fakeBatchClient) AddJobSchedule(ctx context.Context, serviceURL string, schedule batchclient.JobScheduleSpec) error {
	return fmt.Errorf("not implemented")
}
func (f *fakeBatchClient) Terminate(ctx context.Context, serviceURL, jobID string) error {
	return fmt.Errorf("not implemented")
}
func (f *fakeBatchClient) Delete(ctx context.Context, serviceURL, jobID string) error {
	return fmt.Errorf("not implemented")
}
func (f *fakeBatchClient) AddTaskCollection(ctx context.Context, serviceURL, jobID string, tasks []batchclient.TaskSpec) ([]batchclient.AddTaskResult, error) {
	return nil, fmt.Errorf("not implemented")
}
func (f *fakeBatchClient) RegenerateNextGenericTaskID(ctx context.Context, serviceURL, jobID string, naming batchclient.TaskNaming) (string, error) {
	f.nextID++
	return fmt.Sprintf("%s%05d", naming.Prefix, f.nextID), nil
}

func TestRewriteBlobURLReplacesUUIDKeepingExtension(t *testing.T) {
	require := require.New(t)

	rewritten, err := rewriteBlobURL("https://acct.blob.core.windows.net/fed-abc/messages/old-uuid.json", "new-uuid")
	require.NoError(err)
	require.Equal("https://acct.blob.core.windows.net/fed-abc/messages/new-uuid.json", rewritten)
}

func TestRewriteTempDiskEnvOnlyRewritesKnownKeys(t *testing.T) {
	require := require.New(t)

	env := map[string]string{
		"SINGULARITY_CACHEDIR": "/tmp/old",
		"CUDA_CACHE_PATH":      "/tmp/old2",
		"UNRELATED":            "keep",
	}
	rewriteTempDiskEnv(env, "/mnt/batch/tasks/fsmounts/temp")
	require.Equal("/mnt/batch/tasks/fsmounts/temp", env["SINGULARITY_CACHEDIR"])
	require.Equal("/mnt/batch/tasks/fsmounts/temp", env["CUDA_CACHE_PATH"])
	require.Equal("keep", env["UNRELATED"])
}

func TestRDMAFixUpRewritesCommandLineAndCoordination(t *testing.T) {
	require := require.New(t)

	task := batchclient.TaskSpec{
		CommandLine: "run --mount /etc/rdma:/etc/rdma:ro",
		MultiInstanceSettings: &batchclient.MultiInstanceSettings{
			CoordinationCommandLine: "coordinate --mount /etc/rdma:/etc/rdma:ro",
		},
	}
	rdmaFixUp(&task, "batch.node.ubuntu 18.04")
	require.Equal("run --mount /etc/dat.conf:/etc/dat.conf:ro", task.CommandLine)
	require.Equal("coordinate --mount /etc/dat.conf:/etc/dat.conf:ro", task.MultiInstanceSettings.CoordinationCommandLine)
}

func TestRDMAFixUpAppendsHvndDeviceOnSLES(t *testing.T) {
	require := require.New(t)

	task := batchclient.TaskSpec{CommandLine: "run --mount /etc/rdma:/etc/rdma:ro"}
	rdmaFixUp(&task, "batch.node.sles 12")
	require.Equal("run --mount /etc/dat.conf:/etc/dat.conf:ro --device=/dev/hvnd_rdma", task.CommandLine)
}

func TestTempDiskPathForNodeAgent(t *testing.T) {
	require := require.New(t)

	require.Equal("/mnt", tempDiskPathForNodeAgent("batch.node.ubuntu 18.04"))
	require.Equal(`D:\batch`, tempDiskPathForNodeAgent("batch.node.windows amd64"))
	require.Equal("/mnt/resource", tempDiskPathForNodeAgent("batch.node.centos 7"))
	require.Equal("/mnt/resource", tempDiskPathForNodeAgent(""))
}

func TestIBMismatchForPoolExcludesCentOS(t *testing.T) {
	require := require.New(t)

	rdmaPool := pool.NewFederationPool("acct", "https://acct.batch.azure.com", "eastus", "pool1", clock.NewMock())
	rdmaPool.SetSnapshot(&batchclient.PoolSnapshot{PoolID: "pool1", VMSize: "standard_a9"})

	require.True(ibMismatchForPool(rdmaPool, "batch.node.sles 12"))
	require.False(ibMismatchForPool(rdmaPool, "batch.node.centos 7"))

	nonRDMAPool := pool.NewFederationPool("acct", "https://acct.batch.azure.com", "eastus", "pool2", clock.NewMock())
	nonRDMAPool.SetSnapshot(&batchclient.PoolSnapshot{PoolID: "pool2", VMSize: "standard_d2_v3"})
	require.False(ibMismatchForPool(nonRDMAPool, "batch.node.ubuntu 18.04"))
}

func TestPatchForPoolSkipsRDMAFixUpOnNonRDMAPool(t *testing.T) {
	require := require.New(t)

	target := pool.NewFederationPool("acct", "https://acct.batch.azure.com", "eastus", "pool1", clock.NewMock())
	target.SetSnapshot(&batchclient.PoolSnapshot{PoolID: "pool1", VMSize: "standard_d2_v3", NodeAgentSKUID: "batch.node.ubuntu 18.04"})

	tasks := []batchclient.TaskSpec{{CommandLine: "run --mount /etc/rdma:/etc/rdma:ro"}}
	job := &batchclient.JobSpec{EnvironmentSettings: map[string]string{"SINGULARITY_CACHEDIR": "/tmp/x"}}
	patchForPool(job, tasks, target)

	require.Equal("run --mount /etc/rdma:/etc/rdma:ro", tasks[0].CommandLine)
	require.Equal("/mnt", job.EnvironmentSettings["SINGULARITY_CACHEDIR"])
}

func TestPatchForPoolAppliesRDMAFixUpOnNonCentOSRDMAPool(t *testing.T) {
	require := require.New(t)

	target := pool.NewFederationPool("acct", "https://acct.batch.azure.com", "eastus", "pool1", clock.NewMock())
	target.SetSnapshot(&batchclient.PoolSnapshot{PoolID: "pool1", VMSize: "standard_a9", NodeAgentSKUID: "batch.node.sles 12"})

	tasks := []batchclient.TaskSpec{{CommandLine: "run --mount /etc/rdma:/etc/rdma:ro"}}
	patchForPool(&batchclient.JobSpec{}, tasks, target)

	require.Equal("run --mount /etc/dat.conf:/etc/dat.conf:ro --device=/dev/hvnd_rdma", tasks[0].CommandLine)
}

func TestPatchForPoolSkipsRDMAFixUpOnCentOSRDMAPool(t *testing.T) {
	require := require.New(t)

	target := pool.NewFederationPool("acct", "https://acct.batch.azure.com", "eastus", "pool1", clock.NewMock())
	target.SetSnapshot(&batchclient.PoolSnapshot{PoolID: "pool1", VMSize: "standard_a9", NodeAgentSKUID: "batch.node.centos 7"})

	tasks := []batchclient.TaskSpec{{CommandLine: "run --mount /etc/rdma:/etc/rdma:ro"}}
	patchForPool(&batchclient.JobSpec{}, tasks, target)

	require.Equal("run --mount /etc/rdma:/etc/rdma:ro", tasks[0].CommandLine)
}

func TestResolveCandidateBlacklistsIntrinsicFailureAcrossCalls(t *testing.T) {
	require := require.New(t)

	fed := pool.NewFederation("fed1", "fedhash1")
	mismatched := pool.NewFederationPool("acct", "https://acct.batch.azure.com", "westus", "p1", clock.NewMock())
	mismatched.SetSnapshot(&batchclient.PoolSnapshot{PoolID: "p1", State: batchclient.PoolStateActive, VMSize: "standard_d2_v3"})
	mismatched.SetNodeCounts(&batchclient.PoolNodeCounts{})
	fed.SetPool("p1", mismatched)

	fit := pool.NewFederationPool("acct", "https://acct.batch.azure.com", "eastus", "p2", clock.NewMock())
	fit.SetSnapshot(&batchclient.PoolSnapshot{PoolID: "p2", State: batchclient.PoolStateActive, VMSize: "standard_d2_v3", MaxTasksPerNode: 1})
	fit.SetNodeCounts(&batchclient.PoolNodeCounts{Dedicated: batchclient.NodeCounts{Idle: 4}})
	fed.SetPool("p2", fit)

	p := &Processor{federation: fed}
	payload := &Payload{
		TargetID:    "job1",
		Constraints: pool.Constraints{Pool: pool.PoolConstraints{Location: "eastus"}},
	}
	blacklist := make(map[string]bool)

	best, err := p.resolveCandidate(payload, blacklist)
	require.NoError(err)
	require.Equal("p2", best.PoolID)
	require.True(blacklist["p1"])
}

func TestPrepareTasksPreservesIDsWhenTaskDependenciesExist(t *testing.T) {
	require := require.New(t)

	target := pool.NewFederationPool("acct", "https://acct.batch.azure.com", "eastus", "pool1", clock.NewMock())
	target.SetSnapshot(&batchclient.PoolSnapshot{PoolID: "pool1", VMSize: "standard_d2_v3"})

	batch := &fakeBatchClient{}
	p := &Processor{batch: batch}

	tasks := []batchclient.TaskSpec{{ID: "t2"}, {ID: "t1"}}
	naming := &batchclient.TaskNaming{Prefix: "task-", Padding: 5}
	c := pool.Constraints{Task: pool.TaskConstraints{HasTaskDependencies: true}}

	out, err := p.prepareTasks(context.Background(), target, "job1", tasks, c, naming)
	require.NoError(err)
	require.Equal("t2", out[0].ID)
	require.Equal("t1", out[1].ID)
	require.Equal(0, batch.nextID)
}

func TestPrepareTasksRenumbersAndRewritesMergeTaskDependencies(t *testing.T) {
	require := require.New(t)

	target := pool.NewFederationPool("acct", "https://acct.batch.azure.com", "eastus", "pool1", clock.NewMock())
	target.SetSnapshot(&batchclient.PoolSnapshot{PoolID: "pool1", VMSize: "standard_d2_v3"})

	batch := &fakeBatchClient{}
	p := &Processor{batch: batch}

	tasks := []batchclient.TaskSpec{{ID: "t1"}, {ID: "t2"}, {ID: "merge"}}
	naming := &batchclient.TaskNaming{Prefix: "task-", Padding: 5}
	c := pool.Constraints{Task: pool.TaskConstraints{MergeTaskID: "merge"}}

	out, err := p.prepareTasks(context.Background(), target, "job1", tasks, c, naming)
	require.NoError(err)
	require.Len(out, 3)

	var merge *batchclient.TaskSpec
	var siblingIDs []string
	for i := range out {
		if len(out[i].DependsOnTaskIDs) > 0 {
			merge = &out[i]
		}
	}
	for i := range out {
		if &out[i] != merge {
			siblingIDs = append(siblingIDs, out[i].ID)
		}
	}
	require.NotNil(merge)
	require.ElementsMatch(siblingIDs, merge.DependsOnTaskIDs)
	for _, id := range merge.DependsOnTaskIDs {
		require.NotEqual(merge.ID, id)
	}
	require.Equal(3, batch.nextID)
}

func TestPrepareTasksAppliesRDMAFixUpOnNonCentOSPool(t *testing.T) {
	require := require.New(t)

	target := pool.NewFederationPool("acct", "https://acct.batch.azure.com", "eastus", "pool1", clock.NewMock())
	target.SetSnapshot(&batchclient.PoolSnapshot{PoolID: "pool1", VMSize: "standard_a9", NodeAgentSKUID: "batch.node.sles 12"})

	batch := &fakeBatchClient{}
	p := &Processor{batch: batch}

	tasks := []batchclient.TaskSpec{{ID: "t1", CommandLine: "run --mount /etc/rdma:/etc/rdma:ro"}}
	naming := &batchclient.TaskNaming{Prefix: "task-", Padding: 5}

	out, err := p.prepareTasks(context.Background(), target, "job1", tasks, pool.Constraints{}, naming)
	require.NoError(err)
	require.Equal("run --mount /etc/dat.conf:/etc/dat.conf:ro --device=/dev/hvnd_rdma", out[0].CommandLine)
}
