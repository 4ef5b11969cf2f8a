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
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/Azure/batch-shipyard-go/federation/batchclient"
	"github.com/Azure/batch-shipyard-go/federation/data"
	"github.com/Azure/batch-shipyard-go/federation/fedhash"
	"github.com/Azure/batch-shipyard-go/federation/pool"
	"github.com/Azure/batch-shipyard-go/federation/storageclient"
	"github.com/Azure/batch-shipyard-go/utils/log"
	"github.com/uber-go/tally"
)

// Processor runs one federation's action-queue pipeline, per §4.5.
// ActionProcessor. It is built with a non-blocking per-federation lock so a
// scheduler can call Poll on a fixed tick without stacking up overlapping
// runs, matching step 1's "fairness is not required."
type Processor struct {
	fedID   string
	fedHash string

	data       *data.Client
	batch      batchclient.Client
	federation *pool.Federation
	globalLock *data.GlobalLock

	stats tally.Scope

	processing atomic.Bool
}

// New builds a Processor for one federation.
func New(
	fedID string,
	d *data.Client,
	b batchclient.Client,
	fed *pool.Federation,
	globalLock *data.GlobalLock,
	stats tally.Scope,
) *Processor {
	return &Processor{
		fedID:      fedID,
		fedHash:    fedhash.Federation(fedID),
		data:       d,
		batch:      b,
		federation: fed,
		globalLock: globalLock,
		stats:      stats.Tagged(map[string]string{"federation": fedID}),
	}
}

// Poll runs one iteration of §4.5 steps 1-8 against this federation's
// action queue. It returns nil both when there was nothing to do and when
// a non-blocking lock contention skipped this tick.
func (p *Processor) Poll(ctx context.Context) error {
	if !p.processing.CAS(false, true) {
		return nil
	}
	defer p.processing.Store(false)

	if !p.globalLock.HasGlobalLock() {
		log.Warnf("federation %s: global lease not held, skipping action poll", p.fedID)
		return nil
	}

	messages, err := p.data.GetActionMessages(p.fedHash)
	if err != nil {
		return fmt.Errorf("get action messages for %s: %s", p.fedID, err)
	}

	blacklist := make(map[string]bool)
	for _, m := range messages {
		if !p.globalLock.HasGlobalLock() {
			log.Warnf("federation %s: lost global lease mid-batch, aborting", p.fedID)
			return nil
		}
		if err := p.processMessage(ctx, m, blacklist); err != nil {
			log.Errorf("federation %s: process action message %s: %s", p.fedID, m.ID, err)
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, m *storageclient.Message, blacklist map[string]bool) error {
	var env QueueMessage
	if err := json.Unmarshal(m.Body, &env); err != nil {
		return fmt.Errorf("unmarshal queue envelope: %s", err)
	}

	if fedhash.Federation(env.FederationID) != p.fedHash {
		log.Warnf("federation %s: discarding message %s for mismatched federation %s", p.fedID, m.ID, env.FederationID)
		return p.data.DeleteActionMessage(p.fedHash, m)
	}

	blobURL := env.BlobURL
	head, err := p.data.GetFirstSequenceIDForJob(p.fedHash, env.TargetID)
	if err != nil {
		return fmt.Errorf("get sequence head for %s: %s", env.TargetID, err)
	}
	if head == "" {
		// No sequence entity for this target: an invariant violation per
		// §7 error kind 4. Clear any stale block and drop the message
		// rather than re-delivering it forever.
		if err := p.data.RemoveBlockedActionForJob(p.fedHash, env.TargetID); err != nil {
			log.Warnf("federation %s: clear stale block for %s: %s", p.fedID, env.TargetID, err)
		}
		return p.data.DeleteActionMessage(p.fedHash, m)
	}
	if head != env.UniqueID {
		rewritten, err := rewriteBlobURL(blobURL, head)
		if err != nil {
			return fmt.Errorf("rewrite blob url for sequence head %s: %s", head, err)
		}
		blobURL = rewritten
		env.UniqueID = head
	}

	ref, raw, err := p.data.RetrieveBlobData(blobURL)
	if err != nil {
		return fmt.Errorf("retrieve action payload %s: %s", blobURL, err)
	}
	var payload Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("unmarshal action payload %s: %s", blobURL, err)
	}

	var dispatchErr error
	switch payload.Action {
	case KindAdd:
		dispatchErr = p.dispatchAdd(ctx, &payload, blacklist)
	case KindTerminate:
		dispatchErr = p.dispatchTerminateOrDelete(ctx, &payload, true)
	case KindDelete:
		dispatchErr = p.dispatchTerminateOrDelete(ctx, &payload, false)
	default:
		dispatchErr = fmt.Errorf("unknown action %q", payload.Action)
	}

	if dispatchErr != nil {
		log.Warnf("federation %s: deferring action for target %s: %s", p.fedID, payload.TargetID, dispatchErr)
		p.stats.Counter("action.deferred").Inc(1)
		if err := p.data.AddBlockedActionForJob(p.fedHash, payload.TargetID, env.UniqueID, len(payload.Tasks), dispatchErr.Error()); err != nil {
			log.Warnf("federation %s: record blocked action for %s: %s", p.fedID, payload.TargetID, err)
		}
		return nil // leave the message queued for retry, per §4.5.
	}

	if err := p.data.RemoveBlockedActionForJob(p.fedHash, payload.TargetID); err != nil {
		log.Warnf("federation %s: clear block for %s: %s", p.fedID, payload.TargetID, err)
	}
	if _, _, err := p.data.PopAndPackSequenceIDsForJob(p.fedHash, payload.TargetID); err != nil {
		return fmt.Errorf("pop sequence id for %s: %s", payload.TargetID, err)
	}
	if err := p.data.DeleteActionPayload(ref); err != nil {
		log.Warnf("federation %s: delete action payload %s/%s: %s", p.fedID, ref.Container, ref.Name, err)
	}
	p.stats.Counter("action.processed").Inc(1)
	return p.data.DeleteActionMessage(p.fedHash, m)
}

// dispatchAdd implements §4.5 step 7's job.add / job_schedule.add path:
// match, submit, record.
func (p *Processor) dispatchAdd(ctx context.Context, payload *Payload, blacklist map[string]bool) error {
	target, err := p.resolveCandidate(payload, blacklist)
	if err != nil {
		return err
	}

	switch payload.TargetKind {
	case data.KindJob:
		if payload.Job == nil {
			return fmt.Errorf("add action for %s missing job spec", payload.TargetID)
		}
		payload.Job.PoolID = target.PoolID
		patchForPool(payload.Job, nil, target)
		tasks, err := p.prepareTasks(ctx, target, payload.Job.ID, payload.Tasks, payload.Constraints, payload.TaskNaming)
		if err != nil {
			return fmt.Errorf("prepare tasks for job %s: %s", payload.Job.ID, err)
		}
		if err := p.batch.AddJob(ctx, target.ServiceURL, *payload.Job); err != nil {
			return fmt.Errorf("add job %s: %s", payload.Job.ID, err)
		}
		if len(tasks) > 0 {
			if _, err := p.batch.AddTaskCollection(ctx, target.ServiceURL, payload.Job.ID, tasks); err != nil {
				return fmt.Errorf("add tasks for job %s: %s", payload.Job.ID, err)
			}
		}
	case data.KindJobSchedule:
		if payload.JobSchedule == nil {
			return fmt.Errorf("add action for %s missing job schedule spec", payload.TargetID)
		}
		payload.JobSchedule.PoolID = target.PoolID
		patchForPool(&payload.JobSchedule.Job, nil, target)
		if err := p.batch.AddJobSchedule(ctx, target.ServiceURL, *payload.JobSchedule); err != nil {
			return fmt.Errorf("add job schedule %s: %s", payload.JobSchedule.ID, err)
		}
	default:
		return fmt.Errorf("unknown target kind %q", payload.TargetKind)
	}

	timestamp := time.Now().UTC().Format(time.RFC3339)
	if err := p.data.InsertOrUpdateEntityWithEtagForJob(
		p.fedHash, payload.TargetID, target.PoolID, target.BatchAccount, target.ServiceURL,
		payload.UniqueID, timestamp, payload.TargetKind,
	); err != nil {
		return fmt.Errorf("record location entity for %s: %s", payload.TargetID, err)
	}

	target.InvalidateCounts()
	target.EnterBlackout(0)
	return nil
}

// resolveCandidate applies §4.4.3's hard filter and §4.4.4's node filter
// against the federation's cached pools, then §4.4.5's greedy best-fit.
// blacklist accumulates pool-intrinsic failures for the remainder of this
// action's processing, matching the hard filter's "blacklisted for the
// remainder of this action" contract.
func (p *Processor) resolveCandidate(payload *Payload, blacklist map[string]bool) (*pool.FederationPool, error) {
	var candidates []*pool.FederationPool
	for _, fp := range p.federation.Pools() {
		if blacklist[fp.PoolID] || !fp.Valid() {
			continue
		}
		hf := pool.HardFilter(fp, payload.Constraints)
		if !hf.OK {
			if hf.Blacklist {
				blacklist[fp.PoolID] = true
			}
			continue
		}
		if nf := pool.NodeFilter(fp, payload.Constraints); !nf.OK {
			continue
		}
		candidates = append(candidates, fp)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no candidate pool survives filtering for target %s", payload.TargetID)
	}
	best, err := pool.Match(candidates, payload.Constraints, payload.NumTasksEquivalentVMs, payload.ByVMs)
	if err != nil {
		return nil, fmt.Errorf("match target %s: %s", payload.TargetID, err)
	}
	return best, nil
}

// dispatchTerminateOrDelete implements §4.5 step 7's terminate/delete path:
// every location entity for the target is acted on in parallel.
func (p *Processor) dispatchTerminateOrDelete(ctx context.Context, payload *Payload, terminate bool) error {
	locations, err := p.data.GetAllLocationEntitiesForJob(p.fedHash, payload.TargetID)
	if err != nil {
		return fmt.Errorf("list locations for %s: %s", payload.TargetID, err)
	}
	if len(locations) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	errs := make([]error, len(locations))
	for i, loc := range locations {
		wg.Add(1)
		go func(i int, loc *data.LocationEntity) {
			defer wg.Done()
			errs[i] = p.actOnLocation(ctx, payload, loc, terminate)
		}(i, loc)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) actOnLocation(ctx context.Context, payload *Payload, loc *data.LocationEntity, terminate bool) error {
	if terminate {
		if err := p.batch.Terminate(ctx, loc.ServiceURL, payload.TargetID); err != nil {
			return fmt.Errorf("terminate %s on %s: %s", payload.TargetID, loc.PoolID, err)
		}
		return p.data.StampTerminateTimestampForJob(p.fedHash, payload.TargetID, loc.PoolID, loc.ServiceURL, time.Now().UTC().Format(time.RFC3339))
	}
	if err := p.batch.Delete(ctx, loc.ServiceURL, payload.TargetID); err != nil {
		return fmt.Errorf("delete %s on %s: %s", payload.TargetID, loc.PoolID, err)
	}
	return p.data.DeleteLocationEntityForJob(p.fedHash, payload.TargetID, loc.PoolID, loc.ServiceURL)
}

// patchForPool applies §4.4.6's submission patching: pool_id was already
// set by the caller; this rewrites the SINGULARITY_CACHEDIR/CUDA_CACHE_PATH
// environment entries to the pool's OS-specific temp-disk location and
// applies the RDMA command-line fix-up for non-CentOS Infiniband pools.
// Task id renumbering is handled separately by prepareTasks, since it
// needs a batch client round trip.
func patchForPool(job *batchclient.JobSpec, tasks []batchclient.TaskSpec, target *pool.FederationPool) {
	nodeAgent := nodeAgentSKUID(target)
	tempDiskPath := tempDiskPathForNodeAgent(nodeAgent)
	ibMismatch := ibMismatchForPool(target, nodeAgent)

	rewriteTempDiskEnv(job.EnvironmentSettings, tempDiskPath)
	for i := range tasks {
		rewriteTempDiskEnv(tasks[i].EnvironmentSettings, tempDiskPath)
		if ibMismatch {
			rdmaFixUp(&tasks[i], nodeAgent)
		}
	}
}

// prepareTasks implements §4.4.6's task submission patching. Every task's
// temp-disk environment entries and RDMA command-line fix-up are applied
// regardless of path; when the job carries no task dependencies and naming
// is non-nil, task ids are additionally renumbered to the pool's next free range and the merge
// task's depends_on.task_ids is rewritten to the renumbered siblings.
func (p *Processor) prepareTasks(
	ctx context.Context,
	target *pool.FederationPool,
	jobID string,
	tasks []batchclient.TaskSpec,
	c pool.Constraints,
	naming *batchclient.TaskNaming,
) ([]batchclient.TaskSpec, error) {
	nodeAgent := nodeAgentSKUID(target)
	tempDiskPath := tempDiskPathForNodeAgent(nodeAgent)
	ibMismatch := ibMismatchForPool(target, nodeAgent)

	if c.Task.HasTaskDependencies || naming == nil {
		for i := range tasks {
			rewriteTempDiskEnv(tasks[i].EnvironmentSettings, tempDiskPath)
			if ibMismatch {
				rdmaFixUp(&tasks[i], nodeAgent)
			}
		}
		return tasks, nil
	}

	renumbered := append([]batchclient.TaskSpec(nil), tasks...)
	sort.Slice(renumbered, func(i, j int) bool { return renumbered[i].ID < renumbered[j].ID })

	newIDs := make([]string, len(renumbered))
	mergeIdx := -1
	for i := range renumbered {
		newID, err := p.batch.RegenerateNextGenericTaskID(ctx, target.ServiceURL, jobID, *naming)
		if err != nil {
			return nil, fmt.Errorf("regenerate task id for %s: %s", renumbered[i].ID, err)
		}
		if c.Task.MergeTaskID != "" && renumbered[i].ID == c.Task.MergeTaskID {
			mergeIdx = i
		}
		newIDs[i] = newID
		renumbered[i].ID = newID
		rewriteTempDiskEnv(renumbered[i].EnvironmentSettings, tempDiskPath)
		if ibMismatch {
			rdmaFixUp(&renumbered[i], nodeAgent)
		}
	}
	if mergeIdx >= 0 {
		siblings := make([]string, 0, len(newIDs)-1)
		for i, id := range newIDs {
			if i != mergeIdx {
				siblings = append(siblings, id)
			}
		}
		renumbered[mergeIdx].DependsOnTaskIDs = siblings
	}
	return renumbered, nil
}

func rewriteTempDiskEnv(env map[string]string, tempDiskPath string) {
	for _, key := range []string{"SINGULARITY_CACHEDIR", "CUDA_CACHE_PATH"} {
		if _, ok := env[key]; ok {
			env[key] = tempDiskPath
		}
	}
}

// nodeAgentSKUID returns target's cached node-agent SKU, or "" if its
// snapshot isn't cached.
func nodeAgentSKUID(target *pool.FederationPool) string {
	snap, fresh := target.Snapshot()
	if !fresh || snap == nil {
		return ""
	}
	return snap.NodeAgentSKUID
}

// tempDiskPathForNodeAgent returns the pool's OS-specific temp-disk
// location, per §4.4.6 and the original's get_temp_disk_for_node_agent.
func tempDiskPathForNodeAgent(nodeAgent string) string {
	lower := strings.ToLower(nodeAgent)
	switch {
	case strings.HasPrefix(lower, "batch.node.ubuntu"):
		return "/mnt"
	case strings.HasPrefix(lower, "batch.node.windows"):
		return `D:\batch`
	default:
		return "/mnt/resource"
	}
}

// ibMismatchForPool reports whether target is an Infiniband-capable pool
// whose node agent is not CentOS-based, per §4.4.6's IB fix-up gate.
func ibMismatchForPool(target *pool.FederationPool, nodeAgent string) bool {
	snap, fresh := target.Snapshot()
	if !fresh || snap == nil {
		return false
	}
	return pool.IsRDMAVMSize(snap.VMSize) && !strings.HasPrefix(strings.ToLower(nodeAgent), "batch.node.centos")
}

func rdmaFixUp(t *batchclient.TaskSpec, nodeAgent string) {
	t.CommandLine = rewriteRDMAMount(t.CommandLine, nodeAgent)
	if t.MultiInstanceSettings != nil {
		t.MultiInstanceSettings.CoordinationCommandLine = rewriteRDMAMount(t.MultiInstanceSettings.CoordinationCommandLine, nodeAgent)
	}
}

// rewriteRDMAMount rewrites the /etc/rdma:/etc/rdma:ro bind mount to
// /etc/dat.conf:/etc/dat.conf:ro, appending --device=/dev/hvnd_rdma on
// SLES node agents, per §4.4.6.
func rewriteRDMAMount(cmd, nodeAgent string) string {
	const from = "/etc/rdma:/etc/rdma:ro"
	to := "/etc/dat.conf:/etc/dat.conf:ro"
	if strings.HasPrefix(strings.ToLower(nodeAgent), "batch.node.sles") {
		to += " --device=/dev/hvnd_rdma"
	}
	return strings.ReplaceAll(cmd, from, to)
}

// rewriteBlobURL replaces the uuid-named file in a
// ".../messages/<uuid>.<ext>" blob url with uuid, per §4.5 step 5: "rewrite
// the blob-data URL to point at the sequence head's payload."
func rewriteBlobURL(rawURL, id string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse blob url %q: %s", rawURL, err)
	}
	ext := path.Ext(u.Path)
	u.Path = path.Join(path.Dir(u.Path), id+ext)
	return u.String(), nil
}
