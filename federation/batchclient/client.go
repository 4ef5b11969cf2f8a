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
package batchclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/Azure/batch-shipyard-go/federation/internal/workerpool"
	"github.com/Azure/batch-shipyard-go/utils/httputil"
	"github.com/Azure/batch-shipyard-go/utils/log"
)

// Client is a typed wrapper over a federation member's cloud batch service,
// implementing every operation named in §4.2.
type Client interface {
	GetPool(ctx context.Context, serviceURL, poolID string) (*PoolSnapshot, error)
	GetNodeStateCounts(ctx context.Context, serviceURL, poolID string) (*PoolNodeCounts, error)
	AggregateActiveTasksOnPool(ctx context.Context, serviceURL, poolID string, jobIDs []string) (int, error)
	ImmediatelyEvaluateAutoscale(ctx context.Context, serviceURL, poolID string) error
	AddJob(ctx context.Context, serviceURL string, job JobSpec) error
	AddJobSchedule(ctx context.Context, serviceURL string, schedule JobScheduleSpec) error
	Terminate(ctx context.Context, serviceURL, jobID string) error
	Delete(ctx context.Context, serviceURL, jobID string) error
	AddTaskCollection(ctx context.Context, serviceURL, jobID string, tasks []TaskSpec) ([]AddTaskResult, error)
	RegenerateNextGenericTaskID(ctx context.Context, serviceURL, jobID string, naming TaskNaming) (string, error)
}

type client struct {
	config Config
	tokens TokenProvider
}

// New returns a Client backed by tokens for authentication, applying
// config's defaults.
func New(config Config, tokens TokenProvider) Client {
	return &client{config.applyDefaults(), tokens}
}

// withAuth issues do against serviceURL, refreshing tokens and retrying on
// 401/403 up to MaxAuthRetries times per §4.2's get_pool contract.
func (c *client) withAuth(ctx context.Context, serviceURL string, do func(token string) (*http.Response, error)) (*http.Response, error) {
	token, err := c.tokens.Token(serviceURL)
	if err != nil {
		return nil, fmt.Errorf("get token: %s", err)
	}

	var resp *http.Response
	for attempt := 0; attempt <= c.config.MaxAuthRetries; attempt++ {
		resp, err = do(token)
		if err == nil {
			return resp, nil
		}
		if !httputil.IsForbidden(err) && !isUnauthorized(err) {
			return nil, err
		}
		if attempt == c.config.MaxAuthRetries {
			break
		}
		log.Infof("batchclient: auth failure against %s, refreshing credentials (attempt %d)", serviceURL, attempt+1)
		if rerr := c.tokens.Refresh(serviceURL); rerr != nil {
			return nil, fmt.Errorf("refresh token: %s", rerr)
		}
		token, err = c.tokens.Token(serviceURL)
		if err != nil {
			return nil, fmt.Errorf("get token: %s", err)
		}
	}
	return nil, ErrAuthExhausted
}

func isUnauthorized(err error) bool {
	se, ok := err.(httputil.StatusError)
	return ok && se.Status == http.StatusUnauthorized
}

func (c *client) authHeader(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func jsonHeaders() map[string]string {
	return map[string]string{"Content-Type": "application/json"}
}

func mergeHeaders(headers ...map[string]string) map[string]string {
	merged := make(map[string]string)
	for _, h := range headers {
		for k, v := range h {
			merged[k] = v
		}
	}
	return merged
}

func newJSONReader(body []byte) io.Reader {
	return bytes.NewReader(body)
}

// GetPool fetches a pool's current snapshot, per §4.4.1.
func (c *client) GetPool(ctx context.Context, serviceURL, poolID string) (*PoolSnapshot, error) {
	url := fmt.Sprintf("%s/pools/%s", serviceURL, poolID)
	resp, err := c.withAuth(ctx, serviceURL, func(token string) (*http.Response, error) {
		return httputil.Get(url,
			httputil.SendContext(ctx),
			httputil.SendTimeout(c.config.RequestTimeout),
			httputil.SendHeaders(c.authHeader(token)),
			httputil.SendAcceptedCodes(http.StatusOK))
	})
	if httputil.IsNotFound(err) {
		return nil, ErrPoolNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pool %s: %s", poolID, err)
	}
	defer resp.Body.Close()

	var snap PoolSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode pool %s: %s", poolID, err)
	}
	return &snap, nil
}

// GetNodeStateCounts fetches the dedicated/low-priority idle/running/
// starting node breakdown backing §4.4.1's schedulable-node calculation.
func (c *client) GetNodeStateCounts(ctx context.Context, serviceURL, poolID string) (*PoolNodeCounts, error) {
	url := fmt.Sprintf("%s/pools/%s/nodeCounts", serviceURL, poolID)
	resp, err := c.withAuth(ctx, serviceURL, func(token string) (*http.Response, error) {
		return httputil.Get(url,
			httputil.SendContext(ctx),
			httputil.SendTimeout(c.config.RequestTimeout),
			httputil.SendHeaders(c.authHeader(token)),
			httputil.SendAcceptedCodes(http.StatusOK))
	})
	if httputil.IsNotFound(err) {
		return nil, ErrPoolNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get node counts %s: %s", poolID, err)
	}
	defer resp.Body.Close()

	var counts PoolNodeCounts
	if err := json.NewDecoder(resp.Body).Decode(&counts); err != nil {
		return nil, fmt.Errorf("decode node counts %s: %s", poolID, err)
	}
	return &counts, nil
}

// AggregateActiveTasksOnPool sums active task counts across jobIDs,
// fanning out with a bounded worker pool per §4.2 and §9's
// max_workers_for_executor note.
func (c *client) AggregateActiveTasksOnPool(ctx context.Context, serviceURL, poolID string, jobIDs []string) (int, error) {
	counts := make([]int, len(jobIDs))
	err := workerpool.Run(len(jobIDs), c.config.ActiveTaskWorkers, func(i int) error {
		n, err := c.activeTaskCount(ctx, serviceURL, jobIDs[i])
		if err != nil {
			return err
		}
		counts[i] = n
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("aggregate active tasks on pool %s: %s", poolID, err)
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return total, nil
}

func (c *client) activeTaskCount(ctx context.Context, serviceURL, jobID string) (int, error) {
	url := fmt.Sprintf("%s/jobs/%s/taskcounts", serviceURL, jobID)
	resp, err := c.withAuth(ctx, serviceURL, func(token string) (*http.Response, error) {
		return httputil.Get(url,
			httputil.SendContext(ctx),
			httputil.SendTimeout(c.config.RequestTimeout),
			httputil.SendHeaders(c.authHeader(token)),
			httputil.SendAcceptedCodes(http.StatusOK))
	})
	if httputil.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var body struct {
		Active    int `json:"active"`
		Running   int `json:"running"`
		Preparing int `json:"preparing"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode task counts %s: %s", jobID, err)
	}
	return body.Active + body.Running + body.Preparing, nil
}

// ImmediatelyEvaluateAutoscale forces a pool's autoscale formula to run
// now, per §4.2, used after AddTaskCollection to avoid waiting for the
// service's normal evaluation interval.
func (c *client) ImmediatelyEvaluateAutoscale(ctx context.Context, serviceURL, poolID string) error {
	url := fmt.Sprintf("%s/pools/%s/evaluateautoscale", serviceURL, poolID)
	resp, err := c.withAuth(ctx, serviceURL, func(token string) (*http.Response, error) {
		return httputil.Post(url,
			httputil.SendContext(ctx),
			httputil.SendTimeout(c.config.RequestTimeout),
			httputil.SendHeaders(c.authHeader(token)),
			httputil.SendAcceptedCodes(http.StatusOK, http.StatusNoContent))
	})
	if err != nil {
		return fmt.Errorf("evaluate autoscale %s: %s", poolID, err)
	}
	resp.Body.Close()
	return nil
}

// AddJob submits job. A 409 Conflict (a job with the same ID already
// exists) is returned as ErrJobExists; the existing job's settings are not
// compared with job's.
func (c *client) AddJob(ctx context.Context, serviceURL string, job JobSpec) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %s", job.ID, err)
	}
	url := fmt.Sprintf("%s/jobs", serviceURL)
	_, err = c.withAuth(ctx, serviceURL, func(token string) (*http.Response, error) {
		return httputil.Post(url,
			httputil.SendContext(ctx),
			httputil.SendTimeout(c.config.RequestTimeout),
			httputil.SendHeaders(mergeHeaders(c.authHeader(token), jsonHeaders())),
			httputil.SendBody(newJSONReader(body)),
			httputil.SendAcceptedCodes(http.StatusCreated))
	})
	if httputil.IsConflict(err) {
		return ErrJobExists
	}
	if err != nil {
		return fmt.Errorf("add job %s: %s", job.ID, err)
	}
	return nil
}

// AddJobSchedule submits schedule, with the same existing-job compatibility
// semantics as AddJob.
func (c *client) AddJobSchedule(ctx context.Context, serviceURL string, schedule JobScheduleSpec) error {
	body, err := json.Marshal(schedule)
	if err != nil {
		return fmt.Errorf("marshal job schedule %s: %s", schedule.ID, err)
	}
	url := fmt.Sprintf("%s/jobschedules", serviceURL)
	_, err = c.withAuth(ctx, serviceURL, func(token string) (*http.Response, error) {
		return httputil.Post(url,
			httputil.SendContext(ctx),
			httputil.SendTimeout(c.config.RequestTimeout),
			httputil.SendHeaders(mergeHeaders(c.authHeader(token), jsonHeaders())),
			httputil.SendBody(newJSONReader(body)),
			httputil.SendAcceptedCodes(http.StatusCreated))
	})
	if httputil.IsConflict(err) {
		return ErrJobExists
	}
	if err != nil {
		return fmt.Errorf("add job schedule %s: %s", schedule.ID, err)
	}
	return nil
}

// Terminate stops jobID without deleting it.
func (c *client) Terminate(ctx context.Context, serviceURL, jobID string) error {
	url := fmt.Sprintf("%s/jobs/%s/terminate", serviceURL, jobID)
	resp, err := c.withAuth(ctx, serviceURL, func(token string) (*http.Response, error) {
		return httputil.Post(url,
			httputil.SendContext(ctx),
			httputil.SendTimeout(c.config.RequestTimeout),
			httputil.SendHeaders(c.authHeader(token)),
			httputil.SendAcceptedCodes(http.StatusOK, http.StatusNoContent, http.StatusNotFound))
	})
	if err != nil {
		return fmt.Errorf("terminate job %s: %s", jobID, err)
	}
	resp.Body.Close()
	return nil
}

// Delete removes jobID entirely.
func (c *client) Delete(ctx context.Context, serviceURL, jobID string) error {
	url := fmt.Sprintf("%s/jobs/%s", serviceURL, jobID)
	resp, err := c.withAuth(ctx, serviceURL, func(token string) (*http.Response, error) {
		return httputil.Delete(url,
			httputil.SendContext(ctx),
			httputil.SendTimeout(c.config.RequestTimeout),
			httputil.SendHeaders(c.authHeader(token)),
			httputil.SendAcceptedCodes(http.StatusOK, http.StatusAccepted, http.StatusNotFound))
	})
	if err != nil {
		return fmt.Errorf("delete job %s: %s", jobID, err)
	}
	resp.Body.Close()
	return nil
}

// AddTaskCollection submits tasks to jobID in chunks of config.TaskChunkSize,
// halving the chunk on a RequestBodyTooLarge response per §4.2, and
// reports each task's individual outcome.
func (c *client) AddTaskCollection(ctx context.Context, serviceURL, jobID string, tasks []TaskSpec) ([]AddTaskResult, error) {
	results := make([]AddTaskResult, 0, len(tasks))
	chunkSize := c.config.TaskChunkSize

	for start := 0; start < len(tasks); {
		end := start + chunkSize
		if end > len(tasks) {
			end = len(tasks)
		}
		chunk := tasks[start:end]

		chunkResults, err := c.addTaskChunk(ctx, serviceURL, jobID, chunk)
		if err == ErrRequestBodyTooLarge {
			if len(chunk) == 1 {
				return nil, fmt.Errorf("add task collection %s: single task exceeds request body limit", jobID)
			}
			chunkSize = (len(chunk) + 1) / 2
			log.Infof("batchclient: request body too large for job %s, halving chunk size to %d", jobID, chunkSize)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("add task collection %s: %s", jobID, err)
		}
		results = append(results, chunkResults...)
		start = end
	}
	return results, nil
}

func (c *client) addTaskChunk(ctx context.Context, serviceURL, jobID string, chunk []TaskSpec) ([]AddTaskResult, error) {
	body, err := json.Marshal(struct {
		Value []TaskSpec `json:"value"`
	}{chunk})
	if err != nil {
		return nil, fmt.Errorf("marshal task chunk: %s", err)
	}

	url := fmt.Sprintf("%s/jobs/%s/addtaskcollection", serviceURL, jobID)
	resp, err := c.withAuth(ctx, serviceURL, func(token string) (*http.Response, error) {
		return httputil.Post(url,
			httputil.SendContext(ctx),
			httputil.SendTimeout(c.config.RequestTimeout),
			httputil.SendHeaders(mergeHeaders(c.authHeader(token), jsonHeaders())),
			httputil.SendBody(newJSONReader(body)),
			httputil.SendAcceptedCodes(http.StatusOK, http.StatusRequestEntityTooLarge))
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusRequestEntityTooLarge {
		return nil, ErrRequestBodyTooLarge
	}

	var decoded struct {
		Value []struct {
			TaskID string `json:"taskId"`
			Status string `json:"status"`
			Error  string `json:"error,omitempty"`
		} `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode add task collection response: %s", err)
	}

	results := make([]AddTaskResult, len(decoded.Value))
	for i, v := range decoded.Value {
		r := AddTaskResult{TaskID: v.TaskID, Status: TaskAddStatus(v.Status)}
		if v.Error != "" {
			r.Err = fmt.Errorf(v.Error)
		}
		results[i] = r
	}
	return results, nil
}

// RegenerateNextGenericTaskID finds the next unused task ID matching
// naming's prefix/padding scheme within jobID, per §4.2.
func (c *client) RegenerateNextGenericTaskID(ctx context.Context, serviceURL, jobID string, naming TaskNaming) (string, error) {
	url := fmt.Sprintf("%s/jobs/%s/tasks/nextid?prefix=%s&padding=%d", serviceURL, jobID, naming.Prefix, naming.Padding)
	resp, err := c.withAuth(ctx, serviceURL, func(token string) (*http.Response, error) {
		return httputil.Get(url,
			httputil.SendContext(ctx),
			httputil.SendTimeout(c.config.RequestTimeout),
			httputil.SendHeaders(c.authHeader(token)),
			httputil.SendAcceptedCodes(http.StatusOK))
	})
	if err != nil {
		return "", fmt.Errorf("regenerate next task id %s: %s", jobID, err)
	}
	defer resp.Body.Close()

	var decoded struct {
		TaskID string `json:"taskId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode next task id %s: %s", jobID, err)
	}
	return decoded.TaskID, nil
}
