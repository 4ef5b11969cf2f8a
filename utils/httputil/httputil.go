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

// Package httputil wraps net/http with send-options (retry, accepted status
// codes, headers) used by federation/batchclient and cascade/imagedriver's
// direct-download fallback.
package httputil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"
)

// StatusError occurs when an HTTP request's response is not within the
// accepted status codes.
type StatusError struct {
	Method       string
	URL          string
	Status       int
	ResponseDump string
}

func (e StatusError) Error() string {
	return fmt.Sprintf("%s %s %d: %s", e.Method, e.URL, e.Status, e.ResponseDump)
}

// IsNotFound returns true if err is a StatusError with status 404.
func IsNotFound(err error) bool {
	return isStatus(err, http.StatusNotFound)
}

// IsConflict returns true if err is a StatusError with status 409.
func IsConflict(err error) bool {
	return isStatus(err, http.StatusConflict)
}

// IsForbidden returns true if err is a StatusError with status 403.
func IsForbidden(err error) bool {
	return isStatus(err, http.StatusForbidden)
}

func isStatus(err error, status int) bool {
	se, ok := err.(StatusError)
	return ok && se.Status == status
}

type sendOptions struct {
	ctx           context.Context
	body          io.Reader
	headers       map[string]string
	timeout       time.Duration
	acceptedCodes map[int]bool
	transport     http.RoundTripper
	retryPolicy   backoff.BackOff
}

// SendOption configures a request.
type SendOption func(*sendOptions)

// SendContext sets the request context.
func SendContext(ctx context.Context) SendOption {
	return func(o *sendOptions) { o.ctx = ctx }
}

// SendBody sets the request body.
func SendBody(body io.Reader) SendOption {
	return func(o *sendOptions) { o.body = body }
}

// SendHeaders adds headers to the request.
func SendHeaders(headers map[string]string) SendOption {
	return func(o *sendOptions) {
		for k, v := range headers {
			o.headers[k] = v
		}
	}
}

// SendTimeout sets the client timeout.
func SendTimeout(timeout time.Duration) SendOption {
	return func(o *sendOptions) { o.timeout = timeout }
}

// SendAcceptedCodes overrides the set of status codes considered successful.
// Defaults to 2xx.
func SendAcceptedCodes(codes ...int) SendOption {
	return func(o *sendOptions) {
		o.acceptedCodes = make(map[int]bool, len(codes))
		for _, c := range codes {
			o.acceptedCodes[c] = true
		}
	}
}

// SendTransport overrides the http.RoundTripper used, primarily for testing.
func SendTransport(t http.RoundTripper) SendOption {
	return func(o *sendOptions) { o.transport = t }
}

// SendRetry retries the request using policy on 5xx responses and transport
// errors.
func SendRetry(policy backoff.BackOff) SendOption {
	return func(o *sendOptions) { o.retryPolicy = policy }
}

// RetryBackoff is a passthrough constructor kept for call-site symmetry with
// SendRetry(RetryBackoff(...)).
func RetryBackoff(b backoff.BackOff) backoff.BackOff {
	return b
}

func newSendOptions() *sendOptions {
	return &sendOptions{
		ctx:     context.Background(),
		headers: make(map[string]string),
		timeout: 60 * time.Second,
	}
}

func (o *sendOptions) accepted(status int) bool {
	if o.acceptedCodes != nil {
		return o.acceptedCodes[status]
	}
	return status >= 200 && status < 300
}

func send(method, url string, opts ...SendOption) (*http.Response, error) {
	o := newSendOptions()
	for _, opt := range opts {
		opt(o)
	}

	client := &http.Client{Timeout: o.timeout}
	if o.transport != nil {
		client.Transport = o.transport
	}

	do := func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(o.ctx, method, url, o.body)
		if err != nil {
			return nil, fmt.Errorf("new request: %s", err)
		}
		for k, v := range o.headers {
			req.Header.Set(k, v)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		if !o.accepted(resp.StatusCode) {
			defer resp.Body.Close()
			dump, _ := io.ReadAll(resp.Body)
			return nil, StatusError{method, url, resp.StatusCode, string(dump)}
		}
		return resp, nil
	}

	if o.retryPolicy == nil {
		return do()
	}

	var resp *http.Response
	err := backoff.Retry(func() error {
		r, err := do()
		if err != nil {
			if se, ok := err.(StatusError); ok && se.Status < 500 {
				return backoff.Permanent(err)
			}
			return err
		}
		resp = r
		return nil
	}, o.retryPolicy)
	return resp, err
}

// Get issues a GET request.
func Get(url string, opts ...SendOption) (*http.Response, error) {
	return send(http.MethodGet, url, opts...)
}

// Post issues a POST request.
func Post(url string, opts ...SendOption) (*http.Response, error) {
	return send(http.MethodPost, url, opts...)
}

// Put issues a PUT request.
func Put(url string, opts ...SendOption) (*http.Response, error) {
	return send(http.MethodPut, url, opts...)
}

// Patch issues a PATCH request.
func Patch(url string, opts ...SendOption) (*http.Response, error) {
	return send(http.MethodPatch, url, opts...)
}

// Head issues a HEAD request.
func Head(url string, opts ...SendOption) (*http.Response, error) {
	return send(http.MethodHead, url, opts...)
}

// Delete issues a DELETE request.
func Delete(url string, opts ...SendOption) (*http.Response, error) {
	return send(http.MethodDelete, url, opts...)
}
