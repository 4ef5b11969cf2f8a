package storageclient

import (
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"
)

// httpStatusError is implemented by backend errors that carry an HTTP status
// code, allowing retry() to tell transient failures (5xx, network errors)
// apart from semantic 4xx failures that should propagate immediately.
type httpStatusError interface {
	StatusCode() int
}

// conflictError marks an error as a 409-style optimistic-concurrency
// conflict, so retryOnConflict can opt into retrying it.
type conflictError interface {
	IsConflict() bool
}

func (c Config) backOff() backoff.BackOff {
	return backoff.WithMaxRetries(&backoff.ExponentialBackOff{
		InitialInterval:     100 * time.Millisecond,
		RandomizationFactor: 0.5,
		Multiplier:          2,
		MaxInterval:         c.MaxBackoff,
		MaxElapsedTime:      0, // bounded by MaxBackoffAttempts instead.
		Clock:               backoff.SystemClock,
	}, uint64(c.MaxBackoffAttempts))
}

// retry retries op against transient-remote errors with exponential backoff
// up to MaxBackoffAttempts capped at MaxBackoff, per §4.1. 4xx errors other
// than 408 propagate immediately unless retryOnConflict is true and the error is a
// 409 conflict.
func (c Config) retry(op func() error, retryOnConflict bool) error {
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if retryOnConflict {
			var ce conflictError
			if errors.As(err, &ce) && ce.IsConflict() {
				return err
			}
		}
		var se httpStatusError
		if errors.As(err, &se) {
			code := se.StatusCode()
			if code >= 400 && code < 500 && code != http.StatusRequestTimeout {
				return backoff.Permanent(err)
			}
		}
		return err
	}, c.backOff())
}
