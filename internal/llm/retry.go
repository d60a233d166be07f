package llm

import (
	"context"
	"io"
	"math"
	"math/rand"
	"strings"
	"time"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultRetryConfig returns sensible defaults for rate limit retries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 5,
		BaseBackoff: 1 * time.Second,
		MaxBackoff:  30 * time.Second,
	}
}

// WrapWithRetry wraps a provider so transient failures are retried with
// exponential backoff. Retry attempts surface as EventRetry so the UI can
// show progress.
func WrapWithRetry(p Provider, config RetryConfig) Provider {
	return &retryProvider{inner: p, config: config}
}

type retryProvider struct {
	inner  Provider
	config RetryConfig
}

func (r *retryProvider) Name() string { return r.inner.Name() }

func (r *retryProvider) Capabilities() Capabilities { return r.inner.Capabilities() }

func (r *retryProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		var lastErr error
		for attempt := 1; ; attempt++ {
			err := r.attempt(ctx, req, events)
			if err == nil {
				return nil
			}
			if !isRetryable(err) || ctx.Err() != nil {
				return err
			}
			lastErr = err

			if attempt >= r.config.MaxAttempts {
				return lastErr
			}

			wait := r.config.backoff(attempt)
			events <- Event{
				Type:             EventRetry,
				RetryAttempt:     attempt,
				RetryMaxAttempts: r.config.MaxAttempts,
				RetryWaitSecs:    wait.Seconds(),
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}), nil
}

// attempt opens one inner stream and forwards its events. An EventError
// mid-stream (e.g. a 429 delivered as an event) is surfaced as the attempt's
// error so it goes through the same retry decision.
func (r *retryProvider) attempt(ctx context.Context, req Request, events chan<- Event) error {
	stream, err := r.inner.Stream(ctx, req)
	if err != nil {
		return err
	}
	defer stream.Close()

	for {
		event, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if event.Type == EventError && event.Err != nil {
			return event.Err
		}

		select {
		case events <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

var retryableMarkers = []string{
	"429", "rate limit", "too many requests",
	"502", "bad gateway",
	"503", "service unavailable",
	"overloaded",
	"connection refused", "connection reset",
	"timeout", "temporary failure", "no such host",
}

// isRetryable reports whether the error looks transient. Providers return
// plain errors, so this matches on message text.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range retryableMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// backoff returns the wait before the next attempt: exponential with
// +/- 25% jitter, capped at MaxBackoff.
func (c RetryConfig) backoff(attempt int) time.Duration {
	wait := float64(c.BaseBackoff) * math.Pow(2, float64(attempt-1))
	wait += (rand.Float64() - 0.5) * 0.5 * wait
	if wait > float64(c.MaxBackoff) {
		wait = float64(c.MaxBackoff)
	}
	return time.Duration(wait)
}
