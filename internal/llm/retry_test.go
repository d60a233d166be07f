package llm

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

type flakyProvider struct {
	failures int
	calls    int
}

func (p *flakyProvider) Name() string { return "flaky" }

func (p *flakyProvider) Capabilities() Capabilities { return Capabilities{ToolCalls: true} }

func (p *flakyProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	p.calls++
	if p.calls <= p.failures {
		return nil, errors.New("429 too many requests")
	}
	return &sliceStream{events: []Event{
		{Type: EventTextDelta, Text: "ok"},
		{Type: EventDone},
	}}, nil
}

func fastRetryConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts: attempts,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	}
}

func TestRetryProviderRecoversFromTransientErrors(t *testing.T) {
	inner := &flakyProvider{failures: 2}
	provider := WrapWithRetry(inner, fastRetryConfig(5))

	stream, err := provider.Stream(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	events := collectEvents(t, stream)

	if inner.calls != 3 {
		t.Errorf("provider calls = %d, want 3", inner.calls)
	}

	retries := 0
	var text strings.Builder
	for _, event := range events {
		switch event.Type {
		case EventRetry:
			retries++
		case EventTextDelta:
			text.WriteString(event.Text)
		}
	}
	if retries != 2 {
		t.Errorf("retry events = %d, want 2", retries)
	}
	if text.String() != "ok" {
		t.Errorf("text = %q, want ok", text.String())
	}
}

func TestRetryProviderGivesUpAfterMaxAttempts(t *testing.T) {
	inner := &flakyProvider{failures: 10}
	provider := WrapWithRetry(inner, fastRetryConfig(3))

	stream, err := provider.Stream(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}

	for {
		_, err := stream.Recv()
		if err == io.EOF {
			t.Fatal("stream ended cleanly, want failure")
		}
		if err != nil {
			if !strings.Contains(err.Error(), "429") {
				t.Errorf("error = %v, want 429", err)
			}
			break
		}
	}
	if inner.calls != 3 {
		t.Errorf("provider calls = %d, want 3", inner.calls)
	}
}

type fatalProvider struct {
	calls int
}

func (p *fatalProvider) Name() string                 { return "fatal" }
func (p *fatalProvider) Capabilities() Capabilities   { return Capabilities{} }
func (p *fatalProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	p.calls++
	return nil, errors.New("401 unauthorized")
}

func TestRetryProviderDoesNotRetryFatalErrors(t *testing.T) {
	inner := &fatalProvider{}
	provider := WrapWithRetry(inner, fastRetryConfig(5))

	stream, err := provider.Stream(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}

	for {
		_, err := stream.Recv()
		if err == io.EOF {
			t.Fatal("stream ended cleanly, want failure")
		}
		if err != nil {
			break
		}
	}
	if inner.calls != 1 {
		t.Errorf("provider calls = %d, want 1 (no retries)", inner.calls)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  string
		want bool
	}{
		{"429 too many requests", true},
		{"rate limit exceeded", true},
		{"503 service unavailable", true},
		{"overloaded_error", true},
		{"connection refused", true},
		{"401 unauthorized", false},
		{"invalid request", false},
	}
	for _, tt := range tests {
		if got := isRetryable(errors.New(tt.err)); got != tt.want {
			t.Errorf("isRetryable(%q) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
