package providers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type captureObserver struct {
	mu      sync.Mutex
	results []*Result
}

func (o *captureObserver) ObserveCall(r *Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, r)
}

func (o *captureObserver) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.results)
}

func chainOf(clients ...*MockClient) []Backend {
	backends := make([]Backend, len(clients))
	for i, c := range clients {
		backends[i] = Backend{Client: c}
	}
	return backends
}

func TestFallbackSatisfiesClient(t *testing.T) {
	primary := NewMockClient()
	primary.RPS = 5

	var client Client = NewFallbackClient(chainOf(primary), nil, nil)
	if client.Name() != "fallback" {
		t.Errorf("expected name fallback, got %s", client.Name())
	}
	if client.RequestsPerSecond() != 5 {
		t.Errorf("expected primary rate 5, got %v", client.RequestsPerSecond())
	}

	empty := NewFallbackClient(nil, nil, nil)
	if empty.RequestsPerSecond() != 0 {
		t.Errorf("expected 0 for empty chain, got %v", empty.RequestsPerSecond())
	}
}

func TestFallbackOrdering(t *testing.T) {
	first := NewMockClient()
	first.ClientName = "primary"
	first.ShouldFail = true

	second := NewMockClient()
	second.ClientName = "secondary"
	second.ShouldFail = true

	third := NewMockClient()
	third.ClientName = "tertiary"
	third.ResponseText = "tertiary wins"

	obs := &captureObserver{}
	fc := NewFallbackClient(chainOf(first, second, third), obs, nil)

	result, err := fc.Analyze(context.Background(), &Request{Prompt: "analyze this"})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if result.Provider != "tertiary" {
		t.Errorf("Provider = %q, want %q", result.Provider, "tertiary")
	}
	if result.Content != "tertiary wins" {
		t.Errorf("Content = %q, want %q", result.Content, "tertiary wins")
	}
	if first.RequestCount() != 1 || second.RequestCount() != 1 || third.RequestCount() != 1 {
		t.Errorf("request counts = %d/%d/%d, want 1/1/1",
			first.RequestCount(), second.RequestCount(), third.RequestCount())
	}
	// One usage record per attempt, including the failed ones.
	if obs.count() != 3 {
		t.Errorf("observed calls = %d, want 3", obs.count())
	}
}

func TestFallbackFirstBackendServes(t *testing.T) {
	first := NewMockClient()
	first.ClientName = "primary"
	second := NewMockClient()
	second.ClientName = "secondary"

	fc := NewFallbackClient(chainOf(first, second), nil, nil)

	result, err := fc.Analyze(context.Background(), &Request{Prompt: "x"})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if result.Provider != "primary" {
		t.Errorf("Provider = %q, want primary", result.Provider)
	}
	if second.RequestCount() != 0 {
		t.Errorf("secondary was invoked %d times, want 0", second.RequestCount())
	}
}

func TestFallbackAllFail(t *testing.T) {
	first := NewMockClient()
	first.ClientName = "primary"
	first.ShouldFail = true
	first.FailErrType = ErrTypeRateLimited

	second := NewMockClient()
	second.ClientName = "secondary"
	second.ShouldFail = true
	second.FailErrType = ErrTypeTimeout

	fc := NewFallbackClient(chainOf(first, second), nil, nil)

	_, err := fc.Analyze(context.Background(), &Request{RequestID: "req-1", Prompt: "x"})
	if err == nil {
		t.Fatal("expected error when all backends fail")
	}

	var fbErr *FallbackError
	if !errors.As(err, &fbErr) {
		t.Fatalf("error type = %T, want *FallbackError", err)
	}
	if fbErr.RequestID != "req-1" {
		t.Errorf("RequestID = %q, want req-1", fbErr.RequestID)
	}
	if len(fbErr.Attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(fbErr.Attempts))
	}
	if fbErr.Attempts[0].Backend != "primary" || fbErr.Attempts[0].ErrorType != ErrTypeRateLimited {
		t.Errorf("attempt[0] = %+v", fbErr.Attempts[0])
	}
	if fbErr.Attempts[1].Backend != "secondary" || fbErr.Attempts[1].ErrorType != ErrTypeTimeout {
		t.Errorf("attempt[1] = %+v", fbErr.Attempts[1])
	}
	if !strings.Contains(fbErr.Error(), "primary") || !strings.Contains(fbErr.Error(), "secondary") {
		t.Errorf("Error() should name every backend tried: %s", fbErr.Error())
	}
}

func TestFallbackNoBackends(t *testing.T) {
	fc := NewFallbackClient(nil, nil, nil)

	_, err := fc.Analyze(context.Background(), &Request{Prompt: "x"})
	var fbErr *FallbackError
	if !errors.As(err, &fbErr) {
		t.Fatalf("error type = %T, want *FallbackError", err)
	}
	if fbErr.Attempts[0].ErrorType != ErrTypeNoBackend {
		t.Errorf("ErrorType = %q, want %q", fbErr.Attempts[0].ErrorType, ErrTypeNoBackend)
	}
}

func TestFallbackParentCancellation(t *testing.T) {
	slow := NewMockClient()
	slow.Latency = time.Second
	next := NewMockClient()
	next.ClientName = "next"

	fc := NewFallbackClient(chainOf(slow, next), nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := fc.Analyze(ctx, &Request{Prompt: "x"})
	if err == nil {
		t.Fatal("expected error from cancelled parent context")
	}
	// Parent cancellation aborts the chain rather than falling through.
	if next.RequestCount() != 0 {
		t.Errorf("next backend invoked after parent cancellation")
	}
}

func TestFallbackCostEstimation(t *testing.T) {
	c := NewMockClient()
	obs := &captureObserver{}
	backends := []Backend{{
		Client:          c,
		InputCostPer1M:  3.0,
		OutputCostPer1M: 15.0,
	}}
	fc := NewFallbackClient(backends, obs, nil)

	// Mock reports its own nominal cost; estimation only applies when zero.
	result, err := fc.Analyze(context.Background(), &Request{Prompt: "x"})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if result.CostUSD == 0 {
		t.Error("CostUSD = 0, want non-zero")
	}
}
