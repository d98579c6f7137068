package providers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const MockClientName = "mock"

// MockClient is a Client for testing. Responses can be scripted per call;
// when the script is exhausted the last entry repeats.
type MockClient struct {
	// Configurable behavior
	ClientName   string
	Latency      time.Duration
	ShouldFail   bool
	FailErrType  string // ErrorType reported when failing (default "mock_failure")
	FailAfter    int    // Fail after N requests (0 = never)
	ResponseText string
	RPS          float64
	Truncated    bool

	mu        sync.Mutex
	responses []string // scripted responses, consumed in order

	requestCount atomic.Int64
}

// NewMockClient creates a new mock client with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{
		ClientName:   MockClientName,
		Latency:      time.Millisecond,
		ResponseText: "mock response",
		RPS:          1000,
	}
}

// Script queues responses to return in order across calls.
func (c *MockClient) Script(responses ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, responses...)
}

// Name returns the client identifier.
func (c *MockClient) Name() string {
	return c.ClientName
}

// RequestsPerSecond returns the RPS limit.
func (c *MockClient) RequestsPerSecond() float64 {
	return c.RPS
}

// Analyze returns the next scripted response, or the configured failure.
func (c *MockClient) Analyze(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()
	count := c.requestCount.Add(1)

	result := &Result{
		RequestID: req.RequestID,
		Provider:  c.ClientName,
		ModelUsed: req.Model,
	}

	fail := c.ShouldFail || (c.FailAfter > 0 && int(count) > c.FailAfter)
	if fail {
		errType := c.FailErrType
		if errType == "" {
			errType = "mock_failure"
		}
		result.Success = false
		result.ErrorType = errType
		result.ErrorMessage = "mock client configured to fail"
		result.ExecutionTime = time.Since(start)
		return result, fmt.Errorf("mock client configured to fail")
	}

	select {
	case <-time.After(c.Latency):
	case <-ctx.Done():
		result.Success = false
		result.ErrorType = ErrTypeTimeout
		result.ErrorMessage = ctx.Err().Error()
		result.ExecutionTime = time.Since(start)
		return result, ctx.Err()
	}

	content := c.ResponseText
	c.mu.Lock()
	if len(c.responses) > 0 {
		content = c.responses[0]
		if len(c.responses) > 1 {
			c.responses = c.responses[1:]
		}
	}
	c.mu.Unlock()

	result.Success = true
	result.Content = content
	result.Truncated = c.Truncated
	result.ExecutionTime = time.Since(start)
	result.PromptTokens = (len(req.System) + len(req.Prompt)) / 4
	result.CompletionTokens = len(content) / 4
	result.TotalTokens = result.PromptTokens + result.CompletionTokens
	result.CostUSD = 0.001

	return result, nil
}

// RequestCount returns the number of requests made.
func (c *MockClient) RequestCount() int64 {
	return c.requestCount.Load()
}

// Reset resets the request counter and clears scripted responses.
func (c *MockClient) Reset() {
	c.requestCount.Store(0)
	c.mu.Lock()
	c.responses = nil
	c.mu.Unlock()
}

// Verify interface
var _ Client = (*MockClient)(nil)
