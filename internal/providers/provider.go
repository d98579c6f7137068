// Package providers implements analyzer backend clients and the ordered
// fallback chain that fronts them. Every backend is an opaque text-in /
// text-out service with a cost/latency profile; callers see a single
// Analyze call and learn afterward which backend served it.
package providers

import (
	"context"
	"time"
)

// Client is the interface every analyzer backend implements.
type Client interface {
	// Analyze sends a single analysis request and returns the raw response.
	Analyze(ctx context.Context, req *Request) (*Result, error)

	// Name returns the backend identifier (e.g., "openrouter").
	Name() string

	// RequestsPerSecond returns the backend's rate limit for limiter setup.
	RequestsPerSecond() float64
}

// Request is a prompt bound for an analyzer backend.
type Request struct {
	// System carries task instructions; Prompt carries the chapter payload.
	System string
	Prompt string

	// Model selection (backend default if empty).
	Model string

	// Generation parameters.
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration

	// Request tracking.
	RequestID string
}

// Result is the complete response from one backend attempt.
type Result struct {
	Content string `json:"content"`

	// Token counts and cost.
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	CostUSD          float64 `json:"cost_usd"`

	// Timing.
	ExecutionTime time.Duration `json:"execution_time"`

	// Which backend/model served the request.
	Provider  string `json:"provider"`
	ModelUsed string `json:"model_used"`

	// Request tracking.
	RequestID string `json:"request_id"`

	// Whether the response was cut off at the output-length limit.
	Truncated bool `json:"truncated,omitempty"`

	Success      bool   `json:"success"`
	ErrorType    string `json:"error_type,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Error type taxonomy shared by all backends. The fallback chain keys
// fall-through decisions off these values.
const (
	ErrTypeTimeout       = "timeout"
	ErrTypeRateLimited   = "rate_limited"
	ErrTypeHTTP          = "http_error"
	ErrTypeBadRequest    = "bad_request"
	ErrTypeEmptyResponse = "empty_response"
	ErrTypeNoBackend     = "no_backend"
)
