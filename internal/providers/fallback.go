package providers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Backend is one ranked entry in the fallback chain.
type Backend struct {
	Client  Client
	Model   string        // Model override (client default if empty)
	Timeout time.Duration // Per-attempt bound so a hung backend cannot stall the chain

	// USD per 1M tokens, used when the API response carries no cost.
	InputCostPer1M  float64
	OutputCostPer1M float64

	limiter *RateLimiter
}

// BackendAttempt records how one backend in the chain fared.
type BackendAttempt struct {
	Backend      string        `json:"backend"`
	Model        string        `json:"model,omitempty"`
	ErrorType    string        `json:"error_type"`
	ErrorMessage string        `json:"error_message"`
	Elapsed      time.Duration `json:"elapsed"`
}

// FallbackError is returned only after every backend in the chain has
// failed. It is a structured value, never an empty or ambiguous result.
type FallbackError struct {
	RequestID string
	Attempts  []BackendAttempt
}

func (e *FallbackError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = fmt.Sprintf("%s: %s (%s)", a.Backend, a.ErrorType, a.ErrorMessage)
	}
	return fmt.Sprintf("all %d analyzer backends failed: %s", len(e.Attempts), strings.Join(parts, "; "))
}

// UsageObserver receives one usage record per backend attempt. Attempts
// that fail still cost money and are still reported.
type UsageObserver interface {
	ObserveCall(result *Result)
}

// The chain itself satisfies Client so stages can hold a single client
// regardless of how many backends sit behind it.
var _ Client = (*FallbackClient)(nil)

// FallbackClient fronts an ordered list of backends. Each invocation tries
// the backends in rank order, one attempt each; retry-with-same-backend is
// the caller's decision, not this layer's.
type FallbackClient struct {
	backends []Backend
	observer UsageObserver
	logger   *slog.Logger
}

// NewFallbackClient creates a fallback client over the given ranked backends.
func NewFallbackClient(backends []Backend, observer UsageObserver, logger *slog.Logger) *FallbackClient {
	if logger == nil {
		logger = slog.Default()
	}
	for i := range backends {
		backends[i].limiter = NewRateLimiter(backends[i].Client.RequestsPerSecond())
	}
	return &FallbackClient{
		backends: backends,
		observer: observer,
		logger:   logger.With("component", "fallback"),
	}
}

// Name returns the chain identifier.
func (f *FallbackClient) Name() string {
	return "fallback"
}

// RequestsPerSecond returns the primary backend's rate limit; the chain
// serves through its first healthy backend, so that is its nominal rate.
func (f *FallbackClient) RequestsPerSecond() float64 {
	if len(f.backends) == 0 {
		return 0
	}
	return f.backends[0].Client.RequestsPerSecond()
}

// Backends returns the names of the configured chain, in rank order.
func (f *FallbackClient) Backends() []string {
	names := make([]string, len(f.backends))
	for i, b := range f.backends {
		names[i] = b.Client.Name()
	}
	return names
}

// Analyze tries each backend in order until one returns a usable response.
// The returned Result always names the backend that served the request.
func (f *FallbackClient) Analyze(ctx context.Context, req *Request) (*Result, error) {
	if len(f.backends) == 0 {
		return nil, &FallbackError{
			RequestID: req.RequestID,
			Attempts: []BackendAttempt{{
				Backend:      "none",
				ErrorType:    ErrTypeNoBackend,
				ErrorMessage: "no analyzer backends configured",
			}},
		}
	}

	var attempts []BackendAttempt
	for rank, backend := range f.backends {
		// Parent cancellation aborts the whole chain; per-backend
		// timeouts only abort the current attempt.
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := backend.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		attemptReq := *req
		attemptReq.Model = backend.Model
		if backend.Timeout > 0 {
			attemptReq.Timeout = backend.Timeout
		}

		start := time.Now()
		result, err := backend.Client.Analyze(ctx, &attemptReq)
		elapsed := time.Since(start)

		if result != nil {
			if result.CostUSD == 0 {
				result.CostUSD = estimateCost(backend, result)
			}
			if f.observer != nil {
				f.observer.ObserveCall(result)
			}
		}

		if err == nil && result != nil && result.Success {
			if rank > 0 {
				f.logger.Info("request served by fallback backend",
					"backend", backend.Client.Name(),
					"rank", rank+1,
					"request_id", req.RequestID)
			}
			return result, nil
		}

		attempt := BackendAttempt{
			Backend: backend.Client.Name(),
			Model:   backend.Model,
			Elapsed: elapsed,
		}
		switch {
		case result != nil && result.ErrorType != "":
			attempt.ErrorType = result.ErrorType
			attempt.ErrorMessage = result.ErrorMessage
			if result.ErrorType == ErrTypeRateLimited {
				backend.limiter.Record429()
				st := backend.limiter.Status()
				f.logger.Warn("backend rate limited, bucket drained",
					"backend", backend.Client.Name(),
					"time_until_token", st.TimeUntilToken,
					"total_consumed", st.TotalConsumed,
					"request_id", req.RequestID)
			}
		case err != nil:
			attempt.ErrorType = ErrTypeHTTP
			attempt.ErrorMessage = err.Error()
		default:
			attempt.ErrorType = ErrTypeEmptyResponse
			attempt.ErrorMessage = "backend returned no usable response"
		}
		attempts = append(attempts, attempt)

		f.logger.Warn("analyzer backend failed, falling through",
			"backend", backend.Client.Name(),
			"error_type", attempt.ErrorType,
			"request_id", req.RequestID)
	}

	return nil, &FallbackError{RequestID: req.RequestID, Attempts: attempts}
}

// estimateCost derives USD cost from configured pricing when the backend
// response did not include one.
func estimateCost(b Backend, r *Result) float64 {
	if b.InputCostPer1M == 0 && b.OutputCostPer1M == 0 {
		return 0
	}
	in := float64(r.PromptTokens) / 1_000_000 * b.InputCostPer1M
	out := float64(r.CompletionTokens) / 1_000_000 * b.OutputCostPer1M
	return in + out
}
