// Package calllog records every analyzer API call for traceability. Calls
// are appended as JSON lines to a per-run audit file.
package calllog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ARobicsek/bible-figurative-language-sub002/internal/providers"
)

// maxResponseBytes bounds the stored response excerpt per call.
const maxResponseBytes = 4096

// Call is one recorded analyzer API call.
type Call struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	LatencyMs int       `json:"latency_ms"`

	Book    string `json:"book,omitempty"`
	Chapter int    `json:"chapter,omitempty"`
	JobKey  string `json:"job_key,omitempty"`

	PromptKey string `json:"prompt_key"`

	Provider string `json:"provider"`
	Model    string `json:"model"`

	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`

	Response  string `json:"response,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`

	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// RecordOptions attributes a call to its unit of work.
type RecordOptions struct {
	Book      string
	Chapter   int
	JobKey    string
	PromptKey string
}

// Recorder appends calls to a JSONL file. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	file   *os.File
	enc    *json.Encoder
	logger *slog.Logger
}

// NewRecorder opens (appending) the audit file at path.
func NewRecorder(path string, logger *slog.Logger) (*Recorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open call log %s: %w", path, err)
	}
	return &Recorder{
		file:   f,
		enc:    json.NewEncoder(f),
		logger: logger.With("component", "calllog"),
	}, nil
}

// Record appends one call derived from an analyzer result. Recording never
// fails the caller; write errors are logged and dropped.
func (r *Recorder) Record(opts RecordOptions, result *providers.Result) {
	if r == nil || result == nil {
		return
	}

	response := result.Content
	if len(response) > maxResponseBytes {
		response = response[:maxResponseBytes]
	}

	call := Call{
		ID:           uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		LatencyMs:    int(result.ExecutionTime.Milliseconds()),
		Book:         opts.Book,
		Chapter:      opts.Chapter,
		JobKey:       opts.JobKey,
		PromptKey:    opts.PromptKey,
		Provider:     result.Provider,
		Model:        result.ModelUsed,
		InputTokens:  result.PromptTokens,
		OutputTokens: result.CompletionTokens,
		Response:     response,
		Truncated:    result.Truncated,
		Success:      result.Success,
		Error:        result.ErrorMessage,
	}

	r.mu.Lock()
	err := r.enc.Encode(call)
	r.mu.Unlock()
	if err != nil {
		r.logger.Warn("failed to record analyzer call", "error", err)
	}
}

// Close flushes and closes the audit file.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}
