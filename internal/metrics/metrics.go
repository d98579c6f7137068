// Package metrics aggregates per-call usage and cost across a run.
package metrics

import (
	"sync"
	"time"

	"github.com/ARobicsek/bible-figurative-language-sub002/internal/providers"
)

// Metric is one analyzer call's usage record.
type Metric struct {
	Stage            string    `json:"stage,omitempty"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	CostUSD          float64   `json:"cost_usd"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	ExecutionSeconds float64   `json:"execution_seconds"`
	Success          bool      `json:"success"`
	ErrorType        string    `json:"error_type,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// BucketSummary aggregates the metrics sharing one attribution bucket.
type BucketSummary struct {
	Calls        int           `json:"calls"`
	SuccessCount int           `json:"success_count"`
	ErrorCount   int           `json:"error_count"`
	TotalCostUSD float64       `json:"total_cost_usd"`
	TotalTokens  int           `json:"total_tokens"`
	TotalTime    time.Duration `json:"total_time"`
}

func (b *BucketSummary) add(m Metric) {
	b.Calls++
	if m.Success {
		b.SuccessCount++
	} else {
		b.ErrorCount++
	}
	b.TotalCostUSD += m.CostUSD
	b.TotalTokens += m.TotalTokens
	b.TotalTime += time.Duration(m.ExecutionSeconds * float64(time.Second))
}

// Summary is a point-in-time aggregation for the run summary.
type Summary struct {
	BucketSummary
	ByProvider map[string]BucketSummary `json:"by_provider"`
	ByStage    map[string]BucketSummary `json:"by_stage"`
}

// Recorder accumulates metrics in memory. Safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	metrics []Metric
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record stores one metric.
func (r *Recorder) Record(m Metric) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	r.metrics = append(r.metrics, m)
	r.mu.Unlock()
}

// RecordCall records usage from one analyzer result attributed to a stage.
// Failed attempts count too: cost attribution covers every backend tried,
// not just the one that served.
func (r *Recorder) RecordCall(stage string, result *providers.Result) {
	if result == nil {
		return
	}
	r.Record(Metric{
		Stage:            stage,
		Provider:         result.Provider,
		Model:            result.ModelUsed,
		CostUSD:          result.CostUSD,
		PromptTokens:     result.PromptTokens,
		CompletionTokens: result.CompletionTokens,
		TotalTokens:      result.TotalTokens,
		ExecutionSeconds: result.ExecutionTime.Seconds(),
		Success:          result.Success,
		ErrorType:        result.ErrorType,
	})
}

// Stage returns an observer that attributes every observed call to stage.
func (r *Recorder) Stage(stage string) providers.UsageObserver {
	return stageObserver{recorder: r, stage: stage}
}

type stageObserver struct {
	recorder *Recorder
	stage    string
}

func (o stageObserver) ObserveCall(result *providers.Result) {
	o.recorder.RecordCall(o.stage, result)
}

// Summarize aggregates everything recorded so far.
func (r *Recorder) Summarize() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Summary{
		ByProvider: make(map[string]BucketSummary),
		ByStage:    make(map[string]BucketSummary),
	}
	for _, m := range r.metrics {
		s.BucketSummary.add(m)

		p := s.ByProvider[m.Provider]
		p.add(m)
		s.ByProvider[m.Provider] = p

		if m.Stage != "" {
			st := s.ByStage[m.Stage]
			st.add(m)
			s.ByStage[m.Stage] = st
		}
	}
	return s
}
