package metrics

import (
	"testing"
	"time"

	"github.com/ARobicsek/bible-figurative-language-sub002/internal/providers"
)

func TestRecorderSummarize(t *testing.T) {
	r := NewRecorder()

	detect := r.Stage("detection")
	validate := r.Stage("validation")

	detect.ObserveCall(&providers.Result{
		Provider: "openrouter", ModelUsed: "m1",
		CostUSD: 0.01, TotalTokens: 1000,
		ExecutionTime: 2 * time.Second, Success: true,
	})
	detect.ObserveCall(&providers.Result{
		Provider: "openrouter", ModelUsed: "m1",
		CostUSD: 0.002, TotalTokens: 200,
		ExecutionTime: time.Second,
		Success:       false, ErrorType: providers.ErrTypeTimeout,
	})
	validate.ObserveCall(&providers.Result{
		Provider: "openai", ModelUsed: "m2",
		CostUSD: 0.03, TotalTokens: 3000,
		ExecutionTime: 4 * time.Second, Success: true,
	})

	s := r.Summarize()

	if s.Calls != 3 || s.SuccessCount != 2 || s.ErrorCount != 1 {
		t.Errorf("totals = %+v", s.BucketSummary)
	}
	if s.TotalCostUSD < 0.0419 || s.TotalCostUSD > 0.0421 {
		t.Errorf("total cost = %f", s.TotalCostUSD)
	}
	if s.TotalTokens != 4200 {
		t.Errorf("total tokens = %d", s.TotalTokens)
	}

	or := s.ByProvider["openrouter"]
	if or.Calls != 2 || or.ErrorCount != 1 {
		t.Errorf("openrouter bucket = %+v", or)
	}
	if s.ByStage["detection"].Calls != 2 || s.ByStage["validation"].Calls != 1 {
		t.Errorf("stage buckets = %+v", s.ByStage)
	}
}

func TestRecorderIgnoresNil(t *testing.T) {
	r := NewRecorder()
	r.RecordCall("detection", nil)
	if s := r.Summarize(); s.Calls != 0 {
		t.Errorf("calls = %d, want 0", s.Calls)
	}
}
