package calllog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ARobicsek/bible-figurative-language-sub002/internal/providers"
)

func TestRecorderAppendsJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calls.jsonl")

	r, err := NewRecorder(path, nil)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	opts := RecordOptions{Book: "Genesis", Chapter: 1, JobKey: "Genesis.1", PromptKey: "stages.detection.user"}
	r.Record(opts, &providers.Result{
		Provider: "openrouter", ModelUsed: "m1",
		Content:       "{}",
		PromptTokens:  100,
		CompletionTokens: 50,
		ExecutionTime: 1500 * time.Millisecond,
		Success:       true,
	})
	r.Record(opts, &providers.Result{
		Provider:     "openai",
		Content:      strings.Repeat("x", maxResponseBytes+100),
		Success:      false,
		ErrorMessage: "timeout",
	})
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	var calls []Call
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var c Call
		if err := json.Unmarshal(scanner.Bytes(), &c); err != nil {
			t.Fatalf("bad JSONL line: %v", err)
		}
		calls = append(calls, c)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}

	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(calls))
	}
	if calls[0].Book != "Genesis" || calls[0].LatencyMs != 1500 || !calls[0].Success {
		t.Errorf("first call = %+v", calls[0])
	}
	if calls[1].Error != "timeout" || calls[1].Success {
		t.Errorf("second call = %+v", calls[1])
	}
	if len(calls[1].Response) > maxResponseBytes {
		t.Errorf("response not truncated: %d bytes", len(calls[1].Response))
	}
	if calls[0].ID == calls[1].ID || calls[0].ID == "" {
		t.Error("call IDs must be unique")
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.Record(RecordOptions{}, &providers.Result{})
	if err := r.Close(); err != nil {
		t.Errorf("Close on nil recorder: %v", err)
	}
}
