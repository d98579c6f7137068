package providers

import (
	"context"
	"testing"
)

func TestRateLimiterStatusAfter429(t *testing.T) {
	r := NewRateLimiter(1)

	if err := r.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	st := r.Status()
	if st.TotalConsumed != 1 {
		t.Errorf("TotalConsumed = %d, want 1", st.TotalConsumed)
	}
	if st.Last429Time.IsZero() == false {
		t.Error("Last429Time set before any 429")
	}

	r.Record429()
	st = r.Status()
	if st.Last429Time.IsZero() {
		t.Error("Last429Time not recorded")
	}
	if st.TimeUntilToken <= 0 {
		t.Error("drained bucket must report a positive wait for the next token")
	}
}
