package utils

import "testing"

func TestCountTokens(t *testing.T) {
	tc, err := NewTokenCounter("gpt-4")
	if err != nil {
		t.Fatalf("NewTokenCounter() error = %v", err)
	}

	if got := tc.CountTokens(""); got != 0 {
		t.Errorf("CountTokens(empty) = %d, want 0", got)
	}

	got := tc.CountTokens("Evaluate the resilience of this deployment topology.")
	if got <= 0 {
		t.Errorf("CountTokens(sentence) = %d, want > 0", got)
	}
}

func TestCountTokensSimple(t *testing.T) {
	short := CountTokensSimple("hello")
	long := CountTokensSimple("hello world, this is a much longer piece of text about infrastructure")
	if short <= 0 || long <= short {
		t.Errorf("token counts not monotonic: short=%d long=%d", short, long)
	}
}

func TestCountTokensFallback(t *testing.T) {
	// Nil codec falls back to 4-chars-per-token estimation.
	tc := &TokenCounter{}
	if got := tc.CountTokens("12345678"); got != 2 {
		t.Errorf("fallback CountTokens = %d, want 2", got)
	}
}

func TestEstimateCompletionTokens(t *testing.T) {
	if got := EstimateCompletionTokens(0); got != 1024 {
		t.Errorf("EstimateCompletionTokens(0) = %d, want 1024", got)
	}
	if got := EstimateCompletionTokens(4096); got != 4096 {
		t.Errorf("EstimateCompletionTokens(4096) = %d, want 4096", got)
	}
}
