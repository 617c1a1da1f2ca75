package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestRecordAndSummarize(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	calls := []Call{
		{RunID: "run-1", Backend: "primary", Model: "claude-sonnet-4-5", PromptTokens: 1000, CompletionTokens: 500, CostUSD: 0.01, Duration: 800 * time.Millisecond, Status: "success"},
		{RunID: "run-1", Backend: "primary", Model: "claude-sonnet-4-5", PromptTokens: 2000, CompletionTokens: 700, CostUSD: 0.02, Duration: time.Second, Status: "success"},
		{RunID: "run-1", Backend: "fallback", Model: "gpt-4o-mini", PromptTokens: 500, CompletionTokens: 100, CostUSD: 0.001, Duration: 300 * time.Millisecond, Status: "error", ErrorType: "transient"},
	}
	for _, c := range calls {
		require.NoError(t, l.RecordCall(ctx, c))
	}

	summaries, err := l.SummarizeByBackend(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	// Ordered by total cost descending.
	assert.Equal(t, "primary", summaries[0].Backend)
	assert.Equal(t, int64(2), summaries[0].Calls)
	assert.Equal(t, int64(3000), summaries[0].PromptTokens)
	assert.Equal(t, int64(1200), summaries[0].CompletionTokens)
	assert.InDelta(t, 0.03, summaries[0].CostUSD, 1e-9)
	assert.Equal(t, "fallback", summaries[1].Backend)
}

func TestRunCost(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.RecordCall(ctx, Call{RunID: "run-a", Backend: "primary", Model: "m", CostUSD: 0.5, Status: "success"}))
	require.NoError(t, l.RecordCall(ctx, Call{RunID: "run-b", Backend: "primary", Model: "m", CostUSD: 0.25, Status: "success"}))

	cost, err := l.RunCost(ctx, "run-a")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, cost, 1e-9)

	cost, err = l.RunCost(ctx, "run-missing")
	require.NoError(t, err)
	assert.Zero(t, cost)
}
