package llm

import "context"

type runIDKey struct{}

// WithRunID tags a context with the orchestration run identifier so that
// middleware and accounting layers can label their records.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext returns the run identifier, or "" when untagged.
func RunIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(runIDKey{}).(string); ok {
		return v
	}
	return ""
}
