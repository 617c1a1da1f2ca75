package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// RunMetrics represents aggregated metrics for one orchestration run.
type RunMetrics struct {
	RunID            string  `json:"run_id"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	TotalCost        float64 `json:"total_cost_usd"`
}

// QueryService aggregates recorded metrics from a Prometheus server for an
// external observability layer.
type QueryService struct {
	queryAPI v1.API
}

// NewQueryService creates a metrics query service against a Prometheus URL.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{Address: prometheusURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}
	return &QueryService{queryAPI: v1.NewAPI(client)}, nil
}

// GetRunMetrics retrieves aggregated token and cost metrics for one
// orchestration run across all backends.
func (q *QueryService) GetRunMetrics(ctx context.Context, runID string) (*RunMetrics, error) {
	out := &RunMetrics{RunID: runID}

	prompt, err := q.scalarQuery(ctx, fmt.Sprintf(`sum(llm_tokens_total{run_id=%q, type="prompt"})`, runID))
	if err != nil {
		return nil, fmt.Errorf("failed to query prompt tokens: %w", err)
	}
	out.PromptTokens = int64(prompt)

	completion, err := q.scalarQuery(ctx, fmt.Sprintf(`sum(llm_tokens_total{run_id=%q, type="completion"})`, runID))
	if err != nil {
		return nil, fmt.Errorf("failed to query completion tokens: %w", err)
	}
	out.CompletionTokens = int64(completion)
	out.TotalTokens = out.PromptTokens + out.CompletionTokens

	cost, err := q.scalarQuery(ctx, fmt.Sprintf(`sum(llm_costs_total{run_id=%q})`, runID))
	if err != nil {
		return nil, fmt.Errorf("failed to query costs: %w", err)
	}
	out.TotalCost = cost

	return out, nil
}

// scalarQuery runs an instant query and returns the first vector sample, or
// 0 when the series does not exist yet.
func (q *QueryService) scalarQuery(ctx context.Context, query string) (float64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, err //nolint:wrapcheck // Callers wrap with query context
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return float64(vector[0].Value), nil
	}
	return 0, nil
}
