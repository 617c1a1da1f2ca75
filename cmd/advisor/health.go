package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"advisor/pkg/config"
	"advisor/pkg/metrics"
	"advisor/pkg/router"
)

var healthRunID string

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Print breaker, resource, and usage snapshots",
	Long: `Health wires the configured components and prints their operational
snapshots as JSON: circuit breaker states, resource quota usage, ledger
summaries, and, when a Prometheus URL is configured, aggregated run
metrics for --run.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if err := unlockSecretsIfPresent(); err != nil {
			return err
		}

		a, err := buildApp(cfg, router.StrategyCostOptimized)
		if err != nil {
			return err
		}
		defer a.close()

		report := map[string]any{
			"health": a.orchestrator.HealthSnapshot(),
			"usage":  a.router.UsageSnapshot(),
		}

		if a.ledger != nil {
			summaries, err := a.ledger.SummarizeByBackend(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to summarize ledger: %w", err)
			}
			report["ledger"] = summaries
		}

		if cfg.PrometheusURL != "" && healthRunID != "" {
			qs, err := metrics.NewQueryService(cfg.PrometheusURL)
			if err != nil {
				return err
			}
			runMetrics, err := qs.GetRunMetrics(cmd.Context(), healthRunID)
			if err != nil {
				return fmt.Errorf("failed to query run metrics: %w", err)
			}
			report["run_metrics"] = runMetrics
		}

		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	healthCmd.Flags().StringVar(&healthRunID, "run", "", "orchestration run ID to aggregate Prometheus metrics for")
}
