package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"advisor/pkg/agents"
	"advisor/pkg/config"
	"advisor/pkg/router"
)

var (
	runRoles    []string
	runStrategy string
)

var runCmd = &cobra.Command{
	Use:   "run <assessment.json>",
	Short: "Run one orchestrated assessment",
	Long: `Run loads an assessment record from a JSON file, executes the requested
agent roles against the configured LLM backends, and prints the merged
orchestration result as JSON on stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if err := unlockSecretsIfPresent(); err != nil {
			return err
		}

		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read assessment: %w", err)
		}
		var assessment agents.Assessment
		if err := json.Unmarshal(raw, &assessment); err != nil {
			return fmt.Errorf("failed to parse assessment: %w", err)
		}

		roles, err := resolveRoles(runRoles)
		if err != nil {
			return err
		}

		strategy, err := resolveStrategy(runStrategy)
		if err != nil {
			return err
		}

		a, err := buildApp(cfg, strategy)
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		result, err := a.orchestrator.OrchestrateAssessment(ctx, &assessment, roles, a.orchestrationConfig())
		if err != nil {
			return fmt.Errorf("orchestration failed: %w", err)
		}

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	runCmd.Flags().StringSliceVar(&runRoles, "roles", nil, "agent roles to run (default: all)")
	runCmd.Flags().StringVar(&runStrategy, "strategy", "cost_optimized", "routing strategy: cost_optimized, performance_optimized, round_robin")
}

// resolveStrategy validates the --strategy flag.
func resolveStrategy(name string) (router.Strategy, error) {
	switch router.Strategy(name) {
	case router.StrategyCostOptimized, router.StrategyPerformanceOptimized, router.StrategyRoundRobin:
		return router.Strategy(name), nil
	default:
		return "", fmt.Errorf("unknown routing strategy: %s", name)
	}
}

// resolveRoles validates the --roles flag, defaulting to every role.
func resolveRoles(names []string) ([]agents.Role, error) {
	if len(names) == 0 {
		return agents.AllRoles(), nil
	}
	roles := make([]agents.Role, 0, len(names))
	for _, name := range names {
		role := agents.Role(strings.ToLower(strings.TrimSpace(name)))
		if !role.Valid() {
			return nil, fmt.Errorf("unknown agent role: %s", name)
		}
		roles = append(roles, role)
	}
	return roles, nil
}
