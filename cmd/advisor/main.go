// Command advisor runs multi-agent infrastructure assessments from the
// command line.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"advisor/pkg/logx"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "advisor",
	Short: "Multi-agent infrastructure assessment engine",
	Long: `Advisor fans an infrastructure assessment out to specialized reasoning
agents, routes their LLM calls across configured backends with circuit
breaking and quota enforcement, and merges the findings into one
recommendation set.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		if debug {
			logx.SetDebug(true)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "advisor.yaml", "path to the YAML configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(keysCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
