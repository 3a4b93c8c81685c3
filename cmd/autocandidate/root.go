package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "autocandidate",
	Short: "Automated coding-challenge solver",
	Long: `AutoCandidate solves coding challenges end to end: it breaks the
challenge into independent tasks, implements them in parallel through LLM
agents working in isolated git worktrees, merges the results, and verifies
the combined solution against the project's tests.

Progress is checkpointed at every phase boundary, so an interrupted run can
be continued with --resume.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(versionCmd)
}
