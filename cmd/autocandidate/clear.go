package main

import (
	"github.com/spf13/cobra"

	"github.com/nlavee/auto-candidate/internal/checkpoint"
	"github.com/nlavee/auto-candidate/internal/config"
	"github.com/nlavee/auto-candidate/internal/report"
)

var clearFlags struct {
	workspace string
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the workspace checkpoint",
	Long: `Clear deletes the checkpoint file so the next start begins from
scratch. The repository copy, plan documents, and task branches in the
workspace are left in place.`,
	RunE: runClear,
}

func init() {
	clearCmd.Flags().StringVar(&clearFlags.workspace, "workspace", "", "Workspace directory (default from config)")
}

func runClear(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	workspace := firstNonEmpty(clearFlags.workspace, cfg.Defaults.Workspace)

	store := checkpoint.NewStore(workspace)
	ui := report.New()
	if !store.Exists() {
		ui.Info("no checkpoint in %s", workspace)
		return nil
	}
	if err := store.Clear(); err != nil {
		return err
	}
	ui.Success("checkpoint cleared")
	return nil
}
