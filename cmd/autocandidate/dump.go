package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nlavee/auto-candidate/internal/checkpoint"
	"github.com/nlavee/auto-candidate/internal/config"
)

var dumpFlags struct {
	workspace string
}

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the raw checkpoint JSON",
	RunE:  runDump,
}

func init() {
	dumpCmd.Flags().StringVar(&dumpFlags.workspace, "workspace", "", "Workspace directory (default from config)")
}

func runDump(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	workspace := firstNonEmpty(dumpFlags.workspace, cfg.Defaults.Workspace)

	data, err := os.ReadFile(filepath.Join(workspace, checkpoint.FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no checkpoint in %s", workspace)
		}
		return err
	}
	fmt.Println(string(data))
	return nil
}
