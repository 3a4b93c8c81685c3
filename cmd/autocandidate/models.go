package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nlavee/auto-candidate/internal/config"
	"github.com/nlavee/auto-candidate/internal/llm"
)

var modelsFlags struct {
	provider string
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models available from the configured provider",
	RunE:  runModels,
}

func init() {
	modelsCmd.Flags().StringVar(&modelsFlags.provider, "provider", "", "LLM provider: claude or deepseek")
}

func runModels(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	kind, err := llm.ParseKind(firstNonEmpty(modelsFlags.provider, cfg.Provider.Name))
	if err != nil {
		return err
	}

	provider, err := llm.New(kind, llm.Options{
		APIKey:     cfg.Provider.APIKey,
		UseBedrock: cfg.Provider.UseBedrock,
		AWSRegion:  cfg.Provider.AWSRegion,
		AWSProfile: cfg.Provider.AWSProfile,
	})
	if err != nil {
		return err
	}

	names, err := provider.ListModels(context.Background())
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}
