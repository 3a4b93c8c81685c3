package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nlavee/auto-candidate/internal/config"
	"github.com/nlavee/auto-candidate/internal/llm"
	"github.com/nlavee/auto-candidate/internal/quality"
	"github.com/nlavee/auto-candidate/internal/state"
	"github.com/nlavee/auto-candidate/internal/workflow"
)

var startFlags struct {
	repoURL   string
	localPath string
	workspace string
	prompt    string
	resume    bool
	provider  string
	model     string
	planModel string
	retries   int
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start (or resume) a solving run",
	Long: `Start runs the full pipeline: Init (repository setup), Plan (task
breakdown and plan documents), Execute (parallel task implementation in
isolated worktrees), and Integrate (merge, test, fix, verify).

Exactly one of --repo-url or --local-path must be given. With --resume, a
valid checkpoint in the workspace continues the run from where it stopped.`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&startFlags.repoURL, "repo-url", "", "Git URL of the challenge repository")
	startCmd.Flags().StringVar(&startFlags.localPath, "local-path", "", "Local directory with the challenge repository")
	startCmd.Flags().StringVar(&startFlags.workspace, "workspace", "", "Workspace directory (default from config)")
	startCmd.Flags().StringVar(&startFlags.prompt, "prompt", "", "Challenge prompt file (required)")
	startCmd.Flags().BoolVar(&startFlags.resume, "resume", false, "Resume from the workspace checkpoint if valid")
	startCmd.Flags().StringVar(&startFlags.provider, "provider", "", "LLM provider: claude or deepseek")
	startCmd.Flags().StringVar(&startFlags.model, "model", "", "Model for execution and fixes")
	startCmd.Flags().StringVar(&startFlags.planModel, "plan-model", "", "Model for planning (default: --model)")
	startCmd.Flags().IntVar(&startFlags.retries, "retries", -1, "Fix rounds after the first failing test run")
	startCmd.MarkFlagRequired("prompt")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	providerName := firstNonEmpty(startFlags.provider, cfg.Provider.Name)
	kind, err := llm.ParseKind(providerName)
	if err != nil {
		return err
	}
	model := firstNonEmpty(startFlags.model, cfg.Provider.Model)
	planModel := firstNonEmpty(startFlags.planModel, cfg.Provider.PlanModel, model)
	workspace := firstNonEmpty(startFlags.workspace, cfg.Defaults.Workspace)
	retries := startFlags.retries
	if retries < 0 {
		retries = cfg.Defaults.Retries
	}

	provider, err := llm.New(kind, llm.Options{
		APIKey:     cfg.Provider.APIKey,
		Model:      model,
		UseBedrock: cfg.Provider.UseBedrock,
		AWSRegion:  cfg.Provider.AWSRegion,
		AWSProfile: cfg.Provider.AWSProfile,
	})
	if err != nil {
		return err
	}
	engine := llm.NewEngine(provider)

	planEngine := engine
	if planModel != model {
		planProvider, err := llm.New(kind, llm.Options{
			APIKey:     cfg.Provider.APIKey,
			Model:      planModel,
			UseBedrock: cfg.Provider.UseBedrock,
			AWSRegion:  cfg.Provider.AWSRegion,
			AWSProfile: cfg.Provider.AWSProfile,
		})
		if err != nil {
			return err
		}
		planEngine = llm.NewEngine(planProvider)
	}

	history, err := state.Open(cfg.HistoryPath())
	if err != nil {
		log.Printf("[main] warning: run history unavailable: %v", err)
		history = nil
	} else {
		defer history.Close()
	}

	controller := workflow.NewController(workflow.Options{
		RepoURL:       startFlags.repoURL,
		LocalPath:     startFlags.localPath,
		WorkspacePath: workspace,
		PromptPath:    startFlags.prompt,
		Resume:        startFlags.resume,
		ProviderName:  providerName,
		Model:         model,
		PlanModel:     planModel,
		Retries:       retries,
		Gate: quality.GateConfig{
			Install: cfg.Quality.Install,
			Test:    cfg.Quality.Test,
			Lint:    cfg.Quality.Lint,
		},
	}, engine, planEngine, history)

	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go controller.Interrupt().Watch(signals, os.Exit)

	return controller.Run(context.Background())
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
