package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nlavee/auto-candidate/internal/checkpoint"
	"github.com/nlavee/auto-candidate/internal/config"
	"github.com/nlavee/auto-candidate/internal/report"
	"github.com/nlavee/auto-candidate/internal/state"
)

var statusFlags struct {
	workspace string
	history   bool
	run       string
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show checkpoint status for a workspace",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusFlags.workspace, "workspace", "", "Workspace directory (default from config)")
	statusCmd.Flags().BoolVar(&statusFlags.history, "history", false, "Also show recent run history")
	statusCmd.Flags().StringVar(&statusFlags.run, "run", "", "Show task results for a recorded run (ID or unique prefix)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if statusFlags.run != "" {
		return showRunResults(cfg, report.New())
	}
	workspace := firstNonEmpty(statusFlags.workspace, cfg.Defaults.Workspace)

	store := checkpoint.NewStore(workspace)
	cp, err := store.Load()
	if err != nil {
		return err
	}
	ui := report.New()
	if cp == nil {
		ui.Info("no checkpoint in %s", workspace)
	} else {
		ui.Info("workspace:  %s", cp.WorkspacePath)
		ui.Info("repository: %s", cp.RepoPath)
		ui.Info("phase:      %d of 4 (completed: %v)", cp.CurrentPhase, cp.PhasesCompleted)
		ui.Info("saved:      %s", cp.CheckpointTime.Format("2006-01-02 15:04:05 MST"))
		if cp.Plan != nil && cp.Plan.Plan != nil {
			ui.Info("plan:       %d tasks (%s/%s)", len(cp.Plan.Plan.Tasks), cp.Plan.Provider, cp.Plan.Model)
		}
		if cp.Execute != nil {
			ui.ResultsTable(cp.Execute.TaskResults)
		}
		if cp.Integrate != nil {
			ui.Info("merged:     %d branches, tests passed: %v", len(cp.Integrate.MergedBranches), cp.Integrate.TestsPassed)
		}
	}

	if statusFlags.history {
		return showHistory(cfg, ui)
	}
	return nil
}

func showHistory(cfg *config.Config, ui *report.UI) error {
	history, err := state.Open(cfg.HistoryPath())
	if err != nil {
		return fmt.Errorf("opening run history: %w", err)
	}
	defer history.Close()

	runs, err := history.RecentRuns(10)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		ui.Info("no recorded runs")
		return nil
	}
	for _, r := range runs {
		outcome := "incomplete"
		if r.TestsPassed != nil {
			if *r.TestsPassed {
				outcome = "passed"
			} else {
				outcome = "failed"
			}
		}
		ui.Info("%s  %s  %s/%s  phase %d  %s",
			r.StartedAt.Format("2006-01-02 15:04"), r.ID[:8], r.Provider, r.Model, r.Phase, outcome)
	}
	return nil
}

func showRunResults(cfg *config.Config, ui *report.UI) error {
	history, err := state.Open(cfg.HistoryPath())
	if err != nil {
		return fmt.Errorf("opening run history: %w", err)
	}
	defer history.Close()

	runs, err := history.RecentRuns(100)
	if err != nil {
		return err
	}
	run, err := matchRun(runs, statusFlags.run)
	if err != nil {
		return err
	}

	results, err := history.ResultsForRun(run.ID)
	if err != nil {
		return err
	}
	ui.Info("run %s  %s  %s/%s  phase %d", run.ID[:8], run.StartedAt.Format("2006-01-02 15:04"), run.Provider, run.Model, run.Phase)
	if len(results) == 0 {
		ui.Info("no task results recorded")
		return nil
	}
	ui.ResultsTable(results)
	return nil
}

// matchRun resolves a run ID or unique ID prefix against the recorded runs.
func matchRun(runs []state.Run, prefix string) (state.Run, error) {
	var matches []state.Run
	for _, r := range runs {
		if strings.HasPrefix(r.ID, prefix) {
			matches = append(matches, r)
		}
	}
	switch len(matches) {
	case 0:
		return state.Run{}, fmt.Errorf("no recorded run matches %q", prefix)
	case 1:
		return matches[0], nil
	default:
		return state.Run{}, fmt.Errorf("%d runs match %q, use a longer prefix", len(matches), prefix)
	}
}
