// Package workflow sequences the four pipeline phases, drives checkpointing
// and resume, and owns the interrupt contract.
package workflow

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/nlavee/auto-candidate/internal/checkpoint"
	"github.com/nlavee/auto-candidate/internal/dispatch"
	"github.com/nlavee/auto-candidate/internal/exec"
	"github.com/nlavee/auto-candidate/internal/executor"
	"github.com/nlavee/auto-candidate/internal/git"
	"github.com/nlavee/auto-candidate/internal/inspect"
	"github.com/nlavee/auto-candidate/internal/integrate"
	"github.com/nlavee/auto-candidate/internal/llm"
	"github.com/nlavee/auto-candidate/internal/quality"
	"github.com/nlavee/auto-candidate/internal/report"
	"github.com/nlavee/auto-candidate/internal/state"
	"github.com/nlavee/auto-candidate/internal/worktree"
	"github.com/nlavee/auto-candidate/pkg/models"
)

const (
	// BaseBranch is the shared integration target all task branches merge
	// into.
	BaseBranch = "solution-v1"
	// TargetRepoDir is the repository checkout inside the workspace.
	TargetRepoDir = "target_repo"
	// MasterPlanFile is the planning phase's main artifact.
	MasterPlanFile = "MASTER_PLAN.md"
)

// TaskSpecFile returns the deterministic workspace-relative file name for a
// task's specification document.
func TaskSpecFile(taskID string) string {
	return "PLAN_" + models.SanitizeID(taskID) + ".md"
}

// Options configures a run.
type Options struct {
	// RepoURL clones a remote repository; LocalPath copies a local
	// directory instead. Exactly one must be set.
	RepoURL   string
	LocalPath string
	// WorkspacePath is where the run keeps its repository copy, plan
	// documents, and checkpoint.
	WorkspacePath string
	// PromptPath is the challenge prompt file.
	PromptPath string
	// Resume continues from the last checkpointed phase when possible.
	Resume bool
	// ProviderName and models are recorded in history and the checkpoint.
	ProviderName string
	Model        string
	PlanModel    string
	// Retries bounds the fix rounds after the first failing test run.
	Retries int
	// Gate overrides quality gate commands.
	Gate quality.GateConfig
}

// Controller runs the pipeline.
type Controller struct {
	opts        Options
	ui          *report.UI
	checkpoints *checkpoint.Store
	interrupt   *InterruptContext
	engine      *llm.Engine
	planEngine  *llm.Engine
	history     *state.Store
	runID       string

	// Seams for tests.
	newGit     func(repoPath string) git.Runner
	execRunner exec.CommandRunner
}

// NewController builds a controller. planEngine may equal engine; history
// may be nil, in which case no run history is recorded.
func NewController(opts Options, engine, planEngine *llm.Engine, history *state.Store) *Controller {
	store := checkpoint.NewStore(opts.WorkspacePath)
	return &Controller{
		opts:        opts,
		ui:          report.New(),
		checkpoints: store,
		interrupt:   NewInterruptContext(store),
		engine:      engine,
		planEngine:  planEngine,
		history:     history,
		newGit:      func(repoPath string) git.Runner { return git.NewRunner(repoPath) },
		execRunner:  exec.NewRunner(),
	}
}

// Interrupt returns the interrupt context for signal wiring.
func (c *Controller) Interrupt() *InterruptContext {
	return c.interrupt
}

// runState is the in-memory view threaded through the phases.
type runState struct {
	repoPath   string
	promptHash string
	challenge  string

	plan       *models.Plan
	masterPlan string
	taskSpecs  map[string]string

	results []models.TaskResult
	merged  []string

	testsPassed bool
}

// Run executes the pipeline. Setup errors return non-nil; a run whose
// verification fails still returns nil with the failure recorded in the
// workspace artifacts and the checkpoint.
func (c *Controller) Run(ctx context.Context) error {
	st := &runState{
		repoPath:   filepath.Join(c.opts.WorkspacePath, TargetRepoDir),
		promptHash: checkpoint.HashPromptFile(c.opts.PromptPath),
	}

	resumeFrom := c.resolveResume(st)
	if resumeFrom > 1 {
		c.ui.Info("resuming from phase %d", resumeFrom)
	}
	c.beginHistory()

	phases := []struct {
		number int
		name   string
		fresh  func(context.Context, *runState) error
		loaded func(*runState) error
	}{
		{1, "Init", c.runInit, c.loadInit},
		{2, "Plan", c.runPlan, c.loadPlan},
		{3, "Execute", c.runExecute, c.loadExecute},
		{4, "Integrate", c.runIntegrate, nil},
	}

	for _, p := range phases {
		if resumeFrom > p.number && p.loaded != nil {
			if err := p.loaded(st); err != nil {
				return fmt.Errorf("phase %d (%s) resume: %w", p.number, p.name, err)
			}
			continue
		}
		c.ui.Phase(p.number, p.name)
		c.interrupt.EnterPhase(p.number)
		if err := p.fresh(ctx, st); err != nil {
			return fmt.Errorf("phase %d (%s): %w", p.number, p.name, err)
		}
		c.recordPhaseHistory(p.number)
	}

	c.finishHistory(st)
	c.ui.ResultsTable(st.results)
	if st.testsPassed {
		c.ui.Success("solution verified on branch %s", BaseBranch)
	} else {
		c.ui.Warning("solution did not pass verification, see %s", report.FailureReportFile)
	}
	return nil
}

// resolveResume decides the first phase to execute fresh. Resume not
// requested leaves any existing checkpoint untouched but ignored; an
// explicitly invalid checkpoint is cleared with a warning.
func (c *Controller) resolveResume(st *runState) int {
	if !c.opts.Resume {
		return 1
	}
	if !c.checkpoints.Exists() {
		c.ui.Warning("resume requested but no checkpoint found, starting fresh")
		return 1
	}
	if !c.checkpoints.Validate(st.promptHash, c.opts.WorkspacePath, st.repoPath) {
		c.ui.Warning("checkpoint does not match this run (prompt or paths changed), clearing it")
		if err := c.checkpoints.Clear(); err != nil {
			log.Printf("[workflow] warning: clearing stale checkpoint: %v", err)
		}
		return 1
	}
	return c.checkpoints.CurrentPhase() + 1
}

// Phase 1: workspace setup, repository materialization, prompt read,
// prerequisite checks.
func (c *Controller) runInit(ctx context.Context, st *runState) error {
	if (c.opts.RepoURL == "") == (c.opts.LocalPath == "") {
		return fmt.Errorf("exactly one of repo URL or local path must be given")
	}
	if err := c.execRunner.LookPath("git"); err != nil {
		return fmt.Errorf("git not found on PATH: %w", err)
	}
	if err := c.execRunner.LookPath("docker"); err != nil {
		c.ui.Warning("docker not found, sandboxed test execution unavailable")
	}

	if err := os.MkdirAll(c.opts.WorkspacePath, 0o755); err != nil {
		return fmt.Errorf("creating workspace: %w", err)
	}

	if c.opts.RepoURL != "" {
		c.ui.Info("cloning %s", c.opts.RepoURL)
		if err := git.Clone(c.opts.RepoURL, st.repoPath); err != nil {
			return err
		}
	} else {
		c.ui.Info("copying %s", c.opts.LocalPath)
		if err := git.CopyInit(c.opts.LocalPath, st.repoPath); err != nil {
			return err
		}
	}

	challenge, err := os.ReadFile(c.opts.PromptPath)
	if err != nil {
		return fmt.Errorf("reading prompt file: %w", err)
	}
	st.challenge = string(challenge)
	st.promptHash = checkpoint.HashPromptFile(c.opts.PromptPath)

	return c.checkpoints.Save(1, checkpoint.Update{
		RepoPath:   st.repoPath,
		PromptHash: st.promptHash,
		Setup: &checkpoint.SetupState{
			RepoPath:   st.repoPath,
			PromptPath: c.opts.PromptPath,
			PromptHash: st.promptHash,
		},
	})
}

func (c *Controller) loadInit(st *runState) error {
	cp, err := c.checkpoints.Load()
	if err != nil || cp == nil || cp.Setup == nil {
		return fmt.Errorf("checkpoint has no setup state")
	}
	st.repoPath = cp.Setup.RepoPath
	promptPath := c.opts.PromptPath
	if promptPath == "" {
		promptPath = cp.Setup.PromptPath
	}
	challenge, err := os.ReadFile(promptPath)
	if err != nil {
		return fmt.Errorf("reading prompt file: %w", err)
	}
	st.challenge = string(challenge)
	return nil
}

// Phase 2: task breakdown, plan documents, refinement pass.
func (c *Controller) runPlan(ctx context.Context, st *runState) error {
	codebaseContext, err := inspect.NewBuilder(st.repoPath).ContextString()
	if err != nil {
		return fmt.Errorf("building codebase context: %w", err)
	}

	c.ui.Info("creating task breakdown")
	plan, err := c.planEngine.CreateTaskBreakdown(ctx, st.challenge, codebaseContext)
	if err != nil {
		return err
	}

	masterPlan, err := c.planEngine.CreateMasterPlanDoc(ctx, plan, codebaseContext)
	if err != nil {
		return err
	}

	specs := make(map[string]string, len(plan.Tasks))
	for _, task := range plan.Tasks {
		spec, err := c.planEngine.CreateTaskSpecDoc(ctx, task, masterPlan, codebaseContext)
		if err != nil {
			return err
		}
		specs[task.ID] = spec
	}

	refined, err := c.planEngine.ReviewAndRefinePlan(ctx, plan, masterPlan, specs)
	if err != nil {
		return err
	}
	if refined != plan {
		c.ui.Info("plan refined after review (%d tasks)", len(refined.Tasks))
		plan = refined
		for _, task := range plan.Tasks {
			if _, ok := specs[task.ID]; ok {
				continue
			}
			spec, err := c.planEngine.CreateTaskSpecDoc(ctx, task, masterPlan, codebaseContext)
			if err != nil {
				return err
			}
			specs[task.ID] = spec
		}
	}

	specFiles := make(map[string]string, len(plan.Tasks))
	if err := c.writeArtifact(MasterPlanFile, masterPlan); err != nil {
		return err
	}
	for _, task := range plan.Tasks {
		name := TaskSpecFile(task.ID)
		if err := c.writeArtifact(name, specs[task.ID]); err != nil {
			return err
		}
		specFiles[task.ID] = name
	}
	c.ui.Success("plan ready: %d tasks", len(plan.Tasks))

	st.plan = plan
	st.masterPlan = masterPlan
	st.taskSpecs = specs

	return c.checkpoints.Save(2, checkpoint.Update{
		Plan: &checkpoint.PlanState{
			Plan:           plan,
			Provider:       c.opts.ProviderName,
			Model:          c.opts.PlanModel,
			MasterPlanFile: MasterPlanFile,
			TaskSpecFiles:  specFiles,
		},
	})
}

func (c *Controller) loadPlan(st *runState) error {
	cp, err := c.checkpoints.Load()
	if err != nil || cp == nil || cp.Plan == nil || cp.Plan.Plan == nil {
		return fmt.Errorf("checkpoint has no plan state")
	}
	st.plan = cp.Plan.Plan

	masterPlan, err := c.readArtifact(cp.Plan.MasterPlanFile)
	if err != nil {
		return fmt.Errorf("re-reading master plan: %w", err)
	}
	st.masterPlan = masterPlan

	st.taskSpecs = make(map[string]string, len(cp.Plan.TaskSpecFiles))
	for taskID, name := range cp.Plan.TaskSpecFiles {
		spec, err := c.readArtifact(name)
		if err != nil {
			log.Printf("[workflow] warning: re-reading spec for %s: %v", taskID, err)
			continue
		}
		st.taskSpecs[taskID] = spec
	}
	return nil
}

// Phase 3: base branch, parallel task execution, result checkpointing.
func (c *Controller) runExecute(ctx context.Context, st *runState) error {
	g := c.newGit(st.repoPath)
	if err := c.ensureBaseBranch(g); err != nil {
		return err
	}

	previous := c.previousResults()
	manager := worktree.NewManager(g, c.opts.WorkspacePath)
	gate := quality.NewGateWithRunner(c.opts.Gate, c.execRunner)
	exe := executor.New(manager, c.engine, gate,
		func(path string) git.Runner { return c.newGit(path) },
		st.plan.PlanOverview, st.taskSpecs)
	dispatcher := dispatch.New(exe, manager.RemoveTask)

	progress := dispatch.NewProgress(previous)
	c.interrupt.SetSnapshot(func() (checkpoint.Update, bool) {
		snap := progress.Snapshot()
		if len(snap) == 0 {
			return checkpoint.Update{}, false
		}
		for i := range snap {
			snap[i].Completed = true
		}
		return checkpoint.Update{
			Execute: &checkpoint.ExecuteState{BaseBranch: BaseBranch, TaskResults: snap},
		}, true
	})
	c.interrupt.SetCleanup(manager.CleanupAll)

	st.results = dispatcher.Run(ctx, st.plan.Tasks, progress, BaseBranch)
	manager.CleanupAll()
	c.recordResultsHistory(st.results)

	return c.checkpoints.Save(3, checkpoint.Update{
		Execute: &checkpoint.ExecuteState{BaseBranch: BaseBranch, TaskResults: st.results},
	})
}

// loadExecute restores phase 3 results and downgrades any whose branch no
// longer exists: their work is unmergeable, so integration must not count
// on it.
func (c *Controller) loadExecute(st *runState) error {
	cp, err := c.checkpoints.Load()
	if err != nil || cp == nil || cp.Execute == nil {
		return fmt.Errorf("checkpoint has no execute state")
	}
	st.results = cp.Execute.TaskResults

	g := c.newGit(st.repoPath)
	for i := range st.results {
		r := &st.results[i]
		if !r.Status.Mergeable() || r.Branch == "" {
			continue
		}
		exists, err := g.BranchExists(r.Branch)
		if err != nil {
			return fmt.Errorf("verifying branch %s: %w", r.Branch, err)
		}
		if !exists {
			log.Printf("[workflow] branch %s vanished, downgrading %s to ERROR", r.Branch, r.ID)
			r.Status = models.StatusError
			r.Error = "branch missing on resume"
		}
	}
	if cp.Integrate != nil {
		st.merged = cp.Integrate.MergedBranches
	}
	return nil
}

// Phase 4: merge, verify, report.
func (c *Controller) runIntegrate(ctx context.Context, st *runState) error {
	g := c.newGit(st.repoPath)
	if err := g.CheckoutBranch(BaseBranch); err != nil {
		return fmt.Errorf("checking out %s: %w", BaseBranch, err)
	}

	gate := quality.NewGateWithRunner(c.opts.Gate, c.execRunner)
	eng := integrate.NewEngine(g, c.engine, c.engine, gate, st.repoPath, st.planContext())
	eng.OnMerged = func(branch string) {
		st.merged = append(st.merged, branch)
		c.saveIntegrate(st, 0, false, "")
	}
	c.interrupt.SetSnapshot(func() (checkpoint.Update, bool) {
		return checkpoint.Update{
			Integrate: &checkpoint.IntegrateState{MergedBranches: st.merged},
		}, true
	})

	if _, err := eng.MergeBranches(ctx, st.results, st.merged); err != nil {
		// Failed branches are excluded; the rest of the run continues.
		c.ui.Warning("integration incomplete: %v", err)
	}
	c.ui.Info("merged %d branches into %s", len(st.merged), BaseBranch)

	outcome, err := eng.Verify(ctx, st.challenge, c.opts.Retries)
	if err != nil {
		return err
	}
	st.testsPassed = outcome.Passed

	if outcome.Passed {
		c.ui.Success("tests passed after %d attempt(s)", outcome.Attempts)
		if err := c.writeVerification(ctx, st, outcome); err != nil {
			log.Printf("[workflow] warning: verification report: %v", err)
		}
	} else {
		c.ui.Error("tests failing after %d attempt(s)", outcome.Attempts)
		if _, err := report.WriteFailureReport(c.opts.WorkspacePath, st.challenge, outcome.Attempts, outcome.LastOutput, st.results); err != nil {
			log.Printf("[workflow] warning: failure report: %v", err)
		}
	}

	c.saveIntegrate(st, outcome.Attempts, outcome.Passed, outcome.LastOutput)
	return nil
}

func (c *Controller) writeVerification(ctx context.Context, st *runState, outcome integrate.Outcome) error {
	codebaseContext, err := inspect.NewBuilder(st.repoPath).ContextString()
	if err != nil {
		return err
	}
	analysis, err := c.engine.VerifySolution(ctx, st.challenge, codebaseContext, outcome.LastOutput)
	if err != nil {
		return err
	}
	_, err = report.WriteVerificationReport(c.opts.WorkspacePath, analysis)
	return err
}

func (c *Controller) saveIntegrate(st *runState, attempts int, passed bool, lastOutput string) {
	err := c.checkpoints.Save(4, checkpoint.Update{
		Integrate: &checkpoint.IntegrateState{
			MergedBranches: st.merged,
			TestAttempt:    attempts,
			TestsPassed:    passed,
			LastTestOutput: lastOutput,
		},
	})
	if err != nil {
		log.Printf("[workflow] warning: integrate checkpoint: %v", err)
	}
}

// ensureBaseBranch makes the integration branch exist and be checked out.
func (c *Controller) ensureBaseBranch(g git.Runner) error {
	exists, err := g.BranchExists(BaseBranch)
	if err != nil {
		return fmt.Errorf("checking base branch: %w", err)
	}
	if exists {
		return g.CheckoutBranch(BaseBranch)
	}
	return g.CreateAndCheckoutBranch(BaseBranch)
}

// previousResults returns completed results from an earlier interrupted
// phase 3, if any.
func (c *Controller) previousResults() []models.TaskResult {
	cp, err := c.checkpoints.Load()
	if err != nil || cp == nil || cp.Execute == nil {
		return nil
	}
	return cp.Execute.TaskResults
}

func (st *runState) planContext() string {
	if st.masterPlan != "" {
		return st.masterPlan
	}
	if st.plan != nil {
		return st.plan.PlanOverview
	}
	return ""
}

func (c *Controller) writeArtifact(name, content string) error {
	path := filepath.Join(c.opts.WorkspacePath, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

func (c *Controller) readArtifact(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(c.opts.WorkspacePath, name))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// History helpers. The history store is observability only: every failure
// is a warning.

func (c *Controller) beginHistory() {
	if c.history == nil {
		return
	}
	source := c.opts.RepoURL
	if source == "" {
		source = c.opts.LocalPath
	}
	id, err := c.history.BeginRun(c.opts.WorkspacePath, source, c.opts.ProviderName, c.opts.Model)
	if err != nil {
		log.Printf("[workflow] warning: run history: %v", err)
		return
	}
	c.runID = id
}

func (c *Controller) recordPhaseHistory(phase int) {
	if c.history == nil || c.runID == "" {
		return
	}
	if err := c.history.RecordPhase(c.runID, phase); err != nil {
		log.Printf("[workflow] warning: run history: %v", err)
	}
}

func (c *Controller) recordResultsHistory(results []models.TaskResult) {
	if c.history == nil || c.runID == "" {
		return
	}
	if err := c.history.RecordResults(c.runID, results); err != nil {
		log.Printf("[workflow] warning: run history: %v", err)
	}
}

func (c *Controller) finishHistory(st *runState) {
	if c.history == nil || c.runID == "" {
		return
	}
	if err := c.history.FinishRun(c.runID, st.testsPassed); err != nil {
		log.Printf("[workflow] warning: run history: %v", err)
	}
}
