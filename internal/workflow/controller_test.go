package workflow

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/nlavee/auto-candidate/internal/checkpoint"
	"github.com/nlavee/auto-candidate/internal/git"
	"github.com/nlavee/auto-candidate/internal/git/gittest"
	"github.com/nlavee/auto-candidate/internal/llm"
	"github.com/nlavee/auto-candidate/internal/report"
	"github.com/nlavee/auto-candidate/pkg/models"
)

// keyedProvider answers by recognizing the prompt, since phase 3 calls
// arrive in nondeterministic order.
type keyedProvider struct {
	mu        sync.Mutex
	execCalls int
}

func (p *keyedProvider) Name() string { return "keyed" }

func (p *keyedProvider) Generate(_ context.Context, userMessage, _ string) (string, error) {
	switch {
	case strings.Contains(userMessage, "produce a task breakdown"):
		return `{"plan_overview": "two small tasks", "tasks": [
			{"id": "task-1", "title": "First"},
			{"id": "task-2", "title": "Second"}
		]}`, nil
	case strings.Contains(userMessage, "MASTER_PLAN.md"):
		return "# Master Plan\n\ntwo small tasks", nil
	case strings.Contains(userMessage, "implementation specification"):
		return "# Task Spec\n\ndetails", nil
	case strings.Contains(userMessage, "Review the plan"):
		return "OK", nil
	case strings.Contains(userMessage, "Implement the following task"):
		p.mu.Lock()
		p.execCalls++
		n := p.execCalls
		p.mu.Unlock()
		return fmt.Sprintf("<<<FILE: impl_%d.py>>>\nprint(%d)\n<<<END_FILE>>>", n, n), nil
	case strings.Contains(userMessage, "Review the solution"):
		return "Looks complete.\n\nVerdict: PASS", nil
	default:
		return "", fmt.Errorf("unexpected prompt: %.60s", userMessage)
	}
}

func (p *keyedProvider) ListModels(context.Context) ([]string, error) { return nil, nil }

type okExecRunner struct{}

func (okExecRunner) Run(_ context.Context, _ string, name string, _ ...string) ([]byte, error) {
	return []byte(name + " ok"), nil
}

func (okExecRunner) LookPath(string) error { return nil }

func quietUI() *report.UI {
	var buf bytes.Buffer
	return &report.UI{Out: &buf, ErrOut: &buf}
}

// newResumableController seeds a workspace with a phase 1 checkpoint so Run
// starts at planning, avoiding real git for repository setup.
func newResumableController(t *testing.T) (*Controller, *gittest.Fake, string) {
	t.Helper()
	ws := t.TempDir()
	repoPath := filepath.Join(ws, TargetRepoDir)
	if err := os.MkdirAll(repoPath, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(repoPath, "app.py"), []byte("print('hi')\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	promptPath := filepath.Join(ws, "prompt.md")
	if err := os.WriteFile(promptPath, []byte("build the thing"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := checkpoint.NewStore(ws)
	hash := checkpoint.HashPromptFile(promptPath)
	err := store.Save(1, checkpoint.Update{
		RepoPath:   repoPath,
		PromptHash: hash,
		Setup: &checkpoint.SetupState{
			RepoPath:   repoPath,
			PromptPath: promptPath,
			PromptHash: hash,
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	engine := llm.NewEngine(&keyedProvider{})
	c := NewController(Options{
		LocalPath:     "/does/not/matter",
		WorkspacePath: ws,
		PromptPath:    promptPath,
		Resume:        true,
		ProviderName:  "keyed",
		Retries:       2,
	}, engine, engine, nil)
	c.ui = quietUI()

	fake := gittest.New()
	c.newGit = func(string) git.Runner { return fake }
	c.execRunner = okExecRunner{}
	return c, fake, ws
}

func TestRunFromPlanThroughIntegrate(t *testing.T) {
	c, fake, ws := newResumableController(t)

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Plan artifacts written at deterministic names.
	for _, name := range []string{MasterPlanFile, TaskSpecFile("task-1"), TaskSpecFile("task-2")} {
		if _, err := os.Stat(filepath.Join(ws, name)); err != nil {
			t.Errorf("artifact %s missing: %v", name, err)
		}
	}

	cp, err := c.checkpoints.Load()
	if err != nil || cp == nil {
		t.Fatalf("Load: %v", err)
	}
	if cp.CurrentPhase != 4 {
		t.Errorf("phase = %d, want 4", cp.CurrentPhase)
	}
	if cp.Execute == nil || len(cp.Execute.TaskResults) != 2 {
		t.Fatalf("execute state = %+v", cp.Execute)
	}
	for _, r := range cp.Execute.TaskResults {
		if r.Status != models.StatusSuccess || !r.Completed {
			t.Errorf("result = %+v", r)
		}
	}
	if cp.Integrate == nil || !cp.Integrate.TestsPassed {
		t.Errorf("integrate state = %+v", cp.Integrate)
	}
	if len(cp.Integrate.MergedBranches) != 2 {
		t.Errorf("merged = %v", cp.Integrate.MergedBranches)
	}

	// Ascending task id order.
	if len(fake.Merged) != 2 || fake.Merged[0] != "feat/task-1" || fake.Merged[1] != "feat/task-2" {
		t.Errorf("merge order = %v", fake.Merged)
	}

	if _, err := os.Stat(filepath.Join(ws, report.VerificationReportFile)); err != nil {
		t.Errorf("verification report missing: %v", err)
	}
}

func TestResolveResumeWithoutFlagIgnoresCheckpoint(t *testing.T) {
	c, _, _ := newResumableController(t)
	c.opts.Resume = false

	st := &runState{
		repoPath:   filepath.Join(c.opts.WorkspacePath, TargetRepoDir),
		promptHash: checkpoint.HashPromptFile(c.opts.PromptPath),
	}
	if got := c.resolveResume(st); got != 1 {
		t.Errorf("resumeFrom = %d, want 1", got)
	}
	if !c.checkpoints.Exists() {
		t.Error("checkpoint should be left untouched when resume is off")
	}
}

func TestResolveResumeValidCheckpoint(t *testing.T) {
	c, _, _ := newResumableController(t)

	st := &runState{
		repoPath:   filepath.Join(c.opts.WorkspacePath, TargetRepoDir),
		promptHash: checkpoint.HashPromptFile(c.opts.PromptPath),
	}
	if got := c.resolveResume(st); got != 2 {
		t.Errorf("resumeFrom = %d, want 2", got)
	}
}

func TestResolveResumeChangedPromptClears(t *testing.T) {
	c, _, _ := newResumableController(t)
	if err := os.WriteFile(c.opts.PromptPath, []byte("a different challenge"), 0o644); err != nil {
		t.Fatal(err)
	}

	st := &runState{
		repoPath:   filepath.Join(c.opts.WorkspacePath, TargetRepoDir),
		promptHash: checkpoint.HashPromptFile(c.opts.PromptPath),
	}
	if got := c.resolveResume(st); got != 1 {
		t.Errorf("resumeFrom = %d, want 1", got)
	}
	if c.checkpoints.Exists() {
		t.Error("invalid checkpoint should be cleared")
	}
}

func TestLoadExecuteDowngradesVanishedBranches(t *testing.T) {
	c, fake, _ := newResumableController(t)
	fake.Branches["feat/task-1"] = true

	err := c.checkpoints.Save(3, checkpoint.Update{
		Execute: &checkpoint.ExecuteState{
			BaseBranch: BaseBranch,
			TaskResults: []models.TaskResult{
				{ID: "task-1", Status: models.StatusSuccess, Branch: "feat/task-1", Completed: true},
				{ID: "task-2", Status: models.StatusSuccess, Branch: "feat/task-2", Completed: true},
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	st := &runState{repoPath: filepath.Join(c.opts.WorkspacePath, TargetRepoDir)}
	if err := c.loadExecute(st); err != nil {
		t.Fatalf("loadExecute: %v", err)
	}
	if st.results[0].Status != models.StatusSuccess {
		t.Errorf("task-1 = %+v", st.results[0])
	}
	if st.results[1].Status != models.StatusError {
		t.Errorf("task-2 should be downgraded, got %+v", st.results[1])
	}
}

func TestTaskSpecFileNaming(t *testing.T) {
	if got := TaskSpecFile("Fix API/auth"); got != "PLAN_Fix-API-auth.md" {
		t.Errorf("TaskSpecFile = %q", got)
	}
}

func TestEnsureBaseBranchIdempotent(t *testing.T) {
	c, fake, _ := newResumableController(t)

	if err := c.ensureBaseBranch(fake); err != nil {
		t.Fatal(err)
	}
	if cur, _ := fake.CurrentBranch(); cur != BaseBranch {
		t.Errorf("current = %s", cur)
	}
	if err := c.ensureBaseBranch(fake); err != nil {
		t.Fatal(err)
	}
	if !fake.Branches[BaseBranch] {
		t.Error("base branch missing")
	}
}
