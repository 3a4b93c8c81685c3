package integrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nlavee/auto-candidate/internal/git/gittest"
	"github.com/nlavee/auto-candidate/pkg/models"
)

type stubResolver struct {
	content string
	err     error
	calls   []string
}

func (s *stubResolver) ResolveConflict(_ context.Context, filePath, _, _ string) (string, error) {
	s.calls = append(s.calls, filePath)
	return s.content, s.err
}

type stubFixer struct {
	responses []string
	calls     int
}

func (s *stubFixer) FixCode(context.Context, string, string, string) (string, error) {
	s.calls++
	if s.calls > len(s.responses) {
		return "", nil
	}
	return s.responses[s.calls-1], nil
}

// stubGate passes tests starting from a given attempt.
type stubGate struct {
	passFrom  int
	testRuns  int
	installed int
}

func (s *stubGate) InstallDependencies(context.Context, string) { s.installed++ }

func (s *stubGate) RunTests(context.Context, string) (bool, string) {
	s.testRuns++
	if s.passFrom > 0 && s.testRuns >= s.passFrom {
		return true, "all passed"
	}
	return false, fmt.Sprintf("failure on run %d", s.testRuns)
}

func results(branches ...string) []models.TaskResult {
	out := make([]models.TaskResult, len(branches))
	for i, b := range branches {
		out[i] = models.TaskResult{
			ID:        strings.TrimPrefix(b, "feat/"),
			Status:    models.StatusSuccess,
			Branch:    b,
			Completed: true,
		}
	}
	return out
}

func newTestEngine(t *testing.T, fake *gittest.Fake, resolver ConflictResolver, fixer Fixer, gate QualityGate) *Engine {
	t.Helper()
	return NewEngine(fake, resolver, fixer, gate, t.TempDir(), "plan context")
}

func TestMergeBranchesAscendingOrder(t *testing.T) {
	fake := gittest.New()
	for _, b := range []string{"feat/task-1", "feat/task-2", "feat/task-3"} {
		fake.Branches[b] = true
	}
	e := newTestEngine(t, fake, &stubResolver{}, &stubFixer{}, &stubGate{})

	// Results deliberately out of order.
	merged, err := e.MergeBranches(context.Background(), results("feat/task-3", "feat/task-1", "feat/task-2"), nil)
	if err != nil {
		t.Fatalf("MergeBranches: %v", err)
	}
	want := []string{"feat/task-1", "feat/task-2", "feat/task-3"}
	if len(merged) != 3 {
		t.Fatalf("merged = %v", merged)
	}
	for i := range want {
		if merged[i] != want[i] || fake.Merged[i] != want[i] {
			t.Errorf("merge order = %v, want %v", fake.Merged, want)
			break
		}
	}
}

func TestMergeBranchesSkipsUnmergeableAndMissing(t *testing.T) {
	fake := gittest.New()
	fake.Branches["feat/task-1"] = true
	e := newTestEngine(t, fake, &stubResolver{}, &stubFixer{}, &stubGate{})

	rs := results("feat/task-1", "feat/task-2")
	rs = append(rs, models.TaskResult{ID: "task-3", Status: models.StatusFailed, Branch: "feat/task-3", Completed: true})

	merged, err := e.MergeBranches(context.Background(), rs, nil)
	if err != nil {
		t.Fatalf("MergeBranches: %v", err)
	}
	if len(merged) != 1 || merged[0] != "feat/task-1" {
		t.Errorf("merged = %v", merged)
	}
}

func TestMergeBranchesSkipsAlreadyMerged(t *testing.T) {
	fake := gittest.New()
	fake.Branches["feat/task-1"] = true
	fake.Branches["feat/task-2"] = true
	e := newTestEngine(t, fake, &stubResolver{}, &stubFixer{}, &stubGate{})

	merged, err := e.MergeBranches(context.Background(), results("feat/task-1", "feat/task-2"), []string{"feat/task-1"})
	if err != nil {
		t.Fatalf("MergeBranches: %v", err)
	}
	if len(merged) != 1 || merged[0] != "feat/task-2" {
		t.Errorf("merged = %v", merged)
	}
}

func TestMergeConflictResolved(t *testing.T) {
	fake := gittest.New()
	fake.Branches["feat/task-1"] = true
	fake.ConflictBranches["feat/task-1"] = true
	fake.Conflicted = []string{"app/main.py"}
	resolver := &stubResolver{content: "print('resolved')\n"}
	e := newTestEngine(t, fake, resolver, &stubFixer{}, &stubGate{})

	if err := os.MkdirAll(filepath.Join(e.repoPath, "app"), 0o755); err != nil {
		t.Fatal(err)
	}
	conflictFile := filepath.Join(e.repoPath, "app", "main.py")
	if err := os.WriteFile(conflictFile, []byte("<<<<<<< HEAD\na\n=======\nb\n>>>>>>>\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	merged, err := e.MergeBranches(context.Background(), results("feat/task-1"), nil)
	if err != nil {
		t.Fatalf("MergeBranches: %v", err)
	}
	if len(merged) != 1 {
		t.Fatalf("merged = %v", merged)
	}
	got, _ := os.ReadFile(conflictFile)
	if string(got) != "print('resolved')\n" {
		t.Errorf("file = %q", got)
	}
	if len(fake.Commits) == 0 || !strings.Contains(fake.Commits[len(fake.Commits)-1], "conflicts resolved") {
		t.Errorf("commits = %v", fake.Commits)
	}
	if fake.Aborted != 0 {
		t.Error("merge should not have been aborted")
	}
}

func TestMergeConflictEmptyResolutionAborts(t *testing.T) {
	fake := gittest.New()
	for _, b := range []string{"feat/task-1", "feat/task-2", "feat/task-3"} {
		fake.Branches[b] = true
	}
	fake.ConflictBranches["feat/task-1"] = true
	fake.Conflicted = []string{"main.py"}
	e := newTestEngine(t, fake, &stubResolver{content: "  \n"}, &stubFixer{}, &stubGate{})

	if err := os.WriteFile(filepath.Join(e.repoPath, "main.py"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	merged, err := e.MergeBranches(context.Background(), results("feat/task-1", "feat/task-2", "feat/task-3"), nil)
	if err == nil {
		t.Fatal("expected error for empty resolution")
	}
	if !strings.Contains(err.Error(), "feat/task-1") {
		t.Errorf("err = %v, want it to name feat/task-1", err)
	}
	if fake.Aborted != 1 {
		t.Errorf("aborted = %d, want 1", fake.Aborted)
	}

	// The aborted branch must not block its siblings.
	want := []string{"feat/task-2", "feat/task-3"}
	if len(merged) != len(want) {
		t.Fatalf("merged = %v, want %v", merged, want)
	}
	for i := range want {
		if merged[i] != want[i] {
			t.Errorf("merged = %v, want %v", merged, want)
			break
		}
	}
}

func TestMergeOnMergedCallback(t *testing.T) {
	fake := gittest.New()
	fake.Branches["feat/task-1"] = true
	fake.Branches["feat/task-2"] = true
	e := newTestEngine(t, fake, &stubResolver{}, &stubFixer{}, &stubGate{})

	var seen []string
	e.OnMerged = func(branch string) { seen = append(seen, branch) }

	if _, err := e.MergeBranches(context.Background(), results("feat/task-1", "feat/task-2"), nil); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 {
		t.Errorf("callback branches = %v", seen)
	}
}

func TestVerifyPassesFirstTry(t *testing.T) {
	gate := &stubGate{passFrom: 1}
	fixer := &stubFixer{}
	e := newTestEngine(t, gittest.New(), &stubResolver{}, fixer, gate)

	out, err := e.Verify(context.Background(), "task", 2)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !out.Passed || out.Attempts != 1 {
		t.Errorf("outcome = %+v", out)
	}
	if fixer.calls != 0 {
		t.Errorf("fix calls = %d", fixer.calls)
	}
	if gate.installed != 1 {
		t.Errorf("install calls = %d", gate.installed)
	}
}

func TestVerifyPassesAfterFixes(t *testing.T) {
	gate := &stubGate{passFrom: 3}
	fixBlock := "<<<FILE: fix.py>>>\nfixed\n<<<END_FILE>>>"
	fixer := &stubFixer{responses: []string{fixBlock, fixBlock}}
	fake := gittest.New()
	fake.Dirty = true
	e := newTestEngine(t, fake, &stubResolver{}, fixer, gate)

	out, err := e.Verify(context.Background(), "task", 2)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !out.Passed || out.Attempts != 3 {
		t.Errorf("outcome = %+v", out)
	}
	if fixer.calls != 2 {
		t.Errorf("fix calls = %d, want 2", fixer.calls)
	}
}

func TestVerifyExhaustsRetries(t *testing.T) {
	gate := &stubGate{passFrom: 0}
	fixBlock := "<<<FILE: fix.py>>>\nfixed\n<<<END_FILE>>>"
	fixer := &stubFixer{responses: []string{fixBlock, fixBlock, fixBlock}}
	fake := gittest.New()
	fake.Dirty = true
	e := newTestEngine(t, fake, &stubResolver{}, fixer, gate)

	out, err := e.Verify(context.Background(), "task", 2)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if out.Passed {
		t.Error("expected failure")
	}
	if out.Attempts != 3 || gate.testRuns != 3 {
		t.Errorf("attempts = %d, testRuns = %d, want 3", out.Attempts, gate.testRuns)
	}
	if !strings.Contains(out.LastOutput, "run 3") {
		t.Errorf("last output = %q", out.LastOutput)
	}
}

func TestVerifyStopsWhenNoApplicableFixes(t *testing.T) {
	gate := &stubGate{passFrom: 0}
	fixer := &stubFixer{responses: []string{"Sorry, I cannot determine a fix."}}
	e := newTestEngine(t, gittest.New(), &stubResolver{}, fixer, gate)

	out, err := e.Verify(context.Background(), "task", 5)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if out.Passed {
		t.Error("expected failure")
	}
	if gate.testRuns != 1 {
		t.Errorf("testRuns = %d, want 1 (loop stops without applicable fixes)", gate.testRuns)
	}
}
