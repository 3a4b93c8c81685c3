package checkpoint

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/nlavee/auto-candidate/pkg/models"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	ws := t.TempDir()
	return NewStore(ws), ws
}

func TestSaveCreatesWorkspaceAndFile(t *testing.T) {
	ws := filepath.Join(t.TempDir(), "nested", "workspace")
	s := NewStore(ws)

	if err := s.Save(1, Update{RepoPath: "/repo"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !s.Exists() {
		t.Fatal("expected checkpoint file to exist")
	}
	cp, err := s.Load()
	if err != nil || cp == nil {
		t.Fatalf("load: cp=%v err=%v", cp, err)
	}
	if cp.Version != Version {
		t.Errorf("version = %q, want %q", cp.Version, Version)
	}
	if cp.WorkspacePath != ws {
		t.Errorf("workspace = %q, want %q", cp.WorkspacePath, ws)
	}
	if cp.CurrentPhase != 1 {
		t.Errorf("current phase = %d, want 1", cp.CurrentPhase)
	}
}

func TestSaveMergesAcrossPhases(t *testing.T) {
	s, _ := newTestStore(t)

	if err := s.Save(2, Update{Plan: &PlanState{Model: "m1", Plan: &models.Plan{PlanOverview: "overview"}}}); err != nil {
		t.Fatalf("save phase 2: %v", err)
	}
	if err := s.Save(3, Update{Execute: &ExecuteState{
		BaseBranch:  "solution-v1",
		TaskResults: []models.TaskResult{{ID: "t1", Status: models.StatusSuccess, Completed: true}},
	}}); err != nil {
		t.Fatalf("save phase 3: %v", err)
	}

	cp, _ := s.Load()
	if cp.Plan == nil || cp.Plan.Model != "m1" {
		t.Error("phase 2 state was lost after phase 3 save")
	}
	if cp.Execute == nil || cp.Execute.BaseBranch != "solution-v1" {
		t.Error("phase 3 state missing")
	}
	if got := cp.PhasesCompleted; len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Errorf("phases completed = %v, want [2 3]", got)
	}
}

func TestSaveConcurrentMergesBothSides(t *testing.T) {
	s, _ := newTestStore(t)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := s.Save(3, Update{Execute: &ExecuteState{
			BaseBranch:  "solution-v1",
			TaskResults: []models.TaskResult{{ID: "t1", Status: models.StatusSuccess, Completed: true}},
		}}); err != nil {
			t.Errorf("save phase 3: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := s.Save(4, Update{Integrate: &IntegrateState{
			MergedBranches: []string{"feat/t1"},
		}}); err != nil {
			t.Errorf("save phase 4: %v", err)
		}
	}()
	wg.Wait()

	cp, err := s.Load()
	if err != nil || cp == nil {
		t.Fatalf("load: cp=%v err=%v", cp, err)
	}
	if cp.Execute == nil {
		t.Error("execute state was lost")
	}
	if cp.Integrate == nil {
		t.Error("integrate state was lost")
	}
	if cp.CurrentPhase != 4 {
		t.Errorf("current phase = %d, want 4", cp.CurrentPhase)
	}
}

func TestCurrentPhaseMonotonic(t *testing.T) {
	s, _ := newTestStore(t)

	if err := s.Save(3, Update{}); err != nil {
		t.Fatalf("save: %v", err)
	}
	// An interrupt-driven save of an earlier boundary must not regress
	// the resume point.
	if err := s.Save(2, Update{}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if got := s.CurrentPhase(); got != 3 {
		t.Errorf("current phase = %d, want 3", got)
	}
}

func TestPhasesCompletedNoDuplicates(t *testing.T) {
	s, _ := newTestStore(t)
	for i := 0; i < 3; i++ {
		if err := s.Save(1, Update{}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	if got := s.PhasesCompleted(); len(got) != 1 || got[0] != 1 {
		t.Errorf("phases completed = %v, want [1]", got)
	}
}

func TestLoadMissingReturnsNil(t *testing.T) {
	s, _ := newTestStore(t)
	cp, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cp != nil {
		t.Errorf("expected nil checkpoint, got %+v", cp)
	}
	if s.CurrentPhase() != 0 {
		t.Errorf("current phase = %d, want 0", s.CurrentPhase())
	}
}

func TestLoadCorruptReturnsNil(t *testing.T) {
	s, ws := newTestStore(t)
	if err := os.WriteFile(filepath.Join(ws, FileName), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	cp, err := s.Load()
	if err != nil {
		t.Fatalf("corrupt checkpoint should not error: %v", err)
	}
	if cp != nil {
		t.Errorf("expected nil checkpoint for corrupt file, got %+v", cp)
	}
}

func TestClearIdempotent(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Clear(); err != nil {
		t.Fatalf("clear with no file: %v", err)
	}
	if err := s.Save(1, Update{}); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if s.Exists() {
		t.Error("checkpoint should be gone after clear")
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("second clear: %v", err)
	}
}

func TestValidate(t *testing.T) {
	s, ws := newTestStore(t)
	if err := s.Save(1, Update{RepoPath: "/repo", PromptHash: "sha256:abc"}); err != nil {
		t.Fatal(err)
	}

	if !s.Validate("sha256:abc", ws, "/repo") {
		t.Error("expected matching checkpoint to validate")
	}
	if s.Validate("sha256:other", ws, "/repo") {
		t.Error("changed prompt hash must invalidate")
	}
	if s.Validate("sha256:abc", "/elsewhere", "/repo") {
		t.Error("relocated workspace must invalidate")
	}
	if s.Validate("sha256:abc", ws, "/otherrepo") {
		t.Error("changed repo path must invalidate")
	}
}

func TestValidateNoStoredHashAcceptsAny(t *testing.T) {
	s, ws := newTestStore(t)
	if err := s.Save(1, Update{RepoPath: "/repo"}); err != nil {
		t.Fatal(err)
	}
	if !s.Validate("sha256:whatever", ws, "/repo") {
		t.Error("checkpoint without a recorded hash should validate")
	}
}

func TestValidateNoCheckpoint(t *testing.T) {
	s, ws := newTestStore(t)
	if s.Validate("sha256:abc", ws, "/repo") {
		t.Error("missing checkpoint must not validate")
	}
}

func TestHashPromptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompt.md")
	content := []byte("solve the challenge")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	want := fmt.Sprintf("sha256:%x", sha256.Sum256(content))
	if got := HashPromptFile(path); got != want {
		t.Errorf("hash = %q, want %q", got, want)
	}
	if got := HashPromptFile(filepath.Join(dir, "missing.md")); got != "" {
		t.Errorf("missing file hash = %q, want empty", got)
	}
}
