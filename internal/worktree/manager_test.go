package worktree

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nlavee/auto-candidate/internal/git/gittest"
	"github.com/nlavee/auto-candidate/pkg/models"
)

func TestBranchForTaskSanitizes(t *testing.T) {
	cases := map[string]string{
		"task-1":       "feat/task-1",
		"Fix API/auth": "feat/Fix-API-auth",
		"":             "feat/task",
	}
	for in, want := range cases {
		if got := BranchForTask(in); got != want {
			t.Errorf("BranchForTask(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCreateSetsUpBranchAndWorktree(t *testing.T) {
	ws := t.TempDir()
	fake := gittest.New()
	m := NewManager(fake, ws)

	wc, err := m.Create(models.Task{ID: "task-1"}, "solution-v1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if wc.Branch != "feat/task-1" {
		t.Errorf("branch = %q", wc.Branch)
	}
	wantPath := filepath.Join(ws, "worktrees", "task-1")
	if wc.Path != wantPath {
		t.Errorf("path = %q, want %q", wc.Path, wantPath)
	}
	if !fake.Branches["feat/task-1"] {
		t.Error("branch not created")
	}
	if fake.Worktrees[wantPath] != "feat/task-1" {
		t.Errorf("worktrees = %v", fake.Worktrees)
	}
}

func TestCreateDistinctTasksGetDistinctContexts(t *testing.T) {
	m := NewManager(gittest.New(), t.TempDir())

	a, err := m.Create(models.Task{ID: "task-1"}, "solution-v1")
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.Create(models.Task{ID: "task-2"}, "solution-v1")
	if err != nil {
		t.Fatal(err)
	}
	if a.Branch == b.Branch || a.Path == b.Path {
		t.Errorf("contexts collide: %+v vs %+v", a, b)
	}
}

func TestCreateRemovesStaleWorktree(t *testing.T) {
	ws := t.TempDir()
	fake := gittest.New()
	m := NewManager(fake, ws)

	stale := PathForTask(ws, "task-1")
	if err := os.MkdirAll(stale, 0o755); err != nil {
		t.Fatal(err)
	}

	if _, err := m.Create(models.Task{ID: "task-1"}, "solution-v1"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if fake.CallCount("WorktreeRemove") != 1 {
		t.Error("stale worktree was not removed")
	}
	if fake.CallCount("WorktreeAdd") != 1 {
		t.Error("worktree was not re-added")
	}
}

func TestRemoveTaskMissingIsNoop(t *testing.T) {
	fake := gittest.New()
	m := NewManager(fake, t.TempDir())

	if err := m.RemoveTask("never-created"); err != nil {
		t.Fatalf("RemoveTask: %v", err)
	}
	if fake.CallCount("WorktreeRemove") != 0 {
		t.Error("unexpected WorktreeRemove call")
	}
}

func TestCleanupAllRemovesEveryCheckout(t *testing.T) {
	ws := t.TempDir()
	fake := gittest.New()
	m := NewManager(fake, ws)

	for _, id := range []string{"task-1", "task-2"} {
		if _, err := m.Create(models.Task{ID: id}, "solution-v1"); err != nil {
			t.Fatal(err)
		}
		if err := os.MkdirAll(PathForTask(ws, id), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	m.CleanupAll()
	if got := fake.CallCount("WorktreeRemove"); got != 2 {
		t.Errorf("WorktreeRemove calls = %d, want 2", got)
	}
}
