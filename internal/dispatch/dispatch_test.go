package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nlavee/auto-candidate/pkg/models"
)

// fakeRunner returns scripted results and can panic or block per task.
type fakeRunner struct {
	mu      sync.Mutex
	ran     []string
	panics  map[string]bool
	block   map[string]chan struct{}
	results map[string]models.TaskResult
}

func (f *fakeRunner) Run(_ context.Context, task models.Task, baseBranch string) models.TaskResult {
	f.mu.Lock()
	f.ran = append(f.ran, task.ID)
	f.mu.Unlock()
	if f.panics[task.ID] {
		panic("runner panic for " + task.ID)
	}
	if ch, ok := f.block[task.ID]; ok {
		<-ch
	}
	if r, ok := f.results[task.ID]; ok {
		return r
	}
	return models.TaskResult{ID: task.ID, Status: models.StatusSuccess, Branch: "feat/" + task.ID}
}

func (f *fakeRunner) ranTasks() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ran...)
}

func tasks(ids ...string) []models.Task {
	out := make([]models.Task, len(ids))
	for i, id := range ids {
		out[i] = models.Task{ID: id}
	}
	return out
}

func TestRunAllTasksCompleted(t *testing.T) {
	runner := &fakeRunner{}
	d := New(runner, nil)
	progress := NewProgress(nil)

	results := d.Run(context.Background(), tasks("task-1", "task-2", "task-3"), progress, "solution-v1")

	if len(results) != 3 {
		t.Fatalf("results = %d", len(results))
	}
	for i, want := range []string{"task-1", "task-2", "task-3"} {
		if results[i].ID != want {
			t.Errorf("results[%d].ID = %s, want %s", i, results[i].ID, want)
		}
		if !results[i].Completed {
			t.Errorf("results[%d] not marked completed", i)
		}
	}
}

func TestRunPanicIsolation(t *testing.T) {
	runner := &fakeRunner{panics: map[string]bool{"task-2": true}}
	d := New(runner, nil)

	results := d.Run(context.Background(), tasks("task-1", "task-2", "task-3"), NewProgress(nil), "solution-v1")

	if len(results) != 2 {
		t.Fatalf("results = %d, want 2 (panicked task contributes none)", len(results))
	}
	for _, r := range results {
		if r.ID == "task-2" {
			t.Error("panicked task should not appear in results")
		}
		if !r.Completed {
			t.Errorf("result %s not marked completed", r.ID)
		}
	}
}

func TestRunSkipsPreviouslyCompleted(t *testing.T) {
	runner := &fakeRunner{}
	d := New(runner, nil)
	previous := []models.TaskResult{
		{ID: "task-1", Status: models.StatusSuccess, Completed: true},
	}

	results := d.Run(context.Background(), tasks("task-1", "task-2"), NewProgress(previous), "solution-v1")

	ran := runner.ranTasks()
	if len(ran) != 1 || ran[0] != "task-2" {
		t.Errorf("ran = %v, want only task-2", ran)
	}
	if len(results) != 2 {
		t.Errorf("results = %d, want 2 (previous result retained)", len(results))
	}
}

func TestRunIncompletePreviousResultReruns(t *testing.T) {
	runner := &fakeRunner{}
	d := New(runner, nil)
	previous := []models.TaskResult{
		{ID: "task-1", Status: models.StatusError, Completed: false},
	}

	d.Run(context.Background(), tasks("task-1"), NewProgress(previous), "solution-v1")

	if ran := runner.ranTasks(); len(ran) != 1 {
		t.Errorf("ran = %v, want task-1 rerun", ran)
	}
}

func TestSnapshotMidRun(t *testing.T) {
	release := make(chan struct{})
	runner := &fakeRunner{block: map[string]chan struct{}{"task-2": release}}
	d := New(runner, nil)
	progress := NewProgress(nil)

	done := make(chan []models.TaskResult)
	go func() {
		done <- d.Run(context.Background(), tasks("task-1", "task-2"), progress, "solution-v1")
	}()

	// Wait for task-1 to land while task-2 is still blocked.
	deadline := time.After(2 * time.Second)
	for {
		snap := progress.Snapshot()
		if len(snap) == 1 && snap[0].ID == "task-1" {
			if snap[0].Completed {
				t.Error("mid-run result should not be marked completed yet")
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for task-1 result")
		case <-time.After(5 * time.Millisecond):
		}
	}

	close(release)
	results := <-done
	if len(results) != 2 {
		t.Fatalf("results = %d", len(results))
	}
}

func TestRunTeardownCalledPerTask(t *testing.T) {
	runner := &fakeRunner{}
	var mu sync.Mutex
	var torn []string
	d := New(runner, func(taskID string) error {
		mu.Lock()
		defer mu.Unlock()
		torn = append(torn, taskID)
		return nil
	})

	d.Run(context.Background(), tasks("task-1", "task-2"), NewProgress(nil), "solution-v1")

	if len(torn) != 2 {
		t.Errorf("teardown calls = %v", torn)
	}
}
