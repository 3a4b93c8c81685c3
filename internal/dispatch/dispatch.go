// Package dispatch fans a plan's pending tasks out to parallel executions
// and collects their results.
package dispatch

import (
	"context"
	"log"
	"sync"

	"github.com/nlavee/auto-candidate/pkg/models"
)

// TaskRunner executes one task and always returns a result.
type TaskRunner interface {
	Run(ctx context.Context, task models.Task, baseBranch string) models.TaskResult
}

// Progress collects task results as they arrive. It is seeded with results
// from earlier interrupted runs so a snapshot taken at any point shows the
// full picture, and it is safe for concurrent use.
type Progress struct {
	mu      sync.Mutex
	results []models.TaskResult
}

// NewProgress seeds a progress tracker with previously completed results.
func NewProgress(previous []models.TaskResult) *Progress {
	p := &Progress{}
	for _, r := range previous {
		if r.Completed {
			p.results = append(p.results, r)
		}
	}
	return p
}

// Add records one finished result.
func (p *Progress) Add(result models.TaskResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results = append(p.results, result)
}

// Snapshot returns a copy of the results collected so far, sorted by task
// ID. It can be called while executions are still running.
func (p *Progress) Snapshot() []models.TaskResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := append([]models.TaskResult(nil), p.results...)
	models.SortResultsByID(out)
	return out
}

// markCompleted flags every collected result as completed.
func (p *Progress) markCompleted() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.results {
		p.results[i].Completed = true
	}
}

// FilterPending returns the tasks that have no completed result yet.
// Declared task dependencies do not affect this: all pending tasks run.
func FilterPending(tasks []models.Task, previous []models.TaskResult) []models.Task {
	done := models.CompletedIDs(previous)
	var pending []models.Task
	for _, t := range tasks {
		if done[t.ID] {
			log.Printf("[dispatch] task %s already completed, skipping", t.ID)
			continue
		}
		pending = append(pending, t)
	}
	return pending
}

// Dispatcher runs pending tasks in parallel. Worktree isolation makes the
// executions independent, so there is no scheduling beyond one goroutine per
// task.
type Dispatcher struct {
	runner TaskRunner
	// teardown removes a task's worktree after its run. Failures are
	// logged; the committed task branch is what integration consumes.
	teardown func(taskID string) error
}

// New builds a dispatcher. teardown may be nil.
func New(runner TaskRunner, teardown func(taskID string) error) *Dispatcher {
	return &Dispatcher{runner: runner, teardown: teardown}
}

// Run executes every pending task from tasks in parallel, skipping those
// already completed in previous. It blocks until all executions finish,
// marks every collected result completed, and returns the merged result set
// sorted by task ID. A goroutine that panics past the executor's own
// recovery contributes no result; the other tasks are unaffected.
func (d *Dispatcher) Run(ctx context.Context, tasks []models.Task, progress *Progress, baseBranch string) []models.TaskResult {
	pending := FilterPending(tasks, progress.Snapshot())
	if len(pending) == 0 {
		log.Printf("[dispatch] no pending tasks")
		return progress.Snapshot()
	}
	log.Printf("[dispatch] running %d tasks in parallel", len(pending))

	var wg sync.WaitGroup
	for _, task := range pending {
		wg.Add(1)
		go func(task models.Task) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[dispatch] task %s goroutine panicked: %v", task.ID, r)
				}
			}()
			result := d.runner.Run(ctx, task, baseBranch)
			progress.Add(result)
			if d.teardown != nil {
				if err := d.teardown(task.ID); err != nil {
					log.Printf("[dispatch] warning: teardown %s: %v", task.ID, err)
				}
			}
		}(task)
	}
	wg.Wait()

	progress.markCompleted()
	return progress.Snapshot()
}
