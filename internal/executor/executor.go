// Package executor runs a single task end to end inside its own worktree:
// build context, generate code, apply it, lint, and commit.
package executor

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/nlavee/auto-candidate/internal/git"
	"github.com/nlavee/auto-candidate/internal/inspect"
	"github.com/nlavee/auto-candidate/internal/patch"
	"github.com/nlavee/auto-candidate/internal/quality"
	"github.com/nlavee/auto-candidate/internal/worktree"
	"github.com/nlavee/auto-candidate/pkg/models"
)

// Generator produces an implementation for one task as file blocks.
type Generator interface {
	ExecuteTask(ctx context.Context, task models.Task, codebaseContext, planOverview, taskSpec string) (string, error)
}

// Linter is the subset of the quality gate the executor needs.
type Linter interface {
	RunLinter(ctx context.Context, repoPath string) (bool, string)
}

var _ Linter = (*quality.Gate)(nil)

// Executor executes tasks in isolated worktrees. One executor serves all
// tasks of a run; every Run call is independent and safe to make
// concurrently.
type Executor struct {
	manager   *worktree.Manager
	generator Generator
	linter    Linter
	// gitAt returns a runner bound to the given worktree path. Commits for
	// a task must run inside its worktree, not the main checkout.
	gitAt func(path string) git.Runner

	planOverview string
	taskSpecs    map[string]string
}

// New builds an executor.
func New(manager *worktree.Manager, generator Generator, linter Linter, gitAt func(path string) git.Runner, planOverview string, taskSpecs map[string]string) *Executor {
	return &Executor{
		manager:      manager,
		generator:    generator,
		linter:       linter,
		gitAt:        gitAt,
		planOverview: planOverview,
		taskSpecs:    taskSpecs,
	}
}

// Run executes one task against baseBranch and always returns a result,
// never an error: every failure mode maps to a result status so one bad
// task cannot take down the batch. Panics from any stage are recovered into
// an ERROR result.
func (e *Executor) Run(ctx context.Context, task models.Task, baseBranch string) (result models.TaskResult) {
	result = models.TaskResult{ID: task.ID, Status: models.StatusError}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[executor] task %s panicked: %v", task.ID, r)
			result.Status = models.StatusError
			result.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	wc, err := e.manager.Create(task, baseBranch)
	if err != nil {
		result.Error = fmt.Sprintf("worktree setup: %v", err)
		return result
	}
	result.Branch = wc.Branch

	codebaseContext, err := inspect.NewBuilder(wc.Path).ContextString()
	if err != nil {
		result.Error = fmt.Sprintf("building context: %v", err)
		return result
	}

	log.Printf("[executor] task %s: generating implementation", task.ID)
	response, err := e.generator.ExecuteTask(ctx, task, codebaseContext, e.planOverview, e.taskSpecs[task.ID])
	if err != nil {
		result.Error = fmt.Sprintf("generation: %v", err)
		return result
	}
	if strings.TrimSpace(response) == "" {
		result.Status = models.StatusFailed
		result.Error = "generation failed"
		return result
	}

	files, err := patch.Apply(wc.Path, response)
	if err != nil {
		result.Error = fmt.Sprintf("applying patch: %v", err)
		return result
	}
	if len(files) == 0 {
		log.Printf("[executor] task %s: response modified no files", task.ID)
	}
	result.FilesChanged = len(files)

	// Lint outcome never blocks the task, it only downgrades the status.
	lintOK, lintOutput := e.linter.RunLinter(ctx, wc.Path)
	result.LintPassed = &lintOK
	if !lintOK {
		log.Printf("[executor] task %s: lint issues: %s", task.ID, firstLine(lintOutput))
	}

	if len(files) > 0 {
		g := e.gitAt(wc.Path)
		if err := g.AddAll(); err != nil {
			result.Error = fmt.Sprintf("staging: %v", err)
			return result
		}
		dirty, err := g.HasChanges()
		if err != nil {
			result.Error = fmt.Sprintf("checking changes: %v", err)
			return result
		}
		if dirty {
			msg := fmt.Sprintf("%s: %s", task.ID, task.Title)
			if err := g.Commit(msg); err != nil {
				result.Error = fmt.Sprintf("committing: %v", err)
				return result
			}
		}
	}

	result.Status = models.StatusSuccess
	if !lintOK {
		result.Status = models.StatusWarn
	}
	result.Error = ""
	log.Printf("[executor] task %s: done (%s, %d files)", task.ID, result.Status, result.FilesChanged)
	return result
}

func firstLine(s string) string {
	for i, c := range s {
		if c == '\n' {
			return s[:i]
		}
	}
	return s
}
