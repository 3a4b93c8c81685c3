// Package integrate merges completed task branches back into the base
// branch and drives the test-and-fix verification loop.
package integrate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/nlavee/auto-candidate/internal/git"
	"github.com/nlavee/auto-candidate/internal/inspect"
	"github.com/nlavee/auto-candidate/internal/patch"
	"github.com/nlavee/auto-candidate/pkg/models"
)

// ConflictResolver produces the full resolved content of a conflicted file.
type ConflictResolver interface {
	ResolveConflict(ctx context.Context, filePath, conflictContent, planContext string) (string, error)
}

// Fixer produces corrected files for a failing build as file blocks.
type Fixer interface {
	FixCode(ctx context.Context, errorLog, originalTask, codebaseContext string) (string, error)
}

// QualityGate is the subset of the quality gate integration needs.
type QualityGate interface {
	InstallDependencies(ctx context.Context, repoPath string)
	RunTests(ctx context.Context, repoPath string) (bool, string)
}

// Engine merges task branches and verifies the combined result. It operates
// on the main checkout, which must have the base branch checked out.
type Engine struct {
	git      git.Runner
	resolver ConflictResolver
	fixer    Fixer
	gate     QualityGate
	repoPath string
	// planContext is given to the resolver so conflict resolutions follow
	// the plan rather than arbitrarily picking a side.
	planContext string

	// OnMerged, when set, runs after each branch lands. Integration can be
	// interrupted between branches, so callers use this to checkpoint.
	OnMerged func(branch string)
}

// NewEngine builds an integration engine.
func NewEngine(g git.Runner, resolver ConflictResolver, fixer Fixer, gate QualityGate, repoPath, planContext string) *Engine {
	return &Engine{
		git:         g,
		resolver:    resolver,
		fixer:       fixer,
		gate:        gate,
		repoPath:    repoPath,
		planContext: planContext,
	}
}

// MergeBranches merges every mergeable result's branch into the current
// branch in ascending task ID order, which makes the merge sequence
// deterministic across runs. Branches already in alreadyMerged are skipped,
// as are branches that no longer exist. The returned list holds the
// branches merged by this call in order.
//
// A conflicted merge is resolved file by file through the resolver. If any
// file cannot be resolved the merge is aborted and the base branch returns
// to its pre-merge state; the branch is recorded as failed to integrate and
// the remaining branches are still attempted. The returned error, if any,
// names the branches that did not land.
func (e *Engine) MergeBranches(ctx context.Context, results []models.TaskResult, alreadyMerged []string) ([]string, error) {
	ordered := append([]models.TaskResult(nil), results...)
	models.SortResultsByID(ordered)

	done := make(map[string]bool, len(alreadyMerged))
	for _, b := range alreadyMerged {
		done[b] = true
	}

	var merged, failed []string
	for _, r := range ordered {
		if !r.Status.Mergeable() {
			log.Printf("[integrate] skipping %s (%s)", r.ID, r.Status)
			continue
		}
		if r.Branch == "" || done[r.Branch] {
			continue
		}
		exists, err := e.git.BranchExists(r.Branch)
		if err != nil {
			log.Printf("[integrate] warning: checking branch %s: %v", r.Branch, err)
			failed = append(failed, r.Branch)
			continue
		}
		if !exists {
			log.Printf("[integrate] warning: branch %s for task %s is gone, skipping", r.Branch, r.ID)
			continue
		}

		if err := e.mergeOne(ctx, r.Branch); err != nil {
			log.Printf("[integrate] branch %s failed to integrate: %v", r.Branch, err)
			failed = append(failed, r.Branch)
			continue
		}
		merged = append(merged, r.Branch)
		if e.OnMerged != nil {
			e.OnMerged(r.Branch)
		}
	}
	if len(failed) > 0 {
		return merged, fmt.Errorf("%d branch(es) failed to integrate: %s", len(failed), strings.Join(failed, ", "))
	}
	return merged, nil
}

func (e *Engine) mergeOne(ctx context.Context, branch string) error {
	log.Printf("[integrate] merging %s", branch)
	err := e.git.Merge(branch, "Merge "+branch)
	if err == nil {
		return nil
	}
	if !errors.Is(err, git.ErrMergeConflict) {
		return fmt.Errorf("merging %s: %w", branch, err)
	}

	conflicted, listErr := e.git.ConflictedFiles()
	if listErr != nil || len(conflicted) == 0 {
		e.abort(branch)
		if listErr != nil {
			return fmt.Errorf("listing conflicts for %s: %w", branch, listErr)
		}
		return fmt.Errorf("merging %s: conflict reported but no conflicted files", branch)
	}
	log.Printf("[integrate] %s has %d conflicted files, resolving", branch, len(conflicted))

	for _, file := range conflicted {
		if err := e.resolveFile(ctx, file); err != nil {
			e.abort(branch)
			return fmt.Errorf("merging %s: %w", branch, err)
		}
	}

	// Committing concludes the in-progress merge.
	if err := e.git.Commit("Merge " + branch + " (conflicts resolved)"); err != nil {
		e.abort(branch)
		return fmt.Errorf("concluding merge of %s: %w", branch, err)
	}
	return nil
}

func (e *Engine) resolveFile(ctx context.Context, file string) error {
	full := filepath.Join(e.repoPath, file)
	content, err := os.ReadFile(full)
	if err != nil {
		return fmt.Errorf("reading conflicted file %s: %w", file, err)
	}

	resolved, err := e.resolver.ResolveConflict(ctx, file, string(content), e.planContext)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", file, err)
	}
	if strings.TrimSpace(resolved) == "" {
		return fmt.Errorf("resolving %s: resolver returned empty content", file)
	}

	if err := os.WriteFile(full, []byte(resolved), 0o644); err != nil {
		return fmt.Errorf("writing resolved %s: %w", file, err)
	}
	if err := e.git.Add(file); err != nil {
		return fmt.Errorf("staging resolved %s: %w", file, err)
	}
	log.Printf("[integrate] resolved conflict in %s", file)
	return nil
}

func (e *Engine) abort(branch string) {
	if err := e.git.MergeAbort(); err != nil {
		log.Printf("[integrate] warning: aborting merge of %s: %v", branch, err)
	}
}

// Outcome is the verification loop result.
type Outcome struct {
	// Passed reports whether the final test run succeeded.
	Passed bool
	// Attempts is how many test runs happened.
	Attempts int
	// LastOutput is the output of the final test run.
	LastOutput string
}

// Verify runs the test suite on the merged base branch and, on failure,
// asks for fixes and retries. With N retries the tests run at most N+1
// times: the initial run plus one run after each fix. The loop stops early
// when a fix round produces no applicable file changes, since rerunning the
// same failing tests would not converge.
func (e *Engine) Verify(ctx context.Context, originalTask string, retries int) (Outcome, error) {
	e.gate.InstallDependencies(ctx, e.repoPath)

	var out Outcome
	for attempt := 1; attempt <= retries+1; attempt++ {
		out.Attempts = attempt
		log.Printf("[integrate] test attempt %d/%d", attempt, retries+1)
		passed, output := e.gate.RunTests(ctx, e.repoPath)
		out.LastOutput = output
		if passed {
			out.Passed = true
			return out, nil
		}
		if attempt == retries+1 {
			break
		}

		changed, err := e.fixRound(ctx, originalTask, output, attempt)
		if err != nil {
			return out, err
		}
		if !changed {
			log.Printf("[integrate] fix round produced no changes, stopping")
			return out, nil
		}
	}
	return out, nil
}

func (e *Engine) fixRound(ctx context.Context, originalTask, errorLog string, attempt int) (bool, error) {
	codebaseContext, err := inspect.NewBuilder(e.repoPath).ContextString()
	if err != nil {
		return false, fmt.Errorf("building context for fix: %w", err)
	}

	response, err := e.fixer.FixCode(ctx, errorLog, originalTask, codebaseContext)
	if err != nil {
		return false, fmt.Errorf("requesting fix: %w", err)
	}
	files, err := patch.Apply(e.repoPath, response)
	if err != nil {
		return false, fmt.Errorf("applying fix: %w", err)
	}
	if len(files) == 0 {
		return false, nil
	}

	if err := e.git.AddAll(); err != nil {
		return false, fmt.Errorf("staging fix: %w", err)
	}
	dirty, err := e.git.HasChanges()
	if err != nil {
		return false, fmt.Errorf("checking fix changes: %w", err)
	}
	if !dirty {
		return false, nil
	}
	if err := e.git.Commit(fmt.Sprintf("Fix test failures (attempt %d)", attempt)); err != nil {
		return false, fmt.Errorf("committing fix: %w", err)
	}
	log.Printf("[integrate] applied fix touching %d files", len(files))
	return true, nil
}
