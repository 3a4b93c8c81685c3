// Package gittest provides a configurable in-memory git.Runner for tests.
package gittest

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/nlavee/auto-candidate/internal/git"
)

// Fake is an in-memory git.Runner. It records every operation and lets
// tests script failures per operation. Safe for concurrent use.
type Fake struct {
	mu sync.Mutex

	// Branches maps branch name to existence. CreateBranchAt and
	// CreateAndCheckoutBranch add entries; DeleteBranch removes them.
	Branches map[string]bool
	// Current is the current branch name.
	Current string
	// Worktrees maps path to branch for registered worktrees.
	Worktrees map[string]string
	// Commits records commit messages in order.
	Commits []string
	// Staged records paths passed to Add. AddAll records "*".
	Staged []string
	// Merged records branches merged in order.
	Merged []string
	// Calls records every operation name in order.
	Calls []string

	// Dirty is returned by HasChanges.
	Dirty bool
	// ConflictBranches lists branches whose merge stops on conflicts.
	ConflictBranches map[string]bool
	// Conflicted is returned by ConflictedFiles.
	Conflicted []string
	// Errs scripts an error per operation name ("Merge", "Commit", ...).
	Errs map[string]error
	// Aborted counts MergeAbort calls.
	Aborted int
}

var _ git.Runner = (*Fake)(nil)

// New returns an empty fake with the current branch set to main.
func New() *Fake {
	return &Fake{
		Branches:         map[string]bool{"main": true},
		Current:          "main",
		Worktrees:        map[string]string{},
		ConflictBranches: map[string]bool{},
		Errs:             map[string]error{},
	}
}

func (f *Fake) record(op string) error {
	f.Calls = append(f.Calls, op)
	return f.Errs[op]
}

// CurrentBranch implements git.BranchOperations.
func (f *Fake) CurrentBranch() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CurrentBranch"); err != nil {
		return "", err
	}
	return f.Current, nil
}

// CreateBranchAt implements git.BranchOperations.
func (f *Fake) CreateBranchAt(name, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateBranchAt"); err != nil {
		return err
	}
	f.Branches[name] = true
	return nil
}

// CheckoutBranch implements git.BranchOperations.
func (f *Fake) CheckoutBranch(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CheckoutBranch"); err != nil {
		return err
	}
	if !f.Branches[name] {
		return fmt.Errorf("branch %s does not exist", name)
	}
	f.Current = name
	return nil
}

// CreateAndCheckoutBranch implements git.BranchOperations.
func (f *Fake) CreateAndCheckoutBranch(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateAndCheckoutBranch"); err != nil {
		return err
	}
	f.Branches[name] = true
	f.Current = name
	return nil
}

// BranchExists implements git.BranchOperations.
func (f *Fake) BranchExists(name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("BranchExists"); err != nil {
		return false, err
	}
	return f.Branches[name], nil
}

// DeleteBranch implements git.BranchOperations.
func (f *Fake) DeleteBranch(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteBranch"); err != nil {
		return err
	}
	delete(f.Branches, name)
	return nil
}

// Add implements git.CommitOperations.
func (f *Fake) Add(paths ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Add"); err != nil {
		return err
	}
	f.Staged = append(f.Staged, paths...)
	return nil
}

// AddAll implements git.CommitOperations.
func (f *Fake) AddAll() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("AddAll"); err != nil {
		return err
	}
	f.Staged = append(f.Staged, "*")
	return nil
}

// Commit implements git.CommitOperations.
func (f *Fake) Commit(message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Commit"); err != nil {
		return err
	}
	f.Commits = append(f.Commits, message)
	return nil
}

// HasChanges implements git.CommitOperations.
func (f *Fake) HasChanges() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("HasChanges"); err != nil {
		return false, err
	}
	return f.Dirty, nil
}

// Merge implements git.MergeOperations.
func (f *Fake) Merge(branch, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Merge"); err != nil {
		return err
	}
	if f.ConflictBranches[branch] {
		return fmt.Errorf("merge %s: %w", branch, git.ErrMergeConflict)
	}
	f.Merged = append(f.Merged, branch)
	f.Commits = append(f.Commits, message)
	return nil
}

// MergeAbort implements git.MergeOperations.
func (f *Fake) MergeAbort() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("MergeAbort"); err != nil {
		return err
	}
	f.Aborted++
	return nil
}

// ConflictedFiles implements git.MergeOperations.
func (f *Fake) ConflictedFiles() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ConflictedFiles"); err != nil {
		return nil, err
	}
	return append([]string(nil), f.Conflicted...), nil
}

// WorktreeAdd implements git.WorktreeOperations. The checkout directory is
// created on disk so code that walks the worktree works against the fake.
func (f *Fake) WorktreeAdd(path, branch string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("WorktreeAdd"); err != nil {
		return err
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return err
	}
	f.Worktrees[path] = branch
	return nil
}

// WorktreeRemove implements git.WorktreeOperations.
func (f *Fake) WorktreeRemove(path string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("WorktreeRemove"); err != nil {
		return err
	}
	if err := os.RemoveAll(path); err != nil {
		return err
	}
	delete(f.Worktrees, path)
	return nil
}

// WorktreePrune implements git.WorktreeOperations.
func (f *Fake) WorktreePrune() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record("WorktreePrune")
}

// Run implements git.Runner.
func (f *Fake) Run(args ...string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Run " + strings.Join(args, " ")); err != nil {
		return "", err
	}
	return "", nil
}

// CallCount returns how many times the named operation ran.
func (f *Fake) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c == op {
			n++
		}
	}
	return n
}
