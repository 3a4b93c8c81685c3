// Package git provides an interface for git operations against the shared
// versioned history.
package git

import "errors"

// ErrMergeConflict is returned by Merge when the merge stopped on conflicts.
// The merge is left in progress so conflicted files can be enumerated and
// resolved; callers must either Commit or MergeAbort.
var ErrMergeConflict = errors.New("merge conflict")

// BranchOperations defines the interface for git branch operations.
type BranchOperations interface {
	// CurrentBranch returns the name of the current branch.
	CurrentBranch() (string, error)
	// CreateBranchAt creates or force-resets a branch to the given ref
	// without checking it out.
	CreateBranchAt(name, ref string) error
	// CheckoutBranch switches to the specified branch.
	CheckoutBranch(name string) error
	// CreateAndCheckoutBranch creates and switches to a new branch.
	CreateAndCheckoutBranch(name string) error
	// BranchExists returns true if the local branch exists.
	BranchExists(name string) (bool, error)
	// DeleteBranch force-deletes the specified branch.
	DeleteBranch(name string) error
}

// CommitOperations defines the interface for staging and committing.
type CommitOperations interface {
	// Add stages the specified paths.
	Add(paths ...string) error
	// AddAll stages every change in the working tree.
	AddAll() error
	// Commit creates a commit with the given message. During a conflicted
	// merge this concludes the merge.
	Commit(message string) error
	// HasChanges returns true if there are uncommitted changes.
	HasChanges() (bool, error)
}

// MergeOperations defines the interface for merging task branches.
type MergeOperations interface {
	// Merge merges the branch into the current branch with a merge commit.
	// Returns an error wrapping ErrMergeConflict when the merge stopped on
	// conflicts; any other error means the merge failed outright.
	Merge(branch, message string) error
	// MergeAbort aborts an in-progress merge.
	MergeAbort() error
	// ConflictedFiles returns paths with unmerged changes.
	ConflictedFiles() ([]string, error)
}

// WorktreeOperations defines the interface for isolated working directories.
type WorktreeOperations interface {
	// WorktreeAdd registers a worktree at path for an existing branch.
	WorktreeAdd(path, branch string) error
	// WorktreeRemove removes the worktree at path, optionally with force.
	WorktreeRemove(path string, force bool) error
	// WorktreePrune removes stale worktree registrations.
	WorktreePrune() error
}

// Runner is the complete interface the pipeline needs from git.
// Consumers should prefer the focused interfaces when possible.
type Runner interface {
	BranchOperations
	CommitOperations
	MergeOperations
	WorktreeOperations
	// Run executes an arbitrary git command and returns trimmed output.
	Run(args ...string) (string, error)
}
