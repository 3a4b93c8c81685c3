package git

import (
	"fmt"
	"os/exec"
	"strings"
)

// ExecRunner implements Runner using the git CLI.
type ExecRunner struct {
	repoPath string
}

// NewRunner creates a git runner for the repository at the given path.
func NewRunner(repoPath string) *ExecRunner {
	return &ExecRunner{repoPath: repoPath}
}

// RepoPath returns the repository path this runner operates on.
func (r *ExecRunner) RepoPath() string {
	return r.repoPath
}

// run executes a git command and returns its trimmed output.
func (r *ExecRunner) run(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = r.repoPath
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, string(out))
	}
	return strings.TrimSpace(string(out)), nil
}

// runSilent executes a git command and ignores output.
func (r *ExecRunner) runSilent(args ...string) error {
	_, err := r.run(args...)
	return err
}

// Run executes an arbitrary git command with the given arguments.
func (r *ExecRunner) Run(args ...string) (string, error) {
	return r.run(args...)
}

// CurrentBranch returns the name of the current branch.
func (r *ExecRunner) CurrentBranch() (string, error) {
	return r.run("rev-parse", "--abbrev-ref", "HEAD")
}

// CreateBranchAt creates or force-resets a branch to the given ref.
func (r *ExecRunner) CreateBranchAt(name, ref string) error {
	return r.runSilent("branch", "-f", name, ref)
}

// CheckoutBranch switches to the specified branch.
func (r *ExecRunner) CheckoutBranch(name string) error {
	return r.runSilent("checkout", name)
}

// CreateAndCheckoutBranch creates and switches to a new branch.
func (r *ExecRunner) CreateAndCheckoutBranch(name string) error {
	return r.runSilent("checkout", "-b", name)
}

// BranchExists returns true if the local branch exists.
func (r *ExecRunner) BranchExists(name string) (bool, error) {
	cmd := exec.Command("git", "show-ref", "--verify", "--quiet", "refs/heads/"+name)
	cmd.Dir = r.repoPath
	err := cmd.Run()
	if err != nil {
		// Exit code 1 means the branch doesn't exist, not an error.
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return false, nil
		}
		return false, fmt.Errorf("check branch exists: %w", err)
	}
	return true, nil
}

// DeleteBranch force-deletes the specified branch.
func (r *ExecRunner) DeleteBranch(name string) error {
	return r.runSilent("branch", "-D", name)
}

// Add stages the specified paths.
func (r *ExecRunner) Add(paths ...string) error {
	args := append([]string{"add", "--"}, paths...)
	return r.runSilent(args...)
}

// AddAll stages every change in the working tree.
func (r *ExecRunner) AddAll() error {
	return r.runSilent("add", "-A")
}

// Commit creates a commit with the given message.
func (r *ExecRunner) Commit(message string) error {
	return r.runSilent("commit", "-m", message)
}

// HasChanges returns true if there are uncommitted changes.
func (r *ExecRunner) HasChanges() (bool, error) {
	status, err := r.run("status", "--porcelain")
	if err != nil {
		return false, err
	}
	return len(status) > 0, nil
}

// Merge merges the branch into the current branch with a merge commit.
// Conflicts are reported as an error wrapping ErrMergeConflict with the merge
// left in progress.
func (r *ExecRunner) Merge(branch, message string) error {
	err := r.runSilent("merge", "--no-ff", "-m", message, branch)
	if err == nil {
		return nil
	}
	conflicted, cErr := r.ConflictedFiles()
	if cErr == nil && len(conflicted) > 0 {
		return fmt.Errorf("merge %s: %w", branch, ErrMergeConflict)
	}
	return err
}

// MergeAbort aborts an in-progress merge.
func (r *ExecRunner) MergeAbort() error {
	return r.runSilent("merge", "--abort")
}

// ConflictedFiles returns paths with unmerged changes.
func (r *ExecRunner) ConflictedFiles() ([]string, error) {
	out, err := r.run("diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// WorktreeAdd registers a worktree at path for an existing branch.
func (r *ExecRunner) WorktreeAdd(path, branch string) error {
	return r.runSilent("worktree", "add", path, branch)
}

// WorktreeRemove removes the worktree at path, optionally with force.
func (r *ExecRunner) WorktreeRemove(path string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)
	return r.runSilent(args...)
}

// WorktreePrune removes stale worktree registrations.
func (r *ExecRunner) WorktreePrune() error {
	return r.runSilent("worktree", "prune", "--expire", "now")
}

// Verify ExecRunner implements Runner at compile time.
var _ Runner = (*ExecRunner)(nil)
