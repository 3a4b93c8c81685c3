// Package worktree manages isolated working directories for parallel task
// execution. Each task gets its own branch and its own checkout under the
// workspace so concurrent agents never touch the same files.
package worktree

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/nlavee/auto-candidate/internal/git"
	"github.com/nlavee/auto-candidate/pkg/models"
)

// worktreesDir is the directory under the workspace holding task checkouts.
const worktreesDir = "worktrees"

// Context is one task's isolated execution environment.
type Context struct {
	TaskID string
	Branch string
	Path   string
}

// BranchForTask returns the branch name used for a task's work.
func BranchForTask(taskID string) string {
	return "feat/" + models.SanitizeID(taskID)
}

// PathForTask returns the checkout path used for a task's work.
func PathForTask(workspacePath, taskID string) string {
	return filepath.Join(workspacePath, worktreesDir, models.SanitizeID(taskID))
}

// Manager creates and tears down task worktrees against one repository.
// Worktree mutation in git is not safe to run concurrently against the same
// repository, so all operations hold a lock.
type Manager struct {
	mu            sync.Mutex
	git           git.Runner
	workspacePath string
}

// NewManager builds a manager for the repository behind runner. Checkouts
// are placed under workspacePath.
func NewManager(runner git.Runner, workspacePath string) *Manager {
	return &Manager{git: runner, workspacePath: workspacePath}
}

// Create sets up the worktree for a task: the task branch is force-reset to
// baseBranch and checked out at a deterministic path. Any stale worktree or
// directory from a previous interrupted run at that path is removed first,
// so Create is safe to call again for the same task.
func (m *Manager) Create(task models.Task, baseBranch string) (*Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	branch := BranchForTask(task.ID)
	path := PathForTask(m.workspacePath, task.ID)

	if _, err := os.Stat(path); err == nil {
		log.Printf("[worktree] removing stale worktree for task %s", task.ID)
		if err := m.git.WorktreeRemove(path, true); err != nil {
			// The directory may exist without being a registered worktree.
			if rmErr := os.RemoveAll(path); rmErr != nil {
				return nil, fmt.Errorf("remove stale worktree %s: %w", path, rmErr)
			}
		}
		if err := m.git.WorktreePrune(); err != nil {
			log.Printf("[worktree] warning: prune failed: %v", err)
		}
	}

	if err := m.git.CreateBranchAt(branch, baseBranch); err != nil {
		return nil, fmt.Errorf("create branch %s: %w", branch, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create worktrees dir: %w", err)
	}
	if err := m.git.WorktreeAdd(path, branch); err != nil {
		return nil, fmt.Errorf("add worktree for %s: %w", branch, err)
	}

	log.Printf("[worktree] created %s on branch %s", path, branch)
	return &Context{TaskID: task.ID, Branch: branch, Path: path}, nil
}

// Remove tears down a worktree checkout. The task branch is kept: it holds
// the committed work that integration merges later.
func (m *Manager) Remove(wc *Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remove(wc.Path)
}

// RemoveTask tears down the worktree for a task id, if present.
func (m *Manager) RemoveTask(taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	path := PathForTask(m.workspacePath, taskID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return m.remove(path)
}

// CleanupAll removes every task checkout under the workspace. Failures are
// logged, not returned: cleanup runs on shutdown paths where the run outcome
// is already decided.
func (m *Manager) CleanupAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	root := filepath.Join(m.workspacePath, worktreesDir)
	entries, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[worktree] warning: reading %s: %v", root, err)
		}
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := m.remove(filepath.Join(root, entry.Name())); err != nil {
			log.Printf("[worktree] warning: cleanup %s: %v", entry.Name(), err)
		}
	}
	if err := m.git.WorktreePrune(); err != nil {
		log.Printf("[worktree] warning: prune failed: %v", err)
	}
}

func (m *Manager) remove(path string) error {
	if err := m.git.WorktreeRemove(path, true); err != nil {
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return fmt.Errorf("remove worktree %s: %w", path, err)
		}
	}
	return nil
}
