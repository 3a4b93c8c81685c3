// Package checkpoint provides the durable, versioned record of pipeline
// progress. One JSON document per workspace at a fixed well-known path;
// saving a phase only ever sets that phase's sub-record and the top-level
// progress fields, so later phases' state coexists with earlier ones.
package checkpoint

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/nlavee/auto-candidate/pkg/models"
)

// FileName is the well-known checkpoint file name inside the workspace.
const FileName = ".autocandidate_checkpoint.json"

// Version is the checkpoint schema version.
const Version = "1.0"

// Checkpoint is the persisted snapshot of pipeline progress.
type Checkpoint struct {
	Version        string    `json:"version"`
	WorkspacePath  string    `json:"workspace_path"`
	RepoPath       string    `json:"repo_path,omitempty"`
	PromptHash     string    `json:"prompt_hash,omitempty"`
	CheckpointTime time.Time `json:"checkpoint_time"`
	// CurrentPhase is monotonically non-decreasing across saves.
	CurrentPhase int `json:"current_phase"`
	// PhasesCompleted only grows.
	PhasesCompleted []int `json:"phases_completed"`

	Setup     *SetupState     `json:"setup,omitempty"`
	Plan      *PlanState      `json:"plan,omitempty"`
	Execute   *ExecuteState   `json:"execute,omitempty"`
	Integrate *IntegrateState `json:"integrate,omitempty"`
}

// SetupState is the phase 1 sub-record.
type SetupState struct {
	RepoPath   string `json:"repo_path"`
	PromptPath string `json:"prompt_path"`
	PromptHash string `json:"prompt_hash"`
}

// PlanState is the phase 2 sub-record.
type PlanState struct {
	Plan     *models.Plan `json:"plan,omitempty"`
	Provider string       `json:"provider,omitempty"`
	Model    string       `json:"model,omitempty"`
	// MasterPlanFile and TaskSpecFiles are workspace-relative artifact
	// names, re-read on resume rather than recomputed.
	MasterPlanFile string            `json:"master_plan_file,omitempty"`
	TaskSpecFiles  map[string]string `json:"task_spec_files,omitempty"`
}

// ExecuteState is the phase 3 sub-record.
type ExecuteState struct {
	BaseBranch  string              `json:"base_branch"`
	TaskResults []models.TaskResult `json:"task_results"`
}

// IntegrateState is the phase 4 sub-record.
type IntegrateState struct {
	MergedBranches []string `json:"merged_branches"`
	TestAttempt    int      `json:"test_attempt"`
	TestsPassed    bool     `json:"tests_passed"`
	LastTestOutput string   `json:"last_test_output,omitempty"`
}

// Update is the partial state applied by a Save. Only non-nil/non-empty
// fields are written into the stored document.
type Update struct {
	RepoPath   string
	PromptHash string
	Setup      *SetupState
	Plan       *PlanState
	Execute    *ExecuteState
	Integrate  *IntegrateState
}

// Store owns the checkpoint artifact for one workspace.
type Store struct {
	workspacePath string
	path          string
	// mu serializes read-modify-write cycles. The interrupt handler saves
	// from the signal goroutine while the controller saves at phase
	// boundaries; without it one side's merge could be lost.
	mu sync.Mutex
}

// NewStore creates a Store for the given workspace directory.
func NewStore(workspacePath string) *Store {
	return &Store{
		workspacePath: workspacePath,
		path:          filepath.Join(workspacePath, FileName),
	}
}

// Path returns the checkpoint file path.
func (s *Store) Path() string {
	return s.path
}

// Save loads the existing checkpoint (or initializes a fresh one), stamps the
// phase and time, merges the update, and writes atomically. The workspace
// directory is created if absent.
func (s *Store) Save(phase int, u Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, err := s.Load()
	if err != nil {
		return err
	}
	if cp == nil {
		cp = &Checkpoint{
			Version:       Version,
			WorkspacePath: s.workspacePath,
		}
	}

	cp.CheckpointTime = time.Now().UTC()
	if phase > cp.CurrentPhase {
		cp.CurrentPhase = phase
	}
	cp.PhasesCompleted = addPhase(cp.PhasesCompleted, phase)

	if u.RepoPath != "" {
		cp.RepoPath = u.RepoPath
	}
	if u.PromptHash != "" {
		cp.PromptHash = u.PromptHash
	}
	if u.Setup != nil {
		cp.Setup = u.Setup
	}
	if u.Plan != nil {
		cp.Plan = u.Plan
	}
	if u.Execute != nil {
		cp.Execute = u.Execute
	}
	if u.Integrate != nil {
		cp.Integrate = u.Integrate
	}

	if err := os.MkdirAll(s.workspacePath, 0o755); err != nil {
		return fmt.Errorf("create workspace directory: %w", err)
	}
	return s.writeAtomic(cp)
}

// writeAtomic writes the checkpoint via a temp file and rename so a crash
// mid-write never leaves a truncated document behind.
func (s *Store) writeAtomic(cp *Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmp, err := os.CreateTemp(s.workspacePath, FileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

// Load returns the stored checkpoint, or nil if the file is absent or fails
// to parse. Corrupt or partial writes are treated as "no checkpoint".
func (s *Store) Load() (*Checkpoint, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, nil
	}
	return &cp, nil
}

// Exists reports whether the checkpoint file exists.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Clear deletes the checkpoint artifact. Idempotent if absent.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	return nil
}

// Validate reports whether the stored checkpoint is usable for the current
// run: workspace and repo paths must match exactly, and if a prompt hash was
// recorded it must match too. A changed prompt or relocated workspace
// invalidates resume.
func (s *Store) Validate(promptHash, workspacePath, repoPath string) bool {
	cp, err := s.Load()
	if err != nil || cp == nil {
		return false
	}
	if cp.WorkspacePath != workspacePath {
		return false
	}
	if cp.RepoPath != repoPath {
		return false
	}
	if cp.PromptHash != "" && cp.PromptHash != promptHash {
		return false
	}
	return true
}

// CurrentPhase returns the stored current phase, or 0 if no checkpoint.
func (s *Store) CurrentPhase() int {
	cp, err := s.Load()
	if err != nil || cp == nil {
		return 0
	}
	return cp.CurrentPhase
}

// PhasesCompleted returns the stored completed phase set, or nil.
func (s *Store) PhasesCompleted() []int {
	cp, err := s.Load()
	if err != nil || cp == nil {
		return nil
	}
	return cp.PhasesCompleted
}

func addPhase(phases []int, phase int) []int {
	for _, p := range phases {
		if p == phase {
			return phases
		}
	}
	phases = append(phases, phase)
	sort.Ints(phases)
	return phases
}

// HashPromptFile returns the content hash of the prompt file formatted as
// "sha256:<hex>", or the empty string if the file is missing.
func HashPromptFile(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return ""
	}
	return fmt.Sprintf("sha256:%x", h.Sum(nil))
}
