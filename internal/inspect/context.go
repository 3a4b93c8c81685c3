// Package inspect builds the codebase context string handed to the LLM:
// a file tree followed by delimited file contents.
package inspect

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// maxFileBytes is the per-file content cap; larger files are replaced with a
// truncation marker rather than inflating the context.
const maxFileBytes = 100_000

// Builder walks a repository and produces an LLM-ready context string.
type Builder struct {
	repoPath    string
	ignoreNames map[string]bool
	ignoreExts  []string
}

// NewBuilder creates a Builder for the repository at repoPath with the
// default ignore sets (VCS metadata, caches, binary assets, lockfiles).
func NewBuilder(repoPath string) *Builder {
	return &Builder{
		repoPath: repoPath,
		ignoreNames: map[string]bool{
			".git": true, "__pycache__": true, "venv": true, "env": true,
			"node_modules": true, ".idea": true, ".vscode": true,
			".DS_Store": true, "poetry.lock": true, "yarn.lock": true,
			".autocandidate_checkpoint.json": true, "worktrees": true,
		},
		ignoreExts: []string{
			".pyc", ".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico",
			".zip", ".tar", ".gz", ".db", ".sqlite", ".sqlite3",
		},
	}
}

func (b *Builder) shouldIgnore(name string) bool {
	if b.ignoreNames[name] {
		return true
	}
	for _, ext := range b.ignoreExts {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// FileTree returns an indented listing of the repository layout.
func (b *Builder) FileTree() (string, error) {
	var lines []string
	err := filepath.WalkDir(b.repoPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && b.shouldIgnore(d.Name()) && path != b.repoPath {
			return filepath.SkipDir
		}
		rel, relErr := filepath.Rel(b.repoPath, path)
		if relErr != nil {
			return relErr
		}
		depth := 0
		if rel != "." {
			depth = strings.Count(rel, string(os.PathSeparator))
		}
		indent := strings.Repeat("    ", depth)
		if d.IsDir() {
			lines = append(lines, indent+d.Name()+"/")
			return nil
		}
		if b.shouldIgnore(d.Name()) {
			return nil
		}
		lines = append(lines, indent+d.Name())
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walk repository: %w", err)
	}
	return strings.Join(lines, "\n"), nil
}

// ContextString returns the full context: the project structure followed by
// every relevant file's contents between START/END markers. Files over the
// size cap are replaced with a truncation marker; unreadable files are
// skipped with a log line.
func (b *Builder) ContextString() (string, error) {
	tree, err := b.FileTree()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("=== PROJECT STRUCTURE ===\n")
	sb.WriteString(tree)
	sb.WriteString("\n\n=== FILE CONTENTS ===")

	err = filepath.WalkDir(b.repoPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if b.shouldIgnore(d.Name()) && path != b.repoPath {
				return filepath.SkipDir
			}
			return nil
		}
		if b.shouldIgnore(d.Name()) {
			return nil
		}
		rel, relErr := filepath.Rel(b.repoPath, path)
		if relErr != nil {
			return relErr
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			log.Printf("[inspect] skipping unreadable file %s: %v", rel, readErr)
			return nil
		}
		content := string(data)
		if len(content) > maxFileBytes {
			content = "<TRUNCATED: File too large>"
		}

		sb.WriteString(fmt.Sprintf("\n\n--- START FILE: %s ---\n", rel))
		sb.WriteString(content)
		sb.WriteString(fmt.Sprintf("\n--- END FILE: %s ---", rel))
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walk repository: %w", err)
	}
	return sb.String(), nil
}
