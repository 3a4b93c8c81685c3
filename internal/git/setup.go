package git

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
)

// Clone clones a remote repository into targetPath. Any existing directory
// at targetPath is removed first.
func Clone(repoURL, targetPath string) error {
	if err := os.RemoveAll(targetPath); err != nil {
		return fmt.Errorf("clean target directory: %w", err)
	}
	cmd := exec.Command("git", "clone", repoURL, targetPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("clone %s: %w: %s", repoURL, err, string(out))
	}
	return nil
}

// CopyInit copies a local project directory into targetPath and ensures it
// is a git repository so branching works: if the copy has no .git, a fresh
// repository is initialized with an initial commit of all files.
func CopyInit(localPath, targetPath string) error {
	if err := os.RemoveAll(targetPath); err != nil {
		return fmt.Errorf("clean target directory: %w", err)
	}
	if err := copyTree(localPath, targetPath); err != nil {
		return fmt.Errorf("copy local project: %w", err)
	}

	if _, err := os.Stat(filepath.Join(targetPath, ".git")); err == nil {
		return nil
	}

	r := NewRunner(targetPath)
	if _, err := r.Run("init"); err != nil {
		return err
	}
	if err := r.AddAll(); err != nil {
		return err
	}
	if err := r.Commit("Initial commit from local files"); err != nil {
		return err
	}
	return nil
}

// copyTree copies src into dst, preserving symlinks and file modes.
func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case info.IsDir():
			return os.MkdirAll(target, info.Mode().Perm())
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		default:
			return copyFile(path, target, info.Mode().Perm())
		}
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
