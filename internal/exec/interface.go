// Package exec provides an interface for running external commands.
package exec

import "context"

// CommandRunner defines the interface for running external commands.
// This abstraction allows mocking command execution in tests.
type CommandRunner interface {
	// Run executes a command and returns combined stdout/stderr output.
	// The working directory is set to workDir if non-empty. The returned
	// error is non-nil when the command exits non-zero.
	Run(ctx context.Context, workDir string, name string, args ...string) (output []byte, err error)

	// LookPath reports whether the named binary is available on PATH.
	LookPath(name string) error
}
