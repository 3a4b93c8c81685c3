// Package quality runs the project's install, test, and lint commands inside
// a repository and reports pass/fail with captured output.
package quality

import (
	"context"
	"log"
	"os"
	"path/filepath"

	"github.com/nlavee/auto-candidate/internal/exec"
)

// GateConfig holds the commands the gate runs. Zero-value fields fall back
// to the Python tooling defaults.
type GateConfig struct {
	Install []string
	Test    []string
	Lint    []string
}

func (c GateConfig) withDefaults() GateConfig {
	if len(c.Install) == 0 {
		c.Install = []string{"pip", "install", "-r", "requirements.txt"}
	}
	if len(c.Test) == 0 {
		c.Test = []string{"pytest"}
	}
	if len(c.Lint) == 0 {
		c.Lint = []string{"ruff", "check", "."}
	}
	return c
}

// Gate runs quality commands in a repository working directory.
type Gate struct {
	runner exec.CommandRunner
	config GateConfig
}

// NewGate builds a gate with the default command runner.
func NewGate(config GateConfig) *Gate {
	return NewGateWithRunner(config, exec.NewRunner())
}

// NewGateWithRunner builds a gate with an explicit command runner.
func NewGateWithRunner(config GateConfig, runner exec.CommandRunner) *Gate {
	return &Gate{runner: runner, config: config.withDefaults()}
}

// InstallDependencies installs project dependencies when a requirements.txt
// is present. Install failures are logged but never fatal: the repository
// may already carry everything the tests need.
func (g *Gate) InstallDependencies(ctx context.Context, repoPath string) {
	if _, err := os.Stat(filepath.Join(repoPath, "requirements.txt")); err != nil {
		log.Printf("[quality] no requirements.txt found, skipping install")
		return
	}
	log.Printf("[quality] installing project dependencies")
	if ok, output := g.run(ctx, repoPath, g.config.Install); !ok {
		log.Printf("[quality] warning: dependency installation failed: %s", truncate(output, 200))
	}
}

// RunTests runs the test command and returns whether it passed along with
// the combined output.
func (g *Gate) RunTests(ctx context.Context, repoPath string) (bool, string) {
	log.Printf("[quality] running tests")
	ok, output := g.run(ctx, repoPath, g.config.Test)
	if ok {
		log.Printf("[quality] tests passed")
	} else {
		log.Printf("[quality] tests failed")
	}
	return ok, output
}

// RunLinter runs the lint command and returns whether it passed along with
// the combined output. Lint failures are advisory for callers.
func (g *Gate) RunLinter(ctx context.Context, repoPath string) (bool, string) {
	log.Printf("[quality] running linter")
	ok, output := g.run(ctx, repoPath, g.config.Lint)
	if ok {
		log.Printf("[quality] lint passed")
	} else {
		log.Printf("[quality] lint issues found")
	}
	return ok, output
}

func (g *Gate) run(ctx context.Context, workDir string, cmd []string) (bool, string) {
	output, err := g.runner.Run(ctx, workDir, cmd[0], cmd[1:]...)
	if err != nil {
		return false, string(output) + "\n" + err.Error()
	}
	return true, string(output)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
