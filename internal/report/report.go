// Package report renders run progress to the terminal and writes the
// markdown reports a run leaves behind in the workspace.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/nlavee/auto-candidate/pkg/models"
)

// Workspace report file names.
const (
	FailureReportFile      = "FAILURE_REPORT.md"
	VerificationReportFile = "VERIFICATION_REPORT.md"
)

// UI writes colored progress output.
type UI struct {
	Out    io.Writer
	ErrOut io.Writer
}

// New creates a UI on stdout/stderr.
func New() *UI {
	return &UI{Out: os.Stdout, ErrOut: os.Stderr}
}

var (
	infoPrefix    = color.New(color.FgHiBlue).Sprint("i")
	successPrefix = color.New(color.FgHiGreen).Sprint("✓")
	warningPrefix = color.New(color.FgHiYellow).Sprint("⚠")
	errorPrefix   = color.New(color.FgHiRed).Sprint("✗")
	phaseColor    = color.New(color.FgHiCyan, color.Bold).SprintFunc()
	green         = color.New(color.FgHiGreen).SprintFunc()
	yellow        = color.New(color.FgHiYellow).SprintFunc()
	red           = color.New(color.FgHiRed).SprintFunc()
)

func (u *UI) Info(format string, a ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", infoPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Success(format string, a ...any) {
	fmt.Fprintf(u.Out, "%s %s\n", successPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Warning(format string, a ...any) {
	fmt.Fprintf(u.ErrOut, "%s %s\n", warningPrefix, fmt.Sprintf(format, a...))
}

func (u *UI) Error(format string, a ...any) {
	fmt.Fprintf(u.ErrOut, "%s %s\n", errorPrefix, fmt.Sprintf(format, a...))
}

// Phase announces a pipeline phase.
func (u *UI) Phase(number int, name string) {
	fmt.Fprintf(u.Out, "\n%s\n", phaseColor(fmt.Sprintf("=== Phase %d: %s ===", number, name)))
}

// StatusColor colors a task result status.
func StatusColor(status models.ResultStatus) string {
	switch status {
	case models.StatusSuccess:
		return green(string(status))
	case models.StatusWarn:
		return yellow(string(status))
	case models.StatusFailed, models.StatusError:
		return red(string(status))
	default:
		return string(status)
	}
}

// ResultsTable prints the per-task outcome summary.
func (u *UI) ResultsTable(results []models.TaskResult) {
	ordered := append([]models.TaskResult(nil), results...)
	models.SortResultsByID(ordered)

	table := tablewriter.NewTable(u.Out,
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRowAlignment(tw.AlignLeft),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Lines:      tw.LinesNone,
				Separators: tw.SeparatorsNone,
			},
		}),
		tablewriter.WithPadding(tw.Padding{Left: "", Right: "  "}),
	)
	table.Header([]string{"TASK", "STATUS", "BRANCH", "FILES", "NOTE"})
	for _, r := range ordered {
		note := r.Error
		if note == "" && r.LintPassed != nil && !*r.LintPassed {
			note = "lint issues"
		}
		table.Append([]string{
			r.ID,
			StatusColor(r.Status),
			r.Branch,
			fmt.Sprintf("%d", r.FilesChanged),
			note,
		})
	}
	table.Render()
}

// WriteFailureReport writes FAILURE_REPORT.md for a run whose verification
// did not pass. Returns the file path.
func WriteFailureReport(workspacePath, challenge string, attempts int, lastOutput string, results []models.TaskResult) (string, error) {
	var b strings.Builder
	b.WriteString("# Failure Report\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Tests did not pass after %d attempt(s).\n\n", attempts)

	b.WriteString("## Challenge\n\n")
	b.WriteString(strings.TrimSpace(challenge))
	b.WriteString("\n\n## Task Outcomes\n\n")
	b.WriteString(resultsMarkdown(results))

	b.WriteString("\n## Last Test Output\n\n```\n")
	b.WriteString(strings.TrimSpace(lastOutput))
	b.WriteString("\n```\n")

	return writeReport(workspacePath, FailureReportFile, b.String())
}

// WriteVerificationReport writes VERIFICATION_REPORT.md holding the
// reviewer's verdict for a passing run. Returns the file path.
func WriteVerificationReport(workspacePath, analysis string) (string, error) {
	var b strings.Builder
	b.WriteString("# Verification Report\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", time.Now().UTC().Format(time.RFC3339))
	b.WriteString(strings.TrimSpace(analysis))
	b.WriteString("\n")
	return writeReport(workspacePath, VerificationReportFile, b.String())
}

func resultsMarkdown(results []models.TaskResult) string {
	ordered := append([]models.TaskResult(nil), results...)
	models.SortResultsByID(ordered)

	var b strings.Builder
	b.WriteString("| Task | Status | Branch | Files | Error |\n")
	b.WriteString("|------|--------|--------|-------|-------|\n")
	for _, r := range ordered {
		fmt.Fprintf(&b, "| %s | %s | %s | %d | %s |\n",
			r.ID, r.Status, r.Branch, r.FilesChanged, strings.ReplaceAll(r.Error, "\n", " "))
	}
	return b.String()
}

func writeReport(workspacePath, name, content string) (string, error) {
	path := filepath.Join(workspacePath, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", name, err)
	}
	return path, nil
}
