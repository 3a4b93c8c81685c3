// Package models defines the shared data types for AutoCandidate runs.
package models

import (
	"sort"
	"strings"
)

// ResultStatus represents the outcome of a single task execution.
type ResultStatus string

const (
	// StatusSuccess indicates the task produced changes and passed lint.
	StatusSuccess ResultStatus = "SUCCESS"
	// StatusWarn indicates the task produced changes but lint reported issues.
	StatusWarn ResultStatus = "WARN"
	// StatusFailed indicates the task could not produce usable output.
	StatusFailed ResultStatus = "FAILED"
	// StatusError indicates an unexpected failure during execution.
	StatusError ResultStatus = "ERROR"
)

// Valid returns true if the status is a known value.
func (s ResultStatus) Valid() bool {
	switch s {
	case StatusSuccess, StatusWarn, StatusFailed, StatusError:
		return true
	default:
		return false
	}
}

// Mergeable returns true if results with this status are candidates for
// integration into the base branch.
func (s ResultStatus) Mergeable() bool {
	return s == StatusSuccess || s == StatusWarn
}

// Task is an independently schedulable unit of planned work.
// Tasks are created by the planning phase and are immutable once dispatched.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Title is the short description of the task.
	Title string `json:"title"`
	// Description provides detailed information about the task.
	Description string `json:"description,omitempty"`
	// InputContext lists repository paths the task should read for context.
	InputContext []string `json:"input_context,omitempty"`
	// TargetFiles lists the files the task is expected to create or modify.
	TargetFiles []string `json:"target_files,omitempty"`
	// Dependencies lists task IDs this task declares a dependency on.
	// Dependencies are advisory metadata only: the dispatcher runs all
	// pending tasks in parallel regardless of declared ordering.
	Dependencies []string `json:"dependencies,omitempty"`
}

// SafeID returns the task ID sanitized for use in branch names and
// workspace file names. Any character outside [A-Za-z0-9._-] becomes '-'.
func (t Task) SafeID() string {
	return SanitizeID(t.ID)
}

// SanitizeID sanitizes an arbitrary identifier for filesystem and git use.
func SanitizeID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	if b.Len() == 0 {
		return "task"
	}
	return b.String()
}

// TaskResult records the outcome of one task execution.
// A result is created when a task finishes (success or failure) and is
// mutated post-hoc only during resume verification, where its status may be
// downgraded to ERROR if its branch vanished.
type TaskResult struct {
	// ID is the task this result belongs to. The result references the
	// task, it does not own it.
	ID string `json:"id"`
	// Status is the execution outcome.
	Status ResultStatus `json:"status"`
	// Branch is the feature branch the task worked on.
	Branch string `json:"branch,omitempty"`
	// FilesChanged is the number of files the task wrote.
	FilesChanged int `json:"files_changed"`
	// LintPassed reports the lint outcome, nil when lint did not run.
	LintPassed *bool `json:"lint_passed,omitempty"`
	// Error holds the failure message for FAILED/ERROR results.
	Error string `json:"error,omitempty"`
	// Completed distinguishes "attempted and recorded" from "counted
	// toward the resume-skip set".
	Completed bool `json:"completed"`
}

// CompletedIDs returns the set of task IDs whose results are marked
// completed. This is the resume-skip set.
func CompletedIDs(results []TaskResult) map[string]bool {
	ids := make(map[string]bool)
	for _, r := range results {
		if r.Completed {
			ids[r.ID] = true
		}
	}
	return ids
}

// SortResultsByID orders results ascending by task ID, the deterministic
// integration order.
func SortResultsByID(results []TaskResult) {
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
}

// Plan is the planning phase output: an overview plus the task breakdown.
// A plan is produced once and may be replaced wholesale by a refinement
// pass; it is never partially mutated.
type Plan struct {
	// PlanOverview summarizes the overall implementation strategy.
	PlanOverview string `json:"plan_overview"`
	// Tasks is the ordered task breakdown.
	Tasks []Task `json:"tasks"`
}

// TaskByID returns the task with the given ID, or nil.
func (p *Plan) TaskByID(id string) *Task {
	for i := range p.Tasks {
		if p.Tasks[i].ID == id {
			return &p.Tasks[i]
		}
	}
	return nil
}
