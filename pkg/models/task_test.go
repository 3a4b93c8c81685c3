package models

import "testing"

func TestResultStatusValid(t *testing.T) {
	for _, s := range []ResultStatus{StatusSuccess, StatusWarn, StatusFailed, StatusError} {
		if !s.Valid() {
			t.Errorf("expected %s to be valid", s)
		}
	}
	if ResultStatus("BOGUS").Valid() {
		t.Error("expected BOGUS to be invalid")
	}
}

func TestResultStatusMergeable(t *testing.T) {
	if !StatusSuccess.Mergeable() {
		t.Error("SUCCESS should be mergeable")
	}
	if !StatusWarn.Mergeable() {
		t.Error("WARN should be mergeable")
	}
	if StatusFailed.Mergeable() {
		t.Error("FAILED should not be mergeable")
	}
	if StatusError.Mergeable() {
		t.Error("ERROR should not be mergeable")
	}
}

func TestSanitizeID(t *testing.T) {
	cases := map[string]string{
		"t1":           "t1",
		"task 1/api":   "task-1-api",
		"Auth.Module":  "Auth.Module",
		"a_b-c":        "a_b-c",
		"":             "task",
		"väl/ue":       "v-l-ue",
	}
	for in, want := range cases {
		if got := SanitizeID(in); got != want {
			t.Errorf("SanitizeID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCompletedIDs(t *testing.T) {
	results := []TaskResult{
		{ID: "t1", Status: StatusSuccess, Completed: true},
		{ID: "t2", Status: StatusError, Completed: false},
		{ID: "t3", Status: StatusWarn, Completed: true},
	}
	ids := CompletedIDs(results)
	if len(ids) != 2 {
		t.Fatalf("expected 2 completed IDs, got %d", len(ids))
	}
	if !ids["t1"] || !ids["t3"] {
		t.Errorf("expected t1 and t3 completed, got %v", ids)
	}
	if ids["t2"] {
		t.Error("t2 should not be in the completed set")
	}
}

func TestSortResultsByID(t *testing.T) {
	results := []TaskResult{{ID: "t3"}, {ID: "t1"}, {ID: "t2"}}
	SortResultsByID(results)
	for i, want := range []string{"t1", "t2", "t3"} {
		if results[i].ID != want {
			t.Errorf("position %d: got %s, want %s", i, results[i].ID, want)
		}
	}
}

func TestPlanTaskByID(t *testing.T) {
	plan := &Plan{Tasks: []Task{{ID: "t1", Title: "one"}, {ID: "t2", Title: "two"}}}
	if task := plan.TaskByID("t2"); task == nil || task.Title != "two" {
		t.Errorf("expected to find t2, got %+v", task)
	}
	if task := plan.TaskByID("missing"); task != nil {
		t.Errorf("expected nil for missing task, got %+v", task)
	}
}
