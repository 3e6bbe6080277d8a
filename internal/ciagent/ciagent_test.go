package ciagent

import (
	"testing"

	"codeguardpro/internal/domain"
	"codeguardpro/internal/forge"
)

func TestTerminalReportsInFlightChecksAsNotTerminal(t *testing.T) {
	checks := []forge.CheckRun{{Name: "build", Status: "in_progress"}}
	if terminal(checks, nil) {
		t.Fatal("expected in_progress check to be non-terminal")
	}
}

func TestTerminalReportsSettledChecksAsTerminal(t *testing.T) {
	checks := []forge.CheckRun{{Name: "build", Status: "completed", Conclusion: "success"}}
	statuses := []forge.StatusContext{{Context: "ci/lint", State: "success"}}
	if !terminal(checks, statuses) {
		t.Fatal("expected settled checks+statuses to be terminal")
	}
}

func TestTerminalWithNoChecksAtAllIsNotTerminal(t *testing.T) {
	if terminal(nil, nil) {
		t.Fatal("expected no checks at all to be non-terminal (caller should treat as NO_CI)")
	}
}

func TestSummarizeFlagsFailureConclusion(t *testing.T) {
	checks := []forge.CheckRun{{Name: "test", Status: "completed", Conclusion: "failure"}}
	result := summarize(checks, nil)
	if result.Status != domain.CIFailed {
		t.Fatalf("expected CIFailed, got %s", result.Status)
	}
}

func TestSummarizePassesWhenNothingFailed(t *testing.T) {
	checks := []forge.CheckRun{{Name: "test", Status: "completed", Conclusion: "success"}}
	result := summarize(checks, nil)
	if result.Status != domain.CIPassed {
		t.Fatalf("expected CIPassed, got %s", result.Status)
	}
}

func TestClassifyFailurePrecedence(t *testing.T) {
	cases := map[string]domain.BugKind{
		"SyntaxError: unexpected token":       domain.BugSyntax,
		"Cannot find module 'lodash'":         domain.BugImport,
		"TypeError: undefined is not a func":  domain.BugTypeError,
		"Unexpected indentation":              domain.BugIndentation,
		"eslint: unused variable":             domain.BugLinting,
		"assertion failed: expected 1 got 2":  domain.BugLogic,
	}
	for msg, want := range cases {
		if got := ClassifyFailure(msg); got != want {
			t.Errorf("ClassifyFailure(%q) = %s, want %s", msg, got, want)
		}
	}
}
