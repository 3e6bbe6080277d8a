package fixagent

import (
	"context"
	"strings"
	"testing"

	"codeguardpro/internal/domain"
)

func TestGenerateFixFallsBackToRulesWithoutAPIKey(t *testing.T) {
	a := New("", "")
	issue := domain.Issue{File: "app.js", Line: 1, BugType: domain.BugLinting}
	content := "const apiKey = \"sk_live_abcdef0123456789\";\n"

	result, err := a.GenerateFix(context.Background(), issue, content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected rule-based fallback to succeed, got %+v", result)
	}
	if strings.Contains(result.FixedCode, "sk_live_abcdef0123456789") {
		t.Fatalf("expected secret to be replaced, got %q", result.FixedCode)
	}
	if !strings.HasPrefix(result.CommitMessage, CommitMarkerPrefix) {
		t.Fatalf("expected commit message to carry the marker prefix, got %q", result.CommitMessage)
	}
}

func TestGenerateFixReportsFailureForOutOfRangeLine(t *testing.T) {
	a := New("", "")
	issue := domain.Issue{File: "app.js", Line: 99, BugType: domain.BugLinting}

	result, err := a.GenerateFix(context.Background(), issue, "single line\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatalf("expected failure for an out-of-range line, got %+v", result)
	}
}

func TestRuleFixLooseEquality(t *testing.T) {
	fixed, _, ok := ruleFix(domain.BugLogic, "if (a == b) {")
	if !ok {
		t.Fatal("expected a fix for loose equality")
	}
	if !strings.Contains(fixed, "===") {
		t.Fatalf("expected strict equality in fix, got %q", fixed)
	}
}
