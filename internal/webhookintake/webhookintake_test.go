package webhookintake

import (
	"strings"
	"testing"

	"codeguardpro/internal/domain"
)

func TestHasSupportedExtension(t *testing.T) {
	cases := map[string]bool{
		"src/app.js":        true,
		"src/app.tsx":       true,
		"main.go":           true,
		"README.md":         false,
		"build/out.bin":     false,
		"scripts/deploy.py": true,
	}
	for path, want := range cases {
		if got := hasSupportedExtension(path); got != want {
			t.Errorf("hasSupportedExtension(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestSummarizeCapsAtMaxSummaryComments(t *testing.T) {
	var issues []domain.Issue
	for i := 0; i < maxSummaryComments+5; i++ {
		issues = append(issues, domain.Issue{File: "a.js", Line: i + 1, Description: "issue"})
	}
	out := summarize(issues)
	if !strings.Contains(out, "and 5 more") {
		t.Fatalf("expected overflow note, got: %s", out)
	}
}

func TestSummarizeListsEveryIssueWhenUnderCap(t *testing.T) {
	issues := []domain.Issue{{File: "a.js", Line: 1, Description: "secret leaked"}}
	out := summarize(issues)
	if !strings.Contains(out, "secret leaked") {
		t.Fatalf("expected issue description in summary, got: %s", out)
	}
	if strings.Contains(out, "more.") {
		t.Fatalf("did not expect an overflow note, got: %s", out)
	}
}
