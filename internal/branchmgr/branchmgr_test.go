package branchmgr

import "testing"

func TestBuildBranchNameSanitizesAndJoins(t *testing.T) {
	got := BuildBranchName("Team Rocket!", "  jessie_james  ")
	want := "TEAM_ROCKET_JESSIEJAMES_AI_Fix"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBuildBranchNameIsDeterministic(t *testing.T) {
	a := BuildBranchName("Acme Corp", "Wile E.")
	b := BuildBranchName("Acme Corp", "Wile E.")
	if a != b {
		t.Fatalf("expected identical output for identical input, got %q vs %q", a, b)
	}
}

func TestSanitizeCollapsesWhitespaceAndDropsPunctuation(t *testing.T) {
	got := sanitize("Hello,   World!!")
	want := "HELLO_WORLD"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
