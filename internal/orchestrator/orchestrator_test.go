package orchestrator

import "testing"

func TestShortSHATruncatesTo7Chars(t *testing.T) {
	got := shortSHA("abcdef0123456789")
	if got != "abcdef0" {
		t.Fatalf("got %q", got)
	}
}

func TestShortSHALeavesShortValuesAlone(t *testing.T) {
	if got := shortSHA("abc"); got != "abc" {
		t.Fatalf("got %q", got)
	}
}
