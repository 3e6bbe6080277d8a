package ssegateway

import (
	"testing"

	"codeguardpro/internal/domain"
)

func TestIsForgeURL(t *testing.T) {
	cases := map[string]bool{
		"https://github.com/acme/widgets":         true,
		"https://api.github.com/repos/acme/widgets": true,
		"https://gitlab.com/acme/widgets":          false,
		"not a url":                                false,
		"":                                         false,
	}
	for raw, want := range cases {
		if got := isForgeURL(raw); got != want {
			t.Errorf("isForgeURL(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestResultStorePutGetAll(t *testing.T) {
	rs := NewResultStore()
	if _, ok := rs.Get("missing"); ok {
		t.Fatal("expected miss on empty store")
	}
	rs.Put("session-1", domain.HealResult{Repo: "acme/widgets"})
	got, ok := rs.Get("session-1")
	if !ok || got.Repo != "acme/widgets" {
		t.Fatalf("got %+v, ok=%v", got, ok)
	}
	if len(rs.All()) != 1 {
		t.Fatalf("expected 1 stored result, got %d", len(rs.All()))
	}
}
