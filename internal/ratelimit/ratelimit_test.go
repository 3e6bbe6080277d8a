package ratelimit

import (
	"testing"
	"time"
)

func TestAllowBlocksAfterMax(t *testing.T) {
	l := New(2, time.Minute)
	defer l.Close()

	if ok, _ := l.Allow("client-a"); !ok {
		t.Fatal("expected first request to be allowed")
	}
	if ok, _ := l.Allow("client-a"); !ok {
		t.Fatal("expected second request to be allowed")
	}
	ok, retryAfter := l.Allow("client-a")
	if ok {
		t.Fatal("expected third request to be denied")
	}
	if retryAfter <= 0 {
		t.Fatalf("expected a positive retry-after, got %v", retryAfter)
	}
}

func TestAllowTracksKeysIndependently(t *testing.T) {
	l := New(1, time.Minute)
	defer l.Close()

	if ok, _ := l.Allow("client-a"); !ok {
		t.Fatal("expected client-a's first request to be allowed")
	}
	if ok, _ := l.Allow("client-b"); !ok {
		t.Fatal("expected client-b's first request to be allowed, independent of client-a")
	}
}

func TestPruneBeforeDropsStaleHits(t *testing.T) {
	now := time.Now()
	hits := []time.Time{now.Add(-2 * time.Minute), now.Add(-30 * time.Second), now}
	kept := pruneBefore(hits, now.Add(-time.Minute))
	if len(kept) != 2 {
		t.Fatalf("expected 2 surviving hits, got %d: %+v", len(kept), kept)
	}
}
