package http

import (
	"testing"
	"time"
)

func TestRateLimiterWindow(t *testing.T) {
	rl := newRateLimiter(2, time.Minute)
	defer rl.stop()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if !rl.allow("u1") || !rl.allow("u1") {
		t.Fatal("first two requests should pass")
	}
	if rl.allow("u1") {
		t.Fatal("third request in the window should be rejected")
	}
	if !rl.allow("u2") {
		t.Fatal("other clients have their own window")
	}

	now = now.Add(time.Minute)
	if !rl.allow("u1") {
		t.Fatal("new window should reset the counter")
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := newRateLimiter(10, time.Minute)
	defer rl.stop()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.allow("old")
	now = now.Add(11 * time.Minute)
	rl.allow("fresh")

	if removed := rl.cleanupStaleEntries(); removed != 1 {
		t.Fatalf("removed %d entries, want 1", removed)
	}
	rl.stop()
}
