package router

import (
	"testing"
	"time"
)

func TestRateLimiter_WindowLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !rl.Allow("c1") {
			t.Fatalf("event %d should be allowed", i+1)
		}
	}
	if rl.Allow("c1") {
		t.Error("4th event in the window should be rejected")
	}
	if !rl.Allow("c2") {
		t.Error("Limits are per key")
	}

	now = now.Add(time.Minute)
	if !rl.Allow("c1") {
		t.Error("A new window should reset the count")
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(0, time.Minute)
	for i := 0; i < 1000; i++ {
		if !rl.Allow("c1") {
			t.Fatal("Zero limit should disable limiting")
		}
	}
	if rl.Len() != 0 {
		t.Error("Disabled limiter should not track keys")
	}
}

func TestRateLimiter_CleanupAndForget(t *testing.T) {
	rl := NewRateLimiter(10, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	rl.Allow("old")
	now = now.Add(4 * time.Minute)
	rl.Allow("fresh")
	rl.Allow("gone")
	rl.Forget("gone")

	now = now.Add(2 * time.Minute)
	if removed := rl.Cleanup(); removed != 1 {
		t.Errorf("Expected 1 stale entry removed, got %d", removed)
	}
	if rl.Len() != 1 {
		t.Errorf("Expected only the fresh entry left, got %d", rl.Len())
	}
}
