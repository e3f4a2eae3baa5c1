package main

import (
	"testing"
	"time"
)

func TestRateLimiterFixedWindow(t *testing.T) {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	rl := newRateLimiter(3, time.Minute)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if ok, _ := rl.Check("10.0.0.1"); !ok {
			t.Fatalf("request %d within the window must be allowed", i+1)
		}
	}

	ok, retryAfter := rl.Check("10.0.0.1")
	if ok {
		t.Fatal("fourth request within the window must be rejected")
	}
	if retryAfter != 60 {
		t.Errorf("retryAfter = %d, want 60", retryAfter)
	}

	// A partially elapsed window shrinks the retry hint, rounding up.
	now = now.Add(30*time.Second + 100*time.Millisecond)
	if _, retryAfter = rl.Check("10.0.0.1"); retryAfter != 30 {
		t.Errorf("retryAfter = %d, want 30", retryAfter)
	}

	// Window elapsed: the counter starts over.
	now = now.Add(time.Minute)
	if ok, _ = rl.Check("10.0.0.1"); !ok {
		t.Error("request after window expiry must be allowed")
	}
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	rl := newRateLimiter(1, time.Minute)

	if ok, _ := rl.Check("key-a"); !ok {
		t.Fatal("first request for key-a must be allowed")
	}
	if ok, _ := rl.Check("key-b"); !ok {
		t.Error("key-b must not share key-a's counter")
	}
	if ok, _ := rl.Check("key-a"); ok {
		t.Error("second request for key-a must be rejected")
	}
}

func TestRateLimiterSweep(t *testing.T) {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	rl := newRateLimiter(3, time.Minute)
	rl.now = func() time.Time { return now }

	rl.Check("10.0.0.1")
	rl.Check("10.0.0.2")

	now = now.Add(2 * time.Minute)
	rl.Check("10.0.0.3")
	rl.sweep()

	rl.lock.Lock()
	defer rl.lock.Unlock()
	if len(rl.windows) != 1 {
		t.Errorf("windows left after sweep = %d, want 1", len(rl.windows))
	}
	if rl.windows["10.0.0.3"] == nil {
		t.Error("live window must survive the sweep")
	}
}
