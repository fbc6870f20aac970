package ratelimit

import (
	"sync"
	"testing"
	"time"
)

func TestAdmitRejectsAboveLimitWithinWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewLimiterWithClock(60*time.Second, 30, func() time.Time { return now })

	for i := 0; i < 30; i++ {
		if !limiter.Admit("user-x") {
			t.Fatalf("call %d should have been admitted", i+1)
		}
		now = now.Add(time.Second / 3)
	}

	if limiter.Admit("user-x") {
		t.Fatal("31st call within the window should be rejected")
	}
}

func TestAdmitRecoversAfterWindowPasses(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewLimiterWithClock(60*time.Second, 30, func() time.Time { return now })

	for i := 0; i < 30; i++ {
		if !limiter.Admit("user-x") {
			t.Fatalf("call %d should have been admitted", i+1)
		}
	}
	if limiter.Admit("user-x") {
		t.Fatal("expected rejection at the cap")
	}

	now = now.Add(61 * time.Second)
	if !limiter.Admit("user-x") {
		t.Fatal("expected admission after the window passed")
	}
}

func TestRejectedAttemptsAreNotRecorded(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewLimiterWithClock(60*time.Second, 2, func() time.Time { return now })

	limiter.Admit("user-x")
	now = now.Add(10 * time.Second)
	limiter.Admit("user-x")

	// Hammering while full must not extend the lockout.
	for i := 0; i < 10; i++ {
		now = now.Add(time.Second)
		if limiter.Admit("user-x") {
			t.Fatal("expected rejection while window is full")
		}
	}

	// 61s after the first admitted call, one slot frees up.
	now = now.Add(41 * time.Second)
	if !limiter.Admit("user-x") {
		t.Fatal("expected admission once the oldest stamp aged out")
	}
}

func TestIdentitiesAreIndependent(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewLimiterWithClock(60*time.Second, 1, func() time.Time { return now })

	if !limiter.Admit("user-a") {
		t.Fatal("expected user-a to be admitted")
	}
	if limiter.Admit("user-a") {
		t.Fatal("expected user-a to be rejected at cap")
	}
	if !limiter.Admit("user-b") {
		t.Fatal("expected user-b to be unaffected by user-a")
	}
}

func TestConcurrentAdmitsNeverExceedLimit(t *testing.T) {
	t.Parallel()

	limiter := NewLimiter(time.Minute, 30)

	var wg sync.WaitGroup
	admitted := make(chan struct{}, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Admit("user-x") {
				admitted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(admitted)

	count := 0
	for range admitted {
		count++
	}
	if count != 30 {
		t.Fatalf("expected exactly 30 admitted calls, got %d", count)
	}
}
