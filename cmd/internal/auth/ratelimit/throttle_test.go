package ratelimit

import (
	"testing"
	"time"
)

// fakeClock is an adjustable clock for deterministic window tests.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestThrottle(clk *fakeClock) *LoginThrottle {
	return NewLoginThrottle(DefaultConfig(), clk.now)
}

func TestFibonacci(t *testing.T) {
	want := []int64{1, 1, 2, 3, 5, 8, 13, 21}
	for i, w := range want {
		if got := fibonacci(i + 1); got != w {
			t.Fatalf("fib(%d) = %d, want %d", i+1, got, w)
		}
	}
}

func TestThrottle_FiveFailuresLockFor60Seconds(t *testing.T) {
	clk := newFakeClock()
	th := newTestThrottle(clk)

	for i := 0; i < 4; i++ {
		if block, blocked := th.RecordFailure("a@example.com"); blocked {
			t.Fatalf("failure %d unexpectedly blocked for %v", i+1, block)
		}
		clk.advance(time.Second)
	}

	block, blocked := th.RecordFailure("a@example.com")
	if !blocked {
		t.Fatalf("fifth failure in window should block")
	}
	if block != 60*time.Second {
		t.Fatalf("first lockout = %v, want 60s", block)
	}

	retry, hit := th.Preflight("a@example.com")
	if !hit || retry <= 0 {
		t.Fatalf("preflight should report the active block, got %v %v", retry, hit)
	}
}

func TestThrottle_EscalationFollowsFibonacci(t *testing.T) {
	clk := newFakeClock()
	th := newTestThrottle(clk)

	key := "a@example.com"

	// First cycle: exhaust the window.
	for i := 0; i < 4; i++ {
		th.RecordFailure(key)
	}
	block, blocked := th.RecordFailure(key)
	if !blocked || block != 60*time.Second {
		t.Fatalf("cycle 1 block = %v (%v), want 60s", block, blocked)
	}

	// After at least one miss, a single failure exhausts the next window.
	wantBlocks := []time.Duration{
		60 * time.Second,  // fib(2) = 1
		120 * time.Second, // fib(3) = 2
		180 * time.Second, // fib(4) = 3
		300 * time.Second, // fib(5) = 5
	}
	for i, want := range wantBlocks {
		clk.advance(block + time.Second)
		block, blocked = th.RecordFailure(key)
		if !blocked || block != want {
			t.Fatalf("cycle %d block = %v (%v), want %v", i+2, block, blocked, want)
		}
	}
}

func TestThrottle_SuccessResetsEscalation(t *testing.T) {
	clk := newFakeClock()
	th := newTestThrottle(clk)

	key := "a@example.com"
	for i := 0; i < 5; i++ {
		th.RecordFailure(key)
	}
	clk.advance(2 * time.Minute)

	th.RecordSuccess(key)

	// The next failure after a success is failure #1 again: one point,
	// no block.
	if block, blocked := th.RecordFailure(key); blocked {
		t.Fatalf("post-success failure should not block, got %v", block)
	}
}

func TestThrottle_SuccessDoesNotRefundWindow(t *testing.T) {
	clk := newFakeClock()
	th := newTestThrottle(clk)

	key := "a@example.com"
	for i := 0; i < 4; i++ {
		th.RecordFailure(key)
	}
	th.RecordSuccess(key)

	// Four points are still consumed in the live window; one more failure
	// exhausts it even though the escalation counter was reset.
	block, blocked := th.RecordFailure(key)
	if !blocked {
		t.Fatalf("window consumption must survive a success")
	}
	if block != 60*time.Second {
		t.Fatalf("block = %v, want 60s (escalation restarted at 1)", block)
	}
}

func TestLimiter_WindowResets(t *testing.T) {
	clk := newFakeClock()
	l := NewLimiter(5, time.Minute, clk.now)

	if rem := l.Consume("k", 5); rem != 0 {
		t.Fatalf("remaining = %d, want 0", rem)
	}
	if _, hit := l.Retry("k"); !hit {
		t.Fatalf("expected exhausted window to report a retry delay")
	}

	clk.advance(61 * time.Second)
	if _, hit := l.Retry("k"); hit {
		t.Fatalf("window should have reset")
	}
	if rem := l.Consume("k", 1); rem != 4 {
		t.Fatalf("remaining after reset = %d, want 4", rem)
	}
}

func TestLimiter_BlockOverridesWindow(t *testing.T) {
	clk := newFakeClock()
	l := NewLimiter(5, time.Minute, clk.now)

	l.Block("k", 5*time.Minute)

	clk.advance(2 * time.Minute) // window would have lapsed
	retry, hit := l.Retry("k")
	if !hit {
		t.Fatalf("block must outlive the window")
	}
	if retry != 3*time.Minute {
		t.Fatalf("retry = %v, want 3m", retry)
	}

	clk.advance(4 * time.Minute)
	if _, hit := l.Retry("k"); hit {
		t.Fatalf("block should have expired")
	}
}

func TestCounter_NeverExpires(t *testing.T) {
	c := NewCounter()

	if got := c.Get("k"); got != 0 {
		t.Fatalf("fresh key = %d, want 0", got)
	}
	if got := c.Penalty("k"); got != 1 {
		t.Fatalf("penalty = %d, want 1", got)
	}
	if got := c.Penalty("k"); got != 2 {
		t.Fatalf("penalty = %d, want 2", got)
	}

	c.Delete("k")
	if got := c.Get("k"); got != 0 {
		t.Fatalf("after delete = %d, want 0", got)
	}
}
