package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a keyed fixed-window points limiter with an explicit block
// override. The window resets lazily on the first touch after it elapses;
// a block forces remaining capacity to zero until it expires, regardless of
// window state.
type Limiter struct {
	mu       sync.Mutex
	capacity int
	window   time.Duration
	entries  map[string]*entry
	now      func() time.Time
}

type entry struct {
	consumed     int
	windowStart  time.Time
	blockedUntil time.Time
}

// NewLimiter constructs a Limiter with the given capacity per window.
// A nil now falls back to time.Now; tests inject a fake clock.
func NewLimiter(capacity int, window time.Duration, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{
		capacity: capacity,
		window:   window,
		entries:  make(map[string]*entry),
		now:      now,
	}
}

// Consume adds points for key and returns the remaining capacity, which may
// be negative. An elapsed window (or expired block) resets the counter first.
func (l *Limiter) Consume(key string, points int) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e := l.entries[key]
	if e == nil {
		e = &entry{windowStart: now}
		l.entries[key] = e
	}
	l.roll(e, now)

	e.consumed += points
	return l.capacity - e.consumed
}

// Block forces key to zero capacity for d, overriding window logic.
func (l *Limiter) Block(key string, d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e := l.entries[key]
	if e == nil {
		e = &entry{}
		l.entries[key] = e
	}
	e.consumed = l.capacity
	e.windowStart = now
	e.blockedUntil = now.Add(d)
}

// Retry reports whether key is currently out of capacity and, if so, how long
// until the next attempt is allowed. Read-only apart from lazy resets.
func (l *Limiter) Retry(key string) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.entries[key]
	if e == nil {
		return 0, false
	}

	now := l.now()
	l.roll(e, now)

	if e.consumed < l.capacity {
		return 0, false
	}
	if until := e.blockedUntil; until.After(now) {
		return until.Sub(now), true
	}
	return e.windowStart.Add(l.window).Sub(now), true
}

// roll applies lazy expiry: a lapsed block or window clears the counter.
// Caller holds the lock.
func (l *Limiter) roll(e *entry, now time.Time) {
	if !e.blockedUntil.IsZero() {
		if now.Before(e.blockedUntil) {
			return
		}
		e.blockedUntil = time.Time{}
		e.consumed = 0
		e.windowStart = now
		return
	}
	if now.Sub(e.windowStart) >= l.window {
		e.consumed = 0
		e.windowStart = now
	}
}

// Counter tracks consecutive failures per key. Entries never expire on their
// own; only Delete (called on a successful login) clears one.
type Counter struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewCounter constructs an empty Counter.
func NewCounter() *Counter {
	return &Counter{counts: make(map[string]int)}
}

// Get returns the current count for key (zero when absent).
func (c *Counter) Get(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[key]
}

// Penalty increments the count for key and returns the new total.
func (c *Counter) Penalty(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[key]++
	return c.counts[key]
}

// Delete resets the count for key.
func (c *Counter) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counts, key)
}
