package ratelimit

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config tunes the login throttle.
type Config struct {
	// Capacity is the number of points allowed per window.
	Capacity int

	// Window is the fixed window length.
	Window time.Duration

	// BlockBase scales lockout durations: a lockout after the n-th window
	// exhaustion lasts BlockBase * fib(n).
	BlockBase time.Duration
}

// DefaultConfig returns the throttle defaults: 5 points per 60 seconds with
// lockouts growing in whole minutes.
func DefaultConfig() Config {
	return Config{
		Capacity:  5,
		Window:    60 * time.Second,
		BlockBase: time.Minute,
	}
}

// LoadConfigFromEnv loads throttle configuration from environment variables,
// falling back to defaults on missing or invalid values.
//
// Optional:
//   - WARDEN_LOGIN_LIMIT_CAPACITY
//   - WARDEN_LOGIN_LIMIT_WINDOW
//   - WARDEN_LOGIN_BLOCK_BASE
func LoadConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("WARDEN_LOGIN_LIMIT_CAPACITY")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Capacity = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("WARDEN_LOGIN_LIMIT_WINDOW")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Window = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("WARDEN_LOGIN_BLOCK_BASE")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.BlockBase = d
		}
	}

	return cfg
}

// LoginThrottle combines the window limiter and the consecutive-failure
// counter into the escalation policy applied to login attempts.
type LoginThrottle struct {
	cfg         Config
	limiter     *Limiter
	consecutive *Counter
}

// NewLoginThrottle constructs a LoginThrottle. A nil now uses time.Now.
func NewLoginThrottle(cfg Config, now func() time.Time) *LoginThrottle {
	return &LoginThrottle{
		cfg:         cfg,
		limiter:     NewLimiter(cfg.Capacity, cfg.Window, now),
		consecutive: NewCounter(),
	}
}

// Preflight reports whether key is currently blocked and for how long.
// It consumes nothing: the pre-check must not punish a blocked caller further.
func (t *LoginThrottle) Preflight(key string) (time.Duration, bool) {
	return t.limiter.Retry(key)
}

// RecordFailure charges one failed attempt for key and applies escalation.
//
// The first miss after a clean slate costs one point; every attempt after at
// least one miss costs the full window capacity, fast-forwarding toward a
// block. Exhausting the window increments the consecutive counter to n and
// forces a block of BlockBase * fib(n). The returned duration is non-zero only
// when a block was applied by this call.
func (t *LoginThrottle) RecordFailure(key string) (time.Duration, bool) {
	points := 1
	if t.consecutive.Get(key) > 0 {
		points = t.cfg.Capacity
	}

	remaining := t.limiter.Consume(key, points)
	if remaining > 0 {
		return 0, false
	}

	n := t.consecutive.Penalty(key)
	block := t.cfg.BlockBase * time.Duration(fibonacci(n))
	t.limiter.Block(key, block)
	return block, true
}

// RecordSuccess resets the escalation track for key. Window consumption is
// left to expire naturally: a success does not refund failed attempts.
func (t *LoginThrottle) RecordSuccess(key string) {
	t.consecutive.Delete(key)
}

// fibonacci returns the n-th Fibonacci number with fib(1) = fib(2) = 1,
// computed iteratively.
func fibonacci(n int) int64 {
	if n <= 2 {
		return 1
	}
	var a, b int64 = 1, 1
	for i := 3; i <= n; i++ {
		a, b = b, a+b
	}
	return b
}
