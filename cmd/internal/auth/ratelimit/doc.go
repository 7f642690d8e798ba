// Package ratelimit throttles repeated failed logins.
//
// Two counters cooperate per key (the login email): a fixed-window points
// limiter bounding attempts per window, and a never-expiring consecutive
// failure counter that escalates lockout durations along the Fibonacci
// sequence. All state is process-local and mutex-guarded; a lost update would
// under-count failures and weaken the lockout, so every mutation happens under
// the lock.
package ratelimit
