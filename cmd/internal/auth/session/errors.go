package session

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors (stable for errors.Is and for mapping to API status codes).
var (
	// ErrInvalidCredentials covers both unknown accounts and wrong passwords
	// so callers cannot probe which emails exist.
	ErrInvalidCredentials = errors.New("invalid_credentials")

	// ErrLoginThrottled means the attempt was refused before any credential
	// check because the key is inside a lockout window.
	ErrLoginThrottled = errors.New("login_throttled")

	// ErrRefreshMalformed means the presented token is not even parsable, so
	// the request itself is bad rather than merely unauthorized.
	ErrRefreshMalformed = errors.New("refresh_malformed")

	// ErrRefreshInvalid covers signature-invalid or otherwise unredeemable
	// refresh tokens.
	ErrRefreshInvalid = errors.New("refresh_invalid")

	// ErrRefreshExpired means the refresh token's signature was genuine but
	// its lifetime has lapsed.
	ErrRefreshExpired = errors.New("refresh_expired")

	// ErrRefreshReused means a genuine refresh token was presented after it
	// had already been redeemed. All of the user's tokens are revoked when
	// this is returned.
	ErrRefreshReused = errors.New("refresh_reused")

	// ErrRecordNotFound is returned by stores for absent refresh records.
	ErrRecordNotFound = errors.New("refresh_record_not_found")
)

// BlockedError decorates a login failure with how long the caller must wait.
type BlockedError struct {
	RetryAfter time.Duration
	Err        error
}

func (e BlockedError) Error() string {
	return fmt.Sprintf("%v: retry after %s", e.Err, e.RetryAfter)
}

func (e BlockedError) Unwrap() error { return e.Err }

// RetryAfter extracts the wait hint from err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var be BlockedError
	if errors.As(err, &be) {
		return be.RetryAfter, true
	}
	return 0, false
}
