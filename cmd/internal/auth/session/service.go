package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"warden/cmd/identity"
	"warden/cmd/internal/auth/ratelimit"
	"warden/cmd/internal/auth/token"
)

// Directory is the slice of user persistence the service needs.
type Directory interface {
	CreateUser(ctx context.Context, in identity.CreateUserInput) (identity.User, error)
	GetAuthByEmail(ctx context.Context, email string) (identity.User, error)
	GetByID(ctx context.Context, id string) (identity.User, error)
}

// Issued is the result of a successful login or refresh.
type Issued struct {
	UserID       string
	AccessToken  string
	RefreshToken string
}

// Deps wires the service's collaborators. HashPassword and VerifyPassword are
// injectable so unit tests can swap the real Argon2id functions for cheap
// fakes.
type Deps struct {
	Store    Store
	Users    Directory
	Codec    *token.Codec
	Throttle *ratelimit.LoginThrottle
	Logger   *slog.Logger

	HashPassword   func(plain string) (string, error)
	VerifyPassword func(plain, encoded string) (bool, error)
}

// Service implements signup, login, refresh rotation, and logout.
type Service struct {
	store    Store
	users    Directory
	codec    *token.Codec
	throttle *ratelimit.LoginThrottle
	log      *slog.Logger

	hash   func(string) (string, error)
	verify func(string, string) (bool, error)
}

// NewService constructs a Service. Store, Users, Codec, Throttle, and both
// password functions are required.
func NewService(d Deps) (*Service, error) {
	if d.Store == nil || d.Users == nil || d.Codec == nil || d.Throttle == nil {
		return nil, fmt.Errorf("session: missing dependency")
	}
	if d.HashPassword == nil || d.VerifyPassword == nil {
		return nil, fmt.Errorf("session: missing password functions")
	}
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:    d.Store,
		users:    d.Users,
		codec:    d.Codec,
		throttle: d.Throttle,
		log:      log,
		hash:     d.HashPassword,
		verify:   d.VerifyPassword,
	}, nil
}

// Signup registers a new account.
func (s *Service) Signup(ctx context.Context, email, password string) (identity.User, error) {
	if err := identity.ValidateEmail(email); err != nil {
		return identity.User{}, err
	}

	hash, err := s.hash(password)
	if err != nil {
		return identity.User{}, identity.OpError{
			Op:   "session.Signup",
			Kind: identity.ErrInvalidInput,
			Msg:  err.Error(),
		}
	}

	return s.users.CreateUser(ctx, identity.CreateUserInput{
		Email:        strings.TrimSpace(email),
		PasswordHash: hash,
	})
}

// Login verifies credentials under the escalation policy and issues a fresh
// token pair. priorRefresh, when non-empty, is a refresh token the client
// still holds; its record is discarded best-effort so logins do not leak
// live tokens.
//
// Unknown accounts and wrong passwords are indistinguishable to the caller
// and both charge the throttle.
func (s *Service) Login(ctx context.Context, email, password, priorRefresh string) (Issued, error) {
	key := identity.NormalizeEmail(email)
	if key == "" {
		return Issued{}, ErrInvalidCredentials
	}

	if retry, blocked := s.throttle.Preflight(key); blocked {
		return Issued{}, BlockedError{RetryAfter: retry, Err: ErrLoginThrottled}
	}

	u, err := s.users.GetAuthByEmail(ctx, key)
	if err != nil {
		if identity.IsNotFound(err) {
			return Issued{}, s.chargeFailure(key)
		}
		return Issued{}, err
	}

	ok, err := s.verify(password, u.PasswordHash)
	if err != nil {
		s.log.Warn("stored password hash rejected", "userId", u.ID, "err", err)
		return Issued{}, s.chargeFailure(key)
	}
	if !ok {
		return Issued{}, s.chargeFailure(key)
	}

	s.throttle.RecordSuccess(key)
	s.discardPrior(ctx, priorRefresh)

	expiresAt := s.codec.DefaultRefreshExpiry()
	recordID, err := s.store.Create(ctx, u.ID, expiresAt)
	if err != nil {
		return Issued{}, err
	}

	return s.issue(u, recordID, expiresAt)
}

// Refresh redeems a refresh token for a new token pair, rotating the backing
// record. A genuine token whose record is gone was already redeemed: that is
// reuse, and every token the user holds is revoked.
//
// The verify subject (the owner's email) is resolved from storage, never from
// the caller, since the subject travels inside the signed claims.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Issued, error) {
	claims, err := s.codec.DecodeUnverified(refreshToken)
	if err != nil || claims.RefreshTokenID == "" || claims.UserID == "" {
		return Issued{}, ErrRefreshMalformed
	}

	rec, err := s.store.FindByID(ctx, claims.RefreshTokenID)
	switch {
	case err == nil:
		return s.rotate(ctx, refreshToken, rec)
	case errors.Is(err, ErrRecordNotFound):
		return Issued{}, s.classifyMissing(ctx, refreshToken, claims.UserID)
	default:
		return Issued{}, err
	}
}

// rotate handles the live-record path: verify the signature against the
// owning user, then atomically swap the record. The rotated token keeps the
// original expiry so refreshing never extends a session's lifetime.
func (s *Service) rotate(ctx context.Context, refreshToken string, rec Record) (Issued, error) {
	u, err := s.users.GetByID(ctx, rec.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			return Issued{}, ErrRefreshInvalid
		}
		return Issued{}, err
	}

	verified, err := s.codec.VerifyRefresh(refreshToken, u.Email)
	if err != nil {
		if token.IsExpired(err) {
			// Dead record; clearing it keeps the table honest.
			_ = s.store.DeleteByID(ctx, rec.ID)
			return Issued{}, ErrRefreshExpired
		}
		return Issued{}, ErrRefreshInvalid
	}
	if verified.UserID != rec.UserID {
		return Issued{}, ErrRefreshInvalid
	}

	newID, err := s.store.Rotate(ctx, rec.ID, rec.UserID, rec.ExpiresAt)
	if errors.Is(err, ErrRecordNotFound) {
		// Lost a redemption race: someone else just used this token.
		s.revokeAll(ctx, rec.UserID, "concurrent redemption")
		return Issued{}, ErrRefreshReused
	}
	if err != nil {
		return Issued{}, err
	}

	return s.issue(u, newID, rec.ExpiresAt)
}

// classifyMissing handles tokens whose record is gone. A genuine, unexpired
// signature over an absent record is conclusive reuse. An unverifiable
// signature may mean a tampered payload, so the account's tokens are burned
// there too. Only plain expiry escapes revocation: that is ordinary staleness.
func (s *Service) classifyMissing(ctx context.Context, refreshToken, claimedUserID string) error {
	u, err := s.users.GetByID(ctx, claimedUserID)
	if err != nil {
		if identity.IsNotFound(err) {
			return ErrRefreshInvalid
		}
		return err
	}

	if _, verr := s.codec.VerifyRefresh(refreshToken, u.Email); verr != nil {
		if token.IsExpired(verr) {
			return ErrRefreshExpired
		}
		s.revokeAll(ctx, u.ID, "unverifiable token for missing record")
		return ErrRefreshReused
	}

	s.revokeAll(ctx, u.ID, "redeemed token presented again")
	return ErrRefreshReused
}

// Logout discards the presented refresh token. Discarding an already-absent
// token succeeds; logout is idempotent.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.codec.DecodeUnverified(refreshToken)
	if err != nil || claims.RefreshTokenID == "" {
		return ErrRefreshMalformed
	}
	return s.store.DeleteByID(ctx, claims.RefreshTokenID)
}

func (s *Service) issue(u identity.User, recordID string, expiresAt time.Time) (Issued, error) {
	access, err := s.codec.SignAccess(u.ID, u.Email)
	if err != nil {
		return Issued{}, err
	}
	refresh, err := s.codec.SignRefresh(u.ID, recordID, u.Email, expiresAt)
	if err != nil {
		return Issued{}, err
	}
	return Issued{UserID: u.ID, AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Service) chargeFailure(key string) error {
	if block, blocked := s.throttle.RecordFailure(key); blocked {
		return BlockedError{RetryAfter: block, Err: ErrInvalidCredentials}
	}
	return ErrInvalidCredentials
}

func (s *Service) discardPrior(ctx context.Context, priorRefresh string) {
	priorRefresh = strings.TrimSpace(priorRefresh)
	if priorRefresh == "" {
		return
	}
	claims, err := s.codec.DecodeUnverified(priorRefresh)
	if err != nil || claims.RefreshTokenID == "" {
		s.log.Debug("prior refresh token undecodable, skipping cleanup")
		return
	}
	if err := s.store.DeleteByID(ctx, claims.RefreshTokenID); err != nil {
		s.log.Warn("prior refresh token cleanup failed", "err", err)
	}
}

func (s *Service) revokeAll(ctx context.Context, userID, reason string) {
	s.log.Warn("revoking all refresh tokens", "userId", userID, "reason", reason)
	if err := s.store.DeleteAllByUser(ctx, userID); err != nil {
		s.log.Error("mass revocation failed", "userId", userID, "err", err)
	}
}
