package identity

import (
	"context"
	"net/mail"
	"strings"
	"time"
)

// User is the canonical security principal.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

// CreateUserInput describes a registration request. Password must already be
// hashed; this package never sees plaintext credentials.
type CreateUserInput struct {
	Email        string
	PasswordHash string
	Role         string
	Now          time.Time
}

// Store is the user persistence boundary.
type Store interface {
	// CreateUser inserts a new account. Returns ConflictError when the
	// normalized email is already taken.
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)

	// GetAuthByEmail resolves an account by normalized email, including the
	// password hash. Returns ErrNotFound when absent.
	GetAuthByEmail(ctx context.Context, email string) (User, error)

	// GetByID resolves an account by id. Returns ErrNotFound when absent.
	GetByID(ctx context.Context, id string) (User, error)
}

// ValidateEmail checks shape only; deliverability is out of scope.
func ValidateEmail(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return invalid("identity.ValidateEmail", "email is required")
	}
	if _, err := mail.ParseAddress(s); err != nil {
		return invalid("identity.ValidateEmail", "malformed email")
	}
	return nil
}
