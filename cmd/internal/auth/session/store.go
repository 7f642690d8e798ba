package session

import (
	"context"
	"time"
)

// Record is a live refresh token. Its existence is the sole proof the token
// has not been redeemed; there is no revoked flag.
type Record struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Store is the refresh-record persistence boundary.
type Store interface {
	// Create inserts a record for userID and returns its id.
	Create(ctx context.Context, userID string, expiresAt time.Time) (string, error)

	// FindByID loads a record. Returns ErrRecordNotFound when absent.
	FindByID(ctx context.Context, id string) (Record, error)

	// DeleteByID removes a record. Deleting an absent record is not an error.
	DeleteByID(ctx context.Context, id string) error

	// DeleteAllByUser removes every record for userID.
	DeleteAllByUser(ctx context.Context, userID string) error

	// Rotate atomically redeems record oldID and replaces it with a new one
	// carrying the same owner and expiry, returning the new id. The old
	// record is locked for the duration, so of two concurrent redemptions
	// exactly one wins; the loser gets ErrRecordNotFound.
	Rotate(ctx context.Context, oldID, userID string, expiresAt time.Time) (string, error)
}
