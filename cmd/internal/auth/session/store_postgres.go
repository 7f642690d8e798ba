package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// PostgresStore implements Store over PostgreSQL (warden.refresh_tokens).
//
// The pgx pool is owned by the caller; this store must not close it.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the store (default "warden").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("session: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("session: nil pool")
	}
	st := &PostgresStore{pool: pool, schema: "warden"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	return st, nil
}

func (s *PostgresStore) table() string {
	return fmt.Sprintf("%q.%q", s.schema, "refresh_tokens")
}

// Create inserts a record for userID and returns its ULID.
func (s *PostgresStore) Create(ctx context.Context, userID string, expiresAt time.Time) (string, error) {
	id := ulid.Make().String()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO `+s.table()+` (id, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, now())
	`, id, userID, expiresAt)
	if err != nil {
		return "", fmt.Errorf("session.Create: %w", err)
	}
	return id, nil
}

// FindByID loads a record by id.
func (s *PostgresStore) FindByID(ctx context.Context, id string) (Record, error) {
	var r Record
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, expires_at, created_at
		FROM `+s.table()+`
		WHERE id = $1
	`, id).Scan(&r.ID, &r.UserID, &r.ExpiresAt, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("session.FindByID: %w", err)
	}
	return r, nil
}

// DeleteByID removes a record. Absent rows are not an error.
func (s *PostgresStore) DeleteByID(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM `+s.table()+` WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("session.DeleteByID: %w", err)
	}
	return nil
}

// DeleteAllByUser removes every record for userID.
func (s *PostgresStore) DeleteAllByUser(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM `+s.table()+` WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("session.DeleteAllByUser: %w", err)
	}
	return nil
}

// Rotate redeems oldID and replaces it inside one transaction. The old row is
// locked with SELECT ... FOR UPDATE so concurrent redemptions serialize; the
// loser observes the row gone and gets ErrRecordNotFound.
func (s *PostgresStore) Rotate(ctx context.Context, oldID, userID string, expiresAt time.Time) (string, error) {
	const op = "session.Rotate"

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var lockedID string
	err = tx.QueryRow(ctx, `
		SELECT id FROM `+s.table()+`
		WHERE id = $1 AND user_id = $2
		FOR UPDATE
	`, oldID, userID).Scan(&lockedID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrRecordNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM `+s.table()+` WHERE id = $1`, lockedID); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	newID := ulid.Make().String()
	if _, err := tx.Exec(ctx, `
		INSERT INTO `+s.table()+` (id, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, now())
	`, newID, userID, expiresAt); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}
