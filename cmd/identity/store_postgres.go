package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// PostgresStore implements Store over PostgreSQL.
//
// The pgx pool is owned by the caller; this store must not close it.
// Schema identifiers are validated before interpolation into SQL.
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
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
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

func (s *PostgresStore) users() string {
	return fmt.Sprintf("%q.%q", s.schema, "users")
}

const defaultRole = "user"

// CreateUser inserts a new account keyed by normalized email.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	email := strings.TrimSpace(in.Email)
	if err := ValidateEmail(email); err != nil {
		return User{}, err
	}
	if strings.TrimSpace(in.PasswordHash) == "" {
		return User{}, invalid(op, "password hash is required")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	role := strings.TrimSpace(in.Role)
	if role == "" {
		role = defaultRole
	}

	u := User{
		ID:           ulid.Make().String(),
		Email:        email,
		PasswordHash: in.PasswordHash,
		Role:         role,
		CreatedAt:    now,
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.users()+` (
		     id, email, email_norm, password_hash, role, created_at
		   ) VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Email, NormalizeEmail(email), u.PasswordHash, u.Role, u.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, ConflictError{Op: op, Field: "email"}
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// GetAuthByEmail resolves an account by normalized email, password hash
// included.
func (s *PostgresStore) GetAuthByEmail(ctx context.Context, email string) (User, error) {
	const op = "identity.GetAuthByEmail"

	norm := NormalizeEmail(email)
	if norm == "" {
		return User{}, invalid(op, "email is required")
	}

	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, role, created_at
		   FROM `+s.users()+`
		  WHERE email_norm = $1`,
		norm,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, OpError{Op: op, Kind: ErrNotFound}
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// GetByID resolves an account by id. The password hash is not loaded.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetByID"

	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, invalid(op, "id is required")
	}

	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, role, created_at
		   FROM `+s.users()+`
		  WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Email, &u.Role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, OpError{Op: op, Kind: ErrNotFound}
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}
