package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// Integration tests are opt-in and require WARDEN_DATABASE_URL.

func TestPostgresStore_CreateFindDelete(t *testing.T) {
	t.Parallel()

	pool, schema, userID := mustOpenSessionSchema(t)
	s, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	expires := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Millisecond)
	id, err := s.Create(ctx, userID, expires)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	rec, err := s.FindByID(ctx, id)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if rec.UserID != userID || !rec.ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected record: %+v", rec)
	}

	if err := s.DeleteByID(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.FindByID(ctx, id); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("want not found, got %v", err)
	}
	// Idempotent.
	if err := s.DeleteByID(ctx, id); err != nil {
		t.Fatalf("repeat delete: %v", err)
	}
}

func TestPostgresStore_RotateIsSingleUse(t *testing.T) {
	t.Parallel()

	pool, schema, userID := mustOpenSessionSchema(t)
	s, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	expires := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Millisecond)
	oldID, err := s.Create(ctx, userID, expires)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Two concurrent redemptions: exactly one wins.
	var wg sync.WaitGroup
	results := make([]error, 2)
	ids := make([]string, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], results[i] = s.Rotate(ctx, oldID, userID, expires)
		}(i)
	}
	wg.Wait()

	var wins, losses int
	for i := 0; i < 2; i++ {
		switch {
		case results[i] == nil:
			wins++
		case errors.Is(results[i], ErrRecordNotFound):
			losses++
		default:
			t.Fatalf("rotate %d: %v", i, results[i])
		}
	}
	if wins != 1 || losses != 1 {
		t.Fatalf("wins=%d losses=%d, want exactly one of each", wins, losses)
	}

	if _, err := s.FindByID(ctx, oldID); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("old record survived: %v", err)
	}
	for i := 0; i < 2; i++ {
		if results[i] != nil {
			continue
		}
		rec, err := s.FindByID(ctx, ids[i])
		if err != nil {
			t.Fatalf("winner record: %v", err)
		}
		if !rec.ExpiresAt.Equal(expires) {
			t.Fatalf("rotation changed expiry: %v", rec.ExpiresAt)
		}
	}
}

func TestPostgresStore_DeleteAllByUser(t *testing.T) {
	t.Parallel()

	pool, schema, userID := mustOpenSessionSchema(t)
	s, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	expires := time.Now().Add(time.Hour)
	var ids []string
	for i := 0; i < 3; i++ {
		id, err := s.Create(ctx, userID, expires)
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		ids = append(ids, id)
	}

	if err := s.DeleteAllByUser(ctx, userID); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	for _, id := range ids {
		if _, err := s.FindByID(ctx, id); !errors.Is(err, ErrRecordNotFound) {
			t.Fatalf("record %s survived: %v", id, err)
		}
	}
}

func mustOpenSessionSchema(t *testing.T) (*pgxpool.Pool, string, string) {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("WARDEN_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: WARDEN_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, raw)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	t.Cleanup(pool.Close)

	schema := "warden_it_" + strings.ToLower(ulid.Make().String())
	if _, err := pool.Exec(ctx, fmt.Sprintf(`CREATE SCHEMA %q`, schema)); err != nil {
		t.Skipf("integration test skipped: Postgres unreachable or unwritable: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = pool.Exec(ctx, fmt.Sprintf(`DROP SCHEMA %q CASCADE`, schema))
	})

	ddl := fmt.Sprintf(`
		CREATE TABLE %[1]q.users (
		    id            text PRIMARY KEY,
		    email         text NOT NULL,
		    email_norm    text NOT NULL UNIQUE,
		    password_hash text NOT NULL,
		    role          text NOT NULL DEFAULT 'user',
		    created_at    timestamptz NOT NULL DEFAULT now()
		);
		CREATE TABLE %[1]q.refresh_tokens (
		    id         text PRIMARY KEY,
		    user_id    text NOT NULL REFERENCES %[1]q.users (id) ON DELETE CASCADE,
		    expires_at timestamptz NOT NULL,
		    created_at timestamptz NOT NULL DEFAULT now()
		);
		CREATE INDEX ON %[1]q.refresh_tokens (user_id)`, schema)
	if _, err := pool.Exec(ctx, ddl); err != nil {
		t.Fatalf("apply schema: %v", err)
	}

	userID := ulid.Make().String()
	if _, err := pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %q.users (id, email, email_norm, password_hash)
		VALUES ($1, $2, $2, 'x')`, schema),
		userID, userID+"@example.com",
	); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	return pool, schema, userID
}
