// Package app wires the warden runtime: config, logging, database pool, the
// auth services, and the HTTP server.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"warden/cmd/identity"
	authapi "warden/cmd/internal/auth/api"
	"warden/cmd/internal/auth/ratelimit"
	"warden/cmd/internal/auth/session"
	"warden/cmd/internal/auth/token"
	"warden/cmd/internal/metrics"
	"warden/cmd/security/password"

	"github.com/jackc/pgx/v5/pgxpool"
)

// App owns the server's long-lived resources.
type App struct {
	cfg Config
	log Logger

	pool    *pgxpool.Pool
	auth    *authapi.Handler
	metrics *metrics.Metrics
}

// New constructs a fully wired App instance from config and logger.
//
// Startup is fail-fast: missing signing keys or an unreachable database are
// configuration faults, not conditions to limp along under.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("app: WARDEN_DATABASE_URL is required")
	}

	tokenCfg, err := token.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	codec, err := token.NewCodec(tokenCfg)
	if err != nil {
		return nil, err
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	idStore, err := identity.NewPostgresStore(pool, identity.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return nil, err
	}
	sessStore, err := session.NewPostgresStore(pool, session.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return nil, err
	}

	pwParams := password.ParamsFromEnv()
	svc, err := session.NewService(session.Deps{
		Store:    sessStore,
		Users:    idStore,
		Codec:    codec,
		Throttle: ratelimit.NewLoginThrottle(ratelimit.LoadConfigFromEnv(), nil),
		Logger:   log,
		HashPassword: func(plain string) (string, error) {
			return password.Hash(plain, pwParams)
		},
		VerifyPassword: password.Verify,
	})
	if err != nil {
		pool.Close()
		return nil, err
	}

	m := metrics.New()
	auth, err := authapi.NewHandler(log, authapi.LoadConfigFromEnv(), svc, idStore, codec, m)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &App{
		cfg:     cfg,
		log:     log,
		pool:    pool,
		auth:    auth,
		metrics: m,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal
// server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.pool, a.auth, a.metrics)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(mux, a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.pool.Close()

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
