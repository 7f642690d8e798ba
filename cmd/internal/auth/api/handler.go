package authapi

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"warden/cmd/identity"
	"warden/cmd/internal/auth/session"
	"warden/cmd/internal/auth/token"
	"warden/cmd/internal/metrics"
)

// Handler wires the HTTP auth endpoints to the session service.
type Handler struct {
	log *slog.Logger
	cfg Config

	sessions *session.Service
	users    session.Directory
	codec    *token.Codec
	metrics  *metrics.Metrics
}

// NewHandler constructs an auth Handler. All dependencies are required.
func NewHandler(log *slog.Logger, cfg Config, sessions *session.Service, users session.Directory, codec *token.Codec, m *metrics.Metrics) (*Handler, error) {
	if sessions == nil || users == nil || codec == nil || m == nil {
		return nil, errors.New("authapi: missing dependency")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		log:      log,
		cfg:      cfg,
		sessions: sessions,
		users:    users,
		codec:    codec,
		metrics:  m,
	}, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/auth/signup", h.handleSignup)
	mux.HandleFunc("/auth/login", h.handleLogin)
	mux.HandleFunc("/auth/refresh", h.handleRefresh)
	mux.HandleFunc("/auth/logout", h.handleLogout)
	mux.Handle("/me", h.RequireAuth(http.HandlerFunc(h.handleMe)))
}

// ---- handlers ----

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req signupRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	u, err := h.sessions.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case identity.IsInvalidInput(err):
			writeError(w, http.StatusBadRequest, "invalid_request", shortMessage(err))
		case identity.IsConflict(err):
			writeError(w, http.StatusConflict, "email_taken", "an account with this email already exists")
		default:
			h.log.Error("auth.signup.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, signupResponse{UserID: u.ID, Email: u.Email})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	issued, err := h.sessions.Login(r.Context(), req.Email, req.Password, req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrLoginThrottled):
			h.metrics.LoginAttempts.WithLabelValues(metrics.ResultThrottled).Inc()
			retry, _ := session.RetryAfter(err)
			setRetryAfter(w, retry)
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many login attempts")
		case errors.Is(err, session.ErrInvalidCredentials):
			h.metrics.LoginAttempts.WithLabelValues(metrics.ResultDenied).Inc()
			if retry, ok := session.RetryAfter(err); ok {
				// This attempt tripped the lockout; tell the client when to
				// come back.
				h.metrics.Lockouts.Inc()
				setRetryAfter(w, retry)
			}
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		default:
			h.metrics.LoginAttempts.WithLabelValues(metrics.ResultError).Inc()
			h.log.Error("auth.login.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	h.metrics.LoginAttempts.WithLabelValues(metrics.ResultOK).Inc()
	writeJSON(w, http.StatusOK, tokenResponse{
		UserID:       issued.UserID,
		AccessToken:  issued.AccessToken,
		RefreshToken: issued.RefreshToken,
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req refreshRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "refreshToken is required")
		return
	}

	issued, err := h.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrRefreshMalformed):
			h.metrics.Refreshes.WithLabelValues(metrics.ResultInvalid).Inc()
			writeError(w, http.StatusBadRequest, "invalid_request", "unparsable refresh token")
		case errors.Is(err, session.ErrRefreshReused):
			h.metrics.Refreshes.WithLabelValues(metrics.ResultReused).Inc()
			h.metrics.ReuseDetected.Inc()
			writeError(w, http.StatusUnauthorized, "refresh_reused", "refresh token already used")
		case errors.Is(err, session.ErrRefreshExpired):
			h.metrics.Refreshes.WithLabelValues(metrics.ResultExpired).Inc()
			writeError(w, http.StatusUnauthorized, "refresh_expired", "refresh token expired")
		case errors.Is(err, session.ErrRefreshInvalid):
			h.metrics.Refreshes.WithLabelValues(metrics.ResultInvalid).Inc()
			writeError(w, http.StatusUnauthorized, "refresh_invalid", "refresh token invalid")
		default:
			h.metrics.Refreshes.WithLabelValues(metrics.ResultError).Inc()
			h.log.Error("auth.refresh.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	h.metrics.Refreshes.WithLabelValues(metrics.ResultOK).Inc()
	writeJSON(w, http.StatusOK, tokenResponse{
		UserID:       issued.UserID,
		AccessToken:  issued.AccessToken,
		RefreshToken: issued.RefreshToken,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req logoutRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "refreshToken is required")
		return
	}

	if err := h.sessions.Logout(r.Context(), req.RefreshToken); err != nil {
		if errors.Is(err, session.ErrRefreshMalformed) {
			writeError(w, http.StatusBadRequest, "invalid_request", "unparsable refresh token")
			return
		}
		h.log.Error("auth.logout.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
		return
	}

	u, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		h.log.Error("auth.me.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		UserID:    u.ID,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	})
}

// ---- helpers ----

func setRetryAfter(w http.ResponseWriter, d time.Duration) {
	if d <= 0 {
		return
	}
	secs := int64(math.Ceil(d.Seconds()))
	w.Header().Set("Retry-After", fmt.Sprintf("%d", secs))
}

// shortMessage strips the op prefix so validation feedback stays readable.
func shortMessage(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "); i >= 0 {
		return msg[i+2:]
	}
	return msg
}
