package token

import (
	"errors"
	"os"
	"strings"
	"time"
)

// Config defines the signing parameters for the codec.
//
// PrivateKeyPEM and PublicKeyPEM hold the RSA key pair in PEM form. They are
// required: the service cannot authenticate anything without them.
type Config struct {
	// Issuer is set in the "iss" claim and enforced on verification.
	Issuer string

	// Audience is set in the "aud" claim and enforced on verification.
	Audience string

	// AccessTTL is the lifetime of access tokens.
	AccessTTL time.Duration

	// RefreshTTL is the default lifetime of a session's first refresh token.
	// Rotated refresh tokens inherit the stored record's expiry instead.
	RefreshTTL time.Duration

	PrivateKeyPEM []byte
	PublicKeyPEM  []byte
}

// ErrConfig is returned for invalid or incomplete codec configuration.
var ErrConfig = errors.New("invalid token config")

// DefaultConfig returns the token defaults. Key material is never defaulted.
func DefaultConfig() Config {
	return Config{
		Issuer:     "warden",
		Audience:   "warden-api",
		AccessTTL:  10 * time.Minute,
		RefreshTTL: 24 * time.Hour,
	}
}

// LoadConfigFromEnv loads codec configuration from environment variables.
//
// Required:
//   - WARDEN_JWT_PRIVATE_KEY_FILE
//   - WARDEN_JWT_PUBLIC_KEY_FILE
//
// Optional:
//   - WARDEN_JWT_ISSUER
//   - WARDEN_JWT_AUDIENCE
//   - WARDEN_JWT_ACCESS_TTL
//   - WARDEN_JWT_REFRESH_TTL
//
// Missing or unreadable key files are an error; the caller is expected to
// refuse to start.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("WARDEN_JWT_ISSUER")); v != "" {
		cfg.Issuer = v
	}
	if v := strings.TrimSpace(os.Getenv("WARDEN_JWT_AUDIENCE")); v != "" {
		cfg.Audience = v
	}
	if v := strings.TrimSpace(os.Getenv("WARDEN_JWT_ACCESS_TTL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.AccessTTL = d
	}
	if v := strings.TrimSpace(os.Getenv("WARDEN_JWT_REFRESH_TTL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTTL = d
	}

	privPath := strings.TrimSpace(os.Getenv("WARDEN_JWT_PRIVATE_KEY_FILE"))
	pubPath := strings.TrimSpace(os.Getenv("WARDEN_JWT_PUBLIC_KEY_FILE"))
	if privPath == "" || pubPath == "" {
		return Config{}, ErrConfig
	}

	priv, err := os.ReadFile(privPath)
	if err != nil {
		return Config{}, err
	}
	pub, err := os.ReadFile(pubPath)
	if err != nil {
		return Config{}, err
	}
	cfg.PrivateKeyPEM = priv
	cfg.PublicKeyPEM = pub

	return cfg, nil
}
