package token

import (
	"crypto/rsa"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token fails signature or claim checks.
	ErrInvalidToken = errors.New("invalid token")

	// ErrMalformedToken is returned when a token cannot be parsed at all, or
	// its payload is missing a required claim.
	ErrMalformedToken = errors.New("malformed token")
)

// AccessClaims is the payload of an access token.
type AccessClaims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a refresh token. RefreshTokenID names the
// server-side record whose existence proves the token has not been redeemed.
type RefreshClaims struct {
	UserID         string `json:"userId"`
	RefreshTokenID string `json:"refreshTokenId"`
	jwt.RegisteredClaims
}

// Codec signs and verifies warden tokens with a fixed RS256 key pair.
//
// A Codec is immutable after construction and safe for concurrent use.
type Codec struct {
	cfg  Config
	priv *rsa.PrivateKey
	pub  *rsa.PublicKey
	now  func() time.Time
}

// NewCodec parses the configured PEM key pair and returns a ready codec.
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, ErrConfig
	}
	if cfg.Issuer == "" || cfg.Audience == "" {
		return nil, ErrConfig
	}

	priv, err := jwt.ParseRSAPrivateKeyFromPEM(cfg.PrivateKeyPEM)
	if err != nil {
		return nil, err
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM(cfg.PublicKeyPEM)
	if err != nil {
		return nil, err
	}

	return &Codec{cfg: cfg, priv: priv, pub: pub, now: time.Now}, nil
}

// SignAccess issues a short-lived access token for userID, bound to the
// subject email used at login.
func (c *Codec) SignAccess(userID, subjectEmail string) (string, error) {
	now := c.now().UTC()
	claims := AccessClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.cfg.Issuer,
			Audience:  jwt.ClaimStrings{c.cfg.Audience},
			Subject:   subjectEmail,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.cfg.AccessTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.priv)
}

// SignRefresh issues a refresh token redeeming the record refreshTokenID.
//
// A zero expiresAt means "first token of a session" and applies the default
// refresh TTL. Otherwise the token expires exactly at expiresAt, so rotation
// never extends a session's lifetime.
func (c *Codec) SignRefresh(userID, refreshTokenID, subjectEmail string, expiresAt time.Time) (string, error) {
	now := c.now().UTC()
	if expiresAt.IsZero() {
		expiresAt = now.Add(c.cfg.RefreshTTL)
	}
	claims := RefreshClaims{
		UserID:         userID,
		RefreshTokenID: refreshTokenID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.cfg.Issuer,
			Audience:  jwt.ClaimStrings{c.cfg.Audience},
			Subject:   subjectEmail,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.priv)
}

// DefaultRefreshExpiry returns now + the default refresh TTL. Used when
// creating the server-side record for a session's first refresh token.
func (c *Codec) DefaultRefreshExpiry() time.Time {
	return c.now().UTC().Add(c.cfg.RefreshTTL)
}

// VerifyAccess checks signature, issuer, audience and expiry of an access
// token. When expectedSubject is non-empty the "sub" claim must match it;
// an empty hint skips subject binding, mirroring the signing-time contract
// where subject is supplied by the caller's protocol.
func (c *Codec) VerifyAccess(tokenString, expectedSubject string) (AccessClaims, error) {
	claims := AccessClaims{}
	if err := c.verify(tokenString, &claims, expectedSubject); err != nil {
		return AccessClaims{}, err
	}
	if claims.UserID == "" {
		return AccessClaims{}, ErrMalformedToken
	}
	return claims, nil
}

// VerifyRefresh checks a refresh token the same way VerifyAccess does and
// additionally requires the refreshTokenId claim.
func (c *Codec) VerifyRefresh(tokenString, expectedSubject string) (RefreshClaims, error) {
	claims := RefreshClaims{}
	if err := c.verify(tokenString, &claims, expectedSubject); err != nil {
		return RefreshClaims{}, err
	}
	if claims.UserID == "" || claims.RefreshTokenID == "" {
		return RefreshClaims{}, ErrMalformedToken
	}
	return claims, nil
}

func (c *Codec) verify(tokenString string, claims jwt.Claims, expectedSubject string) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(c.cfg.Issuer),
		jwt.WithAudience(c.cfg.Audience),
		jwt.WithExpirationRequired(),
	}
	if expectedSubject != "" {
		opts = append(opts, jwt.WithSubject(expectedSubject))
	}

	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return c.pub, nil
	}, opts...)
	if err != nil {
		return err
	}
	if !parsed.Valid {
		return ErrInvalidToken
	}
	return nil
}

// DecodeUnverified parses a refresh token's payload without checking the
// signature or expiry. It exists solely to extract the record id and user id
// for the database lookup that precedes verification, and must never be used
// as an authorization decision on its own.
func (c *Codec) DecodeUnverified(tokenString string) (RefreshClaims, error) {
	claims := RefreshClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, &claims); err != nil {
		return RefreshClaims{}, ErrMalformedToken
	}
	return claims, nil
}

// IsExpired reports whether a verification error means the token is for a
// real, recognized session whose time window lapsed, as opposed to a token
// that fails signature or claim checks. The distinction drives revocation
// behavior on refresh.
func IsExpired(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired)
}
