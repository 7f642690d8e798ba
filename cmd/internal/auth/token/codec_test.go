package token

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"
	"time"
)

func testConfig(t *testing.T) Config {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey: %v", err)
	}

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	cfg := DefaultConfig()
	cfg.PrivateKeyPEM = privPEM
	cfg.PublicKeyPEM = pubPEM
	return cfg
}

func mustCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec(testConfig(t))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return c
}

func TestAccess_RoundTrip(t *testing.T) {
	c := mustCodec(t)

	tok, err := c.SignAccess("user-1", "a@example.com")
	if err != nil {
		t.Fatalf("SignAccess: %v", err)
	}

	claims, err := c.VerifyAccess(tok, "a@example.com")
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Fatalf("userId = %q, want user-1", claims.UserID)
	}
}

func TestAccess_RejectsWrongSubject(t *testing.T) {
	c := mustCodec(t)

	tok, err := c.SignAccess("user-1", "a@example.com")
	if err != nil {
		t.Fatalf("SignAccess: %v", err)
	}

	if _, err := c.VerifyAccess(tok, "b@example.com"); err == nil {
		t.Fatalf("expected subject mismatch to fail verification")
	}
}

func TestAccess_RejectsTamperedToken(t *testing.T) {
	c := mustCodec(t)

	tok, err := c.SignAccess("user-1", "a@example.com")
	if err != nil {
		t.Fatalf("SignAccess: %v", err)
	}

	// Flip one byte in the signature segment.
	i := strings.LastIndex(tok, ".") + 1
	b := []byte(tok)
	if b[i] == 'A' {
		b[i] = 'B'
	} else {
		b[i] = 'A'
	}

	if _, err := c.VerifyAccess(string(b), "a@example.com"); err == nil {
		t.Fatalf("expected tampered token to fail verification")
	}
}

func TestRefresh_RoundTripAndExpiry(t *testing.T) {
	c := mustCodec(t)

	exp := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	tok, err := c.SignRefresh("user-1", "rec-1", "a@example.com", exp)
	if err != nil {
		t.Fatalf("SignRefresh: %v", err)
	}

	claims, err := c.VerifyRefresh(tok, "a@example.com")
	if err != nil {
		t.Fatalf("VerifyRefresh: %v", err)
	}
	if claims.RefreshTokenID != "rec-1" {
		t.Fatalf("refreshTokenId = %q, want rec-1", claims.RefreshTokenID)
	}
	if !claims.ExpiresAt.Time.Equal(exp) {
		t.Fatalf("exp = %v, want %v", claims.ExpiresAt.Time, exp)
	}
}

func TestRefresh_ExpiredIsClassified(t *testing.T) {
	c := mustCodec(t)

	tok, err := c.SignRefresh("user-1", "rec-1", "a@example.com", time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("SignRefresh: %v", err)
	}

	_, err = c.VerifyRefresh(tok, "a@example.com")
	if err == nil {
		t.Fatalf("expected expired token to fail verification")
	}
	if !IsExpired(err) {
		t.Fatalf("IsExpired(%v) = false, want true", err)
	}

	// A wrong-subject failure must not be classified as expiry.
	tok2, err := c.SignRefresh("user-1", "rec-1", "a@example.com", time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("SignRefresh: %v", err)
	}
	_, err = c.VerifyRefresh(tok2, "b@example.com")
	if err == nil || IsExpired(err) {
		t.Fatalf("subject mismatch misclassified: %v", err)
	}
}

func TestDecodeUnverified(t *testing.T) {
	c := mustCodec(t)

	tok, err := c.SignRefresh("user-1", "rec-1", "a@example.com", time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("SignRefresh: %v", err)
	}

	// Expired tokens still decode: logout must work with them.
	claims, err := c.DecodeUnverified(tok)
	if err != nil {
		t.Fatalf("DecodeUnverified: %v", err)
	}
	if claims.UserID != "user-1" || claims.RefreshTokenID != "rec-1" {
		t.Fatalf("unexpected payload: %+v", claims)
	}

	if _, err := c.DecodeUnverified("not-a-token"); err == nil {
		t.Fatalf("expected garbage to fail decoding")
	}
}

func TestNewCodec_RequiresKeys(t *testing.T) {
	cfg := DefaultConfig()
	if _, err := NewCodec(cfg); err == nil {
		t.Fatalf("expected NewCodec without keys to fail")
	}
}
