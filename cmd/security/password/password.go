package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

var (
	// ErrInvalidHash is returned for malformed or unsupported hash strings.
	ErrInvalidHash = errors.New("invalid argon2id hash")

	// ErrPasswordTooShort is returned when a password is below the minimum length.
	ErrPasswordTooShort = errors.New("password too short")

	// ErrPasswordTooLong is returned when a password exceeds the maximum length.
	ErrPasswordTooLong = errors.New("password too long")
)

const (
	argon2Version = 19 // argon2.Version (0x13)

	minPasswordLength = 8
	maxPasswordLength = 256
)

// Params controls Argon2id hashing cost. MemoryKiB is in KiB as required by
// argon2.IDKey.
type Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams returns a baseline suitable for interactive logins.
func DefaultParams() Params {
	return Params{
		MemoryKiB:   64 * 1024, // 64 MiB
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// ParamsFromEnv returns DefaultParams with the cost factors optionally
// overridden by environment variables:
//
//   - WARDEN_ARGON2_MEMORY_KIB
//   - WARDEN_ARGON2_ITERATIONS
//   - WARDEN_ARGON2_PARALLELISM
//
// Invalid values fall back to the defaults.
func ParamsFromEnv() Params {
	p := DefaultParams()

	if v := strings.TrimSpace(os.Getenv("WARDEN_ARGON2_MEMORY_KIB")); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil && n >= 8*1024 {
			p.MemoryKiB = uint32(n)
		}
	}
	if v := strings.TrimSpace(os.Getenv("WARDEN_ARGON2_ITERATIONS")); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil && n >= 1 {
			p.Iterations = uint32(n)
		}
	}
	if v := strings.TrimSpace(os.Getenv("WARDEN_ARGON2_PARALLELISM")); v != "" {
		if n, err := strconv.ParseUint(v, 10, 8); err == nil && n >= 1 && n <= 8 {
			p.Parallelism = uint8(n)
		}
	}

	return p
}

// Hash hashes a password and returns a PHC-encoded string:
//
//	$argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<key_b64>
func Hash(plain string, p Params) (string, error) {
	if len(plain) < minPasswordLength {
		return "", ErrPasswordTooShort
	}
	if len(plain) > maxPasswordLength {
		return "", ErrPasswordTooLong
	}

	salt := make([]byte, p.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}

	key := argon2.IDKey([]byte(plain), salt, p.Iterations, p.MemoryKiB, p.Parallelism, p.KeyLength)

	b64 := base64.RawStdEncoding
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Version, p.MemoryKiB, p.Iterations, p.Parallelism,
		b64.EncodeToString(salt), b64.EncodeToString(key),
	), nil
}

// Verify checks plain against an encoded hash. Returns (true, nil) on match,
// (false, nil) on mismatch, and (false, ErrInvalidHash) for malformed or
// pathologically expensive hash strings.
func Verify(plain, encoded string) (bool, error) {
	params, salt, expected, err := decode(encoded)
	if err != nil {
		return false, err
	}

	// Anti-DoS boundary: refuse hashes whose cost wildly exceeds anything we
	// would ever have produced.
	if params.MemoryKiB > 1024*1024 || params.Iterations > 64 || params.Parallelism > 16 {
		return false, ErrInvalidHash
	}

	key := argon2.IDKey([]byte(plain), salt, params.Iterations, params.MemoryKiB, params.Parallelism, uint32(len(expected)))
	return subtle.ConstantTimeCompare(key, expected) == 1, nil
}

func decode(encoded string) (Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Params{}, nil, nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2Version {
		return Params{}, nil, nil, ErrInvalidHash
	}

	var p Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.MemoryKiB, &p.Iterations, &p.Parallelism); err != nil {
		return Params{}, nil, nil, ErrInvalidHash
	}

	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil || len(salt) < 8 {
		return Params{}, nil, nil, ErrInvalidHash
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil || len(key) < 16 || len(key) > 128 {
		return Params{}, nil, nil, ErrInvalidHash
	}

	return p, salt, key, nil
}
