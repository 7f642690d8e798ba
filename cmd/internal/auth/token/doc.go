// Package token signs and verifies warden's access and refresh tokens.
//
// Both token kinds are RS256 JWTs bound to a fixed issuer and audience and to
// the owning user's email as subject. Access tokens carry only the user id;
// refresh tokens additionally carry the id of the server-side refresh record
// they redeem. Signing is pure local computation and never fails once the
// codec holds a parsed key pair; constructing a codec without valid PEM keys
// is an error the caller must treat as fatal.
package token
