// Package password hashes and verifies login passwords with Argon2id.
//
// Hashes use the PHC string format so the cost parameters travel with the
// hash and can be raised without invalidating stored credentials. The rest of
// the service treats this package as an opaque hash+compare capability.
package password
