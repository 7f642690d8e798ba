// Package authapi exposes the authentication endpoints over HTTP and maps
// session/identity errors onto status codes. Error bodies use a stable
// {"error":{"code","message"}} envelope; 401 messages stay generic so the
// API does not become a credential oracle.
package authapi
