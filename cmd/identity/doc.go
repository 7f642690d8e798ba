// Package identity owns the user account model and its persistence.
//
// Accounts are keyed by a normalized email. The package exposes sentinel
// error kinds (ErrNotFound, ErrConflict, ErrInvalidInput) so callers can map
// failures to API status codes without inspecting strings.
package identity
