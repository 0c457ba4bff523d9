// Package common defines shared constants, sentinel errors and the transfer
// error taxonomy used across the engine's layers. Callers should use
// errors.Is to match sentinel values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Versioned index errors.
	ErrVersionConflict = errors.New("version conflict")

	// Share errors (invalid or malformed access string).
	ErrInvalidAccessString = errors.New("invalid access string")
	ErrShareRevoked        = errors.New("share revoked")

	// Transport errors.
	ErrArticleNotFound   = errors.New("article not found")
	ErrNoServerAvailable = errors.New("no server available")

	// Codec errors.
	ErrIntegrity      = errors.New("integrity check failed")
	ErrIncompressible = errors.New("data is incompressible")
)
