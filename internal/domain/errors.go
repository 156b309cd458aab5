package domain

import "errors"

// Error kinds shared across the core. Loaders and codecs fail with the most
// specific kind; the HTTP boundary translates kinds into public error codes.
var (
	// ErrNotFound signals that a referenced entity is missing, expired or
	// already consumed. For single-use artifacts this usually means replay.
	ErrNotFound = errors.New("not found")

	// ErrInvalidValue signals malformed input such as a non-UUID identifier
	// or a token that fails structural checks.
	ErrInvalidValue = errors.New("invalid value")

	// ErrEncryption signals a codec-level crypto failure. Its message must
	// never be surfaced to clients.
	ErrEncryption = errors.New("encryption failure")

	// ErrAuth signals failed authentication or authorization.
	ErrAuth = errors.New("authentication failure")

	// ErrConflict signals a uniqueness violation such as a taken username.
	ErrConflict = errors.New("conflict")
)
