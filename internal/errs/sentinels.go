// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist, or the
	// access token did not match. The two cases are deliberately
	// indistinguishable so that probing cannot reveal snippet existence.
	ErrNotFound = errors.New("not found")

	// ErrExpired indicates the snippet's expires_at has passed.
	// Handlers present it as not-found.
	ErrExpired = errors.New("expired")

	// ErrConsumed indicates a one-time or max-views snippet was exhausted.
	// Handlers present it as not-found.
	ErrConsumed = errors.New("consumed")

	// ErrPasswordRequired is a protocol branch, not a failure: the caller
	// must re-submit with the snippet password.
	ErrPasswordRequired = errors.New("password required")

	// ErrInvalidPassword indicates a failed password check.
	ErrInvalidPassword = errors.New("invalid password")

	// ErrDecryptionFailed indicates authenticated decryption failed even
	// though the password hash matched. Presented to callers exactly like
	// an invalid password.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrValidation indicates rejected input (bad language tag, empty
	// content, out-of-range max_views, malformed expiration).
	ErrValidation = errors.New("validation failed")

	// ErrRateLimited indicates a comment/reaction window was exhausted.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation.
	ErrAlreadyExists = errors.New("already exists")
)
