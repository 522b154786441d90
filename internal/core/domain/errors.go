package domain

import "errors"

// =============================================================================
// Sentinel Errors
// =============================================================================

var (
	// ErrMissingCacheRef is returned when the state document has no active
	// cache reference.
	ErrMissingCacheRef = errors.New("cache state has no active cache reference")

	// ErrMissingExpiration is returned when the state document has no
	// expiration timestamp.
	ErrMissingExpiration = errors.New("cache state has no expiration timestamp")

	// ErrStateNotFound is returned when the Firestore state document does
	// not exist yet.
	ErrStateNotFound = errors.New("cache state document not found")

	// ErrSystemPromptNotFound is returned when the system prompt document
	// or field is missing.
	ErrSystemPromptNotFound = errors.New("system prompt not found")

	// ErrInventoryNotFound is returned when the inventory document or field
	// is missing.
	ErrInventoryNotFound = errors.New("inventory data not found")

	// ErrInventoryInvalid is returned when the inventory field exists but
	// is not a string.
	ErrInventoryInvalid = errors.New("inventory data is not a string")
)
