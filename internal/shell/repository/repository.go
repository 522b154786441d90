// Package repository provides Firestore-backed persistence for the cache
// state, system prompt, and inventory documents.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/super-employee/gemini-cache-bot/internal/core/domain"
)

// =============================================================================
// Repository Interface
// =============================================================================

// Repository defines access to the documents the bot depends on.
type Repository interface {
	// GetCacheState reads the cache state document. Returns
	// domain.ErrStateNotFound if the document does not exist.
	GetCacheState(ctx context.Context) (domain.CacheState, error)

	// SetCacheState overwrites the full state document (set, not merge).
	SetCacheState(ctx context.Context, state domain.CacheState) error

	// UpdateExpiration rewrites only the expiration and update timestamps.
	// Fails with domain.ErrStateNotFound if the document does not exist.
	UpdateExpiration(ctx context.Context, expiresAt, now time.Time) error

	// GetSystemPrompt reads the system prompt string.
	GetSystemPrompt(ctx context.Context) (string, error)

	// GetInventory reads the inventory data string.
	GetInventory(ctx context.Context) (string, error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying client.
	Close() error
}

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrConnectionFailed is returned when the Firestore client cannot be
	// created or reached.
	ErrConnectionFailed = errors.New("firestore connection failed")

	// ErrInvalidField is returned when a document field has an unexpected
	// type or format.
	ErrInvalidField = errors.New("invalid document field")
)

// RepositoryError wraps Firestore errors with the operation and document
// path that produced them.
type RepositoryError struct {
	Op   string // Operation that failed (e.g., "GetCacheState")
	Path string // Document path
	Err  error
}

func (e *RepositoryError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

func newError(op, path string, err error) *RepositoryError {
	return &RepositoryError{Op: op, Path: path, Err: err}
}
