package store

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrConnectionFailed is returned when database connection fails.
	ErrConnectionFailed = errors.New("database connection failed")

	// ErrMigrationFailed is returned when database migration fails.
	ErrMigrationFailed = errors.New("database migration failed")

	// ErrInsertFailed is returned when an event insert fails.
	ErrInsertFailed = errors.New("event insert failed")

	// ErrQueryFailed is returned when an event query fails.
	ErrQueryFailed = errors.New("event query failed")
)

// StoreError wraps errors with the operation and entity that produced them.
type StoreError struct {
	Op      string // Operation that failed (e.g., "RecordChatEvent")
	Entity  string // Entity type (e.g., "chat_event")
	Message string
	Err     error
}

func (e *StoreError) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Entity, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError.
func NewStoreError(op, entity, message string, err error) *StoreError {
	return &StoreError{
		Op:      op,
		Entity:  entity,
		Message: message,
		Err:     err,
	}
}
