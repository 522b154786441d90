// Package store provides local persistence for usage events.
package store

import (
	"context"

	"github.com/super-employee/gemini-cache-bot/internal/core/domain"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for usage accounting. All writes
// are best-effort from the caller's perspective: a failed insert is logged
// and never fails the request that produced it.
type Store interface {
	// Chat event operations
	RecordChatEvent(ctx context.Context, event *domain.ChatEvent) error
	ListChatEvents(ctx context.Context, opts ListOptions) ([]domain.ChatEvent, error)
	CountChatEvents(ctx context.Context, status domain.ChatStatus) (int, error)

	// Refresh event operations
	RecordRefreshEvent(ctx context.Context, event *domain.RefreshEvent) error
	ListRefreshEvents(ctx context.Context, opts ListOptions) ([]domain.RefreshEvent, error)

	// Ping verifies the database is reachable.
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination options for event listings.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:  50,
		Offset: 0,
	}
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 50
	}
	if o.Limit > 500 {
		o.Limit = 500
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
