package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/super-employee/gemini-cache-bot/internal/core/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "failed to open database", ErrConnectionFailed)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// =============================================================================
// Row Types
// =============================================================================

type chatEventRow struct {
	ID            string    `db:"id"`
	RequestID     string    `db:"request_id"`
	CacheRef      string    `db:"cache_ref"`
	Status        string    `db:"status"`
	PromptChars   int       `db:"prompt_chars"`
	ResponseChars int       `db:"response_chars"`
	ToolCalls     int       `db:"tool_calls"`
	DurationMS    int64     `db:"duration_ms"`
	ErrorMessage  string    `db:"error_message"`
	CreatedAt     time.Time `db:"created_at"`
}

func (r chatEventRow) toDomain() domain.ChatEvent {
	return domain.ChatEvent{
		ID:            r.ID,
		RequestID:     r.RequestID,
		CacheRef:      r.CacheRef,
		Status:        domain.ChatStatus(r.Status),
		PromptChars:   r.PromptChars,
		ResponseChars: r.ResponseChars,
		ToolCalls:     r.ToolCalls,
		Duration:      time.Duration(r.DurationMS) * time.Millisecond,
		ErrorMessage:  r.ErrorMessage,
		CreatedAt:     r.CreatedAt,
	}
}

type refreshEventRow struct {
	ID          string    `db:"id"`
	CacheRef    string    `db:"cache_ref"`
	TriggerType string    `db:"trigger_type"`
	DurationMS  int64     `db:"duration_ms"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r refreshEventRow) toDomain() domain.RefreshEvent {
	return domain.RefreshEvent{
		ID:        r.ID,
		CacheRef:  r.CacheRef,
		Trigger:   domain.RefreshTrigger(r.TriggerType),
		Duration:  time.Duration(r.DurationMS) * time.Millisecond,
		CreatedAt: r.CreatedAt,
	}
}

// =============================================================================
// Chat Event Operations
// =============================================================================

// RecordChatEvent inserts a chat event.
func (s *SQLiteStore) RecordChatEvent(ctx context.Context, event *domain.ChatEvent) error {
	row := chatEventRow{
		ID:            event.ID,
		RequestID:     event.RequestID,
		CacheRef:      event.CacheRef,
		Status:        string(event.Status),
		PromptChars:   event.PromptChars,
		ResponseChars: event.ResponseChars,
		ToolCalls:     event.ToolCalls,
		DurationMS:    event.Duration.Milliseconds(),
		ErrorMessage:  event.ErrorMessage,
		CreatedAt:     event.CreatedAt.UTC(),
	}

	query := `INSERT INTO chat_events (
		id, request_id, cache_ref, status, prompt_chars, response_chars,
		tool_calls, duration_ms, error_message, created_at
	) VALUES (
		:id, :request_id, :cache_ref, :status, :prompt_chars, :response_chars,
		:tool_calls, :duration_ms, :error_message, :created_at
	)`

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return NewStoreError("RecordChatEvent", "chat_event", err.Error(), ErrInsertFailed)
	}
	return nil
}

// ListChatEvents returns chat events, newest first.
func (s *SQLiteStore) ListChatEvents(ctx context.Context, opts ListOptions) ([]domain.ChatEvent, error) {
	opts = opts.Normalize()

	var rows []chatEventRow
	query := `SELECT id, request_id, cache_ref, status, prompt_chars, response_chars,
		tool_calls, duration_ms, error_message, created_at
		FROM chat_events ORDER BY created_at DESC LIMIT ? OFFSET ?`

	if err := s.db.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset); err != nil {
		return nil, NewStoreError("ListChatEvents", "chat_event", err.Error(), ErrQueryFailed)
	}

	events := make([]domain.ChatEvent, 0, len(rows))
	for _, r := range rows {
		events = append(events, r.toDomain())
	}
	return events, nil
}

// CountChatEvents counts chat events, optionally filtered by status. An
// empty status counts everything.
func (s *SQLiteStore) CountChatEvents(ctx context.Context, status domain.ChatStatus) (int, error) {
	var count int
	var err error
	if status == "" {
		err = s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM chat_events`)
	} else {
		err = s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM chat_events WHERE status = ?`, string(status))
	}
	if err != nil {
		return 0, NewStoreError("CountChatEvents", "chat_event", err.Error(), ErrQueryFailed)
	}
	return count, nil
}

// =============================================================================
// Refresh Event Operations
// =============================================================================

// RecordRefreshEvent inserts a refresh event.
func (s *SQLiteStore) RecordRefreshEvent(ctx context.Context, event *domain.RefreshEvent) error {
	row := refreshEventRow{
		ID:          event.ID,
		CacheRef:    event.CacheRef,
		TriggerType: string(event.Trigger),
		DurationMS:  event.Duration.Milliseconds(),
		CreatedAt:   event.CreatedAt.UTC(),
	}

	query := `INSERT INTO refresh_events (id, cache_ref, trigger_type, duration_ms, created_at)
		VALUES (:id, :cache_ref, :trigger_type, :duration_ms, :created_at)`

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return NewStoreError("RecordRefreshEvent", "refresh_event", err.Error(), ErrInsertFailed)
	}
	return nil
}

// ListRefreshEvents returns refresh events, newest first.
func (s *SQLiteStore) ListRefreshEvents(ctx context.Context, opts ListOptions) ([]domain.RefreshEvent, error) {
	opts = opts.Normalize()

	var rows []refreshEventRow
	query := `SELECT id, cache_ref, trigger_type, duration_ms, created_at
		FROM refresh_events ORDER BY created_at DESC LIMIT ? OFFSET ?`

	if err := s.db.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset); err != nil {
		return nil, NewStoreError("ListRefreshEvents", "refresh_event", err.Error(), ErrQueryFailed)
	}

	events := make([]domain.RefreshEvent, 0, len(rows))
	for _, r := range rows {
		events = append(events, r.toDomain())
	}
	return events, nil
}
