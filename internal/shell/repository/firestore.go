package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/super-employee/gemini-cache-bot/internal/core/domain"
)

// =============================================================================
// Config
// =============================================================================

// FieldNames maps the logical fields to their Firestore field names. All of
// them are configurable so the bot can share documents with other tooling.
type FieldNames struct {
	ActiveCache  string
	UpdatedAt    string
	ExpiresAt    string
	SystemPrompt string
	Inventory    string
}

// DefaultFieldNames returns the conventional field names.
func DefaultFieldNames() FieldNames {
	return FieldNames{
		ActiveCache:  "activeCache",
		UpdatedAt:    "updatedAt",
		ExpiresAt:    "expiresAt",
		SystemPrompt: "prompt",
		Inventory:    "inventory",
	}
}

// Config holds the document paths and field names for the repository.
type Config struct {
	// CacheStatePath is the slash-separated document path holding the
	// active cache state (e.g. "config/cache").
	CacheStatePath string

	// SystemPromptPath is the document path holding the system prompt.
	SystemPromptPath string

	// InventoryPath is the document path holding the inventory data.
	InventoryPath string

	Fields FieldNames
}

// =============================================================================
// FirestoreRepository
// =============================================================================

// FirestoreRepository implements Repository on a Firestore database.
type FirestoreRepository struct {
	client *firestore.Client
	config Config
	logger *slog.Logger
}

// NewFirestoreRepository connects to Firestore using the given service
// account credentials. credentialsJSON may be nil to fall back to application
// default credentials.
func NewFirestoreRepository(ctx context.Context, projectID string, credentialsJSON []byte, cfg Config, logger *slog.Logger) (*FirestoreRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Fields == (FieldNames{}) {
		cfg.Fields = DefaultFieldNames()
	}

	var opts []option.ClientOption
	if len(credentialsJSON) > 0 {
		opts = append(opts, option.WithCredentialsJSON(credentialsJSON))
	}

	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, newError("NewFirestoreRepository", "", errors.Join(ErrConnectionFailed, err))
	}

	return &FirestoreRepository{
		client: client,
		config: cfg,
		logger: logger.With("component", "repository"),
	}, nil
}

// Close releases the Firestore client.
func (r *FirestoreRepository) Close() error {
	return r.client.Close()
}

// Ping verifies Firestore is reachable by reading the state document. A
// missing document still counts as reachable.
func (r *FirestoreRepository) Ping(ctx context.Context) error {
	_, err := r.client.Doc(r.config.CacheStatePath).Get(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return newError("Ping", r.config.CacheStatePath, err)
	}
	return nil
}

// =============================================================================
// Cache State
// =============================================================================

// GetCacheState reads the cache state document.
func (r *FirestoreRepository) GetCacheState(ctx context.Context) (domain.CacheState, error) {
	snap, err := r.client.Doc(r.config.CacheStatePath).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return domain.CacheState{}, domain.ErrStateNotFound
		}
		return domain.CacheState{}, newError("GetCacheState", r.config.CacheStatePath, err)
	}

	state, err := decodeCacheState(snap.Data(), r.config.Fields)
	if err != nil {
		return domain.CacheState{}, newError("GetCacheState", r.config.CacheStatePath, err)
	}
	return state, nil
}

// SetCacheState overwrites the full state document.
func (r *FirestoreRepository) SetCacheState(ctx context.Context, state domain.CacheState) error {
	data := encodeCacheState(state, r.config.Fields)

	if _, err := r.client.Doc(r.config.CacheStatePath).Set(ctx, data); err != nil {
		return newError("SetCacheState", r.config.CacheStatePath, err)
	}
	r.logger.Debug("cache state written",
		"path", r.config.CacheStatePath,
		"expires_at", state.ExpiresAt,
	)
	return nil
}

// UpdateExpiration rewrites only the expiration and update timestamps.
func (r *FirestoreRepository) UpdateExpiration(ctx context.Context, expiresAt, now time.Time) error {
	updates := []firestore.Update{
		{Path: r.config.Fields.ExpiresAt, Value: expiresAt.UTC().Format(time.RFC3339Nano)},
		{Path: r.config.Fields.UpdatedAt, Value: now.UTC().Format(time.RFC3339Nano)},
	}

	if _, err := r.client.Doc(r.config.CacheStatePath).Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return domain.ErrStateNotFound
		}
		return newError("UpdateExpiration", r.config.CacheStatePath, err)
	}
	return nil
}

// =============================================================================
// Prompt and Inventory
// =============================================================================

// GetSystemPrompt reads the system prompt string.
func (r *FirestoreRepository) GetSystemPrompt(ctx context.Context) (string, error) {
	prompt, err := r.getStringField(ctx, "GetSystemPrompt", r.config.SystemPromptPath, r.config.Fields.SystemPrompt, domain.ErrSystemPromptNotFound)
	if err != nil {
		return "", err
	}
	return prompt, nil
}

// GetInventory reads the inventory data string.
func (r *FirestoreRepository) GetInventory(ctx context.Context) (string, error) {
	snap, err := r.client.Doc(r.config.InventoryPath).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", domain.ErrInventoryNotFound
		}
		return "", newError("GetInventory", r.config.InventoryPath, err)
	}

	raw, ok := snap.Data()[r.config.Fields.Inventory]
	if !ok || raw == nil {
		return "", domain.ErrInventoryNotFound
	}
	inventory, ok := raw.(string)
	if !ok {
		// A non-string inventory is a data corruption, not an absence.
		return "", domain.ErrInventoryInvalid
	}
	return inventory, nil
}

func (r *FirestoreRepository) getStringField(ctx context.Context, op, path, field string, notFound error) (string, error) {
	snap, err := r.client.Doc(path).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", notFound
		}
		return "", newError(op, path, err)
	}

	value, err := stringField(snap.Data(), field)
	if err != nil {
		if errors.Is(err, errFieldMissing) {
			return "", notFound
		}
		return "", newError(op, path, err)
	}
	return value, nil
}

// =============================================================================
// Encoding Helpers
// =============================================================================

var errFieldMissing = errors.New("field missing")

// encodeCacheState converts a CacheState into the document representation.
// Timestamps are stored as RFC 3339 strings so the document stays readable
// and compatible with tooling that writes ISO-8601 values.
func encodeCacheState(state domain.CacheState, fields FieldNames) map[string]interface{} {
	return map[string]interface{}{
		fields.ActiveCache: state.ActiveCache,
		fields.UpdatedAt:   state.UpdatedAt.UTC().Format(time.RFC3339Nano),
		fields.ExpiresAt:   state.ExpiresAt.UTC().Format(time.RFC3339Nano),
	}
}

// decodeCacheState parses the document representation back into a CacheState.
// Missing fields decode to zero values; EvaluateCache treats those as a
// refresh signal rather than an error.
func decodeCacheState(data map[string]interface{}, fields FieldNames) (domain.CacheState, error) {
	var state domain.CacheState

	if raw, ok := data[fields.ActiveCache]; ok && raw != nil {
		ref, ok := raw.(string)
		if !ok {
			return domain.CacheState{}, errors.Join(ErrInvalidField, errors.New(fields.ActiveCache+" is not a string"))
		}
		state.ActiveCache = ref
	}

	updatedAt, err := timeField(data, fields.UpdatedAt)
	if err != nil {
		return domain.CacheState{}, err
	}
	state.UpdatedAt = updatedAt

	expiresAt, err := timeField(data, fields.ExpiresAt)
	if err != nil {
		return domain.CacheState{}, err
	}
	state.ExpiresAt = expiresAt

	return state, nil
}

// timeField extracts a timestamp that may be stored either as an RFC 3339
// string or as a native Firestore timestamp.
func timeField(data map[string]interface{}, field string) (time.Time, error) {
	raw, ok := data[field]
	if !ok || raw == nil {
		return time.Time{}, nil
	}
	switch v := raw.(type) {
	case string:
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, errors.Join(ErrInvalidField, err)
		}
		return ts, nil
	case time.Time:
		return v, nil
	default:
		return time.Time{}, errors.Join(ErrInvalidField, errors.New(field+" has unsupported type"))
	}
}

func stringField(data map[string]interface{}, field string) (string, error) {
	raw, ok := data[field]
	if !ok || raw == nil {
		return "", errFieldMissing
	}
	value, ok := raw.(string)
	if !ok {
		return "", errors.Join(ErrInvalidField, errors.New(field+" is not a string"))
	}
	return value, nil
}
