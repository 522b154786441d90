// Package gemini wraps the Gemini API for context-cache management and
// cache-grounded content generation.
package gemini

import (
	"context"
	"errors"
	"time"
)

// =============================================================================
// Client Interface
// =============================================================================

// FunctionCall is a tool invocation requested by the model.
type FunctionCall struct {
	Name string
	Args map[string]any
}

// FunctionHandler executes a tool invocation and returns the payload fed
// back to the model as the function response.
type FunctionHandler func(ctx context.Context, call FunctionCall) (map[string]any, error)

// CacheInput is everything baked into a new context cache. Tools are part of
// the cache so per-request calls do not re-send declarations.
type CacheInput struct {
	SystemInstruction string
	Contents          string
	TTL               time.Duration
}

// Client is the Gemini surface the rest of the bot depends on.
type Client interface {
	// CreateCache creates a context cache and returns its resource name.
	CreateCache(ctx context.Context, input CacheInput) (string, error)

	// ExtendCache sets a new TTL (from now) on an existing cache.
	ExtendCache(ctx context.Context, cacheRef string, ttl time.Duration) error

	// Generate answers a prompt using the given cache. When the model
	// requests a tool invocation, onCall is invoked and the conversation
	// continues with its result until the model produces text.
	Generate(ctx context.Context, cacheRef, prompt string, onCall FunctionHandler) (string, error)

	// Close releases the underlying client.
	Close() error
}

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrCreateFailed is returned when cache creation fails.
	ErrCreateFailed = errors.New("gemini cache creation failed")

	// ErrCacheNotFound is returned when the referenced cache no longer
	// exists on the Gemini side.
	ErrCacheNotFound = errors.New("gemini cache not found")

	// ErrRateLimited is returned on HTTP 429. Callers retry with backoff.
	ErrRateLimited = errors.New("gemini rate limit exceeded")

	// ErrEmptyResponse is returned when the model produces no candidates,
	// typically because the response was safety-blocked.
	ErrEmptyResponse = errors.New("gemini returned an empty or blocked response")

	// ErrTooManyToolRounds is returned when the function-calling loop does
	// not converge to a text answer.
	ErrTooManyToolRounds = errors.New("gemini tool loop exceeded round limit")

	// ErrInvalidTTL is returned for non-positive TTL values.
	ErrInvalidTTL = errors.New("cache ttl must be positive")
)
