// Package domain contains the core types and pure decision logic for the
// cache bot. This package performs NO I/O - the Firestore, Gemini, and HTTP
// shells depend on it, never the other way around.
package domain

import (
	"time"
)

// =============================================================================
// Cache State
// =============================================================================

// CacheState is the authoritative record of the active Gemini context cache,
// as stored in the Firestore configuration document.
type CacheState struct {
	// ActiveCache is the Gemini cache resource name (e.g.
	// "cachedContents/7449974130461376512").
	ActiveCache string

	// UpdatedAt is when the state document was last written.
	UpdatedAt time.Time

	// ExpiresAt is when the cache stops being usable. Expiry decisions are
	// driven by this field alone, never by local bookkeeping.
	ExpiresAt time.Time
}

// Validate reports whether the state is complete enough to be evaluated.
func (s CacheState) Validate() error {
	if s.ActiveCache == "" {
		return ErrMissingCacheRef
	}
	if s.ExpiresAt.IsZero() {
		return ErrMissingExpiration
	}
	return nil
}

// Remaining returns the time left until the cache expires. A non-positive
// value means the cache is already expired.
func (s CacheState) Remaining(now time.Time) time.Duration {
	return s.ExpiresAt.Sub(now)
}

// NewCacheState builds the state written after a refresh: the new cache
// reference with a fresh update timestamp and expiry ttl from now.
func NewCacheState(cacheRef string, now time.Time, ttl time.Duration) CacheState {
	return CacheState{
		ActiveCache: cacheRef,
		UpdatedAt:   now.UTC(),
		ExpiresAt:   now.UTC().Add(ttl),
	}
}

// =============================================================================
// Cache Decisions (Pure Functions)
// =============================================================================

// CacheDecision is the outcome of evaluating the stored cache state.
type CacheDecision int

const (
	// DecisionReuse means the cache is valid and should be used as-is.
	DecisionReuse CacheDecision = iota

	// DecisionExtend means the cache is valid but close enough to expiry
	// that its TTL should be extended before use.
	DecisionExtend

	// DecisionRefresh means the cache is missing, malformed, or expired and
	// a new one must be created.
	DecisionRefresh
)

// String returns a human-readable decision name for logging.
func (d CacheDecision) String() string {
	switch d {
	case DecisionReuse:
		return "reuse"
	case DecisionExtend:
		return "extend"
	case DecisionRefresh:
		return "refresh"
	default:
		return "unknown"
	}
}

// EvaluateCache decides what to do with the stored cache state.
//
// Rules, in order:
//   - missing cache reference or expiry -> refresh
//   - expiresAt at or before now -> refresh
//   - expiresAt within threshold of now -> extend
//   - otherwise -> reuse
//
// A zero threshold disables the extension window entirely.
func EvaluateCache(state CacheState, now time.Time, threshold time.Duration) CacheDecision {
	if state.Validate() != nil {
		return DecisionRefresh
	}
	remaining := state.Remaining(now)
	if remaining <= 0 {
		return DecisionRefresh
	}
	if threshold > 0 && remaining <= threshold {
		return DecisionExtend
	}
	return DecisionReuse
}

// ExtensionDeadline returns the new expiry written to Firestore when the
// cache TTL is extended from now.
func ExtensionDeadline(now time.Time, extension time.Duration) time.Time {
	return now.UTC().Add(extension)
}

// geminiTTLMargin keeps the Gemini-side TTL strictly ahead of the Firestore
// expiry so the state document never points at a cache Gemini has already
// evicted.
const geminiTTLMargin = 10 * time.Second

// GeminiTTL converts a Firestore expiry into the TTL requested from Gemini.
// Returns 0 when the expiry is already in the past, in which case the Gemini
// update should be skipped.
func GeminiTTL(expiresAt, now time.Time) time.Duration {
	remaining := expiresAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return remaining + geminiTTLMargin
}
