package domain

import "time"

// =============================================================================
// Usage Events
// =============================================================================

// ChatStatus classifies the outcome of a chat request.
type ChatStatus string

const (
	ChatStatusSuccess     ChatStatus = "success"
	ChatStatusRateLimited ChatStatus = "rate_limited"
	ChatStatusError       ChatStatus = "error"
)

// ChatEvent records a single chat interaction for local usage accounting.
// Recording is best-effort and never alters the response to the caller.
type ChatEvent struct {
	ID            string
	RequestID     string
	CacheRef      string
	Status        ChatStatus
	PromptChars   int
	ResponseChars int
	ToolCalls     int
	Duration      time.Duration
	ErrorMessage  string
	CreatedAt     time.Time
}

// RefreshTrigger identifies what caused a cache refresh.
type RefreshTrigger string

const (
	// TriggerManual is an explicit refresh via the update_inventory endpoint.
	TriggerManual RefreshTrigger = "manual"

	// TriggerExpired is a refresh forced by an expired or missing cache on
	// the request path.
	TriggerExpired RefreshTrigger = "expired"

	// TriggerScheduled is a refresh performed by the background refresher.
	TriggerScheduled RefreshTrigger = "scheduled"
)

// RefreshEvent records a cache refresh for local usage accounting.
type RefreshEvent struct {
	ID        string
	CacheRef  string
	Trigger   RefreshTrigger
	Duration  time.Duration
	CreatedAt time.Time
}
