package api

import "time"

// =============================================================================
// Request Types
// =============================================================================

// ChatRequest is the request body for the chat endpoint.
type ChatRequest struct {
	Prompt string `json:"prompt"`
}

// =============================================================================
// Response Types
// =============================================================================

// ChatResponse is the success response for the chat endpoint.
type ChatResponse struct {
	Status   string `json:"status"`
	Response string `json:"response"`
}

// UpdateInventoryResponse is the success response for the inventory refresh
// endpoint.
type UpdateInventoryResponse struct {
	Status      string `json:"status"`
	NewCacheRef string `json:"new_cache_ref"`
}

// ErrorResponse is the error response format.
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the readiness check response.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// ChatEventResponse is one chat event in the usage listing.
type ChatEventResponse struct {
	ID            string    `json:"id"`
	RequestID     string    `json:"request_id"`
	CacheRef      string    `json:"cache_ref"`
	Status        string    `json:"status"`
	PromptChars   int       `json:"prompt_chars"`
	ResponseChars int       `json:"response_chars"`
	ToolCalls     int       `json:"tool_calls"`
	DurationMS    int64     `json:"duration_ms"`
	CreatedAt     time.Time `json:"created_at"`
}

// RefreshEventResponse is one refresh event in the usage listing.
type RefreshEventResponse struct {
	ID         string    `json:"id"`
	CacheRef   string    `json:"cache_ref"`
	Trigger    string    `json:"trigger"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// UsageResponse is the response for the usage listing endpoint.
type UsageResponse struct {
	ChatEvents    []ChatEventResponse    `json:"chat_events"`
	RefreshEvents []RefreshEventResponse `json:"refresh_events"`
	TotalChats    int                    `json:"total_chats"`
	Limit         int                    `json:"limit"`
	Offset        int                    `json:"offset"`
}
