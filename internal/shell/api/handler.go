// Package api provides the HTTP handlers for the cache bot.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/super-employee/gemini-cache-bot/internal/core/domain"
	"github.com/super-employee/gemini-cache-bot/internal/shell/cache"
	"github.com/super-employee/gemini-cache-bot/internal/shell/metrics"
	"github.com/super-employee/gemini-cache-bot/internal/shell/store"
)

// =============================================================================
// Dependencies
// =============================================================================

// CacheService is the slice of the cache service the handlers use.
type CacheService interface {
	Generate(ctx context.Context, requestID, prompt string) (string, error)
	ForceRefresh(ctx context.Context, trigger domain.RefreshTrigger) (string, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// =============================================================================
// Handler
// =============================================================================

// Handler provides HTTP handlers for the API.
type Handler struct {
	service   CacheService
	firestore Pinger
	usage     store.Store // may be nil
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(service CacheService, firestore Pinger, usage store.Store, m *metrics.Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service:   service,
		firestore: firestore,
		usage:     usage,
		metrics:   m,
		logger:    logger,
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.jsonContentType)
	r.Use(h.requestIDHeader)

	// Health endpoints
	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)

	// Bot endpoints. Paths kept stable for existing callers.
	r.Post("/chat", h.handleChat)
	r.Post("/update_inventory", h.handleUpdateInventory)

	// Usage accounting
	r.Get("/api/v1/usage", h.handleUsage)

	// Prometheus metrics
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	return r
}

// =============================================================================
// Middleware
// =============================================================================

// jsonContentType sets Content-Type header to application/json. The metrics
// endpoint overrides it with the Prometheus exposition type.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/metrics" {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	ready := true

	if h.firestore != nil {
		if err := h.firestore.Ping(r.Context()); err != nil {
			checks["firestore"] = "failed"
			ready = false
		} else {
			checks["firestore"] = "ok"
		}
	}

	if h.usage != nil {
		if err := h.usage.Ping(r.Context()); err != nil {
			checks["usage_store"] = "failed"
			ready = false
		} else {
			checks["usage_store"] = "ok"
		}
	}

	if !ready {
		h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{Status: "not_ready", Checks: checks})
		return
	}
	h.writeJSON(w, http.StatusOK, ReadyResponse{Status: "ready", Checks: checks})
}

// =============================================================================
// Chat Handler
// =============================================================================

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Request body must be JSON and include a 'prompt' field.")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		h.writeError(w, http.StatusBadRequest, "The 'prompt' field must be a non-empty string.")
		return
	}

	requestID := middleware.GetReqID(r.Context())
	h.logger.Info("chat request received", "request_id", requestID, "prompt_chars", len(req.Prompt))

	text, err := h.service.Generate(r.Context(), requestID, req.Prompt)
	if err != nil {
		switch {
		case errors.Is(err, cache.ErrRateLimited):
			h.writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
		case errors.Is(err, cache.ErrEmptyResponse):
			h.logger.Error("model returned empty response", "request_id", requestID)
			h.writeError(w, http.StatusInternalServerError, "AI model returned an empty or blocked response.")
		case errors.Is(err, domain.ErrInventoryNotFound), errors.Is(err, domain.ErrSystemPromptNotFound):
			h.logger.Error("cache could not be built", "request_id", requestID, "error", err)
			h.writeError(w, http.StatusInternalServerError, "Cache is not initialized or configuration is missing. Please try updating inventory.")
		case errors.Is(err, context.Canceled):
			// Client went away; nothing useful to write.
			h.logger.Warn("chat request cancelled", "request_id", requestID)
		default:
			h.logger.Error("chat request failed", "request_id", requestID, "error", err)
			h.writeError(w, http.StatusInternalServerError, "Internal error occurred during AI processing.")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, ChatResponse{Status: "success", Response: text})
}

// =============================================================================
// Inventory Handler
// =============================================================================

func (h *Handler) handleUpdateInventory(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("inventory refresh requested")

	cacheRef, err := h.service.ForceRefresh(r.Context(), domain.TriggerManual)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInventoryNotFound), errors.Is(err, domain.ErrInventoryInvalid):
			h.logger.Error("inventory refresh failed", "error", err)
			h.writeError(w, http.StatusInternalServerError, "Inventory data error: "+err.Error())
		case errors.Is(err, domain.ErrSystemPromptNotFound):
			h.logger.Error("inventory refresh failed", "error", err)
			h.writeError(w, http.StatusInternalServerError, "System prompt error: "+err.Error())
		default:
			h.logger.Error("inventory refresh failed", "error", err)
			h.writeError(w, http.StatusInternalServerError, "Internal server error during inventory update.")
		}
		return
	}

	h.logger.Info("inventory refreshed", "cache_ref", cacheRef)
	h.writeJSON(w, http.StatusOK, UpdateInventoryResponse{Status: "success", NewCacheRef: cacheRef})
}

// =============================================================================
// Usage Handler
// =============================================================================

func (h *Handler) handleUsage(w http.ResponseWriter, r *http.Request) {
	if h.usage == nil {
		h.writeError(w, http.StatusNotFound, "Usage accounting is not enabled.")
		return
	}

	opts := store.DefaultListOptions()
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			opts.Limit = l
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil {
			opts.Offset = o
		}
	}
	opts = opts.Normalize()

	chats, err := h.usage.ListChatEvents(r.Context(), opts)
	if err != nil {
		h.logger.Error("failed to list chat events", "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to list usage events.")
		return
	}
	refreshes, err := h.usage.ListRefreshEvents(r.Context(), opts)
	if err != nil {
		h.logger.Error("failed to list refresh events", "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to list usage events.")
		return
	}
	total, err := h.usage.CountChatEvents(r.Context(), "")
	if err != nil {
		h.logger.Error("failed to count chat events", "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to list usage events.")
		return
	}

	resp := UsageResponse{
		ChatEvents:    make([]ChatEventResponse, 0, len(chats)),
		RefreshEvents: make([]RefreshEventResponse, 0, len(refreshes)),
		TotalChats:    total,
		Limit:         opts.Limit,
		Offset:        opts.Offset,
	}
	for _, e := range chats {
		resp.ChatEvents = append(resp.ChatEvents, ChatEventResponse{
			ID:            e.ID,
			RequestID:     e.RequestID,
			CacheRef:      e.CacheRef,
			Status:        string(e.Status),
			PromptChars:   e.PromptChars,
			ResponseChars: e.ResponseChars,
			ToolCalls:     e.ToolCalls,
			DurationMS:    e.Duration.Milliseconds(),
			CreatedAt:     e.CreatedAt,
		})
	}
	for _, e := range refreshes {
		resp.RefreshEvents = append(resp.RefreshEvents, RefreshEventResponse{
			ID:         e.ID,
			CacheRef:   e.CacheRef,
			Trigger:    string(e.Trigger),
			DurationMS: e.Duration.Milliseconds(),
			CreatedAt:  e.CreatedAt,
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// Response Helpers
// =============================================================================

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, ErrorResponse{Status: "error", Message: message})
}
