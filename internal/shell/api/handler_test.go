package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/super-employee/gemini-cache-bot/internal/core/domain"
	"github.com/super-employee/gemini-cache-bot/internal/shell/cache"
	"github.com/super-employee/gemini-cache-bot/internal/shell/metrics"
	"github.com/super-employee/gemini-cache-bot/internal/shell/store"
)

// =============================================================================
// Stubs
// =============================================================================

type stubService struct {
	generateText  string
	generateErr   error
	generateCalls int
	lastPrompt    string

	refreshRef   string
	refreshErr   error
	refreshCalls int
	lastTrigger  domain.RefreshTrigger
}

func (s *stubService) Generate(ctx context.Context, requestID, prompt string) (string, error) {
	s.generateCalls++
	s.lastPrompt = prompt
	return s.generateText, s.generateErr
}

func (s *stubService) ForceRefresh(ctx context.Context, trigger domain.RefreshTrigger) (string, error) {
	s.refreshCalls++
	s.lastTrigger = trigger
	return s.refreshRef, s.refreshErr
}

type stubPinger struct {
	err error
}

func (p *stubPinger) Ping(ctx context.Context) error { return p.err }

type stubStore struct {
	chats     []domain.ChatEvent
	refreshes []domain.RefreshEvent
	listErr   error
	pingErr   error
}

func (s *stubStore) RecordChatEvent(ctx context.Context, event *domain.ChatEvent) error { return nil }

func (s *stubStore) ListChatEvents(ctx context.Context, opts store.ListOptions) ([]domain.ChatEvent, error) {
	return s.chats, s.listErr
}

func (s *stubStore) CountChatEvents(ctx context.Context, status domain.ChatStatus) (int, error) {
	return len(s.chats), s.listErr
}

func (s *stubStore) RecordRefreshEvent(ctx context.Context, event *domain.RefreshEvent) error {
	return nil
}

func (s *stubStore) ListRefreshEvents(ctx context.Context, opts store.ListOptions) ([]domain.RefreshEvent, error) {
	return s.refreshes, s.listErr
}

func (s *stubStore) Ping(ctx context.Context) error { return s.pingErr }

func (s *stubStore) Close() error { return nil }

func newTestHandler(service CacheService, firestore Pinger, usage store.Store) *Handler {
	logger := slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
	return NewHandler(service, firestore, usage, metrics.New(), logger)
}

// =============================================================================
// Health Tests
// =============================================================================

func TestHealth(t *testing.T) {
	h := newTestHandler(&stubService{}, &stubPinger{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestReady_AllChecksPass(t *testing.T) {
	h := newTestHandler(&stubService{}, &stubPinger{}, &stubStore{})

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp ReadyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ready", resp.Status)
	assert.Equal(t, "ok", resp.Checks["firestore"])
	assert.Equal(t, "ok", resp.Checks["usage_store"])
}

func TestReady_FirestoreDown(t *testing.T) {
	h := newTestHandler(&stubService{}, &stubPinger{err: errors.New("unreachable")}, &stubStore{})

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp ReadyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "not_ready", resp.Status)
	assert.Equal(t, "failed", resp.Checks["firestore"])
	assert.Equal(t, "ok", resp.Checks["usage_store"])
}

// =============================================================================
// Chat Tests
// =============================================================================

func TestChat_Success(t *testing.T) {
	svc := &stubService{generateText: "Hello there!"}
	h := newTestHandler(svc, &stubPinger{}, nil)

	body := strings.NewReader(`{"prompt": "Hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/chat", body)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "Hello there!", resp.Response)
	assert.Equal(t, 1, svc.generateCalls)
	assert.Equal(t, "Hi", svc.lastPrompt)
}

func TestChat_RequestIDHeader(t *testing.T) {
	h := newTestHandler(&stubService{generateText: "ok"}, &stubPinger{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"prompt": "Hi"}`))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestChat_InvalidJSON(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(svc, &stubPinger{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Zero(t, svc.generateCalls)
}

func TestChat_EmptyPrompt(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(svc, &stubPinger{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"prompt": "   "}`))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, svc.generateCalls)
}

func TestChat_RateLimited(t *testing.T) {
	h := newTestHandler(&stubService{generateErr: cache.ErrRateLimited}, &stubPinger{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"prompt": "Hi"}`))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Contains(t, resp.Message, "Rate limit")
}

func TestChat_EmptyModelResponse(t *testing.T) {
	h := newTestHandler(&stubService{generateErr: cache.ErrEmptyResponse}, &stubPinger{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"prompt": "Hi"}`))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Message, "empty or blocked")
}

func TestChat_MissingConfiguration(t *testing.T) {
	h := newTestHandler(&stubService{generateErr: domain.ErrSystemPromptNotFound}, &stubPinger{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"prompt": "Hi"}`))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Message, "not initialized")
}

func TestChat_InternalError(t *testing.T) {
	h := newTestHandler(&stubService{generateErr: errors.New("boom")}, &stubPinger{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"prompt": "Hi"}`))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.NotContains(t, resp.Message, "boom")
}

// =============================================================================
// Inventory Tests
// =============================================================================

func TestUpdateInventory_Success(t *testing.T) {
	svc := &stubService{refreshRef: "cachedContents/new-123"}
	h := newTestHandler(svc, &stubPinger{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/update_inventory", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp UpdateInventoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "cachedContents/new-123", resp.NewCacheRef)
	assert.Equal(t, 1, svc.refreshCalls)
	assert.Equal(t, domain.TriggerManual, svc.lastTrigger)
}

func TestUpdateInventory_MissingInventory(t *testing.T) {
	h := newTestHandler(&stubService{refreshErr: domain.ErrInventoryNotFound}, &stubPinger{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/update_inventory", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Contains(t, resp.Message, "Inventory data error")
}

func TestUpdateInventory_RefreshFailure(t *testing.T) {
	h := newTestHandler(&stubService{refreshErr: errors.New("gemini down")}, &stubPinger{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/update_inventory", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotContains(t, resp.Message, "gemini down")
}

// =============================================================================
// Usage Tests
// =============================================================================

func TestUsage_Disabled(t *testing.T) {
	h := newTestHandler(&stubService{}, &stubPinger{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/usage", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUsage_ListsEvents(t *testing.T) {
	created := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	usage := &stubStore{
		chats: []domain.ChatEvent{
			{
				ID:            "chat-1",
				RequestID:     "req-1",
				CacheRef:      "cachedContents/abc",
				Status:        domain.ChatStatusSuccess,
				PromptChars:   12,
				ResponseChars: 40,
				ToolCalls:     1,
				Duration:      1500 * time.Millisecond,
				CreatedAt:     created,
			},
		},
		refreshes: []domain.RefreshEvent{
			{
				ID:        "refresh-1",
				CacheRef:  "cachedContents/abc",
				Trigger:   domain.TriggerManual,
				Duration:  3 * time.Second,
				CreatedAt: created,
			},
		},
	}
	h := newTestHandler(&stubService{}, &stubPinger{}, usage)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/usage?limit=10", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp UsageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.ChatEvents, 1)
	assert.Equal(t, "chat-1", resp.ChatEvents[0].ID)
	assert.Equal(t, "success", resp.ChatEvents[0].Status)
	assert.Equal(t, int64(1500), resp.ChatEvents[0].DurationMS)
	require.Len(t, resp.RefreshEvents, 1)
	assert.Equal(t, "manual", resp.RefreshEvents[0].Trigger)
	assert.Equal(t, 1, resp.TotalChats)
	assert.Equal(t, 10, resp.Limit)
}

func TestUsage_StoreFailure(t *testing.T) {
	h := newTestHandler(&stubService{}, &stubPinger{}, &stubStore{listErr: errors.New("db locked")})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/usage", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// =============================================================================
// Metrics Tests
// =============================================================================

func TestMetricsEndpoint(t *testing.T) {
	h := newTestHandler(&stubService{}, &stubPinger{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
