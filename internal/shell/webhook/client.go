// Package webhook delivers colleague-help escalations to an external
// webhook and returns the acknowledgement fed back to the model.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// =============================================================================
// Client Interface
// =============================================================================

// HelpRequest is a question the model escalated to a human colleague.
type HelpRequest struct {
	Question  string `json:"question"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// HelpResponse is the webhook acknowledgement returned to the model.
type HelpResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Client delivers escalation requests.
type Client interface {
	RequestHelp(ctx context.Context, req HelpRequest) (HelpResponse, error)
}

// ErrDeliveryFailed is returned when the webhook rejects or cannot receive
// the escalation.
var ErrDeliveryFailed = errors.New("webhook delivery failed")

// =============================================================================
// HTTP Client Implementation
// =============================================================================

// Config holds webhook client configuration.
type Config struct {
	URL     string
	Timeout time.Duration
}

// HTTPClient implements Client against a JSON webhook endpoint.
type HTTPClient struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPClient creates a webhook client.
func NewHTTPClient(cfg Config, logger *slog.Logger) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPClient{
		url: cfg.URL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.With("component", "webhook"),
	}
}

// RequestHelp posts the escalation and decodes the acknowledgement.
func (c *HTTPClient) RequestHelp(ctx context.Context, req HelpRequest) (HelpResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return HelpResponse{}, fmt.Errorf("marshal help request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return HelpResponse{}, fmt.Errorf("create help request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return HelpResponse{}, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Read a bounded amount of the body for the log line.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("webhook rejected escalation",
			"status", resp.StatusCode,
			"body", string(snippet),
		)
		return HelpResponse{}, fmt.Errorf("%w: status %d", ErrDeliveryFailed, resp.StatusCode)
	}

	var ack HelpResponse
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		// Some webhook receivers return an empty 200. Treat that as a
		// generic acknowledgement rather than a failure.
		ack = HelpResponse{Status: "accepted"}
	}
	if ack.Status == "" {
		ack.Status = "accepted"
	}

	c.logger.Info("escalation delivered", "status", ack.Status)
	return ack, nil
}

// =============================================================================
// Noop Client
// =============================================================================

// NoopClient acknowledges escalations without delivering them. Used when no
// webhook URL is configured.
type NoopClient struct {
	logger *slog.Logger
}

// NewNoopClient creates a no-op webhook client.
func NewNoopClient(logger *slog.Logger) *NoopClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopClient{logger: logger.With("component", "webhook")}
}

// RequestHelp logs the escalation and reports that no colleague is reachable.
func (c *NoopClient) RequestHelp(ctx context.Context, req HelpRequest) (HelpResponse, error) {
	c.logger.Warn("no webhook configured, escalation dropped", "question_chars", len(req.Question))
	return HelpResponse{
		Status:  "unavailable",
		Message: "no colleague is reachable right now",
	}, nil
}
