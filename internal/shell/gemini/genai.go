package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

// =============================================================================
// GenAI Client
// =============================================================================

// maxToolRounds bounds the function-calling loop. One escalation plus a
// follow-up is the expected shape; anything deeper is the model misbehaving.
const maxToolRounds = 4

// generateFunc issues one model turn. It exists as a field so the
// function-calling loop can be driven without a live backend.
type generateFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// GenAIClient implements Client on the google.golang.org/genai SDK.
type GenAIClient struct {
	client   *genai.Client
	model    string
	logger   *slog.Logger
	generate generateFunc
}

// Config holds the Gemini client configuration.
type Config struct {
	APIKey string
	Model  string
}

// NewGenAIClient creates a Gemini client for the configured model.
func NewGenAIClient(ctx context.Context, cfg Config, logger *slog.Logger) (*GenAIClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GenAIClient{
		client:   client,
		model:    cfg.Model,
		logger:   logger.With("component", "gemini"),
		generate: client.Models.GenerateContent,
	}, nil
}

// Close releases the underlying client. The genai SDK holds no connection
// state that needs closing, so this only exists to satisfy Client.
func (c *GenAIClient) Close() error {
	return nil
}

// =============================================================================
// Cache Operations
// =============================================================================

// CreateCache creates a context cache holding the system instruction, the
// inventory contents, and the escalation tool declarations.
func (c *GenAIClient) CreateCache(ctx context.Context, input CacheInput) (string, error) {
	if input.TTL <= 0 {
		return "", ErrInvalidTTL
	}

	c.logger.Info("creating context cache",
		"model", c.model,
		"ttl", input.TTL,
		"content_chars", len(input.Contents),
	)

	cache, err := c.client.Caches.Create(ctx, c.model, &genai.CreateCachedContentConfig{
		TTL:               input.TTL,
		SystemInstruction: genai.NewContentFromText(input.SystemInstruction, genai.RoleUser),
		Contents: []*genai.Content{
			genai.NewContentFromText(input.Contents, genai.RoleUser),
		},
		Tools: cacheTools(),
	})
	if err != nil {
		return "", errors.Join(ErrCreateFailed, c.mapError(err))
	}

	c.logger.Info("context cache created", "cache_ref", cache.Name)
	return cache.Name, nil
}

// ExtendCache sets a new TTL, measured from now, on an existing cache.
func (c *GenAIClient) ExtendCache(ctx context.Context, cacheRef string, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}

	_, err := c.client.Caches.Update(ctx, cacheRef, &genai.UpdateCachedContentConfig{
		TTL: ttl,
	})
	if err != nil {
		return c.mapError(err)
	}

	c.logger.Info("context cache ttl extended", "cache_ref", cacheRef, "ttl", ttl)
	return nil
}

// =============================================================================
// Generation
// =============================================================================

// Generate answers a prompt grounded in the given cache, resolving tool
// invocations through onCall until the model produces text.
func (c *GenAIClient) Generate(ctx context.Context, cacheRef, prompt string, onCall FunctionHandler) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		CachedContent: cacheRef,
	}

	for round := 0; round < maxToolRounds; round++ {
		resp, err := c.generate(ctx, c.model, contents, config)
		if err != nil {
			return "", c.mapError(err)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			return "", ErrEmptyResponse
		}

		calls := resp.FunctionCalls()
		if len(calls) == 0 {
			text := resp.Text()
			if strings.TrimSpace(text) == "" {
				return "", ErrEmptyResponse
			}
			return text, nil
		}

		// Keep the model turn in the transcript, then answer each call.
		contents = append(contents, resp.Candidates[0].Content)
		for _, call := range calls {
			result := c.dispatch(ctx, call, onCall)
			contents = append(contents, genai.NewContentFromParts(
				[]*genai.Part{genai.NewPartFromFunctionResponse(call.Name, result)},
				genai.RoleUser,
			))
		}
	}

	return "", ErrTooManyToolRounds
}

// dispatch runs one tool invocation. Handler failures are reported back to
// the model rather than aborting the turn, so it can apologize gracefully.
func (c *GenAIClient) dispatch(ctx context.Context, call *genai.FunctionCall, onCall FunctionHandler) map[string]any {
	c.logger.Info("model requested tool", "tool", call.Name)

	if onCall == nil {
		return map[string]any{"error": fmt.Sprintf("tool %q is not available", call.Name)}
	}

	result, err := onCall(ctx, FunctionCall{Name: call.Name, Args: call.Args})
	if err != nil {
		c.logger.Warn("tool invocation failed", "tool", call.Name, "error", err)
		return map[string]any{"error": err.Error()}
	}
	return result
}

// =============================================================================
// Error Mapping
// =============================================================================

// mapError converts SDK errors into the package sentinels callers branch on.
func (c *GenAIClient) mapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s", ErrRateLimited, apiErr.Message)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrCacheNotFound, apiErr.Message)
		}
	}
	// Some cache lookups surface as INVALID_ARGUMENT with a not-found
	// message instead of a 404.
	if strings.Contains(strings.ToLower(err.Error()), "not found") {
		return fmt.Errorf("%w: %v", ErrCacheNotFound, err)
	}
	return err
}
