// Package cache orchestrates the context-cache lifecycle: refresh, TTL
// extension, and cache-grounded chat generation with rate-limit retries.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/super-employee/gemini-cache-bot/internal/core/domain"
	"github.com/super-employee/gemini-cache-bot/internal/shell/gemini"
	"github.com/super-employee/gemini-cache-bot/internal/shell/metrics"
	"github.com/super-employee/gemini-cache-bot/internal/shell/repository"
	"github.com/super-employee/gemini-cache-bot/internal/shell/store"
	"github.com/super-employee/gemini-cache-bot/internal/shell/webhook"
)

// =============================================================================
// Config
// =============================================================================

// Config holds the cache service configuration.
type Config struct {
	// TTL is the lifetime of a freshly created cache.
	TTL time.Duration

	// ExtensionThreshold is how close to expiry a cache must be before it
	// is extended instead of reused.
	ExtensionThreshold time.Duration

	// ExtensionDuration is how far a TTL extension pushes the expiry.
	ExtensionDuration time.Duration

	// MaxAttempts bounds the rate-limit retry loop.
	MaxAttempts int

	// InitialDelay is the first retry delay.
	InitialDelay time.Duration

	// BackoffFactor multiplies the delay after every retry.
	BackoffFactor float64

	// Workers bounds concurrent generations in flight.
	Workers int
}

// DefaultConfig returns the default cache service configuration.
func DefaultConfig() Config {
	return Config{
		TTL:                15 * time.Minute,
		ExtensionThreshold: 5 * time.Minute,
		ExtensionDuration:  10 * time.Minute,
		MaxAttempts:        5,
		InitialDelay:       time.Second,
		BackoffFactor:      2.0,
		Workers:            2,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TTL <= 0 {
		c.TTL = d.TTL
	}
	if c.ExtensionDuration <= 0 {
		c.ExtensionDuration = d.ExtensionDuration
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = d.InitialDelay
	}
	if c.BackoffFactor <= 1 {
		c.BackoffFactor = d.BackoffFactor
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	return c
}

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrRateLimited is surfaced when the retry budget is exhausted on 429s.
	ErrRateLimited = gemini.ErrRateLimited

	// ErrEmptyResponse is surfaced when the model returns nothing usable.
	ErrEmptyResponse = gemini.ErrEmptyResponse
)

// =============================================================================
// Service
// =============================================================================

// Service owns the context-cache lifecycle.
type Service struct {
	repo    repository.Repository
	gemini  gemini.Client
	webhook webhook.Client
	usage   store.Store // may be nil
	metrics *metrics.Metrics
	config  Config
	logger  *slog.Logger

	// slots bounds concurrent generations. Sized by Config.Workers.
	slots chan struct{}
}

// NewService creates a cache service.
func NewService(
	repo repository.Repository,
	geminiClient gemini.Client,
	webhookClient webhook.Client,
	usage store.Store,
	m *metrics.Metrics,
	cfg Config,
	logger *slog.Logger,
) *Service {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if webhookClient == nil {
		webhookClient = webhook.NewNoopClient(logger)
	}

	return &Service{
		repo:    repo,
		gemini:  geminiClient,
		webhook: webhookClient,
		usage:   usage,
		metrics: m,
		config:  cfg,
		logger:  logger.With("component", "cache"),
		slots:   make(chan struct{}, cfg.Workers),
	}
}

// =============================================================================
// Cache Lifecycle
// =============================================================================

// ForceRefresh always creates a new cache: fetch inventory and system prompt,
// create the Gemini cache, and overwrite the state document.
func (s *Service) ForceRefresh(ctx context.Context, trigger domain.RefreshTrigger) (string, error) {
	start := time.Now()
	s.logger.Info("refreshing context cache", "trigger", trigger)

	inventory, err := s.repo.GetInventory(ctx)
	if err != nil {
		return "", fmt.Errorf("load inventory: %w", err)
	}
	systemPrompt, err := s.repo.GetSystemPrompt(ctx)
	if err != nil {
		return "", fmt.Errorf("load system prompt: %w", err)
	}

	cacheRef, err := s.gemini.CreateCache(ctx, gemini.CacheInput{
		SystemInstruction: systemPrompt,
		Contents:          inventory,
		TTL:               s.config.TTL,
	})
	if err != nil {
		return "", fmt.Errorf("create cache: %w", err)
	}

	state := domain.NewCacheState(cacheRef, time.Now(), s.config.TTL)
	if err := s.repo.SetCacheState(ctx, state); err != nil {
		return "", fmt.Errorf("persist cache state: %w", err)
	}

	s.logger.Info("context cache refreshed",
		"trigger", trigger,
		"cache_ref", cacheRef,
		"expires_at", state.ExpiresAt,
	)
	if s.metrics != nil {
		s.metrics.CacheRefreshes.WithLabelValues(string(trigger)).Inc()
	}
	s.recordRefresh(cacheRef, trigger, time.Since(start))

	return cacheRef, nil
}

// ActiveCache returns a usable cache reference, refreshing or extending the
// current one as required by the stored state.
//
// Concurrent callers hitting an expired cache may each trigger a refresh;
// the last state write wins. The background refresher keeps that window
// small.
func (s *Service) ActiveCache(ctx context.Context) (string, error) {
	state, err := s.repo.GetCacheState(ctx)
	switch {
	case errors.Is(err, domain.ErrStateNotFound):
		s.logger.Warn("cache state missing, refreshing")
		return s.ForceRefresh(ctx, domain.TriggerExpired)
	case errors.Is(err, repository.ErrInvalidField):
		// A malformed document means some other writer corrupted the
		// state; treat it exactly like an expired cache.
		s.logger.Warn("cache state malformed, refreshing", "error", err)
		return s.ForceRefresh(ctx, domain.TriggerExpired)
	case err != nil:
		return "", err
	}

	decision := domain.EvaluateCache(state, time.Now(), s.config.ExtensionThreshold)
	switch decision {
	case domain.DecisionRefresh:
		s.logger.Info("cache expired", "cache_ref", state.ActiveCache)
		return s.ForceRefresh(ctx, domain.TriggerExpired)
	case domain.DecisionExtend:
		return s.extend(ctx, state)
	default:
		return state.ActiveCache, nil
	}
}

// Maintain runs one proactive maintenance pass. The background refresher
// calls this on an interval so requests rarely pay refresh latency.
func (s *Service) Maintain(ctx context.Context) error {
	state, err := s.repo.GetCacheState(ctx)
	switch {
	case errors.Is(err, domain.ErrStateNotFound):
		// Nothing to maintain until the first refresh is requested.
		return nil
	case errors.Is(err, repository.ErrInvalidField):
		s.logger.Warn("cache state malformed, refreshing", "error", err)
		_, err := s.ForceRefresh(ctx, domain.TriggerScheduled)
		return err
	case err != nil:
		return err
	}

	switch domain.EvaluateCache(state, time.Now(), s.config.ExtensionThreshold) {
	case domain.DecisionRefresh:
		_, err := s.ForceRefresh(ctx, domain.TriggerScheduled)
		return err
	case domain.DecisionExtend:
		_, err := s.extend(ctx, state)
		return err
	default:
		return nil
	}
}

// extend pushes the expiry out: Firestore first, then the Gemini TTL as a
// best effort with a safety margin. A Firestore failure on a still-valid
// cache degrades to reuse instead of failing the request.
func (s *Service) extend(ctx context.Context, state domain.CacheState) (string, error) {
	now := time.Now()
	deadline := domain.ExtensionDeadline(now, s.config.ExtensionDuration)

	if err := s.repo.UpdateExpiration(ctx, deadline, now); err != nil {
		if errors.Is(err, domain.ErrStateNotFound) {
			return s.ForceRefresh(ctx, domain.TriggerExpired)
		}
		s.logger.Error("failed to extend expiry in firestore, reusing cache", "error", err)
		if s.metrics != nil {
			s.metrics.CacheExtensions.WithLabelValues("firestore_failed").Inc()
		}
		return state.ActiveCache, nil
	}

	ttl := domain.GeminiTTL(deadline, time.Now())
	if ttl <= 0 {
		s.logger.Warn("extension deadline already passed, skipping gemini ttl update")
		return state.ActiveCache, nil
	}

	if err := s.gemini.ExtendCache(ctx, state.ActiveCache, ttl); err != nil {
		// Firestore already carries the new expiry; losing the Gemini
		// update only risks an early refresh, not a wrong answer.
		s.logger.Warn("failed to extend gemini ttl", "cache_ref", state.ActiveCache, "error", err)
		if s.metrics != nil {
			s.metrics.CacheExtensions.WithLabelValues("gemini_failed").Inc()
		}
		return state.ActiveCache, nil
	}

	s.logger.Info("cache ttl extended", "cache_ref", state.ActiveCache, "expires_at", deadline)
	if s.metrics != nil {
		s.metrics.CacheExtensions.WithLabelValues("ok").Inc()
	}
	return state.ActiveCache, nil
}

// =============================================================================
// Generation
// =============================================================================

// Generate answers a prompt using the active cache. It holds one of the
// configured worker slots for the duration, retries rate limits with
// exponential backoff, and refreshes once if Gemini reports the cache gone.
func (s *Service) Generate(ctx context.Context, requestID, prompt string) (string, error) {
	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	start := time.Now()
	event := &domain.ChatEvent{
		ID:          uuid.New().String(),
		RequestID:   requestID,
		PromptChars: len(prompt),
		CreatedAt:   start,
	}

	text, err := s.generate(ctx, prompt, event)

	event.Duration = time.Since(start)
	event.ResponseChars = len(text)
	switch {
	case err == nil:
		event.Status = domain.ChatStatusSuccess
	case errors.Is(err, gemini.ErrRateLimited):
		event.Status = domain.ChatStatusRateLimited
		event.ErrorMessage = err.Error()
	default:
		event.Status = domain.ChatStatusError
		event.ErrorMessage = err.Error()
	}

	if s.metrics != nil {
		s.metrics.ChatRequests.WithLabelValues(string(event.Status)).Inc()
		s.metrics.ChatDuration.Observe(event.Duration.Seconds())
	}
	s.recordChat(event)

	return text, err
}

func (s *Service) generate(ctx context.Context, prompt string, event *domain.ChatEvent) (string, error) {
	cacheRef, err := s.ActiveCache(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve active cache: %w", err)
	}
	event.CacheRef = cacheRef

	text, err := s.generateWithRetry(ctx, cacheRef, prompt, event)
	if errors.Is(err, gemini.ErrCacheNotFound) {
		// Firestore said the cache was valid but Gemini disagreed, so the
		// TTLs drifted. Refresh once and retry.
		s.logger.Warn("cache vanished on gemini side, refreshing", "cache_ref", cacheRef)
		cacheRef, err = s.ForceRefresh(ctx, domain.TriggerExpired)
		if err != nil {
			return "", fmt.Errorf("refresh after vanished cache: %w", err)
		}
		event.CacheRef = cacheRef
		text, err = s.generateWithRetry(ctx, cacheRef, prompt, event)
	}
	return text, err
}

// generateWithRetry runs the generation with exponential backoff on rate
// limits: MaxAttempts tries, InitialDelay first, delay multiplied by
// BackoffFactor each round.
func (s *Service) generateWithRetry(ctx context.Context, cacheRef, prompt string, event *domain.ChatEvent) (string, error) {
	operation := func() (string, error) {
		text, err := s.gemini.Generate(ctx, cacheRef, prompt, s.toolHandler(event))
		if err != nil {
			if errors.Is(err, gemini.ErrRateLimited) {
				return "", err
			}
			return "", backoff.Permanent(err)
		}
		return text, nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = s.config.InitialDelay
	expo.Multiplier = s.config.BackoffFactor

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(s.config.MaxAttempts)),
		backoff.WithNotify(func(err error, delay time.Duration) {
			s.logger.Warn("rate limited, retrying", "delay", delay, "error", err)
			if s.metrics != nil {
				s.metrics.RateLimitRetries.Inc()
			}
		}),
	)
}

// toolHandler routes model tool invocations to the webhook.
func (s *Service) toolHandler(event *domain.ChatEvent) gemini.FunctionHandler {
	return func(ctx context.Context, call gemini.FunctionCall) (map[string]any, error) {
		if call.Name != gemini.ColleagueHelpTool {
			return nil, fmt.Errorf("unknown tool %q", call.Name)
		}
		event.ToolCalls++
		if s.metrics != nil {
			s.metrics.ToolInvocations.Inc()
		}

		ack, err := s.webhook.RequestHelp(ctx, webhook.HelpRequest{
			Question:  stringArg(call.Args, "question"),
			Reason:    stringArg(call.Args, "reason"),
			RequestID: event.RequestID,
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"status":  ack.Status,
			"message": ack.Message,
		}, nil
	}
}

func stringArg(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	value, _ := args[key].(string)
	return value
}

// =============================================================================
// Usage Recording
// =============================================================================

// recordChat persists a chat event. Failures are logged, never surfaced.
func (s *Service) recordChat(event *domain.ChatEvent) {
	if s.usage == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.usage.RecordChatEvent(ctx, event); err != nil {
		s.logger.Warn("failed to record chat event", "error", err)
	}
}

// recordRefresh persists a refresh event. Failures are logged, never surfaced.
func (s *Service) recordRefresh(cacheRef string, trigger domain.RefreshTrigger, duration time.Duration) {
	if s.usage == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.usage.RecordRefreshEvent(ctx, &domain.RefreshEvent{
		ID:        uuid.New().String(),
		CacheRef:  cacheRef,
		Trigger:   trigger,
		Duration:  duration,
		CreatedAt: time.Now(),
	})
	if err != nil {
		s.logger.Warn("failed to record refresh event", "error", err)
	}
}
