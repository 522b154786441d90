package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/super-employee/gemini-cache-bot/internal/shell/api"
	"github.com/super-employee/gemini-cache-bot/internal/shell/cache"
	"github.com/super-employee/gemini-cache-bot/internal/shell/gemini"
	"github.com/super-employee/gemini-cache-bot/internal/shell/metrics"
	"github.com/super-employee/gemini-cache-bot/internal/shell/repository"
	"github.com/super-employee/gemini-cache-bot/internal/shell/secrets"
	"github.com/super-employee/gemini-cache-bot/internal/shell/store"
	"github.com/super-employee/gemini-cache-bot/internal/shell/webhook"
	"github.com/super-employee/gemini-cache-bot/internal/shell/workers"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitSecretsError    = 2
	ExitFirestoreError  = 3
	ExitGeminiError     = 4
	ExitDatabaseError   = 5
	ExitHTTPServerError = 6
)

// =============================================================================
// Server
// =============================================================================

// Server represents the cachebot application server.
type Server struct {
	config     *Config
	httpServer *http.Server
	repo       *repository.FirestoreRepository
	gemini     *gemini.GenAIClient
	usage      store.Store
	refresher  *workers.Refresher
	logger     *slog.Logger
}

// NewServer creates a new server with the given config. The Secret Manager
// client is only needed to bootstrap the Firestore credentials and is closed
// before this function returns.
func NewServer(ctx context.Context, cfg *Config, logger *slog.Logger) (*Server, error) {
	// Fetch the Firestore service account from Secret Manager
	secretClient, err := secrets.NewClient(ctx, secrets.Config{
		ProjectID: cfg.Google.ProjectID,
		SecretID:  cfg.Secrets.SecretID,
		Version:   cfg.Secrets.Version,
	}, logger)
	if err != nil {
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitSecretsError,
		}
	}

	credJSON, err := secretClient.ServiceAccountJSON(ctx)
	secretClient.Close()
	if err != nil {
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitSecretsError,
		}
	}

	// Connect to Firestore
	repo, err := repository.NewFirestoreRepository(ctx, cfg.Google.ProjectID, credJSON, repository.Config{
		CacheStatePath:   cfg.Firestore.CacheStatePath,
		SystemPromptPath: cfg.Firestore.SystemPromptPath,
		InventoryPath:    cfg.Firestore.InventoryPath,
		Fields:           repository.DefaultFieldNames(),
	}, logger)
	if err != nil {
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitFirestoreError,
		}
	}

	// Verify Firestore connection
	if err := repo.Ping(ctx); err != nil {
		repo.Close()
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitFirestoreError,
		}
	}

	// Create Gemini client
	geminiClient, err := gemini.NewGenAIClient(ctx, gemini.Config{
		APIKey: cfg.Gemini.APIKey,
		Model:  cfg.Gemini.Model,
	}, logger)
	if err != nil {
		repo.Close()
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitGeminiError,
		}
	}

	// Open the local usage store
	var usage store.Store
	if cfg.Usage.Enabled {
		s, err := store.NewSQLiteStore(cfg.Usage.DSN)
		if err != nil {
			repo.Close()
			geminiClient.Close()
			return nil, &ServerError{
				Op:       "NewServer",
				Err:      err,
				ExitCode: ExitDatabaseError,
			}
		}
		usage = s
		logger.Info("usage accounting enabled", "dsn", cfg.Usage.DSN)
	} else {
		logger.Info("usage accounting disabled")
	}

	// Create webhook client for colleague escalations
	var webhookClient webhook.Client
	if cfg.Webhook.URL != "" {
		webhookClient = webhook.NewHTTPClient(webhook.Config{
			URL:     cfg.Webhook.URL,
			Timeout: cfg.Webhook.Timeout,
		}, logger)
		logger.Info("escalation webhook enabled", "url", cfg.Webhook.URL)
	} else {
		webhookClient = webhook.NewNoopClient(logger)
		logger.Info("escalation webhook disabled")
	}

	m := metrics.New()

	// Create the cache service
	service := cache.NewService(repo, geminiClient, webhookClient, usage, m, cache.Config{
		TTL:                cfg.Gemini.CacheTTL,
		ExtensionThreshold: cfg.Gemini.ExtensionThreshold,
		ExtensionDuration:  cfg.Gemini.ExtensionDuration,
		MaxAttempts:        cfg.Chat.MaxAttempts,
		InitialDelay:       cfg.Chat.InitialDelay,
		BackoffFactor:      cfg.Chat.BackoffFactor,
		Workers:            cfg.Server.Workers,
	}, logger)

	// Create the background refresher
	var refresher *workers.Refresher
	if cfg.Refresher.Enabled {
		refresher = workers.NewRefresher(service, workers.RefresherConfig{
			Interval:    cfg.Refresher.Interval,
			PassTimeout: cfg.Refresher.PassTimeout,
		}, logger)
		logger.Info("cache refresher enabled", "interval", cfg.Refresher.Interval)
	} else {
		logger.Info("cache refresher disabled")
	}

	// Create HTTP handler
	handler := api.NewHandler(service, repo, usage, m, logger)

	// Create HTTP server
	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		config:     cfg,
		httpServer: httpServer,
		repo:       repo,
		gemini:     geminiClient,
		usage:      usage,
		refresher:  refresher,
		logger:     logger,
	}, nil
}

// Start starts the server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Start the background refresher
	if s.refresher != nil {
		s.refresher.Start()
	}

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server",
			"address", s.config.Server.Address(),
			"workers", s.config.Server.Workers)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		return &ServerError{
			Op:       "Start",
			Err:      err,
			ExitCode: ExitHTTPServerError,
		}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	// Shutdown HTTP server
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	// Stop the background refresher
	if s.refresher != nil {
		s.refresher.Stop()
	}

	// Close Gemini client
	if err := s.gemini.Close(); err != nil {
		s.logger.Error("gemini client close error", "error", err)
	}

	// Close Firestore
	if err := s.repo.Close(); err != nil {
		s.logger.Error("firestore close error", "error", err)
	}

	// Close usage store
	if s.usage != nil {
		if err := s.usage.Close(); err != nil {
			s.logger.Error("usage store close error", "error", err)
		}
	}

	s.logger.Info("shutdown complete")
	return nil
}

// =============================================================================
// Server Error
// =============================================================================

// ServerError represents an error during server operation.
type ServerError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *ServerError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ServerError) Unwrap() error {
	return e.Err
}
