// Package workers contains background workers for the cache bot.
package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Maintainer is the slice of the cache service the refresher drives.
type Maintainer interface {
	Maintain(ctx context.Context) error
}

// RefresherConfig configures the cache refresher worker.
type RefresherConfig struct {
	// Interval is the time between maintenance passes.
	// Default: 60 seconds.
	Interval time.Duration

	// PassTimeout is the timeout for a single maintenance pass. A pass may
	// create a whole new cache, so this needs headroom over typical Gemini
	// cache-creation latency.
	// Default: 2 minutes.
	PassTimeout time.Duration
}

// DefaultRefresherConfig returns the default configuration.
func DefaultRefresherConfig() RefresherConfig {
	return RefresherConfig{
		Interval:    60 * time.Second,
		PassTimeout: 2 * time.Minute,
	}
}

// Refresher periodically runs cache maintenance so requests rarely pay the
// cache refresh latency. It extends caches approaching expiry and replaces
// expired ones.
type Refresher struct {
	maintainer Maintainer
	config     RefresherConfig
	logger     *slog.Logger

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRefresher creates a cache refresher worker.
func NewRefresher(maintainer Maintainer, config RefresherConfig, logger *slog.Logger) *Refresher {
	if config.Interval == 0 {
		config.Interval = 60 * time.Second
	}
	if config.PassTimeout == 0 {
		config.PassTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Refresher{
		maintainer: maintainer,
		config:     config,
		logger:     logger.With("component", "refresher"),
	}
}

// Start begins the refresher background goroutine.
func (r *Refresher) Start() {
	r.ctx, r.cancel = context.WithCancel(context.Background())

	r.wg.Add(1)
	go r.run()

	r.logger.Info("cache refresher started", "interval", r.config.Interval)
}

// Stop gracefully stops the refresher. It waits for an in-progress pass to
// complete.
func (r *Refresher) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.logger.Info("cache refresher stopped")
}

// run is the main loop that runs maintenance passes periodically.
func (r *Refresher) run() {
	defer r.wg.Done()

	// Run immediately on start
	r.runPass()

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.runPass()
		}
	}
}

// runPass executes a single maintenance pass.
func (r *Refresher) runPass() {
	ctx, cancel := context.WithTimeout(r.ctx, r.config.PassTimeout)
	defer cancel()

	if err := r.maintainer.Maintain(ctx); err != nil {
		r.logger.Error("cache maintenance failed", "error", err)
		return
	}
	r.logger.Debug("cache maintenance pass complete")
}
