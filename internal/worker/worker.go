// Package worker hosts the background maintenance loops that run alongside
// (or instead of) the API server: the token refresh sweeper and periodic
// cleanup of expired authorization state.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/publica-labs/publica-core/internal/core/ports/driven"
	"github.com/publica-labs/publica-core/internal/core/services"
)

// Worker runs background maintenance for the connection lifecycle.
type Worker struct {
	sweeper *services.RefreshSweeper
	states  driven.OAuthStateStore
	logger  *slog.Logger

	cleanupInterval time.Duration

	// Internal state
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// WorkerConfig holds configuration for the worker.
type WorkerConfig struct {
	Sweeper *services.RefreshSweeper
	States  driven.OAuthStateStore // Optional: expired state cleanup
	Logger  *slog.Logger

	CleanupInterval time.Duration // How often to purge expired oauth states (default: 10m)
}

// NewWorker creates a new background worker.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cleanupInterval := cfg.CleanupInterval
	if cleanupInterval == 0 {
		cleanupInterval = 10 * time.Minute
	}

	return &Worker{
		sweeper:         cfg.Sweeper,
		states:          cfg.States,
		logger:          logger,
		cleanupInterval: cleanupInterval,
	}
}

// Start begins the maintenance loops.
// It runs until Stop is called or the context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("worker starting", "cleanup_interval", w.cleanupInterval)

	if w.sweeper != nil {
		if err := w.sweeper.Start(ctx); err != nil {
			w.logger.Error("failed to start refresh sweeper", "error", err)
		}
	}

	go w.cleanupLoop(ctx)

	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.stopCh)
	w.mu.Unlock()

	if w.sweeper != nil {
		w.sweeper.Stop()
	}

	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("worker stopped")
}

// Wait blocks until the worker stops.
func (w *Worker) Wait() {
	<-w.doneCh
}

// Running reports whether the worker loops are active.
func (w *Worker) Running() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// cleanupLoop periodically purges expired authorization states. Stale rows
// are harmless for correctness (GetAndDelete checks expiry) but accumulate
// forever without this.
func (w *Worker) cleanupLoop(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker context cancelled")
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.cleanup(ctx)
		}
	}
}

func (w *Worker) cleanup(ctx context.Context) {
	if w.states == nil {
		return
	}
	if err := w.states.Cleanup(ctx); err != nil {
		w.logger.Warn("failed to clean up expired oauth states", "error", err)
	}
}
