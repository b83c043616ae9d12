package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/publica-labs/publica-core/internal/core/domain"
	"github.com/publica-labs/publica-core/internal/core/ports/driven"
	"github.com/publica-labs/publica-core/internal/core/ports/driving"
)

// RefreshSweeper proactively refreshes access tokens that are about to
// expire, so publish calls rarely pay the refresh latency inline.
//
// It runs on worker nodes. For multi-worker deployments, configure a
// DistributedLock so only one instance sweeps at a time.
type RefreshSweeper struct {
	store       driven.ConnectionStore
	connections driving.ConnectionService
	lock        driven.DistributedLock
	logger      *slog.Logger

	// Internal state
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	interval time.Duration
	window   time.Duration

	// Lock configuration
	lockTTL      time.Duration
	lockRequired bool
}

// RefreshSweeperConfig holds configuration for the sweeper.
type RefreshSweeperConfig struct {
	Store        driven.ConnectionStore
	Connections  driving.ConnectionService
	Lock         driven.DistributedLock // Optional: distributed lock for multi-instance coordination
	Logger       *slog.Logger
	Interval     time.Duration // How often to sweep (default: 1m)
	Window       time.Duration // How far ahead of expiry to refresh (default: domain.DefaultRefreshWindow)
	LockTTL      time.Duration // TTL for the distributed lock (default: 2x interval)
	LockRequired bool          // If true, skip the cycle when the lock cannot be acquired
}

// NewRefreshSweeper creates a new refresh sweeper.
func NewRefreshSweeper(cfg RefreshSweeperConfig) *RefreshSweeper {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	interval := cfg.Interval
	if interval == 0 {
		interval = time.Minute
	}

	window := cfg.Window
	if window == 0 {
		window = domain.DefaultRefreshWindow
	}

	lockTTL := cfg.LockTTL
	if lockTTL == 0 {
		lockTTL = 2 * interval
	}

	lockRequired := cfg.LockRequired
	if cfg.Lock != nil {
		lockRequired = true
	}

	return &RefreshSweeper{
		store:        cfg.Store,
		connections:  cfg.Connections,
		lock:         cfg.Lock,
		logger:       logger,
		interval:     interval,
		window:       window,
		lockTTL:      lockTTL,
		lockRequired: lockRequired,
	}
}

// Start begins the sweep loop.
// It runs until Stop is called or the context is cancelled.
func (s *RefreshSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("refresh sweeper starting", "interval", s.interval, "window", s.window)

	go s.run(ctx)

	return nil
}

// Stop gracefully stops the sweeper.
func (s *RefreshSweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.mu.Unlock()

	<-s.doneCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("refresh sweeper stopped")
}

// run is the main sweep loop.
func (s *RefreshSweeper) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on start
	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("refresh sweeper context cancelled")
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep finds expiring connections and refreshes each through the
// connection service, which owns the state transitions and events.
func (s *RefreshSweeper) sweep(ctx context.Context) {
	if s.lock != nil {
		acquired, err := s.lock.Acquire(ctx, "refresh_sweep", s.lockTTL)
		if err != nil {
			s.logger.Warn("failed to acquire sweep lock", "error", err)
			if s.lockRequired {
				return // Skip this cycle
			}
		} else if !acquired {
			s.logger.Debug("sweep lock held by another instance, skipping cycle")
			return
		} else {
			defer func() {
				if err := s.lock.Release(ctx, "refresh_sweep"); err != nil {
					s.logger.Warn("failed to release sweep lock", "error", err)
				}
			}()
		}
	}

	cutoff := time.Now().Add(s.window)
	expiring, err := s.store.ListExpiring(ctx, cutoff)
	if err != nil {
		s.logger.Error("failed to list expiring connections", "error", err)
		return
	}

	for _, conn := range expiring {
		// EnsureValid refreshes, downgrades on rejection, or leaves the
		// record alone on transient failure.
		_, err := s.connections.EnsureValid(ctx, conn.UserID, conn.Provider)
		switch {
		case err == nil:
			s.logger.Debug("refreshed expiring connection",
				"user_id", conn.UserID,
				"provider", conn.Provider,
			)
		case errors.Is(err, domain.ErrReconnectRequired):
			s.logger.Info("connection needs reconnect",
				"user_id", conn.UserID,
				"provider", conn.Provider,
			)
		case errors.Is(err, domain.ErrNotConnected):
			// Disconnected between listing and refresh; nothing to do.
		default:
			s.logger.Warn("refresh attempt failed",
				"user_id", conn.UserID,
				"provider", conn.Provider,
				"error", err,
			)
		}
	}
}
