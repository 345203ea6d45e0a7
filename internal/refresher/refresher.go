// Package refresher periodically refreshes a Universe's correlation matrix,
// and rebuilds it wholesale on a reload signal.
package refresher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ndrandal/market-data-engine/internal/lifecycle"
	"github.com/ndrandal/market-data-engine/internal/rng"
)

// CorrelationUniverse is the subset of universe.Universe the Refresher needs.
// Declared here so tests can substitute a fake that fails on demand.
type CorrelationUniverse interface {
	Refresh(r *rng.RNG) error
	Rebuild(r *rng.RNG) error
}

// Refresher blends a Universe's correlation matrix toward a fresh draw on
// every tick, and rebuilds it wholesale whenever a reload fires.
type Refresher struct {
	uni      CorrelationUniverse
	interval time.Duration
	reload   *lifecycle.ReloadBroadcaster
	logger   *slog.Logger
}

// New creates a Refresher for uni, refreshing every interval.
func New(uni CorrelationUniverse, interval time.Duration, reload *lifecycle.ReloadBroadcaster, logger *slog.Logger) *Refresher {
	return &Refresher{uni: uni, interval: interval, reload: reload, logger: logger}
}

// Run refreshes the correlation matrix until ctx is canceled. A refresh or
// rebuild failure (a non-positive-definite correlation matrix) is fatal: the
// generator cannot draw correlated ticks without a valid Cholesky factor, so
// the error is returned rather than logged-and-continued.
func (f *Refresher) Run(ctx context.Context, r *rng.RNG) error {
	reloadCh, unsubscribe := f.reload.Subscribe()
	defer unsubscribe()

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := f.uni.Refresh(r); err != nil {
				return fmt.Errorf("correlation refresh: %w", err)
			}
			f.logger.Info("correlation.refresh")
		case <-reloadCh:
			f.logger.Info("reload signal received, rebuilding correlation matrix")
			if err := f.uni.Rebuild(r); err != nil {
				return fmt.Errorf("correlation rebuild: %w", err)
			}
			f.logger.Info("correlation.reload")
		}
	}
}
