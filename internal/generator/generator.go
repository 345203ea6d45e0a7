// Package generator drives the fixed-cadence tick loop: each cycle it reads
// the universe's current Cholesky factor, draws a correlated shock per
// equity, updates prices, and publishes the resulting ticks.
package generator

import (
	"context"
	"log/slog"
	"time"

	"github.com/ndrandal/market-data-engine/internal/broadcast"
	"github.com/ndrandal/market-data-engine/internal/lifecycle"
	"github.com/ndrandal/market-data-engine/internal/rng"
	"github.com/ndrandal/market-data-engine/internal/tick"
	"github.com/ndrandal/market-data-engine/internal/universe"
)

const (
	initialPriceLo, initialPriceHi = 80.0, 150.0
	priceShockScale                = 0.002
	minPrice                       = 0.01
)

// Config controls the tick generator's cadence and lifetime.
type Config struct {
	TickInterval time.Duration
	// MaxTicks stops the generator after this many ticks have been emitted,
	// requesting a graceful shutdown. Zero means unbounded.
	MaxTicks uint64
}

// Generator emits correlated ticks for a fixed equity universe onto a
// broadcast channel at a fixed cadence.
type Generator struct {
	cfg      Config
	universe *universe.Universe
	sender   *broadcast.Broadcaster[tick.Tick]
	shutdown *lifecycle.ShutdownWatch
	logger   *slog.Logger

	prices []float64
}

// New seeds an initial random price per equity and returns a Generator ready
// to Run.
func New(cfg Config, u *universe.Universe, sender *broadcast.Broadcaster[tick.Tick], shutdown *lifecycle.ShutdownWatch, r *rng.RNG, logger *slog.Logger) *Generator {
	equities := u.Equities()
	prices := make([]float64, len(equities))
	for i := range prices {
		prices[i] = r.Range(initialPriceLo, initialPriceHi)
	}
	return &Generator{
		cfg:      cfg,
		universe: u,
		sender:   sender,
		shutdown: shutdown,
		logger:   logger,
		prices:   prices,
	}
}

// Run drives the tick loop until ctx is canceled, shutdown moves out of
// None, or MaxTicks is reached (which itself requests a graceful shutdown).
// The ticker is Go's time.Ticker, which natively skips missed ticks rather
// than bursting to catch up.
func (g *Generator) Run(ctx context.Context, r *rng.RNG) error {
	ticker := time.NewTicker(g.cfg.TickInterval)
	defer ticker.Stop()

	equities := g.universe.Equities()
	var emitted uint64
	// nextTimestamp is one past the last timestamp emitted, so a cycle that
	// starts less than len(equities) ms after the previous one still
	// continues the stream in strictly increasing order.
	var nextTimestamp uint64

	for {
		select {
		case <-ctx.Done():
			g.logger.Info("tick generator stopped")
			return nil
		case <-g.shutdown.Changed():
			if g.shutdown.Get() == lifecycle.None {
				continue
			}
			g.logger.Info("tick generator stopped")
			return nil
		case <-ticker.C:
		}

		correlated := g.drawCorrelatedShocks(r)
		timestampBase := max(uint64(time.Now().UnixMilli()), nextTimestamp)
		nextTimestamp = timestampBase + uint64(len(equities))

		for i, eq := range equities {
			g.prices[i] = clampPrice(g.prices[i] * (1 + correlated[i]*priceShockScale))
			g.sender.Send(tick.Tick{
				Symbol:      eq.Symbol,
				Price:       g.prices[i],
				TimestampMs: timestampBase + uint64(i),
				Region:      eq.Region,
				Sector:      eq.Sector,
			})
		}

		emitted += uint64(len(equities))
		if g.cfg.MaxTicks > 0 && emitted >= g.cfg.MaxTicks {
			g.logger.Info("tick generator reached max tick budget", "max_ticks", g.cfg.MaxTicks)
			g.shutdown.Set(lifecycle.Graceful)
			return nil
		}
	}
}

// drawCorrelatedShocks draws one standard-normal innovation per equity and
// applies the universe's current Cholesky factor to correlate them.
func (g *Generator) drawCorrelatedShocks(r *rng.RNG) []float64 {
	chol := g.universe.Cholesky()
	n, _ := chol.Dims()

	z := make([]float64, n)
	for i := range z {
		z[i] = r.Gaussian()
	}

	correlated := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for j := 0; j <= i; j++ {
			sum += chol.At(i, j) * z[j]
		}
		correlated[i] = sum
	}
	return correlated
}

func clampPrice(p float64) float64 {
	if p < minPrice {
		return minPrice
	}
	return p
}
