// Package gateway aggregates the raw tick stream into throttled, batched
// snapshots and republishes them for transport layers (the websocket
// gateway) that want one bounded, per-symbol-deduplicated update per
// interval rather than the full per-tick firehose.
package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/ndrandal/market-data-engine/internal/broadcast"
	"github.com/ndrandal/market-data-engine/internal/lifecycle"
	"github.com/ndrandal/market-data-engine/internal/metrics"
	"github.com/ndrandal/market-data-engine/internal/tick"
)

const lagReportWindow = time.Second

// Config controls the aggregation throttle and queue sizing.
type Config struct {
	// Throttle is how often the aggregator snapshots its accumulator into
	// the dispatch queue.
	Throttle time.Duration
	// QueueDepth bounds the aggregator->dispatcher queue; the dispatcher's
	// outbound batch broadcaster is sized at 2x this.
	QueueDepth int
}

// Gateway owns the aggregator and dispatcher that sit between the raw tick
// broadcast and the batch broadcast transports subscribe to.
type Gateway struct {
	cfg     Config
	source  *broadcast.Broadcaster[tick.Tick]
	batches *broadcast.Broadcaster[[]tick.Tick]
	metrics metrics.Sink
	logger  *slog.Logger
}

// New wires a Gateway reading from source and publishing onto a new batch
// broadcaster sized at 2*QueueDepth.
func New(cfg Config, source *broadcast.Broadcaster[tick.Tick], sink metrics.Sink, logger *slog.Logger) *Gateway {
	return &Gateway{
		cfg:     cfg,
		source:  source,
		batches: broadcast.New[[]tick.Tick](cfg.QueueDepth * 2),
		metrics: sink,
		logger:  logger,
	}
}

// Batches returns the broadcaster transports should subscribe to for
// dispatched batches.
func (g *Gateway) Batches() *broadcast.Broadcaster[[]tick.Tick] {
	return g.batches
}

// Run starts the aggregator and dispatcher and blocks until both stop.
func (g *Gateway) Run(ctx context.Context, shutdown *lifecycle.ShutdownWatch) error {
	queue := make(chan []tick.Tick, g.cfg.QueueDepth)

	errs := make(chan error, 2)
	go func() { errs <- g.runAggregator(ctx, shutdown, queue) }()
	go func() { errs <- g.runDispatcher(ctx, shutdown, queue) }()

	var firstErr error
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (g *Gateway) runAggregator(ctx context.Context, shutdown *lifecycle.ShutdownWatch, queue chan<- []tick.Tick) error {
	g.logger.Info("gateway aggregator started")

	accumulator := newBatchAccumulator()
	recv := g.source.Subscribe()
	defer recv.Unsubscribe()

	ticker := time.NewTicker(g.cfg.Throttle)
	defer ticker.Stop()

	lagTracker := metrics.NewRateTracker(lagReportWindow)
	dropTracker := metrics.NewRateTracker(lagReportWindow)

	stop := func() {
		if total, _, ready := lagTracker.Flush(); ready {
			g.logger.Warn("gateway aggregator lagged behind source ticks", "skipped_total", total)
		}
		if total, _, ready := dropTracker.Flush(); ready {
			g.logger.Warn("gateway queue saturated, dropping batches", "dropped_batches", total)
		}
		g.logger.Info("gateway aggregator stopped")
	}

	for {
		select {
		case <-ctx.Done():
			stop()
			return nil
		case <-shutdown.Changed():
			if shutdown.Get() == lifecycle.None {
				continue
			}
			stop()
			return nil
		case <-ticker.C:
			if accumulator.isEmpty() {
				continue
			}
			snapshot := accumulator.snapshot()
			if len(snapshot) == 0 {
				continue
			}
			select {
			case queue <- snapshot:
			default:
				g.metrics.Report(metrics.Event{Kind: metrics.GatewayBackpressure, Dropped: 1})
				if total, _, ready := dropTracker.Record(1); ready {
					g.logger.Warn("gateway queue saturated, dropping batches", "dropped_batches", total)
				}
			}
		case v, ok := <-recv.Chan():
			if !ok {
				stop()
				return nil
			}
			if lagged := recv.SwapLag(); lagged > 0 {
				g.metrics.Report(metrics.Event{Kind: metrics.GatewayLag, Skipped: int(lagged), Component: "aggregator"})
				if total, max, ready := lagTracker.Record(int(lagged)); ready {
					g.logger.Warn("gateway aggregator lagged behind source ticks", "skipped_total", total, "max_skipped", max)
				}
			}
			accumulator.ingest(v)
		}
	}
}

func (g *Gateway) runDispatcher(ctx context.Context, shutdown *lifecycle.ShutdownWatch, queue <-chan []tick.Tick) error {
	g.logger.Info("gateway dispatcher started")

	for {
		select {
		case <-ctx.Done():
			g.logger.Info("gateway dispatcher stopped")
			return nil
		case <-shutdown.Changed():
			if shutdown.Get() == lifecycle.None {
				continue
			}
			g.logger.Info("gateway dispatcher stopped")
			return nil
		case batch, ok := <-queue:
			if !ok {
				g.logger.Info("gateway dispatcher stopped")
				return nil
			}
			g.metrics.Report(metrics.Event{Kind: metrics.GatewayBatch, Symbols: len(batch)})
			g.batches.Send(batch)
		}
	}
}
