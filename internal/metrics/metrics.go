// Package metrics aggregates engine events over a 1-second window and emits
// one structured log record per window, rather than logging every event.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/ndrandal/market-data-engine/internal/lifecycle"
)

const reportWindow = time.Second

// EventKind identifies the shape of a reported Event.
type EventKind int

const (
	// TickBatch reports that the generator emitted a cycle of ticks.
	TickBatch EventKind = iota
	// GatewayBatch reports that the gateway dispatched a batch.
	GatewayBatch
	// GatewayLag reports a subscriber falling behind a broadcast source.
	GatewayLag
	// GatewayBackpressure reports a dropped batch from a saturated queue.
	GatewayBackpressure
)

// Event is a single occurrence reported to the metrics Reporter.
type Event struct {
	Kind EventKind

	// Generated is set for TickBatch: ticks emitted this cycle.
	Generated int
	// Symbols is set for GatewayBatch: symbols in the dispatched batch.
	Symbols int
	// Skipped is set for GatewayLag: values dropped before this read.
	Skipped int
	// Component is set for GatewayLag: "aggregator", "client" or
	// "stream_socket".
	Component string
	// Dropped is set for GatewayBackpressure: batches dropped this event.
	Dropped int
}

// Sink is what producers hold to report events. The zero value is a no-op
// sink (mirrors the Rust MetricsTx::noop()), so components can be wired
// without a reporter in tests.
type Sink struct {
	events chan<- Event
}

// Report sends an event to the reporter. It is a non-blocking no-op if the
// sink has no backing channel or the channel is full.
func (s Sink) Report(e Event) {
	if s.events == nil {
		return
	}
	select {
	case s.events <- e:
	default:
	}
}

type lagStats struct {
	events  int
	skipped int
}

// Reporter aggregates events reported through its Sink and logs a summary
// once per second.
type Reporter struct {
	events chan Event
	logger *slog.Logger
}

// NewReporter creates a Reporter and the Sink producers should report
// through.
func NewReporter(logger *slog.Logger) (*Reporter, Sink) {
	ch := make(chan Event, 1024)
	return &Reporter{events: ch, logger: logger}, Sink{events: ch}
}

// Run aggregates events until ctx is canceled or shutdown leaves None.
func (r *Reporter) Run(ctx context.Context, shutdown *lifecycle.ShutdownWatch) error {
	var (
		tickBatches, totalTicks               int
		gatewayBatches, gatewaySymbols         int
		gatewayMaxBatch, gatewayDroppedBatches int
		gatewayLag                            = make(map[string]lagStats)
	)

	ticker := time.NewTicker(reportWindow)
	defer ticker.Stop()

	reset := func() {
		tickBatches, totalTicks = 0, 0
		gatewayBatches, gatewaySymbols, gatewayMaxBatch = 0, 0, 0
		gatewayDroppedBatches = 0
		gatewayLag = make(map[string]lagStats)
	}

	ingest := func(e Event) {
		switch e.Kind {
		case TickBatch:
			tickBatches++
			totalTicks += e.Generated
		case GatewayBatch:
			gatewayBatches++
			gatewaySymbols += e.Symbols
			if e.Symbols > gatewayMaxBatch {
				gatewayMaxBatch = e.Symbols
			}
		case GatewayLag:
			s := gatewayLag[e.Component]
			s.events++
			s.skipped += e.Skipped
			gatewayLag[e.Component] = s
		case GatewayBackpressure:
			gatewayDroppedBatches += e.Dropped
		}
	}

	logSummary := func() {
		if tickBatches == 0 && gatewayBatches == 0 && len(gatewayLag) == 0 && gatewayDroppedBatches == 0 {
			return
		}

		avgTicksPerBatch := 0.0
		if tickBatches > 0 {
			avgTicksPerBatch = float64(totalTicks) / float64(tickBatches)
		}
		avgGatewaySymbols := 0.0
		if gatewayBatches > 0 {
			avgGatewaySymbols = float64(gatewaySymbols) / float64(gatewayBatches)
		}

		lagSnapshot := make(map[string]any, len(gatewayLag))
		for component, s := range gatewayLag {
			lagSnapshot[component] = map[string]int{"events": s.events, "skipped": s.skipped}
		}

		r.logger.Info("tick throughput summary",
			"tick_batches", tickBatches,
			"total_ticks", totalTicks,
			"avg_ticks_per_batch", avgTicksPerBatch,
			"gateway_batches", gatewayBatches,
			"avg_gateway_symbols", avgGatewaySymbols,
			"gateway_max_symbols", gatewayMaxBatch,
			"gateway_dropped_batches", gatewayDroppedBatches,
			"gateway_lag", lagSnapshot,
		)
		reset()
	}

	// drain does one final non-blocking pass over any already-queued events
	// before the last summary, so events reported right before shutdown
	// aren't lost just because the ticker hadn't fired yet.
	drain := func() {
		for {
			select {
			case e := <-r.events:
				ingest(e)
			default:
				logSummary()
				return
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			drain()
			r.logger.Info("metrics reporter stopped")
			return nil
		case <-shutdown.Changed():
			if shutdown.Get() == lifecycle.None {
				continue
			}
			drain()
			r.logger.Info("metrics reporter stopped")
			return nil
		case e := <-r.events:
			ingest(e)
		case <-ticker.C:
			logSummary()
		}
	}
}
