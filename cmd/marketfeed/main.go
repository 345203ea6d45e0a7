// Command marketfeed runs the correlated synthetic market-data engine: it
// generates correlated ticks across a 500-equity universe and serves them
// over a raw Unix-socket stream and a throttled websocket gateway.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ndrandal/market-data-engine/internal/broadcast"
	"github.com/ndrandal/market-data-engine/internal/config"
	"github.com/ndrandal/market-data-engine/internal/gateway"
	"github.com/ndrandal/market-data-engine/internal/generator"
	"github.com/ndrandal/market-data-engine/internal/lifecycle"
	"github.com/ndrandal/market-data-engine/internal/market"
	"github.com/ndrandal/market-data-engine/internal/metrics"
	"github.com/ndrandal/market-data-engine/internal/refresher"
	"github.com/ndrandal/market-data-engine/internal/rng"
	"github.com/ndrandal/market-data-engine/internal/status"
	"github.com/ndrandal/market-data-engine/internal/tick"
	"github.com/ndrandal/market-data-engine/internal/transport/streamsocket"
	"github.com/ndrandal/market-data-engine/internal/transport/wsgateway"
	"github.com/ndrandal/market-data-engine/internal/universe"
)

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger.Info("market data engine starting")

	if err := run(cfg, logger); err != nil {
		logger.Error("engine exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("market data engine stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	r := rng.New(seed)
	logger.Info("PRNG seeded", "seed", seed)

	equities := market.DefaultEquities()
	logger.Info("built equity universe", "count", len(equities))

	uni, err := universe.New(equities, r)
	if err != nil {
		return fmt.Errorf("build initial universe: %w", err)
	}

	shutdown := lifecycle.NewShutdownWatch()
	reload := lifecycle.NewReloadBroadcaster()
	go lifecycle.HandleSignals(ctx, shutdown, reload, logger)

	reporter, metricsSink := metrics.NewReporter(logger)

	ticks := broadcast.New[tick.Tick](cfg.SendBufferSize)
	gen := generator.New(generator.Config{
		TickInterval: cfg.TickInterval,
		MaxTicks:     cfg.MaxTicks,
	}, uni, ticks, shutdown, r, logger)

	gw := gateway.New(gateway.Config{
		Throttle:   cfg.GatewayThrottle,
		QueueDepth: cfg.QueueDepth,
	}, ticks, metricsSink, logger)

	var sock *streamsocket.Server
	if cfg.EnableSocket {
		sock = streamsocket.New(cfg.SocketPath, ticks, metricsSink, logger)
	}

	streamClients := func() int {
		if sock == nil {
			return 0
		}
		return sock.ClientCount()
	}
	gatewayClients := func() int { return gw.Batches().SubscriberCount() }

	group, gctx := errgroup.WithContext(ctx)

	wsServer := wsgateway.New(gctx, gw.Batches(), shutdown, metricsSink, logger)

	mux := http.NewServeMux()
	mux.Handle("/ws", wsServer.Handler())
	status.New(len(equities), streamClients, gatewayClients).Register(mux)

	httpServer := &http.Server{
		Addr:    cfg.GatewayAddr,
		Handler: mux,
	}

	group.Go(func() error { return gen.Run(gctx, r) })
	group.Go(func() error { return gw.Run(gctx, shutdown) })
	group.Go(func() error { return reporter.Run(gctx, shutdown) })
	group.Go(func() error {
		return refresher.New(uni, cfg.CorrelationRefresh, reload, logger).Run(gctx, r)
	})

	if sock != nil {
		group.Go(func() error { return sock.Run(gctx, shutdown) })
	}

	group.Go(func() error {
		logger.Info("gateway listening", "addr", cfg.GatewayAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("gateway http server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		// http.Server.Shutdown does not wait on hijacked connections (what a
		// websocket upgrade produces), so join the client pumps separately.
		wsServer.Wait()
		return err
	})

	return group.Wait()
}
