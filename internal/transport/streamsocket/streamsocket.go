// Package streamsocket serves the raw, per-tick stream over a Unix domain
// socket: one connection per subscriber, newline-delimited JSON ticks.
package streamsocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ndrandal/market-data-engine/internal/broadcast"
	"github.com/ndrandal/market-data-engine/internal/lifecycle"
	"github.com/ndrandal/market-data-engine/internal/metrics"
	"github.com/ndrandal/market-data-engine/internal/tick"
)

const lagReportWindow = time.Second

// Server accepts connections on a Unix socket and forwards every tick from
// source to each connected client.
type Server struct {
	socketPath string
	source     *broadcast.Broadcaster[tick.Tick]
	metrics    metrics.Sink
	logger     *slog.Logger
	clients    atomic.Int64
}

// New creates a streamsocket Server bound to socketPath once Run is called.
func New(socketPath string, source *broadcast.Broadcaster[tick.Tick], sink metrics.Sink, logger *slog.Logger) *Server {
	return &Server{socketPath: socketPath, source: source, metrics: sink, logger: logger}
}

// ClientCount reports the number of currently connected stream subscribers.
func (s *Server) ClientCount() int {
	return int(s.clients.Load())
}

// Run binds the socket, removing any stale file left by a previous run, and
// accepts connections until ctx is canceled or shutdown moves out of None.
// The socket file is removed again on exit.
func (s *Server) Run(ctx context.Context, shutdown *lifecycle.ShutdownWatch) error {
	if err := cleanupSocketPath(s.socketPath); err != nil {
		return err
	}
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("bind unix socket at %s: %w", s.socketPath, err)
	}
	s.logger.Info("listening for tick subscribers", "path", s.socketPath)

	accepted := make(chan net.Conn)
	acceptErrs := make(chan error, 1)
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				acceptErrs <- err
				return
			}
			accepted <- conn
		}
	}()

	defer func() {
		listener.Close()
		if err := cleanupSocketPath(s.socketPath); err != nil {
			s.logger.Warn("failed to remove socket after shutdown", "path", s.socketPath, "error", err)
		} else {
			s.logger.Info("socket removed after shutdown", "path", s.socketPath)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("socket server shutting down gracefully")
			return nil
		case <-shutdown.Changed():
			switch shutdown.Get() {
			case lifecycle.None:
				continue
			case lifecycle.Graceful:
				s.logger.Info("socket server shutting down gracefully")
			case lifecycle.Immediate:
				s.logger.Warn("socket server stopping immediately")
			}
			return nil
		case conn := <-accepted:
			go s.forwardToClient(conn)
		case err := <-acceptErrs:
			return fmt.Errorf("accept on unix socket: %w", err)
		}
	}
}

// forwardToClient streams every tick from source to conn until the client
// disconnects or the subscription ends.
func (s *Server) forwardToClient(conn net.Conn) {
	defer conn.Close()

	s.clients.Add(1)
	defer s.clients.Add(-1)

	recv := s.source.Subscribe()
	defer recv.Unsubscribe()

	lagTracker := metrics.NewRateTracker(lagReportWindow)

	for {
		v, lagged, ok := recv.Recv(nil)
		if lagged > 0 {
			s.metrics.Report(metrics.Event{Kind: metrics.GatewayLag, Skipped: int(lagged), Component: "stream_socket"})
			if total, max, ready := lagTracker.Record(int(lagged)); ready {
				s.logger.Warn("subscriber lagged tick messages", "skipped_total", total, "max_skipped", max)
			}
			continue
		}
		if !ok {
			return
		}

		payload, err := tick.Encode(v)
		if err != nil {
			s.logger.Warn("failed to encode tick", "error", err)
			continue
		}
		if _, err := conn.Write(payload); err != nil {
			if isDisconnect(err) {
				s.logger.Info("tick subscriber disconnected during payload write", "reason", err.Error())
				return
			}
			s.logger.Warn("tick stream task ended with error", "error", err)
			return
		}
	}
}

func isDisconnect(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, net.ErrClosed)
}

func cleanupSocketPath(path string) error {
	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove old socket at %s: %w", path, err)
		}
	}
	return nil
}
