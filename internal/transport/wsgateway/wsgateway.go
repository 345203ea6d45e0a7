// Package wsgateway serves the batched tick stream to websocket clients at
// /ws, each frame a versioned TickBatchPayload.
package wsgateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ndrandal/market-data-engine/internal/broadcast"
	"github.com/ndrandal/market-data-engine/internal/lifecycle"
	"github.com/ndrandal/market-data-engine/internal/metrics"
	"github.com/ndrandal/market-data-engine/internal/tick"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10
	maxMessageSize  = 4096
	lagReportWindow = time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server upgrades HTTP requests at /ws to websocket connections and streams
// batches from a source Broadcaster to each connected client.
type Server struct {
	ctx      context.Context
	batches  *broadcast.Broadcaster[[]tick.Tick]
	shutdown *lifecycle.ShutdownWatch
	metrics  metrics.Sink
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// New creates a Server. shutdown lets in-flight client pumps distinguish a
// Graceful stop (finish the current send, then close) from an Immediate one
// (drop the connection right away); ctx is the top-level engine context, so a
// task failure elsewhere still unblocks every pump even if no OS signal ever
// changes shutdown.
func New(ctx context.Context, batches *broadcast.Broadcaster[[]tick.Tick], shutdown *lifecycle.ShutdownWatch, sink metrics.Sink, logger *slog.Logger) *Server {
	return &Server{ctx: ctx, batches: batches, shutdown: shutdown, metrics: sink, logger: logger}
}

// Handler returns the HTTP handler that upgrades requests to websocket
// connections and streams batches to each client.
func (s *Server) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Warn("websocket upgrade failed", "error", err)
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveClient(conn)
		}()
	}
}

// Wait blocks until every client pump started by Handler has returned.
// net/http.Server.Shutdown does not track hijacked connections (which is
// what a websocket upgrade produces), so the caller must join this
// separately to let in-flight sends finish before the process exits.
func (s *Server) Wait() {
	s.wg.Wait()
}

// serveClient runs a single client's read and write pumps until it
// disconnects, the batch source closes, or shutdown is requested.
func (s *Server) serveClient(conn *websocket.Conn) {
	s.logger.Info("gateway websocket client connected")

	recv := s.batches.Subscribe()
	defer recv.Unsubscribe()

	readerDone := make(chan struct{})
	go readPump(conn, readerDone)

	s.writePump(conn, recv)

	conn.Close()
	<-readerDone
	s.logger.Info("gateway websocket client disconnected")
}

// readPump discards inbound traffic (the gateway accepts no client control
// messages) and exits on a Close frame or read error. It does not stop
// writePump; writePump ends on its next failed write to the connection.
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(conn *websocket.Conn, recv *broadcast.Receiver[[]tick.Tick]) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	lagTracker := metrics.NewRateTracker(lagReportWindow)

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.shutdown.Changed():
			switch s.shutdown.Get() {
			case lifecycle.None:
				continue
			case lifecycle.Immediate:
				s.logger.Info("websocket client stopping immediately")
				return
			case lifecycle.Graceful:
				s.logger.Info("websocket client draining before graceful stop")
				s.drainAndClose(conn, recv, lagTracker)
				return
			}
		case batch, ok := <-recv.Chan():
			if !ok {
				return
			}
			if lagged := recv.SwapLag(); lagged > 0 {
				s.metrics.Report(metrics.Event{Kind: metrics.GatewayLag, Skipped: int(lagged), Component: "client"})
				if total, max, ready := lagTracker.Record(int(lagged)); ready {
					s.logger.Warn("websocket client lagged gateway messages", "skipped_total", total, "max_skipped", max)
				}
			}
			if len(batch) == 0 {
				continue
			}
			if !s.sendBatch(conn, batch, lagTracker) {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// drainAndClose sends the next batch already queued for this client, if
// there is one, before returning; batches queued behind it are not sent.
// It does not close the connection itself (serveClient does).
func (s *Server) drainAndClose(conn *websocket.Conn, recv *broadcast.Receiver[[]tick.Tick], lagTracker *metrics.RateTracker) {
	select {
	case batch, ok := <-recv.Chan():
		if ok && len(batch) > 0 {
			s.sendBatch(conn, batch, lagTracker)
		}
	default:
	}
}

func (s *Server) sendBatch(conn *websocket.Conn, batch []tick.Tick, lagTracker *metrics.RateTracker) bool {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	payload, err := marshalBatch(batch)
	if err != nil {
		s.logger.Warn("failed to encode tick batch", "error", err)
		return true
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		if total, max, ready := lagTracker.Flush(); ready {
			s.logger.Warn("websocket client lagged gateway messages", "skipped_total", total, "max_skipped", max)
		}
		return false
	}
	return true
}

func marshalBatch(batch []tick.Tick) ([]byte, error) {
	return json.Marshal(tick.NewBatchPayload(batch))
}
