// Package config loads the engine's runtime configuration from flags, with
// environment variables as fallback defaults.
package config

import (
	"flag"
	"os"
	"strconv"
	"time"
)

// Config holds all engine configuration.
type Config struct {
	// Server
	GatewayAddr string

	// Simulation
	Seed               int64
	TickInterval       time.Duration
	CorrelationRefresh time.Duration
	SendBufferSize     int

	// Gateway fan-out
	GatewayThrottle time.Duration
	QueueDepth      int

	// Raw tick transport
	SocketPath   string
	EnableSocket bool

	// MaxTicks bounds the run for scripted or test scenarios (0 = unbounded).
	MaxTicks uint64
}

// Load parses flags, falling back to environment variables and then to
// defaults, into a Config.
func Load() *Config {
	c := &Config{}

	flag.StringVar(&c.GatewayAddr, "gateway-addr", envStr("GATEWAY_ADDR", "127.0.0.1:9001"), "HTTP listen address for the websocket gateway and health endpoint")

	flag.Int64Var(&c.Seed, "seed", envInt64("MARKET_SEED", 0), "PRNG seed (0 = random)")
	flag.DurationVar(&c.TickInterval, "tick-interval", envDuration("TICK_INTERVAL", 8*time.Millisecond), "Interval between tick rounds")
	flag.DurationVar(&c.CorrelationRefresh, "correlation-refresh", envDuration("CORRELATION_REFRESH", 30*time.Second), "Interval between correlation matrix refreshes")
	flag.IntVar(&c.SendBufferSize, "send-buffer", envInt("SEND_BUFFER", 1024), "Per-subscriber tick broadcast buffer size")

	flag.DurationVar(&c.GatewayThrottle, "gateway-throttle", envDuration("GATEWAY_THROTTLE", time.Second), "Minimum interval between gateway batch snapshots")
	flag.IntVar(&c.QueueDepth, "queue-depth", envInt("QUEUE_DEPTH", 64), "Gateway batch queue depth before dropping")

	flag.StringVar(&c.SocketPath, "socket-path", envStr("SOCKET_PATH", "/tmp/market-data-engine.sock"), "Unix socket path for the raw tick stream")
	flag.BoolVar(&c.EnableSocket, "enable-socket", envBool("ENABLE_SOCKET", true), "Whether to serve the raw tick stream over a Unix socket")

	flag.Uint64Var(&c.MaxTicks, "max-ticks", envUint64("MAX_TICKS", 0), "Stop after this many ticks have been emitted (0 = run forever)")

	flag.Parse()

	return c
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envUint64(key string, def uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
