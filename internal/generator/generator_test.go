package generator

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ndrandal/market-data-engine/internal/broadcast"
	"github.com/ndrandal/market-data-engine/internal/lifecycle"
	"github.com/ndrandal/market-data-engine/internal/market"
	"github.com/ndrandal/market-data-engine/internal/rng"
	"github.com/ndrandal/market-data-engine/internal/tick"
	"github.com/ndrandal/market-data-engine/internal/universe"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func sampleEquities() []market.Equity {
	return []market.Equity{
		{Symbol: "EQ0", Region: market.NorthAmerica, Sector: market.Technology},
		{Symbol: "EQ1", Region: market.Europe, Sector: market.Financials},
		{Symbol: "EQ2", Region: market.AsiaPacific, Sector: market.Energy},
	}
}

func TestGeneratorEmitsTicksForEveryEquity(t *testing.T) {
	r := rng.New(7)
	equities := sampleEquities()
	u, err := universe.New(equities, r)
	if err != nil {
		t.Fatalf("universe.New: %v", err)
	}

	sender := broadcast.New[tick.Tick](64)
	recv := sender.Subscribe()
	shutdown := lifecycle.NewShutdownWatch()

	g := New(Config{TickInterval: time.Millisecond, MaxTicks: uint64(len(equities))}, u, sender, shutdown, r, testLogger())

	done := make(chan struct{})
	go func() {
		_ = g.Run(context.Background(), r)
		close(done)
	}()

	seen := make(map[string]bool)
	readDone := make(chan struct{})
	for len(seen) < len(equities) {
		v, _, ok := recv.Recv(readDone)
		if !ok {
			t.Fatal("channel closed before all equities seen")
		}
		seen[v.Symbol] = true
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("generator did not stop after reaching max ticks")
	}

	for _, eq := range equities {
		if !seen[eq.Symbol] {
			t.Fatalf("never saw a tick for %s", eq.Symbol)
		}
	}
}

func TestGeneratorStopsOnShutdown(t *testing.T) {
	r := rng.New(7)
	u, err := universe.New(sampleEquities(), r)
	if err != nil {
		t.Fatalf("universe.New: %v", err)
	}

	sender := broadcast.New[tick.Tick](64)
	shutdown := lifecycle.NewShutdownWatch()
	g := New(Config{TickInterval: 10 * time.Millisecond}, u, sender, shutdown, r, testLogger())

	done := make(chan struct{})
	go func() {
		_ = g.Run(context.Background(), r)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	shutdown.Set(lifecycle.Graceful)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("generator did not stop after shutdown request")
	}
}

func TestGeneratorTimestampsNonDecreasing(t *testing.T) {
	r := rng.New(11)
	equities := sampleEquities()
	u, err := universe.New(equities, r)
	if err != nil {
		t.Fatalf("universe.New: %v", err)
	}

	sender := broadcast.New[tick.Tick](256)
	recv := sender.Subscribe()
	shutdown := lifecycle.NewShutdownWatch()

	ticks := uint64(len(equities) * 30)
	g := New(Config{TickInterval: time.Millisecond, MaxTicks: ticks}, u, sender, shutdown, r, testLogger())

	done := make(chan struct{})
	go func() {
		_ = g.Run(context.Background(), r)
		close(done)
	}()

	readDone := make(chan struct{})
	var last uint64
	count := uint64(0)
	for count < ticks {
		v, _, ok := recv.Recv(readDone)
		if !ok {
			break
		}
		if v.TimestampMs < last {
			t.Fatalf("timestamp went backwards: %d after %d", v.TimestampMs, last)
		}
		last = v.TimestampMs
		count++
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("generator did not stop")
	}
}

func TestGeneratorPricesStayPositive(t *testing.T) {
	r := rng.New(99)
	equities := sampleEquities()
	u, err := universe.New(equities, r)
	if err != nil {
		t.Fatalf("universe.New: %v", err)
	}

	sender := broadcast.New[tick.Tick](256)
	recv := sender.Subscribe()
	shutdown := lifecycle.NewShutdownWatch()

	ticks := uint64(len(equities) * 20)
	g := New(Config{TickInterval: time.Millisecond, MaxTicks: ticks}, u, sender, shutdown, r, testLogger())

	done := make(chan struct{})
	go func() {
		_ = g.Run(context.Background(), r)
		close(done)
	}()

	readDone := make(chan struct{})
	count := uint64(0)
	for count < ticks {
		v, _, ok := recv.Recv(readDone)
		if !ok {
			break
		}
		if v.Price <= 0 {
			t.Fatalf("non-positive price: %f", v.Price)
		}
		count++
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("generator did not stop")
	}
}
