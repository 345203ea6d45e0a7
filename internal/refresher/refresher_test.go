package refresher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ndrandal/market-data-engine/internal/lifecycle"
	"github.com/ndrandal/market-data-engine/internal/rng"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

var errNotPD = errors.New("fake: correlation matrix is not positive definite")

type fakeUniverse struct {
	refreshes   atomic.Int64
	rebuilds    atomic.Int64
	failAfter   int64 // Refresh fails starting on this call count (0 = never)
	failRebuild bool
}

func (f *fakeUniverse) Refresh(r *rng.RNG) error {
	n := f.refreshes.Add(1)
	if f.failAfter > 0 && n >= f.failAfter {
		return errNotPD
	}
	return nil
}

func (f *fakeUniverse) Rebuild(r *rng.RNG) error {
	f.rebuilds.Add(1)
	if f.failRebuild {
		return errNotPD
	}
	return nil
}

func TestRefresherStopsCleanlyOnContextCancel(t *testing.T) {
	uni := &fakeUniverse{}
	reload := lifecycle.NewReloadBroadcaster()
	f := New(uni, time.Millisecond, reload, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx, rng.New(1)) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("refresher did not stop after context cancel")
	}
	if uni.refreshes.Load() == 0 {
		t.Fatal("expected at least one refresh before cancel")
	}
}

func TestRefresherPropagatesRefreshFailure(t *testing.T) {
	uni := &fakeUniverse{failAfter: 1}
	reload := lifecycle.NewReloadBroadcaster()
	f := New(uni, time.Millisecond, reload, testLogger())

	done := make(chan error, 1)
	go func() { done <- f.Run(context.Background(), rng.New(1)) }()

	select {
	case err := <-done:
		if !errors.Is(err, errNotPD) {
			t.Fatalf("Run returned %v, want wrapping errNotPD", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("refresher did not return after a failing refresh")
	}
}

func TestRefresherPropagatesRebuildFailureOnReload(t *testing.T) {
	uni := &fakeUniverse{failRebuild: true}
	reload := lifecycle.NewReloadBroadcaster()
	// Long interval so only the reload-triggered Rebuild can fire.
	f := New(uni, time.Hour, reload, testLogger())

	done := make(chan error, 1)
	go func() { done <- f.Run(context.Background(), rng.New(1)) }()

	time.Sleep(10 * time.Millisecond)
	reload.Trigger()

	select {
	case err := <-done:
		if !errors.Is(err, errNotPD) {
			t.Fatalf("Run returned %v, want wrapping errNotPD", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("refresher did not return after a failing rebuild")
	}
	if uni.rebuilds.Load() != 1 {
		t.Fatalf("expected exactly 1 rebuild attempt, got %d", uni.rebuilds.Load())
	}
}
