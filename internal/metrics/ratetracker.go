package metrics

import "time"

// RateTracker accumulates a count over a rolling window and reports a
// (total, max) summary at most once per window, so lag/drop events are
// logged at a bounded rate instead of once per occurrence. Shared by the
// gateway aggregator and every websocket client's write pump.
type RateTracker struct {
	total    int
	max      int
	window   time.Duration
	lastEmit time.Time
	hasEmit  bool
}

// NewRateTracker creates a tracker that reports at most once per window.
func NewRateTracker(window time.Duration) *RateTracker {
	return &RateTracker{window: window}
}

// Record adds value to the running total and reports (total, max) if the
// window has elapsed since the last report.
func (r *RateTracker) Record(value int) (total, max int, ready bool) {
	r.total += value
	if value > r.max {
		r.max = value
	}

	now := time.Now()
	if !r.hasEmit {
		r.hasEmit = true
		r.lastEmit = now
		return 0, 0, false
	}
	if now.Sub(r.lastEmit) < r.window {
		return 0, 0, false
	}

	r.lastEmit = now
	total, max = r.total, r.max
	r.total, r.max = 0, 0
	return total, max, true
}

// Flush reports whatever is pending, regardless of window elapsed, for use
// at shutdown.
func (r *RateTracker) Flush() (total, max int, ready bool) {
	if r.total == 0 {
		return 0, 0, false
	}
	total, max = r.total, r.max
	r.total, r.max = 0, 0
	return total, max, true
}
