package gateway

import (
	"sort"

	"github.com/ndrandal/market-data-engine/internal/tick"
)

// batchAccumulator keeps only the latest tick seen per symbol, so a batch
// snapshot reflects each symbol's most recent price rather than every
// intermediate tick.
type batchAccumulator struct {
	latest map[string]tick.Tick
}

func newBatchAccumulator() *batchAccumulator {
	return &batchAccumulator{latest: make(map[string]tick.Tick)}
}

func (a *batchAccumulator) ingest(t tick.Tick) {
	a.latest[t.Symbol] = t
}

func (a *batchAccumulator) isEmpty() bool {
	return len(a.latest) == 0
}

// snapshot returns every symbol's latest known tick, sorted by symbol. It
// does not clear the accumulator: a symbol that hasn't ticked since the
// last window still appears in this batch at its last known price.
func (a *batchAccumulator) snapshot() []tick.Tick {
	out := make([]tick.Tick, 0, len(a.latest))
	for _, t := range a.latest {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
