// Package tick defines the Tick record and its wire JSON encoding.
package tick

import (
	"encoding/json"
	"fmt"

	"github.com/ndrandal/market-data-engine/internal/market"
)

// Tick is a single price observation for one symbol at one instant.
type Tick struct {
	Symbol      string
	Price       float64
	TimestampMs uint64
	Region      market.Region
	Sector      market.Sector
}

// wireTick mirrors Tick with region/sector rendered as snake_case strings,
// matching the teacher's itch/json.go map-then-marshal idiom.
type wireTick struct {
	Symbol      string `json:"symbol"`
	Price       float64 `json:"price"`
	TimestampMs uint64 `json:"timestamp_ms"`
	Region      string `json:"region"`
	Sector      string `json:"sector"`
}

// MarshalJSON renders the tick with snake_case region/sector names.
func (t Tick) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireTick{
		Symbol:      t.Symbol,
		Price:       t.Price,
		TimestampMs: t.TimestampMs,
		Region:      t.Region.JSONName(),
		Sector:      t.Sector.JSONName(),
	})
}

// UnmarshalJSON parses a tick encoded by MarshalJSON.
func (t *Tick) UnmarshalJSON(data []byte) error {
	var w wireTick
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("unmarshal tick: %w", err)
	}
	region, ok := market.RegionFromJSONName(w.Region)
	if !ok {
		return fmt.Errorf("unmarshal tick: unknown region %q", w.Region)
	}
	sector, ok := market.SectorFromJSONName(w.Sector)
	if !ok {
		return fmt.Errorf("unmarshal tick: unknown sector %q", w.Sector)
	}
	t.Symbol = w.Symbol
	t.Price = w.Price
	t.TimestampMs = w.TimestampMs
	t.Region = region
	t.Sector = sector
	return nil
}

// Encode marshals the tick followed by a trailing newline, for the
// newline-delimited stream-socket protocol.
func Encode(t Tick) ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encode tick: %w", err)
	}
	return append(data, '\n'), nil
}

// BatchVersion is the wire version of TickBatchPayload.
const BatchVersion = 1

// BatchPayload is the gateway's websocket frame: a versioned, sorted batch.
type BatchPayload struct {
	Version uint32 `json:"version"`
	Ticks   []Tick `json:"ticks"`
}

// NewBatchPayload wraps a sorted tick batch at the current wire version.
func NewBatchPayload(ticks []Tick) BatchPayload {
	return BatchPayload{Version: BatchVersion, Ticks: ticks}
}
