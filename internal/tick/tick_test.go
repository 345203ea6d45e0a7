package tick

import (
	"encoding/json"
	"testing"

	"github.com/ndrandal/market-data-engine/internal/market"
)

func TestRoundTrip(t *testing.T) {
	original := Tick{
		Symbol:      "NATECH007",
		Price:       134.2875,
		TimestampMs: 1716400005123,
		Region:      market.NorthAmerica,
		Sector:      market.Technology,
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Tick
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if decoded != original {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestSnakeCaseWireFormat(t *testing.T) {
	tk := Tick{
		Symbol:      "NATECH007",
		Price:       134.2875,
		TimestampMs: 1716400005123,
		Region:      market.NorthAmerica,
		Sector:      market.Technology,
	}
	data, err := json.Marshal(tk)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	if raw["region"] != "north_america" {
		t.Fatalf("expected region north_america, got %v", raw["region"])
	}
	if raw["sector"] != "technology" {
		t.Fatalf("expected sector technology, got %v", raw["sector"])
	}
}

func TestEncodeAppendsNewline(t *testing.T) {
	tk := Tick{Symbol: "X", Price: 1, TimestampMs: 1, Region: market.Europe, Sector: market.Energy}
	data, err := Encode(tk)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if data[len(data)-1] != '\n' {
		t.Fatalf("expected trailing newline")
	}
}

func TestUnmarshalUnknownRegionFails(t *testing.T) {
	var tk Tick
	err := json.Unmarshal([]byte(`{"symbol":"X","price":1,"timestamp_ms":1,"region":"mars","sector":"technology"}`), &tk)
	if err == nil {
		t.Fatal("expected error for unknown region")
	}
}
