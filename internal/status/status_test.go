package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthzReportsCounts(t *testing.T) {
	mux := http.NewServeMux()
	s := New(500, func() int { return 3 }, func() int { return 7 })
	s.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("status field = %v, want ok", body["status"])
	}
	if int(body["universe_size"].(float64)) != 500 {
		t.Fatalf("universe_size = %v, want 500", body["universe_size"])
	}
	if int(body["stream_clients"].(float64)) != 3 {
		t.Fatalf("stream_clients = %v, want 3", body["stream_clients"])
	}
	if int(body["gateway_clients"].(float64)) != 7 {
		t.Fatalf("gateway_clients = %v, want 7", body["gateway_clients"])
	}
}
