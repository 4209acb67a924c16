package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danielpatrickdp/eventsim/internal/catalog"
	"github.com/danielpatrickdp/eventsim/internal/engine"
	"github.com/danielpatrickdp/eventsim/internal/service"
	"github.com/danielpatrickdp/eventsim/internal/store"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	st, err := store.NewStore(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	reg := engine.NewRegistry(engine.New(catalog.Default(), engine.Options{}), nil)
	return New(service.New(reg, catalog.Default(), st, nil), "test-version", nil)
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return body
}

func TestHealthEndpoint(t *testing.T) {
	srv := testServer(t)
	w := do(t, srv, "GET", "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := decode(t, w)
	if body["status"] != "ok" || body["version"] != "test-version" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestCatalogEndpoint(t *testing.T) {
	srv := testServer(t)
	w := do(t, srv, "GET", "/api/catalog", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var entries []catalog.Entry
	if err := json.Unmarshal(w.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != catalog.Default().Len() {
		t.Errorf("got %d entries, want %d", len(entries), catalog.Default().Len())
	}
}

func TestEntityLifecycle(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, "POST", "/api/entities",
		`{"entity_id":"ent","timestamp":"2020-01-01T00:00:00Z","state":{"valence":0.2}}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status = %d body = %s", w.Code, w.Body)
	}

	w = do(t, srv, "POST", "/api/entities/ent/events",
		`{"type":"custom","custom":{"impact":{"valence":0.4},"permanence":{"valence":0.5}},"severity":1,"timestamp":"2025-01-01T00:00:00Z"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("append: status = %d body = %s", w.Code, w.Body)
	}

	w = do(t, srv, "GET", "/api/entities/ent/state?at=2026-01-01T00:00:00Z&save=true", "")
	if w.Code != http.StatusOK {
		t.Fatalf("state: status = %d body = %s", w.Code, w.Body)
	}
	body := decode(t, w)
	snap := body["snapshot"].(map[string]any)
	if snap["direction"] != "forward" {
		t.Errorf("direction = %v, want forward", snap["direction"])
	}
	valence := snap["state"].(map[string]any)["valence"].(float64)
	if valence < 0.4-1e-9 || valence > 0.4+1e-9 {
		t.Errorf("valence = %v, want 0.4", valence)
	}
	if body["version_id"] == "" || body["version_id"] == nil {
		t.Error("expected persisted version id")
	}

	w = do(t, srv, "GET", "/api/entities/ent/events", "")
	events := decode(t, w)["events"].([]any)
	if len(events) != 1 {
		t.Errorf("got %d events, want 1", len(events))
	}

	w = do(t, srv, "GET", "/api/entities", "")
	if ids := decode(t, w)["entities"].([]any); len(ids) != 1 || ids[0] != "ent" {
		t.Errorf("unexpected entities %v", ids)
	}
}

func TestErrorStatuses(t *testing.T) {
	srv := testServer(t)
	do(t, srv, "POST", "/api/entities", `{"entity_id":"ent","timestamp":"2020-01-01T00:00:00Z"}`)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"duplicate entity", "POST", "/api/entities", `{"entity_id":"ent","timestamp":"2020-01-01T00:00:00Z"}`, http.StatusConflict},
		{"anchor without timestamp", "POST", "/api/entities", `{"entity_id":"other"}`, http.StatusBadRequest},
		{"bad json", "POST", "/api/entities", `{`, http.StatusBadRequest},
		{"unknown entity", "GET", "/api/entities/ghost/state?at=2020-01-01T00:00:00Z", "", http.StatusNotFound},
		{"unknown entity anchor", "GET", "/api/entities/ghost", "", http.StatusNotFound},
		{"bad at", "GET", "/api/entities/ent/state?at=yesterday", "", http.StatusBadRequest},
		{"bad save", "GET", "/api/entities/ent/state?save=maybe", "", http.StatusBadRequest},
		{"unknown event type", "POST", "/api/entities/ent/events", `{"type":"win_lottery","timestamp":"2020-02-01T00:00:00Z"}`, http.StatusBadRequest},
		{"event without timestamp", "POST", "/api/entities/ent/events", `{"type":"lose_job_fired"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, tt.method, tt.path, tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := testServer(t)
	do(t, srv, "GET", "/api/health", "")

	w := do(t, srv, "GET", "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "eventsim_requests_total") {
		t.Error("expected eventsim_requests_total in metrics output")
	}
}
