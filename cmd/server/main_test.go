package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"babelpool/pkg/pool"
	"babelpool/pkg/tasks"
	"babelpool/pkg/translate"
	"babelpool/pkg/transport"
)

func newTestRouter(t *testing.T, apiKey string) (*http.ServeMux, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	srv := transport.NewServer(rdb, transport.Config{})
	proc := translate.NewProcessor(&translate.MockTranslator{}, nil, func(*tasks.Task, *tasks.Result) {})
	mgr := pool.NewManager(pool.ManagerConfig{}, proc)

	return setupRouter(mgr, srv, rdb, apiKey), mr
}

func TestAuthMiddleware(t *testing.T) {
	mux, _ := newTestRouter(t, "secret-key")

	tests := []struct {
		name           string
		headerValue    string
		expectedStatus int
	}{
		{"No API Key", "", http.StatusUnauthorized},
		{"Wrong API Key", "wrong-key", http.StatusUnauthorized},
		{"Correct API Key", "secret-key", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/stats", nil)
			if tt.headerValue != "" {
				req.Header.Set("X-API-Key", tt.headerValue)
			}

			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

func TestAuthDisabled(t *testing.T) {
	mux, _ := newTestRouter(t, "")

	req := httptest.NewRequest("GET", "/stats", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 with auth disabled, got %d", w.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	mux, _ := newTestRouter(t, "")

	req := httptest.NewRequest("GET", "/stats", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var stats pool.ManagerStats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("Failed to decode stats: %v", err)
	}
	if stats.NormalPool.Name != "normal" || stats.AnyPool.Name != "any" {
		t.Errorf("pool names = %q/%q", stats.NormalPool.Name, stats.AnyPool.Name)
	}
}

func TestStatsRejectsPost(t *testing.T) {
	mux, _ := newTestRouter(t, "")

	req := httptest.NewRequest("POST", "/stats", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", w.Code)
	}
}

func TestScheduleEndpoint(t *testing.T) {
	mux, _ := newTestRouter(t, "")

	body := `{"spec": "0 * * * * *", "text": "rapport", "targetLanguages": ["en"]}`
	req := httptest.NewRequest("POST", "/schedule", strings.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		EntryID int `json:"entryId"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.EntryID < 1 {
		t.Errorf("entryId = %d, want >= 1", resp.EntryID)
	}
}

func TestScheduleValidation(t *testing.T) {
	mux, _ := newTestRouter(t, "")

	tests := []struct {
		name string
		body string
	}{
		{"bad cron spec", `{"spec": "nope", "text": "x", "targetLanguages": ["en"]}`},
		{"missing text", `{"spec": "0 * * * * *", "targetLanguages": ["en"]}`},
		{"missing targets", `{"spec": "0 * * * * *", "text": "x"}`},
		{"malformed json", `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/schedule", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", w.Code)
			}
		})
	}
}

func TestHealthz(t *testing.T) {
	mux, mr := newTestRouter(t, "with-key-still-open")

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	// Redis going away flips the probe to 503.
	mr.Close()
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 after Redis shutdown, got %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	mux, _ := newTestRouter(t, "secret-key")

	req := httptest.NewRequest("OPTIONS", "/stats", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	// Preflight must succeed without credentials.
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 for preflight, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q", got)
	}
}
