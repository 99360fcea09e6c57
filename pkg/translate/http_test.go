package translate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPTranslatorTranslate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/translate" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}

		var req translateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		if req.Text != "bonjour" || req.SourceLanguage != "fr" || req.TargetLanguage != "en" || req.ModelType != "basic" {
			t.Errorf("unexpected request: %+v", req)
		}

		json.NewEncoder(w).Encode(Translation{
			TranslatedText:   "hello",
			DetectedLanguage: "fr",
			Confidence:       0.97,
		})
	}))
	defer srv.Close()

	h := NewHTTPTranslator(HTTPConfig{BaseURL: srv.URL, APIKey: "test-key"})
	tr, err := h.Translate(context.Background(), "bonjour", "fr", "en", "basic")
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if tr.TranslatedText != "hello" || tr.Confidence != 0.97 {
		t.Errorf("unexpected translation: %+v", tr)
	}
}

func TestHTTPTranslatorServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := NewHTTPTranslator(HTTPConfig{BaseURL: srv.URL})
	_, err := h.Translate(context.Background(), "bonjour", "fr", "en", "basic")
	if err == nil {
		t.Fatal("expected an error for a 500 response")
	}
}

func TestHTTPTranslatorBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/translate/batch" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req batchTranslateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}

		out := batchTranslateResponse{}
		for range req.Texts {
			out.TranslatedTexts = append(out.TranslatedTexts, "translated")
		}
		json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	h := NewHTTPTranslator(HTTPConfig{BaseURL: srv.URL})
	out, err := h.TranslateBatch(context.Background(), []string{"un", "deux"}, "fr", "en", "basic")
	if err != nil {
		t.Fatalf("TranslateBatch failed: %v", err)
	}
	if len(out) != 2 {
		t.Errorf("got %d translations, want 2", len(out))
	}
}

func TestHTTPTranslatorBatchUnsupported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	h := NewHTTPTranslator(HTTPConfig{BaseURL: srv.URL})
	_, err := h.TranslateBatch(context.Background(), []string{"un"}, "fr", "en", "basic")
	if !errors.Is(err, ErrBatchUnsupported) {
		t.Fatalf("err = %v, want ErrBatchUnsupported", err)
	}
}

func TestHTTPTranslatorDefaults(t *testing.T) {
	h := NewHTTPTranslator(HTTPConfig{})
	if h.cfg.BaseURL != defaultInferenceURL {
		t.Errorf("BaseURL default = %q", h.cfg.BaseURL)
	}
	if h.cfg.HTTPClient == nil {
		t.Error("HTTPClient should be defaulted")
	}
}
