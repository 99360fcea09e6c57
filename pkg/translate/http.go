package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultInferenceURL = "http://localhost:8000"

// HTTPConfig configures the HTTP inference client.
type HTTPConfig struct {
	// BaseURL of the inference service, without a trailing slash.
	BaseURL string
	// APIKey is sent as a bearer token when non-empty.
	APIKey string
	// Timeout for each request; 30s when zero.
	Timeout time.Duration
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// HTTPTranslator talks to the inference service over JSON HTTP. It
// implements both Translator and BatchTranslator; a backend without the
// batch endpoint is detected at call time and reported as
// ErrBatchUnsupported.
type HTTPTranslator struct {
	cfg HTTPConfig
}

// NewHTTPTranslator creates the client, applying defaults for anything
// unset in cfg.
func NewHTTPTranslator(cfg HTTPConfig) *HTTPTranslator {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultInferenceURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPTranslator{cfg: cfg}
}

type translateRequest struct {
	Text           string `json:"text"`
	SourceLanguage string `json:"sourceLanguage"`
	TargetLanguage string `json:"targetLanguage"`
	ModelType      string `json:"modelType"`
}

type batchTranslateRequest struct {
	Texts          []string `json:"texts"`
	SourceLanguage string   `json:"sourceLanguage"`
	TargetLanguage string   `json:"targetLanguage"`
	ModelType      string   `json:"modelType"`
}

type batchTranslateResponse struct {
	TranslatedTexts []string `json:"translatedTexts"`
}

// Translate requests a single translation.
func (h *HTTPTranslator) Translate(ctx context.Context, text, sourceLang, targetLang, modelType string) (*Translation, error) {
	var out Translation
	_, err := h.post(ctx, "/translate", translateRequest{
		Text:           text,
		SourceLanguage: sourceLang,
		TargetLanguage: targetLang,
		ModelType:      modelType,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// TranslateBatch requests one translation call for several texts. A 404 or
// 405 from the batch endpoint means the backend predates it.
func (h *HTTPTranslator) TranslateBatch(ctx context.Context, texts []string, sourceLang, targetLang, modelType string) ([]string, error) {
	var out batchTranslateResponse
	status, err := h.post(ctx, "/translate/batch", batchTranslateRequest{
		Texts:          texts,
		SourceLanguage: sourceLang,
		TargetLanguage: targetLang,
		ModelType:      modelType,
	}, &out)
	if status == http.StatusNotFound || status == http.StatusMethodNotAllowed {
		return nil, ErrBatchUnsupported
	}
	if err != nil {
		return nil, err
	}
	return out.TranslatedTexts, nil
}

func (h *HTTPTranslator) post(ctx context.Context, path string, in, out any) (int, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.cfg.APIKey)
	}

	resp, err := h.cfg.HTTPClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("inference request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, fmt.Errorf("inference returned %d: %s", resp.StatusCode, snippet(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}

// snippet truncates an error body for logging.
func snippet(data []byte) string {
	const max = 200
	if len(data) > max {
		return string(data[:max]) + "..."
	}
	return string(data)
}
