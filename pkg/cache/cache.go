// Package cache stores finished translations keyed by source text, language
// pair and model, so repeated chat lines skip inference entirely.
package cache

import "context"

// Entry is a cached translation.
type Entry struct {
	TranslatedText string `json:"translatedText"`
	SourceLanguage string `json:"sourceLanguage"`
	ModelType      string `json:"modelType"`
}

// TranslationCache is the result cache collaborator. Get returns (nil, nil)
// on a miss; implementations must never fabricate entries.
type TranslationCache interface {
	Get(ctx context.Context, text, sourceLang, targetLang, modelType string) (*Entry, error)
	Set(ctx context.Context, text, sourceLang, targetLang, modelType, translatedText string) error
}
