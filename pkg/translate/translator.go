// Package translate executes translation work against an inference
// collaborator, consulting the result cache and publishing one result per
// (task, target language) pair.
package translate

import (
	"context"
	"errors"

	"babelpool/pkg/tasks"
)

// Translation is the inference response for one text.
type Translation struct {
	TranslatedText string `json:"translatedText"`

	// DetectedLanguage is the source language the model actually saw,
	// when it differs from the declared one.
	DetectedLanguage string `json:"detectedLanguage,omitempty"`

	// Confidence in (0,1]; zero means the backend did not report one.
	Confidence float64 `json:"confidence,omitempty"`
}

// Translator is the minimal inference collaborator.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang, modelType string) (*Translation, error)
}

// BatchTranslator is the optional capability of translating several texts
// in one call. The processor probes for it with a type assertion and falls
// back to per-text calls when it is absent or reports ErrBatchUnsupported.
type BatchTranslator interface {
	TranslateBatch(ctx context.Context, texts []string, sourceLang, targetLang, modelType string) ([]string, error)
}

// ErrBatchUnsupported signals that the backend has no batch endpoint; the
// caller should retry text by text.
var ErrBatchUnsupported = errors.New("batch translation not supported")

// PublishFunc delivers a finished result. The task is passed alongside so
// transports can attach task-level metadata (id, queue time) without the
// result having to carry it.
type PublishFunc func(task *tasks.Task, result *tasks.Result)
