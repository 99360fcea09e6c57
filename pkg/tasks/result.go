package tasks

import "fmt"

// Confidence levels attached to results. Cache hits report just below 1.0
// so consumers can tell them apart from fresh inference output.
const (
	CacheHitConfidence = 0.99
	DefaultConfidence  = 0.95
)

// Result is one translation outcome for a (task, target language) pair.
// Field names follow the wire format consumed downstream, hence camelCase.
type Result struct {
	MessageID      string  `json:"messageId"`
	TranslatedText string  `json:"translatedText"`
	SourceLanguage string  `json:"sourceLanguage"`
	TargetLanguage string  `json:"targetLanguage"`
	Confidence     float64 `json:"confidence"`

	// ProcessingTime is wall-clock seconds spent translating.
	ProcessingTime float64 `json:"processingTime"`

	ModelType string `json:"modelType"`
	FromCache bool   `json:"fromCache"`

	// BatchSize and BatchIndex are set only for results produced through
	// the batch path; BatchSize zero means the single path.
	BatchSize  int `json:"batchSize,omitempty"`
	BatchIndex int `json:"batchIndex,omitempty"`

	PoolType string `json:"poolType,omitempty"`
	WorkerID string `json:"workerId,omitempty"`

	// QueueTime is seconds between admission and publication, filled in by
	// the transport at publish time.
	QueueTime float64 `json:"queueTime,omitempty"`

	// Error carries the failure reason for error results; empty on success.
	Error string `json:"error,omitempty"`
}

// ErrorResult builds the per-language failure record for a task. The
// translated text carries the reason so downstreams that only render text
// still surface the failure.
func ErrorResult(t *Task, targetLanguage string, err error) *Result {
	return &Result{
		MessageID:      t.MessageID,
		TranslatedText: fmt.Sprintf("[ERROR: %v]", err),
		SourceLanguage: t.SourceLanguage,
		TargetLanguage: targetLanguage,
		Confidence:     0,
		ModelType:      t.ModelType,
		Error:          err.Error(),
	}
}
