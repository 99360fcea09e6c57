package translate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MockTranslator is a scripted Translator for tests. Translations come back
// as "[TARGET] text" so assertions can recognize them. It also implements
// BatchTranslator unless DisableBatch is set, in which case batch calls
// report ErrBatchUnsupported and exercise the per-text fallback.
type MockTranslator struct {
	// Delay is added to every call to simulate inference latency.
	Delay time.Duration

	// FailLanguages maps target languages to forced failures.
	FailLanguages map[string]bool

	// DisableBatch makes TranslateBatch report ErrBatchUnsupported.
	DisableBatch bool

	// Gate, when non-nil, blocks every Translate until a value is sent
	// (or the channel is closed). Lets tests control dispatch order.
	Gate chan struct{}

	singleCalls atomic.Int64
	batchCalls  atomic.Int64

	mu         sync.Mutex
	batchSizes []int
}

func (m *MockTranslator) Translate(ctx context.Context, text, sourceLang, targetLang, modelType string) (*Translation, error) {
	m.singleCalls.Add(1)

	if m.Gate != nil {
		select {
		case <-m.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.FailLanguages[targetLang] {
		return nil, fmt.Errorf("inference unavailable for %s", targetLang)
	}
	return &Translation{
		TranslatedText: fmt.Sprintf("[%s] %s", strings.ToUpper(targetLang), text),
		Confidence:     0.9,
	}, nil
}

func (m *MockTranslator) TranslateBatch(ctx context.Context, texts []string, sourceLang, targetLang, modelType string) ([]string, error) {
	if m.DisableBatch {
		return nil, ErrBatchUnsupported
	}
	m.batchCalls.Add(1)
	m.mu.Lock()
	m.batchSizes = append(m.batchSizes, len(texts))
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.FailLanguages[targetLang] {
		return nil, fmt.Errorf("inference unavailable for %s", targetLang)
	}

	out := make([]string, len(texts))
	for i, text := range texts {
		out[i] = fmt.Sprintf("[%s] %s", strings.ToUpper(targetLang), text)
	}
	return out, nil
}

// SingleCalls reports how many Translate calls were made.
func (m *MockTranslator) SingleCalls() int { return int(m.singleCalls.Load()) }

// BatchCalls reports how many TranslateBatch calls were made.
func (m *MockTranslator) BatchCalls() int { return int(m.batchCalls.Load()) }

// BatchSizes returns the size of every batch call in order.
func (m *MockTranslator) BatchSizes() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int, len(m.batchSizes))
	copy(out, m.batchSizes)
	return out
}
