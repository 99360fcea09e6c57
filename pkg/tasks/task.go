// Package tasks defines the core data structures for translation work in the babelpool system.
// Tasks are units of translation that can be enqueued, grouped into batches sharing a language
// pair and model, and processed by pool workers.
package tasks

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Task represents one translation request to be processed by the worker pools.
// A single task fans out into one result per target language.
type Task struct {
	// TaskID is a unique identifier for the task (typically UUID).
	TaskID string `json:"taskId"`

	// MessageID ties results back to the originating chat message.
	MessageID string `json:"messageId"`

	// ConversationID routes the task to a pool: the literal value "any"
	// selects the broadcast pool, everything else the normal pool.
	ConversationID string `json:"conversationId"`

	// Text is the source text to translate.
	Text string `json:"text"`

	// SourceLanguage is an ISO 639-1 code (e.g. "fr").
	SourceLanguage string `json:"sourceLanguage"`

	// TargetLanguages lists every language this task must be translated into.
	TargetLanguages []string `json:"targetLanguages"`

	// ModelType selects the inference model family (e.g. "basic", "premium").
	ModelType string `json:"modelType"`

	// Priority determines dispatch order. Lower value = more urgent.
	// 1 = High, 2 = Medium, 3 = Low, 4 = Bulk (batches).
	Priority int `json:"priority"`

	// CreatedAt is the timestamp when the task was admitted; queue time
	// reported on results is measured from it.
	CreatedAt time.Time `json:"createdAt"`
}

const (
	PriorityHigh   = 1
	PriorityMedium = 2
	PriorityLow    = 3
	PriorityBulk   = 4
)

// Text-length cutoffs for priority derivation. Short texts are the
// latency-sensitive ones (live chat), so they rank highest.
const (
	DefaultShortTextThreshold = 100
	DefaultLongTextThreshold  = 500
)

// Pool names used for routing. The fast lane is not a home pool: short
// tasks that cannot fast-track fall back to their home pool.
const (
	PoolNormal = "normal"
	PoolAny    = "any"
)

// New creates a Task with CreatedAt set to now. When priority is outside
// [1,4] it is derived from the text length using the default thresholds;
// callers with configured thresholds should pass an explicit level.
func New(taskID, messageID, conversationID, text, sourceLanguage string, targetLanguages []string, modelType string, priority int) *Task {
	if priority < PriorityHigh || priority > PriorityBulk {
		priority = DerivePriority(len(text), DefaultShortTextThreshold, DefaultLongTextThreshold)
	}
	return &Task{
		TaskID:          taskID,
		MessageID:       messageID,
		ConversationID:  conversationID,
		Text:            text,
		SourceLanguage:  sourceLanguage,
		TargetLanguages: targetLanguages,
		ModelType:       modelType,
		Priority:        priority,
		CreatedAt:       time.Now(),
	}
}

// DerivePriority maps a text length onto a priority level: short texts are
// high, medium-length texts medium, everything else low. Bulk is reserved
// for batches and never derived.
func DerivePriority(textLen, shortThreshold, longThreshold int) int {
	switch {
	case textLen < shortThreshold:
		return PriorityHigh
	case textLen < longThreshold:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// ItemID implements Item.
func (t *Task) ItemID() string { return t.TaskID }

// Size implements Item. A single task counts as one unit of work.
func (t *Task) Size() int { return 1 }

// Home returns the pool this task belongs to when it does not fast-track.
func (t *Task) Home() string {
	if t.ConversationID == PoolAny {
		return PoolAny
	}
	return PoolNormal
}

// BatchKey groups tasks that can share one batched inference call:
// same source language, same set of target languages, same model.
// Target languages are sorted so the key is order-insensitive.
func (t *Task) BatchKey() string {
	targets := make([]string, len(t.TargetLanguages))
	copy(targets, t.TargetLanguages)
	sort.Strings(targets)
	return t.SourceLanguage + "_" + strings.Join(targets, "_") + "_" + t.ModelType
}

// Batch is a group of tasks with a shared batch key, materialized by the
// admission window. It dispatches as one queue entry and translates with
// one inference call per target language.
type Batch struct {
	// ID is synthetic: batch_<first task id>_<count>.
	ID string `json:"batchId"`

	Tasks           []*Task   `json:"tasks"`
	SourceLanguage  string    `json:"sourceLanguage"`
	TargetLanguages []string  `json:"targetLanguages"`
	ModelType       string    `json:"modelType"`
	CreatedAt       time.Time `json:"createdAt"`
}

// NewBatch wraps tasks sharing a batch key. The slice must be non-empty;
// task order is preserved so batch indices line up with the original
// admission order. Batches always dispatch at bulk priority.
func NewBatch(ts []*Task) *Batch {
	first := ts[0]
	return &Batch{
		ID:              fmt.Sprintf("batch_%s_%d", first.TaskID, len(ts)),
		Tasks:           ts,
		SourceLanguage:  first.SourceLanguage,
		TargetLanguages: first.TargetLanguages,
		ModelType:       first.ModelType,
		CreatedAt:       first.CreatedAt,
	}
}

// ItemID implements Item.
func (b *Batch) ItemID() string { return b.ID }

// Size implements Item.
func (b *Batch) Size() int { return len(b.Tasks) }

// Home routes the batch to the home pool of its first task.
func (b *Batch) Home() string { return b.Tasks[0].Home() }

// Item is the unit the admission queues carry: a single *Task or a *Batch.
// Dequeue sites decide the processing path with a type switch on the
// concrete type rather than sniffing fields.
type Item interface {
	ItemID() string
	Size() int
	Home() string
}
