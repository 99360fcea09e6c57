// Package queue implements the admission layer of the translation backend:
// three bounded in-process queues (normal, any, fast), short-text fast
// tracking, and a windowed batch accumulator that groups compatible tasks
// into single dispatch units.
package queue

import (
	"sync"
	"sync/atomic"
	"time"

	"babelpool/pkg/logger"
	"babelpool/pkg/tasks"

	"github.com/rs/zerolog"
)

// Default capacities and batching knobs, matching the service defaults.
const (
	DefaultNormalSize = 10000
	DefaultAnySize    = 10000
	DefaultFastSize   = 5000

	DefaultBatchWindow  = 50 * time.Millisecond
	DefaultBatchMaxSize = 10
)

// Config sizes the queues and controls fast tracking and batching.
// Zero numeric values fall back to the defaults above; the boolean
// switches are taken as-is.
type Config struct {
	NormalSize int
	AnySize    int
	FastSize   int

	BatchEnabled bool
	BatchWindow  time.Duration
	BatchMaxSize int

	PriorityQueueEnabled bool
	ShortTextThreshold   int
}

func (c Config) withDefaults() Config {
	if c.NormalSize <= 0 {
		c.NormalSize = DefaultNormalSize
	}
	if c.AnySize <= 0 {
		c.AnySize = DefaultAnySize
	}
	if c.FastSize <= 0 {
		c.FastSize = DefaultFastSize
	}
	if c.BatchWindow <= 0 {
		c.BatchWindow = DefaultBatchWindow
	}
	if c.BatchMaxSize <= 0 {
		c.BatchMaxSize = DefaultBatchMaxSize
	}
	if c.ShortTextThreshold <= 0 {
		c.ShortTextThreshold = tasks.DefaultShortTextThreshold
	}
	return c
}

// Stats is a point-in-time snapshot of the admission layer.
type Stats struct {
	NormalQueued int `json:"normalPoolSize"`
	AnyQueued    int `json:"anyPoolSize"`
	FastQueued   int `json:"fastPoolSize"`

	Rejections     uint64 `json:"poolFullRejections"`
	BatchesCreated uint64 `json:"batchesCreated"`
	FastTracked    uint64 `json:"fastTrackCount"`

	// PendingBatch counts tasks sitting in the accumulator, admitted but
	// not yet materialized into a batch.
	PendingBatch int `json:"pendingBatch"`
}

// Manager owns the queues and the batch accumulator. Enqueue is safe for
// concurrent use; Start and Stop bracket the flush loop.
type Manager struct {
	cfg Config

	fast   chan tasks.Item
	normal chan tasks.Item
	any    chan tasks.Item

	mu  sync.Mutex
	acc map[string][]*tasks.Task

	started atomic.Bool
	closed  atomic.Bool
	stopc   chan struct{}
	done    chan struct{}

	rejections     atomic.Uint64
	batchesCreated atomic.Uint64
	fastTracked    atomic.Uint64

	log zerolog.Logger
}

// NewManager creates the admission layer. Call Start to run the batch
// flush loop when batching is enabled.
func NewManager(cfg Config) *Manager {
	cfg = cfg.withDefaults()
	m := &Manager{
		cfg:    cfg,
		fast:   make(chan tasks.Item, cfg.FastSize),
		normal: make(chan tasks.Item, cfg.NormalSize),
		any:    make(chan tasks.Item, cfg.AnySize),
		acc:    make(map[string][]*tasks.Task),
		stopc:  make(chan struct{}),
		done:   make(chan struct{}),
		log:    logger.With("queue"),
	}
	m.log.Info().
		Int("normal", cfg.NormalSize).
		Int("any", cfg.AnySize).
		Int("fast", cfg.FastSize).
		Bool("batching", cfg.BatchEnabled).
		Dur("window", cfg.BatchWindow).
		Int("batchMax", cfg.BatchMaxSize).
		Msg("admission queues initialized")
	return m
}

// Start launches the batch flush loop. No-op when batching is disabled.
func (m *Manager) Start() {
	if m.started.Swap(true) || !m.cfg.BatchEnabled {
		return
	}
	go m.flushLoop()
	m.log.Info().Dur("window", m.cfg.BatchWindow).Msg("batch flush loop started")
}

// Stop closes admission, stops the flush loop and performs one final
// flush so every admitted task reaches a queue. Callers must keep
// draining the queues afterwards; flushed batches are never dropped.
func (m *Manager) Stop() {
	if m.closed.Swap(true) {
		return
	}
	close(m.stopc)
	if m.started.Load() && m.cfg.BatchEnabled {
		<-m.done
	}
	m.flush()
	m.log.Info().Msg("admission layer stopped")
}

// Enqueue admits one task. The decision order is: fast lane for short
// texts, batch accumulator, direct home-queue send. Returns false when
// the task was rejected (home queue full, or manager stopped) and the
// caller still owns it.
func (m *Manager) Enqueue(t *tasks.Task) bool {
	if m.closed.Load() {
		m.log.Warn().Str("taskId", t.TaskID).Msg("enqueue after stop rejected")
		return false
	}

	if m.cfg.PriorityQueueEnabled && len(t.Text) < m.cfg.ShortTextThreshold {
		select {
		case m.fast <- t:
			m.fastTracked.Add(1)
			m.log.Debug().
				Str("taskId", t.TaskID).
				Int("chars", len(t.Text)).
				Msg("task fast-tracked")
			return true
		default:
			// Fast lane full; the task still gets its home-pool shot.
		}
	}

	if m.cfg.BatchEnabled {
		var flush []*tasks.Task
		m.mu.Lock()
		key := t.BatchKey()
		m.acc[key] = append(m.acc[key], t)
		if len(m.acc[key]) >= m.cfg.BatchMaxSize {
			flush = m.acc[key]
			delete(m.acc, key)
		}
		m.mu.Unlock()

		if flush != nil {
			m.enqueueBatch(flush)
			m.log.Debug().Int("tasks", len(flush)).Msg("max batch size reached, immediate flush")
		}
		return true
	}

	return m.enqueueSingle(t)
}

func (m *Manager) enqueueSingle(t *tasks.Task) bool {
	home := m.homeChan(t.Home())
	select {
	case home <- t:
		m.log.Debug().
			Str("taskId", t.TaskID).
			Str("pool", t.Home()).
			Int("depth", len(home)).
			Msg("task queued")
		return true
	default:
		m.rejections.Add(1)
		m.log.Warn().
			Str("taskId", t.TaskID).
			Str("pool", t.Home()).
			Msg("pool full, rejecting task")
		return false
	}
}

// enqueueBatch materializes one accumulator bucket as a single queue
// entry. Accumulated tasks were already admitted, so a full home queue
// blocks the flush instead of dropping the batch.
func (m *Manager) enqueueBatch(ts []*tasks.Task) {
	b := tasks.NewBatch(ts)
	m.homeChan(b.Home()) <- b
	m.batchesCreated.Add(1)
}

// Next returns the next item for a pool, draining the fast lane before
// the home queue on every poll. It waits up to timeout and returns nil
// when nothing arrived.
func (m *Manager) Next(pool string, timeout time.Duration) tasks.Item {
	select {
	case it := <-m.fast:
		return it
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case it := <-m.fast:
		return it
	case it := <-m.homeChan(pool):
		return it
	case <-timer.C:
		return nil
	}
}

// Len reports the current depth of a home queue.
func (m *Manager) Len(pool string) int {
	return len(m.homeChan(pool))
}

// Backlog reports everything admitted but not yet dispatched, including
// tasks still sitting in the accumulator.
func (m *Manager) Backlog() int {
	m.mu.Lock()
	pending := 0
	for _, ts := range m.acc {
		pending += len(ts)
	}
	m.mu.Unlock()
	return len(m.fast) + len(m.normal) + len(m.any) + pending
}

// Stats returns a snapshot of queue depths and counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	pending := 0
	for _, ts := range m.acc {
		pending += len(ts)
	}
	m.mu.Unlock()

	return Stats{
		NormalQueued:   len(m.normal),
		AnyQueued:      len(m.any),
		FastQueued:     len(m.fast),
		Rejections:     m.rejections.Load(),
		BatchesCreated: m.batchesCreated.Load(),
		FastTracked:    m.fastTracked.Load(),
		PendingBatch:   pending,
	}
}

func (m *Manager) homeChan(pool string) chan tasks.Item {
	if pool == tasks.PoolAny {
		return m.any
	}
	return m.normal
}

func (m *Manager) flushLoop() {
	defer close(m.done)
	ticker := time.NewTicker(m.cfg.BatchWindow)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopc:
			return
		case <-ticker.C:
			m.flush()
		}
	}
}

// flush swaps the accumulator out under the lock, then materializes the
// buckets outside it so admissions never wait on queue capacity.
func (m *Manager) flush() {
	m.mu.Lock()
	if len(m.acc) == 0 {
		m.mu.Unlock()
		return
	}
	buckets := m.acc
	m.acc = make(map[string][]*tasks.Task)
	m.mu.Unlock()

	for _, ts := range buckets {
		if len(ts) == 0 {
			continue
		}
		m.enqueueBatch(ts)
		m.log.Debug().
			Int("tasks", len(ts)).
			Str("pool", ts[0].Home()).
			Msg("batch flushed")
	}
}
