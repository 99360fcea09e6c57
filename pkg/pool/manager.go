package pool

import (
	"context"
	"sync/atomic"
	"time"

	"babelpool/pkg/logger"
	"babelpool/pkg/queue"
	"babelpool/pkg/tasks"

	"github.com/rs/zerolog"
)

// DefaultPopTimeout bounds how long an idle worker waits for work before
// re-checking its retirement and scaling state.
const DefaultPopTimeout = time.Second

// Processor runs the two translation paths. Implemented by
// translate.Processor; narrowed here so tests can script it.
type Processor interface {
	ProcessSingle(ctx context.Context, t *tasks.Task, workerName string) int
	ProcessBatch(ctx context.Context, b *tasks.Batch, workerName string) int
}

// ManagerConfig assembles the admission layer and both pools.
type ManagerConfig struct {
	Queue  queue.Config
	Normal Config
	Any    Config

	// PopTimeout is the per-iteration dequeue wait; DefaultPopTimeout
	// when zero.
	PopTimeout time.Duration
}

// ManagerStats aggregates everything the service reports about itself.
type ManagerStats struct {
	UptimeSeconds         float64 `json:"uptimeSeconds"`
	TasksProcessed        uint64  `json:"tasksProcessed"`
	TasksFailed           uint64  `json:"tasksFailed"`
	TranslationsCompleted uint64  `json:"translationsCompleted"`

	// AvgProcessingTime is mean seconds per dispatched item.
	AvgProcessingTime float64 `json:"avgProcessingTime"`

	Queues     queue.Stats `json:"queues"`
	NormalPool Stats       `json:"normalPool"`
	AnyPool    Stats       `json:"anyPool"`
}

// Manager is the orchestrator: it owns the admission queues, both worker
// pools and the worker loops connecting them to the processor.
type Manager struct {
	queues *queue.Manager
	normal *Pool
	any    *Pool
	proc   Processor

	popTimeout time.Duration
	startTime  time.Time

	started atomic.Bool
	stopped atomic.Bool

	tasksProcessed        atomic.Uint64
	tasksFailed           atomic.Uint64
	translationsCompleted atomic.Uint64
	processingNanos       atomic.Int64

	log zerolog.Logger
}

// NewManager builds the orchestrator. Pool names are fixed here; callers
// only size them.
func NewManager(cfg ManagerConfig, proc Processor) *Manager {
	cfg.Normal.Name = tasks.PoolNormal
	cfg.Any.Name = tasks.PoolAny
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = DefaultPopTimeout
	}

	return &Manager{
		queues:     queue.NewManager(cfg.Queue),
		normal:     New(cfg.Normal),
		any:        New(cfg.Any),
		proc:       proc,
		popTimeout: cfg.PopTimeout,
		log:        logger.With("pool-manager"),
	}
}

// Enqueue admits one task. False means rejected: queue full or manager
// stopped.
func (m *Manager) Enqueue(t *tasks.Task) bool {
	return m.queues.Enqueue(t)
}

// Start launches the flush loop and both worker pools.
func (m *Manager) Start() {
	if m.started.Swap(true) {
		return
	}
	m.startTime = time.Now()
	m.queues.Start()
	m.normal.StartWorkers(m.workerLoop(m.normal))
	m.any.StartWorkers(m.workerLoop(m.any))
	m.log.Info().
		Int("normalWorkers", m.normal.TargetWorkers()).
		Int("anyWorkers", m.any.TargetWorkers()).
		Msg("translation pool manager started")
}

// Stop shuts down in an order that loses nothing already admitted: close
// admission and flush the accumulator, let the workers drain the queues,
// then stop the workers and wait for in-flight items.
func (m *Manager) Stop() {
	if m.stopped.Swap(true) {
		return
	}
	m.log.Info().Msg("stopping translation pool manager")

	m.queues.Stop()

	if m.started.Load() {
		for m.queues.Backlog() > 0 {
			time.Sleep(10 * time.Millisecond)
		}
	}

	m.normal.StopWorkers()
	m.any.StopWorkers()

	m.log.Info().
		Uint64("tasksProcessed", m.tasksProcessed.Load()).
		Uint64("translationsCompleted", m.translationsCompleted.Load()).
		Msg("translation pool manager stopped")
}

// workerLoop builds the loop body for one pool. Every iteration:
// retirement check, scaling check plus reconciliation, dequeue with the
// fast lane first, then the type switch into the processing paths.
func (m *Manager) workerLoop(p *Pool) WorkerFunc {
	return func(name string, retire <-chan struct{}) {
		m.log.Info().Str("worker", name).Msg("worker started")

		for p.Running() {
			select {
			case <-retire:
				m.log.Info().Str("worker", name).Msg("worker retired")
				return
			default:
			}

			if delta := p.CheckScaling(m.queues.Len(p.Name()), p.Utilization()); delta > 0 {
				p.Spawn(delta)
			} else if delta < 0 {
				p.Retire(-delta)
			}

			item := m.queues.Next(p.Name(), m.popTimeout)
			if item == nil {
				continue
			}

			p.IncrementActive()
			m.processItem(item, name, p)
			p.DecrementActive()
		}

		m.log.Info().Str("worker", name).Msg("worker stopped")
	}
}

// processItem dispatches one queue entry. A panic inside a processing
// path must not take the worker loop down; it is logged and counted like
// any other failure.
func (m *Manager) processItem(item tasks.Item, workerName string, p *Pool) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().
				Interface("panic", r).
				Str("worker", workerName).
				Str("itemId", item.ItemID()).
				Msg("panic while processing item")
			p.RecordFailed()
			m.tasksFailed.Add(1)
		}
	}()

	ctx := context.Background()
	completed := 0

	switch it := item.(type) {
	case *tasks.Batch:
		if it.Size() > 1 {
			completed = m.proc.ProcessBatch(ctx, it, workerName)
		} else if it.Size() == 1 {
			// A batch of one takes the single path.
			completed = m.proc.ProcessSingle(ctx, it.Tasks[0], workerName)
		}
	case *tasks.Task:
		completed = m.proc.ProcessSingle(ctx, it, workerName)
	default:
		m.log.Error().Str("itemId", item.ItemID()).Msg("unknown queue item type")
		p.RecordFailed()
		m.tasksFailed.Add(1)
		return
	}

	m.tasksProcessed.Add(1)
	m.translationsCompleted.Add(uint64(completed))
	m.processingNanos.Add(time.Since(start).Nanoseconds())
	p.RecordProcessed()
}

// Stats returns a snapshot across the manager, queues and both pools.
func (m *Manager) Stats() ManagerStats {
	processed := m.tasksProcessed.Load()
	avg := 0.0
	if processed > 0 {
		avg = float64(m.processingNanos.Load()) / float64(processed) / float64(time.Second)
	}

	uptime := 0.0
	if m.started.Load() {
		uptime = time.Since(m.startTime).Seconds()
	}

	return ManagerStats{
		UptimeSeconds:         uptime,
		TasksProcessed:        processed,
		TasksFailed:           m.tasksFailed.Load(),
		TranslationsCompleted: m.translationsCompleted.Load(),
		AvgProcessingTime:     avg,
		Queues:                m.queues.Stats(),
		NormalPool:            m.normal.Stats(),
		AnyPool:               m.any.Stats(),
	}
}

// Queues exposes the admission layer, mainly for tests and diagnostics.
func (m *Manager) Queues() *queue.Manager { return m.queues }
