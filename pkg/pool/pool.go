// Package pool runs the translation worker pools: one goroutine pool per
// traffic class with rate-limited autoscaling, and the orchestrator that
// owns the worker loops and ties admission to processing.
package pool

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"babelpool/pkg/logger"
	"babelpool/pkg/tasks"

	"github.com/rs/zerolog"
)

// DefaultScalingInterval rate-limits scaling decisions per pool.
const DefaultScalingInterval = 30 * time.Second

// Config sizes one worker pool.
type Config struct {
	// Name is the pool class, "normal" or "any". It selects the scaling
	// thresholds and prefixes worker names.
	Name string

	// Default is the startup worker count, clamped into [Min, Max].
	Default int
	Min     int
	Max     int

	// ScalingMax caps dynamic growth. Zero or above Max means Max.
	ScalingMax int

	DynamicScaling  bool
	ScalingInterval time.Duration
}

// Scaling table per pool class. The normal pool serves conversation
// traffic and moves in bigger steps than the broadcast pool.
func (c Config) thresholds() (upQueue, downQueue, upStep, downStep int) {
	if c.Name == tasks.PoolNormal {
		return 100, 10, 5, 2
	}
	return 50, 5, 3, 1
}

func (c Config) withDefaults() Config {
	if c.Min < 1 {
		c.Min = 1
	}
	if c.Max < c.Min {
		c.Max = c.Min
	}
	if c.ScalingMax <= 0 || c.ScalingMax > c.Max {
		c.ScalingMax = c.Max
	}
	if c.Default < c.Min {
		c.Default = c.Min
	}
	if c.Default > c.Max {
		c.Default = c.Max
	}
	if c.ScalingInterval <= 0 {
		c.ScalingInterval = DefaultScalingInterval
	}
	return c
}

// WorkerFunc is one worker's loop. It must return promptly once retire is
// closed or the pool stops running.
type WorkerFunc func(name string, retire <-chan struct{})

type workerHandle struct {
	name   string
	retire chan struct{}
}

// Stats is a point-in-time snapshot of one pool.
type Stats struct {
	Name           string  `json:"poolName"`
	CurrentWorkers int     `json:"currentWorkers"`
	ActiveWorkers  int     `json:"activeWorkers"`
	Utilization    float64 `json:"utilization"`
	MinWorkers     int     `json:"minWorkers"`
	MaxWorkers     int     `json:"maxWorkers"`
	TasksProcessed uint64  `json:"tasksProcessed"`
	TasksFailed    uint64  `json:"tasksFailed"`
	ScalingEvents  uint64  `json:"scalingEvents"`
}

// Pool tracks a set of named workers and its scaling state. Scaling is
// split in two: CheckScaling makes the rate-limited decision and moves
// the target count; the orchestrator then reconciles with Spawn or
// Retire. Workers themselves only signal activity through
// IncrementActive/DecrementActive.
type Pool struct {
	cfg Config

	mu        sync.Mutex
	target    int
	workers   []*workerHandle
	seq       int
	lastCheck time.Time
	loop      WorkerFunc

	active  atomic.Int64
	running atomic.Bool
	wg      sync.WaitGroup

	processed     atomic.Uint64
	failed        atomic.Uint64
	scalingEvents atomic.Uint64

	log zerolog.Logger
}

// New creates a pool; workers start with StartWorkers.
func New(cfg Config) *Pool {
	cfg = cfg.withDefaults()
	p := &Pool{
		cfg:    cfg,
		target: cfg.Default,
		log:    logger.With("pool").With().Str("pool", cfg.Name).Logger(),
	}
	p.log.Info().
		Int("workers", cfg.Default).
		Int("min", cfg.Min).
		Int("max", cfg.Max).
		Int("scalingMax", cfg.ScalingMax).
		Msg("worker pool configured")
	return p
}

// StartWorkers launches the configured worker count, each running loop.
func (p *Pool) StartWorkers(loop WorkerFunc) {
	p.running.Store(true)

	p.mu.Lock()
	p.loop = loop
	n := p.target
	for i := 0; i < n; i++ {
		p.spawnLocked()
	}
	p.mu.Unlock()

	p.log.Info().Int("workers", n).Msg("workers started")
}

func (p *Pool) spawnLocked() {
	h := &workerHandle{
		name:   fmt.Sprintf("%s_worker_%d", p.cfg.Name, p.seq),
		retire: make(chan struct{}),
	}
	p.seq++
	p.workers = append(p.workers, h)

	loop := p.loop
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		loop(h.name, h.retire)
	}()
}

// CheckScaling makes one rate-limited scaling decision from the current
// queue depth and utilization. It moves the target count and returns the
// delta the caller must reconcile: positive means spawn that many,
// negative means retire. Zero means no change.
func (p *Pool) CheckScaling(queueLen int, utilization float64) int {
	if !p.cfg.DynamicScaling || !p.running.Load() {
		return 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if now.Sub(p.lastCheck) < p.cfg.ScalingInterval {
		return 0
	}
	p.lastCheck = now

	upQueue, downQueue, upStep, downStep := p.cfg.thresholds()

	if queueLen > upQueue && utilization > 0.8 && p.target < p.cfg.ScalingMax {
		newTarget := min(p.target+upStep, p.cfg.ScalingMax)
		delta := newTarget - p.target
		p.log.Info().
			Int("from", p.target).
			Int("to", newTarget).
			Int("queue", queueLen).
			Float64("utilization", utilization).
			Msg("scaling up")
		p.target = newTarget
		p.scalingEvents.Add(1)
		return delta
	}

	if queueLen < downQueue && utilization < 0.3 && p.target > p.cfg.Min {
		newTarget := max(p.target-downStep, p.cfg.Min)
		delta := newTarget - p.target
		p.log.Info().
			Int("from", p.target).
			Int("to", newTarget).
			Int("queue", queueLen).
			Float64("utilization", utilization).
			Msg("scaling down")
		p.target = newTarget
		p.scalingEvents.Add(1)
		return delta
	}

	return 0
}

// Spawn starts n additional workers with the loop from StartWorkers.
func (p *Pool) Spawn(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loop == nil {
		return
	}
	for i := 0; i < n; i++ {
		p.spawnLocked()
	}
}

// Retire closes the retire channel of the n newest workers. Each exits
// after finishing its current task; a worker may retire itself.
func (p *Pool) Retire(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < n && len(p.workers) > 0; i++ {
		last := len(p.workers) - 1
		close(p.workers[last].retire)
		p.log.Debug().Str("worker", p.workers[last].name).Msg("worker retirement signaled")
		p.workers = p.workers[:last]
	}
}

// StopWorkers flips the running flag and waits for every worker,
// including already-retired ones, to return.
func (p *Pool) StopWorkers() {
	p.log.Info().Msg("stopping workers")
	p.running.Store(false)
	p.wg.Wait()
	p.log.Info().Msg("all workers stopped")
}

// Running reports whether worker loops should keep iterating.
func (p *Pool) Running() bool { return p.running.Load() }

// IncrementActive marks one worker busy.
func (p *Pool) IncrementActive() { p.active.Add(1) }

// DecrementActive marks one worker idle again.
func (p *Pool) DecrementActive() {
	if p.active.Add(-1) < 0 {
		p.active.Store(0)
	}
}

// RecordProcessed counts one finished item.
func (p *Pool) RecordProcessed() { p.processed.Add(1) }

// RecordFailed counts one failed item.
func (p *Pool) RecordFailed() { p.failed.Add(1) }

// Utilization is active workers over the target count.
func (p *Pool) Utilization() float64 {
	p.mu.Lock()
	target := p.target
	p.mu.Unlock()
	if target == 0 {
		return 0
	}
	return float64(p.active.Load()) / float64(target)
}

// TargetWorkers returns the current scaling target.
func (p *Pool) TargetWorkers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.target
}

// ActiveWorkers returns how many workers are processing right now.
func (p *Pool) ActiveWorkers() int { return int(p.active.Load()) }

// Name returns the pool class.
func (p *Pool) Name() string { return p.cfg.Name }

// Stats returns a snapshot of the pool.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	target := p.target
	p.mu.Unlock()

	return Stats{
		Name:           p.cfg.Name,
		CurrentWorkers: target,
		ActiveWorkers:  int(p.active.Load()),
		Utilization:    p.Utilization(),
		MinWorkers:     p.cfg.Min,
		MaxWorkers:     p.cfg.Max,
		TasksProcessed: p.processed.Load(),
		TasksFailed:    p.failed.Load(),
		ScalingEvents:  p.scalingEvents.Load(),
	}
}
