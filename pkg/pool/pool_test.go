package pool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"babelpool/pkg/tasks"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

// alwaysCheck makes every CheckScaling call pass the rate limiter.
const alwaysCheck = time.Nanosecond

func noopLoop(string, <-chan struct{}) {}

func TestCheckScalingDisabled(t *testing.T) {
	p := New(Config{Name: tasks.PoolNormal, Default: 4, Min: 2, Max: 40})
	p.StartWorkers(noopLoop)
	defer p.StopWorkers()

	if delta := p.CheckScaling(1000, 1.0); delta != 0 {
		t.Errorf("delta = %d with scaling disabled, want 0", delta)
	}
}

func TestCheckScalingRateLimited(t *testing.T) {
	p := New(Config{
		Name: tasks.PoolNormal, Default: 4, Min: 2, Max: 40,
		DynamicScaling: true, ScalingInterval: time.Hour,
	})
	p.StartWorkers(noopLoop)
	defer p.StopWorkers()

	if delta := p.CheckScaling(1000, 1.0); delta != 5 {
		t.Fatalf("first check delta = %d, want 5", delta)
	}
	if delta := p.CheckScaling(1000, 1.0); delta != 0 {
		t.Errorf("second check inside the interval delta = %d, want 0", delta)
	}
}

func TestCheckScalingNormalTable(t *testing.T) {
	tests := []struct {
		name     string
		queueLen int
		util     float64
		want     int
	}{
		{"busy queue and busy workers scale up", 150, 0.9, 5},
		{"busy queue alone does not", 150, 0.5, 0},
		{"busy workers alone do not", 50, 0.95, 0},
		{"idle queue and idle workers scale down", 5, 0.1, -2},
		{"idle queue with busy workers holds", 5, 0.6, 0},
		{"middle ground holds", 50, 0.5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(Config{
				Name: tasks.PoolNormal, Default: 10, Min: 2, Max: 40,
				DynamicScaling: true, ScalingInterval: alwaysCheck,
			})
			p.StartWorkers(noopLoop)
			defer p.StopWorkers()

			if delta := p.CheckScaling(tt.queueLen, tt.util); delta != tt.want {
				t.Errorf("CheckScaling(%d, %v) = %d, want %d", tt.queueLen, tt.util, delta, tt.want)
			}
		})
	}
}

func TestCheckScalingAnyTable(t *testing.T) {
	p := New(Config{
		Name: tasks.PoolAny, Default: 4, Min: 2, Max: 20,
		DynamicScaling: true, ScalingInterval: alwaysCheck,
	})
	p.StartWorkers(noopLoop)
	defer p.StopWorkers()

	if delta := p.CheckScaling(60, 0.9); delta != 3 {
		t.Errorf("any pool scale up delta = %d, want 3", delta)
	}
	if delta := p.CheckScaling(3, 0.1); delta != -1 {
		t.Errorf("any pool scale down delta = %d, want -1", delta)
	}
}

func TestScalingStaysInsideBounds(t *testing.T) {
	p := New(Config{
		Name: tasks.PoolNormal, Default: 4, Min: 2, Max: 40, ScalingMax: 12,
		DynamicScaling: true, ScalingInterval: alwaysCheck,
	})
	p.StartWorkers(noopLoop)
	defer p.StopWorkers()

	// Hammer the decision with extremes; the target must never leave
	// [min, scalingMax].
	for i := 0; i < 30; i++ {
		p.CheckScaling(1000, 1.0)
		if got := p.TargetWorkers(); got < 2 || got > 12 {
			t.Fatalf("target %d escaped [2, 12] scaling up", got)
		}
	}
	if got := p.TargetWorkers(); got != 12 {
		t.Errorf("target = %d after sustained load, want scalingMax 12", got)
	}

	for i := 0; i < 30; i++ {
		p.CheckScaling(0, 0.0)
		if got := p.TargetWorkers(); got < 2 || got > 12 {
			t.Fatalf("target %d escaped [2, 12] scaling down", got)
		}
	}
	if got := p.TargetWorkers(); got != 2 {
		t.Errorf("target = %d after idling, want min 2", got)
	}
}

func TestSpawnAndRetire(t *testing.T) {
	p := New(Config{Name: tasks.PoolNormal, Default: 2, Min: 1, Max: 10})

	var live atomic.Int64
	loop := func(name string, retire <-chan struct{}) {
		live.Add(1)
		defer live.Add(-1)
		for p.Running() {
			select {
			case <-retire:
				return
			default:
				time.Sleep(time.Millisecond)
			}
		}
	}

	p.StartWorkers(loop)
	waitFor(t, func() bool { return live.Load() == 2 }, "initial workers never started")

	p.Spawn(3)
	waitFor(t, func() bool { return live.Load() == 5 }, "spawned workers never started")

	p.Retire(2)
	waitFor(t, func() bool { return live.Load() == 3 }, "retired workers never exited")

	p.StopWorkers()
	if got := live.Load(); got != 0 {
		t.Errorf("live workers after stop = %d, want 0", got)
	}
}

func TestWorkerNaming(t *testing.T) {
	p := New(Config{Name: tasks.PoolAny, Default: 3, Min: 1, Max: 10})

	var mu sync.Mutex
	seen := map[string]bool{}
	p.StartWorkers(func(name string, _ <-chan struct{}) {
		mu.Lock()
		seen[name] = true
		mu.Unlock()
	})
	p.StopWorkers()

	for _, want := range []string{"any_worker_0", "any_worker_1", "any_worker_2"} {
		if !seen[want] {
			t.Errorf("worker %q never ran (saw %v)", want, seen)
		}
	}
}

func TestUtilization(t *testing.T) {
	p := New(Config{Name: tasks.PoolNormal, Default: 4, Min: 1, Max: 10})
	p.StartWorkers(noopLoop)
	defer p.StopWorkers()

	if got := p.Utilization(); got != 0 {
		t.Errorf("idle utilization = %v, want 0", got)
	}

	p.IncrementActive()
	p.IncrementActive()
	if got := p.Utilization(); got != 0.5 {
		t.Errorf("utilization = %v, want 0.5", got)
	}

	p.DecrementActive()
	p.DecrementActive()
	p.DecrementActive() // floor at zero
	if got := p.ActiveWorkers(); got != 0 {
		t.Errorf("active workers = %d, want 0", got)
	}
}

func TestPoolStats(t *testing.T) {
	p := New(Config{Name: tasks.PoolNormal, Default: 3, Min: 2, Max: 8})
	p.RecordProcessed()
	p.RecordProcessed()
	p.RecordFailed()

	s := p.Stats()
	if s.Name != tasks.PoolNormal || s.CurrentWorkers != 3 {
		t.Errorf("stats identity = %+v", s)
	}
	if s.TasksProcessed != 2 || s.TasksFailed != 1 {
		t.Errorf("stats counters = %+v", s)
	}
	if s.MinWorkers != 2 || s.MaxWorkers != 8 {
		t.Errorf("stats bounds = %+v", s)
	}
}
