package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dort5bot/debot2/internal/cache"
	"github.com/dort5bot/debot2/internal/logger"
)

// Task is one named poll job. Its result (or a captured error value) lands in
// the cache under Name; the cache is the only channel between the scheduler
// and downstream consumers.
type Task struct {
	Name     string
	Interval time.Duration
	TTL      time.Duration
	MaxRows  int
	Fetch    func(ctx context.Context) (any, error)
}

// Runner executes tasks either once (all concurrently) or forever on a fixed
// one-second check loop. Each task fires independently at its own interval;
// a task never overlaps a still-running instance of itself, and a delayed
// loop triggers at most one fire per check.
type Runner struct {
	store *cache.Store
	tasks []Task
	now   func() time.Time

	mu       sync.Mutex
	lastRun  map[string]time.Time
	inFlight map[string]bool

	wg sync.WaitGroup
}

func NewRunner(store *cache.Store, tasks ...Task) *Runner {
	return &Runner{
		store:    store,
		tasks:    tasks,
		now:      time.Now,
		lastRun:  make(map[string]time.Time),
		inFlight: make(map[string]bool),
	}
}

// SetNowFunc overrides the clock. Intended for tests.
func (r *Runner) SetNowFunc(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// RunOnce fires every task concurrently and waits for all of them. Task
// failures become error-shaped cache values; RunOnce itself only fails on a
// misconfigured runner.
func (r *Runner) RunOnce(ctx context.Context) error {
	if r == nil || r.store == nil {
		return fmt.Errorf("scheduler runner not initialized")
	}
	var wg sync.WaitGroup
	for _, t := range r.tasks {
		wg.Add(1)
		go func(t Task) {
			defer wg.Done()
			r.execute(ctx, t)
		}(t)
	}
	wg.Wait()
	return nil
}

// RunForever drives the check loop until ctx is cancelled, then waits for
// in-flight fetches to acknowledge cancellation before returning.
func (r *Runner) RunForever(ctx context.Context) error {
	if r == nil || r.store == nil {
		return fmt.Errorf("scheduler runner not initialized")
	}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.wg.Wait()
			logger.Infof("scheduler: stopped")
			return nil
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick fires every due task once. The due decision and the lastRun update
// happen under one lock, so a slow fetch cannot cause a double fire; a task
// still in flight is skipped without touching lastRun and retries naturally
// on a later check.
func (r *Runner) Tick(ctx context.Context) {
	now := r.now()
	var due []Task
	r.mu.Lock()
	for _, t := range r.tasks {
		if t.Interval <= 0 || t.Fetch == nil {
			continue
		}
		if r.inFlight[t.Name] {
			continue
		}
		last, seen := r.lastRun[t.Name]
		if seen && now.Sub(last) < t.Interval {
			continue
		}
		r.lastRun[t.Name] = now
		r.inFlight[t.Name] = true
		due = append(due, t)
	}
	r.mu.Unlock()

	for _, t := range due {
		r.wg.Add(1)
		go func(t Task) {
			defer r.wg.Done()
			defer func() {
				r.mu.Lock()
				delete(r.inFlight, t.Name)
				r.mu.Unlock()
			}()
			r.execute(ctx, t)
		}(t)
	}
}

func (r *Runner) execute(ctx context.Context, t Task) {
	value := r.fetch(ctx, t)
	ttl := int(t.TTL / time.Second)
	if err := r.store.Put(t.Name, value, ttl, t.MaxRows); err != nil {
		logger.Warnf("scheduler: cache write for task %q failed: %v", t.Name, err)
	}
}

// fetch runs the task body and converts any failure, panic included, into an
// error-shaped value so the write still happens.
func (r *Runner) fetch(ctx context.Context, t Task) (value any) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Errorf("scheduler: task %q panicked: %v", t.Name, rec)
			value = map[string]string{"error": fmt.Sprintf("panic: %v", rec)}
		}
	}()
	res, err := t.Fetch(ctx)
	if err != nil {
		logger.Warnf("scheduler: task %q failed: %v", t.Name, err)
		return map[string]string{"error": err.Error()}
	}
	return res
}
