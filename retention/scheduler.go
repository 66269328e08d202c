// Package retention ages out refresh-token records on two independent timers:
// one marks ACTIVE records past expiry as EXPIRED, the other hard-deletes
// inactive records once they fall outside the retention window.
package retention

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	// DefaultWindow is how long inactive records are kept before hard delete.
	DefaultWindow = 30 * 24 * time.Hour
	// DefaultMarkExpiredInterval is the period of the expiry sweep.
	DefaultMarkExpiredInterval = time.Hour
	// DefaultHardDeleteInterval is the period of the hard-delete sweep.
	DefaultHardDeleteInterval = 24 * time.Hour
)

// Job names passed to the observer.
const (
	JobMarkExpired        = "mark_expired"
	JobHardDeleteInactive = "hard_delete_inactive"
)

// Store is the slice of session.Store the scheduler drives.
type Store interface {
	MarkExpired(ctx context.Context, now time.Time) (int64, error)
	HardDeleteInactive(ctx context.Context, threshold time.Time) (int64, error)
}

// Observer receives the outcome of every job run.
type Observer func(job string, affected int64, elapsed time.Duration, err error)

// Config tunes the scheduler. Zero values take the defaults.
type Config struct {
	Window              time.Duration
	MarkExpiredInterval time.Duration
	HardDeleteInterval  time.Duration
}

// Scheduler runs the retention jobs.
type Scheduler struct {
	store    Store
	cfg      Config
	now      func() time.Time
	observer Observer

	mu      sync.Mutex
	running bool
}

// New returns a scheduler over store. now and observer may be nil.
func New(store Store, cfg Config, now func() time.Time, observer Observer) *Scheduler {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.MarkExpiredInterval <= 0 {
		cfg.MarkExpiredInterval = DefaultMarkExpiredInterval
	}
	if cfg.HardDeleteInterval <= 0 {
		cfg.HardDeleteInterval = DefaultHardDeleteInterval
	}
	if now == nil {
		now = time.Now
	}
	return &Scheduler{store: store, cfg: cfg, now: now, observer: observer}
}

// MarkExpired transitions ACTIVE records with expiry before now to EXPIRED.
func (s *Scheduler) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.observe(JobMarkExpired, func() (int64, error) {
		return s.store.MarkExpired(ctx, now)
	})
}

// HardDeleteInactive removes inactive records last modified before threshold.
func (s *Scheduler) HardDeleteInactive(ctx context.Context, threshold time.Time) (int64, error) {
	return s.observe(JobHardDeleteInactive, func() (int64, error) {
		return s.store.HardDeleteInactive(ctx, threshold)
	})
}

// Sweep runs both jobs once using the scheduler's clock and window.
func (s *Scheduler) Sweep(ctx context.Context) error {
	now := s.now()
	_, expErr := s.MarkExpired(ctx, now)
	_, delErr := s.HardDeleteInactive(ctx, now.Add(-s.cfg.Window))
	return errors.Join(expErr, delErr)
}

// Run blocks running both jobs on their own tickers until ctx is done. A
// second concurrent Run returns immediately with an error.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("retention scheduler already running")
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.loop(ctx, s.cfg.MarkExpiredInterval, func() {
			_, _ = s.MarkExpired(ctx, s.now())
		})
	}()
	go func() {
		defer wg.Done()
		s.loop(ctx, s.cfg.HardDeleteInterval, func() {
			_, _ = s.HardDeleteInactive(ctx, s.now().Add(-s.cfg.Window))
		})
	}()
	wg.Wait()
	return ctx.Err()
}

func (s *Scheduler) loop(ctx context.Context, every time.Duration, job func()) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job()
		}
	}
}

func (s *Scheduler) observe(job string, fn func() (int64, error)) (int64, error) {
	start := time.Now()
	n, err := fn()
	if s.observer != nil {
		s.observer(job, n, time.Since(start), err)
	}
	return n, err
}
