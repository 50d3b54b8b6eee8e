package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is the fixed refresh interval of the GonoPBX integration.
const DefaultInterval = 30 * time.Second

// Scheduler ticks a set of coordinators at a fixed interval.
//
// On start every coordinator refreshes immediately; afterwards one cycle per
// coordinator runs on each tick. A tick's cycles run through a worker pool of
// maxConcurrency goroutines and the next tick is not processed until all of
// them finish, so cycles of one coordinator never overlap.
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Scheduler struct {
	coordinators   []*Coordinator
	interval       time.Duration
	maxConcurrency int
	logger         *slog.Logger
	cancel         context.CancelFunc
	wg             sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewScheduler creates a new [Scheduler].
//
// Parameters:
//   - coordinators: coordinators to refresh, one per backend connection
//   - interval: time between cycles; non-positive means [DefaultInterval]
//   - maxConcurrency: maximum number of coordinators refreshing at once
//   - logger: logger for cycle failures
//
// The scheduler must be started with [Scheduler.Start] and stopped with
// [Scheduler.Stop].
func NewScheduler(coordinators []*Coordinator, interval time.Duration, maxConcurrency int, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		coordinators:   coordinators,
		interval:       interval,
		maxConcurrency: maxConcurrency,
		logger:         logger,
	}
}

// Interval returns the configured tick interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Start begins the refresh loop in a background goroutine.
//
// Start is non-blocking. If ctx is nil, context.Background() is used.
// Start is idempotent; subsequent calls after the first are no-ops.
// If Stop was called before Start, Start is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()

		s.refreshAll(loopCtx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				s.refreshAll(loopCtx)
			}
		}
	}()
}

// Stop halts the loop and waits for in-flight cycles to finish.
// Stop is idempotent and safe to call before Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// refreshAll runs one cycle for every coordinator, respecting maxConcurrency.
func (s *Scheduler) refreshAll(ctx context.Context) {
	jobs := make(chan *Coordinator, len(s.coordinators))

	var wg sync.WaitGroup
	for i := 0; i < s.maxConcurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range jobs {
				s.refreshOne(ctx, c)
			}
		}()
	}

	for _, c := range s.coordinators {
		select {
		case jobs <- c:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		}
	}
	close(jobs)

	wg.Wait()
}

// refreshOne runs a single cycle and logs its failure.
func (s *Scheduler) refreshOne(ctx context.Context, c *Coordinator) {
	start := time.Now()
	err := c.Refresh(ctx)

	switch {
	case err == nil:
		s.logger.Debug("refresh completed",
			"connection", c.ID(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	case errors.Is(err, ErrClosed), ctx.Err() != nil:
		// teardown; nothing to report
	default:
		s.logger.Warn("refresh failed",
			"connection", c.ID(),
			"error", err.Error(),
		)
	}
}
