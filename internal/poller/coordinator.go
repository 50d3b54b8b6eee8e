package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/pbxbridge/internal/pbxapi"
	"github.com/jpalmerr/pbxbridge/snapshot"
)

// ErrClosed is returned by [Coordinator.Refresh] after [Coordinator.Close].
var ErrClosed = errors.New("coordinator closed")

// Fetcher is the subset of the backend client a [Coordinator] needs.
// *pbxapi.Client satisfies it.
type Fetcher interface {
	GetDashboardStatus(ctx context.Context) (pbxapi.DashboardStatus, error)
	GetActiveCalls(ctx context.Context) (pbxapi.ActiveCalls, error)
	GetCdrStats(ctx context.Context) (pbxapi.CdrStats, error)
	GetVoicemailStats(ctx context.Context) (pbxapi.VoicemailStats, error)
}

// State is the refresh state of a [Coordinator].
type State int

const (
	// StateIdle is the state before the first cycle starts.
	StateIdle State = iota

	// StateRefreshing means a cycle is in flight.
	StateRefreshing

	// StateReady means the last cycle succeeded.
	StateReady

	// StateErrored means the last cycle failed. The previous snapshot, if
	// any, is still exposed.
	StateErrored
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRefreshing:
		return "refreshing"
	case StateReady:
		return "ready"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// RefreshError is the failure reason of a cycle whose required fetch failed.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string {
	return "error communicating with GonoPBX: " + e.Err.Error()
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// RefreshOutcome is delivered to listeners after every completed cycle.
//
// On success Snapshot is the new snapshot and Err is nil. On failure Err is a
// [*RefreshError] and Snapshot is the last known good snapshot, or nil if no
// cycle has succeeded yet.
type RefreshOutcome struct {
	Snapshot *snapshot.Snapshot
	Err      error
}

// Success reports whether the cycle produced a new snapshot.
func (o RefreshOutcome) Success() bool {
	return o.Err == nil
}

// Listener receives refresh outcomes. Listeners run synchronously on the
// refreshing goroutine and must not block.
type Listener func(RefreshOutcome)

type listenerEntry struct {
	id uint64
	fn Listener
}

// Coordinator owns the current snapshot of one backend connection.
//
// Cycles never overlap: concurrent calls to [Coordinator.Refresh] queue behind
// each other. The snapshot is swapped atomically, so [Coordinator.Snapshot]
// never blocks and always returns a complete value.
type Coordinator struct {
	id     string
	logger *slog.Logger
	now    func() time.Time

	// cycleMu serializes refresh cycles
	cycleMu sync.Mutex

	current atomic.Pointer[snapshot.Snapshot]

	mu            sync.Mutex
	fetcher       Fetcher
	state         State
	lastErr       error
	lastSuccessAt time.Time
	listeners     []listenerEntry
	nextListener  uint64
	closed        bool
	teardown      context.Context
	cancel        context.CancelFunc
}

// NewCoordinator creates an idle [Coordinator] for the connection id.
// If logger is nil, [slog.Default] is used.
func NewCoordinator(id string, fetcher Fetcher, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	teardown, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		id:       id,
		logger:   logger.With("connection", id),
		now:      time.Now,
		fetcher:  fetcher,
		teardown: teardown,
		cancel:   cancel,
	}
}

// ID returns the connection id this coordinator serves.
func (c *Coordinator) ID() string {
	return c.id
}

// Snapshot returns the last successfully assembled snapshot, or nil before
// the first successful cycle.
func (c *Coordinator) Snapshot() *snapshot.Snapshot {
	return c.current.Load()
}

// State returns the current refresh state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the failure reason of the last cycle, or nil if it
// succeeded or no cycle has run.
func (c *Coordinator) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// LastUpdateSuccess reports whether the most recent cycle succeeded.
func (c *Coordinator) LastUpdateSuccess() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateReady
}

// LastSuccessAt returns when the last successful cycle completed.
func (c *Coordinator) LastSuccessAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSuccessAt
}

// AddListener registers fn for refresh outcomes and returns a function that
// removes it. Listeners are called in registration order.
func (c *Coordinator) AddListener(fn Listener) (remove func()) {
	if fn == nil {
		return func() {}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return func() {}
	}
	c.nextListener++
	id := c.nextListener
	c.listeners = append(c.listeners, listenerEntry{id: id, fn: fn})

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, l := range c.listeners {
			if l.id == id {
				c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

// Refresh runs one refresh cycle and notifies listeners of its outcome.
//
// The returned error is the cycle's failure reason. If the coordinator is
// closed or ctx is cancelled while the cycle is in flight, the result is
// discarded, no listener is notified, and the state reverts to what it was
// before the cycle.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.cycleMu.Lock()
	defer c.cycleMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	fetcher := c.fetcher
	prevState := c.state
	c.state = StateRefreshing
	teardown := c.teardown
	c.mu.Unlock()

	cycleCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(teardown, cancel)
	defer stop()

	snap, err := c.fetch(cycleCtx, fetcher)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.logger.Debug("refresh discarded after teardown")
		return ErrClosed
	}
	if ctx.Err() != nil {
		c.state = prevState
		c.mu.Unlock()
		return ctx.Err()
	}

	recovered := false
	if err != nil {
		c.state = StateErrored
		c.lastErr = err
	} else {
		recovered = prevState == StateErrored
		c.current.Store(snap)
		c.state = StateReady
		c.lastErr = nil
		c.lastSuccessAt = snap.FetchedAt
	}
	listeners := make([]listenerEntry, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	if recovered {
		c.logger.Info("fetching data recovered")
	}

	outcome := RefreshOutcome{Snapshot: c.current.Load(), Err: err}
	for _, l := range listeners {
		c.notifySafe(l.fn, outcome)
	}
	return err
}

// fetch performs the required fetches in order, then both optional fetches
// concurrently. Optional failures leave their section nil.
func (c *Coordinator) fetch(ctx context.Context, f Fetcher) (*snapshot.Snapshot, error) {
	dashboard, err := f.GetDashboardStatus(ctx)
	if err != nil {
		return nil, &RefreshError{Err: err}
	}

	calls, err := f.GetActiveCalls(ctx)
	if err != nil {
		return nil, &RefreshError{Err: err}
	}

	var (
		wg  sync.WaitGroup
		cdr *pbxapi.CdrStats
		vm  *pbxapi.VoicemailStats
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		stats, err := f.GetCdrStats(ctx)
		if err != nil {
			c.logger.Debug("optional fetch failed", "resource", "cdr_stats", "error", err.Error())
			return
		}
		cdr = &stats
	}()
	go func() {
		defer wg.Done()
		stats, err := f.GetVoicemailStats(ctx)
		if err != nil {
			c.logger.Debug("optional fetch failed", "resource", "voicemail", "error", err.Error())
			return
		}
		vm = &stats
	}()
	wg.Wait()

	return Assemble(dashboard, calls, cdr, vm, c.now()), nil
}

// notifySafe calls a listener with panic recovery.
// Panics are logged with a correlation id and do not propagate.
func (c *Coordinator) notifySafe(fn Listener, outcome RefreshOutcome) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("refresh listener panicked",
				"correlation_id", uuid.NewString(),
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn(outcome)
}

// Close tears the coordinator down. An in-flight cycle is cancelled and its
// result discarded, listeners are dropped and the client reference released.
// Close is idempotent.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	c.listeners = nil
	c.fetcher = nil
}
