package poll

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-it600/internal/device"
)

// Gateway is the slice of the gateway client the coordinator consumes.
// PollStatus asks the gateway to refresh its own device table; Devices
// reads the validated device states for one category.
type Gateway interface {
	PollStatus(ctx context.Context) error
	Devices(ctx context.Context, category device.Category) ([]device.State, error)
}

// CoordinatorConfig configures a Coordinator.
type CoordinatorConfig struct {
	// Category this coordinator refreshes. Required.
	Category device.Category

	// Gateway to poll. Required.
	Gateway Gateway

	// Policy bounds each refresh cycle. The zero value selects
	// DefaultPolicy(Category).
	Policy RetryPolicy

	// Interval between scheduled refreshes. Zero selects the category
	// default.
	Interval time.Duration

	// Clock defaults to SystemClock.
	Clock Clock

	// Logger is optional.
	Logger Logger
}

// Coordinator serialises refresh cycles for one device category and owns
// that category's snapshot and listener registry. Construct one per
// category with NewCoordinator and share it — every consumer of a category
// must observe the same cycles.
type Coordinator struct {
	category device.Category
	gateway  Gateway
	policy   RetryPolicy
	interval time.Duration
	clock    Clock
	logger   Logger

	listeners *ListenerRegistry

	// snapMu guards the snapshot pointer and terminal-cycle bookkeeping.
	// The swap always completes before listeners run or waiters wake.
	snapMu      sync.RWMutex
	snapshot    *Snapshot
	lastErr     error
	lastSuccess time.Time

	// Single-flight refresh state.
	flightMu sync.Mutex
	flight   *flight

	cycles   atomic.Uint64
	failures atomic.Uint64
	attempts atomic.Uint64

	// ctx spans the coordinator's life; cycles run under it, so no caller
	// can cancel a cycle out from under the other joiners.
	ctx       context.Context
	ctxCancel context.CancelFunc
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
}

// flight is one in-progress refresh cycle. done closes after err is set;
// every caller that joined the flight reads the same terminal result.
type flight struct {
	done chan struct{}
	err  error
}

// NewCoordinator validates cfg and builds a coordinator. The snapshot
// starts empty: reads before the first successful cycle see zero devices,
// not an error.
func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	if !cfg.Category.Valid() {
		return nil, fmt.Errorf("poll: invalid category %q", cfg.Category)
	}
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("poll: gateway is required")
	}

	policy := cfg.Policy
	if policy == (RetryPolicy{}) {
		policy = DefaultPolicy(cfg.Category)
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultBinarySensorInterval
		if cfg.Category == device.CategoryClimate {
			interval = DefaultClimateInterval
		}
	}

	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		category:  cfg.Category,
		gateway:   cfg.Gateway,
		policy:    policy,
		interval:  interval,
		clock:     clock,
		logger:    cfg.Logger,
		listeners: NewListenerRegistry(cfg.Logger),
		snapshot:  emptySnapshot(cfg.Category),
		ctx:       ctx,
		ctxCancel: cancel,
		done:      make(chan struct{}),
	}, nil
}

// Refresh runs a refresh cycle and returns its terminal result. If a cycle
// is already in flight the call joins it: no second gateway sequence
// starts, and every joined caller receives the same result.
//
// The cycle runs under the coordinator's own lifecycle context. A caller
// whose ctx expires stops waiting — and gets the ctx error — but does not
// abort the cycle for the other joiners; the cycle still completes and
// notifies listeners.
func (c *Coordinator) Refresh(ctx context.Context) error {
	fl := c.ensureFlight()
	select {
	case <-fl.done:
		return fl.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RequestRefresh starts a refresh cycle if none is in flight and returns
// without waiting for the result. Used to nudge state convergence after a
// device command; the outcome surfaces through listeners, LastError, and
// logs. Callers that must report the outcome synchronously use Refresh.
func (c *Coordinator) RequestRefresh() {
	c.ensureFlight()
}

// ensureFlight returns the in-flight cycle, starting one if idle. After
// Stop the returned flight is already resolved with ErrStopped.
func (c *Coordinator) ensureFlight() *flight {
	c.flightMu.Lock()
	defer c.flightMu.Unlock()

	if c.flight != nil {
		return c.flight
	}

	fl := &flight{done: make(chan struct{})}
	select {
	case <-c.done:
		fl.err = ErrStopped
		close(fl.done)
		return fl
	default:
	}

	c.flight = fl
	c.wg.Add(1)
	go c.runCycle(fl)
	return fl
}

// runCycle executes attempts until success or give-up, then resolves fl.
func (c *Coordinator) runCycle(fl *flight) {
	defer c.wg.Done()

	start := c.clock.Now()
	attempt := 1
	var lastErr error

	for {
		c.attempts.Add(1)
		states, err := c.runAttempt()
		if err == nil {
			c.commit(states)
			c.resolve(fl, nil)
			return
		}

		lastErr = err
		c.logWarn("refresh attempt failed",
			"category", c.category,
			"attempt", attempt,
			"kind", Classify(err),
			"error", err,
		)

		decision := c.policy.Decide(attempt, c.clock.Now().Sub(start), err)
		if !decision.Retry {
			break
		}
		if werr := c.waitRetry(decision.Delay); werr != nil {
			lastErr = werr
			break
		}
		attempt++
	}

	cerr := &CycleError{Category: c.category, Attempts: attempt, Err: lastErr}
	c.fail(cerr)
	c.resolve(fl, cerr)
}

// runAttempt executes one poll-then-read sequence bounded by the policy's
// attempt timeout. On timeout the attempt context is cancelled so the
// gateway call unwinds; a late reply is discarded.
func (c *Coordinator) runAttempt() ([]device.State, error) {
	ctx, cancel := context.WithCancel(c.ctx)
	defer cancel()

	type result struct {
		states []device.State
		err    error
	}
	resultCh := make(chan result, 1)

	go func() {
		states, err := c.fetch(ctx)
		resultCh <- result{states: states, err: err}
	}()

	select {
	case res := <-resultCh:
		return res.states, res.err
	case <-c.clock.After(c.policy.AttemptTimeout):
		cancel()
		return nil, fmt.Errorf("%w after %s", ErrTimeout, c.policy.AttemptTimeout)
	case <-c.ctx.Done():
		return nil, ErrStopped
	}
}

// fetch runs the gateway sequence and applies the availability filter.
func (c *Coordinator) fetch(ctx context.Context) ([]device.State, error) {
	if err := c.gateway.PollStatus(ctx); err != nil {
		return nil, fmt.Errorf("poll status: %w", err)
	}

	states, err := c.gateway.Devices(ctx, c.category)
	if err != nil {
		return nil, fmt.Errorf("read devices: %w", err)
	}
	c.logDebug("devices fetched", "category", c.category, "count", len(states))

	available := make([]device.State, 0, len(states))
	for _, s := range states {
		if !s.Available {
			c.logWarn("device unavailable, excluded from snapshot",
				"category", c.category,
				"device_id", s.Info.ID,
			)
			continue
		}
		available = append(available, s)
	}

	if len(available) == 0 {
		return nil, fmt.Errorf("%w: gateway returned %d device(s), 0 available", ErrNoData, len(states))
	}

	return available, nil
}

// commit swaps in the new snapshot and clears the failure state.
func (c *Coordinator) commit(states []device.State) {
	c.snapMu.Lock()
	seq := c.snapshot.Seq() + 1
	taken := c.clock.Now()
	c.snapshot = newSnapshot(c.category, taken, seq, states)
	c.lastErr = nil
	c.lastSuccess = taken
	n := c.snapshot.Len()
	c.snapMu.Unlock()

	c.cycles.Add(1)
	c.logInfo("refresh succeeded", "category", c.category, "devices", n, "seq", seq)
}

// fail records a terminal failure. The previous snapshot stays untouched.
func (c *Coordinator) fail(cerr *CycleError) {
	c.snapMu.Lock()
	c.lastErr = cerr
	c.snapMu.Unlock()

	c.cycles.Add(1)
	c.failures.Add(1)
	c.logError("refresh failed, keeping previous snapshot",
		"category", c.category,
		"attempts", cerr.Attempts,
		"kind", Classify(cerr.Err),
		"error", cerr.Err,
	)
}

// resolve publishes the terminal result. Listeners run before the flight
// clears, so the next cycle cannot begin until every subscriber has
// observed this one; waiters wake last.
func (c *Coordinator) resolve(fl *flight, err error) {
	fl.err = err

	c.listeners.Notify()

	c.flightMu.Lock()
	c.flight = nil
	c.flightMu.Unlock()

	close(fl.done)
}

// waitRetry pauses between attempts, aborting early on shutdown.
func (c *Coordinator) waitRetry(d time.Duration) error {
	select {
	case <-c.clock.After(d):
		return nil
	case <-c.ctx.Done():
		return ErrStopped
	}
}

// Snapshot returns the current snapshot. It never returns nil, never
// blocks, and is idempotent between cycles — the same pointer comes back
// until the next successful swap.
func (c *Coordinator) Snapshot() *Snapshot {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snapshot
}

// LastError returns the terminal error of the most recent cycle, or nil if
// it succeeded or no cycle has completed.
func (c *Coordinator) LastError() error {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.lastErr
}

// Category returns the category this coordinator refreshes.
func (c *Coordinator) Category() device.Category {
	return c.category
}

// Interval returns the scheduled refresh interval.
func (c *Coordinator) Interval() time.Duration {
	return c.interval
}

// Subscribe registers a listener invoked after each terminal cycle.
// Listeners must not call Refresh from the callback — the next cycle waits
// for notification to complete, so that would deadlock until the caller's
// context expired. RequestRefresh is safe.
func (c *Coordinator) Subscribe(fn ListenerFunc) Subscription {
	return c.listeners.Subscribe(fn)
}

// Unsubscribe removes a listener.
func (c *Coordinator) Unsubscribe(sub Subscription) {
	c.listeners.Unsubscribe(sub)
}

// Stats is a point-in-time summary of a coordinator's activity.
type Stats struct {
	Category    device.Category
	Interval    time.Duration
	Cycles      uint64
	Failures    uint64
	Attempts    uint64
	Devices     int
	LastSuccess time.Time
	LastError   string
}

// Stats returns the coordinator's counters and last-cycle outcome.
func (c *Coordinator) Stats() Stats {
	c.snapMu.RLock()
	devices := c.snapshot.Len()
	lastSuccess := c.lastSuccess
	lastErr := ""
	if c.lastErr != nil {
		lastErr = c.lastErr.Error()
	}
	c.snapMu.RUnlock()

	return Stats{
		Category:    c.category,
		Interval:    c.interval,
		Cycles:      c.cycles.Load(),
		Failures:    c.failures.Load(),
		Attempts:    c.attempts.Load(),
		Devices:     devices,
		LastSuccess: lastSuccess,
		LastError:   lastErr,
	}
}

// Start launches the interval schedule: an immediate seeding refresh, then
// a cycle per tick. Cycle failures never stop the schedule — the next tick
// retries with a fresh attempt budget. Start returns immediately.
func (c *Coordinator) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.pollLoop(ctx)
}

// pollLoop drives scheduled refreshes until Stop or ctx cancellation.
func (c *Coordinator) pollLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()

	c.logInfo("poll schedule started", "category", c.category, "interval", c.interval)

	//nolint:errcheck // scheduler absorbs cycle errors; logs and LastError carry them
	c.Refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C():
			//nolint:errcheck // scheduler absorbs cycle errors; logs and LastError carry them
			c.Refresh(ctx)
		}
	}
}

// Stop halts the schedule and any in-flight cycle, then waits for the
// coordinator's goroutines to drain. Safe to call more than once.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		c.ctxCancel()
		c.wg.Wait()
		c.logInfo("coordinator stopped", "category", c.category)
	})
}

func (c *Coordinator) logDebug(msg string, keysAndValues ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, keysAndValues...)
	}
}

func (c *Coordinator) logInfo(msg string, keysAndValues ...any) {
	if c.logger != nil {
		c.logger.Info(msg, keysAndValues...)
	}
}

func (c *Coordinator) logWarn(msg string, keysAndValues ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, keysAndValues...)
	}
}

func (c *Coordinator) logError(msg string, keysAndValues ...any) {
	if c.logger != nil {
		c.logger.Error(msg, keysAndValues...)
	}
}
