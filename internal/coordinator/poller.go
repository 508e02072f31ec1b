package coordinator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-shelly/internal/infrastructure/logging"
)

// Listener is notified synchronously after every completed refresh cycle,
// successful or not. Listeners run in the tick's goroutine; panics are
// recovered and logged without affecting other listeners.
type Listener func(success bool)

// FetchFunc performs one device fetch. The context carries the fetch
// timeout; a timeout and a transport error are the same failure outcome.
type FetchFunc func(ctx context.Context) error

// MetricsRecorder receives poll outcomes. Implementations must not block.
type MetricsRecorder interface {
	RecordPoll(deviceID string, kind string, success bool, duration time.Duration)
}

// PollerConfig configures a Poller.
type PollerConfig struct {
	// DeviceID is the bridge-local device identifier, used in logs and
	// metrics.
	DeviceID string

	// Kind names this poller's role ("block", "block_rest", "rpc",
	// "rpc_poll") for logs and metrics.
	Kind string

	// Interval is the initial refresh interval.
	Interval time.Duration

	// Timeout bounds every fetch.
	Timeout time.Duration

	// Fetch performs the actual device I/O.
	Fetch FetchFunc

	// InitialRefresh runs one refresh immediately on Start instead of
	// waiting a full interval.
	InitialRefresh bool

	// Logger for refresh outcomes. Required.
	Logger *logging.Logger

	// Metrics receives poll outcomes. Optional.
	Metrics MetricsRecorder
}

// Poller runs a periodic device refresh loop.
//
// Exactly one fetch runs at a time: a tick or forced refresh that arrives
// while a fetch is in flight is skipped, never queued. After every fetch
// all listeners are notified synchronously, on success and on failure
// alike. A failed fetch never discards previously fetched data — that is
// the owning coordinator's contract, the Poller only tracks the outcome.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Poller struct {
	deviceID string
	kind     string
	timeout  time.Duration
	fetch    FetchFunc
	initial  bool
	logger   *logging.Logger
	metrics  MetricsRecorder

	// interval is read by the loop on every reset; stored atomically so
	// coordinators can retune it after the first fetch.
	interval atomic.Int64

	// inFlight is the single-flight guard for fetches.
	inFlight atomic.Bool

	// refreshCh coalesces forced refresh requests (buffered, size 1).
	refreshCh chan struct{}

	mu            sync.Mutex
	listeners     map[int]Listener
	nextListener  int
	lastSucceeded bool
	lastErr       error
	lastUpdated   time.Time
	started       bool

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewPoller creates a Poller from the given configuration.
// The loop does not run until Start is called.
func NewPoller(cfg PollerConfig) *Poller {
	p := &Poller{
		deviceID:  cfg.DeviceID,
		kind:      cfg.Kind,
		timeout:   cfg.Timeout,
		fetch:     cfg.Fetch,
		initial:   cfg.InitialRefresh,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		refreshCh: make(chan struct{}, 1),
		listeners: make(map[int]Listener),
	}
	p.interval.Store(int64(cfg.Interval))
	return p
}

// Start launches the refresh loop in a background goroutine.
//
// The loop stops when Stop is called or the parent context is cancelled.
// Calling Start twice is an error in the caller; the second call is a
// no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	var loopCtx context.Context
	loopCtx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	p.wg.Add(1)
	go p.loop(loopCtx)
}

// Stop cancels the refresh loop and waits for it to exit.
// Safe to call multiple times; only the first call does work.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		cancel := p.cancel
		p.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		p.wg.Wait()
	})
}

// TriggerRefresh requests an out-of-band refresh without blocking.
// Requests arriving while one is already pending are coalesced.
func (p *Poller) TriggerRefresh() {
	select {
	case p.refreshCh <- struct{}{}:
	default:
	}
}

// RefreshNow performs a refresh synchronously in the caller's goroutine.
//
// Returns:
//   - error: ErrRefreshInFlight if a fetch is already running, otherwise
//     the fetch outcome
func (p *Poller) RefreshNow(ctx context.Context) error {
	if !p.inFlight.CompareAndSwap(false, true) {
		return ErrRefreshInFlight
	}
	defer p.inFlight.Store(false)
	return p.refreshLocked(ctx)
}

// SubmitOutcome records an externally produced refresh outcome and
// notifies listeners as if a fetch had completed.
//
// Push data paths (CoIoT reports, RPC NotifyStatus frames) use this to
// feed the same store-then-notify pipeline the poll path uses.
func (p *Poller) SubmitOutcome(success bool, err error) {
	p.mu.Lock()
	p.lastSucceeded = success
	p.lastErr = err
	p.lastUpdated = time.Now()
	p.mu.Unlock()

	p.notify(success)
}

// Subscribe registers a listener for refresh outcomes.
// The returned function removes the listener.
func (p *Poller) Subscribe(l Listener) (unsubscribe func()) {
	p.mu.Lock()
	p.nextListener++
	id := p.nextListener
	p.listeners[id] = l
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// LastUpdateSucceeded reports whether the most recent refresh succeeded.
func (p *Poller) LastUpdateSucceeded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSucceeded
}

// LastError returns the error of the most recent refresh, or nil.
func (p *Poller) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// LastUpdated returns when the most recent refresh completed.
func (p *Poller) LastUpdated() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastUpdated
}

// Interval returns the current refresh interval.
func (p *Poller) Interval() time.Duration {
	return time.Duration(p.interval.Load())
}

// SetInterval retunes the refresh interval. The new interval takes effect
// after the next refresh completes.
func (p *Poller) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	p.interval.Store(int64(d))
}

// loop is the refresh loop body.
func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()

	if p.initial {
		p.refresh(ctx)
	}

	timer := time.NewTimer(p.Interval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-timer.C:
			p.refresh(ctx)
			timer.Reset(p.Interval())

		case <-p.refreshCh:
			p.refresh(ctx)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(p.Interval())
		}
	}
}

// refresh runs one guarded fetch cycle.
func (p *Poller) refresh(ctx context.Context) {
	if !p.inFlight.CompareAndSwap(false, true) {
		return // fetch already running, skip
	}
	defer p.inFlight.Store(false)

	_ = p.refreshLocked(ctx)
}

// refreshLocked performs the fetch, bookkeeping, and notification.
// The caller must hold the in-flight guard.
func (p *Poller) refreshLocked(ctx context.Context) error {
	fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
	start := time.Now()
	err := p.fetch(fetchCtx)
	cancel()

	duration := time.Since(start)
	success := err == nil

	p.mu.Lock()
	recovered := success && !p.lastSucceeded && !p.lastUpdated.IsZero()
	p.lastSucceeded = success
	p.lastErr = err
	p.lastUpdated = time.Now()
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.RecordPoll(p.deviceID, p.kind, success, duration)
	}

	switch {
	case err != nil:
		p.logger.Warn("device refresh failed",
			"device_id", p.deviceID,
			"kind", p.kind,
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
	case recovered:
		p.logger.Info("device refresh recovered",
			"device_id", p.deviceID,
			"kind", p.kind,
		)
	}

	p.notify(success)
	return err
}

// notify delivers the refresh outcome to all listeners, isolating panics.
func (p *Poller) notify(success bool) {
	p.mu.Lock()
	listeners := make([]Listener, 0, len(p.listeners))
	for _, l := range p.listeners {
		listeners = append(listeners, l)
	}
	p.mu.Unlock()

	for _, l := range listeners {
		p.notifyOne(l, success)
	}
}

// notifyOne invokes a single listener with panic recovery.
func (p *Poller) notifyOne(l Listener, success bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("listener panic recovered",
				"device_id", p.deviceID,
				"kind", p.kind,
				"panic", r,
			)
		}
	}()
	l(success)
}
