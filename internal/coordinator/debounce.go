package coordinator

import (
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-shelly/internal/infrastructure/logging"
)

// Debouncer coalesces bursts of signals into a single deferred action.
//
// It is trailing-edge: each Arm cancels any pending timer and starts the
// quiet period over, so the action runs exactly once, one cooldown after
// the last signal. At most one timer is pending at any time.
//
// The action runs in the timer's goroutine, fire-and-forget: a returned
// error is logged, never propagated.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Debouncer struct {
	name     string
	cooldown time.Duration
	action   func() error
	logger   *logging.Logger

	mu    sync.Mutex
	timer *time.Timer

	// gen identifies the current timer. A fired callback whose generation
	// is stale lost a race with a concurrent Arm or Cancel and must not
	// run the action or clear the newer timer.
	gen uint64
}

// NewDebouncer creates a Debouncer.
//
// Parameters:
//   - name: Identifies the debouncer in logs (e.g. the device ID)
//   - cooldown: Quiet period after the last Arm before the action fires
//   - action: The deferred action; errors are logged and swallowed
//   - logger: Required
func NewDebouncer(name string, cooldown time.Duration, action func() error, logger *logging.Logger) *Debouncer {
	return &Debouncer{
		name:     name,
		cooldown: cooldown,
		action:   action,
		logger:   logger,
	}
}

// Arm schedules the action to run one cooldown from now.
// A pending timer is cancelled and restarted; the quiet period begins anew.
func (d *Debouncer) Arm() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.cooldown, func() { d.fire(gen) })
}

// Cancel drops any pending action unconditionally.
// Safe to call when nothing is pending.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}

// fire runs the action after the quiet period elapses.
func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()

	if err := d.action(); err != nil {
		d.logger.Error("debounced action failed",
			"name", d.name,
			"error", err,
		)
	}
}
