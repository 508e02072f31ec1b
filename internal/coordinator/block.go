package coordinator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-shelly/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-shelly/internal/shelly"
)

// defaultCoIoTPeriodSeconds is the firmware default CoIoT update period,
// used to seed the poll interval until the first fetch reports the real one.
const defaultCoIoTPeriodSeconds = 15

// BlockConfig configures a BlockCoordinator.
type BlockConfig struct {
	// DeviceID is the bridge-local device identifier.
	DeviceID string

	// Name is the device's human-readable name.
	Name string

	// Model is the Shelly model identifier (e.g. "SHSW-25", "SHBTN-1").
	Model string

	// Device is the REST handle. Owned exclusively by this coordinator.
	Device shelly.BlockDevice

	// SleepPeriod is the device's sleep period; zero means always-on.
	SleepPeriod time.Duration

	// SleepMultiplier scales SleepPeriod into the poll interval.
	SleepMultiplier float64

	// UpdateMultiplier scales the CoIoT update period into the poll
	// interval for always-on devices.
	UpdateMultiplier float64

	// PollTimeout bounds the full settings+status fetch.
	PollTimeout time.Duration

	// IOTimeout bounds single operations (status fetch, OTA trigger).
	IOTimeout time.Duration

	// StatusInterval is the supplementary REST status poll interval.
	// Zero disables the supplementary poller. Ignored for sleepers.
	StatusInterval time.Duration

	// ReloadCooldown is the quiet period before ReloadAction fires.
	ReloadCooldown time.Duration

	// ReloadAction runs after the reload debouncer's quiet period.
	ReloadAction func() error

	// Sink receives classified click events.
	Sink EventSink

	// Logger is required.
	Logger *logging.Logger

	// Metrics receives poll outcomes. Optional.
	Metrics MetricsRecorder
}

// BlockCoordinator owns the poll schedule and event pipeline of one
// generation 1 (block) device.
//
// Always-on devices are polled at their self-reported CoIoT period scaled
// by the update multiplier, with a supplementary fixed-interval status
// poll. Sleep-capable devices are never polled: their tick firing means
// the device failed to report within its window, which is recorded as a
// failed refresh; data arrives via SubmitSnapshot when the device wakes.
type BlockCoordinator struct {
	deviceID string
	name     string
	model    string
	device   shelly.BlockDevice
	sink     EventSink
	logger   *logging.Logger

	sleepPeriod time.Duration
	updateMult  float64
	ioTimeout   time.Duration

	poller     *Poller
	restPoller *Poller // nil for sleepers or when disabled
	reload     *Debouncer

	mu              sync.Mutex
	snapshot        *shelly.BlockSnapshot
	lastInputEvents map[int]int // 1-indexed channel -> event_cnt
	lastCfgChanged  *int        // nil = unknown, compare suppressed
	lastMode        string
	modeKnown       bool
	lastEffect      int
	effectKnown     bool

	otaInFlight atomic.Bool
	stopOnce    sync.Once
}

// NewBlockCoordinator creates the coordinator set for a block device.
func NewBlockCoordinator(cfg BlockConfig) *BlockCoordinator {
	c := &BlockCoordinator{
		deviceID:    cfg.DeviceID,
		name:        cfg.Name,
		model:       cfg.Model,
		device:      cfg.Device,
		sink:        cfg.Sink,
		logger:      cfg.Logger,
		sleepPeriod: cfg.SleepPeriod,
		updateMult:  cfg.UpdateMultiplier,
		ioTimeout:   cfg.IOTimeout,
	}

	interval := blockInterval(cfg)
	c.poller = NewPoller(PollerConfig{
		DeviceID:       cfg.DeviceID,
		Kind:           "block",
		Interval:       interval,
		Timeout:        cfg.PollTimeout,
		Fetch:          c.fetch,
		InitialRefresh: cfg.SleepPeriod == 0,
		Logger:         cfg.Logger,
		Metrics:        cfg.Metrics,
	})

	if cfg.SleepPeriod == 0 && cfg.StatusInterval > 0 {
		c.restPoller = NewPoller(PollerConfig{
			DeviceID: cfg.DeviceID,
			Kind:     "block_rest",
			Interval: cfg.StatusInterval,
			Timeout:  cfg.IOTimeout,
			Fetch:    c.fetchStatus,
			Logger:   cfg.Logger,
			Metrics:  cfg.Metrics,
		})
	}

	c.reload = NewDebouncer(cfg.DeviceID, cfg.ReloadCooldown, cfg.ReloadAction, cfg.Logger)

	return c
}

// blockInterval computes the initial poll interval for a block device.
func blockInterval(cfg BlockConfig) time.Duration {
	if cfg.SleepPeriod > 0 {
		return time.Duration(float64(cfg.SleepPeriod) * cfg.SleepMultiplier)
	}
	return time.Duration(float64(defaultCoIoTPeriodSeconds*time.Second) * cfg.UpdateMultiplier)
}

// Start launches the coordinator's pollers.
func (c *BlockCoordinator) Start(ctx context.Context) {
	c.poller.Start(ctx)
	if c.restPoller != nil {
		c.restPoller.Start(ctx)
	}
}

// Stop tears the coordinator down: pollers first, then the pending reload.
// Exactly once; repeat calls are no-ops.
func (c *BlockCoordinator) Stop() {
	c.stopOnce.Do(func() {
		if c.restPoller != nil {
			c.restPoller.Stop()
		}
		c.poller.Stop()
		c.reload.Cancel()
	})
}

// Subscribe registers a listener for refresh outcomes.
func (c *BlockCoordinator) Subscribe(l Listener) (unsubscribe func()) {
	return c.poller.Subscribe(l)
}

// TriggerRefresh requests an out-of-band refresh without blocking.
func (c *BlockCoordinator) TriggerRefresh() {
	c.poller.TriggerRefresh()
}

// RefreshNow performs a refresh synchronously.
func (c *BlockCoordinator) RefreshNow(ctx context.Context) error {
	return c.poller.RefreshNow(ctx)
}

// LastUpdateSucceeded reports whether the most recent refresh succeeded.
func (c *BlockCoordinator) LastUpdateSucceeded() bool {
	return c.poller.LastUpdateSucceeded()
}

// Snapshot returns the most recent device snapshot, or nil before the
// first successful fetch. Failed refreshes never clear it.
func (c *BlockCoordinator) Snapshot() *shelly.BlockSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// SubmitSnapshot feeds externally received device data (a wake report)
// through the same store-then-notify pipeline the poll path uses.
func (c *BlockCoordinator) SubmitSnapshot(snap *shelly.BlockSnapshot) {
	c.ingest(snap)
	c.poller.SubmitOutcome(true, nil)
}

// fetch is the main poll path.
//
// A tick on a sleep-capable device always fails: the device is expected to
// report on its own within the window, and the tick firing means it did
// not.
func (c *BlockCoordinator) fetch(ctx context.Context) error {
	if c.sleepPeriod > 0 {
		return fmt.Errorf("%w: no report within %s", shelly.ErrSleeping, c.poller.Interval())
	}

	snap, err := c.device.Fetch(ctx)
	if err != nil {
		return err // previous snapshot is retained
	}

	c.ingest(snap)
	return nil
}

// fetchStatus is the supplementary REST poll path for always-on devices.
// It refreshes status-only data and does not run event classification.
func (c *BlockCoordinator) fetchStatus(ctx context.Context) error {
	status, err := c.device.FetchStatus(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.snapshot != nil {
		c.snapshot = &shelly.BlockSnapshot{
			Settings: c.snapshot.Settings,
			Status:   *status,
		}
	}
	c.mu.Unlock()
	return nil
}

// ingest stores a snapshot, retunes the poll interval, and runs event
// deduplication and classification.
func (c *BlockCoordinator) ingest(snap *shelly.BlockSnapshot) {
	c.mu.Lock()
	c.snapshot = snap
	c.mu.Unlock()

	if c.sleepPeriod == 0 {
		if period := snap.Settings.CoIoT.UpdatePeriod; period > 0 {
			c.poller.SetInterval(time.Duration(float64(period) * c.updateMult * float64(time.Second)))
		}
	}

	c.processEvents(snap)
}

// processEvents deduplicates input events and config-change signals.
//
// Per-channel counters are the dedup baseline: an absent baseline means
// this is the first observation, which establishes it silently. The
// baseline always advances, even when the event is dropped.
func (c *BlockCoordinator) processEvents(snap *shelly.BlockSnapshot) {
	var clicks []ClickEvent
	armReload := false

	c.mu.Lock()

	if c.lastInputEvents == nil {
		c.lastInputEvents = make(map[int]int)
		// A battery button woken by a physical press must report that
		// press as a click, so pre-seed the baseline to an impossible
		// counter value.
		if shelly.IsButtonModel(c.model) && wokeByButton(snap.Status.ActReasons) {
			c.lastInputEvents[1] = -1
		}
	}

	for i, input := range snap.Status.Inputs {
		channel := i + 1
		last, seen := c.lastInputEvents[channel]
		c.lastInputEvents[channel] = input.EventCnt

		if !seen {
			continue // first observation establishes the baseline
		}
		if input.EventCnt == last || input.Event == "" {
			continue
		}

		clickType, ok := shelly.BlockClickType(input.Event)
		if !ok {
			c.logger.Warn("unrecognised input event",
				"device_id", c.deviceID,
				"channel", channel,
				"event", input.Event,
			)
			continue
		}

		clicks = append(clicks, ClickEvent{
			DeviceID:   c.deviceID,
			Device:     c.displayName(snap),
			Channel:    channel,
			ClickType:  clickType,
			Generation: shelly.GenerationBlock,
		})
	}

	// A mode switch renumbers channels and bumps the config counter
	// without a real configuration change; forget the baseline so the
	// next counter observation re-learns it silently.
	if shelly.IsDualModeModel(c.model) && snap.Settings.Mode != nil {
		if c.modeKnown && c.lastMode != *snap.Settings.Mode {
			c.lastCfgChanged = nil
		}
		c.lastMode = *snap.Settings.Mode
		c.modeKnown = true
	}

	// Effect changes bump the config counter the same way.
	if shelly.SupportsLightEffects(c.model) {
		for _, light := range snap.Status.Lights {
			if light.Effect == nil {
				continue
			}
			if c.effectKnown && c.lastEffect != *light.Effect {
				c.lastCfgChanged = nil
			}
			c.lastEffect = *light.Effect
			c.effectKnown = true
			break
		}
	}

	if cnt := snap.Status.CfgChangedCnt; cnt != nil {
		if c.lastCfgChanged != nil && *cnt > *c.lastCfgChanged {
			armReload = true
		}
		v := *cnt
		c.lastCfgChanged = &v
	}

	c.mu.Unlock()

	for _, click := range clicks {
		c.sink.PublishClick(click)
	}

	if armReload {
		c.logger.Info("device config changed, scheduling reload",
			"device_id", c.deviceID,
		)
		c.reload.Arm()
	}
}

// TriggerOTAUpdate starts a firmware update on the requested release
// channel ("stable" or "beta").
//
// Rejections (no update available, update already running, trigger already
// in flight) and failures are logged and swallowed; the invoker never
// receives an error.
func (c *BlockCoordinator) TriggerOTAUpdate(ctx context.Context, channel string) {
	if channel != OTAChannelStable && channel != OTAChannelBeta {
		c.logger.Warn("unknown ota channel", "device_id", c.deviceID, "channel", channel)
		return
	}
	beta := channel == OTAChannelBeta

	snap := c.Snapshot()
	if snap == nil {
		c.logger.Warn("ota update rejected: no device data",
			"device_id", c.deviceID,
		)
		return
	}

	update := snap.Status.Update
	if beta && update.BetaVersion == "" {
		c.logger.Warn("ota update rejected: no beta update available",
			"device_id", c.deviceID,
		)
		return
	}
	if !beta && !update.HasUpdate {
		c.logger.Warn("ota update rejected: no update available",
			"device_id", c.deviceID,
		)
		return
	}
	if update.Status == "updating" {
		c.logger.Warn("ota update rejected: update already in progress",
			"device_id", c.deviceID,
		)
		return
	}

	if !c.otaInFlight.CompareAndSwap(false, true) {
		c.logger.Warn("ota update rejected: trigger already in flight",
			"device_id", c.deviceID,
		)
		return
	}
	defer c.otaInFlight.Store(false)

	target := update.NewVersion
	if beta {
		target = update.BetaVersion
	}

	otaCtx, cancel := context.WithTimeout(ctx, c.ioTimeout)
	defer cancel()

	if err := c.device.TriggerOTAUpdate(otaCtx, beta); err != nil {
		c.logger.Error("ota update trigger failed",
			"device_id", c.deviceID,
			"channel", channel,
			"error", err,
		)
		return
	}

	c.logger.Info("ota update started",
		"device_id", c.deviceID,
		"channel", channel,
		"target_version", target,
	)
}

// displayName picks the best human-readable name for event payloads.
func (c *BlockCoordinator) displayName(snap *shelly.BlockSnapshot) string {
	if c.name != "" {
		return c.name
	}
	if snap.Settings.Name != "" {
		return snap.Settings.Name
	}
	return snap.Settings.Device.Hostname
}

// wokeByButton reports whether a wake reason list contains a physical
// button press.
func wokeByButton(reasons []string) bool {
	for _, r := range reasons {
		if r == shelly.WakeupReasonButton {
			return true
		}
	}
	return false
}
