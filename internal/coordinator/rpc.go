package coordinator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-shelly/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-shelly/internal/shelly"
)

// shutdownTimeout bounds the device handle teardown during Stop.
const shutdownTimeout = 5 * time.Second

// RPCConfig configures an RPCCoordinator.
type RPCConfig struct {
	// DeviceID is the bridge-local device identifier.
	DeviceID string

	// Name is the device's human-readable name.
	Name string

	// Device is the RPC handle. Owned exclusively by this coordinator.
	Device shelly.RPCDevice

	// ReconnectInterval is how often connectivity is checked.
	ReconnectInterval time.Duration

	// StatusInterval is the supplementary status poll interval.
	StatusInterval time.Duration

	// IOTimeout bounds single operations (initialize, status, OTA).
	IOTimeout time.Duration

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

// RPCCoordinator owns the connection lifecycle and event pipeline of one
// generation 2+ (RPC) device.
//
// Two pollers run side by side: the reconnect poller checks connectivity
// every tick — a no-op while connected, an Initialize attempt when not —
// and the status poller fetches device status at a fixed interval, failing
// outright while disconnected (reconnecting is not its job). Push frames
// from the device feed the same store-then-notify pipeline as status
// polls.
type RPCCoordinator struct {
	deviceID string
	name     string
	device   shelly.RPCDevice
	sink     EventSink
	logger   *logging.Logger

	ioTimeout time.Duration

	reconnect    *Poller
	statusPoller *Poller
	reload       *Debouncer
	unsubscribe  func()

	mu         sync.Mutex
	status     *shelly.RPCStatus
	lastEvents []shelly.RPCEvent

	otaInFlight atomic.Bool
	stopOnce    sync.Once
}

// NewRPCCoordinator creates the coordinator set for an RPC device.
func NewRPCCoordinator(cfg RPCConfig) *RPCCoordinator {
	c := &RPCCoordinator{
		deviceID:  cfg.DeviceID,
		name:      cfg.Name,
		device:    cfg.Device,
		sink:      cfg.Sink,
		logger:    cfg.Logger,
		ioTimeout: cfg.IOTimeout,
	}

	c.reconnect = NewPoller(PollerConfig{
		DeviceID: cfg.DeviceID,
		Kind:     "rpc",
		Interval: cfg.ReconnectInterval,
		Timeout:  cfg.IOTimeout,
		Fetch:    c.checkConnection,
		Logger:   cfg.Logger,
		Metrics:  cfg.Metrics,
	})

	c.statusPoller = NewPoller(PollerConfig{
		DeviceID:       cfg.DeviceID,
		Kind:           "rpc_poll",
		Interval:       cfg.StatusInterval,
		Timeout:        cfg.IOTimeout,
		Fetch:          c.fetchStatus,
		InitialRefresh: true,
		Logger:         cfg.Logger,
		Metrics:        cfg.Metrics,
	})

	c.reload = NewDebouncer(cfg.DeviceID, cfg.ReloadCooldown, cfg.ReloadAction, cfg.Logger)

	return c
}

// Start subscribes to device push notifications and launches the pollers.
func (c *RPCCoordinator) Start(ctx context.Context) {
	c.unsubscribe = c.device.SubscribeUpdates(c.handleUpdate)
	c.reconnect.Start(ctx)
	c.statusPoller.Start(ctx)
}

// Stop tears the coordinator down: pollers, then the pending reload, then
// the device connection. Exactly once; repeat calls are no-ops.
func (c *RPCCoordinator) Stop() {
	c.stopOnce.Do(func() {
		c.statusPoller.Stop()
		c.reconnect.Stop()
		c.reload.Cancel()

		if c.unsubscribe != nil {
			c.unsubscribe()
		}

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := c.device.Shutdown(ctx); err != nil {
			c.logger.Warn("device shutdown failed",
				"device_id", c.deviceID,
				"error", err,
			)
		}
	})
}

// Subscribe registers a listener for status refresh outcomes.
func (c *RPCCoordinator) Subscribe(l Listener) (unsubscribe func()) {
	return c.statusPoller.Subscribe(l)
}

// TriggerRefresh requests an out-of-band status refresh without blocking.
func (c *RPCCoordinator) TriggerRefresh() {
	c.statusPoller.TriggerRefresh()
}

// RefreshNow performs a status refresh synchronously.
func (c *RPCCoordinator) RefreshNow(ctx context.Context) error {
	return c.statusPoller.RefreshNow(ctx)
}

// LastUpdateSucceeded reports whether the most recent status refresh
// succeeded.
func (c *RPCCoordinator) LastUpdateSucceeded() bool {
	return c.statusPoller.LastUpdateSucceeded()
}

// Connected reports whether the device connection is established.
func (c *RPCCoordinator) Connected() bool {
	return c.device.Connected()
}

// DeviceInfo returns the device identity retrieved during initialisation,
// or nil if the device has never been reached.
func (c *RPCCoordinator) DeviceInfo() *shelly.RPCDeviceInfo {
	return c.device.DeviceInfo()
}

// Status returns the most recent device status, or nil before the first
// successful fetch. Failed refreshes never clear it.
func (c *RPCCoordinator) Status() *shelly.RPCStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// checkConnection is the reconnect poller's fetch: a no-op while the
// connection is up, an Initialize attempt when it is not.
func (c *RPCCoordinator) checkConnection(ctx context.Context) error {
	if c.device.Connected() {
		return nil
	}

	c.logger.Info("reconnecting to device", "device_id", c.deviceID)
	if err := c.device.Initialize(ctx); err != nil {
		return err
	}

	c.logger.Info("device reconnected", "device_id", c.deviceID)
	c.statusPoller.TriggerRefresh()
	return nil
}

// fetchStatus is the status poller's fetch. It fails while disconnected;
// re-establishing the connection is the reconnect poller's job.
func (c *RPCCoordinator) fetchStatus(ctx context.Context) error {
	if !c.device.Connected() {
		return ErrDisconnected
	}

	status, err := c.device.Status(ctx)
	if err != nil {
		return err // previous status is retained
	}

	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
	return nil
}

// handleUpdate receives push notifications from the device.
func (c *RPCCoordinator) handleUpdate(update shelly.RPCUpdate) {
	switch {
	case update.Status != nil:
		c.mu.Lock()
		c.status = update.Status
		c.mu.Unlock()
		c.statusPoller.SubmitOutcome(true, nil)

	case update.Events != nil:
		c.handleEvents(update.Events)
	}
}

// handleEvents deduplicates and classifies one NotifyEvent batch.
//
// A batch identical to the previously seen one is dropped wholesale.
// Within a new batch: config_changed arms the reload debouncer,
// recognised input events emit clicks, everything else is silently
// ignored.
func (c *RPCCoordinator) handleEvents(batch *shelly.RPCEventBatch) {
	c.mu.Lock()
	if rpcEventsEqual(c.lastEvents, batch.Events) {
		c.mu.Unlock()
		return
	}
	c.lastEvents = batch.Events
	c.mu.Unlock()

	for _, ev := range batch.Events {
		switch {
		case ev.Event == shelly.RPCEventConfigChanged:
			c.logger.Info("device config changed, scheduling reload",
				"device_id", c.deviceID,
			)
			c.reload.Arm()

		case shelly.IsRPCInputEvent(ev.Event):
			c.sink.PublishClick(ClickEvent{
				DeviceID:   c.deviceID,
				Device:     c.displayName(),
				Channel:    ev.ID + 1,
				ClickType:  ev.Event,
				Generation: shelly.GenerationRPC,
			})

		default:
			// Unknown event types are expected and ignored.
		}
	}
}

// rpcEventsEqual reports whether two event lists are identical.
func rpcEventsEqual(a, b []shelly.RPCEvent) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// TriggerOTAUpdate starts a firmware update on the requested release
// channel ("stable" or "beta").
//
// Rejections (no update available on the channel, trigger already in
// flight) and failures are logged and swallowed; the invoker never
// receives an error.
func (c *RPCCoordinator) TriggerOTAUpdate(ctx context.Context, channel string) {
	if channel != OTAChannelStable && channel != OTAChannelBeta {
		c.logger.Warn("unknown ota channel", "device_id", c.deviceID, "channel", channel)
		return
	}
	beta := channel == OTAChannelBeta

	status := c.Status()
	if status == nil {
		c.logger.Warn("ota update rejected: no device data",
			"device_id", c.deviceID,
		)
		return
	}

	updates := status.Sys.AvailableUpdates
	var target *shelly.RPCFirmwareVersion
	if beta {
		target = updates.Beta
	} else {
		target = updates.Stable
	}
	if target == nil {
		c.logger.Warn("ota update rejected: no update available",
			"device_id", c.deviceID,
			"channel", channel,
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
		"target_version", target.Version,
	)
}

// displayName picks the best human-readable name for event payloads.
func (c *RPCCoordinator) displayName() string {
	if c.name != "" {
		return c.name
	}
	if info := c.device.DeviceInfo(); info != nil {
		if info.Name != "" {
			return info.Name
		}
		return info.ID
	}
	return c.deviceID
}
