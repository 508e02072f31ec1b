package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-shelly/internal/coordinator"
	"github.com/nerrad567/gray-logic-shelly/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-shelly/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-shelly/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-shelly/internal/registry"
	"github.com/nerrad567/gray-logic-shelly/internal/shelly"
)

// registryTimeout bounds registry writes on the refresh hot path.
const registryTimeout = 5 * time.Second

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// DeviceCoordinator is the per-device surface the bridge drives.
// Satisfied by both coordinator.BlockCoordinator and
// coordinator.RPCCoordinator.
type DeviceCoordinator interface {
	Start(ctx context.Context)
	Stop()
	Subscribe(l coordinator.Listener) (unsubscribe func())
	TriggerRefresh()
	LastUpdateSucceeded() bool
	TriggerOTAUpdate(ctx context.Context, channel string)
}

// ManagedDevice is one device under bridge management.
type ManagedDevice struct {
	// ID is the bridge-local device identifier.
	ID string

	// Name is the configured human-readable name.
	Name string

	// Generation is the device's API generation.
	Generation shelly.Generation

	// Coordinator owns the device's schedule and event pipeline.
	Coordinator DeviceCoordinator

	// Identity returns the device's registry row once known, nil before
	// the first successful contact.
	Identity func() *registry.Device
}

// ClickRecorder receives click events for metrics. Optional.
type ClickRecorder interface {
	WriteClickMetric(deviceID string, channel int, clickType string)
}

// Options holds configuration for creating a bridge.
type Options struct {
	// Config is the loaded bridge configuration.
	Config *config.Config

	// MQTT is the MQTT client implementation.
	MQTT MQTTClient

	// Registry is optional device identity persistence.
	Registry registry.Repository

	// Clicks is optional click metrics recording.
	Clicks ClickRecorder

	// Metrics receives poll outcomes, passed through to coordinators.
	Metrics coordinator.MetricsRecorder

	// Logger is required.
	Logger *logging.Logger

	// Version is the bridge software version for health messages.
	Version string
}

// managedEntry tracks a managed device's runtime state.
type managedEntry struct {
	ManagedDevice
	unsubscribe func()

	// identity is the row last written to the registry, nil until the
	// device's first successful registration.
	mu       sync.Mutex
	identity *registry.Device
}

// Bridge orchestrates the Shelly device fleet: coordinators, the MQTT
// message surface, the device registry, and health reporting.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	cfg     *config.Config
	mqtt    MQTTClient
	repo    registry.Repository
	clicks  ClickRecorder
	metrics coordinator.MetricsRecorder
	logger  *logging.Logger
	health  *HealthReporter
	topics  mqtt.Topics

	mu      sync.RWMutex
	devices map[string]*managedEntry

	ctx       context.Context
	ctxCancel context.CancelFunc
	stopOnce  sync.Once
}

// NewBridge creates a bridge instance. Call ProvisionDevices to build
// the coordinator set from config, then Start to begin operation.
func NewBridge(opts Options) (*Bridge, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.MQTT == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		cfg:       opts.Config,
		mqtt:      opts.MQTT,
		repo:      opts.Registry,
		clicks:    opts.Clicks,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		devices:   make(map[string]*managedEntry),
		ctx:       ctx,
		ctxCancel: ctxCancel,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		Version:   opts.Version,
		Publisher: opts.MQTT,
		Fleet:     b,
		Logger:    opts.Logger,
	})

	return b, nil
}

// AddDevice registers a device with the bridge.
// Must be called before Start.
func (b *Bridge) AddDevice(md ManagedDevice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices[md.ID] = &managedEntry{ManagedDevice: md}
}

// Health returns the bridge's health reporter, for LWT wiring in main.
func (b *Bridge) Health() *HealthReporter {
	return b.health
}

// Start begins bridge operation: command subscription, per-device
// coordinators, and health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logger.Error("failed to publish starting status", "error", err)
	}

	commandTopic := b.topics.AllDeviceCommands()
	if err := b.mqtt.Subscribe(commandTopic, 1, b.handleCommandMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logger.Info("subscribed to commands", "topic", commandTopic)

	b.mu.Lock()
	for _, entry := range b.devices {
		entry.unsubscribe = entry.Coordinator.Subscribe(b.refreshListener(entry))
		entry.Coordinator.Start(b.ctx)
	}
	deviceCount := len(b.devices)
	b.mu.Unlock()

	b.health.Start(ctx)

	b.logger.Info("bridge started",
		"bridge_id", b.cfg.Bridge.ID,
		"devices", deviceCount,
	)
	return nil
}

// Stop gracefully shuts the bridge down: pending work is cancelled,
// health reporting stops with a final "stopping" status, and every
// coordinator is torn down. Safe to call multiple times.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.ctxCancel()
		b.health.Stop()

		b.mu.Lock()
		entries := make([]*managedEntry, 0, len(b.devices))
		for _, entry := range b.devices {
			entries = append(entries, entry)
		}
		b.mu.Unlock()

		for _, entry := range entries {
			if entry.unsubscribe != nil {
				entry.unsubscribe()
			}
			entry.Coordinator.Stop()
		}

		b.logger.Info("bridge stopped")
	})
}

// DeviceCount returns the number of managed devices.
func (b *Bridge) DeviceCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.devices)
}

// OnlineCount returns the number of devices whose last refresh succeeded.
func (b *Bridge) OnlineCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	online := 0
	for _, entry := range b.devices {
		if entry.Coordinator.LastUpdateSucceeded() {
			online++
		}
	}
	return online
}

// Device returns the managed device with the given ID.
func (b *Bridge) Device(id string) (ManagedDevice, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entry, ok := b.devices[id]
	if !ok {
		return ManagedDevice{}, false
	}
	return entry.ManagedDevice, true
}

// Devices returns all managed devices.
func (b *Bridge) Devices() []ManagedDevice {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]ManagedDevice, 0, len(b.devices))
	for _, entry := range b.devices {
		out = append(out, entry.ManagedDevice)
	}
	return out
}

// TriggerRefresh forces an out-of-band refresh of one device.
func (b *Bridge) TriggerRefresh(id string) error {
	b.mu.RLock()
	entry, ok := b.devices[id]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotManaged, id)
	}
	entry.Coordinator.TriggerRefresh()
	return nil
}

// TriggerOTAUpdate starts a firmware update on one device.
// Rejections are logged by the coordinator, never returned.
func (b *Bridge) TriggerOTAUpdate(id, channel string) error {
	b.mu.RLock()
	entry, ok := b.devices[id]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotManaged, id)
	}

	go entry.Coordinator.TriggerOTAUpdate(b.ctx, channel)
	return nil
}

// PublishClick implements coordinator.EventSink.
func (b *Bridge) PublishClick(click coordinator.ClickEvent) {
	msg := NewClickMessage(click)
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("failed to marshal click event", "error", err)
		return
	}

	topic := b.topics.DeviceEvent(click.DeviceID)
	if err := b.mqtt.Publish(topic, payload, 1, false); err != nil {
		b.logger.Error("failed to publish click event",
			"device_id", click.DeviceID,
			"error", err,
		)
		return
	}

	if b.clicks != nil {
		b.clicks.WriteClickMetric(click.DeviceID, click.Channel, click.ClickType)
	}

	b.logger.Info("click published",
		"device_id", click.DeviceID,
		"channel", click.Channel,
		"click_type", click.ClickType,
	)
}

// publishReload announces a device reload on the event topic.
func (b *Bridge) publishReload(deviceID string) {
	payload, err := json.Marshal(NewReloadMessage(deviceID))
	if err != nil {
		b.logger.Error("failed to marshal reload event", "error", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.DeviceEvent(deviceID), payload, 1, false); err != nil {
		b.logger.Error("failed to publish reload event",
			"device_id", deviceID,
			"error", err,
		)
	}
}

// refreshListener returns the per-device refresh outcome listener: it
// publishes the retained state message and keeps the registry current.
func (b *Bridge) refreshListener(entry *managedEntry) coordinator.Listener {
	return func(success bool) {
		msg := NewStateMessage(entry.ID, entry.Generation, success)
		payload, err := json.Marshal(msg)
		if err != nil {
			b.logger.Error("failed to marshal state message", "error", err)
			return
		}
		if err := b.mqtt.Publish(b.topics.DeviceState(entry.ID), payload, 1, true); err != nil {
			b.logger.Error("failed to publish state",
				"device_id", entry.ID,
				"error", err,
			)
		}

		if success {
			b.recordContact(entry)
		}
	}
}

// recordContact keeps the registry current on every successful refresh:
// the first contact registers the device, an identity change (firmware
// after an OTA, renamed device, swapped hardware) rewrites the row, and
// an unchanged identity just touches last_seen.
func (b *Bridge) recordContact(entry *managedEntry) {
	if b.repo == nil {
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, registryTimeout)
	defer cancel()

	entry.mu.Lock()
	known := entry.identity
	entry.mu.Unlock()

	current := b.identityFor(entry)

	if known == nil {
		if current == nil {
			return // identity not known yet, try again next refresh
		}
		if !b.writeIdentity(ctx, entry, current) {
			return
		}
		b.logger.Info("device registered",
			"device_id", entry.ID,
			"mac", current.MAC,
			"firmware", current.Firmware,
		)
		return
	}

	if current != nil && identityChanged(known, current) {
		if !b.writeIdentity(ctx, entry, current) {
			return
		}
		b.logger.Info("device identity updated",
			"device_id", entry.ID,
			"firmware", current.Firmware,
			"model", current.Model,
		)
		return
	}

	if err := b.repo.TouchLastSeen(ctx, entry.ID, time.Now().UTC()); err != nil {
		b.logger.Warn("failed to update last_seen",
			"device_id", entry.ID,
			"error", err,
		)
	}
}

// writeIdentity upserts a device row with last_seen set to now and stores
// it as the entry's registered identity. Returns false on repository error.
func (b *Bridge) writeIdentity(ctx context.Context, entry *managedEntry, identity *registry.Device) bool {
	now := time.Now().UTC()
	identity.LastSeen = &now
	if err := b.repo.Upsert(ctx, identity); err != nil {
		b.logger.Error("failed to write device identity",
			"device_id", entry.ID,
			"error", err,
		)
		return false
	}

	entry.mu.Lock()
	entry.identity = identity
	entry.mu.Unlock()
	return true
}

// identityChanged reports whether a device's reported identity differs
// from the row last written to the registry.
func identityChanged(known, current *registry.Device) bool {
	return known.Firmware != current.Firmware ||
		known.Model != current.Model ||
		known.Name != current.Name ||
		known.MAC != current.MAC ||
		known.Host != current.Host
}

// identityFor resolves a device's registry row, if known.
func (b *Bridge) identityFor(entry *managedEntry) *registry.Device {
	if entry.Identity == nil {
		return nil
	}
	return entry.Identity()
}

// handleCommandMessage processes a command from Core.
func (b *Bridge) handleCommandMessage(topic string, payload []byte) error {
	deviceID := topic[strings.LastIndexByte(topic, '/')+1:]

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logger.Error("failed to parse command",
			"topic", topic,
			"error", err,
		)
		return nil // malformed payloads are dropped, not retried
	}
	if cmd.DeviceID == "" {
		cmd.DeviceID = deviceID
	}

	b.logger.Info("received command",
		"command_id", cmd.ID,
		"device_id", cmd.DeviceID,
		"command", cmd.Command,
	)

	b.mu.RLock()
	entry, ok := b.devices[cmd.DeviceID]
	b.mu.RUnlock()
	if !ok {
		b.publishAck(NewAckError(cmd, ErrCodeNotManaged,
			fmt.Sprintf("device %s not managed by this bridge", cmd.DeviceID)))
		return nil
	}

	switch cmd.Command {
	case CommandRefresh:
		entry.Coordinator.TriggerRefresh()
		b.publishAck(NewAckMessage(cmd, AckAccepted))

	case CommandOTAUpdate:
		channel := coordinator.OTAChannelStable
		if v, ok := cmd.Parameters["channel"].(string); ok && v != "" {
			channel = v
		}
		go entry.Coordinator.TriggerOTAUpdate(b.ctx, channel)
		b.publishAck(NewAckMessage(cmd, AckAccepted))

	default:
		b.publishAck(NewAckError(cmd, ErrCodeInvalidCommand,
			fmt.Sprintf("unknown command: %s", cmd.Command)))
	}
	return nil
}

// publishAck publishes a command acknowledgment.
func (b *Bridge) publishAck(ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logger.Error("failed to marshal ack", "error", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.DeviceAck(ack.DeviceID), payload, 1, false); err != nil {
		b.logger.Error("failed to publish ack",
			"device_id", ack.DeviceID,
			"error", err,
		)
	}
}
