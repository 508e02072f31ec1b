package bridge

import (
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-shelly/internal/coordinator"
	"github.com/nerrad567/gray-logic-shelly/internal/shelly"
)

// MQTT message types for communication between Gray Logic Core and the
// Shelly bridge. All timestamps are UTC, ISO8601.

// Event types published on graylogic/event/shelly/{id}.
const (
	// EventTypeClick is a classified button press.
	EventTypeClick = "click"

	// EventTypeReload signals the bridge re-read a device's configuration
	// after the device reported a config change.
	EventTypeReload = "reload"
)

// EventMessage is published on graylogic/event/shelly/{id} for button
// clicks and device reloads.
type EventMessage struct {
	// ID uniquely identifies this event.
	ID string `json:"id"`

	// Timestamp is when the event was observed.
	Timestamp time.Time `json:"timestamp"`

	// DeviceID is the bridge-local device identifier.
	DeviceID string `json:"device_id"`

	// Device is the device's human-readable name.
	Device string `json:"device,omitempty"`

	// Type is the event type ("click", "reload").
	Type string `json:"type"`

	// Channel is the 1-indexed input channel (clicks only).
	Channel int `json:"channel,omitempty"`

	// ClickType is the canonical click type (clicks only).
	ClickType string `json:"click_type,omitempty"`

	// Generation is the device's API generation.
	Generation shelly.Generation `json:"generation,omitempty"`
}

// NewClickMessage builds an EventMessage from a classified click.
func NewClickMessage(click coordinator.ClickEvent) EventMessage {
	return EventMessage{
		ID:         uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		DeviceID:   click.DeviceID,
		Device:     click.Device,
		Type:       EventTypeClick,
		Channel:    click.Channel,
		ClickType:  click.ClickType,
		Generation: click.Generation,
	}
}

// NewReloadMessage builds an EventMessage announcing a device reload.
func NewReloadMessage(deviceID string) EventMessage {
	return EventMessage{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		DeviceID:  deviceID,
		Type:      EventTypeReload,
	}
}

// StateMessage is published on graylogic/state/shelly/{id} after every
// refresh cycle (QoS 1, retained).
type StateMessage struct {
	// DeviceID is the bridge-local device identifier.
	DeviceID string `json:"device_id"`

	// Timestamp is when the refresh completed.
	Timestamp time.Time `json:"timestamp"`

	// Online reports whether the refresh succeeded. A failed refresh
	// marks the device offline without discarding its last known data.
	Online bool `json:"online"`

	// Generation is the device's API generation.
	Generation shelly.Generation `json:"generation"`
}

// NewStateMessage builds a StateMessage for one refresh outcome.
func NewStateMessage(deviceID string, generation shelly.Generation, online bool) StateMessage {
	return StateMessage{
		DeviceID:   deviceID,
		Timestamp:  time.Now().UTC(),
		Online:     online,
		Generation: generation,
	}
}

// Commands accepted on graylogic/command/shelly/{id}.
const (
	// CommandRefresh forces an out-of-band device refresh.
	CommandRefresh = "refresh"

	// CommandOTAUpdate triggers a firmware update. Parameters:
	// {"channel": "stable"|"beta"} (default stable).
	CommandOTAUpdate = "ota_update"
)

// CommandMessage is sent from Core to the bridge to act on a device.
// Topic: graylogic/command/shelly/{id}
type CommandMessage struct {
	// ID uniquely identifies this command for ack correlation.
	ID string `json:"id"`

	// Timestamp is when the command was issued.
	Timestamp time.Time `json:"timestamp"`

	// DeviceID is the bridge-local device identifier.
	DeviceID string `json:"device_id"`

	// Command is the command name ("refresh", "ota_update").
	Command string `json:"command"`

	// Parameters contains command-specific values.
	Parameters map[string]any `json:"parameters,omitempty"`

	// Source indicates where the command originated ("api", "automation").
	Source string `json:"source,omitempty"`
}

// AckStatus represents the acknowledgment status of a command.
type AckStatus string

const (
	// AckAccepted indicates the command was received and dispatched.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command could not be dispatched.
	AckFailed AckStatus = "failed"
)

// Error codes for command failures.
const (
	ErrCodeNotManaged     = "DEVICE_NOT_MANAGED"
	ErrCodeInvalidCommand = "INVALID_COMMAND"
	ErrCodeInvalidPayload = "INVALID_PAYLOAD"
)

// AckMessage is sent from the bridge to Core to acknowledge a command.
// Topic: graylogic/ack/shelly/{id}
type AckMessage struct {
	// CommandID is the ID from the original command.
	CommandID string `json:"command_id"`

	// Timestamp is when the acknowledgment was sent.
	Timestamp time.Time `json:"timestamp"`

	// DeviceID is the bridge-local device identifier.
	DeviceID string `json:"device_id"`

	// Status indicates the acknowledgment status.
	Status AckStatus `json:"status"`

	// Error contains details when Status is "failed".
	Error *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewAckMessage creates an acknowledgment for a command.
func NewAckMessage(cmd CommandMessage, status AckStatus) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  cmd.DeviceID,
		Status:    status,
	}
}

// NewAckError creates a failed acknowledgment with error details.
func NewAckError(cmd CommandMessage, code, message string) AckMessage {
	ack := NewAckMessage(cmd, AckFailed)
	ack.Error = &AckError{Code: code, Message: message}
	return ack
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates the bridge is operating normally.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates some devices are unreachable or MQTT is
	// reconnecting.
	HealthDegraded HealthStatus = "degraded"

	// HealthOffline indicates the bridge is not connected (from LWT).
	HealthOffline HealthStatus = "offline"

	// HealthStarting indicates the bridge is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is published on graylogic/health/shelly (QoS 1, retained).
type HealthMessage struct {
	// Bridge is the bridge identifier ("shelly").
	Bridge string `json:"bridge"`

	// Timestamp is when the health status was generated.
	Timestamp time.Time `json:"timestamp"`

	// Status indicates the current operational status.
	Status HealthStatus `json:"status"`

	// Version is the bridge software version.
	Version string `json:"version,omitempty"`

	// UptimeSeconds is how long the bridge has been running.
	UptimeSeconds int64 `json:"uptime_seconds,omitempty"`

	// DevicesManaged is the number of configured devices.
	DevicesManaged int `json:"devices_managed"`

	// DevicesOnline is the number of devices whose last refresh succeeded.
	DevicesOnline int `json:"devices_online"`

	// Reason explains the status (especially offline/degraded).
	Reason string `json:"reason,omitempty"`
}

// NewLWTMessage creates the Last Will and Testament payload. The broker
// publishes it if the bridge disconnects unexpectedly.
func NewLWTMessage() HealthMessage {
	return HealthMessage{
		Bridge:    "shelly",
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected_disconnect",
	}
}
