package shelly

import "context"

// BlockDevice is the handle for a generation 1 (block) Shelly device.
//
// Implementations must be safe for sequential use by a single owner; the
// coordinator layer guarantees fetches are never issued concurrently.
type BlockDevice interface {
	// Host returns the device's IP address or hostname.
	Host() string

	// Fetch retrieves the full settings+status snapshot. This hits
	// multiple REST endpoints and is the expensive poll path.
	Fetch(ctx context.Context) (*BlockSnapshot, error)

	// FetchStatus retrieves only the /status payload. Used by the
	// supplementary REST poller for always-on devices.
	FetchStatus(ctx context.Context) (*BlockStatus, error)

	// TriggerOTAUpdate asks the device to start a firmware update.
	// beta selects the beta release channel.
	TriggerOTAUpdate(ctx context.Context, beta bool) error
}

// RPCUpdate is one push notification from an RPC device.
// Exactly one of Status and Events is non-nil.
type RPCUpdate struct {
	// Status is set for NotifyStatus / NotifyFullStatus frames.
	Status *RPCStatus

	// Events is set for NotifyEvent frames.
	Events *RPCEventBatch
}

// RPCDevice is the handle for a generation 2+ (RPC) Shelly device.
//
// The connection is persistent; Initialize establishes it and the
// reconnect coordinator re-establishes it when lost.
type RPCDevice interface {
	// Host returns the device's IP address or hostname.
	Host() string

	// Connected reports whether the WebSocket connection is established.
	Connected() bool

	// Initialize establishes the WebSocket connection and retrieves
	// device identity. Safe to call again after a connection loss.
	Initialize(ctx context.Context) error

	// DeviceInfo returns the identity retrieved during Initialize,
	// or nil if the device was never initialised.
	DeviceInfo() *RPCDeviceInfo

	// Status retrieves the current device status over the connection.
	Status(ctx context.Context) (*RPCStatus, error)

	// SubscribeUpdates registers a callback for push notifications.
	// The returned function removes the subscription.
	SubscribeUpdates(handler func(RPCUpdate)) (unsubscribe func())

	// TriggerOTAUpdate asks the device to start a firmware update.
	// beta selects the beta release channel.
	TriggerOTAUpdate(ctx context.Context, beta bool) error

	// Shutdown closes the connection and releases resources.
	Shutdown(ctx context.Context) error
}
