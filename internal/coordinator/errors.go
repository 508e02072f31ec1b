package coordinator

import "errors"

// Domain-specific errors for coordinator operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrRefreshInFlight is returned when a forced refresh is requested
	// while another fetch is still running. Refreshes are skipped, never
	// queued.
	ErrRefreshInFlight = errors.New("coordinator: refresh already in flight")

	// ErrDisconnected is returned by status pollers when the device's
	// persistent connection is down. Reconnecting is the reconnect
	// coordinator's job, not theirs.
	ErrDisconnected = errors.New("coordinator: device disconnected")

	// ErrNoSnapshot is returned when an operation needs device data but
	// no successful fetch has completed yet.
	ErrNoSnapshot = errors.New("coordinator: no device data available")

	// ErrNotStarted is returned when an operation requires a running
	// poller.
	ErrNotStarted = errors.New("coordinator: poller not started")
)
