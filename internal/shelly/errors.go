package shelly

import "errors"

// Domain-specific errors for Shelly device operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when an RPC operation is attempted on a
	// device without an established WebSocket connection.
	ErrNotConnected = errors.New("shelly: device not connected")

	// ErrConnectionFailed is returned when establishing the WebSocket
	// connection to an RPC device fails.
	ErrConnectionFailed = errors.New("shelly: connection failed")

	// ErrHTTPStatus is returned when a block device responds with a
	// non-200 HTTP status code.
	ErrHTTPStatus = errors.New("shelly: unexpected HTTP status")

	// ErrRPCError is returned when an RPC call completes with an error
	// frame from the device.
	ErrRPCError = errors.New("shelly: rpc error")

	// ErrTimeout is returned when a device operation exceeds its deadline.
	ErrTimeout = errors.New("shelly: operation timed out")

	// ErrSleeping is returned when a sleeping device cannot be reached.
	// Sleep-capable devices only accept requests during their wake window.
	ErrSleeping = errors.New("shelly: device did not report within sleep window")
)
