package bridge

import "errors"

var (
	// ErrDeviceNotManaged is returned when a command targets a device
	// this bridge does not manage.
	ErrDeviceNotManaged = errors.New("bridge: device not managed")

	// ErrUnsupportedGeneration is returned when a configured device has
	// a generation the bridge cannot speak.
	ErrUnsupportedGeneration = errors.New("bridge: unsupported device generation")
)
