package registry

import "errors"

// ErrDeviceNotFound is returned when a device does not exist in the
// registry.
var ErrDeviceNotFound = errors.New("registry: device not found")
