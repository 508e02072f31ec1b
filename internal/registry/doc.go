// Package registry persists the identity of every Shelly device the
// bridge has successfully initialised.
//
// Rows are upserted after a device's first contact and refreshed when
// its firmware version or name changes, so the admin API can report
// fleet inventory even while a device is unreachable. The registry is
// never the source of truth for live state; that belongs to the
// coordinators.
package registry
