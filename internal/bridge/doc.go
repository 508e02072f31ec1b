// Package bridge orchestrates the Shelly device fleet.
//
// It owns one coordinator per configured device, translates coordinator
// events into Gray Logic MQTT messages (clicks, state, reloads), accepts
// commands from Core over graylogic/command/shelly/{id}, keeps the
// SQLite device registry current, and reports bridge health.
//
// The bridge is pure plumbing: device scheduling and event semantics
// live in the coordinator package, device I/O in the shelly package.
package bridge
