// Package coordinator schedules device polling and turns raw Shelly device
// state into bridge events.
//
// Each managed device gets a coordinator set built from three primitives:
//
//   - Poller: a periodic refresh loop with a single-flight guard, bounded
//     fetch timeouts, and synchronous listener notification. Failed fetches
//     retain the previous data so consumers always see the last good state.
//   - Debouncer: a trailing-edge single-slot timer used to coalesce bursts
//     of config-changed signals into one reload action.
//   - Per-generation coordinators (BlockCoordinator, RPCCoordinator) that
//     own a device handle, deduplicate and classify input events into click
//     events, arm the reload debouncer on config changes, and run the OTA
//     trigger workflow.
//
// Scheduling follows device behaviour: sleeping block devices are expected
// to report on their own within sleepPeriod x 1.2 and a tick that fires
// means they did not; always-on block devices poll at their self-reported
// CoIoT period x 2.2; RPC devices hold a persistent connection checked every
// reconnect interval, supplemented by a fixed-interval status poll.
//
// Teardown is strict: stop pollers, cancel debouncers, shut the device
// handle down — exactly once, idempotent on repeat calls.
package coordinator
