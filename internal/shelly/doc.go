// Package shelly provides device models and transports for Shelly smart
// devices.
//
// Shelly devices come in two API generations:
//
//   - Generation 1 ("block" devices): HTTP REST API with CoIoT push.
//     Settings and status are fetched from /settings and /status endpoints.
//   - Generation 2+ ("RPC" devices): JSON-RPC 2.0 over a persistent
//     WebSocket connection, with NotifyStatus/NotifyEvent push frames.
//
// Raw device payloads are decoded into typed snapshots (BlockSnapshot,
// RPCStatus) at the transport boundary. Everything above this package works
// with typed data; no raw JSON maps cross into the coordinator layer.
//
// Device handles (BlockDevice, RPCDevice) are interfaces so the coordinator
// layer can be tested against fakes. Each handle is owned exclusively by its
// coordinator set; concurrent fetches on one handle are never issued.
package shelly
