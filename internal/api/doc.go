// Package api implements the HTTP REST API and WebSocket server for the
// iT600 bridge daemon.
//
// This package provides:
//   - REST endpoints projecting the latest poll snapshots (devices, status)
//   - Device command submission through the shared dispatcher
//   - Synchronous category refresh with classified failure reporting
//   - WebSocket hub broadcasting a cycle event after each terminal refresh
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - TLS support for production deployments
//
// # Architecture
//
// The API server is a read-mostly projection over the poll manager. It never
// talks to the gateway for device state: every read serves the last-known-good
// snapshot, and every command goes through the same dispatcher the MQTT bridge
// uses, so both surfaces acknowledge with identical codes. The WebSocket hub
// deliberately broadcasts only cycle metadata (category, sequence, outcome);
// clients re-read snapshots over REST.
//
// # Graceful Degradation
//
// The server operates with most dependencies absent. Without a dispatcher,
// commands return 503 while reads and WebSocket connections keep working;
// without an inventory store, only /inventory is unavailable; the /status
// aggregate simply omits sections it has no source for.
package api
