// Package gateway implements the HTTP client for the iT600 gateway's local
// API. It is the only package that talks to the gateway; everything above it
// consumes validated device states.
//
// # Key Types
//
//   - Client: authenticated HTTP/JSON client with request counters
//   - Config: host, port, token, request timeout
//   - Stats: point-in-time request statistics
//
// # Surface
//
// PollStatus instructs the gateway to refresh its own device table; Devices
// reads one category's device states; SetDeviceProperty (and the typed
// wrappers SetTemperature, SetHVACMode, SetFanMode, SetPresetMode) writes a
// single property; HealthCheck probes reachability.
//
// # Boundary Validation
//
// Devices validates every decoded entry with device.State.Validate before
// returning it. A malformed entry is skipped with a warn log rather than
// failing the batch — one corrupt record must not blank out a working
// installation. Availability flags pass through untouched; filtering
// unavailable devices is the poll coordinator's job.
//
// # Thread Safety
//
// Client is safe for concurrent use. Counters are atomic; the underlying
// http.Client handles its own connection pooling.
package gateway
