// Package device defines the device model shared by every layer of the
// iT600 bridge: the polling coordinators, the gateway client, the MQTT
// bridge, and the REST API all exchange these types.
//
// # Key Types
//
//   - Category: which polling domain a device belongs to (binary_sensor, climate)
//   - Info: gateway-reported identity and hardware metadata
//   - State: a point-in-time reading — Info plus availability plus exactly
//     one category payload (BinarySensorState or ClimateState)
//   - Features: derived climate capability bitmask
//
// # Tagged State
//
// State is a tagged variant: the Category field names which payload pointer
// is set, and Validate enforces that exactly one is present and matches.
// Validation happens once, at the gateway boundary — everything downstream
// can rely on a validated State being structurally sound.
//
// # Immutability
//
// States held in poll snapshots are shared between goroutines. Clone returns
// a copy with no shared mutable memory; every read path that hands a State
// to a caller clones it first.
package device
