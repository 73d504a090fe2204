// Package bridge implements the MQTT surface of the iT600 daemon.
//
// The bridge sits between the poll subsystem and Gray Logic Core: every
// terminal refresh cycle flows out as retained state messages, and
// commands arriving over MQTT flow back through the gateway client.
//
// # Architecture
//
//	┌─────────────────┐          ┌─────────────────┐
//	│   Gray Logic    │   MQTT   │  iT600 Bridge   │   HTTP
//	│      Core       │◄────────►│   (this pkg)    │◄────────► Gateway
//	└─────────────────┘          └─────────────────┘
//
// # Key Responsibilities
//
//   - Publish a retained state message per device whose state or
//     availability changed in a cycle (a state cache does the diffing)
//   - Publish an unavailable message for devices that left the snapshot
//   - Execute set_temperature / set_hvac_mode / set_fan_mode /
//     set_preset_mode commands and acknowledge each one
//   - Report bridge health periodically and register the LWT payload
//
// # Topics
//
// The bridge owns the topic layout (prefix "graylogic", protocol segment
// "it600"):
//
//	graylogic/state/it600/{deviceID}    retained device state
//	graylogic/command/it600/{deviceID}  inbound commands
//	graylogic/ack/it600/{deviceID}      command acknowledgments
//	graylogic/health/it600              retained health + LWT
//
// # Command Dispatch
//
// The Dispatcher is shared with the REST API so both surfaces validate
// parameters and encode failures identically. Every failure is an ack
// with a code (unknown_device, unknown_command, invalid_parameters,
// gateway_error, bridge_stopping); the dispatcher never panics on bad
// input.
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple
// goroutines.
package bridge
