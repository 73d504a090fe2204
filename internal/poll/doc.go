// Package poll implements the refresh subsystem for the iT600 bridge: one
// coordinator per device category polls the gateway on an interval, applies
// a bounded retry policy, maintains an immutable device snapshot, and
// notifies listeners after every terminal cycle.
//
// # Architecture
//
//	┌────────────────────────────────────────────────────────────────────┐
//	│                      poll.Manager (per process)                    │
//	│                                                                    │
//	│   ┌──────────────────────────┐   ┌──────────────────────────┐      │
//	│   │ Coordinator binary_sensor│   │   Coordinator climate    │      │
//	│   │                          │   │                          │      │
//	│   │ • interval loop (Clock)  │   │ • interval loop (Clock)  │      │
//	│   │ • single-flight cycles   │   │ • single-flight cycles   │      │
//	│   │ • RetryPolicy            │   │ • RetryPolicy            │      │
//	│   │ • Snapshot (immutable)   │   │ • Snapshot (immutable)   │      │
//	│   │ • ListenerRegistry       │   │ • ListenerRegistry       │      │
//	│   └───────────┬──────────────┘   └───────────┬──────────────┘      │
//	└───────────────│──────────────────────────────│─────────────────────┘
//	                │ PollStatus / Devices         │
//	                ▼                              ▼
//	        ┌──────────────────────────────────────────────┐
//	        │           Gateway (iT600 local API)          │
//	        └──────────────────────────────────────────────┘
//
// # Refresh Cycle
//
// A cycle runs the gateway poll-then-read sequence under a per-attempt
// timeout. Unavailable devices are excluded (and logged); an empty available
// set is a failure, never an empty success. Failed attempts retry after a
// fixed delay until the policy's attempt budget is spent. On success the
// snapshot is swapped atomically; on give-up the previous snapshot is
// retained untouched. Either way, every listener is notified exactly once —
// after the swap, never mid-retry.
//
// # Concurrency
//
// At most one cycle per coordinator is in flight. Concurrent Refresh calls
// coalesce onto the running cycle and all receive its terminal result.
// Snapshot reads never block and are idempotent between cycles. Categories
// are fully independent; a climate give-up does not touch binary sensors.
//
// # Time
//
// All waiting goes through the Clock interface — attempt timeouts, retry
// delays, and the interval ticker. Tests inject a fake clock and drive
// every timing property deterministically.
package poll
