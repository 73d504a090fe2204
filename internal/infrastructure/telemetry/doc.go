// Package telemetry records poll cycles and device readings to InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with a small typed
// surface: one writer per measurement plus a Recorder that hooks into the
// poll manager's listener mechanism.
//
// # Measurements
//
//   - poll_cycle: one point per terminal cycle (success or give-up),
//     tagged by category and result
//   - climate: per-thermostat readings after a successful climate cycle
//   - binary_sensor: per-sensor contact state after a successful
//     binary_sensor cycle
//
// # Usage
//
//	client, err := telemetry.Connect(ctx, cfg.Telemetry)
//	if errors.Is(err, telemetry.ErrDisabled) {
//	    // Run without telemetry
//	}
//	defer client.Close()
//
//	recorder, _ := telemetry.NewRecorder(client, manager)
//	recorder.Start()
//	defer recorder.Stop()
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a
// callback. Connection and health check errors are returned directly.
package telemetry
