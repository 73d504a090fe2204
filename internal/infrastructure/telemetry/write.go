package telemetry

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// CyclePoint is one terminal refresh cycle, success or give-up.
type CyclePoint struct {
	// Category the cycle refreshed (binary_sensor, climate).
	Category string

	// Success is false when the cycle spent its whole attempt budget.
	Success bool

	// Sequence of the snapshot after the cycle.
	Sequence uint64

	// Devices in the snapshot after the cycle.
	Devices int

	// Cycles, Failures and Attempts are the coordinator's lifetime counters.
	Cycles   uint64
	Failures uint64
	Attempts uint64
}

// ClimatePoint is one climate device reading.
type ClimatePoint struct {
	DeviceID           string
	HVACMode           string
	CurrentTemperature float64
	TargetTemperature  float64

	// CurrentHumidity is nil when the device has no humidity sensor.
	CurrentHumidity *float64
}

// BinarySensorPoint is one binary sensor reading.
type BinarySensorPoint struct {
	DeviceID string
	Class    string
	On       bool
}

// WriteCycle records a poll cycle outcome.
//
// Measurement: poll_cycle
// Tags: category, result (success|failure)
// Fields: sequence, devices, cycles, failures, attempts
//
// The write is non-blocking; data is batched and sent asynchronously.
func (c *Client) WriteCycle(p CyclePoint) {
	if !c.IsConnected() {
		return
	}

	result := "success"
	if !p.Success {
		result = "failure"
	}

	point := write.NewPoint(
		"poll_cycle",
		map[string]string{
			"category": p.Category,
			"result":   result,
		},
		map[string]interface{}{
			"sequence": int64(p.Sequence), // #nosec G115 -- sequence wraps far beyond any deployment lifetime
			"devices":  p.Devices,
			"cycles":   int64(p.Cycles),   // #nosec G115
			"failures": int64(p.Failures), // #nosec G115
			"attempts": int64(p.Attempts), // #nosec G115
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteClimate records a climate device reading.
//
// Measurement: climate
// Tags: device_id, hvac_mode
// Fields: current_temperature, target_temperature, humidity (when present)
func (c *Client) WriteClimate(p ClimatePoint) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"current_temperature": p.CurrentTemperature,
		"target_temperature":  p.TargetTemperature,
	}
	if p.CurrentHumidity != nil {
		fields["humidity"] = *p.CurrentHumidity
	}

	point := write.NewPoint(
		"climate",
		map[string]string{
			"device_id": p.DeviceID,
			"hvac_mode": p.HVACMode,
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteBinarySensor records a binary sensor reading.
//
// Measurement: binary_sensor
// Tags: device_id, class
// Fields: on
func (c *Client) WriteBinarySensor(p BinarySensorPoint) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"binary_sensor",
		map[string]string{
			"device_id": p.DeviceID,
			"class":     p.Class,
		},
		map[string]interface{}{
			"on": p.On,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
