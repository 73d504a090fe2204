package bridge

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-it600/internal/device"
	"github.com/nerrad567/gray-logic-it600/internal/gateway"
	"github.com/nerrad567/gray-logic-it600/internal/poll"
)

// MQTT message types for communication between Gray Logic Core and the
// iT600 bridge. The bridge owns the topic layout and payload formats; the
// MQTT client underneath is pure transport.

// CommandMessage is sent from Core to the bridge to execute a device
// command.
// Topic: graylogic/command/it600/{deviceID}
type CommandMessage struct {
	// ID uniquely identifies this command for correlation with
	// acknowledgments.
	ID string `json:"id"`

	// Timestamp is when the command was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// DeviceID is the gateway's device identifier.
	DeviceID string `json:"device_id"`

	// Command is the command name (e.g., "set_temperature").
	Command string `json:"command"`

	// Parameters contains command-specific values.
	// Examples:
	//   {"temperature": 21.5} for set_temperature
	//   {"hvac_mode": "heat"} for set_hvac_mode
	Parameters map[string]any `json:"parameters,omitempty"`

	// Source indicates where the command originated.
	// Values: "api", "mqtt", "automation"
	Source string `json:"source,omitempty"`
}

// Command names the bridge dispatches. All target climate devices; binary
// sensors are read-only.
const (
	CommandSetTemperature = "set_temperature"
	CommandSetHVACMode    = "set_hvac_mode"
	CommandSetFanMode     = "set_fan_mode"
	CommandSetPresetMode  = "set_preset_mode"
)

// AckStatus represents the acknowledgment status of a command.
type AckStatus string

const (
	// AckAccepted indicates the command was received and sent to the
	// gateway.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"
)

// AckMessage is sent from the bridge to Core to acknowledge a command.
// Topic: graylogic/ack/it600/{deviceID}
type AckMessage struct {
	// CommandID is the ID from the original command.
	CommandID string `json:"command_id"`

	// Timestamp is when the acknowledgment was sent (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// DeviceID is the gateway's device identifier.
	DeviceID string `json:"device_id"`

	// Status indicates the acknowledgment status.
	Status AckStatus `json:"status"`

	// Protocol is the protocol identifier ("it600").
	Protocol string `json:"protocol"`

	// Error contains details if status is "failed".
	Error *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	// Code is the error code (e.g., "unknown_device").
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`
}

// Error codes for command failures.
const (
	ErrCodeUnknownDevice     = "unknown_device"
	ErrCodeUnknownCommand    = "unknown_command"
	ErrCodeInvalidParameters = "invalid_parameters"
	ErrCodeGatewayError      = "gateway_error"
	ErrCodeBridgeStopping    = "bridge_stopping"
)

// StateMessage is sent from the bridge to Core when a device's state or
// availability changes.
// Topic: graylogic/state/it600/{deviceID}
// QoS: 1, Retained: Yes
type StateMessage struct {
	// DeviceID is the gateway's device identifier.
	DeviceID string `json:"device_id"`

	// Timestamp is when the state was observed (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Protocol is the protocol identifier ("it600").
	Protocol string `json:"protocol"`

	// Category is the device category.
	Category device.Category `json:"category"`

	// Available reports whether the device was present in the last
	// successful snapshot. When false, no state payload is attached.
	Available bool `json:"available"`

	// Sequence is the snapshot sequence this state was taken from.
	Sequence uint64 `json:"sequence"`

	// Exactly one of the payloads is set for available devices, matching
	// Category.
	BinarySensor *device.BinarySensorState `json:"binary_sensor,omitempty"`
	Climate      *device.ClimateState      `json:"climate,omitempty"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthOnline indicates the bridge is operating normally.
	HealthOnline HealthStatus = "online"

	// HealthDegraded indicates the bridge is operating with issues.
	HealthDegraded HealthStatus = "degraded"

	// HealthOffline indicates the bridge is not connected (from LWT).
	HealthOffline HealthStatus = "offline"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is sent from the bridge to Core to report operational
// status.
// Topic: graylogic/health/it600
// QoS: 1, Retained: Yes
type HealthMessage struct {
	// Bridge is the bridge identifier (e.g., "it600").
	Bridge string `json:"bridge"`

	// Timestamp is when the health status was generated (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Status indicates the current operational status.
	Status HealthStatus `json:"status"`

	// Version is the bridge software version.
	Version string `json:"version,omitempty"`

	// UptimeSeconds is how long the bridge has been running.
	UptimeSeconds int64 `json:"uptime_seconds"`

	// Gateway summarises the iT600 gateway connection.
	Gateway *GatewayHealth `json:"gateway,omitempty"`

	// Polling carries per-category poll statistics.
	Polling []CategoryHealth `json:"polling,omitempty"`

	// Reason explains the status (especially for offline/degraded).
	Reason string `json:"reason,omitempty"`
}

// GatewayHealth describes the gateway connection inside a health message.
type GatewayHealth struct {
	// Reachable reports the most recent gateway health probe outcome.
	Reachable bool `json:"reachable"`

	// Request counters since startup.
	Polls    uint64 `json:"polls"`
	Reads    uint64 `json:"reads"`
	Commands uint64 `json:"commands"`
	Errors   uint64 `json:"errors"`

	// LastPoll is when the gateway last answered a poll request.
	LastPoll *time.Time `json:"last_poll,omitempty"`
}

// CategoryHealth describes one category's polling inside a health message.
type CategoryHealth struct {
	Category        string     `json:"category"`
	IntervalSeconds int        `json:"interval_seconds"`
	Cycles          uint64     `json:"cycles"`
	Failures        uint64     `json:"failures"`
	Attempts        uint64     `json:"attempts"`
	Devices         int        `json:"devices"`
	LastSuccess     *time.Time `json:"last_success,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
}

// JSON marshalling helpers

// MarshalJSON marshals a CommandMessage to JSON.
func (m *CommandMessage) MarshalJSON() ([]byte, error) {
	type Alias CommandMessage
	return json.Marshal(&struct {
		*Alias
		Timestamp string `json:"timestamp"`
	}{
		Alias:     (*Alias)(m),
		Timestamp: m.Timestamp.UTC().Format(time.RFC3339),
	})
}

// UnmarshalJSON unmarshals a CommandMessage from JSON. A missing timestamp
// is tolerated so hand-published test commands work.
func (m *CommandMessage) UnmarshalJSON(data []byte) error {
	type Alias CommandMessage
	aux := &struct {
		*Alias
		Timestamp string `json:"timestamp"`
	}{
		Alias: (*Alias)(m),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return fmt.Errorf("unmarshal command message: %w", err)
	}
	if aux.Timestamp != "" {
		t, err := time.Parse(time.RFC3339, aux.Timestamp)
		if err != nil {
			return fmt.Errorf("parse timestamp: %w", err)
		}
		m.Timestamp = t
	}
	return nil
}

// NewCommandMessage creates a command message with a fresh UUID.
func NewCommandMessage(deviceID, command string, parameters map[string]any, source string) CommandMessage {
	return CommandMessage{
		ID:         uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		DeviceID:   deviceID,
		Command:    command,
		Parameters: parameters,
		Source:     source,
	}
}

// NewAckMessage creates an acknowledgment message for a command.
func NewAckMessage(cmd CommandMessage, status AckStatus) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  cmd.DeviceID,
		Status:    status,
		Protocol:  ProtocolID,
	}
}

// NewAckError creates a failed acknowledgment with error details.
func NewAckError(cmd CommandMessage, code, message string) AckMessage {
	ack := NewAckMessage(cmd, AckFailed)
	ack.Error = &AckError{Code: code, Message: message}
	return ack
}

// NewStateMessage creates a state message from a snapshot device state.
func NewStateMessage(st device.State, seq uint64) StateMessage {
	return StateMessage{
		DeviceID:     st.ID(),
		Timestamp:    time.Now().UTC(),
		Protocol:     ProtocolID,
		Category:     st.Category,
		Available:    st.Available,
		Sequence:     seq,
		BinarySensor: st.Binary,
		Climate:      st.Climate,
	}
}

// NewUnavailableMessage creates a state message for a device that vanished
// from the snapshot.
func NewUnavailableMessage(deviceID string, cat device.Category, seq uint64) StateMessage {
	return StateMessage{
		DeviceID:  deviceID,
		Timestamp: time.Now().UTC(),
		Protocol:  ProtocolID,
		Category:  cat,
		Available: false,
		Sequence:  seq,
	}
}

// NewHealthMessage creates a health status message.
func NewHealthMessage(bridgeID, version string, status HealthStatus, gwStats gateway.Stats, gwReachable bool, polling []poll.Stats, startTime time.Time) HealthMessage {
	msg := HealthMessage{
		Bridge:        bridgeID,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       version,
		UptimeSeconds: int64(time.Since(startTime).Seconds()),
	}

	gw := &GatewayHealth{
		Reachable: gwReachable,
		Polls:     gwStats.Polls,
		Reads:     gwStats.Reads,
		Commands:  gwStats.Commands,
		Errors:    gwStats.Errors,
	}
	if !gwStats.LastPoll.IsZero() {
		last := gwStats.LastPoll
		gw.LastPoll = &last
	}
	msg.Gateway = gw

	for _, s := range polling {
		ch := CategoryHealth{
			Category:        string(s.Category),
			IntervalSeconds: int(s.Interval / time.Second),
			Cycles:          s.Cycles,
			Failures:        s.Failures,
			Attempts:        s.Attempts,
			Devices:         s.Devices,
			LastError:       s.LastError,
		}
		if !s.LastSuccess.IsZero() {
			last := s.LastSuccess
			ch.LastSuccess = &last
		}
		msg.Polling = append(msg.Polling, ch)
	}

	return msg
}

// NewLWTMessage creates the Last Will and Testament message. The broker
// publishes it if the bridge disconnects unexpectedly.
func NewLWTMessage(bridgeID string) HealthMessage {
	return HealthMessage{
		Bridge:    bridgeID,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected_disconnect",
	}
}

// Topic helpers

const (
	// TopicPrefix is the base topic for all Gray Logic messages.
	TopicPrefix = "graylogic"

	// ProtocolID is the protocol segment in topics and the protocol field
	// in payloads.
	ProtocolID = "it600"
)

// StateTopic returns the MQTT topic for a device's state updates.
// Example: graylogic/state/it600/sensor-001
func StateTopic(deviceID string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, ProtocolID, deviceID)
}

// CommandTopic returns the MQTT topic for commands to a specific device.
// Example: graylogic/command/it600/trv-001
func CommandTopic(deviceID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, ProtocolID, deviceID)
}

// AckTopic returns the MQTT topic for command acknowledgments.
// Example: graylogic/ack/it600/trv-001
func AckTopic(deviceID string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, ProtocolID, deviceID)
}

// HealthTopic returns the MQTT topic for health status. It doubles as the
// LWT topic.
// Example: graylogic/health/it600
func HealthTopic() string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, ProtocolID)
}

// CommandSubscribeTopic returns the MQTT subscription pattern for all
// device commands.
// Example: graylogic/command/it600/+
func CommandSubscribeTopic() string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefix, ProtocolID)
}
