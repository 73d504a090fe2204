package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-it600/internal/device"
	"github.com/nerrad567/gray-logic-it600/internal/gateway"
	"github.com/nerrad567/gray-logic-it600/internal/poll"
)

// Commander is the slice of the gateway client the dispatcher sends
// commands through.
type Commander interface {
	SetTemperature(ctx context.Context, deviceID string, temperature float64) error
	SetHVACMode(ctx context.Context, deviceID string, mode device.HVACMode) error
	SetFanMode(ctx context.Context, deviceID, mode string) error
	SetPresetMode(ctx context.Context, deviceID, preset string) error
}

// Dispatcher validates and executes device commands. It is shared between
// the MQTT command handler and the REST API so both surfaces ack with the
// same codes.
type Dispatcher struct {
	commander Commander
	manager   *poll.Manager
}

// NewDispatcher creates a command dispatcher.
func NewDispatcher(commander Commander, manager *poll.Manager) (*Dispatcher, error) {
	if commander == nil {
		return nil, fmt.Errorf("bridge: commander is required")
	}
	if manager == nil {
		return nil, fmt.Errorf("bridge: poll manager is required")
	}
	return &Dispatcher{commander: commander, manager: manager}, nil
}

// Execute runs one command end to end and returns the acknowledgment.
// Failures are encoded in the ack, never panicked or swallowed: unknown
// devices and commands, bad parameters, and gateway errors each carry
// their code. On success the device's category is nudged to refresh so
// the published state converges with the gateway.
func (d *Dispatcher) Execute(ctx context.Context, cmd CommandMessage) AckMessage {
	st, ok := d.lookupDevice(cmd.DeviceID)
	if !ok {
		return NewAckError(cmd, ErrCodeUnknownDevice,
			fmt.Sprintf("device %q not present in any snapshot", cmd.DeviceID))
	}

	// Binary sensors are read-only; every command targets climate.
	if st.Category != device.CategoryClimate {
		return NewAckError(cmd, ErrCodeUnknownCommand,
			fmt.Sprintf("%s devices accept no commands", st.Category))
	}

	var ackErr *AckError
	switch cmd.Command {
	case CommandSetTemperature:
		ackErr = d.setTemperature(ctx, cmd)
	case CommandSetHVACMode:
		ackErr = d.setHVACMode(ctx, cmd)
	case CommandSetFanMode:
		ackErr = d.setFanMode(ctx, cmd)
	case CommandSetPresetMode:
		ackErr = d.setPresetMode(ctx, cmd)
	default:
		return NewAckError(cmd, ErrCodeUnknownCommand,
			fmt.Sprintf("unknown command %q", cmd.Command))
	}

	if ackErr != nil {
		ack := NewAckMessage(cmd, AckFailed)
		ack.Error = ackErr
		return ack
	}

	// Nudge the category so the next snapshot reflects the command. The
	// refresh outcome surfaces through listeners; the ack covers only the
	// send. The category came from the manager's own snapshot, so the
	// lookup cannot fail.
	_ = d.manager.RequestRefresh(st.Category)

	return NewAckMessage(cmd, AckAccepted)
}

// lookupDevice searches every category snapshot for id.
func (d *Dispatcher) lookupDevice(id string) (device.State, bool) {
	for _, cat := range d.manager.Categories() {
		snap, err := d.manager.Snapshot(cat)
		if err != nil {
			continue
		}
		if st, ok := snap.Device(id); ok {
			return st, true
		}
	}
	return device.State{}, false
}

func (d *Dispatcher) setTemperature(ctx context.Context, cmd CommandMessage) *AckError {
	temperature, ok := floatParam(cmd.Parameters, "temperature")
	if !ok {
		return &AckError{Code: ErrCodeInvalidParameters, Message: "'temperature' must be a number"}
	}
	if err := d.commander.SetTemperature(ctx, cmd.DeviceID, temperature); err != nil {
		return gatewayAckError(err)
	}
	return nil
}

func (d *Dispatcher) setHVACMode(ctx context.Context, cmd CommandMessage) *AckError {
	mode, ok := stringParam(cmd.Parameters, "hvac_mode")
	if !ok {
		return &AckError{Code: ErrCodeInvalidParameters, Message: "'hvac_mode' must be a string"}
	}
	hvacMode := device.HVACMode(mode)
	if !hvacMode.Valid() {
		return &AckError{
			Code:    ErrCodeInvalidParameters,
			Message: fmt.Sprintf("unknown hvac_mode %q", mode),
		}
	}
	if err := d.commander.SetHVACMode(ctx, cmd.DeviceID, hvacMode); err != nil {
		return gatewayAckError(err)
	}
	return nil
}

func (d *Dispatcher) setFanMode(ctx context.Context, cmd CommandMessage) *AckError {
	mode, ok := stringParam(cmd.Parameters, "fan_mode")
	if !ok || mode == "" {
		return &AckError{Code: ErrCodeInvalidParameters, Message: "'fan_mode' must be a non-empty string"}
	}
	if err := d.commander.SetFanMode(ctx, cmd.DeviceID, mode); err != nil {
		return gatewayAckError(err)
	}
	return nil
}

func (d *Dispatcher) setPresetMode(ctx context.Context, cmd CommandMessage) *AckError {
	preset, ok := stringParam(cmd.Parameters, "preset_mode")
	if !ok || preset == "" {
		return &AckError{Code: ErrCodeInvalidParameters, Message: "'preset_mode' must be a non-empty string"}
	}
	if err := d.commander.SetPresetMode(ctx, cmd.DeviceID, preset); err != nil {
		return gatewayAckError(err)
	}
	return nil
}

// gatewayAckError maps a gateway call failure to an ack error code. A 404
// means the device vanished between the snapshot lookup and the command.
func gatewayAckError(err error) *AckError {
	code := ErrCodeGatewayError
	if errors.Is(err, gateway.ErrDeviceNotFound) {
		code = ErrCodeUnknownDevice
	}
	return &AckError{Code: code, Message: err.Error()}
}

// floatParam extracts a float parameter. JSON numbers decode as float64.
func floatParam(params map[string]any, key string) (float64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// stringParam extracts a string parameter.
func stringParam(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
