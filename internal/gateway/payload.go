package gateway

import "github.com/nerrad567/gray-logic-it600/internal/device"

// Writable device properties. The typed setters address these; the bridge
// and API map command parameters onto them.
const (
	PropertyTargetTemperature = "target_temperature"
	PropertyHVACMode          = "hvac_mode"
	PropertyFanMode           = "fan_mode"
	PropertyPresetMode        = "preset_mode"
)

// devicesResponse is the gateway's device listing envelope.
type devicesResponse struct {
	Devices []device.State `json:"devices"`
	Count   int            `json:"count"`
}

// propertyUpdate is the body of a property write.
type propertyUpdate struct {
	Value any `json:"value"`
}
