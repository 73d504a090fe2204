package device

// Category identifies which polling domain a device belongs to. Each
// category is refreshed by its own coordinator with its own schedule.
type Category string

// Category constants.
const (
	CategoryBinarySensor Category = "binary_sensor"
	CategoryClimate      Category = "climate"
)

// AllCategories returns every polled device category.
func AllCategories() []Category {
	return []Category{CategoryBinarySensor, CategoryClimate}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryBinarySensor, CategoryClimate:
		return true
	}
	return false
}

// Info holds the identity and hardware metadata the gateway reports for a
// device. ID is the gateway's stable unique identifier and never changes
// between polls; the remaining fields are informational.
type Info struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Manufacturer    string `json:"manufacturer,omitempty"`
	Model           string `json:"model,omitempty"`
	FirmwareVersion string `json:"firmware_version,omitempty"`
}

// State is a point-in-time reading for a single device. Exactly one of the
// category payloads is set, matching Category — enforced by Validate at the
// gateway boundary so downstream consumers never re-check.
//
// States are replaced wholesale on every successful refresh cycle; there are
// no partial per-field updates.
type State struct {
	Info      Info     `json:"info"`
	Category  Category `json:"category"`
	Available bool     `json:"available"`

	Binary  *BinarySensorState `json:"binary_sensor,omitempty"`
	Climate *ClimateState      `json:"climate,omitempty"`
}

// ID returns the device's unique identifier.
func (s State) ID() string {
	return s.Info.ID
}

// Clone returns an independent copy of the state. Payload pointers and
// slices are duplicated so mutations of the copy never reach the original —
// poll snapshots rely on this for cache isolation.
func (s State) Clone() State {
	cpy := s
	cpy.Binary = s.Binary.clone()
	cpy.Climate = s.Climate.clone()
	return cpy
}

// BinarySensorClass describes what a binary sensor physically senses.
type BinarySensorClass string

// BinarySensorClass constants. Gateways may report classes outside this set;
// unknown values are carried through rather than rejected.
const (
	ClassDoor    BinarySensorClass = "door"
	ClassWindow  BinarySensorClass = "window"
	ClassSmoke   BinarySensorClass = "smoke"
	ClassLeak    BinarySensorClass = "leak"
	ClassGeneric BinarySensorClass = "generic"
)

// BinarySensorState holds the reading for a door/window/smoke/leak sensor.
type BinarySensorState struct {
	On    bool              `json:"on"`
	Class BinarySensorClass `json:"class,omitempty"`
}

// Icon returns the frontend icon hint for the sensor's current state.
func (b *BinarySensorState) Icon() string {
	if b != nil && b.On {
		return "mdi:valve-open"
	}
	return "mdi:valve-closed"
}

func (b *BinarySensorState) clone() *BinarySensorState {
	if b == nil {
		return nil
	}
	cpy := *b
	return &cpy
}

// TemperatureUnit is the unit a climate device reports temperatures in.
type TemperatureUnit string

// TemperatureUnit constants.
const (
	UnitCelsius    TemperatureUnit = "celsius"
	UnitFahrenheit TemperatureUnit = "fahrenheit"
)

// Valid reports whether u is a known temperature unit.
func (u TemperatureUnit) Valid() bool {
	switch u {
	case UnitCelsius, UnitFahrenheit:
		return true
	}
	return false
}

// HVACMode is the operating mode a thermostat is set to.
type HVACMode string

// HVACMode constants.
const (
	HVACModeOff  HVACMode = "off"
	HVACModeHeat HVACMode = "heat"
	HVACModeCool HVACMode = "cool"
	HVACModeAuto HVACMode = "auto"
)

// AllHVACModes returns every recognised HVAC mode.
func AllHVACModes() []HVACMode {
	return []HVACMode{HVACModeOff, HVACModeHeat, HVACModeCool, HVACModeAuto}
}

// Valid reports whether m is a known HVAC mode.
func (m HVACMode) Valid() bool {
	switch m {
	case HVACModeOff, HVACModeHeat, HVACModeCool, HVACModeAuto:
		return true
	}
	return false
}

// HVACAction is what the equipment is doing right now, as opposed to the
// mode it is set to. A thermostat in heat mode sits at "idle" between calls
// for heat.
type HVACAction string

// HVACAction constants.
const (
	HVACActionIdle    HVACAction = "idle"
	HVACActionHeating HVACAction = "heating"
	HVACActionCooling HVACAction = "cooling"
	HVACActionOff     HVACAction = "off"
)

// Fan mode values documented for iT600 fan coil units. Fan and preset modes
// are open sets — firmware variants add their own — so ClimateState carries
// them as plain strings.
const (
	FanModeAuto   = "auto"
	FanModeLow    = "low"
	FanModeMedium = "medium"
	FanModeHigh   = "high"
	FanModeOff    = "off"
)

// ClimateState holds the full reading for a thermostat or TRV.
type ClimateState struct {
	TemperatureUnit    TemperatureUnit `json:"temperature_unit"`
	Precision          float64         `json:"precision,omitempty"`
	CurrentTemperature float64         `json:"current_temperature"`
	CurrentHumidity    *float64        `json:"current_humidity,omitempty"`
	HVACMode           HVACMode        `json:"hvac_mode"`
	HVACModes          []HVACMode      `json:"hvac_modes"`
	HVACAction         HVACAction      `json:"hvac_action,omitempty"`
	TargetTemperature  float64         `json:"target_temperature"`
	MinTemp            float64         `json:"min_temp,omitempty"`
	MaxTemp            float64         `json:"max_temp,omitempty"`
	PresetMode         string          `json:"preset_mode,omitempty"`
	PresetModes        []string        `json:"preset_modes,omitempty"`
	FanMode            string          `json:"fan_mode,omitempty"`
	FanModes           []string        `json:"fan_modes,omitempty"`
	Locked             bool            `json:"locked"`
}

// Icon returns the frontend icon hint for thermostats.
func (c *ClimateState) Icon() string {
	return "mdi:contrast-box"
}

func (c *ClimateState) clone() *ClimateState {
	if c == nil {
		return nil
	}
	cpy := *c
	if c.CurrentHumidity != nil {
		h := *c.CurrentHumidity
		cpy.CurrentHumidity = &h
	}
	if c.HVACModes != nil {
		cpy.HVACModes = make([]HVACMode, len(c.HVACModes))
		copy(cpy.HVACModes, c.HVACModes)
	}
	if c.PresetModes != nil {
		cpy.PresetModes = make([]string, len(c.PresetModes))
		copy(cpy.PresetModes, c.PresetModes)
	}
	if c.FanModes != nil {
		cpy.FanModes = make([]string, len(c.FanModes))
		copy(cpy.FanModes, c.FanModes)
	}
	return &cpy
}

// Features is a bitmask of climate capabilities derived from a device's
// mode lists.
type Features uint32

// Feature flags.
const (
	FeatureTargetTemperature Features = 1 << iota
	FeatureTurnOn
	FeatureTurnOff
	FeaturePresetMode
	FeatureFanMode
)

// Has reports whether every bit in mask is set.
func (f Features) Has(mask Features) bool {
	return f&mask == mask
}

// SupportedFeatures derives the capability bitmask for a climate device.
// Target temperature control is always supported. On/off control requires
// an off, heat, or auto mode to switch between; preset and fan control
// require non-empty mode lists.
func SupportedFeatures(c *ClimateState) Features {
	features := FeatureTargetTemperature
	if c == nil {
		return features
	}
	for _, m := range c.HVACModes {
		if m == HVACModeOff || m == HVACModeHeat || m == HVACModeAuto {
			features |= FeatureTurnOn | FeatureTurnOff
			break
		}
	}
	if len(c.PresetModes) > 0 {
		features |= FeaturePresetMode
	}
	if len(c.FanModes) > 0 {
		features |= FeatureFanMode
	}
	return features
}
