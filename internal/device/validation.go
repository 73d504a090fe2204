package device

import "fmt"

// Validate checks a state as decoded from the gateway. It is the single gate
// between gateway payloads and the rest of the daemon: a state that passes
// is structurally sound, so the poll and bridge layers never re-validate.
//
// Checks performed:
//   - device ID present
//   - category recognised
//   - exactly one category payload set, matching the category
//   - climate payloads carry a valid unit, mode, and temperature range
func (s *State) Validate() error {
	if s == nil {
		return ErrInvalidState
	}
	if s.Info.ID == "" {
		return fmt.Errorf("%w: missing device id", ErrInvalidState)
	}
	if !s.Category.Valid() {
		return fmt.Errorf("%w: %q on device %s", ErrInvalidCategory, s.Category, s.Info.ID)
	}

	switch s.Category {
	case CategoryBinarySensor:
		if s.Binary == nil {
			return fmt.Errorf("%w: device %s missing binary_sensor payload", ErrInvalidState, s.Info.ID)
		}
		if s.Climate != nil {
			return fmt.Errorf("%w: device %s carries climate payload in binary_sensor category", ErrInvalidState, s.Info.ID)
		}
	case CategoryClimate:
		if s.Climate == nil {
			return fmt.Errorf("%w: device %s missing climate payload", ErrInvalidState, s.Info.ID)
		}
		if s.Binary != nil {
			return fmt.Errorf("%w: device %s carries binary_sensor payload in climate category", ErrInvalidState, s.Info.ID)
		}
		if err := validateClimate(s.Climate); err != nil {
			return fmt.Errorf("device %s: %w", s.Info.ID, err)
		}
	}

	return nil
}

func validateClimate(c *ClimateState) error {
	if !c.TemperatureUnit.Valid() {
		return fmt.Errorf("%w: temperature unit %q", ErrInvalidState, c.TemperatureUnit)
	}
	if !c.HVACMode.Valid() {
		return fmt.Errorf("%w: hvac mode %q", ErrInvalidState, c.HVACMode)
	}
	for _, m := range c.HVACModes {
		if !m.Valid() {
			return fmt.Errorf("%w: hvac mode %q in mode list", ErrInvalidState, m)
		}
	}
	// A zero range means the device didn't report limits; only reject ranges
	// that are actively inverted.
	if (c.MinTemp != 0 || c.MaxTemp != 0) && c.MaxTemp < c.MinTemp {
		return fmt.Errorf("%w: temperature range %.1f..%.1f", ErrInvalidState, c.MinTemp, c.MaxTemp)
	}
	return nil
}
