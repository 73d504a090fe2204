package device

import (
	"errors"
	"testing"
)

func validBinarySensor() State {
	return State{
		Info:      Info{ID: "bs-001", Name: "Hallway Window"},
		Category:  CategoryBinarySensor,
		Available: true,
		Binary:    &BinarySensorState{On: true, Class: ClassWindow},
	}
}

func validClimate() State {
	humidity := 48.0
	return State{
		Info:      Info{ID: "cl-001", Name: "Living Room TRV", Manufacturer: "Salus", Model: "TS600", FirmwareVersion: "1.12"},
		Category:  CategoryClimate,
		Available: true,
		Climate: &ClimateState{
			TemperatureUnit:    UnitCelsius,
			Precision:          0.5,
			CurrentTemperature: 20.5,
			CurrentHumidity:    &humidity,
			HVACMode:           HVACModeHeat,
			HVACModes:          []HVACMode{HVACModeOff, HVACModeHeat, HVACModeAuto},
			HVACAction:         HVACActionHeating,
			TargetTemperature:  21.0,
			MinTemp:            5.0,
			MaxTemp:            35.0,
			PresetModes:        []string{"eco", "comfort"},
		},
	}
}

func TestStateValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*State)
		wantErr error
	}{
		{
			name:    "valid binary sensor",
			mutate:  func(s *State) {},
			wantErr: nil,
		},
		{
			name:    "missing id",
			mutate:  func(s *State) { s.Info.ID = "" },
			wantErr: ErrInvalidState,
		},
		{
			name:    "unknown category",
			mutate:  func(s *State) { s.Category = "switch" },
			wantErr: ErrInvalidCategory,
		},
		{
			name:    "empty category",
			mutate:  func(s *State) { s.Category = "" },
			wantErr: ErrInvalidCategory,
		},
		{
			name:    "missing binary payload",
			mutate:  func(s *State) { s.Binary = nil },
			wantErr: ErrInvalidState,
		},
		{
			name:    "wrong payload for category",
			mutate:  func(s *State) { s.Climate = &ClimateState{} },
			wantErr: ErrInvalidState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validBinarySensor()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
			} else {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
				}
			}
		})
	}
}

func TestStateValidate_Climate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*State)
		wantErr error
	}{
		{
			name:    "valid climate",
			mutate:  func(s *State) {},
			wantErr: nil,
		},
		{
			name:    "missing climate payload",
			mutate:  func(s *State) { s.Climate = nil },
			wantErr: ErrInvalidState,
		},
		{
			name:    "both payloads set",
			mutate:  func(s *State) { s.Binary = &BinarySensorState{} },
			wantErr: ErrInvalidState,
		},
		{
			name:    "bad temperature unit",
			mutate:  func(s *State) { s.Climate.TemperatureUnit = "kelvin" },
			wantErr: ErrInvalidState,
		},
		{
			name:    "bad hvac mode",
			mutate:  func(s *State) { s.Climate.HVACMode = "defrost" },
			wantErr: ErrInvalidState,
		},
		{
			name:    "bad mode in mode list",
			mutate:  func(s *State) { s.Climate.HVACModes = []HVACMode{HVACModeHeat, "defrost"} },
			wantErr: ErrInvalidState,
		},
		{
			name:    "inverted temperature range",
			mutate:  func(s *State) { s.Climate.MinTemp, s.Climate.MaxTemp = 30, 10 },
			wantErr: ErrInvalidState,
		},
		{
			name:    "unreported range allowed",
			mutate:  func(s *State) { s.Climate.MinTemp, s.Climate.MaxTemp = 0, 0 },
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validClimate()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
			} else {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
				}
			}
		})
	}
}

func TestValidateNilState(t *testing.T) {
	var s *State
	if err := s.Validate(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Validate() on nil = %v, want %v", err, ErrInvalidState)
	}
}
