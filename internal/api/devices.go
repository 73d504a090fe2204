package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-it600/internal/bridge"
	"github.com/nerrad567/gray-logic-it600/internal/device"
	"github.com/nerrad567/gray-logic-it600/internal/poll"
)

// DeviceView is the REST projection of one polled device: the raw state
// from the latest snapshot plus the frontend hints derived from it.
type DeviceView struct {
	device.State
	Icon              string   `json:"icon"`
	SupportedFeatures []string `json:"supported_features,omitempty"`
}

// DeviceCommand is the request body for POST /devices/{id}/commands.
type DeviceCommand struct {
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// newDeviceView projects a snapshot state into its REST representation.
func newDeviceView(st device.State) DeviceView {
	view := DeviceView{State: st}
	switch st.Category {
	case device.CategoryBinarySensor:
		view.Icon = st.Binary.Icon()
	case device.CategoryClimate:
		view.Icon = st.Climate.Icon()
		view.SupportedFeatures = featureNames(device.SupportedFeatures(st.Climate))
	}
	return view
}

// featureNames expands a climate capability bitmask into wire names.
func featureNames(f device.Features) []string {
	all := []struct {
		flag device.Features
		name string
	}{
		{device.FeatureTargetTemperature, "target_temperature"},
		{device.FeatureTurnOn, "turn_on"},
		{device.FeatureTurnOff, "turn_off"},
		{device.FeaturePresetMode, "preset_mode"},
		{device.FeatureFanMode, "fan_mode"},
	}

	names := make([]string, 0, len(all))
	for _, entry := range all {
		if f.Has(entry.flag) {
			names = append(names, entry.name)
		}
	}
	return names
}

// projectSnapshot converts every device in a snapshot, ordered by ID.
func projectSnapshot(snap *poll.Snapshot) []DeviceView {
	states := snap.All()
	views := make([]DeviceView, 0, len(states))
	for _, st := range states {
		views = append(views, newDeviceView(st))
	}
	return views
}

// handleListDevices returns the devices in the latest snapshots, with an
// optional category filter.
//
// Query parameters:
//   - category: filter to one polled category (binary_sensor, climate)
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	if catStr := r.URL.Query().Get("category"); catStr != "" {
		cat := device.Category(catStr)
		if !cat.Valid() {
			writeBadRequest(w, fmt.Sprintf("unknown category %q", catStr))
			return
		}
		snap, err := s.manager.Snapshot(cat)
		if err != nil {
			writeNotFound(w, fmt.Sprintf("category %q is not polled", catStr))
			return
		}
		views := projectSnapshot(snap)
		writeJSON(w, http.StatusOK, map[string]any{"devices": views, "count": len(views)})
		return
	}

	// No filter: concatenate every category in registration order.
	views := make([]DeviceView, 0)
	for _, cat := range s.manager.Categories() {
		snap, err := s.manager.Snapshot(cat)
		if err != nil {
			continue
		}
		views = append(views, projectSnapshot(snap)...)
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": views, "count": len(views)})
}

// handleGetDevice returns a single device from the latest snapshots.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	for _, cat := range s.manager.Categories() {
		snap, err := s.manager.Snapshot(cat)
		if err != nil {
			continue
		}
		if st, ok := snap.Device(id); ok {
			writeJSON(w, http.StatusOK, newDeviceView(st))
			return
		}
	}

	writeNotFound(w, fmt.Sprintf("device %q not present in any snapshot", id))
}

// handleDeviceCommand executes a device command through the shared
// dispatcher and returns its acknowledgment.
//
// An accepted command returns 202 with the ack payload: acceptance means
// the gateway took the write, not that the device state has converged.
// Convergence surfaces through the nudged refresh cycle. Failed commands
// map the ack's error code onto an HTTP status.
func (s *Server) handleDeviceCommand(w http.ResponseWriter, r *http.Request) {
	if s.dispatcher == nil {
		writeUnavailable(w, "command dispatch is not configured")
		return
	}

	id := chi.URLParam(r, "id")

	var req DeviceCommand
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Command == "" {
		writeBadRequest(w, "command is required")
		return
	}

	cmd := bridge.NewCommandMessage(id, req.Command, req.Parameters, "api")
	ack := s.dispatcher.Execute(r.Context(), cmd)
	if ack.Status == bridge.AckAccepted {
		writeJSON(w, http.StatusAccepted, ack)
		return
	}

	code, message := ErrCodeInternal, "command failed"
	if ack.Error != nil {
		code, message = ack.Error.Code, ack.Error.Message
	}
	writeError(w, ackHTTPStatus(ack.Error), code, message)
}

// ackHTTPStatus maps a dispatcher ack error onto an HTTP status code.
func ackHTTPStatus(ackErr *bridge.AckError) int {
	if ackErr == nil {
		return http.StatusInternalServerError
	}
	switch ackErr.Code {
	case bridge.ErrCodeUnknownDevice:
		return http.StatusNotFound
	case bridge.ErrCodeUnknownCommand, bridge.ErrCodeInvalidParameters:
		return http.StatusBadRequest
	case bridge.ErrCodeGatewayError:
		return http.StatusBadGateway
	case bridge.ErrCodeBridgeStopping:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
