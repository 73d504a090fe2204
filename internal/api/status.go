package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-logic-it600/internal/poll"
)

// statusProbeTimeout bounds the live gateway probe inside /status.
const statusProbeTimeout = 5 * time.Second

// StatusResponse is the aggregate reported by GET /status.
type StatusResponse struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeStatus    `json:"runtime"`
	Gateway       *GatewayStatus   `json:"gateway,omitempty"`
	MQTT          MQTTStatus       `json:"mqtt"`
	Polling       []CategoryStatus `json:"polling"`
	WebSocket     WSStatus         `json:"websocket"`
	Database      *DatabaseStatus  `json:"database,omitempty"`
}

// RuntimeStatus contains Go runtime statistics.
type RuntimeStatus struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// GatewayStatus reports the gateway client's reachability and counters.
type GatewayStatus struct {
	Reachable bool       `json:"reachable"`
	Polls     uint64     `json:"polls"`
	Reads     uint64     `json:"reads"`
	Commands  uint64     `json:"commands"`
	Errors    uint64     `json:"errors"`
	LastPoll  *time.Time `json:"last_poll,omitempty"`
}

// MQTTStatus reports broker connectivity.
type MQTTStatus struct {
	Connected bool `json:"connected"`
}

// CategoryStatus reports one category's polling counters. The shape matches
// the per-category section of the MQTT health message.
type CategoryStatus struct {
	Category        string     `json:"category"`
	IntervalSeconds int        `json:"interval_seconds"`
	Cycles          uint64     `json:"cycles"`
	Failures        uint64     `json:"failures"`
	Attempts        uint64     `json:"attempts"`
	Devices         int        `json:"devices"`
	LastSuccess     *time.Time `json:"last_success,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
}

// WSStatus contains WebSocket hub statistics.
type WSStatus struct {
	ConnectedClients int `json:"connected_clients"`
}

// DatabaseStatus reports SQLite health and connection pool statistics.
type DatabaseStatus struct {
	Healthy         bool   `json:"healthy"`
	Error           string `json:"error,omitempty"`
	OpenConnections int    `json:"open_connections"`
	InUse           int    `json:"in_use"`
	Idle            int    `json:"idle"`
}

// categoryStatus converts poll counters into their REST representation.
func categoryStatus(st poll.Stats) CategoryStatus {
	cs := CategoryStatus{
		Category:        string(st.Category),
		IntervalSeconds: int(st.Interval / time.Second),
		Cycles:          st.Cycles,
		Failures:        st.Failures,
		Attempts:        st.Attempts,
		Devices:         st.Devices,
		LastError:       st.LastError,
	}
	if !st.LastSuccess.IsZero() {
		ts := st.LastSuccess.UTC()
		cs.LastSuccess = &ts
	}
	return cs
}

// handleStatus returns the aggregate daemon status: gateway reachability
// and counters, MQTT connectivity, per-category polling statistics,
// WebSocket clients, and database health. Sections without a wired source
// are omitted.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	resp := StatusResponse{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeStatus{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSStatus{
			ConnectedClients: s.hub.ClientCount(),
		},
	}

	// Live gateway probe, bounded so a dark gateway cannot stall /status.
	if s.gateway != nil {
		probeCtx, cancel := context.WithTimeout(r.Context(), statusProbeTimeout)
		probeErr := s.gateway.HealthCheck(probeCtx)
		cancel()

		stats := s.gateway.Stats()
		gw := &GatewayStatus{
			Reachable: probeErr == nil,
			Polls:     stats.Polls,
			Reads:     stats.Reads,
			Commands:  stats.Commands,
			Errors:    stats.Errors,
		}
		if !stats.LastPoll.IsZero() {
			last := stats.LastPoll.UTC()
			gw.LastPoll = &last
		}
		resp.Gateway = gw
	}

	if s.mqtt != nil {
		resp.MQTT = MQTTStatus{Connected: s.mqtt.IsConnected()}
	}

	for _, st := range s.manager.Stats() {
		resp.Polling = append(resp.Polling, categoryStatus(st))
	}

	if s.db != nil {
		db := &DatabaseStatus{Healthy: true}
		if err := s.db.HealthCheck(r.Context()); err != nil {
			db.Healthy = false
			db.Error = err.Error()
		}
		stats := s.db.Stats()
		db.OpenConnections = stats.OpenConnections
		db.InUse = stats.InUse
		db.Idle = stats.Idle
		resp.Database = db
	}

	writeJSON(w, http.StatusOK, resp)
}
