package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-it600/internal/gateway"
	"github.com/nerrad567/gray-logic-it600/internal/poll"
)

// defaultHealthInterval is how often health is published when the config
// does not say otherwise.
const defaultHealthInterval = 30 * time.Second

// healthProbeTimeout bounds the gateway probe inside one health report.
const healthProbeTimeout = 5 * time.Second

// HealthReporter manages periodic health status reporting.
// It publishes health messages to MQTT at regular intervals.
type HealthReporter struct {
	bridgeID  string
	version   string
	startTime time.Time
	interval  time.Duration
	publisher HealthPublisher
	gateway   GatewayMonitor
	manager   *poll.Manager

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex
}

// HealthPublisher is the interface for publishing health messages.
// This is typically implemented by an MQTT client.
type HealthPublisher interface {
	// Publish sends a message to a topic with the specified QoS and
	// retention.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// IsConnected returns true if the publisher is connected.
	IsConnected() bool
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// BridgeID is the bridge identifier for health messages.
	BridgeID string

	// Version is the bridge software version.
	Version string

	// Interval is how often to publish health status.
	// Default: 30 seconds.
	Interval time.Duration

	// Publisher is the MQTT client for publishing messages.
	Publisher HealthPublisher

	// Gateway provides the reachability probe and request counters.
	Gateway GatewayMonitor

	// Manager provides per-category poll statistics.
	Manager *poll.Manager
}

// NewHealthReporter creates a new health reporter.
//
// Parameters:
//   - cfg: Configuration for the health reporter
//
// Returns:
//   - *HealthReporter: Ready to start (call Start to begin reporting)
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultHealthInterval
	}

	return &HealthReporter{
		bridgeID:  cfg.BridgeID,
		version:   cfg.Version,
		startTime: time.Now(),
		interval:  interval,
		publisher: cfg.Publisher,
		gateway:   cfg.Gateway,
		manager:   cfg.Manager,
		done:      make(chan struct{}),
	}
}

// Start begins periodic health reporting.
// Must be called after creation. Call Stop to shut down.
//
// Parameters:
//   - ctx: Context for cancellation (will stop reporting when cancelled)
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop gracefully stops health reporting.
// Publishes a final "stopping" status before returning.
// Safe to call multiple times (uses sync.Once).
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		// Publish final stopping status (best-effort, ignore errors)
		//nolint:errcheck // Best-effort during shutdown, nothing we can do if it fails
		h.publishTerminal(HealthStopping, "shutdown requested")
	})
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// PublishNow publishes the current health status immediately.
// Useful for forcing an update after a significant event, such as an MQTT
// reconnect.
func (h *HealthReporter) PublishNow() error {
	status, reason, reachable := h.determineStatus()
	return h.publishStatus(status, reason, reachable)
}

// LWTPayload returns the Last Will and Testament message payload.
// Register it with the MQTT client at connect time so the broker flips
// the health topic to offline on an unclean disconnect.
func (h *HealthReporter) LWTPayload() ([]byte, error) {
	msg := NewLWTMessage(h.bridgeID)
	return json.Marshal(msg)
}

// LWTTopic returns the topic for the Last Will and Testament.
func (h *HealthReporter) LWTTopic() string {
	return HealthTopic()
}

// reportLoop runs the periodic health reporting.
func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	// Publish initial status
	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish initial health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

// determineStatus evaluates the current bridge status. The gateway probe
// result is returned alongside so the message reports it without probing
// twice.
func (h *HealthReporter) determineStatus() (HealthStatus, string, bool) {
	mqttUp := h.publisher != nil && h.publisher.IsConnected()

	gwReachable := false
	if h.gateway != nil {
		ctx, cancel := context.WithTimeout(context.Background(), healthProbeTimeout)
		gwReachable = h.gateway.HealthCheck(ctx) == nil
		cancel()
	}

	switch {
	case !mqttUp:
		return HealthDegraded, "MQTT disconnected", gwReachable
	case !gwReachable:
		return HealthDegraded, "gateway unreachable", gwReachable
	default:
		return HealthOnline, "", gwReachable
	}
}

// publishStatus publishes a full health status message.
func (h *HealthReporter) publishStatus(status HealthStatus, reason string, gwReachable bool) error {
	if h.publisher == nil {
		return nil // No publisher configured
	}

	var gwStats gateway.Stats
	if h.gateway != nil {
		gwStats = h.gateway.Stats()
	}

	var polling []poll.Stats
	if h.manager != nil {
		polling = h.manager.Stats()
	}

	msg := NewHealthMessage(h.bridgeID, h.version, status, gwStats, gwReachable, polling, h.startTime)
	if reason != "" {
		msg.Reason = reason
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	// Publish (QoS 1, retained)
	return h.publisher.Publish(HealthTopic(), payload, qosDefault, true)
}

// publishTerminal publishes a minimal terminal-status message. Stopping
// and offline messages carry no operational statistics.
func (h *HealthReporter) publishTerminal(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}

	msg := HealthMessage{
		Bridge:        h.bridgeID,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Reason:        reason,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return h.publisher.Publish(HealthTopic(), payload, qosDefault, true)
}

// logError logs an error if logger is set.
func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
