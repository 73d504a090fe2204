package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-it600/internal/device"
	"github.com/nerrad567/gray-logic-it600/internal/gateway"
	"github.com/nerrad567/gray-logic-it600/internal/poll"
)

// Bridge operation constants.
const (
	// minTopicParts is the minimum number of parts in a valid MQTT topic.
	minTopicParts = 4

	// commandTimeout is the timeout for sending commands to the gateway.
	commandTimeout = 10 * time.Second

	// qosDefault is the QoS for state, ack, and health publications.
	qosDefault = 1
)

// Bridge is the MQTT face of the daemon. It publishes retained device
// state after each poll cycle, executes commands arriving on the command
// topic, and reports bridge health.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	bridgeID   string
	mqtt       MQTTClient
	dispatcher *Dispatcher
	manager    *poll.Manager
	health     *HealthReporter

	// State cache for change detection, keyed by device ID. Entries leave
	// the cache when their device vanishes from a snapshot, right after
	// the unavailable message goes out.
	stateCache   map[string]cachedState
	stateCacheMu sync.Mutex

	// Listener handles for Stop.
	subs map[device.Category]poll.Subscription

	// Shutdown coordination
	done      chan struct{}
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	// Logger
	logger   Logger
	loggerMu sync.RWMutex
}

type cachedState struct {
	category    device.Category
	fingerprint string
}

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// GatewayMonitor is the slice of the gateway client the health reporter
// probes.
type GatewayMonitor interface {
	// HealthCheck probes the gateway's status endpoint.
	HealthCheck(ctx context.Context) error

	// Stats returns the client's request counters.
	Stats() gateway.Stats
}

// Logger interface for optional logging support.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Options holds configuration for creating a bridge.
type Options struct {
	// BridgeID names this bridge in health messages. Required.
	BridgeID string

	// Version is the bridge software version for health messages.
	Version string

	// HealthInterval is how often health is published. Zero selects the
	// reporter default.
	HealthInterval time.Duration

	// MQTT is the MQTT client implementation. Required.
	MQTT MQTTClient

	// Dispatcher executes device commands. Required.
	Dispatcher *Dispatcher

	// Manager is the poll manager whose cycles drive state publication.
	// Required.
	Manager *poll.Manager

	// Gateway provides the health probe surface. Required.
	Gateway GatewayMonitor

	// Logger is optional structured logger.
	Logger Logger
}

// New creates a bridge instance. Call Start to begin operation.
func New(opts Options) (*Bridge, error) {
	if opts.BridgeID == "" {
		return nil, fmt.Errorf("bridge: bridge ID is required")
	}
	if opts.MQTT == nil {
		return nil, fmt.Errorf("bridge: MQTT client is required")
	}
	if opts.Dispatcher == nil {
		return nil, fmt.Errorf("bridge: dispatcher is required")
	}
	if opts.Manager == nil {
		return nil, fmt.Errorf("bridge: poll manager is required")
	}
	if opts.Gateway == nil {
		return nil, fmt.Errorf("bridge: gateway monitor is required")
	}

	// Bridge-level context so in-flight commands abort on Stop.
	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		bridgeID:   opts.BridgeID,
		mqtt:       opts.MQTT,
		dispatcher: opts.Dispatcher,
		manager:    opts.Manager,
		stateCache: make(map[string]cachedState),
		subs:       make(map[device.Category]poll.Subscription),
		done:       make(chan struct{}),
		ctx:        ctx,
		ctxCancel:  ctxCancel,
		logger:     opts.Logger,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  opts.BridgeID,
		Version:   opts.Version,
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTT,
		Gateway:   opts.Gateway,
		Manager:   opts.Manager,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// Start begins bridge operation: subscribes to the command topic, hooks
// the state publisher into every poll category, and starts health
// reporting.
func (b *Bridge) Start(ctx context.Context) error {
	commandTopic := CommandSubscribeTopic()
	if err := b.mqtt.Subscribe(commandTopic, qosDefault, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", commandTopic)

	for _, cat := range b.manager.Categories() {
		cat := cat
		sub, err := b.manager.Subscribe(cat, func() {
			b.publishStates(cat)
		})
		if err != nil {
			return fmt.Errorf("subscribe to %s cycles: %w", cat, err)
		}
		b.subs[cat] = sub
	}

	b.health.Start(ctx)

	if err := b.health.PublishNow(); err != nil {
		b.logError("failed to publish initial health", err)
	}

	b.logInfo("bridge started", "bridge_id", b.bridgeID, "categories", len(b.subs))
	return nil
}

// Stop gracefully shuts down the bridge. In-flight commands are
// cancelled, listeners detach, and a final stopping health message goes
// out.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.ctxCancel()

		for cat, sub := range b.subs {
			if err := b.manager.Unsubscribe(cat, sub); err != nil {
				b.logError("failed to unsubscribe category", err)
			}
		}

		// Stop health reporting (publishes "stopping" status)
		b.health.Stop()

		b.logInfo("bridge stopped")
	})
}

// Health returns the bridge's health reporter, which owns the LWT payload
// handed to the MQTT client at connect time.
func (b *Bridge) Health() *HealthReporter {
	return b.health
}

// handleMQTTMessage parses and executes a command arriving over MQTT.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) {
	parts := strings.Split(topic, "/")
	if len(parts) < minTopicParts || parts[1] != "command" {
		b.logError("invalid command topic", fmt.Errorf("topic: %s", topic))
		return
	}

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		// No command ID to correlate an ack with; log and drop.
		b.logError("failed to parse command", err)
		return
	}
	if cmd.Source == "" {
		cmd.Source = "mqtt"
	}

	b.logInfo("received command",
		"command_id", cmd.ID,
		"device_id", cmd.DeviceID,
		"command", cmd.Command)

	select {
	case <-b.done:
		b.publishAck(NewAckError(cmd, ErrCodeBridgeStopping, "bridge is shutting down"))
		return
	default:
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	ack := b.dispatcher.Execute(ctx, cmd)
	b.publishAck(ack)

	if ack.Status == AckFailed && ack.Error != nil {
		b.logWarn("command failed",
			"command_id", cmd.ID,
			"device_id", cmd.DeviceID,
			"code", ack.Error.Code,
			"reason", ack.Error.Message)
	}
}

// publishAck publishes a command acknowledgment.
func (b *Bridge) publishAck(ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack", err)
		return
	}

	topic := AckTopic(ack.DeviceID)
	if err := b.mqtt.Publish(topic, payload, qosDefault, false); err != nil {
		b.logError("failed to publish ack", err)
	}
}

// publishStates diffs the category's fresh snapshot against the state
// cache and publishes a retained message per changed device, plus an
// unavailable message per device that left the snapshot.
func (b *Bridge) publishStates(cat device.Category) {
	coordinator, err := b.manager.Coordinator(cat)
	if err != nil {
		b.logError("failed to look up coordinator", err)
		return
	}

	// A failed cycle retains the previous snapshot, so nothing changed.
	if coordinator.LastError() != nil {
		return
	}

	snap := coordinator.Snapshot()
	seq := snap.Seq()

	states := snap.All()
	present := make(map[string]struct{}, len(states))

	b.stateCacheMu.Lock()
	var changed []device.State
	for _, st := range states {
		present[st.ID()] = struct{}{}
		fp := stateFingerprint(st)
		cached, ok := b.stateCache[st.ID()]
		if ok && cached.fingerprint == fp {
			continue
		}
		b.stateCache[st.ID()] = cachedState{category: cat, fingerprint: fp}
		changed = append(changed, st)
	}

	var vanished []string
	for id, entry := range b.stateCache {
		if entry.category != cat {
			continue
		}
		if _, ok := present[id]; !ok {
			vanished = append(vanished, id)
			delete(b.stateCache, id)
		}
	}
	b.stateCacheMu.Unlock()

	for _, st := range changed {
		b.publishState(NewStateMessage(st, seq))
	}
	for _, id := range vanished {
		b.publishState(NewUnavailableMessage(id, cat, seq))
		b.logWarn("device left snapshot, published unavailable",
			"device_id", id, "category", cat)
	}

	if len(changed) > 0 || len(vanished) > 0 {
		b.logDebug("states published",
			"category", cat,
			"seq", seq,
			"changed", len(changed),
			"vanished", len(vanished))
	}
}

// publishState publishes one retained state message.
func (b *Bridge) publishState(msg StateMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("failed to marshal state", err)
		return
	}

	topic := StateTopic(msg.DeviceID)
	if err := b.mqtt.Publish(topic, payload, qosDefault, true); err != nil {
		b.logError("failed to publish state", err)
	}
}

// stateFingerprint condenses a device state for change detection. The
// payload JSON doubles as the fingerprint; field order is fixed by the
// struct definitions.
func stateFingerprint(st device.State) string {
	var body []byte
	switch {
	case st.Binary != nil:
		body, _ = json.Marshal(st.Binary)
	case st.Climate != nil:
		body, _ = json.Marshal(st.Climate)
	}
	return string(st.Category) + ":" + string(body)
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	if b.health != nil {
		b.health.SetLogger(logger)
	}
}

// logInfo logs an info message if logger is set.
func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning if logger is set.
func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (b *Bridge) logError(msg string, err error) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}

// logDebug logs a debug message if logger is set.
func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
