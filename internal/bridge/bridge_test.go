package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-it600/internal/device"
	"github.com/nerrad567/gray-logic-it600/internal/gateway"
	"github.com/nerrad567/gray-logic-it600/internal/poll"
)

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu            sync.Mutex
	published     []mockPublish
	subscriptions []mockSubscription
	connected     bool
	handlers      map[string]func(topic string, payload []byte)
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

type mockSubscription struct {
	Topic string
	QoS   byte
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected: true,
		handlers:  make(map[string]func(topic string, payload []byte)),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, mockPublish{
		Topic:    topic,
		Payload:  payload,
		QoS:      qos,
		Retained: retained,
	})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = append(m.subscriptions, mockSubscription{Topic: topic, QoS: qos})
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = connected
}

func (m *MockMQTTClient) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]mockPublish, len(m.published))
	copy(result, m.published)
	return result
}

func (m *MockMQTTClient) GetSubscriptions() []mockSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]mockSubscription, len(m.subscriptions))
	copy(result, m.subscriptions)
	return result
}

func (m *MockMQTTClient) ClearPublished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = nil
}

// PublishedTo returns the messages published to one topic.
func (m *MockMQTTClient) PublishedTo(topic string) []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []mockPublish
	for _, p := range m.published {
		if p.Topic == topic {
			result = append(result, p)
		}
	}
	return result
}

// fakeCommander implements Commander, recording every setter call.
type fakeCommander struct {
	mu    sync.Mutex
	calls []commanderCall
	err   error
}

type commanderCall struct {
	Method   string
	DeviceID string
	Value    any
}

func (c *fakeCommander) record(method, deviceID string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.calls = append(c.calls, commanderCall{Method: method, DeviceID: deviceID, Value: value})
	return nil
}

func (c *fakeCommander) SetTemperature(_ context.Context, deviceID string, temperature float64) error {
	return c.record("SetTemperature", deviceID, temperature)
}

func (c *fakeCommander) SetHVACMode(_ context.Context, deviceID string, mode device.HVACMode) error {
	return c.record("SetHVACMode", deviceID, mode)
}

func (c *fakeCommander) SetFanMode(_ context.Context, deviceID, mode string) error {
	return c.record("SetFanMode", deviceID, mode)
}

func (c *fakeCommander) SetPresetMode(_ context.Context, deviceID, preset string) error {
	return c.record("SetPresetMode", deviceID, preset)
}

func (c *fakeCommander) setError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *fakeCommander) getCalls() []commanderCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]commanderCall, len(c.calls))
	copy(result, c.calls)
	return result
}

// fakeMonitor implements GatewayMonitor.
type fakeMonitor struct {
	mu        sync.Mutex
	healthErr error
	stats     gateway.Stats
}

func (m *fakeMonitor) HealthCheck(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthErr
}

func (m *fakeMonitor) Stats() gateway.Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func (m *fakeMonitor) setHealthErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthErr = err
}

// fakePollGateway serves scripted device states to the poll coordinators.
type fakePollGateway struct {
	mu        sync.Mutex
	devices   map[device.Category][]device.State
	pollErr   error
	pollCalls atomic.Uint64
}

func (g *fakePollGateway) PollStatus(_ context.Context) error {
	g.pollCalls.Add(1)
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pollErr
}

func (g *fakePollGateway) Devices(_ context.Context, cat device.Category) ([]device.State, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.devices[cat], nil
}

func (g *fakePollGateway) setDevices(cat device.Category, states []device.State) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.devices[cat] = states
}

func (g *fakePollGateway) setPollErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pollErr = err
}

func climateState(id string, current, target float64) device.State {
	return device.State{
		Info:      device.Info{ID: id, Name: "Thermostat " + id},
		Category:  device.CategoryClimate,
		Available: true,
		Climate: &device.ClimateState{
			TemperatureUnit:    device.UnitCelsius,
			CurrentTemperature: current,
			TargetTemperature:  target,
			HVACMode:           device.HVACModeHeat,
			HVACModes:          device.AllHVACModes(),
		},
	}
}

func binaryState(id string, on bool) device.State {
	return device.State{
		Info:      device.Info{ID: id, Name: "Sensor " + id},
		Category:  device.CategoryBinarySensor,
		Available: true,
		Binary:    &device.BinarySensorState{On: on, Class: device.ClassDoor},
	}
}

// newTestManager builds a manager over both categories, backed by gw.
func newTestManager(t *testing.T, gw *fakePollGateway) *poll.Manager {
	t.Helper()

	policy := poll.RetryPolicy{MaxAttempts: 1, AttemptTimeout: poll.DefaultClimateTimeout}

	var coordinators []*poll.Coordinator
	for _, cat := range []device.Category{device.CategoryBinarySensor, device.CategoryClimate} {
		c, err := poll.NewCoordinator(poll.CoordinatorConfig{
			Category: cat,
			Gateway:  gw,
			Policy:   policy,
		})
		if err != nil {
			t.Fatalf("NewCoordinator(%s) error: %v", cat, err)
		}
		coordinators = append(coordinators, c)
		t.Cleanup(c.Stop)
	}

	m, err := poll.NewManager(coordinators...)
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}
	return m
}

// createTestBridge wires a bridge over fakes and returns the lot.
func createTestBridge(t *testing.T) (*Bridge, *MockMQTTClient, *fakeCommander, *fakePollGateway, *poll.Manager) {
	t.Helper()

	gw := &fakePollGateway{devices: map[device.Category][]device.State{
		device.CategoryClimate:      {climateState("trv-01", 19.5, 21.0)},
		device.CategoryBinarySensor: {binaryState("door-01", false)},
	}}
	manager := newTestManager(t, gw)
	mqtt := NewMockMQTTClient()
	commander := &fakeCommander{}

	dispatcher, err := NewDispatcher(commander, manager)
	if err != nil {
		t.Fatalf("NewDispatcher() error: %v", err)
	}

	b, err := New(Options{
		BridgeID:   "it600",
		Version:    "1.0.0",
		MQTT:       mqtt,
		Dispatcher: dispatcher,
		Manager:    manager,
		Gateway:    &fakeMonitor{},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return b, mqtt, commander, gw, manager
}

// seedSnapshots runs one synchronous refresh per category.
func seedSnapshots(t *testing.T, manager *poll.Manager) {
	t.Helper()
	for _, cat := range manager.Categories() {
		if err := manager.Refresh(context.Background(), cat); err != nil {
			t.Fatalf("Refresh(%s) error: %v", cat, err)
		}
	}
}

// waitFor polls cond for up to a second.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNew(t *testing.T) {
	b, _, _, _, _ := createTestBridge(t)
	if b.health == nil {
		t.Error("New() did not create health reporter")
	}
}

func TestNewValidation(t *testing.T) {
	gw := &fakePollGateway{devices: map[device.Category][]device.State{}}
	manager := newTestManager(t, gw)
	mqtt := NewMockMQTTClient()
	dispatcher, err := NewDispatcher(&fakeCommander{}, manager)
	if err != nil {
		t.Fatalf("NewDispatcher() error: %v", err)
	}

	valid := Options{
		BridgeID:   "it600",
		MQTT:       mqtt,
		Dispatcher: dispatcher,
		Manager:    manager,
		Gateway:    &fakeMonitor{},
	}

	cases := []struct {
		name   string
		mutate func(*Options)
	}{
		{"missing bridge ID", func(o *Options) { o.BridgeID = "" }},
		{"missing MQTT", func(o *Options) { o.MQTT = nil }},
		{"missing dispatcher", func(o *Options) { o.Dispatcher = nil }},
		{"missing manager", func(o *Options) { o.Manager = nil }},
		{"missing gateway", func(o *Options) { o.Gateway = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := valid
			tc.mutate(&opts)
			if _, err := New(opts); err == nil {
				t.Error("New() expected error")
			}
		})
	}
}

func TestBridgeStartStop(t *testing.T) {
	b, mqtt, _, _, _ := createTestBridge(t)

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	subs := mqtt.GetSubscriptions()
	if len(subs) != 1 {
		t.Fatalf("subscriptions = %d, want 1", len(subs))
	}
	if subs[0].Topic != "graylogic/command/it600/+" {
		t.Errorf("subscribed topic = %q, want graylogic/command/it600/+", subs[0].Topic)
	}

	if len(mqtt.PublishedTo(HealthTopic())) == 0 {
		t.Error("expected health message on start")
	}

	b.Stop()
	b.Stop() // Safe to call twice

	// Last health message is the stopping status.
	health := mqtt.PublishedTo(HealthTopic())
	if len(health) == 0 {
		t.Fatal("no health messages published")
	}
	var last HealthMessage
	if err := json.Unmarshal(health[len(health)-1].Payload, &last); err != nil {
		t.Fatalf("unmarshal final health: %v", err)
	}
	if last.Status != HealthStopping {
		t.Errorf("final health status = %q, want %q", last.Status, HealthStopping)
	}
}

func TestBridgeCommandAccepted(t *testing.T) {
	b, mqtt, commander, gw, manager := createTestBridge(t)
	seedSnapshots(t, manager)

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer b.Stop()
	mqtt.ClearPublished()

	pollsBefore := gw.pollCalls.Load()

	cmd := CommandMessage{
		ID:         "cmd-001",
		Timestamp:  time.Now().UTC(),
		DeviceID:   "trv-01",
		Command:    CommandSetTemperature,
		Parameters: map[string]any{"temperature": 21.5},
	}
	payload, _ := json.Marshal(&cmd)

	b.handleMQTTMessage(CommandTopic("trv-01"), payload)

	calls := commander.getCalls()
	if len(calls) != 1 {
		t.Fatalf("commander calls = %d, want 1", len(calls))
	}
	if calls[0].Method != "SetTemperature" || calls[0].DeviceID != "trv-01" {
		t.Errorf("call = %+v, want SetTemperature on trv-01", calls[0])
	}
	if calls[0].Value != 21.5 {
		t.Errorf("temperature = %v, want 21.5", calls[0].Value)
	}

	acks := mqtt.PublishedTo(AckTopic("trv-01"))
	if len(acks) != 1 {
		t.Fatalf("acks = %d, want 1", len(acks))
	}
	var ack AckMessage
	if err := json.Unmarshal(acks[0].Payload, &ack); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	if ack.Status != AckAccepted {
		t.Errorf("ack status = %q, want %q", ack.Status, AckAccepted)
	}
	if ack.CommandID != "cmd-001" {
		t.Errorf("ack command ID = %q, want cmd-001", ack.CommandID)
	}

	// The accepted command nudges a climate refresh.
	waitFor(t, func() bool { return gw.pollCalls.Load() > pollsBefore },
		"expected a refresh nudge after accepted command")
}

func TestBridgeCommandUnknownDevice(t *testing.T) {
	b, mqtt, commander, _, manager := createTestBridge(t)
	seedSnapshots(t, manager)

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer b.Stop()
	mqtt.ClearPublished()

	cmd := CommandMessage{
		ID:       "cmd-002",
		DeviceID: "ghost-99",
		Command:  CommandSetTemperature,
	}
	payload, _ := json.Marshal(&cmd)
	b.handleMQTTMessage(CommandTopic("ghost-99"), payload)

	if len(commander.getCalls()) != 0 {
		t.Error("commander should not be called for unknown device")
	}

	acks := mqtt.PublishedTo(AckTopic("ghost-99"))
	if len(acks) != 1 {
		t.Fatalf("acks = %d, want 1", len(acks))
	}
	var ack AckMessage
	if err := json.Unmarshal(acks[0].Payload, &ack); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	if ack.Status != AckFailed {
		t.Errorf("ack status = %q, want %q", ack.Status, AckFailed)
	}
	if ack.Error == nil || ack.Error.Code != ErrCodeUnknownDevice {
		t.Errorf("ack error = %+v, want code %q", ack.Error, ErrCodeUnknownDevice)
	}
}

func TestBridgeCommandMalformedPayload(t *testing.T) {
	b, mqtt, commander, _, manager := createTestBridge(t)
	seedSnapshots(t, manager)

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer b.Stop()
	mqtt.ClearPublished()

	b.handleMQTTMessage(CommandTopic("trv-01"), []byte("{not json"))

	if len(commander.getCalls()) != 0 {
		t.Error("commander should not be called for malformed payload")
	}
	if n := len(mqtt.PublishedTo(AckTopic("trv-01"))); n != 0 {
		t.Errorf("acks = %d, want none without a command ID to correlate", n)
	}
}

func TestBridgeCommandInvalidTopic(t *testing.T) {
	b, mqtt, _, _, manager := createTestBridge(t)
	seedSnapshots(t, manager)

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer b.Stop()
	mqtt.ClearPublished()

	b.handleMQTTMessage("graylogic/command", []byte("{}"))

	for _, p := range mqtt.GetPublished() {
		if strings.HasPrefix(p.Topic, TopicPrefix+"/ack/") {
			t.Errorf("short topic produced an ack on %s", p.Topic)
		}
	}
}

func TestBridgeCommandAfterStop(t *testing.T) {
	b, mqtt, commander, _, manager := createTestBridge(t)
	seedSnapshots(t, manager)

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	b.Stop()
	mqtt.ClearPublished()

	cmd := CommandMessage{
		ID:         "cmd-003",
		DeviceID:   "trv-01",
		Command:    CommandSetTemperature,
		Parameters: map[string]any{"temperature": 20.0},
	}
	payload, _ := json.Marshal(&cmd)
	b.handleMQTTMessage(CommandTopic("trv-01"), payload)

	if len(commander.getCalls()) != 0 {
		t.Error("commander should not be called after Stop")
	}

	acks := mqtt.PublishedTo(AckTopic("trv-01"))
	if len(acks) != 1 {
		t.Fatalf("acks = %d, want 1", len(acks))
	}
	var ack AckMessage
	if err := json.Unmarshal(acks[0].Payload, &ack); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	if ack.Error == nil || ack.Error.Code != ErrCodeBridgeStopping {
		t.Errorf("ack error = %+v, want code %q", ack.Error, ErrCodeBridgeStopping)
	}
}

func TestBridgeStatePublishing(t *testing.T) {
	b, mqtt, _, gw, manager := createTestBridge(t)

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer b.Stop()
	mqtt.ClearPublished()

	// First cycle: every device is new, so every device publishes.
	if err := manager.Refresh(context.Background(), device.CategoryClimate); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}

	states := mqtt.PublishedTo(StateTopic("trv-01"))
	if len(states) != 1 {
		t.Fatalf("state messages = %d, want 1", len(states))
	}
	if !states[0].Retained {
		t.Error("state message should be retained")
	}

	var msg StateMessage
	if err := json.Unmarshal(states[0].Payload, &msg); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if msg.DeviceID != "trv-01" || !msg.Available {
		t.Errorf("state = %+v, want available trv-01", msg)
	}
	if msg.Climate == nil || msg.Climate.TargetTemperature != 21.0 {
		t.Errorf("climate payload = %+v, want target 21.0", msg.Climate)
	}
	if msg.Sequence != 1 {
		t.Errorf("sequence = %d, want 1", msg.Sequence)
	}

	// Second cycle with identical data: nothing republished.
	mqtt.ClearPublished()
	if err := manager.Refresh(context.Background(), device.CategoryClimate); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if n := len(mqtt.PublishedTo(StateTopic("trv-01"))); n != 0 {
		t.Errorf("unchanged state republished %d times", n)
	}

	// Third cycle with a changed reading: exactly that device publishes.
	gw.setDevices(device.CategoryClimate, []device.State{climateState("trv-01", 20.5, 21.0)})
	if err := manager.Refresh(context.Background(), device.CategoryClimate); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	states = mqtt.PublishedTo(StateTopic("trv-01"))
	if len(states) != 1 {
		t.Fatalf("state messages after change = %d, want 1", len(states))
	}
	if err := json.Unmarshal(states[len(states)-1].Payload, &msg); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if msg.Climate == nil || msg.Climate.CurrentTemperature != 20.5 {
		t.Errorf("climate current = %+v, want 20.5", msg.Climate)
	}
}

func TestBridgeVanishedDevicePublishesUnavailable(t *testing.T) {
	b, mqtt, _, gw, manager := createTestBridge(t)

	gw.setDevices(device.CategoryClimate, []device.State{
		climateState("trv-01", 19.5, 21.0),
		climateState("trv-02", 18.0, 16.0),
	})

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer b.Stop()

	if err := manager.Refresh(context.Background(), device.CategoryClimate); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	mqtt.ClearPublished()

	// trv-02 drops out of the gateway's answer.
	gw.setDevices(device.CategoryClimate, []device.State{climateState("trv-01", 19.5, 21.0)})
	if err := manager.Refresh(context.Background(), device.CategoryClimate); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}

	gone := mqtt.PublishedTo(StateTopic("trv-02"))
	if len(gone) != 1 {
		t.Fatalf("unavailable messages = %d, want 1", len(gone))
	}
	var msg StateMessage
	if err := json.Unmarshal(gone[0].Payload, &msg); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if msg.Available {
		t.Error("vanished device should be published unavailable")
	}
	if msg.Climate != nil || msg.BinarySensor != nil {
		t.Error("unavailable message should carry no state payload")
	}
	if len(mqtt.PublishedTo(StateTopic("trv-01"))) != 0 {
		t.Error("unchanged survivor should not republish")
	}

	// The unavailable message goes out once, not every cycle.
	if err := manager.Refresh(context.Background(), device.CategoryClimate); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if n := len(mqtt.PublishedTo(StateTopic("trv-02"))); n != 1 {
		t.Errorf("unavailable republished, total %d", n)
	}

	// The device coming back publishes fresh state.
	gw.setDevices(device.CategoryClimate, []device.State{
		climateState("trv-01", 19.5, 21.0),
		climateState("trv-02", 17.5, 16.0),
	})
	if err := manager.Refresh(context.Background(), device.CategoryClimate); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	back := mqtt.PublishedTo(StateTopic("trv-02"))
	if len(back) != 2 {
		t.Fatalf("messages for returned device = %d, want 2", len(back))
	}
	if err := json.Unmarshal(back[1].Payload, &msg); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if !msg.Available {
		t.Error("returned device should be available again")
	}
}

func TestBridgeFailedCyclePublishesNothing(t *testing.T) {
	b, mqtt, _, gw, manager := createTestBridge(t)

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer b.Stop()

	if err := manager.Refresh(context.Background(), device.CategoryClimate); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	mqtt.ClearPublished()

	gw.setPollErr(errors.New("gateway offline"))
	if err := manager.Refresh(context.Background(), device.CategoryClimate); err == nil {
		t.Fatal("Refresh() should fail when gateway is down")
	}

	for _, p := range mqtt.GetPublished() {
		if strings.HasPrefix(p.Topic, TopicPrefix+"/state/") {
			t.Errorf("failed cycle published state to %s", p.Topic)
		}
	}
}
