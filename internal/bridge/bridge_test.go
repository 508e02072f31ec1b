package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-shelly/internal/coordinator"
	"github.com/nerrad567/gray-logic-shelly/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-shelly/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-shelly/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-shelly/internal/registry"
	"github.com/nerrad567/gray-logic-shelly/internal/shelly"
)

// publishedMsg captures one MQTT publish for assertions.
type publishedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// mockMQTT records publishes and registered subscriptions.
type mockMQTT struct {
	mu        sync.Mutex
	connected bool
	published []publishedMsg
	handlers  map[string]mqtt.MessageHandler
}

func newMockMQTT() *mockMQTT {
	return &mockMQTT{
		connected: true,
		handlers:  make(map[string]mqtt.MessageHandler),
	}
}

func (m *mockMQTT) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, publishedMsg{topic, payload, qos, retained})
	return nil
}

func (m *mockMQTT) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *mockMQTT) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// messagesOn returns all publishes to a topic.
func (m *mockMQTT) messagesOn(topic string) []publishedMsg {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []publishedMsg
	for _, p := range m.published {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

// fakeCoordinator is a scriptable DeviceCoordinator.
type fakeCoordinator struct {
	mu        sync.Mutex
	started   int
	stopped   int
	refreshes int
	lastOK    bool
	listeners []coordinator.Listener
	ota       chan string
}

func newFakeCoordinator() *fakeCoordinator {
	return &fakeCoordinator{ota: make(chan string, 4)}
}

func (f *fakeCoordinator) Start(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
}

func (f *fakeCoordinator) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
}

func (f *fakeCoordinator) Subscribe(l coordinator.Listener) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, l)
	return func() {}
}

func (f *fakeCoordinator) TriggerRefresh() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
}

func (f *fakeCoordinator) LastUpdateSucceeded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastOK
}

func (f *fakeCoordinator) TriggerOTAUpdate(_ context.Context, channel string) {
	f.ota <- channel
}

// fakeRepo records registry calls.
type fakeRepo struct {
	mu      sync.Mutex
	upserts []registry.Device
	touches []string
}

func (r *fakeRepo) Upsert(_ context.Context, d *registry.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts = append(r.upserts, *d)
	return nil
}

func (r *fakeRepo) GetByID(context.Context, string) (*registry.Device, error) {
	return nil, registry.ErrDeviceNotFound
}

func (r *fakeRepo) List(context.Context) ([]registry.Device, error) { return nil, nil }

func (r *fakeRepo) TouchLastSeen(_ context.Context, id string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touches = append(r.touches, id)
	return nil
}

func (r *fakeRepo) Delete(context.Context, string) error { return nil }

// fakeClicks records click metrics.
type fakeClicks struct {
	mu     sync.Mutex
	clicks []string
}

func (c *fakeClicks) WriteClickMetric(deviceID string, _ int, clickType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clicks = append(c.clicks, deviceID+"/"+clickType)
}

func testConfig() *config.Config {
	return &config.Config{
		Bridge: config.BridgeConfig{ID: "shelly-test"},
	}
}

func newTestBridge(t *testing.T, client *mockMQTT, repo registry.Repository, clicks ClickRecorder) *Bridge {
	t.Helper()
	b, err := NewBridge(Options{
		Config:   testConfig(),
		MQTT:     client,
		Registry: repo,
		Clicks:   clicks,
		Logger:   logging.Default(),
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	return b
}

func TestBridgePublishClick(t *testing.T) {
	client := newMockMQTT()
	clicks := &fakeClicks{}
	b := newTestBridge(t, client, nil, clicks)

	b.PublishClick(coordinator.ClickEvent{
		DeviceID:   "hall-switch",
		Device:     "Hall Switch",
		Channel:    1,
		ClickType:  "double",
		Generation: shelly.GenerationBlock,
	})

	msgs := client.messagesOn("graylogic/event/shelly/hall-switch")
	if len(msgs) != 1 {
		t.Fatalf("got %d event messages, want 1", len(msgs))
	}

	var event EventMessage
	if err := json.Unmarshal(msgs[0].payload, &event); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if event.Type != EventTypeClick {
		t.Errorf("Type = %q, want click", event.Type)
	}
	if event.ClickType != "double" || event.Channel != 1 {
		t.Errorf("event = %+v, want double on channel 1", event)
	}
	if event.ID == "" {
		t.Error("event ID is empty")
	}

	clicks.mu.Lock()
	defer clicks.mu.Unlock()
	if len(clicks.clicks) != 1 || clicks.clicks[0] != "hall-switch/double" {
		t.Errorf("click metrics = %v", clicks.clicks)
	}
}

func TestBridgeRefreshListenerPublishesState(t *testing.T) {
	client := newMockMQTT()
	b := newTestBridge(t, client, nil, nil)

	fc := newFakeCoordinator()
	b.AddDevice(ManagedDevice{
		ID:          "hall-switch",
		Generation:  shelly.GenerationBlock,
		Coordinator: fc,
	})

	entry := b.devices["hall-switch"]
	listener := b.refreshListener(entry)

	listener(true)
	listener(false)

	msgs := client.messagesOn("graylogic/state/shelly/hall-switch")
	if len(msgs) != 2 {
		t.Fatalf("got %d state messages, want 2", len(msgs))
	}
	if !msgs[0].retained || msgs[0].qos != 1 {
		t.Errorf("state message qos/retained = %d/%v, want 1/true", msgs[0].qos, msgs[0].retained)
	}

	var first, second StateMessage
	if err := json.Unmarshal(msgs[0].payload, &first); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if err := json.Unmarshal(msgs[1].payload, &second); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if !first.Online || second.Online {
		t.Errorf("state online = [%v %v], want [true false]", first.Online, second.Online)
	}
}

func TestBridgeRegistersDeviceOnFirstContact(t *testing.T) {
	client := newMockMQTT()
	repo := &fakeRepo{}
	b := newTestBridge(t, client, repo, nil)

	identity := &registry.Device{
		ID:         "hall-switch",
		MAC:        "AA:BB:CC:00:00:01",
		Model:      "SHSW-25",
		Generation: 1,
		Firmware:   "v1.14.0",
		Host:       "192.168.1.10",
	}

	fc := newFakeCoordinator()
	b.AddDevice(ManagedDevice{
		ID:          "hall-switch",
		Generation:  shelly.GenerationBlock,
		Coordinator: fc,
		Identity:    func() *registry.Device { return identity },
	})

	listener := b.refreshListener(b.devices["hall-switch"])

	// First success registers; later successes only touch last_seen.
	listener(true)
	listener(true)
	listener(false) // failures touch nothing

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.upserts) != 1 {
		t.Fatalf("got %d upserts, want 1", len(repo.upserts))
	}
	if repo.upserts[0].MAC != "AA:BB:CC:00:00:01" {
		t.Errorf("upserted MAC = %q", repo.upserts[0].MAC)
	}
	if len(repo.touches) != 1 || repo.touches[0] != "hall-switch" {
		t.Errorf("touches = %v, want one for hall-switch", repo.touches)
	}
}

func TestBridgeUpdatesIdentityOnFirmwareChange(t *testing.T) {
	client := newMockMQTT()
	repo := &fakeRepo{}
	b := newTestBridge(t, client, repo, nil)

	var mu sync.Mutex
	firmware := "v1.13.0"

	fc := newFakeCoordinator()
	b.AddDevice(ManagedDevice{
		ID:          "hall-switch",
		Generation:  shelly.GenerationBlock,
		Coordinator: fc,
		Identity: func() *registry.Device {
			mu.Lock()
			defer mu.Unlock()
			return &registry.Device{
				ID:       "hall-switch",
				MAC:      "AA:BB:CC:00:00:01",
				Model:    "SHSW-25",
				Firmware: firmware,
				Host:     "192.168.1.10",
			}
		},
	})

	listener := b.refreshListener(b.devices["hall-switch"])
	listener(true) // registers at v1.13.0

	mu.Lock()
	firmware = "v1.14.0" // OTA completed between refreshes
	mu.Unlock()

	listener(true) // identity changed, row rewritten
	listener(true) // identity settled, back to touching last_seen

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.upserts) != 2 {
		t.Fatalf("got %d upserts, want 2", len(repo.upserts))
	}
	if repo.upserts[0].Firmware != "v1.13.0" {
		t.Errorf("registered firmware = %q, want v1.13.0", repo.upserts[0].Firmware)
	}
	if repo.upserts[1].Firmware != "v1.14.0" {
		t.Errorf("rewritten firmware = %q, want v1.14.0", repo.upserts[1].Firmware)
	}
	if len(repo.touches) != 1 || repo.touches[0] != "hall-switch" {
		t.Errorf("touches = %v, want one for hall-switch", repo.touches)
	}
}

func TestBridgeHandleCommand(t *testing.T) {
	client := newMockMQTT()
	b := newTestBridge(t, client, nil, nil)

	fc := newFakeCoordinator()
	b.AddDevice(ManagedDevice{
		ID:          "hall-switch",
		Generation:  shelly.GenerationBlock,
		Coordinator: fc,
	})

	command := func(id, deviceID, name string, params map[string]any) []byte {
		payload, err := json.Marshal(CommandMessage{
			ID:         id,
			Timestamp:  time.Now().UTC(),
			DeviceID:   deviceID,
			Command:    name,
			Parameters: params,
		})
		if err != nil {
			t.Fatalf("marshal command: %v", err)
		}
		return payload
	}

	ackFor := func(deviceID, commandID string) *AckMessage {
		for _, msg := range client.messagesOn("graylogic/ack/shelly/" + deviceID) {
			var ack AckMessage
			if err := json.Unmarshal(msg.payload, &ack); err != nil {
				t.Fatalf("unmarshal ack: %v", err)
			}
			if ack.CommandID == commandID {
				return &ack
			}
		}
		return nil
	}

	topic := "graylogic/command/shelly/hall-switch"

	t.Run("refresh", func(t *testing.T) {
		_ = b.handleCommandMessage(topic, command("cmd-1", "hall-switch", CommandRefresh, nil))

		fc.mu.Lock()
		refreshes := fc.refreshes
		fc.mu.Unlock()
		if refreshes != 1 {
			t.Errorf("refreshes = %d, want 1", refreshes)
		}

		ack := ackFor("hall-switch", "cmd-1")
		if ack == nil || ack.Status != AckAccepted {
			t.Errorf("ack = %+v, want accepted", ack)
		}
	})

	t.Run("ota_update", func(t *testing.T) {
		_ = b.handleCommandMessage(topic, command("cmd-2", "hall-switch", CommandOTAUpdate,
			map[string]any{"channel": "beta"}))

		select {
		case channel := <-fc.ota:
			if channel != "beta" {
				t.Errorf("ota channel = %q, want beta", channel)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("ota trigger never dispatched")
		}

		ack := ackFor("hall-switch", "cmd-2")
		if ack == nil || ack.Status != AckAccepted {
			t.Errorf("ack = %+v, want accepted", ack)
		}
	})

	t.Run("unknown command", func(t *testing.T) {
		_ = b.handleCommandMessage(topic, command("cmd-3", "hall-switch", "reboot", nil))

		ack := ackFor("hall-switch", "cmd-3")
		if ack == nil || ack.Status != AckFailed {
			t.Fatalf("ack = %+v, want failed", ack)
		}
		if ack.Error == nil || ack.Error.Code != ErrCodeInvalidCommand {
			t.Errorf("ack error = %+v, want INVALID_COMMAND", ack.Error)
		}
	})

	t.Run("unmanaged device", func(t *testing.T) {
		_ = b.handleCommandMessage("graylogic/command/shelly/ghost",
			command("cmd-4", "ghost", CommandRefresh, nil))

		ack := ackFor("ghost", "cmd-4")
		if ack == nil || ack.Status != AckFailed {
			t.Fatalf("ack = %+v, want failed", ack)
		}
		if ack.Error == nil || ack.Error.Code != ErrCodeNotManaged {
			t.Errorf("ack error = %+v, want DEVICE_NOT_MANAGED", ack.Error)
		}
	})

	t.Run("malformed payload", func(t *testing.T) {
		before := len(client.messagesOn("graylogic/ack/shelly/hall-switch"))
		_ = b.handleCommandMessage(topic, []byte("{not json"))
		after := len(client.messagesOn("graylogic/ack/shelly/hall-switch"))
		if after != before {
			t.Error("malformed payload produced an ack")
		}
	})
}

func TestBridgeStartStop(t *testing.T) {
	client := newMockMQTT()
	b := newTestBridge(t, client, nil, nil)

	fc := newFakeCoordinator()
	b.AddDevice(ManagedDevice{
		ID:          "hall-switch",
		Generation:  shelly.GenerationBlock,
		Coordinator: fc,
	})

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	client.mu.Lock()
	_, subscribed := client.handlers["graylogic/command/shelly/+"]
	client.mu.Unlock()
	if !subscribed {
		t.Error("bridge did not subscribe to the command topic")
	}

	b.Stop()
	b.Stop() // idempotent

	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.started != 1 {
		t.Errorf("coordinator started %d times, want 1", fc.started)
	}
	if fc.stopped != 1 {
		t.Errorf("coordinator stopped %d times, want 1", fc.stopped)
	}
}

func TestBridgeFleetCounts(t *testing.T) {
	client := newMockMQTT()
	b := newTestBridge(t, client, nil, nil)

	online := newFakeCoordinator()
	online.lastOK = true
	offline := newFakeCoordinator()

	b.AddDevice(ManagedDevice{ID: "a", Coordinator: online})
	b.AddDevice(ManagedDevice{ID: "b", Coordinator: offline})

	if got := b.DeviceCount(); got != 2 {
		t.Errorf("DeviceCount() = %d, want 2", got)
	}
	if got := b.OnlineCount(); got != 1 {
		t.Errorf("OnlineCount() = %d, want 1", got)
	}
}

func TestHealthReporterStatus(t *testing.T) {
	client := newMockMQTT()
	b := newTestBridge(t, client, nil, nil)

	degraded := newFakeCoordinator()
	b.AddDevice(ManagedDevice{ID: "a", Coordinator: degraded})

	if err := b.health.PublishNow(); err != nil {
		t.Fatalf("PublishNow() error = %v", err)
	}

	msgs := client.messagesOn("graylogic/health/shelly")
	if len(msgs) != 1 {
		t.Fatalf("got %d health messages, want 1", len(msgs))
	}
	if !msgs[0].retained {
		t.Error("health message not retained")
	}

	var health HealthMessage
	if err := json.Unmarshal(msgs[0].payload, &health); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if health.Status != HealthDegraded {
		t.Errorf("Status = %q with offline device, want degraded", health.Status)
	}

	degraded.mu.Lock()
	degraded.lastOK = true
	degraded.mu.Unlock()

	if err := b.health.PublishNow(); err != nil {
		t.Fatalf("PublishNow() error = %v", err)
	}
	msgs = client.messagesOn("graylogic/health/shelly")
	if err := json.Unmarshal(msgs[len(msgs)-1].payload, &health); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if health.Status != HealthHealthy {
		t.Errorf("Status = %q with all devices online, want healthy", health.Status)
	}
}

func TestHealthReporterLWT(t *testing.T) {
	client := newMockMQTT()
	b := newTestBridge(t, client, nil, nil)

	if got := b.health.LWTTopic(); got != "graylogic/health/shelly" {
		t.Errorf("LWTTopic() = %q", got)
	}

	payload, err := b.health.LWTPayload()
	if err != nil {
		t.Fatalf("LWTPayload() error = %v", err)
	}

	var msg HealthMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("unmarshal LWT: %v", err)
	}
	if msg.Status != HealthOffline {
		t.Errorf("LWT status = %q, want offline", msg.Status)
	}
}
