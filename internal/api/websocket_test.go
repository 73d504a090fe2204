package api

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-it600/internal/device"
)

// wsTestServer builds a seeded server behind a live listener, with cycle
// listeners registered, and returns the WebSocket URL.
func wsTestServer(t *testing.T) (*Server, *fixtures, string) {
	t.Helper()

	srv, fx := testServer(t)
	if err := srv.subscribeCycleEvents(); err != nil {
		t.Fatalf("subscribeCycleEvents() error: %v", err)
	}

	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	return srv, fx, wsURL
}

func connectWebSocket(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()

	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

// subscribeChannels subscribes the connection and waits for the ack.
func subscribeChannels(t *testing.T, ws *websocket.Conn, channels ...string) {
	t.Helper()

	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: channels},
	}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp WSMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read subscribe response: %v", err)
	}
	if resp.Type != WSTypeResponse {
		t.Fatalf("subscribe response type = %s, want %s", resp.Type, WSTypeResponse)
	}
	if resp.ID != "sub-1" {
		t.Fatalf("subscribe response ID = %s, want sub-1", resp.ID)
	}
}

func TestWebSocket_Connect(t *testing.T) {
	srv, _, wsURL := wsTestServer(t)

	connectWebSocket(t, wsURL)

	waitFor(t, func() bool { return srv.hub.ClientCount() == 1 },
		"expected one registered client")
}

func TestWebSocket_CycleEventBroadcast(t *testing.T) {
	srv, _, wsURL := wsTestServer(t)
	ws := connectWebSocket(t, wsURL)
	subscribeChannels(t, ws, WSChannelStateChanged)

	if err := srv.manager.Refresh(context.Background(), device.CategoryClimate); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read event: %v", err)
	}

	if msg.Type != WSTypeEvent {
		t.Errorf("type = %s, want %s", msg.Type, WSTypeEvent)
	}
	if msg.EventType != WSChannelStateChanged {
		t.Errorf("event_type = %s, want %s", msg.EventType, WSChannelStateChanged)
	}

	payload, ok := msg.Payload.(map[string]any)
	if !ok {
		t.Fatalf("payload = %T, want object", msg.Payload)
	}
	if payload["category"] != "climate" {
		t.Errorf("category = %v, want climate", payload["category"])
	}
	// Seeding ran cycle 1; this refresh produced sequence 2.
	if payload["sequence"] != 2.0 {
		t.Errorf("sequence = %v, want 2", payload["sequence"])
	}
	if payload["devices"] != 1.0 {
		t.Errorf("devices = %v, want 1", payload["devices"])
	}
	if payload["status"] != CycleSuccess {
		t.Errorf("status = %v, want %s", payload["status"], CycleSuccess)
	}
}

func TestWebSocket_FailedCycleEvent(t *testing.T) {
	srv, fx, wsURL := wsTestServer(t)
	ws := connectWebSocket(t, wsURL)
	subscribeChannels(t, ws, WSChannelStateChanged)

	fx.gw.setPollErr(context.DeadlineExceeded)
	if err := srv.manager.Refresh(context.Background(), device.CategoryClimate); err == nil {
		t.Fatal("expected refresh failure")
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read event: %v", err)
	}

	payload := msg.Payload.(map[string]any)
	if payload["status"] != CycleFailed {
		t.Errorf("status = %v, want %s", payload["status"], CycleFailed)
	}
	if errText, ok := payload["error"].(string); !ok || errText == "" {
		t.Error("error should be set for a failed cycle")
	}
	// The retained snapshot's sequence, from the seeding cycle.
	if payload["sequence"] != 1.0 {
		t.Errorf("sequence = %v, want 1", payload["sequence"])
	}
}

func TestWebSocket_UnsubscribedReceivesNothing(t *testing.T) {
	srv, _, wsURL := wsTestServer(t)
	ws := connectWebSocket(t, wsURL)
	subscribeChannels(t, ws, WSChannelStateChanged)

	// Unsubscribe again before the cycle fires.
	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeUnsubscribe,
		ID:      "unsub-1",
		Payload: WSSubscribePayload{Channels: []string{WSChannelStateChanged}},
	}); err != nil {
		t.Fatalf("write unsubscribe: %v", err)
	}
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp WSMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read unsubscribe response: %v", err)
	}

	if err := srv.manager.Refresh(context.Background(), device.CategoryClimate); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if err := ws.ReadJSON(&resp); err == nil {
		t.Errorf("unexpected message after unsubscribe: %+v", resp)
	}
}

func TestWebSocket_Ping(t *testing.T) {
	_, _, wsURL := wsTestServer(t)
	ws := connectWebSocket(t, wsURL)

	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "ping-1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp WSMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read pong: %v", err)
	}

	if resp.Type != WSTypePong {
		t.Errorf("response type = %s, want %s", resp.Type, WSTypePong)
	}
	if resp.ID != "ping-1" {
		t.Errorf("response ID = %s, want ping-1", resp.ID)
	}
}

func TestWebSocket_InvalidMessage(t *testing.T) {
	_, _, wsURL := wsTestServer(t)
	ws := connectWebSocket(t, wsURL)

	if err := ws.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write invalid message: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp WSMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read error response: %v", err)
	}

	if resp.Type != WSTypeError {
		t.Errorf("response type = %s, want %s", resp.Type, WSTypeError)
	}
}

func TestWebSocket_UnknownMessageType(t *testing.T) {
	_, _, wsURL := wsTestServer(t)
	ws := connectWebSocket(t, wsURL)

	if err := ws.WriteJSON(WSMessage{Type: "teleport", ID: "tp-1"}); err != nil {
		t.Fatalf("write message: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp WSMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read error response: %v", err)
	}

	if resp.Type != WSTypeError {
		t.Errorf("response type = %s, want %s", resp.Type, WSTypeError)
	}
}

func TestWebSocket_ClientDisconnect(t *testing.T) {
	srv, _, wsURL := wsTestServer(t)
	ws := connectWebSocket(t, wsURL)

	waitFor(t, func() bool { return srv.hub.ClientCount() == 1 },
		"expected one registered client")

	ws.Close()

	waitFor(t, func() bool { return srv.hub.ClientCount() == 0 },
		"expected client to unregister after close")
}
