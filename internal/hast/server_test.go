package hast

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nugget/hass/internal/shutdown"
	"github.com/nugget/hass/internal/wsmsg"
)

func startServer(t *testing.T, cfg Config) (*Server, *shutdown.Manager, string) {
	t.Helper()
	mgr := shutdown.NewManager()
	s := NewServer(cfg, mgr, nil)
	if err := s.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}

	runDone := make(chan struct{})
	go func() {
		if err := s.Run(context.Background()); err != nil {
			t.Errorf("Run: %v", err)
		}
		close(runDone)
	}()

	t.Cleanup(func() {
		mgr.Shutdown()
		<-runDone
	})

	return s, mgr, "ws://" + s.Addr() + "/api/websocket"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeMsg(t *testing.T, conn *websocket.Conn, msg wsmsg.Message) {
	t.Helper()
	data, err := wsmsg.Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readMsg(t *testing.T, conn *websocket.Conn) wsmsg.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	msg, err := wsmsg.Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return msg
}

func writeRaw(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func writeScenario(t *testing.T, dir, name string, events []wsmsg.Message) {
	t.Helper()
	var doc []byte
	for i, e := range events {
		if i > 0 {
			doc = append(doc, []byte("\n---\n")...)
		}
		data, err := json.Marshal(e)
		if err != nil {
			t.Fatalf("marshal scenario event: %v", err)
		}
		doc = append(doc, data...)
	}
	if err := os.WriteFile(filepath.Join(dir, name), doc, 0o644); err != nil {
		t.Fatalf("write scenario: %v", err)
	}
}

func sampleEvent(entityID string) wsmsg.Message {
	return wsmsg.Message{
		Type: wsmsg.TypeEvent,
		Event: &wsmsg.Event{
			Data:      json.RawMessage(`{"entity_id":"` + entityID + `"}`),
			EventType: wsmsg.EventStateChanged,
			Context:   wsmsg.NewContext(),
		},
	}
}

// S1: auth success.
func TestAuthSuccess(t *testing.T) {
	_, _, url := startServer(t, Config{Token: "letmein", HAVersion: "2024.1.0", Scenario: "000-base.yaml", YAMLDir: t.TempDir()})
	conn := dial(t, url)

	required := readMsg(t, conn)
	if required.Type != wsmsg.TypeAuthRequired {
		t.Fatalf("got %s, want auth_required", required.Type)
	}

	writeMsg(t, conn, wsmsg.NewAuth("letmein"))
	ok := readMsg(t, conn)
	if ok.Type != wsmsg.TypeAuthOK {
		t.Fatalf("got %s, want auth_ok", ok.Type)
	}
}

// S2: auth failure.
func TestAuthFailure(t *testing.T) {
	_, _, url := startServer(t, Config{Token: "letmein", HAVersion: "2024.1.0", Scenario: "000-base.yaml", YAMLDir: t.TempDir()})
	conn := dial(t, url)

	readMsg(t, conn) // auth_required

	writeMsg(t, conn, wsmsg.NewAuth("wrong"))
	invalid := readMsg(t, conn)
	if invalid.Type != wsmsg.TypeAuthInvalid {
		t.Fatalf("got %s, want auth_invalid", invalid.Type)
	}
	if invalid.Message == "" {
		t.Error("auth_invalid carried no message")
	}
}

func authenticatedConn(t *testing.T, url, token string) *websocket.Conn {
	t.Helper()
	conn := dial(t, url)
	readMsg(t, conn) // auth_required
	writeMsg(t, conn, wsmsg.NewAuth(token))
	ok := readMsg(t, conn)
	if ok.Type != wsmsg.TypeAuthOK {
		t.Fatalf("authentication failed: got %s", ok.Type)
	}
	return conn
}

// S3: event burst — 8 documents, each delivered with the subscribe id.
func TestEventBurst(t *testing.T) {
	dir := t.TempDir()
	var events []wsmsg.Message
	for i := 0; i < 8; i++ {
		events = append(events, sampleEvent("sensor.motion"))
	}
	writeScenario(t, dir, "000-base.yaml", events)

	_, _, url := startServer(t, Config{Token: "letmein", HAVersion: "2024.1.0", Scenario: "000-base.yaml", YAMLDir: dir})
	conn := authenticatedConn(t, url, "letmein")

	const subscribeID = 1
	writeMsg(t, conn, wsmsg.NewSubscribeEvents(subscribeID, wsmsg.EventStateChanged))

	result := readMsg(t, conn)
	if result.Type != wsmsg.TypeResult {
		t.Fatalf("got %s, want result", result.Type)
	}
	if result.Success == nil || !*result.Success {
		t.Fatalf("subscribe result not success: %#v", result)
	}
	if id, _ := result.IDValue(); id != subscribeID {
		t.Fatalf("result id = %d, want %d", id, subscribeID)
	}

	for i := 0; i < 8; i++ {
		ev := readMsg(t, conn)
		if ev.Type != wsmsg.TypeEvent {
			t.Fatalf("event %d: got %s, want event", i, ev.Type)
		}
		if id, _ := ev.IDValue(); id != subscribeID {
			t.Fatalf("event %d: id = %d, want %d", i, id, subscribeID)
		}
	}
}

// S4: unsubscribe after a burst gets an ack.
func TestUnsubscribeAcks(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "000-base.yaml", []wsmsg.Message{sampleEvent("sensor.motion")})

	_, _, url := startServer(t, Config{Token: "letmein", HAVersion: "2024.1.0", Scenario: "000-base.yaml", YAMLDir: dir})
	conn := authenticatedConn(t, url, "letmein")

	const subscribeID = 1
	writeMsg(t, conn, wsmsg.NewSubscribeEvents(subscribeID, wsmsg.EventStateChanged))
	readMsg(t, conn) // result
	readMsg(t, conn) // the one event

	const unsubID = 2
	writeMsg(t, conn, wsmsg.NewUnsubscribeEvents(unsubID, subscribeID))
	reply := readMsg(t, conn)
	if reply.Type != wsmsg.TypeResult {
		t.Fatalf("got %s, want result", reply.Type)
	}
	if reply.Success == nil || !*reply.Success {
		t.Fatalf("unsubscribe result not success: %#v", reply)
	}
	if id, _ := reply.IDValue(); id != unsubID {
		t.Fatalf("reply id = %d, want %d", id, unsubID)
	}
}

// S5: pre-session setup picks the scenario, then S1+S3 proceed normally.
func TestPreSessionSetup(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "000-base.yaml", []wsmsg.Message{sampleEvent("sensor.motion"), sampleEvent("sensor.motion")})

	_, _, url := startServer(t, Config{Token: "letmein", HAVersion: "2024.1.0", YAMLDir: dir}) // no fixed Scenario
	conn := dial(t, url)

	writeRaw(t, conn, setupMessage{Type: setupName, Name: "run-1"})
	writeRaw(t, conn, setupMessage{Type: setupScenario, Scenario: "000-base.yaml"})
	writeRaw(t, conn, setupMessage{Type: setupStart})

	required := readMsg(t, conn)
	if required.Type != wsmsg.TypeAuthRequired {
		t.Fatalf("got %s, want auth_required", required.Type)
	}
	writeMsg(t, conn, wsmsg.NewAuth("letmein"))
	if ok := readMsg(t, conn); ok.Type != wsmsg.TypeAuthOK {
		t.Fatalf("got %s, want auth_ok", ok.Type)
	}

	writeMsg(t, conn, wsmsg.NewSubscribeEvents(1, wsmsg.EventStateChanged))
	if result := readMsg(t, conn); result.Type != wsmsg.TypeResult {
		t.Fatalf("got %s, want result", result.Type)
	}
	for i := 0; i < 2; i++ {
		if ev := readMsg(t, conn); ev.Type != wsmsg.TypeEvent {
			t.Fatalf("event %d: got %s", i, ev.Type)
		}
	}
}

// §8 property 10: an unrecognized request in operational gets exactly
// one synthetic error result and the connection stays open.
func TestUnrecognizedOperationalRequest(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "000-base.yaml", []wsmsg.Message{sampleEvent("sensor.motion")})

	_, _, url := startServer(t, Config{Token: "letmein", HAVersion: "2024.1.0", Scenario: "000-base.yaml", YAMLDir: dir})
	conn := authenticatedConn(t, url, "letmein")

	writeMsg(t, conn, wsmsg.Message{Type: wsmsg.TypeGetStates, ID: func() *uint64 { id := uint64(42); return &id }()})

	reply := readMsg(t, conn)
	if reply.Type != wsmsg.TypeResult {
		t.Fatalf("got %s, want result", reply.Type)
	}
	if reply.Success == nil || *reply.Success {
		t.Fatalf("expected success:false, got %#v", reply)
	}
	if reply.Error == nil || reply.Error.Code != "000" {
		t.Fatalf("expected error.code 000, got %#v", reply.Error)
	}

	// Connection must still be usable: ping still gets a pong.
	writeMsg(t, conn, wsmsg.NewPing(43))
	pong := readMsg(t, conn)
	if pong.Type != wsmsg.TypePong {
		t.Fatalf("got %s, want pong after the unrecognized request", pong.Type)
	}
}

func TestMissingScenarioFileProducesNoEvents(t *testing.T) {
	_, _, url := startServer(t, Config{Token: "letmein", HAVersion: "2024.1.0", Scenario: "does-not-exist.yaml", YAMLDir: t.TempDir()})
	conn := authenticatedConn(t, url, "letmein")

	writeMsg(t, conn, wsmsg.NewSubscribeEvents(1, wsmsg.EventStateChanged))
	result := readMsg(t, conn)
	if result.Success == nil || !*result.Success {
		t.Fatalf("subscribe result not success: %#v", result)
	}

	writeMsg(t, conn, wsmsg.NewPing(2))
	pong := readMsg(t, conn)
	if pong.Type != wsmsg.TypePong {
		t.Fatalf("got %s, want pong (no events should have arrived first)", pong.Type)
	}
}
