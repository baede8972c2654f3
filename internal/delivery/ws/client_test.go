package ws

import (
	"errors"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/mmuslimabdulj/drawtogether/internal/domain"
	"github.com/mmuslimabdulj/drawtogether/internal/logger"
)

func TestParseEnvelope(t *testing.T) {
	env, err := parseEnvelope([]byte(`{"type":"ERROR","message":"Room is full","timestamp":"2024-01-01T00:00:00Z"}`))
	if err != nil {
		t.Fatalf("Expected envelope to parse, got %v", err)
	}
	if env.Type != domain.MessageTypeError {
		t.Errorf("Expected ERROR, got %s", env.Type)
	}
	if env.Message != "Room is full" {
		t.Errorf("Expected message 'Room is full', got %q", env.Message)
	}

	for _, raw := range []string{`not json`, `{"data":{}}`, `{"type":""}`, `[]`} {
		if _, err := parseEnvelope([]byte(raw)); err == nil {
			t.Errorf("Expected %s to be rejected", raw)
		}
	}
}

func TestParseEnvelope_NumericTimestamp(t *testing.T) {
	env, err := parseEnvelope([]byte(`{"type":"ROOM_LEFT","timestamp":1700000000000}`))
	if err != nil {
		t.Fatalf("Expected envelope to parse, got %v", err)
	}
	if !env.Timestamp.Valid || env.Timestamp.Time.UnixMilli() != 1700000000000 {
		t.Errorf("Expected epoch millis timestamp, got %+v", env.Timestamp)
	}

	// An unusable timestamp leaves the envelope intact
	env, err = parseEnvelope([]byte(`{"type":"ROOM_LEFT","timestamp":{"at":1}}`))
	if err != nil {
		t.Fatalf("Expected envelope to parse, got %v", err)
	}
	if env.Timestamp.Valid {
		t.Errorf("Expected invalid timestamp, got %+v", env.Timestamp)
	}
}

func TestCloseDetails(t *testing.T) {
	code, reason := closeDetails(&websocket.CloseError{Code: websocket.CloseGoingAway, Text: "restart"})
	if code != websocket.CloseGoingAway || reason != "restart" {
		t.Errorf("Expected 1001/restart, got %d/%s", code, reason)
	}

	code, _ = closeDetails(errors.New("EOF"))
	if code != websocket.CloseAbnormalClosure {
		t.Errorf("Expected abnormal closure for plain errors, got %d", code)
	}
}

func TestLink_EnqueueAfterClose(t *testing.T) {
	m := &Manager{log: logger.Nop()}
	l := newLink(m, newFakeConn(), 1)

	if !l.enqueue([]byte("a")) {
		t.Error("Expected enqueue on open link to succeed")
	}

	l.close()
	l.close()

	if l.enqueue([]byte("b")) {
		t.Error("Expected enqueue after close to fail")
	}
}

func TestLink_EnqueueBufferFull(t *testing.T) {
	m := &Manager{log: logger.Nop()}
	l := newLink(m, newFakeConn(), 1)

	for i := 0; i < sendBuffer; i++ {
		if !l.enqueue([]byte("x")) {
			t.Fatalf("Expected enqueue %d to succeed", i)
		}
	}

	// This should not block
	if l.enqueue([]byte("overflow")) {
		t.Error("Expected enqueue on a full buffer to fail")
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateDisconnected: "disconnected",
		StateConnecting:   "connecting",
		StateConnected:    "connected",
		StateReconnecting: "reconnecting",
		State(42):         "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("Expected %s, got %s", want, got)
		}
	}
}
