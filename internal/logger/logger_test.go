package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestNewWithWriter_TagsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("ws", &buf)

	l.WithField("attempt", 2).Warn("reconnecting")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("Expected JSON log line, got %q: %v", buf.String(), err)
	}
	if line["component"] != "ws" {
		t.Errorf("Expected component ws, got %v", line["component"])
	}
	if line["level"] != "warn" {
		t.Errorf("Expected level warn, got %v", line["level"])
	}
	if line["attempt"] != float64(2) {
		t.Errorf("Expected attempt 2, got %v", line["attempt"])
	}
	if line["message"] != "reconnecting" {
		t.Errorf("Expected message 'reconnecting', got %v", line["message"])
	}
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("dispatch", &buf)

	l.WithError(errors.New("boom")).Error("decode failed")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("Expected JSON log line: %v", err)
	}
	if line["error"] != "boom" {
		t.Errorf("Expected error field 'boom', got %v", line["error"])
	}
}

func TestNop_DoesNotPanic(t *testing.T) {
	l := Nop()
	l.Infof("value %d", 1)
	l.WithFields(map[string]interface{}{"a": 1}).Debug("ignored")
}
