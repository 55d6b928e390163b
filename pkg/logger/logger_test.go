package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestNewEmitsJSONWithFields(t *testing.T) {
	log := New(LoggingConfig{Level: "debug", Format: "json"})
	var buf bytes.Buffer
	log.entry.Logger.SetOutput(&buf)

	log.WithField("user_id", "u1").WithError(errors.New("boom")).Info("something happened")

	var record map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("log line is not JSON: %q", buf.String())
	}
	if record["user_id"] != "u1" || record["error"] != "boom" {
		t.Fatalf("fields missing from record: %#v", record)
	}
	if record["msg"] != "something happened" {
		t.Fatalf("unexpected message: %#v", record)
	}
}

func TestNewFallsBackToInfoOnBadLevel(t *testing.T) {
	log := New(LoggingConfig{Level: "not-a-level"})
	var buf bytes.Buffer
	log.entry.Logger.SetOutput(&buf)

	log.Debug("should be suppressed")
	if buf.Len() != 0 {
		t.Fatalf("debug line emitted at info level: %q", buf.String())
	}
	log.Info("visible")
	if buf.Len() == 0 {
		t.Fatalf("info line suppressed")
	}
}

func TestNewDefaultTagsService(t *testing.T) {
	log := NewDefault("vault")
	var buf bytes.Buffer
	log.entry.Logger.SetOutput(&buf)

	log.Info("hello")

	var record map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("log line is not JSON: %q", buf.String())
	}
	if record["service"] != "vault" {
		t.Fatalf("service tag missing: %#v", record)
	}
}
