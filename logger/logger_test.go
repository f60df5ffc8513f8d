package logger

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
)

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("test")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "test" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	// Ensure environment variables do not override the provided level
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("invalid", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestConfigureInvalidFormat(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("info", "xml", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid format")
	}
}

func TestConfigureFileOutput(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	path := filepath.Join(t.TempDir(), "pairwatch.log")
	if err := log.Configure("debug", "text", path, 0); err != nil {
		t.Fatalf("configure file output: %v", err)
	}
	if err := log.Configure("debug", "json", path, 7); err != nil {
		t.Fatalf("configure rotating output: %v", err)
	}
}

func TestWithEnv(t *testing.T) {
	t.Setenv("FOO", "bar")
	log := Logger()
	entry := log.WithEnv("FOO")
	if v, ok := entry.Entry.Data["FOO"]; !ok || v != "bar" {
		t.Fatalf("env field not set: %v", entry.Entry.Data)
	}
}

func TestJSONOutputUsesRenamedKeys(t *testing.T) {
	log := Logger()
	var buf bytes.Buffer
	log.SetOutput(&buf)

	log.WithComponent("aggregator").Info("tick")

	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if decoded["message"] != "tick" {
		t.Fatalf("expected message key, got %v", decoded)
	}
	if decoded["component"] != "aggregator" {
		t.Fatalf("expected component field, got %v", decoded)
	}
	if _, ok := decoded["timestamp"]; !ok {
		t.Fatalf("expected timestamp key, got %v", decoded)
	}
}

func TestWarnAndErrorAreCounted(t *testing.T) {
	log := Logger()
	log.SetOutput(&bytes.Buffer{})

	before := Counts()["counted_component"]
	log.WithComponent("counted_component").Warn("warn")
	log.WithComponent("counted_component").Error("err")
	after := Counts()["counted_component"]

	if after.Warns != before.Warns+1 || after.Errors != before.Errors+1 {
		t.Fatalf("unexpected counts before=%+v after=%+v", before, after)
	}
}
