// Copyright 2024-2026 Aiku AI

package relay

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger_JSONToStderr(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log, closer := NewLogger(&LoggingConfig{Level: "info"}, &buf)
	defer closer.Close()

	log.Debug().Msg("hidden")
	log.Info().Str("component", "test").Msg("visible")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if entry["message"] != "visible" || entry["component"] != "test" {
		t.Errorf("entry: got %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Error("entry should carry a timestamp")
	}
}

func TestNewLogger_Pretty(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log, closer := NewLogger(&LoggingConfig{Pretty: true}, &buf)
	defer closer.Close()

	log.Info().Msg("hello")
	if strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), "hello") {
		t.Errorf("expected console output, got %q", buf.String())
	}
}

func TestNewLogger_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "relay.log")
	var buf bytes.Buffer
	log, closer := NewLogger(&LoggingConfig{Level: "debug", File: path, MaxSizeMB: 1}, &buf)

	log.Debug().Msg("to both")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"message":"to both"`) {
		t.Errorf("log file: got %q", data)
	}
	if !strings.Contains(buf.String(), "to both") {
		t.Errorf("stderr: got %q", buf.String())
	}
}
