package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for input, expected := range tests {
		if got := ParseLevel(input); got != expected {
			t.Errorf("ParseLevel(%q) = %v, expected %v", input, got, expected)
		}
	}
}

func TestSetupJSON_WithComponent(t *testing.T) {
	var buf bytes.Buffer
	SetupWithWriter(&buf, "info", "json")
	t.Cleanup(func() { SetupWithWriter(&bytes.Buffer{}, "info", "text") })

	InfoWithComponent(ComponentDither, "dithered image", "bits", 2)
	Debug("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 log line, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("invalid JSON log line: %v", err)
	}
	if entry["component"] != ComponentDither || entry["msg"] != "dithered image" || entry["bits"] != float64(2) {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestSetupText_Logf(t *testing.T) {
	var buf bytes.Buffer
	SetupWithWriter(&buf, "debug", "text")
	t.Cleanup(func() { SetupWithWriter(&bytes.Buffer{}, "info", "text") })

	Logf("processed %d jobs", 3)
	if !strings.Contains(buf.String(), "processed 3 jobs") {
		t.Errorf("expected formatted message, got %q", buf.String())
	}
}
