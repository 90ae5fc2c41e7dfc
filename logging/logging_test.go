package logging

import (
	"bytes"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New("debug", FormatJSON, &buf)
	l.Debug().Str("key", "value").Msg("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if line["message"] != "hello" {
		t.Errorf("message mismatch: got %v", line["message"])
	}
	if line["key"] != "value" {
		t.Errorf("field mismatch: got %v", line["key"])
	}
}

func TestNewInvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := New("not-a-level", FormatJSON, &buf)
	if l.GetLevel() != zerolog.InfoLevel {
		t.Errorf("expected info level, got %v", l.GetLevel())
	}
	l.Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected debug line to be filtered, got %q", buf.String())
	}
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	l := Component(New("info", FormatJSON, &buf), "builder")
	l.Info().Msg("x")
	if !strings.Contains(buf.String(), `"component":"builder"`) {
		t.Errorf("expected component field, got %q", buf.String())
	}
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New("info", FormatConsole, &buf)
	l.Info().Msg("readable")
	if !strings.Contains(buf.String(), "readable") {
		t.Errorf("expected message in console output, got %q", buf.String())
	}
	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Errorf("expected non-JSON console output, got %q", buf.String())
	}
}
