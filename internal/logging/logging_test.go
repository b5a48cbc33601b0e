package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{
		"text":    FormatText,
		"TINT":    FormatText,
		" human ": FormatText,
		"json":    FormatJSON,
		"":        FormatAuto,
		"xml":     FormatAuto,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseFormat(in), "input %q", in)
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn", true))
	assert.Equal(t, slog.LevelError, ParseLevel("ERROR", false))
	assert.Equal(t, slog.LevelDebug, ParseLevel("", true))
	assert.Equal(t, slog.LevelInfo, ParseLevel("", false))
	assert.Equal(t, slog.LevelInfo, ParseLevel("loud", false))
}

func TestIsTTYFalseForBuffer(t *testing.T) {
	assert.False(t, IsTTY(&bytes.Buffer{}))
}

func TestAutoFormatIsJSONWhenNotATerminal(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewHandler(&buf, Options{Format: FormatAuto, Level: slog.LevelDebug, Component: "delivery"}))
	l.Debug("paste sent", "window", 42)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "paste sent", rec["msg"])
	assert.Equal(t, "delivery", rec["component"])
	assert.EqualValues(t, 42, rec["window"])
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewHandler(&buf, Options{Format: FormatJSON, Level: slog.LevelWarn}))
	l.Info("hidden")
	assert.Zero(t, buf.Len())
	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewHandler(&buf, Options{Format: FormatText}))
	l.Info("console started", "provider", "codex")
	assert.Contains(t, buf.String(), "console started")
	assert.Contains(t, buf.String(), "codex")
}
