package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNew_SimpleFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(slog.LevelInfo, &buf, FormatSimple)

	log.Info("Tool executed", "tool", "search_web", "args", "q=go")
	log.Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, "INFO Tool executed tool=search_web args=q=go")
	assert.NotContains(t, out, "hidden")
}

func TestNew_SimpleFormatWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := New(slog.LevelDebug, &buf, FormatSimple).With("role", "question").WithGroup("call")

	log.Debug("start", "attempt", 1)

	assert.Equal(t, "DEBUG start role=question call.attempt=1\n", buf.String())
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(slog.LevelWarn, &buf, FormatJSON)

	log.Info("dropped")
	log.Warn("kept", "attempt", 2)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, float64(2), rec["attempt"])
}

func TestModuleFilter_KeepsRecordsWithoutCaller(t *testing.T) {
	var buf bytes.Buffer
	h := &moduleFilter{handler: slog.NewTextHandler(&buf, nil), minLevel: slog.LevelInfo}

	rec := slog.NewRecord(time.Now(), slog.LevelInfo, "no caller", 0)
	require.NoError(t, h.Handle(context.Background(), rec))

	assert.Contains(t, buf.String(), "no caller")
}

func TestIsTerminal_NonFile(t *testing.T) {
	assert.False(t, IsTerminal(&bytes.Buffer{}))
}

func TestNew_SimpleFormatNestedGroups(t *testing.T) {
	var buf bytes.Buffer
	log := New(slog.LevelInfo, &buf, FormatSimple).
		WithGroup("pipeline").With("role", "response").
		WithGroup("normalize").With("field", "responses")

	log.Info("retry", "attempt", 2)

	assert.Equal(t, "INFO retry pipeline.role=response pipeline.normalize.field=responses pipeline.normalize.attempt=2\n", buf.String())
}
