package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestContextLogger(t *testing.T) {
	assert.Equal(t, slog.Default(), From(context.Background()))

	var buf bytes.Buffer
	l := NewConsole(&buf, "info")
	ctx := With(context.Background(), l)

	From(ctx).Info("ring", "call_id", "c1")
	assert.Contains(t, buf.String(), "call_id=c1")
}

func TestOrDefault(t *testing.T) {
	assert.Equal(t, slog.Default(), OrDefault(nil))

	l := NewConsole(&bytes.Buffer{}, "debug")
	assert.Equal(t, l, OrDefault(l))
}
