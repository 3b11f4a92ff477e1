package logger

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ConsoleOnly(t *testing.T) {
	l := New(Options{Env: "dev", App: "test"})
	require.NotNil(t, l)

	// No file handler registered, Close is a no-op.
	assert.NoError(t, Close(l))
}

func TestNew_WithFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "app.log")
	l := New(Options{Env: "prod", App: "test", File: file})
	require.NotNil(t, l)

	l.Info("hello", "key", "value")

	require.NoError(t, Close(l))
	// Second close is a no-op; the closer has been consumed.
	assert.NoError(t, Close(l))
}

func TestLevelFromString(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, levelFromString("debug"))
	assert.Equal(t, slog.LevelInfo, levelFromString("INFO"))
	assert.Equal(t, slog.LevelWarn, levelFromString("warn"))
	assert.Equal(t, slog.LevelError, levelFromString("error"))
	assert.Equal(t, slog.LevelInfo, levelFromString("bogus"))
}

func TestMultiHandler_FanOut(t *testing.T) {
	var a, b bytes.Buffer
	ha := slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelInfo})
	hb := slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelError})

	l := slog.New(NewMultiHandler(ha, hb))
	l.Info("only-first")
	l.Error("both")

	assert.Contains(t, a.String(), "only-first")
	assert.Contains(t, a.String(), "both")
	assert.NotContains(t, b.String(), "only-first")
	assert.Contains(t, b.String(), "both")
}

func TestMultiHandler_Enabled(t *testing.T) {
	var buf bytes.Buffer
	h := NewMultiHandler(
		slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}),
		slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelError}),
	)

	ctx := context.Background()
	assert.False(t, h.Enabled(ctx, slog.LevelInfo))
	assert.True(t, h.Enabled(ctx, slog.LevelWarn))
	assert.True(t, h.Enabled(ctx, slog.LevelError))
}
