package utils

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogInterceptor(t *testing.T) {
	var out bytes.Buffer
	li := NewLogInterceptor(&out)
	li.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

	_, err := li.Write([]byte("first\nsec"))
	require.NoError(t, err)
	assert.Equal(t, "line=1 time=2025-01-02T03:04:05Z first\n", out.String())

	_, err = li.Write([]byte("ond\n"))
	require.NoError(t, err)
	_, err = li.Write([]byte("tail"))
	require.NoError(t, err)
	require.NoError(t, li.Close())

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "line=2 time=2025-01-02T03:04:05Z second", lines[1])
	assert.Equal(t, "line=3 time=2025-01-02T03:04:05Z tail", lines[2])

	require.NoError(t, li.Close())
}

func TestMultiLogHandler(t *testing.T) {
	var debug, info bytes.Buffer
	h := NewMultiLogHandler(
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
		nil,
		slog.NewTextHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}),
	)
	logger := slog.New(h).With("table", "events")

	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))
	logger.Debug("commit loaded", "version", 3)
	logger.Info("sync done")

	assert.Contains(t, debug.String(), "commit loaded")
	assert.Contains(t, debug.String(), "sync done")
	assert.NotContains(t, info.String(), "commit loaded")
	assert.Contains(t, info.String(), "table=events")
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret(""))
	assert.Equal(t, "*****", MaskSecret("abc"))
	assert.Equal(t, "AKIA*****", MaskSecret("AKIAXXXXXXXX"))
}
