package slogging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLogLevel("debug"))
	assert.Equal(t, LogLevelInfo, ParseLogLevel("info"))
	assert.Equal(t, LogLevelWarn, ParseLogLevel("warning"))
	assert.Equal(t, LogLevelError, ParseLogLevel("ERROR"))
	// Unknown levels default to info
	assert.Equal(t, LogLevelInfo, ParseLogLevel("loud"))
}

func TestSanitizeLogMessage(t *testing.T) {
	assert.Equal(t, `a\nb\rc`, SanitizeLogMessage("a\nb\rc"))
	assert.Equal(t, "plain", SanitizeLogMessage("plain"))
}

func TestLoggerWritesToFile(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(Config{
		Level:  LogLevelDebug,
		IsDev:  true,
		LogDir: dir,
	})
	require.NoError(t, err)

	logger.Info("request from %s completed", "10.0.0.1")
	logger.Debug("debug detail %d", 42)
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(filepath.Join(dir, "filecollab.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "request from 10.0.0.1 completed")
	assert.Contains(t, string(data), "debug detail 42")
}

func TestContextLoggingWithAttrs(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(Config{
		Level:  LogLevelInfo,
		IsDev:  true,
		LogDir: dir,
	})
	require.NoError(t, err)

	logger.InfoCtx(context.Background(), "request completed",
		slog.String("method", "GET"), slog.Int("status", 200))
	logger.ErrorCtx(context.Background(), "request failed",
		slog.String("method", "POST"), slog.Int("status", 500))
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(filepath.Join(dir, "filecollab.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "request completed")
	assert.Contains(t, string(data), "method=GET")
	assert.Contains(t, string(data), "status=200")
	assert.Contains(t, string(data), "request failed")
	assert.Contains(t, string(data), "status=500")
}

func TestLoggerLevelFiltering(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(Config{
		Level:  LogLevelWarn,
		IsDev:  true,
		LogDir: dir,
	})
	require.NoError(t, err)

	logger.Info("should be filtered")
	logger.Warn("should appear")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(filepath.Join(dir, "filecollab.log"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "should be filtered")
	assert.Contains(t, string(data), "should appear")
}
