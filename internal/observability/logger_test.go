package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/formpilot/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// syncBuffer is a goroutine-safe WriteSyncer backed by a bytes.Buffer.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) Sync() error { return nil }

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

var _ zapcore.WriteSyncer = (*syncBuffer)(nil)

func TestInitialize(t *testing.T) {
	t.Run("console logger with colors", func(t *testing.T) {
		ResetForTest()
		defer ResetForTest()
		out := &syncBuffer{}

		Initialize(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "formpilot",
			Colors:      config.ColorConfig{Info: "green"},
		}, out)
		Component("pool").Info("Context recycled.")
		Sync()

		line := out.String()
		assert.Contains(t, line, "Context recycled.")
		assert.Contains(t, line, ansiColors["green"]+"INFO"+ansiReset)
		assert.Contains(t, line, "[formpilot.pool]")
	})

	t.Run("json logger", func(t *testing.T) {
		ResetForTest()
		defer ResetForTest()
		out := &syncBuffer{}

		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "svc"}, out)
		GetLogger().Warn("Navigation failed.", zap.String("host", "example.jp"))
		Sync()

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out.String())), &entry))
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "svc", entry["logger"])
		assert.Equal(t, "Navigation failed.", entry["msg"])
		assert.Equal(t, "example.jp", entry["host"])
	})

	t.Run("level filtering", func(t *testing.T) {
		ResetForTest()
		defer ResetForTest()
		out := &syncBuffer{}

		Initialize(config.LoggerConfig{Level: "warn", Format: "json"}, out)
		GetLogger().Info("hidden")
		GetLogger().Error("shown")
		Sync()

		assert.NotContains(t, out.String(), "hidden")
		assert.Contains(t, out.String(), "shown")
	})

	t.Run("writes rotated file sink", func(t *testing.T) {
		ResetForTest()
		defer ResetForTest()
		path := filepath.Join(t.TempDir(), "formpilot.log")

		Initialize(config.LoggerConfig{Level: "debug", Format: "json", LogFile: path, MaxSize: 1}, &syncBuffer{})
		GetLogger().Error("This should go to the file.")
		Sync()

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(content), "This should go to the file.")
	})

	t.Run("initializes only once", func(t *testing.T) {
		ResetForTest()
		defer ResetForTest()
		out := &syncBuffer{}

		Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "First"}, out)
		first := GetLogger()
		Initialize(config.LoggerConfig{Level: "debug", Format: "json", ServiceName: "Second"}, out)
		second := GetLogger()

		assert.Same(t, first, second)
		second.Info("test")
		Sync()
		assert.Contains(t, out.String(), "First")
		assert.NotContains(t, out.String(), "Second")
	})
}

func TestGetLoggerFallback(t *testing.T) {
	ResetForTest()
	defer ResetForTest()
	require.NotNil(t, GetLogger())
	assert.Nil(t, globalLogger.Load(), "fallback must not be stored globally")
}

func TestNewIsIndependent(t *testing.T) {
	ResetForTest()
	defer ResetForTest()
	out := &syncBuffer{}

	l := New(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "standalone"}, out)
	l.Info("standalone message")
	_ = l.Sync()

	assert.Contains(t, out.String(), "standalone message")
	assert.Nil(t, globalLogger.Load())
}

func TestConsoleLevelWithoutColor(t *testing.T) {
	out := &syncBuffer{}
	l := New(config.LoggerConfig{Level: "debug", Format: "console"}, out)
	l.Warn("Acquire timed out.")
	_ = l.Sync()

	assert.Contains(t, out.String(), "WARN")
	assert.NotContains(t, out.String(), "\x1b[")
}

func TestIgnorableSyncError(t *testing.T) {
	assert.True(t, ignorableSyncError(&os.PathError{Op: "sync", Path: "/dev/stderr", Err: syscall.EINVAL}))
	assert.True(t, ignorableSyncError(syscall.ENOTTY))
	assert.False(t, ignorableSyncError(errors.New("disk full")))
}
