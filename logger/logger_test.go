package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/saiset-co/sai-render/types"
)

type staticConfig struct {
	config *types.ServiceConfig
}

func (c *staticConfig) GetConfig() *types.ServiceConfig { return c.config }

func (c *staticConfig) GetValue(_ string, defaultValue interface{}) interface{} {
	return defaultValue
}

func (c *staticConfig) GetAs(_ string, _ interface{}) error { return nil }

func withLogger(cfg *types.LoggerConfig) *staticConfig {
	return &staticConfig{config: &types.ServiceConfig{Logger: cfg}}
}

func TestNewManagerRejectsMissingConfig(t *testing.T) {
	_, err := NewManager(&staticConfig{config: &types.ServiceConfig{}})
	assert.ErrorIs(t, err, types.ErrLoggerConfigInvalid)
}

func TestNewManagerUnknownType(t *testing.T) {
	_, err := NewManager(withLogger(&types.LoggerConfig{Type: "syslog", Level: "info"}))
	assert.ErrorIs(t, err, types.ErrLoggerTypeUnknown)
}

func TestManagerLifecycle(t *testing.T) {
	m, err := NewManager(withLogger(&types.LoggerConfig{Type: "nop", Level: "info"}))
	require.NoError(t, err)

	assert.False(t, m.IsRunning())
	require.NoError(t, m.Start())
	assert.ErrorIs(t, m.Start(), types.ErrServerAlreadyRunning)
	assert.True(t, m.IsRunning())

	require.NoError(t, m.Stop())
	assert.ErrorIs(t, m.Stop(), types.ErrServerNotRunning)
}

func TestCustomLoggerReceivesCause(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	RegisterLogger("observed", func(_ interface{}) (types.Logger, error) {
		return NewZapWrapper(zap.New(core)), nil
	})

	m, err := NewManager(withLogger(&types.LoggerConfig{Type: "observed", Level: "debug"}))
	require.NoError(t, err)

	m.Info("render finished", zap.String("identifier", "GET:/news"))
	m.ErrorWithErrStack("render failed", errors.Wrap(errors.New("disk full"), "write content"))
	m.ErrorWithErrStack("no error", nil)

	entries := logs.All()
	require.Len(t, entries, 3)

	assert.Equal(t, "render finished", entries[0].Message)
	assert.Equal(t, "GET:/news", entries[0].ContextMap()["identifier"])

	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "disk full", entries[1].ContextMap()["error"])

	assert.Equal(t, "no error", entries[2].Message)
	assert.NotContains(t, entries[2].ContextMap(), "error")
}

func TestDefaultLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "render.log")

	l, err := NewDefaultLogger(&types.LoggerConfig{
		Level: "debug",
		Config: map[string]interface{}{
			"format": "json",
			"output": "file",
			"file":   path,
		},
	})
	require.NoError(t, err)

	l.Debug("template cached", zap.String("key", "GET:/news#content"))
	require.NoError(t, l.(*ZapWrapper).Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Logger initialized")
	assert.Contains(t, string(data), "GET:/news#content")
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
	}

	for in, want := range tests {
		assert.Equal(t, want, parseLogLevel(in), in)
	}
}

func TestEnsureLogDir(t *testing.T) {
	assert.ErrorIs(t, ensureLogDir(""), types.ErrLogFileIsEmpty)
	assert.ErrorIs(t, ensureLogDir("render.log"), types.ErrLogFileWrongFormat)
	assert.NoError(t, ensureLogDir(filepath.Join(t.TempDir(), "a", "b.log")))
}
