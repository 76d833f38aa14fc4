package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInit(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		logFile string
	}{
		{name: "debug level, no file", level: "debug"},
		{name: "warn level, no file", level: "warn"},
		{name: "unknown level falls back to info", level: "verbose"},
		{name: "info level with file", level: "info", logFile: filepath.Join(t.TempDir(), "api.log")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Log = nil

			require.NoError(t, Init(tt.level, tt.logFile))
			require.NotNil(t, Log)
			assert.True(t, Log.Core().Enabled(ParseLevel(tt.level)))

			_ = Sync()
			if tt.logFile != "" {
				_ = os.Remove(tt.logFile)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug": zapcore.DebugLevel,
		"info":  zapcore.InfoLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
		"":      zapcore.InfoLevel,
		"TRACE": zapcore.InfoLevel,
	}

	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestL(t *testing.T) {
	Log = nil
	require.NotNil(t, L())
	L().Info("dropped by the no-op logger")

	dev, err := zap.NewDevelopment()
	require.NoError(t, err)
	Log = dev
	assert.Same(t, dev, L())
}

func TestSyncWithoutLogger(t *testing.T) {
	Log = nil
	assert.NoError(t, Sync())
}

func TestInitWritesToLogFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "app.log")

	require.NoError(t, Init("info", logFile))
	Log.Info("token refreshed")
	_ = Sync()

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "token refreshed")
	assert.Contains(t, string(data), "squigly-api")
}
