package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/localworks/localworks-api/internal/platform/config"
)

func TestNew(t *testing.T) {
	t.Parallel()

	log, err := New(config.LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	require.True(t, log.Core().Enabled(zapcore.DebugLevel))

	log, err = New(config.LogConfig{Level: "warn", Format: "json"})
	require.NoError(t, err)
	require.False(t, log.Core().Enabled(zapcore.InfoLevel))

	_, err = New(config.LogConfig{Level: "loud", Format: "json"})
	require.Error(t, err)
	_, err = New(config.LogConfig{Level: "info", Format: "xml"})
	require.Error(t, err)
}
