package logger

import (
	"testing"

	"openpaws/pkg/config"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBuildHonoursLevel(t *testing.T) {
	cfg := &config.Config{AppEnv: "production", AppName: "openpaws", NodeID: 3}
	cfg.Log.Level = "warn"

	log := Build(cfg)
	require.False(t, log.Core().Enabled(zap.InfoLevel))
	require.True(t, log.Core().Enabled(zap.WarnLevel))
}

func TestBuildDefaultsWithoutConfig(t *testing.T) {
	log := Build(nil)
	require.True(t, log.Core().Enabled(zap.DebugLevel))
}

func TestBuildIgnoresUnknownLevel(t *testing.T) {
	cfg := &config.Config{AppEnv: "production"}
	cfg.Log.Level = "loud"

	log := Build(cfg)
	require.True(t, log.Core().Enabled(zap.InfoLevel))
	require.False(t, log.Core().Enabled(zap.DebugLevel))
}
