package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew_Level(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		lowest  zapcore.Level
		blocked zapcore.Level
	}{
		{name: "production default", cfg: Config{}, lowest: zapcore.InfoLevel, blocked: zapcore.DebugLevel},
		{name: "development default", cfg: Config{Development: true}, lowest: zapcore.DebugLevel, blocked: zapcore.DebugLevel - 1},
		{name: "override", cfg: Config{Level: "WARN", Service: "powerform"}, lowest: zapcore.WarnLevel, blocked: zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			require.NoError(t, err)
			assert.True(t, l.Core().Enabled(tt.lowest))
			assert.False(t, l.Core().Enabled(tt.blocked))
		})
	}
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "chatty"})
	assert.ErrorContains(t, err, "invalid level")
}

func TestMustInit_InstallsGlobal(t *testing.T) {
	previous := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(previous) })

	l := MustInit(Config{Level: "error"})
	assert.Same(t, l, zap.L())
	assert.False(t, Named("issuer").Core().Enabled(zapcore.WarnLevel))
	assert.NoError(t, Sync())
}

func TestMustInit_PanicsOnBadLevel(t *testing.T) {
	assert.Panics(t, func() { MustInit(Config{Level: "chatty"}) })
}
