package logging

import (
	"testing"

	"github.com/chazu/tensile/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	for _, dev := range []bool{false, true} {
		l, err := New(config.LogConfig{Level: "warn", Development: dev})
		require.NoError(t, err)
		assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
		assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(config.LogConfig{Level: "shouting"})
	assert.ErrorContains(t, err, "logging:")
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	l, err := New(config.LogConfig{Level: "info"})
	require.NoError(t, err)
	assert.Same(t, l, OrNop(l))
}
