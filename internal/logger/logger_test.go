package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNopByDefault(t *testing.T) {
	assert.NotNil(t, Logger)
	assert.NotPanics(t, func() { Named("test").Infow("hello", "k", "v") })
}

func TestInitialize(t *testing.T) {
	prev := Logger
	t.Cleanup(func() { Logger = prev; JSONOutput = false })

	require.NoError(t, Initialize(true, "debug"))
	assert.True(t, JSONOutput)
	assert.True(t, Logger.Desugar().Core().Enabled(zapcore.DebugLevel))

	require.NoError(t, Initialize(false, "not-a-level"))
	assert.False(t, JSONOutput)
	assert.False(t, Logger.Desugar().Core().Enabled(zapcore.DebugLevel))
}
