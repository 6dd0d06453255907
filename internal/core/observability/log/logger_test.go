package log

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestConsoleSeverity(t *testing.T) {
	console := NewConsole(8)
	logger := FromZap(zap.New(console))

	logger.Info("scene loaded", String("scene", "Main"))
	logger.Warn("asset missing", String("path", "textures/a.png"))
	logger.Error("parse failed", Error(errors.New("boom")))

	entries := console.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, SeverityNormal, entries[0].Severity)
	assert.Equal(t, SeverityWarning, entries[1].Severity)
	assert.Equal(t, SeverityError, entries[2].Severity)
	assert.Equal(t, "Main", entries[0].Fields["scene"])
	assert.Equal(t, 1, console.Count(SeverityError))
}

func TestConsoleCapacity(t *testing.T) {
	console := NewConsole(2)
	logger := FromZap(zap.New(console))

	logger.Info("one")
	logger.Info("two")
	logger.Info("three")

	entries := console.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "two", entries[0].Message)
	assert.Equal(t, "three", entries[1].Message)

	console.Clear()
	assert.Empty(t, console.Entries())
}

func TestWithAndLevel(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := FromZap(zap.New(core))

	logger.With(String("component", "cache")).Debug("hit", Int("n", 2))
	require.Equal(t, 1, logs.Len())
	ctx := logs.All()[0].ContextMap()
	assert.Equal(t, "cache", ctx["component"])
	assert.EqualValues(t, 2, ctx["n"])

	logger.SetLevel(LevelWarn)
	assert.Equal(t, LevelWarn, logger.GetLevel())
	logger.Info("dropped")
	assert.Equal(t, 1, logs.Len())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}
