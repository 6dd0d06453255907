package injector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/zengine/internal/config"
	"github.com/zeusync/zengine/internal/core/registry"
)

func TestInitializeEngine(t *testing.T) {
	cfg := config.Default()
	cfg.Project = t.TempDir()
	cfg.LogLevel = "error"

	e, err := InitializeEngine(cfg)
	require.NoError(t, err)
	defer e.Close()

	assert.True(t, e.Scenes.Playing())
	assert.Contains(t, e.Registry.Tags(registry.KindComponent), "Camera")
	require.NoError(t, e.Open())
	assert.Positive(t, e.Cache.Len(), "builtin assets are listed")

	cfg.Notifier.Buffer = 0
	cfg.Extensions = map[string]string{"x": "Missing"}
	_, err = InitializeEngine(cfg)
	assert.ErrorIs(t, err, registry.ErrUnknownTag)
}
