package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestNewInspectRun(t *testing.T) {
	dir := t.TempDir()
	base := []string{"--config", filepath.Join(dir, "engine.yaml"), "--project", dir, "--log-level", "error"}

	out, err := execute(t, append([]string{"new", "levels/start.scene", "--name", "Start"}, base...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "created levels/start.scene")

	out, err = execute(t, append([]string{"scan"}, base...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "levels/start.scene")
	assert.Contains(t, out, "builtin/meshes/cube.obj")

	out, err = execute(t, append([]string{"scan", "--type", "Scene"}, base...)...)
	require.NoError(t, err)
	assert.NotContains(t, out, "cube.obj")

	out, err = execute(t, append([]string{"inspect", "levels/start.scene"}, base...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Start (1 objects)")
	assert.Contains(t, out, "Camera [Camera]")

	out, err = execute(t, append([]string{"run", "levels/start.scene", "--frames", "2"}, base...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "ran 2 frames")

	_, err = execute(t, append([]string{"inspect", "levels/missing.scene"}, base...)...)
	assert.Error(t, err)
}
