package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err, "an explicit path must exist")

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "default", cfg.SpaceID)
	assert.Equal(t, 16, cfg.StabilizationCeiling)
	assert.Equal(t, 32, cfg.FrameBudget)
	assert.Equal(t, "mock", cfg.Model.Provider)
}

func TestLoad_MergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worldmesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
spaceId: tavern
frameBudget: 8
rateLimit:
  eventsPerSecond: 2.5
model:
  provider: anthropic
  name: claude-sonnet-4-20250514
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tavern", cfg.SpaceID)
	assert.Equal(t, 8, cfg.FrameBudget)
	assert.Equal(t, 16, cfg.StabilizationCeiling, "unset keys keep defaults")
	assert.Equal(t, 2.5, cfg.RateLimit.EventsPerSecond)
	assert.Equal(t, 20, cfg.RateLimit.Burst, "nested unset keys keep defaults")
	assert.Equal(t, 5*time.Minute, cfg.RateLimit.IdleTTL)
	assert.Equal(t, "anthropic", cfg.Model.Provider)
	assert.Equal(t, 4096, cfg.Model.MaxTokens)
}

func TestLoad_MalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("frameBudget: [not a number"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worldmesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte("spaceId: tavern\nframeBudget: 8\n"), 0o600))

	t.Setenv("WORLDMESH_SPACE_ID", "cellar")
	t.Setenv("WORLDMESH_FRAME_BUDGET", "4")
	t.Setenv("WORLDMESH_STABILIZATION_CEILING", "not-a-number")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "cellar", cfg.SpaceID, "env wins over file")
	assert.Equal(t, 4, cfg.FrameBudget)
	assert.Equal(t, 16, cfg.StabilizationCeiling, "unparsable env values are ignored")
}
