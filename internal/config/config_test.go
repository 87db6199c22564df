package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chtemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chtemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dir", cfg.Catalog.Driver)
	assert.Equal(t, "./scenes", cfg.Catalog.Dir)
	assert.Equal(t, "sentinel-2-l2a", cfg.Catalog.STAC.Collection)
	assert.InDelta(t, 0.3, cfg.Pipeline.NDVIThreshold, 0.001)
	assert.InDelta(t, 0.2, cfg.Pipeline.MaxCloudCover, 0.001)
	assert.Equal(t, 4, cfg.Pipeline.Concurrency)
	assert.Equal(t, 120, cfg.Pipeline.FetchTimeoutSecs)
	assert.Equal(t, "ha", cfg.Pipeline.Unit)
	assert.Equal(t, "ndvi.db", cfg.Store.Path)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chtemp(t)

	yaml := `
catalog:
  driver: stac
  stac:
    base_url: https://stac.example.com
    collection: landsat-c2-l2
pipeline:
  ndvi_threshold: 0.45
  concurrency: 8
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "stac", cfg.Catalog.Driver)
	assert.Equal(t, "https://stac.example.com", cfg.Catalog.STAC.BaseURL)
	assert.Equal(t, "landsat-c2-l2", cfg.Catalog.STAC.Collection)
	assert.InDelta(t, 0.45, cfg.Pipeline.NDVIThreshold, 0.001)
	assert.Equal(t, 8, cfg.Pipeline.Concurrency)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Unset values keep defaults.
	assert.InDelta(t, 0.2, cfg.Pipeline.MaxCloudCover, 0.001)
}

func TestLoadBadYAML(t *testing.T) {
	dir := chtemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("catalog: ["), 0o644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.True(t, zap.L().Core().Enabled(zap.DebugLevel))

	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "json"}))
	assert.False(t, zap.L().Core().Enabled(zap.InfoLevel))
}

func TestInitLogger_BadLevel(t *testing.T) {
	assert.Error(t, InitLogger(LogConfig{Level: "verbose", Format: "json"}))
}
