package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv("/data/crucible")

	assert.Equal(t, filepath.Join("/data/crucible", "recipes"), cfg.Dirs.Recipes)
	assert.Equal(t, filepath.Join("/data/crucible", "connectors-endpoints"), cfg.Dirs.ConnectorsEndpoints)
	assert.Equal(t, DefaultRetriesTimes, cfg.Connector.RetriesTimes)
	assert.Equal(t, DefaultTimeout, cfg.Connector.Timeout)
	assert.False(t, cfg.Cache.RetryFailedRows)
}

func TestFromEnvOverride(t *testing.T) {
	t.Setenv(EnvRecipes, "/custom/recipes")
	t.Setenv(EnvDatabases, "/custom/db")

	cfg := FromEnv("/data/crucible")
	assert.Equal(t, "/custom/recipes", cfg.Dirs.Recipes)
	assert.Equal(t, "/custom/db", cfg.Dirs.Databases)
	assert.Equal(t, filepath.Join("/data/crucible", "results"), cfg.Dirs.Results)
}

func TestLoadFileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crucible.yaml")
	body := `
dirs:
  recipes: /overlaid/recipes
cache:
  retry_failed_rows: true
connector:
  retries_times: 5
  timeout: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	base := FromEnv("/data/crucible")
	cfg, err := LoadFile(base, path)
	require.NoError(t, err)

	assert.Equal(t, "/overlaid/recipes", cfg.Dirs.Recipes)
	assert.Equal(t, base.Dirs.Datasets, cfg.Dirs.Datasets, "unset dirs keep env defaults")
	assert.True(t, cfg.Cache.RetryFailedRows)
	assert.Equal(t, 5, cfg.Connector.RetriesTimes)
	assert.Equal(t, 30*time.Second, cfg.Connector.Timeout)
	assert.Equal(t, DefaultBackoffBase, cfg.Connector.BackoffBase, "unset values keep defaults")
}

func TestLoadFileMissing(t *testing.T) {
	base := FromEnv("/data/crucible")
	_, err := LoadFile(base, "/nonexistent/crucible.yaml")
	assert.Error(t, err)
}

func TestEnsureDirs(t *testing.T) {
	cfg := FromEnv(t.TempDir())
	require.NoError(t, cfg.EnsureDirs())

	info, err := os.Stat(cfg.Dirs.Results)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
