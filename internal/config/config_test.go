package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chtemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "data/bidcard.db", cfg.Store.Path)
	assert.Equal(t, "https://search.ccgp.gov.cn/bxsearch", cfg.Search.BaseURL)
	assert.Equal(t, 5, cfg.Search.MaxPages)
	assert.Equal(t, 120, cfg.Extract.LookbackWindow)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := chtemp(t)

	yaml := []byte("store:\n  driver: postgres\n  database_url: postgres://localhost/bidcard\nsearch:\n  max_pages: 2\nlog:\n  level: debug\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/bidcard", cfg.Store.DatabaseURL)
	assert.Equal(t, 2, cfg.Search.MaxPages)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched sections keep defaults.
	assert.Equal(t, 1000, cfg.Search.DelayMinMS)
}

func TestInitLogger_BadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "chatty", Format: "json"})
	require.Error(t, err)
}

func TestInitLogger_Console(t *testing.T) {
	err := InitLogger(LogConfig{Level: "warn", Format: "console"})
	require.NoError(t, err)
}

// chtemp switches the working directory to a fresh temp dir so Load does
// not pick up a real config.yaml.
func chtemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}
