package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "datacat_meta.sqlite", cfg.MetaDBPath)
	assert.Equal(t, "files", cfg.FileRoot)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 250, cfg.LookupThreshold)
	assert.False(t, cfg.IsProduction())
	assert.NotEmpty(t, cfg.Warnings, "in-memory lake should warn")
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("META_DB_PATH", "/var/lib/datacat/meta.sqlite")
	t.Setenv("LAKE_DB_PATH", "/var/lib/datacat/lake.duckdb")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOOKUP_THRESHOLD", "100")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/datacat/meta.sqlite", cfg.MetaDBPath)
	assert.Equal(t, "/var/lib/datacat/lake.duckdb", cfg.LakePath)
	assert.Equal(t, 100, cfg.LookupThreshold)
	assert.Empty(t, cfg.Warnings)
}

func TestLoadFromEnv_InvalidThreshold(t *testing.T) {
	t.Setenv("LOOKUP_THRESHOLD", "-5")

	_, err := LoadFromEnv()
	require.Error(t, err)
}

func TestLoadFromEnv_ProductionRequiresLake(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("LAKE_DB_PATH", "")

	_, err := LoadFromEnv()
	require.Error(t, err)
}

func TestSourcesFromEnv(t *testing.T) {
	environ := []string{
		"SOURCE_CLINICAL_FLAVOUR=postgres",
		"SOURCE_CLINICAL_DSN=postgres://localhost/clinical",
		"SOURCE_LEGACY_FLAVOUR=mysql",
		// LEGACY has no DSN: dropped
		"PATH=/usr/bin",
	}

	sources := sourcesFromEnv(environ)
	require.Len(t, sources, 1)
	assert.Equal(t, "clinical", sources[0].Name)
	assert.Equal(t, "postgres", sources[0].Flavour)
	assert.Equal(t, "postgres://localhost/clinical", sources[0].DSN)
}

func TestSlogLevel(t *testing.T) {
	for level, want := range map[string]string{
		"debug": "DEBUG", "info": "INFO", "warn": "WARN", "error": "ERROR", "": "INFO",
	} {
		cfg := &Config{LogLevel: level}
		assert.Equal(t, want, cfg.SlogLevel().String(), "level %q", level)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# comment\nDOTENV_TEST_A=hello\nDOTENV_TEST_B=\"quoted\"\n\nnot a pair\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("DOTENV_TEST_B", "preexisting")
	defer os.Unsetenv("DOTENV_TEST_A") //nolint:errcheck

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "hello", os.Getenv("DOTENV_TEST_A"))
	assert.Equal(t, "preexisting", os.Getenv("DOTENV_TEST_B"), "existing env must win")

	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")), "missing file is not an error")
}
