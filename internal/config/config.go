// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// SourceConfig describes one named external SQL source that pipelines may
// ingest from.
type SourceConfig struct {
	Name    string // logical name used on the CLI
	Flavour string // postgres, mysql, sqlite, duckdb
	DSN     string
}

// Config holds configuration for the catalog: the SQLite metastore path,
// the DuckDB lake path, and optional named sources.
type Config struct {
	MetaDBPath string // path to the SQLite metadata file
	LakePath   string // path to the DuckDB lake database ("" = in-memory)
	FileRoot   string // directory data files are registered under
	LogLevel   string // debug, info, warn, error (default "info")
	Env        string // "development" (default) or "production"

	// LookupThreshold bounds the row count of a referenced table for it
	// to be treated as a category lookup during schema inference.
	LookupThreshold int

	// Sources are declared as SOURCE_<NAME>_FLAVOUR / SOURCE_<NAME>_DSN
	// environment variable pairs.
	Sources []SourceConfig

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Source returns the named source declaration, if present.
func (c *Config) Source(name string) (SourceConfig, bool) {
	for _, s := range c.Sources {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return SourceConfig{}, false
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		MetaDBPath: os.Getenv("META_DB_PATH"),
		LakePath:   os.Getenv("LAKE_DB_PATH"),
		FileRoot:   os.Getenv("FILE_ROOT"),
		LogLevel:   os.Getenv("LOG_LEVEL"),
		Env:        os.Getenv("ENV"),
	}

	if v := os.Getenv("LOOKUP_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("LOOKUP_THRESHOLD must be a positive integer, got %q", v)
		}
		cfg.LookupThreshold = n
	}

	cfg.Sources = sourcesFromEnv(os.Environ())

	// Defaults
	if cfg.MetaDBPath == "" {
		cfg.MetaDBPath = "datacat_meta.sqlite"
	}
	if cfg.FileRoot == "" {
		cfg.FileRoot = "files"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LookupThreshold == 0 {
		cfg.LookupThreshold = 250
	}
	if cfg.LakePath == "" {
		cfg.Warnings = append(cfg.Warnings, "LAKE_DB_PATH not set — using an in-memory lake, ingested tables will not persist")
	}

	if cfg.IsProduction() && cfg.LakePath == "" {
		return nil, fmt.Errorf("LAKE_DB_PATH must be set in production (ENV=production)")
	}

	return cfg, nil
}

// sourcesFromEnv collects SOURCE_<NAME>_FLAVOUR / SOURCE_<NAME>_DSN pairs.
// A name with only one half of the pair is reported via the DSN check at
// pipeline start, not here.
func sourcesFromEnv(environ []string) []SourceConfig {
	flavours := map[string]string{}
	dsns := map[string]string{}
	for _, kv := range environ {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, "SOURCE_") {
			continue
		}
		switch {
		case strings.HasSuffix(key, "_FLAVOUR"):
			name := strings.TrimSuffix(strings.TrimPrefix(key, "SOURCE_"), "_FLAVOUR")
			flavours[name] = val
		case strings.HasSuffix(key, "_DSN"):
			name := strings.TrimSuffix(strings.TrimPrefix(key, "SOURCE_"), "_DSN")
			dsns[name] = val
		}
	}

	var out []SourceConfig
	for name, flavour := range flavours {
		if dsn, ok := dsns[name]; ok {
			out = append(out, SourceConfig{
				Name:    strings.ToLower(name),
				Flavour: strings.ToLower(flavour),
				DSN:     dsn,
			})
		}
	}
	return out
}

// LoadDotEnv reads a .env file and sets any variables not already in the
// environment. Lines must be in KEY=VALUE format. Comments (#) and blank
// lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.Trim(strings.TrimSpace(val), `"'`)
		if key == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, val)
		}
	}
	return scanner.Err()
}
