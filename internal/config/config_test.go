package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, "embedded", cfg.Backend.Kind)
	assert.Equal(t, 0.6, cfg.Search.BM25Weight)
	assert.Equal(t, 0.4, cfg.Search.VectorWeight)
	assert.Equal(t, 2, cfg.Search.OverfetchFactor)
	assert.Equal(t, 10, cfg.Search.DefaultMaxResults)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 256, cfg.Cache.Capacity)
	assert.Equal(t, 5, cfg.Cache.DependencyResultThreshold)
	assert.Equal(t, "stdio", cfg.Server.Transport)

	require.NoError(t, cfg.Validate())
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, NewConfig().Search, cfg.Search)
}

func TestLoad_MergesProjectFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
search:
  bm25_weight: 0.7
  vector_weight: 0.3
cache:
  ttl: 30s
  capacity: 16
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 0.7, cfg.Search.BM25Weight)
	assert.Equal(t, 0.3, cfg.Search.VectorWeight)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, 16, cfg.Cache.Capacity)
	// Untouched fields keep defaults.
	assert.Equal(t, 2, cfg.Search.OverfetchFactor)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	yaml := "search:\n  bm25_weight: 0.7\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(yaml), 0o644))

	t.Setenv("SEARCHRELAY_BM25_WEIGHT", "0.9")
	t.Setenv("SEARCHRELAY_CACHE_TTL", "90s")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 0.9, cfg.Search.BM25Weight)
	assert.Equal(t, 90*time.Second, cfg.Cache.TTL)
}

func TestLoad_InvalidYAMLFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("search: [not a map"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative bm25 weight", func(c *Config) { c.Search.BM25Weight = -0.1 }},
		{"both weights zero", func(c *Config) { c.Search.BM25Weight = 0; c.Search.VectorWeight = 0 }},
		{"overfetch below one", func(c *Config) { c.Search.OverfetchFactor = 0 }},
		{"default max results too high", func(c *Config) { c.Search.DefaultMaxResults = 51 }},
		{"zero ttl", func(c *Config) { c.Cache.TTL = 0 }},
		{"zero capacity", func(c *Config) { c.Cache.Capacity = 0 }},
		{"zero graph nodes", func(c *Config) { c.Graph.MaxNodes = 0 }},
		{"unknown backend", func(c *Config) { c.Backend.Kind = "quantum" }},
		{"unknown transport", func(c *Config) { c.Server.Transport = "carrier-pigeon" }},
		{"unknown log level", func(c *Config) { c.Server.LogLevel = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)

	cfg := NewConfig()
	cfg.Search.BM25Weight = 0.55
	cfg.Search.VectorWeight = 0.45
	require.NoError(t, cfg.WriteYAML(path))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 0.55, loaded.Search.BM25Weight)
	assert.Equal(t, 0.45, loaded.Search.VectorWeight)
}
