// Package config loads and validates searchrelay configuration.
//
// Precedence, lowest to highest: built-in defaults, project config file
// (.searchrelay.yaml in the working directory), environment variables
// (SEARCHRELAY_*).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete searchrelay configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Backend   BackendConfig   `yaml:"backend" json:"backend"`
	Search    SearchConfig    `yaml:"search" json:"search"`
	Cache     CacheConfig     `yaml:"cache" json:"cache"`
	Graph     GraphConfig     `yaml:"graph" json:"graph"`
	Server    ServerConfig    `yaml:"server" json:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
}

// BackendConfig configures the search backend collaborator.
type BackendConfig struct {
	// Kind selects the backend adapter. "embedded" runs an in-process
	// bleve + HNSW backend, useful for development and tests.
	Kind string `yaml:"kind" json:"kind"`

	// IndexPath is the on-disk location for the embedded backend's index.
	// Empty means in-memory.
	IndexPath string `yaml:"index_path" json:"index_path"`

	// Dimensions is the embedding dimension used by the embedded backend.
	Dimensions int `yaml:"dimensions" json:"dimensions"`
}

// SearchConfig configures hybrid search parameters.
type SearchConfig struct {
	// BM25Weight is the weight for the lexical channel.
	BM25Weight float64 `yaml:"bm25_weight" json:"bm25_weight"`

	// VectorWeight is the weight for the vector channel.
	VectorWeight float64 `yaml:"vector_weight" json:"vector_weight"`

	// OverfetchFactor multiplies max_results for per-channel retrieval,
	// leaving the fusion step room to reorder.
	OverfetchFactor int `yaml:"overfetch_factor" json:"overfetch_factor"`

	// DefaultMaxResults is used when a query does not set max_results.
	DefaultMaxResults int `yaml:"default_max_results" json:"default_max_results"`

	// RequestTimeout bounds a single search request end to end.
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// CacheConfig configures the query result cache.
type CacheConfig struct {
	// TTL is the freshness window for cached results.
	TTL time.Duration `yaml:"ttl" json:"ttl"`

	// Capacity bounds the number of cached entries. Oldest-inserted
	// entries are evicted first once exceeded.
	Capacity int `yaml:"capacity" json:"capacity"`

	// DependencyResultThreshold: dependency-expanded result sets larger
	// than this are not cached.
	DependencyResultThreshold int `yaml:"dependency_result_threshold" json:"dependency_result_threshold"`
}

// GraphConfig bounds dependency graph expansion.
type GraphConfig struct {
	// MaxNodes caps the total node count in graph mode.
	MaxNodes int `yaml:"max_nodes" json:"max_nodes"`

	// MaxDepth caps expansion depth in graph mode.
	MaxDepth int `yaml:"max_depth" json:"max_depth"`

	// LookupCacheSize sizes the LRU memoizing definition lookups.
	LookupCacheSize int `yaml:"lookup_cache_size" json:"lookup_cache_size"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
	PIDFile   string `yaml:"pid_file" json:"pid_file"`
}

// TelemetryConfig configures local query telemetry.
type TelemetryConfig struct {
	// Enabled turns on in-memory query metrics.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// DBPath is the optional SQLite file persisting aggregated metrics.
	// Empty disables persistence.
	DBPath string `yaml:"db_path" json:"db_path"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Backend: BackendConfig{
			Kind:       "embedded",
			Dimensions: 256,
		},
		Search: SearchConfig{
			BM25Weight:        0.6,
			VectorWeight:      0.4,
			OverfetchFactor:   2,
			DefaultMaxResults: 10,
			RequestTimeout:    10 * time.Second,
		},
		Cache: CacheConfig{
			TTL:                       5 * time.Minute,
			Capacity:                  256,
			DependencyResultThreshold: 5,
		},
		Graph: GraphConfig{
			MaxNodes:        25,
			MaxDepth:        3,
			LookupCacheSize: 512,
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
			PIDFile:   defaultPIDPath(),
		},
		Telemetry: TelemetryConfig{
			Enabled: true,
		},
	}
}

// ConfigFileName is the project config file searched for in the working directory.
const ConfigFileName = ".searchrelay.yaml"

func defaultPIDPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".searchrelay", "serve.pid")
	}
	return filepath.Join(home, ".searchrelay", "serve.pid")
}

// Load builds the effective configuration for the given directory.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ConfigPath returns the project config path under dir, whether or not it exists.
func ConfigPath(dir string) string {
	return filepath.Join(dir, ConfigFileName)
}

// loadFromFile merges .searchrelay.yaml from dir if present.
// A missing file is fine - defaults apply.
func (c *Config) loadFromFile(dir string) error {
	path := ConfigPath(dir)
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return c.loadYAML(path)
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Backend.Kind != "" {
		c.Backend.Kind = other.Backend.Kind
	}
	if other.Backend.IndexPath != "" {
		c.Backend.IndexPath = other.Backend.IndexPath
	}
	if other.Backend.Dimensions > 0 {
		c.Backend.Dimensions = other.Backend.Dimensions
	}

	if other.Search.BM25Weight > 0 {
		c.Search.BM25Weight = other.Search.BM25Weight
	}
	if other.Search.VectorWeight > 0 {
		c.Search.VectorWeight = other.Search.VectorWeight
	}
	if other.Search.OverfetchFactor > 0 {
		c.Search.OverfetchFactor = other.Search.OverfetchFactor
	}
	if other.Search.DefaultMaxResults > 0 {
		c.Search.DefaultMaxResults = other.Search.DefaultMaxResults
	}
	if other.Search.RequestTimeout > 0 {
		c.Search.RequestTimeout = other.Search.RequestTimeout
	}

	if other.Cache.TTL > 0 {
		c.Cache.TTL = other.Cache.TTL
	}
	if other.Cache.Capacity > 0 {
		c.Cache.Capacity = other.Cache.Capacity
	}
	if other.Cache.DependencyResultThreshold > 0 {
		c.Cache.DependencyResultThreshold = other.Cache.DependencyResultThreshold
	}

	if other.Graph.MaxNodes > 0 {
		c.Graph.MaxNodes = other.Graph.MaxNodes
	}
	if other.Graph.MaxDepth > 0 {
		c.Graph.MaxDepth = other.Graph.MaxDepth
	}
	if other.Graph.LookupCacheSize > 0 {
		c.Graph.LookupCacheSize = other.Graph.LookupCacheSize
	}

	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
	if other.Server.PIDFile != "" {
		c.Server.PIDFile = other.Server.PIDFile
	}

	if other.Telemetry.DBPath != "" {
		c.Telemetry.DBPath = other.Telemetry.DBPath
	}
}

// applyEnvOverrides applies SEARCHRELAY_* environment variables, the
// highest-precedence configuration source.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SEARCHRELAY_BM25_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Search.BM25Weight = f
		}
	}
	if v := os.Getenv("SEARCHRELAY_VECTOR_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Search.VectorWeight = f
		}
	}
	if v := os.Getenv("SEARCHRELAY_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Cache.TTL = d
		}
	}
	if v := os.Getenv("SEARCHRELAY_CACHE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Cache.Capacity = n
		}
	}
	if v := os.Getenv("SEARCHRELAY_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Search.RequestTimeout = d
		}
	}
	if v := os.Getenv("SEARCHRELAY_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("SEARCHRELAY_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
	if v := os.Getenv("SEARCHRELAY_TELEMETRY_DB"); v != "" {
		c.Telemetry.DBPath = v
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Search.BM25Weight < 0 {
		return fmt.Errorf("bm25_weight must be non-negative, got %f", c.Search.BM25Weight)
	}
	if c.Search.VectorWeight < 0 {
		return fmt.Errorf("vector_weight must be non-negative, got %f", c.Search.VectorWeight)
	}
	if c.Search.BM25Weight == 0 && c.Search.VectorWeight == 0 {
		return fmt.Errorf("at least one of bm25_weight and vector_weight must be positive")
	}
	if c.Search.OverfetchFactor < 1 {
		return fmt.Errorf("overfetch_factor must be at least 1, got %d", c.Search.OverfetchFactor)
	}
	if c.Search.DefaultMaxResults < 1 || c.Search.DefaultMaxResults > 50 {
		return fmt.Errorf("default_max_results must be between 1 and 50, got %d", c.Search.DefaultMaxResults)
	}

	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive, got %s", c.Cache.TTL)
	}
	if c.Cache.Capacity < 1 {
		return fmt.Errorf("cache capacity must be at least 1, got %d", c.Cache.Capacity)
	}

	if c.Graph.MaxNodes < 1 {
		return fmt.Errorf("graph max_nodes must be at least 1, got %d", c.Graph.MaxNodes)
	}
	if c.Graph.MaxDepth < 1 {
		return fmt.Errorf("graph max_depth must be at least 1, got %d", c.Graph.MaxDepth)
	}

	validBackends := map[string]bool{"embedded": true}
	if !validBackends[strings.ToLower(c.Backend.Kind)] {
		return fmt.Errorf("backend.kind must be 'embedded', got %s", c.Backend.Kind)
	}

	validTransports := map[string]bool{"stdio": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be 'stdio', got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
