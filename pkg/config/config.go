// Package config holds the construction record for a graphcore database.
//
// A Config is built in three layers, each overriding the previous one:
//
//  1. DefaultConfig() declares every default
//  2. LoadFile() reads a YAML file on top of the defaults
//  3. ApplyEnv() applies GRAPHCORE_* environment variables
//
// Example Usage:
//
//	cfg, err := config.LoadFile("graphcore.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	cfg.ApplyEnv()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("Invalid config: %v", err)
//	}
//
// Environment Variables:
//   - GRAPHCORE_DATA_DIR="./data"
//   - GRAPHCORE_IN_MEMORY=true
//   - GRAPHCORE_CACHE_CAPACITY=10000
//   - GRAPHCORE_CACHE_MAX_BYTES=64MB
//   - GRAPHCORE_COMPRESSION=true
//   - GRAPHCORE_SYNC_WRITES=false
//   - GRAPHCORE_MAX_NODES=0
//   - GRAPHCORE_MAX_EDGES=0
//   - GRAPHCORE_LOCK_STRIPES=256
//   - GRAPHCORE_LOG_LEVEL=info
//   - GRAPHCORE_LOG_FORMAT=text
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the explicit construction record of a database. Nothing outside
// this struct changes engine behavior.
type Config struct {
	// DataDir is where BadgerDB keeps its files. Ignored when InMemory is set.
	DataDir string `yaml:"data_dir"`
	// InMemory keeps everything in memory. Data is lost on Close.
	InMemory bool `yaml:"in_memory"`

	// CacheCapacity is the entity cache size in entries. Must be positive.
	CacheCapacity int `yaml:"cache_capacity"`
	// CacheMaxBytes additionally bounds the cache by approximate entity
	// footprint. 0 = entry bound only.
	CacheMaxBytes int64 `yaml:"cache_max_bytes"`

	// CompressionEnabled compresses property maps on disk with s2.
	CompressionEnabled bool `yaml:"compression"`
	// SyncWrites fsyncs every commit.
	SyncWrites bool `yaml:"sync_writes"`

	// MaxNodes and MaxEdges cap the store size; creates beyond them fail with
	// ErrCapacityExceeded. 0 = unlimited.
	MaxNodes int64 `yaml:"max_nodes"`
	MaxEdges int64 `yaml:"max_edges"`

	// LockStripes is the number of per-entity lock stripes. Must be a power
	// of two.
	LockStripes int `yaml:"lock_stripes"`

	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level (debug, info, warn, error)
	Level string `yaml:"level"`
	// Format (json, text)
	Format string `yaml:"format"`
}

// DefaultConfig returns the defaults.
//
//	DataDir:            ./data
//	CacheCapacity:      10000 entries
//	CacheMaxBytes:      0 (entry bound only)
//	CompressionEnabled: true
//	LockStripes:        256
//	Logging:            info, text
func DefaultConfig() *Config {
	return &Config{
		DataDir:            "./data",
		CacheCapacity:      10000,
		CompressionEnabled: true,
		LockStripes:        256,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFile reads a YAML config file over DefaultConfig. Keys missing from the
// file keep their default.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from GRAPHCORE_* environment variables. Unset or
// unparsable variables leave the field unchanged.
func (c *Config) ApplyEnv() *Config {
	c.DataDir = getEnv("GRAPHCORE_DATA_DIR", c.DataDir)
	c.InMemory = getEnvBool("GRAPHCORE_IN_MEMORY", c.InMemory)
	c.CacheCapacity = getEnvInt("GRAPHCORE_CACHE_CAPACITY", c.CacheCapacity)
	if v := os.Getenv("GRAPHCORE_CACHE_MAX_BYTES"); v != "" {
		if n, ok := parseMemorySize(v); ok {
			c.CacheMaxBytes = n
		}
	}
	c.CompressionEnabled = getEnvBool("GRAPHCORE_COMPRESSION", c.CompressionEnabled)
	c.SyncWrites = getEnvBool("GRAPHCORE_SYNC_WRITES", c.SyncWrites)
	c.MaxNodes = getEnvInt64("GRAPHCORE_MAX_NODES", c.MaxNodes)
	c.MaxEdges = getEnvInt64("GRAPHCORE_MAX_EDGES", c.MaxEdges)
	c.LockStripes = getEnvInt("GRAPHCORE_LOCK_STRIPES", c.LockStripes)
	c.Logging.Level = getEnv("GRAPHCORE_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("GRAPHCORE_LOG_FORMAT", c.Logging.Format)
	return c
}

// Validate checks the configuration for errors.
//
// Returns nil if configuration is valid, or an error describing the problem.
func (c *Config) Validate() error {
	if !c.InMemory && c.DataDir == "" {
		return fmt.Errorf("data_dir required unless in_memory is set")
	}
	if c.CacheCapacity <= 0 {
		return fmt.Errorf("invalid cache capacity: %d", c.CacheCapacity)
	}
	if c.CacheMaxBytes < 0 {
		return fmt.Errorf("invalid cache byte bound: %d", c.CacheMaxBytes)
	}
	if c.MaxNodes < 0 || c.MaxEdges < 0 {
		return fmt.Errorf("invalid store limits: nodes=%d edges=%d", c.MaxNodes, c.MaxEdges)
	}
	if c.LockStripes <= 0 || c.LockStripes&(c.LockStripes-1) != 0 {
		return fmt.Errorf("lock stripes must be a power of two, got %d", c.LockStripes)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %q", c.Logging.Format)
	}
	return nil
}

// String returns a one line summary suitable for logging.
//
// Example:
//
//	log.Printf("Starting with config: %s", cfg)
//	// Output: Config{DataDir: ./data, InMemory: false, Cache: 10000 entries/unbounded, Compression: true}
func (c *Config) String() string {
	bytes := "unbounded"
	if c.CacheMaxBytes > 0 {
		bytes = FormatMemorySize(c.CacheMaxBytes)
	}
	return fmt.Sprintf(
		"Config{DataDir: %s, InMemory: %v, Cache: %d entries/%s, Compression: %v}",
		c.DataDir, c.InMemory, c.CacheCapacity, bytes, c.CompressionEnabled,
	)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}

// parseMemorySize parses a human-readable memory size string.
// Supports: "1024", "1KB", "1MB", "1GB", "0", "unlimited"
func parseMemorySize(s string) (int64, bool) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" || s == "0" || s == "UNLIMITED" {
		return 0, true
	}

	s = strings.TrimSuffix(s, "B")

	var multiplier int64 = 1
	switch {
	case strings.HasSuffix(s, "K"):
		multiplier = 1024
		s = strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		multiplier = 1024 * 1024
		s = strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		multiplier = 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "G")
	}

	val, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return val * multiplier, true
}

// FormatMemorySize formats bytes as human-readable string.
func FormatMemorySize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
