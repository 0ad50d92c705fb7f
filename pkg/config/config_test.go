package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "./data", cfg.DataDir)
	assert.True(t, cfg.CompressionEnabled)
	assert.Equal(t, 10000, cfg.CacheCapacity)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graphcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /var/lib/graphcore
cache_capacity: 500
compression: false
logging:
  level: debug
`), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/graphcore", cfg.DataDir)
	assert.Equal(t, 500, cfg.CacheCapacity)
	assert.False(t, cfg.CompressionEnabled)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// untouched keys keep defaults
	assert.Equal(t, 256, cfg.LockStripes)
	assert.Equal(t, "text", cfg.Logging.Format)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("GRAPHCORE_DATA_DIR", "/tmp/g")
	t.Setenv("GRAPHCORE_IN_MEMORY", "yes")
	t.Setenv("GRAPHCORE_CACHE_CAPACITY", "42")
	t.Setenv("GRAPHCORE_CACHE_MAX_BYTES", "64MB")
	t.Setenv("GRAPHCORE_MAX_NODES", "1000")
	t.Setenv("GRAPHCORE_LOCK_STRIPES", "not-a-number")

	cfg := DefaultConfig().ApplyEnv()
	assert.Equal(t, "/tmp/g", cfg.DataDir)
	assert.True(t, cfg.InMemory)
	assert.Equal(t, 42, cfg.CacheCapacity)
	assert.Equal(t, int64(64*1024*1024), cfg.CacheMaxBytes)
	assert.Equal(t, int64(1000), cfg.MaxNodes)
	assert.Equal(t, 256, cfg.LockStripes, "unparsable value keeps previous")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no data dir", func(c *Config) { c.DataDir = "" }},
		{"zero cache", func(c *Config) { c.CacheCapacity = 0 }},
		{"negative bytes", func(c *Config) { c.CacheMaxBytes = -1 }},
		{"negative limit", func(c *Config) { c.MaxEdges = -1 }},
		{"stripes not power of two", func(c *Config) { c.LockStripes = 100 }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := DefaultConfig()
	cfg.DataDir = ""
	cfg.InMemory = true
	assert.NoError(t, cfg.Validate())
}

func TestParseMemorySize(t *testing.T) {
	tests := []struct {
		input string
		want  int64
		ok    bool
	}{
		{"1024", 1024, true},
		{"1024b", 1024, true},
		{"1KB", 1024, true},
		{"512K", 512 * 1024, true},
		{"64MB", 64 * 1024 * 1024, true},
		{"2G", 2 * 1024 * 1024 * 1024, true},
		{"unlimited", 0, true},
		{"lots", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseMemorySize(tt.input)
		assert.Equal(t, tt.ok, ok, tt.input)
		assert.Equal(t, tt.want, got, tt.input)
	}
}

func TestString(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CacheMaxBytes = 2 * 1024 * 1024
	assert.Equal(t, "Config{DataDir: ./data, InMemory: false, Cache: 10000 entries/2.00 MB, Compression: true}", cfg.String())
}
