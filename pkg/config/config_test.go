package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 50, cfg.MaxGap)
	assert.Equal(t, 1000, cfg.CheckInterval)
	assert.Equal(t, 30, cfg.TopN)
	assert.True(t, cfg.SaveMapping)
	assert.False(t, cfg.SkipUnknown)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "depotmap.yaml")
	doc := `max_gap: 20
skip_unknown: true
output: s3://artifacts/lua
minio:
  endpoint: localhost:9000
  use_ssl: false
search:
  limit: 10
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	t.Setenv("DEPOTMAP_TOP_N", "5")

	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(path)
	v.SetEnvPrefix("DEPOTMAP")
	v.AutomaticEnv()
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.MaxGap)
	assert.True(t, cfg.SkipUnknown)
	assert.Equal(t, "s3://artifacts/lua", cfg.Output)
	assert.Equal(t, 5, cfg.TopN)
	assert.Equal(t, "localhost:9000", cfg.MinIO.Endpoint)
	assert.Equal(t, 10, cfg.Search.Limit)
	assert.Equal(t, DefaultCacheSize, cfg.Search.CacheSize)
	assert.Equal(t, DefaultCatalog, cfg.Catalog)

	opts := cfg.StorageOptions()
	assert.Equal(t, "localhost:9000", opts.MinIO.Endpoint)
}

func TestValidate(t *testing.T) {
	tests := map[string]func(*Config){
		"zero gap":       func(c *Config) { c.MaxGap = 0 },
		"negative gap":   func(c *Config) { c.MaxGap = -3 },
		"zero interval":  func(c *Config) { c.CheckInterval = 0 },
		"zero top":       func(c *Config) { c.TopN = 0 },
		"negative top":   func(c *Config) { c.TopN = -1 },
		"no workers":     func(c *Config) { c.Concurrency = 0 },
		"no depot keys":  func(c *Config) { c.DepotKeys = " " },
		"no catalog":     func(c *Config) { c.Catalog = "" },
		"no output":      func(c *Config) { c.Output = "" },
		"bad log format": func(c *Config) { c.LogFormat = "xml" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("max_gap", 0)

	_, err := Load(v)
	assert.ErrorIs(t, err, ErrInvalid)
}
