// Package config defines depotmap's settings, their defaults, and how they are read from viper.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/DrSkyle/depotmap/pkg/storage"
	"github.com/spf13/viper"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("invalid configuration")

// Defaults.
const (
	DefaultDepotKeys     = "depotkeys.json"
	DefaultCatalog       = "steamcmd_appid.json"
	DefaultOutput        = "lua_output"
	DefaultMaxGap        = 50
	DefaultCheckInterval = 1000
	DefaultTopN          = 30
	DefaultConcurrency   = 8
	DefaultLogFormat     = "json"
	DefaultSearchLimit   = 50
	DefaultCacheSize     = 256
)

// Config is the full set of run settings.
type Config struct {
	// DepotKeys and Catalog are dataset locations: plain paths, file://, s3:// or minio:// URLs.
	DepotKeys string `mapstructure:"depot_keys"`
	Catalog   string `mapstructure:"catalog"`
	// Output is the sink location for generated artifacts.
	Output string `mapstructure:"output"`

	MaxGap        int    `mapstructure:"max_gap"`
	CheckInterval int    `mapstructure:"check_interval"`
	SkipUnknown   bool   `mapstructure:"skip_unknown"`
	SaveMapping   bool   `mapstructure:"save_mapping"`
	RulesFile     string `mapstructure:"rules_file"`
	TopN          int    `mapstructure:"top_n"`
	// Concurrency bounds parallel script uploads.
	Concurrency int `mapstructure:"concurrency"`

	LogFormat     string `mapstructure:"log_format"`
	Verbose       bool   `mapstructure:"verbose"`
	OTelEndpoint  string `mapstructure:"otel_endpoint"`
	SkipTelemetry bool   `mapstructure:"skip_telemetry"`

	MinIO  MinIOConfig  `mapstructure:"minio"`
	S3     S3Config     `mapstructure:"s3"`
	Search SearchConfig `mapstructure:"search"`
}

// MinIOConfig holds the connection settings for minio:// locations.
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Region    string `mapstructure:"region"`
}

// S3Config holds the client settings for s3:// locations.
type S3Config struct {
	Region string `mapstructure:"region"`
	// Endpoint overrides the AWS endpoint, e.g. for LocalStack.
	Endpoint string `mapstructure:"endpoint"`
}

// SearchConfig tunes the search command.
type SearchConfig struct {
	Limit     int `mapstructure:"limit"`
	CacheSize int `mapstructure:"cache_size"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		DepotKeys:     DefaultDepotKeys,
		Catalog:       DefaultCatalog,
		Output:        DefaultOutput,
		MaxGap:        DefaultMaxGap,
		CheckInterval: DefaultCheckInterval,
		SaveMapping:   true,
		TopN:          DefaultTopN,
		Concurrency:   DefaultConcurrency,
		LogFormat:     DefaultLogFormat,
		Search: SearchConfig{
			Limit:     DefaultSearchLimit,
			CacheSize: DefaultCacheSize,
		},
	}
}

// SetDefaults registers every default on v so that env vars and config files can override
// individual keys.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("depot_keys", d.DepotKeys)
	v.SetDefault("catalog", d.Catalog)
	v.SetDefault("output", d.Output)
	v.SetDefault("max_gap", d.MaxGap)
	v.SetDefault("check_interval", d.CheckInterval)
	v.SetDefault("skip_unknown", d.SkipUnknown)
	v.SetDefault("save_mapping", d.SaveMapping)
	v.SetDefault("rules_file", d.RulesFile)
	v.SetDefault("top_n", d.TopN)
	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("verbose", d.Verbose)
	v.SetDefault("otel_endpoint", d.OTelEndpoint)
	v.SetDefault("skip_telemetry", d.SkipTelemetry)
	v.SetDefault("minio.endpoint", d.MinIO.Endpoint)
	v.SetDefault("minio.access_key", d.MinIO.AccessKey)
	v.SetDefault("minio.secret_key", d.MinIO.SecretKey)
	v.SetDefault("minio.use_ssl", d.MinIO.UseSSL)
	v.SetDefault("minio.region", d.MinIO.Region)
	v.SetDefault("s3.region", d.S3.Region)
	v.SetDefault("s3.endpoint", d.S3.Endpoint)
	v.SetDefault("search.limit", d.Search.Limit)
	v.SetDefault("search.cache_size", d.Search.CacheSize)
}

// Load reads and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the run cannot honour.
func (c Config) Validate() error {
	var errs []error
	if c.MaxGap <= 0 {
		errs = append(errs, fmt.Errorf("max_gap must be positive, got %d", c.MaxGap))
	}
	if c.CheckInterval <= 0 {
		errs = append(errs, fmt.Errorf("check_interval must be positive, got %d", c.CheckInterval))
	}
	if c.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("concurrency must be positive, got %d", c.Concurrency))
	}
	if c.TopN <= 0 {
		errs = append(errs, fmt.Errorf("top_n must be positive, got %d", c.TopN))
	}
	if strings.TrimSpace(c.DepotKeys) == "" {
		errs = append(errs, errors.New("depot_keys is required"))
	}
	if strings.TrimSpace(c.Catalog) == "" {
		errs = append(errs, errors.New("catalog is required"))
	}
	if strings.TrimSpace(c.Output) == "" {
		errs = append(errs, errors.New("output is required"))
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log_format must be json or text, got %q", c.LogFormat))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// StorageOptions returns the backend settings used to open dataset sources and the sink.
func (c Config) StorageOptions() storage.Options {
	return storage.Options{
		S3Region:   c.S3.Region,
		S3Endpoint: c.S3.Endpoint,
		MinIO: storage.MinIOConfig{
			Endpoint:  c.MinIO.Endpoint,
			Region:    c.MinIO.Region,
			AccessKey: c.MinIO.AccessKey,
			SecretKey: c.MinIO.SecretKey,
			UseSSL:    c.MinIO.UseSSL,
		},
	}
}
