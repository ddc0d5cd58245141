// Package config loads the runtime settings of nz-ocean-map.
//
// Settings are layered, lowest precedence first:
//  1. built-in defaults
//  2. an optional YAML config file (--config, or nz-ocean-map.yaml in the
//     working directory or $HOME/.config/nz-ocean-map)
//  3. an optional .env file in the working directory
//  4. NZMAP_* environment variables (NZMAP_WMTS_ENDPOINT → wmts.endpoint)
//
// Per-run choices (data type, zoom, day offset) are CLI flags and are not
// part of this package.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "NZMAP"

// DefaultEndpoint is the Copernicus Marine WMTS KVP endpoint.
const DefaultEndpoint = "https://wmts.marine.copernicus.eu/teroWmts"

// Config holds all application configuration.
type Config struct {
	WMTS    WMTSConfig    `mapstructure:"wmts"`
	Region  RegionConfig  `mapstructure:"region"`
	Output  OutputConfig  `mapstructure:"output"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Log     LogConfig     `mapstructure:"log"`
}

type WMTSConfig struct {
	Endpoint      string        `mapstructure:"endpoint"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Concurrency   int           `mapstructure:"concurrency"`
	UserAgent     string        `mapstructure:"user_agent"`
	TileMatrixSet string        `mapstructure:"tile_matrix_set"`
	TileSize      int           `mapstructure:"tile_size"`
}

// RegionConfig is the geographic bounding box in decimal degrees.
// The defaults cover New Zealand's exclusive economic zone north of
// Stewart Island.
type RegionConfig struct {
	MinLon float64 `mapstructure:"min_lon"`
	MaxLon float64 `mapstructure:"max_lon"`
	MinLat float64 `mapstructure:"min_lat"`
	MaxLat float64 `mapstructure:"max_lat"`
}

type OutputConfig struct {
	Root string `mapstructure:"root"`
}

type CatalogConfig struct {
	// File optionally replaces entries of the built-in layer catalog.
	// YAML (.yaml/.yml) and JSON with comments (.json/.jsonc) are accepted.
	File string `mapstructure:"file"`
}

type MetricsConfig struct {
	// File is a Prometheus textfile-collector path. Empty disables metrics.
	File string `mapstructure:"file"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from defaults, an optional file and the
// environment. An explicit cfgFile that does not exist is an error;
// the implicit search locations are allowed to be missing.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		v.SetConfigName("nz-ocean-map")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "nz-ocean-map"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	// .env never overrides variables already present in the environment.
	_ = godotenv.Load()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("wmts.endpoint", DefaultEndpoint)
	v.SetDefault("wmts.timeout", 30*time.Second)
	v.SetDefault("wmts.concurrency", 4)
	v.SetDefault("wmts.user_agent", "nz-ocean-map/dev")
	v.SetDefault("wmts.tile_matrix_set", "EPSG:4326")
	v.SetDefault("wmts.tile_size", 256)

	v.SetDefault("region.min_lon", 166.0)
	v.SetDefault("region.max_lon", 178.5)
	v.SetDefault("region.min_lat", -46.4)
	v.SetDefault("region.max_lat", -33.8)

	v.SetDefault("output.root", ".")
	v.SetDefault("catalog.file", "")
	v.SetDefault("metrics.file", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate checks that the configuration is usable and reports every
// problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.WMTS.Endpoint == "" {
		errs = append(errs, "wmts.endpoint is required")
	} else if !strings.HasPrefix(c.WMTS.Endpoint, "http://") && !strings.HasPrefix(c.WMTS.Endpoint, "https://") {
		errs = append(errs, fmt.Sprintf("wmts.endpoint must be an http(s) URL, got %q", c.WMTS.Endpoint))
	}
	if c.WMTS.Timeout <= 0 {
		errs = append(errs, "wmts.timeout must be positive")
	}
	if c.WMTS.Concurrency < 1 || c.WMTS.Concurrency > 32 {
		errs = append(errs, fmt.Sprintf("wmts.concurrency must be 1-32, got %d", c.WMTS.Concurrency))
	}
	if c.WMTS.TileSize <= 0 {
		errs = append(errs, fmt.Sprintf("wmts.tile_size must be positive, got %d", c.WMTS.TileSize))
	}
	if c.WMTS.TileMatrixSet == "" {
		errs = append(errs, "wmts.tile_matrix_set is required")
	}
	if c.Region.MinLon >= c.Region.MaxLon {
		errs = append(errs, "region.min_lon must be less than region.max_lon")
	}
	if c.Region.MinLat >= c.Region.MaxLat {
		errs = append(errs, "region.min_lat must be less than region.max_lat")
	}
	if c.Output.Root == "" {
		errs = append(errs, "output.root is required")
	}
	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		errs = append(errs, err.Error())
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format must be text or json, got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ParseLogLevel maps a level name onto slog.Level.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log.level %q (allowed: debug, info, warn, error)", s)
	}
}
