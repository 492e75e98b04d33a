// Pelagos - Offline-First Marine Navigation Tile Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pelagos

// Package config loads and validates server configuration.
//
// Layering: compiled defaults, then an optional YAML file, then PELAGOS_*
// environment variables. The embedding host points Pelagos at four
// directories (offline archives, styles, tile cache, derived cache) and
// may override the source descriptors wholesale.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/pelagos/internal/source"
)

// EnvPrefix is the environment variable namespace,
// e.g. PELAGOS_SERVER_PORT=8080.
const EnvPrefix = "PELAGOS_"

// DefaultConfigPaths are searched in order; the first existing file wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/pelagos/config.yaml",
}

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig    `koanf:"server"`
	Paths    PathsConfig     `koanf:"paths"`
	Sources  []source.Source `koanf:"sources"`
	Download DownloadConfig  `koanf:"download"`
	Resolver ResolverConfig  `koanf:"resolver"`
	Derived  DerivedConfig   `koanf:"derived"`
	Logging  LoggingConfig   `koanf:"logging"`
}

// ServerConfig covers the HTTP listener.
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port" validate:"gte=1,lte=65535"`
	ReadTimeout time.Duration `koanf:"read_timeout"`
	IdleTimeout time.Duration `koanf:"idle_timeout"`
}

// PathsConfig names the four filesystem roots.
type PathsConfig struct {
	PMTiles string `koanf:"pmtiles" validate:"required"`
	Styles  string `koanf:"styles" validate:"required"`
	Cache   string `koanf:"cache" validate:"required"`
	Derived string `koanf:"derived"`
}

// DownloadConfig covers the sector download orchestrator.
type DownloadConfig struct {
	Utility string `koanf:"utility"`
}

// ResolverConfig covers the tile resolver.
type ResolverConfig struct {
	Freshness              time.Duration `koanf:"freshness"`
	PoolSize               int           `koanf:"pool_size" validate:"gte=1"`
	ProbeInterval          time.Duration `koanf:"probe_interval"`
	ProbeTimeout           time.Duration `koanf:"probe_timeout"`
	OnlineFetchesPerSecond float64       `koanf:"online_fetches_per_second"`
}

// DerivedConfig covers derived-tile generation.
type DerivedConfig struct {
	// Depths is the comma-separable list of bathymetry band boundaries in
	// positive metres.
	Depths   []float64 `koanf:"depths" validate:"dive,gt=0"`
	Overzoom int       `koanf:"overzoom" validate:"gte=0,lte=4"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns the compiled-in defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        3050,
			ReadTimeout: 30 * time.Second,
			IdleTimeout: 120 * time.Second,
		},
		Paths: PathsConfig{
			PMTiles: "/data/pelagos/pmtiles",
			Styles:  "/data/pelagos/styles",
			Cache:   "/data/pelagos/cache",
		},
		Sources: source.Defaults(),
		Download: DownloadConfig{
			Utility: "pmtiles",
		},
		Resolver: ResolverConfig{
			Freshness:              7 * 24 * time.Hour,
			PoolSize:               50,
			ProbeInterval:          10 * time.Second,
			ProbeTimeout:           5 * time.Second,
			OnlineFetchesPerSecond: 20,
		},
		Derived: DerivedConfig{
			Depths:   []float64{2, 5, 10, 20, 50},
			Overzoom: 1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from the given path, or the default search
// paths when path is empty.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		for _, candidate := range DefaultConfigPaths {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// PELAGOS_SERVER_PORT=8080 → server.port
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate applies struct tags plus the cross-field checks tags cannot
// express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Paths.Derived == "" {
		c.Paths.Derived = c.Paths.Cache
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("invalid configuration: at least one source is required")
	}
	for i := 1; i < len(c.Derived.Depths); i++ {
		if c.Derived.Depths[i] <= c.Derived.Depths[i-1] {
			return fmt.Errorf("invalid configuration: bathymetry depths must be ascending")
		}
	}
	return nil
}

// BuildSources validates the descriptors into a lookup collection.
func (c *Config) BuildSources() (*source.Sources, error) {
	return source.NewSources(c.Sources)
}
