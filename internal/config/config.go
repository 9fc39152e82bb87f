package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the top-level configuration for the monitor.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Store     StoreConfig     `koanf:"store"`
	Upstream  UpstreamConfig  `koanf:"upstream"`
	Collector CollectorConfig `koanf:"collector"`
	Resolver  ResolverConfig  `koanf:"resolver"`
	Retention RetentionConfig `koanf:"retention"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port int    `koanf:"port"`
	Host string `koanf:"host"`
	Mode string `koanf:"mode"` // "debug" or "release"
}

// Addr joins host and port into a listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StoreConfig holds the cache storage settings.
type StoreConfig struct {
	DataDir string `koanf:"data_dir"`
}

// UpstreamConfig holds the hydrology API client settings.
type UpstreamConfig struct {
	BaseURL string `koanf:"base_url"`
	Timeout string `koanf:"timeout"` // parsed as time.Duration in main
}

// CollectorConfig holds the periodic collection settings.
type CollectorConfig struct {
	Enabled        bool     `koanf:"enabled"`
	Stations       []string `koanf:"stations"`
	DefaultStation string   `koanf:"default_station"`
	Interval       string   `koanf:"interval"` // parsed as time.Duration in main
	Concurrency    int      `koanf:"concurrency"`
}

// ResolverConfig holds the freshness and fallback settings.
type ResolverConfig struct {
	LookbackDays int    `koanf:"lookback_days"`
	MemoTTL      string `koanf:"memo_ttl"` // parsed as time.Duration in main
}

// RetentionConfig holds the nightly archive sweep settings.
type RetentionConfig struct {
	MaxAgeDays int    `koanf:"max_age_days"`
	SweepAt    string `koanf:"sweep_at"` // "HH:MM" in the reference zone; empty disables
}

// EffectiveInterval returns the collection cadence, defaulting when unset or
// unparsable values would otherwise stall the collector.
func (c CollectorConfig) EffectiveInterval() time.Duration {
	if d, err := time.ParseDuration(c.Interval); err == nil && d > 0 {
		return d
	}
	return time.Hour
}

// Load loads the configuration from the given file path and environment variables.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	defaults := map[string]interface{}{
		"server.port":               8799,
		"server.host":               "0.0.0.0",
		"server.mode":               "release",
		"store.data_dir":            "./data",
		"upstream.base_url":         "https://hyd-app-db.rid.go.th/webservice/getGroupHourlyWaterLevelReportAllByDate.ashx",
		"upstream.timeout":          "15s",
		"collector.enabled":         true,
		"collector.stations":        []string{"P.1", "P.67", "P.75", "P.92", "P.93"},
		"collector.default_station": "P.1",
		"collector.interval":        "1h",
		"collector.concurrency":     4,
		"resolver.lookback_days":    7,
		"resolver.memo_ttl":         "5m",
		"retention.max_age_days":    7,
		"retention.sweep_at":        "02:00",
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	// 2. Load from file
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// 3. Load from Environment Variables
	// WLM_SERVER__PORT=9090 overrides server.port
	if err := k.Load(env.Provider("WLM_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "WLM_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
