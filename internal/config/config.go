package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the top-level configuration for Crosstab.
type Config struct {
	Server ServerConfig `koanf:"server"`
	Engine EngineConfig `koanf:"engine"`
	Pivot  PivotConfig  `koanf:"pivot"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port int    `koanf:"port"`
	Host string `koanf:"host"`
	Mode string `koanf:"mode"` // "debug" or "release"
}

// EngineConfig holds the columnar engine connection settings.
type EngineConfig struct {
	Driver       string `koanf:"driver"` // "duckdb" or "postgres"
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
}

// PivotConfig holds the result cache and query ceiling settings.
// Durations are parsed in main.
type PivotConfig struct {
	CacheTTL           string `koanf:"cache_ttl"`
	SweepInterval      string `koanf:"sweep_interval"`
	CacheMaxEntries    int    `koanf:"cache_max_entries"`
	MaxRowsPerQuery    int    `koanf:"max_rows_per_query"`
	MaxColumnsPerQuery int    `koanf:"max_columns_per_query"`
	FieldValuesLimit   int    `koanf:"field_values_limit"`
}

// Load loads the configuration from the given file path and environment variables.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	defaults := map[string]interface{}{
		"server.port":                 8080,
		"server.host":                 "0.0.0.0",
		"server.mode":                 "release",
		"engine.driver":               "duckdb",
		"engine.dsn":                  "crosstab.db",
		"engine.max_open_conns":       25,
		"engine.max_idle_conns":       25,
		"pivot.cache_ttl":             "30m",
		"pivot.sweep_interval":        "5m",
		"pivot.cache_max_entries":     100,
		"pivot.max_rows_per_query":    100000,
		"pivot.max_columns_per_query": 1000,
		"pivot.field_values_limit":    100,
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
	// CROSSTAB_SERVER__PORT=9090 overrides server.port
	if err := k.Load(env.Provider("CROSSTAB_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "CROSSTAB_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
