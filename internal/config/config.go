// Package config loads daycarewatch settings from YAML with environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete application configuration
type Config struct {
	Workspace string                  `yaml:"workspace"`
	UserAgent string                  `yaml:"user_agent"`
	Log       LogConfig               `yaml:"log"`
	Sources   map[string]SourceConfig `yaml:"sources"`
	Budget    BudgetConfig            `yaml:"budget"`
	Cache     CacheConfig             `yaml:"cache"`
	Database  DatabaseConfig          `yaml:"database"`
	Server    ServerConfig            `yaml:"server"`
	Analysis  AnalysisConfig          `yaml:"analysis"`
	Networks  NetworksConfig          `yaml:"networks"`
}

// LogConfig controls zerolog output
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// CacheConfig selects the HTTP response cache. An empty RedisAddr keeps it in memory.
type CacheConfig struct {
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`
	Prefix    string `yaml:"prefix"`
	MaxBytes  int    `yaml:"max_bytes"` // Responses larger than this are not cached
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	Enabled         bool          `yaml:"enabled"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
}

// ServerConfig controls the local HTTP surface
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AnalysisConfig holds the screening thresholds
type AnalysisConfig struct {
	CapacityThreshold   int      `yaml:"capacity_threshold"`
	Counties            []string `yaml:"counties"`
	InspectMinRisk      int      `yaml:"inspect_min_risk"`
	InspectMaxIndex     int      `yaml:"inspect_max_index"`
	InspectLimit        int      `yaml:"inspect_limit"` // 0 = every eligible facility
	CACFPMatchThreshold float64  `yaml:"cacfp_match_threshold"`
	Concurrency         int      `yaml:"concurrency"`
}

// NetworksConfig controls the map views
type NetworksConfig struct {
	GazetteerPath string `yaml:"gazetteer_path"`
	Seed          uint64 `yaml:"seed"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Workspace: ".",
		UserAgent: "daycarewatch/1.0 (+public records research)",
		Log:       LogConfig{Level: "info"},
		Sources:   DefaultSources(),
		Budget:    BudgetConfig{WarnThreshold: 0.8, ResetHour: 0},
		Cache:     CacheConfig{Prefix: "daycarewatch:", MaxBytes: 5 << 20},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			QueryTimeout:    30 * time.Second,
		},
		Server: ServerConfig{Host: "127.0.0.1", Port: 8080, ReadTimeout: 15 * time.Second, WriteTimeout: 30 * time.Second},
		Analysis: AnalysisConfig{
			CapacityThreshold:   14,
			InspectMinRisk:      7,
			InspectMaxIndex:     4,
			CACFPMatchThreshold: 0.85,
			Concurrency:         4,
		},
		Networks: NetworksConfig{Seed: 42},
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	// sources only partially given in YAML inherit the remaining defaults
	for name, def := range DefaultSources() {
		if _, ok := cfg.Sources[name]; !ok {
			if cfg.Sources == nil {
				cfg.Sources = make(map[string]SourceConfig)
			}
			cfg.Sources[name] = def
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DAYCAREWATCH_WORKSPACE"); v != "" {
		cfg.Workspace = v
	}
	if v := os.Getenv("DAYCAREWATCH_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("DAYCAREWATCH_JSON_LOGS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Log.JSON = b
		}
	}
	if v := os.Getenv("DAYCAREWATCH_COUNTIES"); v != "" {
		cfg.Analysis.Counties = splitList(v)
	}
	if v := os.Getenv("DAYCAREWATCH_GAZETTEER"); v != "" {
		cfg.Networks.GazetteerPath = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}

	if v := os.Getenv("PG_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("PG_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Database.Enabled = b
		}
	}
	if v := os.Getenv("PG_MAX_OPEN_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Database.MaxOpenConns = n
		}
	}
	if v := os.Getenv("PG_MAX_IDLE_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Database.MaxIdleConns = n
		}
	}
	if v := os.Getenv("PG_QUERY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Database.QueryTimeout = d
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate ensures the configuration is usable
func (c *Config) Validate() error {
	if c.Workspace == "" {
		return fmt.Errorf("workspace cannot be empty")
	}
	if c.Budget.WarnThreshold <= 0 || c.Budget.WarnThreshold > 1 {
		return fmt.Errorf("budget warn_threshold must be between 0 and 1, got %g", c.Budget.WarnThreshold)
	}
	if c.Budget.ResetHour < 0 || c.Budget.ResetHour > 23 {
		return fmt.Errorf("budget reset_hour must be between 0 and 23, got %d", c.Budget.ResetHour)
	}
	for name, s := range c.Sources {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("source %s: %w", name, err)
		}
	}

	if c.Database.Enabled && c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required when database is enabled")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 || c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("max_idle_conns must be within 0..max_open_conns")
	}
	if c.Database.QueryTimeout <= 0 {
		return fmt.Errorf("query_timeout must be positive")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be within 1..65535, got %d", c.Server.Port)
	}

	a := c.Analysis
	if a.CapacityThreshold <= 0 {
		return fmt.Errorf("capacity_threshold must be positive, got %d", a.CapacityThreshold)
	}
	if a.InspectMaxIndex < 0 {
		return fmt.Errorf("inspect_max_index cannot be negative, got %d", a.InspectMaxIndex)
	}
	if a.CACFPMatchThreshold <= 0 || a.CACFPMatchThreshold > 1 {
		return fmt.Errorf("cacfp_match_threshold must be within (0, 1], got %g", a.CACFPMatchThreshold)
	}
	if a.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", a.Concurrency)
	}
	return nil
}

// Source returns the configuration of a named source
func (c *Config) Source(name string) (SourceConfig, bool) {
	s, ok := c.Sources[name]
	return s, ok
}
