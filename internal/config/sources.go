package config

import (
	"fmt"
	"time"
)

// Source names used for rate limits, breakers, budgets and metrics
const (
	SourceRegistry = "registry"
	SourceCCLD     = "ccld"
	SourceCACFP    = "cacfp"
	SourceCDSS     = "cdss"
)

// SourceConfig controls how one remote site is called
type SourceConfig struct {
	Host        string        `yaml:"host"`
	RPS         float64       `yaml:"rps"`          // Requests per second per host
	Burst       int           `yaml:"burst"`        // Burst capacity
	DailyBudget int64         `yaml:"daily_budget"` // Max requests per UTC day, 0 = unlimited
	TTLSecs     int           `yaml:"ttl_secs"`     // Response cache TTL, 0 = no caching
	TimeoutSecs int           `yaml:"timeout_secs"` // Whole-request timeout
	Circuit     CircuitConfig `yaml:"circuit"`
}

// CircuitConfig is the breaker configuration of a source
type CircuitConfig struct {
	FailureThreshold uint32  `yaml:"failure_threshold"` // Consecutive failures to open
	ErrorRatePct     float64 `yaml:"error_rate_pct"`    // Failure percentage to open once min_requests is reached
	MinRequests      uint32  `yaml:"min_requests"`
	HalfOpenRequests uint32  `yaml:"half_open_requests"`
	OpenSecs         int     `yaml:"open_secs"` // Time spent open before probing again
}

// BudgetConfig is shared by every source budget
type BudgetConfig struct {
	WarnThreshold float64 `yaml:"warn_threshold"` // Fraction of the daily budget
	ResetHour     int     `yaml:"reset_hour"`     // UTC hour
}

// DefaultSources returns the settings for the registry, licensing and food program sites
func DefaultSources() map[string]SourceConfig {
	circuit := CircuitConfig{FailureThreshold: 5, ErrorRatePct: 50, MinRequests: 20, HalfOpenRequests: 2, OpenSecs: 30}
	return map[string]SourceConfig{
		SourceRegistry: {Host: "data.chhs.ca.gov", RPS: 1, Burst: 2, TimeoutSecs: 60, Circuit: circuit},
		SourceCCLD:     {Host: "www.ccld.dss.ca.gov", RPS: 5, Burst: 5, DailyBudget: 20000, TTLSecs: 86400, TimeoutSecs: 15, Circuit: circuit},
		SourceCACFP:    {Host: "cacfp.dss.ca.gov", RPS: 2, Burst: 2, DailyBudget: 1000, TTLSecs: 86400, TimeoutSecs: 30, Circuit: circuit},
		SourceCDSS:     {Host: "www.cdss.ca.gov", RPS: 1, Burst: 1, DailyBudget: 100, TimeoutSecs: 30, Circuit: circuit},
	}
}

// Validate checks a single source
func (s *SourceConfig) Validate() error {
	if s.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if s.RPS < 0 {
		return fmt.Errorf("rps cannot be negative, got %g", s.RPS)
	}
	if s.RPS > 0 && s.Burst < 1 {
		return fmt.Errorf("burst must be at least 1 when rps is set, got %d", s.Burst)
	}
	if s.DailyBudget < 0 {
		return fmt.Errorf("daily_budget cannot be negative, got %d", s.DailyBudget)
	}
	if s.TTLSecs < 0 {
		return fmt.Errorf("ttl_secs cannot be negative, got %d", s.TTLSecs)
	}
	if s.TimeoutSecs <= 0 {
		return fmt.Errorf("timeout_secs must be positive, got %d", s.TimeoutSecs)
	}
	if s.Circuit.ErrorRatePct < 0 || s.Circuit.ErrorRatePct > 100 {
		return fmt.Errorf("circuit error_rate_pct must be within 0..100, got %g", s.Circuit.ErrorRatePct)
	}
	return nil
}

// CacheTTL returns the response cache TTL
func (s *SourceConfig) CacheTTL() time.Duration {
	return time.Duration(s.TTLSecs) * time.Second
}

// RequestTimeout returns the whole-request timeout
func (s *SourceConfig) RequestTimeout() time.Duration {
	return time.Duration(s.TimeoutSecs) * time.Second
}

// OpenTimeout returns how long a tripped breaker stays open
func (c *CircuitConfig) OpenTimeout() time.Duration {
	return time.Duration(c.OpenSecs) * time.Second
}
