// Package config provides configuration loading and validation for the engine.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Config is the process-wide configuration, constructed once at startup.
// No component reads the environment directly; everything flows through here.
type Config struct {
	// Server
	Port        int    `json:"port,omitempty"`
	DatabaseURL string `json:"database_url,omitempty"`
	Dev         bool   `json:"dev,omitempty"` // in-memory store, no Postgres

	// LLM
	APIKey             string  `json:"api_key,omitempty"`
	Model              string  `json:"model,omitempty"`
	Temperature        float64 `json:"temperature,omitempty"`
	MaxTokens          int     `json:"max_tokens,omitempty"`
	CallTimeoutMs      int     `json:"call_timeout_ms,omitempty"`
	BreakerFailsToOpen int     `json:"breaker_failures_to_open,omitempty"`
	BreakerOpenMs      int     `json:"breaker_open_ms,omitempty"`
	GatewayMaxInFlight int     `json:"gateway_max_in_flight,omitempty"`
	GatewayCacheTTLMs  int     `json:"gateway_cache_ttl_ms,omitempty"`

	// Sessions
	DefaultMaxTurns           int `json:"default_max_turns,omitempty"`
	DefaultMaxDurationMinutes int `json:"default_max_duration_minutes,omitempty"`
	FollowUpPerParent         int `json:"follow_up_per_parent,omitempty"`
}

// Defaults returns the built-in configuration values.
func Defaults() Config {
	return Config{
		Port:                      8080,
		Model:                     "gemini-2.0-flash",
		Temperature:               0.4,
		MaxTokens:                 2048,
		CallTimeoutMs:             20000,
		BreakerFailsToOpen:        3,
		BreakerOpenMs:             60000,
		GatewayMaxInFlight:        64,
		GatewayCacheTTLMs:         5 * 60 * 1000,
		DefaultMaxTurns:           10,
		DefaultMaxDurationMinutes: 45,
		FollowUpPerParent:         2,
	}
}

// Load builds the configuration from an optional JSON file plus environment
// variables, with environment taking precedence over the file and defaults
// filling the rest.
func Load(path string) (*Config, error) {
	cfg := Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	cfg.applyEnv()
	merged := cfg.MergeWithDefaults(Defaults())
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return &merged, nil
}

// applyEnv overlays environment variables onto the config.
func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
	if v := os.Getenv("DEV_MODE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Dev = b
		}
	}
}

// MergeWithDefaults returns a new Config with zero-valued fields filled
// from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if result.Port == 0 {
		result.Port = defaults.Port
	}
	if result.Model == "" {
		result.Model = defaults.Model
	}
	if result.Temperature == 0 {
		result.Temperature = defaults.Temperature
	}
	if result.MaxTokens == 0 {
		result.MaxTokens = defaults.MaxTokens
	}
	if result.CallTimeoutMs == 0 {
		result.CallTimeoutMs = defaults.CallTimeoutMs
	}
	if result.BreakerFailsToOpen == 0 {
		result.BreakerFailsToOpen = defaults.BreakerFailsToOpen
	}
	if result.BreakerOpenMs == 0 {
		result.BreakerOpenMs = defaults.BreakerOpenMs
	}
	if result.GatewayMaxInFlight == 0 {
		result.GatewayMaxInFlight = defaults.GatewayMaxInFlight
	}
	if result.GatewayCacheTTLMs == 0 {
		result.GatewayCacheTTLMs = defaults.GatewayCacheTTLMs
	}
	if result.DefaultMaxTurns == 0 {
		result.DefaultMaxTurns = defaults.DefaultMaxTurns
	}
	if result.DefaultMaxDurationMinutes == 0 {
		result.DefaultMaxDurationMinutes = defaults.DefaultMaxDurationMinutes
	}
	if result.FollowUpPerParent == 0 {
		result.FollowUpPerParent = defaults.FollowUpPerParent
	}

	return result
}

// Validate checks that the configuration has usable values.
func (c *Config) Validate() error {
	if c.Temperature < 0 || c.Temperature > 1 {
		return fmt.Errorf("config error: 'temperature' must be in [0,1], got %v", c.Temperature)
	}
	if c.DefaultMaxTurns < 1 {
		return fmt.Errorf("config error: 'default_max_turns' must be positive")
	}
	if c.DefaultMaxDurationMinutes < 1 {
		return fmt.Errorf("config error: 'default_max_duration_minutes' must be positive")
	}
	if c.GatewayMaxInFlight < 1 {
		return fmt.Errorf("config error: 'gateway_max_in_flight' must be positive")
	}
	if !c.Dev && c.DatabaseURL == "" {
		return fmt.Errorf("config error: 'database_url' is required outside dev mode")
	}
	return nil
}

// FollowUpSessionBudget returns the aggregate follow-up cap for a session
// with the given turn limit.
func (c *Config) FollowUpSessionBudget(maxTurns int) int {
	budget := maxTurns / 3
	if budget < 1 {
		budget = 1
	}
	return budget
}
