// Package config holds all vigil configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"vigil/internal/dispatch"
	"vigil/internal/energy"
	"vigil/internal/focus"
	"vigil/internal/logging"
	"vigil/internal/quorum"
	"vigil/internal/safety"
)

// Config holds all vigil configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Engine   EngineConfig   `yaml:"engine"`
	Rules    []quorum.Rule  `yaml:"rules"`
	Safety   SafetyConfig   `yaml:"safety"`
	Budget   BudgetConfig   `yaml:"budget"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Digest   DigestConfig   `yaml:"digest"`
	Focus    FocusConfig    `yaml:"focus"`
	Watch    WatchConfig    `yaml:"watch"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// EngineConfig configures the heartbeat loop.
type EngineConfig struct {
	InitialEnergy int `yaml:"initial_energy"`
	BusCapacity   int `yaml:"bus_capacity"`
}

// SafetyConfig configures the safety governor limits.
type SafetyConfig struct {
	MaxToolChainLength    int `yaml:"max_tool_chain_length"`
	MaxConsecutiveActions int `yaml:"max_consecutive_actions"`
	RunawayThreshold      int `yaml:"runaway_threshold"`
}

// BudgetConfig configures unsolicited-initiation limits.
type BudgetConfig struct {
	MaxPerHour      int `yaml:"max_per_hour"`
	QuietHoursStart int `yaml:"quiet_hours_start"`
	QuietHoursEnd   int `yaml:"quiet_hours_end"`
	CooldownMinutes int `yaml:"cooldown_minutes"`
}

// DispatchConfig configures subtask execution.
type DispatchConfig struct {
	SubtaskTimeout string  `yaml:"subtask_timeout"` // Go duration string
	SuccessRatio   float64 `yaml:"success_ratio"`
}

// DigestConfig configures the periodic digest.
type DigestConfig struct {
	IntervalSeconds int `yaml:"interval_seconds"`
}

// FocusConfig selects the startup focus mode.
type FocusConfig struct {
	Mode string `yaml:"mode"`
}

// WatchConfig configures the filesystem watch adapter.
type WatchConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Extensions []string `yaml:"extensions"`
}

// LoggingConfig configures category logging.
type LoggingConfig struct {
	Debug      bool            `yaml:"debug"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	JSONFormat bool            `yaml:"json_format"`
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	budget := energy.DefaultBudget()
	limits := safety.DefaultLimits()
	disp := dispatch.DefaultConfig()

	return &Config{
		Name:    "vigil",
		Version: "0.3.0",

		Engine: EngineConfig{
			InitialEnergy: 50,
			BusCapacity:   100,
		},
		Rules: quorum.DefaultRules(),
		Safety: SafetyConfig{
			MaxToolChainLength:    limits.MaxToolChainLength,
			MaxConsecutiveActions: limits.MaxConsecutiveActions,
			RunawayThreshold:      limits.RunawayThreshold,
		},
		Budget: BudgetConfig{
			MaxPerHour:      budget.MaxPerHour,
			QuietHoursStart: budget.QuietHoursStart,
			QuietHoursEnd:   budget.QuietHoursEnd,
			CooldownMinutes: int(budget.Cooldown / time.Minute),
		},
		Dispatch: DispatchConfig{
			SubtaskTimeout: disp.SubtaskTimeout.String(),
			SuccessRatio:   disp.SuccessRatio,
		},
		Digest: DigestConfig{
			IntervalSeconds: 1800,
		},
		Focus: FocusConfig{
			Mode: focus.DefaultModeName,
		},
		Watch: WatchConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; a malformed or invalid one is an error so the caller keeps
// whatever config it already had.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides lets the environment take precedence over the file for
// the handful of settings that vary per invocation.
func (c *Config) applyEnvOverrides() {
	if mode := os.Getenv("VIGIL_FOCUS_MODE"); mode != "" {
		c.Focus.Mode = mode
	}
	if os.Getenv("VIGIL_DEBUG") == "1" {
		c.Logging.Debug = true
		c.Logging.Level = "debug"
	}
}

// Validate checks every boundary range. Called on load so an invalid file
// never replaces a working configuration.
func (c *Config) Validate() error {
	if c.Engine.InitialEnergy < energy.MinEnergy || c.Engine.InitialEnergy > energy.MaxEnergy {
		return fmt.Errorf("initial_energy must be in [%d,%d]", energy.MinEnergy, energy.MaxEnergy)
	}
	if c.Engine.BusCapacity < 1 {
		return fmt.Errorf("bus_capacity must be >= 1")
	}

	registry := quorum.NewRegistry()
	for _, r := range c.Rules {
		if err := r.Validate(registry); err != nil {
			return err
		}
	}

	if err := c.SafetyLimits().Validate(); err != nil {
		return err
	}
	if err := c.EnergyBudget().Validate(); err != nil {
		return err
	}

	d, err := c.DispatchSettings()
	if err != nil {
		return err
	}
	if err := d.Validate(); err != nil {
		return err
	}

	if c.Digest.IntervalSeconds <= 0 {
		return fmt.Errorf("digest interval_seconds must be positive")
	}
	if !knownFocusMode(c.Focus.Mode) {
		return fmt.Errorf("unknown focus mode %q", c.Focus.Mode)
	}
	return nil
}

func knownFocusMode(name string) bool {
	for _, m := range focus.NewController().Modes() {
		if m == name {
			return true
		}
	}
	return false
}

// SafetyLimits converts to the governor's limit type.
func (c *Config) SafetyLimits() safety.Limits {
	return safety.Limits{
		MaxToolChainLength:    c.Safety.MaxToolChainLength,
		MaxConsecutiveActions: c.Safety.MaxConsecutiveActions,
		RunawayThreshold:      c.Safety.RunawayThreshold,
	}
}

// EnergyBudget converts to the tracker's budget type.
func (c *Config) EnergyBudget() energy.Budget {
	return energy.Budget{
		MaxPerHour:      c.Budget.MaxPerHour,
		QuietHoursStart: c.Budget.QuietHoursStart,
		QuietHoursEnd:   c.Budget.QuietHoursEnd,
		Cooldown:        time.Duration(c.Budget.CooldownMinutes) * time.Minute,
	}
}

// DispatchSettings converts to the dispatcher's config type.
func (c *Config) DispatchSettings() (dispatch.Config, error) {
	timeout, err := time.ParseDuration(c.Dispatch.SubtaskTimeout)
	if err != nil {
		return dispatch.Config{}, fmt.Errorf("invalid subtask_timeout: %w", err)
	}
	return dispatch.Config{
		SubtaskTimeout: timeout,
		SuccessRatio:   c.Dispatch.SuccessRatio,
	}, nil
}

// DigestInterval returns the digest period as a duration.
func (c *Config) DigestInterval() time.Duration {
	return time.Duration(c.Digest.IntervalSeconds) * time.Second
}

// LoggingSettings converts to the logging package's settings type.
func (c *Config) LoggingSettings() logging.Settings {
	return logging.Settings{
		DebugMode:  c.Logging.Debug,
		Categories: c.Logging.Categories,
		Level:      c.Logging.Level,
		JSONFormat: c.Logging.JSONFormat,
	}
}
