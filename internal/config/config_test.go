package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Name != "vigil" {
		t.Errorf("expected Name=vigil, got %s", cfg.Name)
	}
	if cfg.Engine.InitialEnergy != 50 {
		t.Errorf("expected InitialEnergy=50, got %d", cfg.Engine.InitialEnergy)
	}
	if cfg.Engine.BusCapacity != 100 {
		t.Errorf("expected BusCapacity=100, got %d", cfg.Engine.BusCapacity)
	}
	if cfg.Digest.IntervalSeconds != 1800 {
		t.Errorf("expected IntervalSeconds=1800, got %d", cfg.Digest.IntervalSeconds)
	}
	if cfg.Focus.Mode != "background" {
		t.Errorf("expected Mode=background, got %s", cfg.Focus.Mode)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	t.Setenv("VIGIL_FOCUS_MODE", "")
	t.Setenv("VIGIL_DEBUG", "")

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")

	cfg := DefaultConfig()
	cfg.Focus.Mode = "pair"
	cfg.Budget.MaxPerHour = 2

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Focus.Mode != "pair" {
		t.Errorf("expected Mode=pair, got %s", loaded.Focus.Mode)
	}
	if loaded.Budget.MaxPerHour != 2 {
		t.Errorf("expected MaxPerHour=2, got %d", loaded.Budget.MaxPerHour)
	}
}

func TestConfig_MissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("VIGIL_FOCUS_MODE", "")
	t.Setenv("VIGIL_DEBUG", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load of missing file failed: %v", err)
	}
	if cfg.Name != "vigil" {
		t.Errorf("expected defaults, got Name=%s", cfg.Name)
	}
}

func TestConfig_MalformedFileRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("rules: {not a list"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Errorf("expected parse error")
	}
}

func TestConfig_InvalidValuesRejectedOnLoad(t *testing.T) {
	t.Setenv("VIGIL_FOCUS_MODE", "")
	t.Setenv("VIGIL_DEBUG", "")

	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.Budget.QuietHoursStart = 30
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Errorf("expected validation error for quiet_hours_start=30")
	}
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("VIGIL_FOCUS_MODE", "solo_batches")
	t.Setenv("VIGIL_DEBUG", "1")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Focus.Mode != "solo_batches" {
		t.Errorf("expected env focus mode, got %s", cfg.Focus.Mode)
	}
	if !cfg.Logging.Debug || cfg.Logging.Level != "debug" {
		t.Errorf("expected debug logging from env, got %+v", cfg.Logging)
	}
}

func TestValidateBoundaries(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"energy too high", func(c *Config) { c.Engine.InitialEnergy = 101 }},
		{"energy negative", func(c *Config) { c.Engine.InitialEnergy = -1 }},
		{"zero bus capacity", func(c *Config) { c.Engine.BusCapacity = 0 }},
		{"bad rule threshold", func(c *Config) { c.Rules[0].Threshold = 99 }},
		{"negative chain length", func(c *Config) { c.Safety.MaxToolChainLength = -1 }},
		{"bad quiet hour", func(c *Config) { c.Budget.QuietHoursEnd = 24 }},
		{"unparsable timeout", func(c *Config) { c.Dispatch.SubtaskTimeout = "soon" }},
		{"ratio out of range", func(c *Config) { c.Dispatch.SuccessRatio = 1.5 }},
		{"zero digest interval", func(c *Config) { c.Digest.IntervalSeconds = 0 }},
		{"unknown focus mode", func(c *Config) { c.Focus.Mode = "warp" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}

func TestConversions(t *testing.T) {
	cfg := DefaultConfig()

	limits := cfg.SafetyLimits()
	if limits.MaxToolChainLength != 10 || limits.MaxConsecutiveActions != 5 || limits.RunawayThreshold != 20 {
		t.Errorf("limits = %+v", limits)
	}

	budget := cfg.EnergyBudget()
	if budget.Cooldown != 10*time.Minute {
		t.Errorf("cooldown = %v, want 10m", budget.Cooldown)
	}

	d, err := cfg.DispatchSettings()
	if err != nil {
		t.Fatalf("DispatchSettings: %v", err)
	}
	if d.SubtaskTimeout != 2*time.Minute {
		t.Errorf("subtask timeout = %v, want 2m", d.SubtaskTimeout)
	}

	if cfg.DigestInterval() != 30*time.Minute {
		t.Errorf("digest interval = %v, want 30m", cfg.DigestInterval())
	}
}
