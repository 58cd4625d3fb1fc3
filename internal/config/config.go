// Package config handles configuration loading and management for drover.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/drover-dev/drover/pkg/models"
)

// Config holds all configuration for drover.
type Config struct {
	Agent   AgentConfig          `mapstructure:"agent"`
	Reclaim ReclaimConfig        `mapstructure:"reclaim"`
	Limits  models.ResourceLimits `mapstructure:"limits"`
	DataDir string               `mapstructure:"data_dir"`
}

// AgentConfig holds settings for spawning agent CLI processes.
type AgentConfig struct {
	CLI         string        `mapstructure:"cli"`
	Args        []string      `mapstructure:"args"`
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
	MaxParallel int           `mapstructure:"max_parallel"`
}

// ReclaimConfig holds defaults for orphan reclamation.
type ReclaimConfig struct {
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
	MinAge          time.Duration `mapstructure:"min_age"`
	StaleTestMaxAge time.Duration `mapstructure:"stale_test_max_age"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (DROVER_*)
// 2. Project config (.drover.yaml in current directory or parent)
// 3. User config (~/.config/drover/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Project config takes precedence over the user config.
	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("DROVER")
	v.AutomaticEnv()
	v.BindEnv("agent.cli", "DROVER_AGENT_CLI")
	v.BindEnv("data_dir", "DROVER_DATA_DIR")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir()
	}
	cfg.DataDir = os.ExpandEnv(cfg.DataDir)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir()
	}

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("agent.cli", cfg.Agent.CLI)
	v.Set("agent.args", cfg.Agent.Args)
	v.Set("agent.task_timeout", cfg.Agent.TaskTimeout.String())
	v.Set("agent.max_parallel", cfg.Agent.MaxParallel)
	v.Set("reclaim.graceful_timeout", cfg.Reclaim.GracefulTimeout.String())
	v.Set("reclaim.min_age", cfg.Reclaim.MinAge.String())
	v.Set("reclaim.stale_test_max_age", cfg.Reclaim.StaleTestMaxAge.String())
	v.Set("limits.enabled", cfg.Limits.Enabled)
	v.Set("limits.cpu_percent_ceiling", cfg.Limits.CPUPercentCeiling)
	v.Set("limits.memory_mb_ceiling", cfg.Limits.MemoryMBCeiling)
	v.Set("limits.sample_interval", cfg.Limits.SampleInterval.String())
	v.Set("limits.grace_period", cfg.Limits.GracePeriod.String())
	v.Set("data_dir", cfg.DataDir)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// DefaultDataDir returns the XDG data directory for drover state files
// (registry snapshot, tracked pid store, history database).
func DefaultDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "drover")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".local", "share", "drover")
	}
	return filepath.Join(home, ".local", "share", "drover")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("agent.cli", "claude")
	v.SetDefault("agent.args", []string{})
	v.SetDefault("agent.task_timeout", "15m")
	v.SetDefault("agent.max_parallel", 3)

	v.SetDefault("reclaim.graceful_timeout", "5s")
	v.SetDefault("reclaim.min_age", "0s")
	v.SetDefault("reclaim.stale_test_max_age", "10m")

	v.SetDefault("limits.enabled", false)
	v.SetDefault("limits.cpu_percent_ceiling", 0.0)
	v.SetDefault("limits.memory_mb_ceiling", 0)
	v.SetDefault("limits.sample_interval", "10s")
	v.SetDefault("limits.grace_period", "5s")

	v.SetDefault("data_dir", "")
}

// getUserConfigDir returns the XDG config directory for drover.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "drover")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "drover")
	}
	return filepath.Join(home, ".config", "drover")
}

// findProjectConfig searches for .drover.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".drover.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			CLI:         "claude",
			TaskTimeout: 15 * time.Minute,
			MaxParallel: 3,
		},
		Reclaim: ReclaimConfig{
			GracefulTimeout: 5 * time.Second,
			MinAge:          0,
			StaleTestMaxAge: 10 * time.Minute,
		},
		Limits: models.ResourceLimits{
			Enabled:        false,
			SampleInterval: 10 * time.Second,
			GracePeriod:    5 * time.Second,
		},
		DataDir: DefaultDataDir(),
	}
}
