// Package config handles configuration loading for AutoCandidate.
// It supports XDG config paths, project-level overrides, and environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds all configuration for AutoCandidate.
type Config struct {
	Provider Provider `mapstructure:"provider"`
	Defaults Defaults `mapstructure:"defaults"`
	Quality  Quality  `mapstructure:"quality"`
	History  History  `mapstructure:"history"`
}

// Provider holds LLM provider settings.
type Provider struct {
	// Name selects the provider (claude or deepseek).
	Name string `mapstructure:"name"`
	// APIKey is the provider API key. ${VAR} references are expanded.
	APIKey string `mapstructure:"api_key"`
	// Model is the model used for task execution and fixes.
	Model string `mapstructure:"model"`
	// PlanModel is the model used for planning; empty means Model.
	PlanModel string `mapstructure:"plan_model"`
	// UseBedrock routes Claude requests through AWS Bedrock.
	UseBedrock bool `mapstructure:"use_bedrock"`
	// AWSRegion is the Bedrock region.
	AWSRegion string `mapstructure:"aws_region"`
	// AWSProfile is the AWS shared-config profile.
	AWSProfile string `mapstructure:"aws_profile"`
}

// Defaults holds run defaults.
type Defaults struct {
	// Workspace is the directory where runs set up their repository copy.
	Workspace string `mapstructure:"workspace"`
	// Retries is how many fix rounds verification gets after the first
	// failing test run.
	Retries int `mapstructure:"retries"`
}

// Quality holds quality gate command overrides. Empty values keep the
// Python tooling defaults.
type Quality struct {
	Install []string `mapstructure:"install"`
	Test    []string `mapstructure:"test"`
	Lint    []string `mapstructure:"lint"`
}

// History holds run-history database settings.
type History struct {
	// Path is the sqlite database location. Empty means
	// <user config dir>/history.db.
	Path string `mapstructure:"path"`
}

// Load loads configuration.
// Precedence (highest to lowest):
//  1. Environment variables (AUTOCANDIDATE_*, ANTHROPIC_API_KEY, DEEPSEEK_API_KEY)
//  2. Project config (.autocandidate.yaml in current directory or parent)
//  3. User config (~/.config/autocandidate/config.yaml)
//  4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("AUTOCANDIDATE")
	v.AutomaticEnv()
	v.BindEnv("provider.name", "AUTOCANDIDATE_PROVIDER")
	v.BindEnv("provider.api_key", "AUTOCANDIDATE_API_KEY")
	v.BindEnv("provider.model", "AUTOCANDIDATE_MODEL")
	v.BindEnv("defaults.workspace", "AUTOCANDIDATE_WORKSPACE")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Provider.APIKey = os.ExpandEnv(cfg.Provider.APIKey)
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file (for testing).
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
	cfg.Provider.APIKey = os.ExpandEnv(cfg.Provider.APIKey)
	return cfg, nil
}

// HistoryPath returns the run-history database path, applying the default
// location when unset.
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return filepath.Join(getUserConfigDir(), "history.db")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider.name", "claude")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.model", "")
	v.SetDefault("provider.plan_model", "")
	v.SetDefault("provider.use_bedrock", false)

	v.SetDefault("defaults.workspace", "./workspace")
	v.SetDefault("defaults.retries", 2)

	v.SetDefault("history.path", "")
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Provider: Provider{Name: "claude"},
		Defaults: Defaults{Workspace: "./workspace", Retries: 2},
	}
}

// getUserConfigDir returns the XDG config directory for AutoCandidate.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "autocandidate")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "autocandidate")
	}
	return filepath.Join(home, ".config", "autocandidate")
}

// findProjectConfig searches for .autocandidate.yaml in the current
// directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		configPath := filepath.Join(cwd, ".autocandidate.yaml")
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
