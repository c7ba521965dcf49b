// Package config handles configuration loading and management for dai.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/daicraft/dai/pkg/models"
)

// Config holds all configuration for dai.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Run       RunConfig       `mapstructure:"run"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	// UseBedrock routes Anthropic calls through AWS Bedrock.
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	APIKey string `mapstructure:"api_key"`
	// BaseURL overrides the API endpoint, e.g. for a compatible proxy.
	BaseURL string `mapstructure:"base_url"`
}

// RunConfig holds default run settings. Crew files may override any of
// these per run.
type RunConfig struct {
	MaxConcurrency int    `mapstructure:"max_concurrency"`
	MaxRetries     int    `mapstructure:"max_retries"`
	BackoffBase    string `mapstructure:"backoff_base"`
	FailurePolicy  string `mapstructure:"failure_policy"`
	CallTimeout    string `mapstructure:"call_timeout"`
}

// ToRunConfig converts the stringly-typed file settings into model values,
// falling back to defaults for anything unset.
func (rc RunConfig) ToRunConfig() (models.RunConfig, error) {
	out := models.DefaultRunConfig()
	if rc.MaxConcurrency > 0 {
		out.MaxConcurrency = rc.MaxConcurrency
	}
	if rc.MaxRetries >= 0 {
		out.MaxRetries = rc.MaxRetries
	}
	if rc.BackoffBase != "" {
		d, err := time.ParseDuration(rc.BackoffBase)
		if err != nil {
			return out, fmt.Errorf("parsing backoff_base: %w", err)
		}
		out.BackoffBase = d
	}
	if rc.FailurePolicy != "" {
		out.FailurePolicy = models.FailurePolicy(rc.FailurePolicy)
	}
	if rc.CallTimeout != "" {
		d, err := time.ParseDuration(rc.CallTimeout)
		if err != nil {
			return out, fmt.Errorf("parsing call_timeout: %w", err)
		}
		out.CallTimeout = d
	}
	if err := out.Validate(); err != nil {
		return out, err
	}
	return out, nil
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, OPENAI_API_KEY)
// 2. Project config (.dai.yaml in current directory or parent)
// 3. User config (~/.config/dai/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Load user config from XDG path
	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Load project config if present
	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Merge project config (takes precedence)
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	// Environment variable overrides
	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("openai.api_key", "OPENAI_API_KEY")
	v.BindEnv("anthropic.use_bedrock", "DAI_USE_BEDROCK")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	cfg.OpenAI.APIKey = os.ExpandEnv(cfg.OpenAI.APIKey)

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

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	cfg.OpenAI.APIKey = os.ExpandEnv(cfg.OpenAI.APIKey)

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

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.use_bedrock", cfg.Anthropic.UseBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("anthropic.aws_profile", cfg.Anthropic.AWSProfile)
	v.Set("openai.api_key", cfg.OpenAI.APIKey)
	v.Set("openai.base_url", cfg.OpenAI.BaseURL)
	v.Set("run.max_concurrency", cfg.Run.MaxConcurrency)
	v.Set("run.max_retries", cfg.Run.MaxRetries)
	v.Set("run.backoff_base", cfg.Run.BackoffBase)
	v.Set("run.failure_policy", cfg.Run.FailurePolicy)
	v.Set("run.call_timeout", cfg.Run.CallTimeout)

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

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.use_bedrock", false)
	v.SetDefault("anthropic.aws_region", "")
	v.SetDefault("anthropic.aws_profile", "")

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")

	defaults := models.DefaultRunConfig()
	v.SetDefault("run.max_concurrency", defaults.MaxConcurrency)
	v.SetDefault("run.max_retries", defaults.MaxRetries)
	v.SetDefault("run.backoff_base", defaults.BackoffBase.String())
	v.SetDefault("run.failure_policy", string(defaults.FailurePolicy))
	v.SetDefault("run.call_timeout", defaults.CallTimeout.String())
}

// getUserConfigDir returns the XDG config directory for dai.
func getUserConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dai")
	}

	// Fall back to ~/.config/dai
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "dai")
	}
	return filepath.Join(home, ".config", "dai")
}

// findProjectConfig searches for .dai.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".dai.yaml")
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
	defaults := models.DefaultRunConfig()
	return &Config{
		Run: RunConfig{
			MaxConcurrency: defaults.MaxConcurrency,
			MaxRetries:     defaults.MaxRetries,
			BackoffBase:    defaults.BackoffBase.String(),
			FailurePolicy:  string(defaults.FailurePolicy),
			CallTimeout:    defaults.CallTimeout.String(),
		},
	}
}
