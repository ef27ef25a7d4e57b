// Package config loads the daemon configuration from environment variables,
// with an optional YAML file as fallback for local development. Environment
// variables are prefixed RELAY_ and dotted keys map to underscores, so
// server.addr becomes RELAY_SERVER_ADDR.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	configName = "relay"
	configType = "yaml"
	envPrefix  = "RELAY"
)

// Config is the full daemon configuration.
type Config struct {
	Server    Server    `mapstructure:"server"`
	Platform  Platform  `mapstructure:"platform"`
	Generator Generator `mapstructure:"generator"`
	Logging   Logging   `mapstructure:"logging"`
}

// Server configures the HTTP listener.
type Server struct {
	Addr                   string `mapstructure:"addr"`
	ReadTimeoutSeconds     int    `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds    int    `mapstructure:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds"`
}

// Platform configures the host block-storage client.
type Platform struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// Generator configures the completion plugin itself.
type Generator struct {
	Model               string   `mapstructure:"model"`
	Samples             int64    `mapstructure:"samples"`
	MaxTokens           int64    `mapstructure:"max_tokens"`
	Temperature         float64  `mapstructure:"temperature"`
	TopP                *float64 `mapstructure:"top_p"`
	PresencePenalty     float64  `mapstructure:"presence_penalty"`
	FrequencyPenalty    float64  `mapstructure:"frequency_penalty"`
	DefaultSystemPrompt string   `mapstructure:"default_system_prompt"`
	ModerateOutput      bool     `mapstructure:"moderate_output"`

	// Environment holds the pinned credential overrides in the
	// "KEY:VALUE;KEY:VALUE" wire form. Validated at generator construction.
	Environment string `mapstructure:"environment"`
}

// Logging configures the log output.
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads the configuration. With a non-empty path the file is required;
// otherwise a relay.yaml in the working directory is used when present and
// environment variables carry the rest.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(configName)
	v.SetConfigType(configType)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/relay")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read %q: %w", v.ConfigFileUsed(), err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout_seconds", 30)
	v.SetDefault("server.write_timeout_seconds", 300)
	v.SetDefault("server.shutdown_timeout_seconds", 15)

	v.SetDefault("generator.model", "gpt-4o-mini")
	v.SetDefault("generator.samples", 1)
	v.SetDefault("generator.max_tokens", 256)
	v.SetDefault("generator.temperature", 0.4)
	v.SetDefault("generator.presence_penalty", 0)
	v.SetDefault("generator.frequency_penalty", 0)
	v.SetDefault("generator.moderate_output", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Validate rejects configurations the daemon cannot start with.
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Addr == "" {
		problems = append(problems, "server.addr is required")
	}
	if c.Generator.Samples < 1 {
		problems = append(problems, "generator.samples must be at least 1")
	}
	if c.Generator.Temperature < 0 || c.Generator.Temperature > 2 {
		problems = append(problems, "generator.temperature must be between 0 and 2")
	}
	switch c.Logging.Level {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level %q is not a known level", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q must be console or json", c.Logging.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}
