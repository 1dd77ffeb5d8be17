package config

import (
	"fmt"
	"net/url"
	"time"

	"dario.cat/mergo"
	"github.com/caarlos0/env/v10"

	"github.com/richinsley/comfyagent/comfyerr"
	"github.com/richinsley/comfyagent/logging"
)

const DefaultBaseURL = "http://127.0.0.1:8188"

// Where the effective base URL came from, as reported by the status command.
const (
	BaseURLFromFlag    = "--base-url"
	BaseURLFromEnv     = "COMFY_AGENT_BASE_URL"
	BaseURLFromDefault = "default"
)

// Config holds the settings shared by every command
type Config struct {
	BaseURL string `env:"COMFY_AGENT_BASE_URL"`
	// BaseURLSource is set by Load and Override, never read from the environment
	BaseURLSource string

	PollInterval time.Duration `env:"COMFY_AGENT_POLL_INTERVAL" envDefault:"1s"`
	Timeout      time.Duration `env:"COMFY_AGENT_TIMEOUT" envDefault:"300s"`
	HTTPTimeout  time.Duration `env:"COMFY_AGENT_HTTP_TIMEOUT" envDefault:"60s"`

	LogLevel  string `env:"COMFY_AGENT_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"COMFY_AGENT_LOG_FORMAT" envDefault:"text"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.BaseURL != "" {
		cfg.BaseURLSource = BaseURLFromEnv
	} else {
		cfg.BaseURL = DefaultBaseURL
		cfg.BaseURLSource = BaseURLFromDefault
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Override applies the non-zero fields of flags on top of c, e.g. values
// given on the command line, and validates the result.
func (c *Config) Override(flags Config) error {
	if err := mergo.Merge(c, flags, mergo.WithOverride); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	if flags.BaseURL != "" {
		c.BaseURLSource = BaseURLFromFlag
	}
	return c.Validate()
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("base_url", c.BaseURL, "base URL must be an http or https URL")
	}
	if c.PollInterval <= 0 {
		return invalid("poll_interval", c.PollInterval.String(), "poll interval must be positive")
	}
	if c.Timeout <= 0 {
		return invalid("timeout", c.Timeout.String(), "timeout must be positive")
	}
	if c.HTTPTimeout < 0 {
		return invalid("http_timeout", c.HTTPTimeout.String(), "HTTP timeout must not be negative")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return invalid("log_level", c.LogLevel, err.Error())
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return invalid("log_format", c.LogFormat, "log format must be text or json")
	}
	return nil
}

func invalid(field, value, message string) error {
	return comfyerr.New(comfyerr.InvalidParam, message).
		WithDetails(map[string]any{"field": field, "value": value})
}
