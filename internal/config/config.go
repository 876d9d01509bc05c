package config

import (
	"net/url"
	"strings"
)

// Config holds all configuration for the discovery agent
type Config struct {
	// InstanceURL is the base URL of the remote instance (https required)
	InstanceURL string `yaml:"instance_url"`

	// Username for basic authentication
	Username string `yaml:"username"`

	// Password for basic authentication. Never logged.
	Password string `yaml:"password"`

	// TimeoutSeconds is the per-request HTTP timeout
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// MaxRetries is the number of retries after the initial attempt
	MaxRetries int `yaml:"max_retries"`

	// BackoffBaseSeconds is the base delay for exponential backoff
	BackoffBaseSeconds float64 `yaml:"backoff_base_seconds"`

	// PageSize is the default page size for paginated listing
	PageSize int `yaml:"page_size"`

	// LogLevel is the logging level (debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// HTTPAddr is the listen address for the HTTP MCP transport
	HTTPAddr string `yaml:"http_addr"`

	// TracingEnabled indicates whether OpenTelemetry tracing is enabled
	TracingEnabled bool `yaml:"tracing_enabled"`

	// TracingEndpoint is the OTLP gRPC endpoint for trace export
	TracingEndpoint string `yaml:"tracing_endpoint"`
}

// Defaults applied for fields left unset.
const (
	DefaultTimeoutSeconds     = 30
	DefaultMaxRetries         = 3
	DefaultBackoffBaseSeconds = 1.0
	DefaultPageSize           = 100
	DefaultHTTPAddr           = ":8081"
)

// New creates a Config with defaults filled in
func New() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills zero values after file/env merging
func (c *Config) applyDefaults() {
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.BackoffBaseSeconds == 0 {
		c.BackoffBaseSeconds = DefaultBackoffBaseSeconds
	}
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = DefaultHTTPAddr
	}
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.InstanceURL == "" {
		return NewConfigError("InstanceURL must not be empty")
	}

	u, err := url.Parse(c.InstanceURL)
	if err != nil || u.Host == "" {
		return NewConfigError("InstanceURL must be a valid URL")
	}

	if u.Scheme != "https" {
		return NewConfigError("InstanceURL must use https")
	}

	if strings.TrimSpace(c.Username) == "" {
		return NewConfigError("Username must not be empty")
	}

	if c.Password == "" {
		return NewConfigError("Password must not be empty")
	}

	if c.TimeoutSeconds < 1 {
		return NewConfigError("TimeoutSeconds must be at least 1")
	}

	if c.MaxRetries < 0 {
		return NewConfigError("MaxRetries must not be negative")
	}

	if c.BackoffBaseSeconds <= 0 {
		return NewConfigError("BackoffBaseSeconds must be positive")
	}

	if c.PageSize < 1 {
		return NewConfigError("PageSize must be at least 1")
	}

	if c.TracingEnabled && c.TracingEndpoint == "" {
		return NewConfigError("TracingEndpoint must be set when tracing is enabled")
	}

	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	message string
}

// NewConfigError creates a new configuration error
func NewConfigError(message string) *ConfigError {
	return &ConfigError{message: message}
}

// Error returns the error message
func (e *ConfigError) Error() string {
	return e.message
}
