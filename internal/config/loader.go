package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds the configuration in layers: an optional YAML file, then
// SNOW_* environment variables on top. Flags are applied by the command
// layer after Load returns. The result is read once at startup; there is
// no hot reload.
func Load(filepath string) (*Config, error) {
	cfg := &Config{}

	if filepath != "" {
		k := koanf.New(".")
		if err := k.Load(file.Provider(filepath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config from %q: %w", filepath, err)
		}
		if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
			return nil, fmt.Errorf("failed to parse config from %q: %w", filepath, err)
		}
	}

	applyEnv(cfg)
	cfg.applyDefaults()
	return cfg, nil
}

// applyEnv overlays SNOW_* environment variables onto cfg
func applyEnv(cfg *Config) {
	if v := os.Getenv("SNOW_INSTANCE_URL"); v != "" {
		cfg.InstanceURL = v
	}
	if v := os.Getenv("SNOW_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("SNOW_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("SNOW_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TimeoutSeconds = n
		}
	}
	if v := os.Getenv("SNOW_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxRetries = n
		}
	}
	if v := os.Getenv("SNOW_BACKOFF_BASE_SECONDS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.BackoffBaseSeconds = f
		}
	}
	if v := os.Getenv("SNOW_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PageSize = n
		}
	}
	if v := os.Getenv("SNOW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SNOW_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("SNOW_TRACING_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.TracingEnabled = b
		}
	}
	if v := os.Getenv("SNOW_TRACING_ENDPOINT"); v != "" {
		cfg.TracingEndpoint = v
	}
}
