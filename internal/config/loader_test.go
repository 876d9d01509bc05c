package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `
instance_url: https://dev12345.service-now.com
username: agent
password: hunter2
timeout_seconds: 15
max_retries: 5
page_size: 50
log_level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://dev12345.service-now.com", cfg.InstanceURL)
	assert.Equal(t, "agent", cfg.Username)
	assert.Equal(t, "hunter2", cfg.Password)
	assert.Equal(t, 15, cfg.TimeoutSeconds)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 50, cfg.PageSize)
	assert.Equal(t, "debug", cfg.LogLevel)

	// Fields absent from the file get defaults
	assert.Equal(t, DefaultBackoffBaseSeconds, cfg.BackoffBaseSeconds)
	assert.Equal(t, DefaultHTTPAddr, cfg.HTTPAddr)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultTimeoutSeconds, cfg.TimeoutSeconds)
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, DefaultPageSize, cfg.PageSize)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfigFile(t, "instance_url: [unclosed")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
instance_url: https://file.service-now.com
username: file-user
password: file-pass
`)

	t.Setenv("SNOW_INSTANCE_URL", "https://env.service-now.com")
	t.Setenv("SNOW_USERNAME", "env-user")
	t.Setenv("SNOW_MAX_RETRIES", "7")
	t.Setenv("SNOW_TRACING_ENABLED", "true")
	t.Setenv("SNOW_TRACING_ENDPOINT", "collector:4317")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://env.service-now.com", cfg.InstanceURL)
	assert.Equal(t, "env-user", cfg.Username)
	assert.Equal(t, "file-pass", cfg.Password, "env unset, file value survives")
	assert.Equal(t, 7, cfg.MaxRetries)
	assert.True(t, cfg.TracingEnabled)
	assert.Equal(t, "collector:4317", cfg.TracingEndpoint)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := New()
		cfg.InstanceURL = "https://dev12345.service-now.com"
		cfg.Username = "agent"
		cfg.Password = "hunter2"
		return cfg
	}

	t.Run("valid config passes", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("empty instance url", func(t *testing.T) {
		cfg := valid()
		cfg.InstanceURL = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("http scheme rejected", func(t *testing.T) {
		cfg := valid()
		cfg.InstanceURL = "http://dev12345.service-now.com"
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing credentials", func(t *testing.T) {
		cfg := valid()
		cfg.Password = ""
		assert.Error(t, cfg.Validate())

		cfg = valid()
		cfg.Username = "  "
		assert.Error(t, cfg.Validate())
	})

	t.Run("non-positive numerics", func(t *testing.T) {
		cfg := valid()
		cfg.TimeoutSeconds = 0
		assert.Error(t, cfg.Validate())

		cfg = valid()
		cfg.MaxRetries = -1
		assert.Error(t, cfg.Validate())

		cfg = valid()
		cfg.BackoffBaseSeconds = 0
		assert.Error(t, cfg.Validate())

		cfg = valid()
		cfg.PageSize = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("tracing enabled requires endpoint", func(t *testing.T) {
		cfg := valid()
		cfg.TracingEnabled = true
		assert.Error(t, cfg.Validate())

		cfg.TracingEndpoint = "collector:4317"
		assert.NoError(t, cfg.Validate())
	})
}
