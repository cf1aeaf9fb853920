package domain

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(*Config)
		expectedField string
	}{
		{"blank name", func(c *Config) { c.Name = "   " }, "name"},
		{"unknown log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"no workers", func(c *Config) { c.Engine.WorkerCount = 0 }, "engine.worker_count"},
		{"negative node timeout", func(c *Config) { c.Engine.NodeExecutionTimeout = -time.Second }, "engine.node_execution_timeout"},
		{"no loaders", func(c *Config) { c.Engine.LoaderConcurrency = 0 }, "engine.loader_concurrency"},
		{"no data dir on disk", func(c *Config) { c.Storage.DataDir = ""; c.Storage.InMemory = false }, "storage.data_dir"},
		{"negative wait", func(c *Config) { c.Bridge.WaitTimeout = -1 }, "bridge.wait_timeout"},
		{"zero progress interval", func(c *Config) { c.Bridge.ProgressInterval = 0 }, "bridge.progress_interval"},
		{"port out of range", func(c *Config) { c.Transport.Port = 70000 }, "transport.port"},
		{"no message size", func(c *Config) { c.Transport.MaxMessageSizeMB = 0 }, "transport.max_message_size_mb"},
		{"observability without port", func(c *Config) { c.Observability.Enabled = true; c.Observability.Port = 0 }, "observability.port"},
		{"sample ratio above one", func(c *Config) { c.Tracing.SampleRatio = 1.5 }, "tracing.sample_ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)

			err := config.Validate()
			require.Error(t, err)
			assert.True(t, IsInvalidConfig(err))

			configErr, ok := AsConfigError(err)
			require.True(t, ok)
			assert.Equal(t, tt.expectedField, configErr.Field)
		})
	}
}

func TestConfig_InMemoryNeedsNoDataDir(t *testing.T) {
	config := DefaultConfig().WithInMemoryStorage()
	config.Storage.DataDir = ""
	assert.NoError(t, config.Validate())
}

func TestParseConfig_FillsDefaults(t *testing.T) {
	data := []byte(`
name: analytics
log_level: debug
engine:
  worker_count: 16
transport:
  port: 9000
bridge:
  wait_timeout: 5s
`)

	config, err := ParseConfig(data)
	require.NoError(t, err)

	assert.Equal(t, "analytics", config.Name)
	assert.Equal(t, LogLevelDebug, config.LogLevel)
	assert.Equal(t, 16, config.Engine.WorkerCount)
	assert.Equal(t, DefaultEngineConfig().LoaderConcurrency, config.Engine.LoaderConcurrency)
	assert.Equal(t, 9000, config.Transport.Port)
	assert.Equal(t, DefaultTransportConfig().Address, config.Transport.Address)
	assert.Equal(t, 5*time.Second, config.Bridge.WaitTimeout)
	assert.Equal(t, DefaultBridgeConfig().ProgressInterval, config.Bridge.ProgressInterval)
	assert.Equal(t, "loom", config.Metrics.Namespace)
}

func TestParseConfig_RejectsInvalid(t *testing.T) {
	_, err := ParseConfig([]byte("tracing:\n  sample_ratio: 3\n"))
	require.Error(t, err)
	assert.True(t, IsInvalidConfig(err))

	_, err = ParseConfig([]byte("engine: [unclosed"))
	require.Error(t, err)
	assert.True(t, IsInvalidConfig(err))
}

func TestLoadConfig_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: from-file\nstorage:\n  in_memory: true\n"), 0o600))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", config.Name)
	assert.True(t, config.Storage.InMemory)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLogLevelMapping(t *testing.T) {
	assert.Equal(t, "DEBUG", LogLevelDebug.SlogLevel().String())
	assert.Equal(t, "WARN", LogLevelWarn.SlogLevel().String())
	assert.Equal(t, "ERROR", LogLevelError.SlogLevel().String())
	assert.Equal(t, "INFO", LogLevel("").SlogLevel().String())
}
