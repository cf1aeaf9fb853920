package domain

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

func DefaultConfig() *Config {
	return &Config{
		Name:          "loom",
		LogLevel:      LogLevelInfo,
		Engine:        DefaultEngineConfig(),
		Storage:       DefaultStorageConfig(),
		Bridge:        DefaultBridgeConfig(),
		Transport:     DefaultTransportConfig(),
		Observability: DefaultObservabilityConfig(),
		Tracing:       DefaultTracingConfig(),
		Metrics:       DefaultMetricsConfig(),
	}
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		WorkerCount:          4,
		NodeExecutionTimeout: 5 * time.Minute,
		LoaderConcurrency:    8,
	}
}

func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		DataDir:    "./data",
		InMemory:   false,
		SyncWrites: true,
	}
}

func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		WaitTimeout:      0,
		ProgressInterval: 250 * time.Millisecond,
		ProgressTotal:    100,
	}
}

func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		Address:           "127.0.0.1",
		Port:              7400,
		MaxMessageSizeMB:  10,
		ConnectionTimeout: 30 * time.Second,
		RequestsPerSecond: 200,
		Burst:             50,
	}
}

func DefaultObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:      false,
		Port:         9090,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		Enabled:     false,
		ServiceName: "loom",
		SampleRatio: 1.0,
	}
}

func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Namespace: "loom"}
}

func NewConfigFromSimple(name, dataDir string, logger *slog.Logger) *Config {
	config := DefaultConfig()
	config.Name = name
	config.Storage.DataDir = dataDir
	config.Logger = logger
	return config
}

func (c *Config) WithInMemoryStorage() *Config {
	c.Storage.InMemory = true
	return c
}

func (c *Config) WithTransport(address string, port int) *Config {
	c.Transport.Address = address
	c.Transport.Port = port
	return c
}

func (c *Config) WithEngineSettings(workers int, nodeTimeout time.Duration) *Config {
	c.Engine.WorkerCount = workers
	c.Engine.NodeExecutionTimeout = nodeTimeout
	return c
}

func (c *Config) WithObservability(port int) *Config {
	c.Observability.Enabled = true
	c.Observability.Port = port
	return c
}

func (c *Config) WithTracing(serviceName, endpoint string, ratio float64) *Config {
	c.Tracing.Enabled = true
	c.Tracing.ServiceName = serviceName
	c.Tracing.Endpoint = endpoint
	c.Tracing.SampleRatio = ratio
	return c
}

// LoadConfig reads a YAML file and fills every unset field from DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (*Config, error) {
	var loaded Config
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, NewConfigError("yaml", err)
	}
	if err := mergo.Merge(&loaded, DefaultConfig()); err != nil {
		return nil, NewConfigError("defaults", err)
	}
	if err := loaded.Validate(); err != nil {
		return nil, err
	}
	return &loaded, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return NewConfigError("name", ErrInvalidInput)
	}
	switch c.LogLevel {
	case "", LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
	default:
		return NewConfigError("log_level", fmt.Errorf("unknown level %q", c.LogLevel))
	}
	if c.Engine.WorkerCount <= 0 {
		return NewConfigError("engine.worker_count", ErrInvalidInput)
	}
	if c.Engine.NodeExecutionTimeout < 0 {
		return NewConfigError("engine.node_execution_timeout", ErrInvalidInput)
	}
	if c.Engine.LoaderConcurrency <= 0 {
		return NewConfigError("engine.loader_concurrency", ErrInvalidInput)
	}
	if !c.Storage.InMemory && c.Storage.DataDir == "" {
		return NewConfigError("storage.data_dir", ErrInvalidInput)
	}
	if c.Bridge.WaitTimeout < 0 {
		return NewConfigError("bridge.wait_timeout", ErrInvalidInput)
	}
	if c.Bridge.ProgressInterval <= 0 {
		return NewConfigError("bridge.progress_interval", ErrInvalidInput)
	}
	if c.Transport.Port < 0 || c.Transport.Port > 65535 {
		return NewConfigError("transport.port", ErrInvalidInput)
	}
	if c.Transport.MaxMessageSizeMB <= 0 {
		return NewConfigError("transport.max_message_size_mb", ErrInvalidInput)
	}
	if c.Transport.RequestsPerSecond < 0 || c.Transport.Burst < 0 {
		return NewConfigError("transport.requests_per_second", ErrInvalidInput)
	}
	if c.Observability.Enabled && (c.Observability.Port <= 0 || c.Observability.Port > 65535) {
		return NewConfigError("observability.port", ErrInvalidInput)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return NewConfigError("tracing.sample_ratio", ErrInvalidInput)
	}
	return nil
}

type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config field %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

func NewConfigError(field string, err error) *ConfigError {
	return &ConfigError{
		Field: field,
		Err:   err,
	}
}

func AsConfigError(err error) (*ConfigError, bool) {
	var configErr *ConfigError
	ok := errors.As(err, &configErr)
	return configErr, ok
}
