package loom

import (
	"log/slog"

	"github.com/eleven-am/loom/internal/domain"
)

type Config = domain.Config

type EngineConfig = domain.EngineConfig

type StorageConfig = domain.StorageConfig

type BridgeConfig = domain.BridgeConfig

type TransportConfig = domain.TransportConfig

type ObservabilityConfig = domain.ObservabilityConfig

type TracingConfig = domain.TracingConfig

type MetricsConfig = domain.MetricsConfig

type LogLevel = domain.LogLevel

const (
	LogLevelDebug = domain.LogLevelDebug
	LogLevelInfo  = domain.LogLevelInfo
	LogLevelWarn  = domain.LogLevelWarn
	LogLevelError = domain.LogLevelError
)

func DefaultConfig() *Config {
	return domain.DefaultConfig()
}

func DefaultEngineConfig() EngineConfig {
	return domain.DefaultEngineConfig()
}

func DefaultBridgeConfig() BridgeConfig {
	return domain.DefaultBridgeConfig()
}

func DefaultTransportConfig() TransportConfig {
	return domain.DefaultTransportConfig()
}

// LoadConfig reads a YAML file; unset fields take their defaults.
func LoadConfig(path string) (*Config, error) {
	return domain.LoadConfig(path)
}

// NewConfig returns the default configuration with a name, data directory
// and logger set.
func NewConfig(name, dataDir string, logger *slog.Logger) *Config {
	return domain.NewConfigFromSimple(name, dataDir, logger)
}
