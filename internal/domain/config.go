package domain

import (
	"log/slog"
	"time"
)

type Config struct {
	Name     string       `json:"name" yaml:"name"`
	LogLevel LogLevel     `json:"log_level" yaml:"log_level"`
	Logger   *slog.Logger `json:"-" yaml:"-"`

	Engine        EngineConfig        `json:"engine" yaml:"engine"`
	Storage       StorageConfig       `json:"storage" yaml:"storage"`
	Bridge        BridgeConfig        `json:"bridge" yaml:"bridge"`
	Transport     TransportConfig     `json:"transport" yaml:"transport"`
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
	Tracing       TracingConfig       `json:"tracing" yaml:"tracing"`
	Metrics       MetricsConfig       `json:"metrics" yaml:"metrics"`
}

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type EngineConfig struct {
	WorkerCount          int           `json:"worker_count" yaml:"worker_count"`
	NodeExecutionTimeout time.Duration `json:"node_execution_timeout" yaml:"node_execution_timeout"`
	LoaderConcurrency    int           `json:"loader_concurrency" yaml:"loader_concurrency"`
}

type StorageConfig struct {
	DataDir    string `json:"data_dir" yaml:"data_dir"`
	InMemory   bool   `json:"in_memory" yaml:"in_memory"`
	SyncWrites bool   `json:"sync_writes" yaml:"sync_writes"`
}

type BridgeConfig struct {
	WaitTimeout      time.Duration `json:"wait_timeout" yaml:"wait_timeout"`
	ProgressInterval time.Duration `json:"progress_interval" yaml:"progress_interval"`
	ProgressTotal    int           `json:"progress_total" yaml:"progress_total"`
}

type TransportConfig struct {
	Address           string        `json:"address" yaml:"address"`
	Port              int           `json:"port" yaml:"port"`
	MaxMessageSizeMB  int           `json:"max_message_size_mb" yaml:"max_message_size_mb"`
	ConnectionTimeout time.Duration `json:"connection_timeout" yaml:"connection_timeout"`
	RequestsPerSecond float64       `json:"requests_per_second" yaml:"requests_per_second"`
	Burst             int           `json:"burst" yaml:"burst"`
}

type ObservabilityConfig struct {
	Enabled      bool          `json:"enabled" yaml:"enabled"`
	Port         int           `json:"port" yaml:"port"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	ServiceName string  `json:"service_name" yaml:"service_name"`
	Endpoint    string  `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Insecure    bool    `json:"insecure" yaml:"insecure"`
	SampleRatio float64 `json:"sample_ratio" yaml:"sample_ratio"`
}

type MetricsConfig struct {
	Namespace string `json:"namespace" yaml:"namespace"`
}
