package config

import (
	"fmt"
	"time"

	"github.com/ajitpratap0/harvester/pkg/clients"
	"github.com/ajitpratap0/harvester/pkg/errors"
	"github.com/ajitpratap0/harvester/pkg/logger"
	"github.com/ajitpratap0/harvester/pkg/robots"
)

// Input error policies
const (
	// InputErrorAbort stops pulling from the source on the first input error
	InputErrorAbort = "abort"
	// InputErrorSkip drops the failing record and keeps pulling
	InputErrorSkip = "skip"
)

// Store drivers
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// EngineConfig is the configuration of a harvester process.
type EngineConfig struct {
	// Logging configures the global zap logger
	Logging logger.Config `mapstructure:"logging" yaml:"logging"`
	// Processor bounds process execution
	Processor ProcessorConfig `mapstructure:"processor" yaml:"processor"`
	// HTTP configures the client used by network sources
	HTTP clients.HTTPConfig `mapstructure:"http" yaml:"http"`
	// Robots is the crawl policy default for brokers in inherit mode
	Robots robots.Config `mapstructure:"robots" yaml:"robots"`
	// Scheduler configures trigger scheduling
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	// Store selects where task, trigger and history definitions live
	Store StoreConfig `mapstructure:"store" yaml:"store"`
	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	// Tracing configures OpenTelemetry tracing
	Tracing TracingConfig `mapstructure:"tracing" yaml:"tracing"`
}

// ProcessorConfig controls how processes run.
type ProcessorConfig struct {
	// MaxConcurrent is the number of processes allowed to work at once
	MaxConcurrent int `mapstructure:"max_concurrent" yaml:"max_concurrent"`
	// InputErrorPolicy is "abort" or "skip"
	InputErrorPolicy string `mapstructure:"input_error_policy" yaml:"input_error_policy"`
	// MaxInputErrors bounds consecutive input errors under the skip policy
	MaxInputErrors int `mapstructure:"max_input_errors" yaml:"max_input_errors"`
}

// SchedulerConfig controls trigger scheduling.
type SchedulerConfig struct {
	// Location is the IANA time zone cron specs are evaluated in
	Location string `mapstructure:"location" yaml:"location"`
	// ShutdownTimeout bounds how long Stop waits for running jobs
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// StoreConfig selects the definition store.
type StoreConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	ServiceName string  `mapstructure:"service_name" yaml:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
}

// Default returns the default engine configuration.
func Default() *EngineConfig {
	return &EngineConfig{
		Logging: logger.Config{
			Level:    "info",
			Encoding: "json",
		},
		Processor: ProcessorConfig{
			MaxConcurrent:    4,
			InputErrorPolicy: InputErrorAbort,
			MaxInputErrors:   10,
		},
		HTTP: *clients.DefaultHTTPConfig(),
		Robots: robots.Config{
			Enabled:   true,
			UserAgent: robots.DefaultUserAgent,
		},
		Scheduler: SchedulerConfig{
			Location:        "UTC",
			ShutdownTimeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Driver: StoreMemory,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "harvester",
			SampleRate:  0.1,
		},
	}
}

// Validate checks values are within acceptable ranges.
func (c *EngineConfig) Validate() error {
	if c.Processor.MaxConcurrent <= 0 {
		return invalid("processor.max_concurrent must be positive")
	}
	switch c.Processor.InputErrorPolicy {
	case InputErrorAbort, InputErrorSkip:
	default:
		return invalid(fmt.Sprintf("processor.input_error_policy must be %q or %q", InputErrorAbort, InputErrorSkip))
	}
	if c.Processor.InputErrorPolicy == InputErrorSkip && c.Processor.MaxInputErrors <= 0 {
		return invalid("processor.max_input_errors must be positive with the skip policy")
	}
	if c.HTTP.RateLimit < 0 {
		return invalid("http.rate_limit cannot be negative")
	}
	if c.HTTP.MaxRetries < 0 {
		return invalid("http.max_retries cannot be negative")
	}
	if _, err := time.LoadLocation(c.Scheduler.Location); err != nil {
		return invalid(fmt.Sprintf("scheduler.location: %v", err))
	}
	switch c.Store.Driver {
	case StoreMemory:
	case StorePostgres:
		if c.Store.DSN == "" {
			return invalid("store.dsn is required for the postgres driver")
		}
	default:
		return invalid(fmt.Sprintf("unknown store.driver %q", c.Store.Driver))
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return invalid("metrics.addr is required when metrics are enabled")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return invalid("tracing.sample_rate must be between 0 and 1")
	}
	return nil
}

func invalid(msg string) error {
	return errors.New(errors.ErrorTypeConfig, msg)
}
