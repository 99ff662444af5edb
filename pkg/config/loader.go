package config

import (
	"strings"

	"github.com/ajitpratap0/harvester/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. HARVESTER_STORE_DSN.
const EnvPrefix = "HARVESTER"

// LoadEngine reads the engine configuration from path, applies environment
// overrides and validates the result. An empty path yields the defaults plus
// environment overrides.
func LoadEngine(path string) (*EngineConfig, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read config file").
				WithDetail("path", path)
		}
	}

	cfg := &EngineConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys absent
// from the file.
func setDefaults(v *viper.Viper, d *EngineConfig) {
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.development", d.Logging.Development)
	v.SetDefault("logging.encoding", d.Logging.Encoding)
	v.SetDefault("logging.output_paths", d.Logging.OutputPaths)

	v.SetDefault("processor.max_concurrent", d.Processor.MaxConcurrent)
	v.SetDefault("processor.input_error_policy", d.Processor.InputErrorPolicy)
	v.SetDefault("processor.max_input_errors", d.Processor.MaxInputErrors)

	v.SetDefault("http.max_idle_conns_per_host", d.HTTP.MaxIdleConnsPerHost)
	v.SetDefault("http.idle_conn_timeout", d.HTTP.IdleConnTimeout)
	v.SetDefault("http.dial_timeout", d.HTTP.DialTimeout)
	v.SetDefault("http.enable_http2", d.HTTP.EnableHTTP2)
	v.SetDefault("http.request_timeout", d.HTTP.RequestTimeout)
	v.SetDefault("http.user_agent", d.HTTP.UserAgent)
	v.SetDefault("http.rate_limit", d.HTTP.RateLimit)
	v.SetDefault("http.rate_burst", d.HTTP.RateBurst)
	v.SetDefault("http.max_retries", d.HTTP.MaxRetries)
	v.SetDefault("http.retry_backoff", d.HTTP.RetryBackoff)
	v.SetDefault("http.circuit_breaker_enabled", d.HTTP.CircuitBreakerEnabled)
	v.SetDefault("http.failure_threshold", d.HTTP.FailureThreshold)
	v.SetDefault("http.success_threshold", d.HTTP.SuccessThreshold)
	v.SetDefault("http.open_timeout", d.HTTP.OpenTimeout)

	v.SetDefault("robots.enabled", d.Robots.Enabled)
	v.SetDefault("robots.user_agent", d.Robots.UserAgent)

	v.SetDefault("scheduler.location", d.Scheduler.Location)
	v.SetDefault("scheduler.shutdown_timeout", d.Scheduler.ShutdownTimeout)

	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.dsn", d.Store.DSN)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.addr", d.Metrics.Addr)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
}
