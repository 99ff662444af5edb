// Package clients provides the HTTP client used by harvesting sources
package clients

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ajitpratap0/harvester/pkg/errors"
	"github.com/ajitpratap0/harvester/pkg/metrics"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/time/rate"
)

// HTTPConfig configures the HTTP client
type HTTPConfig struct {
	// Connection settings
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host" yaml:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	DialTimeout         time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	EnableHTTP2         bool          `mapstructure:"enable_http2" yaml:"enable_http2"`

	// RequestTimeout bounds one request including the body read
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent" yaml:"user_agent"`

	// Rate limiting, in requests per second; zero disables it
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst" yaml:"rate_burst"`

	// Retries of idempotent requests failing with a retryable error
	MaxRetries   int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`

	// Circuit breaker
	CircuitBreakerEnabled bool          `mapstructure:"circuit_breaker_enabled" yaml:"circuit_breaker_enabled"`
	FailureThreshold      int           `mapstructure:"failure_threshold" yaml:"failure_threshold"`
	SuccessThreshold      int           `mapstructure:"success_threshold" yaml:"success_threshold"`
	OpenTimeout           time.Duration `mapstructure:"open_timeout" yaml:"open_timeout"`
}

// DefaultHTTPConfig returns the default configuration
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		DialTimeout:           30 * time.Second,
		EnableHTTP2:           true,
		RequestTimeout:        60 * time.Second,
		UserAgent:             "HarvesterBot/1.0",
		RateLimit:             10,
		RateBurst:             5,
		MaxRetries:            3,
		RetryBackoff:          500 * time.Millisecond,
		CircuitBreakerEnabled: true,
		FailureThreshold:      5,
		SuccessThreshold:      1,
		OpenTimeout:           30 * time.Second,
	}
}

// HTTPClient wraps http.Client with rate limiting, retries, a circuit
// breaker and request metrics
type HTTPClient struct {
	config     *HTTPConfig
	logger     *zap.Logger
	transport  *http.Transport
	httpClient *http.Client

	rateLimiter    *rate.Limiter
	circuitBreaker *CircuitBreaker
}

// NewHTTPClient creates a new HTTP client
func NewHTTPClient(config *HTTPConfig, logger *zap.Logger) *HTTPClient {
	if config == nil {
		config = DefaultHTTPConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := &HTTPClient{
		config: config,
		logger: logger.With(zap.String("component", "http_client")),
	}

	client.transport = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   config.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if config.EnableHTTP2 {
		if err := http2.ConfigureTransport(client.transport); err != nil {
			client.logger.Warn("failed to configure HTTP/2", zap.Error(err))
		}
	}

	client.httpClient = &http.Client{
		Transport: client.transport,
		Timeout:   config.RequestTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	if config.RateLimit > 0 {
		burst := config.RateBurst
		if burst <= 0 {
			burst = 1
		}
		client.rateLimiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}

	if config.CircuitBreakerEnabled {
		client.circuitBreaker = NewCircuitBreaker(CircuitBreakerConfig{
			FailureThreshold: config.FailureThreshold,
			SuccessThreshold: config.SuccessThreshold,
			Timeout:          config.OpenTimeout,
		}, logger)
	}

	return client
}

// WithTransport returns a client sharing this client's limits whose
// transport is wrapped by wrap. It is how a source installs a crawl policy.
func (c *HTTPClient) WithTransport(wrap func(http.RoundTripper) http.RoundTripper) *HTTPClient {
	clone := *c
	hc := *c.httpClient
	hc.Transport = wrap(c.httpClient.Transport)
	clone.httpClient = &hc
	return &clone
}

// StandardClient returns the underlying *http.Client
func (c *HTTPClient) StandardClient() *http.Client {
	return c.httpClient
}

// UserAgent returns the configured user agent
func (c *HTTPClient) UserAgent() string {
	return c.config.UserAgent
}

// Get performs an HTTP GET request
func (c *HTTPClient) Get(ctx context.Context, url string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid request")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	return c.Do(req)
}

// GetJSON performs a GET request and decodes a 2xx JSON body into out
func (c *HTTPClient) GetJSON(ctx context.Context, url string, headers map[string]string, out interface{}) error {
	if headers == nil {
		headers = map[string]string{}
	}
	if _, ok := headers["Accept"]; !ok {
		headers["Accept"] = "application/json"
	}

	resp, err := c.Get(ctx, url, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, "failed to decode response").
			WithDetail("url", url)
	}
	return nil
}

// Do performs a request. Non-2xx responses are returned as typed errors with
// the body closed. GET and HEAD requests failing with a retryable error are
// retried with exponential backoff.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" && c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	attempts := 1
	if req.Method == http.MethodGet || req.Method == http.MethodHead {
		attempts += c.config.MaxRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := c.config.RetryBackoff * time.Duration(1<<(attempt-1))
			c.logger.Debug("retrying request",
				zap.String("url", req.URL.Redacted()),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr))
			select {
			case <-req.Context().Done():
				return nil, errors.Wrap(req.Context().Err(), errors.ErrorTypeTimeout, "request cancelled")
			case <-time.After(backoff):
			}
		}

		resp, err := c.doOnce(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !errors.IsRetryable(err) {
			break
		}
	}
	return nil, lastErr
}

func (c *HTTPClient) doOnce(req *http.Request) (*http.Response, error) {
	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(req.Context()); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeTimeout, "rate limiter wait interrupted")
		}
	}

	if c.circuitBreaker != nil && !c.circuitBreaker.Allow() {
		return nil, errors.New(errors.ErrorTypeConnection, "circuit breaker open").
			WithDetail("host", req.URL.Host)
	}

	timer := metrics.NewTimer()
	resp, err := c.httpClient.Do(req)
	code := "error"
	if resp != nil {
		code = strconv.Itoa(resp.StatusCode)
	}
	metrics.HTTPRequestDuration.WithLabelValues(req.URL.Host, code).Observe(timer.Stop().Seconds())

	if err != nil {
		// crawl policy denials are not a sign of an unhealthy host
		if errors.IsType(err, errors.ErrorTypePermission) {
			return nil, err
		}
		c.recordFailure()
		if req.Context().Err() != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeTimeout, "request cancelled")
		}
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "request failed").
			WithDetail("url", req.URL.Redacted())
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.recordSuccess()
		return resp, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	resp.Body.Close()

	statusErr := errors.New(statusErrorType(resp.StatusCode), fmt.Sprintf("unexpected status %d", resp.StatusCode)).
		WithDetail("url", req.URL.Redacted()).
		WithDetail("body", string(body))
	if resp.StatusCode >= 500 {
		c.recordFailure()
	} else {
		c.recordSuccess()
	}
	return nil, statusErr
}

func statusErrorType(code int) errors.ErrorType {
	switch {
	case code == http.StatusTooManyRequests:
		return errors.ErrorTypeRateLimit
	case code == http.StatusNotFound:
		return errors.ErrorTypeNotFound
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return errors.ErrorTypePermission
	case code >= 500:
		return errors.ErrorTypeConnection
	default:
		return errors.ErrorTypeValidation
	}
}

func (c *HTTPClient) recordSuccess() {
	if c.circuitBreaker != nil {
		c.circuitBreaker.RecordSuccess()
	}
}

func (c *HTTPClient) recordFailure() {
	if c.circuitBreaker != nil {
		c.circuitBreaker.RecordFailure()
	}
}

// Close releases idle connections
func (c *HTTPClient) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}
