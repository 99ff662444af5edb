// Package robots fetches robots.txt crawl policies and enforces them on
// outbound HTTP requests.
package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ajitpratap0/harvester/pkg/errors"
	"github.com/temoto/robotstxt"
)

// Mode tells a broker how to treat the crawl policy of its host.
type Mode string

const (
	// ModeInherit follows the engine-wide setting
	ModeInherit Mode = "inherit"
	// ModeForce always honors robots.txt
	ModeForce Mode = "force"
	// ModeNever ignores robots.txt
	ModeNever Mode = "never"
)

// DefaultUserAgent identifies the harvester to remote hosts.
const DefaultUserAgent = "HarvesterBot/1.0"

// maxPolicySize bounds how much of a robots.txt file is read.
const maxPolicySize = 512 * 1024

// Config is the engine-wide crawl policy setting.
type Config struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	UserAgent string `mapstructure:"user_agent" yaml:"user_agent"`
}

// ParseMode parses a mode name; blank means inherit.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeInherit:
		return ModeInherit, nil
	case ModeForce:
		return ModeForce, nil
	case ModeNever:
		return ModeNever, nil
	default:
		return "", errors.New(errors.ErrorTypeConfig, fmt.Sprintf("unknown robots mode %q", s))
	}
}

// Enabled reports whether the policy must be honored.
func (m Mode) Enabled(cfg Config) bool {
	switch m {
	case ModeForce:
		return true
	case ModeNever:
		return false
	default:
		return cfg.Enabled
	}
}

// Policy is the parsed crawl policy of one host for one user agent. A nil
// Policy allows everything.
type Policy struct {
	host      string
	userAgent string
	data      *robotstxt.RobotsData
	group     *robotstxt.Group
}

// Parse builds a policy from a robots.txt response.
func Parse(host string, status int, body []byte, userAgent string) (*Policy, error) {
	data, err := robotstxt.FromStatusAndBytes(status, body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "failed to parse robots.txt")
	}
	return &Policy{host: host, userAgent: userAgent, data: data, group: data.FindGroup(userAgent)}, nil
}

// Host returns the host the policy applies to.
func (p *Policy) Host() string {
	if p == nil {
		return ""
	}
	return p.host
}

// Allowed reports whether path may be fetched.
func (p *Policy) Allowed(path string) bool {
	if p == nil {
		return true
	}
	if path == "" {
		path = "/"
	}
	return p.data.TestAgent(path, p.userAgent)
}

// CrawlDelay returns the requested delay between requests.
func (p *Policy) CrawlDelay() time.Duration {
	if p == nil || p.group == nil {
		return 0
	}
	return p.group.CrawlDelay
}

// Fetch reads the crawl policy of the host of hostURL. It returns a nil
// policy when mode and cfg say the policy is not to be honored.
func Fetch(ctx context.Context, client *http.Client, mode Mode, cfg Config, hostURL string) (*Policy, error) {
	if !mode.Enabled(cfg) {
		return nil, nil
	}

	base, err := url.Parse(hostURL)
	if err != nil || base.Host == "" {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("invalid host url %q", hostURL))
	}
	robotsURL := url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/robots.txt"}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to create robots.txt request")
	}
	userAgent := userAgentOf(cfg)
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to fetch robots.txt").
			WithDetail("url", robotsURL.String())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPolicySize))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to read robots.txt")
	}
	return Parse(base.Host, resp.StatusCode, body, userAgent)
}

func userAgentOf(cfg Config) string {
	if cfg.UserAgent != "" {
		return cfg.UserAgent
	}
	return DefaultUserAgent
}
