package robots

import (
	"fmt"
	"net/http"

	"github.com/ajitpratap0/harvester/pkg/errors"
	"golang.org/x/time/rate"
)

// Transport enforces a Policy on requests to the policy's host. Requests to
// other hosts pass through untouched.
type Transport struct {
	base      http.RoundTripper
	policy    *Policy
	userAgent string
	limiter   *rate.Limiter
}

// NewTransport wraps base. A nil base means http.DefaultTransport.
func NewTransport(base http.RoundTripper, policy *Policy, userAgent string) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	t := &Transport{base: base, policy: policy, userAgent: userAgent}
	if d := policy.CrawlDelay(); d > 0 {
		t.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
	return t
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}

	if t.policy != nil && req.URL.Host == t.policy.Host() {
		if !t.policy.Allowed(req.URL.EscapedPath()) {
			return nil, errors.New(errors.ErrorTypePermission, fmt.Sprintf("access to %s denied by robots.txt", req.URL.Redacted())).
				WithDetail("host", req.URL.Host)
		}
		if t.limiter != nil {
			if err := t.limiter.Wait(req.Context()); err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeTimeout, "crawl delay wait interrupted")
			}
		}
	}

	return t.base.RoundTrip(req)
}
