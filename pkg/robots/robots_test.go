package robots

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ajitpratap0/harvester/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const policyText = `User-agent: *
Disallow: /private/
Crawl-delay: 1

User-agent: BadBot
Disallow: /
`

func newHost(t *testing.T) (*httptest.Server, *int) {
	t.Helper()
	robotsHits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			robotsHits++
			_, _ = io.WriteString(w, policyText)
			return
		}
		_, _ = io.WriteString(w, "ok "+r.Header.Get("User-Agent"))
	}))
	t.Cleanup(srv.Close)
	return srv, &robotsHits
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeInherit, false},
		{"inherit", ModeInherit, false},
		{"FORCE", ModeForce, false},
		{"never", ModeNever, false},
		{"sometimes", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if tt.wantErr {
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	assert.True(t, ModeForce.Enabled(Config{}))
	assert.False(t, ModeNever.Enabled(Config{Enabled: true}))
	assert.True(t, ModeInherit.Enabled(Config{Enabled: true}))
	assert.False(t, ModeInherit.Enabled(Config{}))
}

func TestFetchDisabled(t *testing.T) {
	srv, hits := newHost(t)
	p, err := Fetch(context.Background(), srv.Client(), ModeNever, Config{Enabled: true}, srv.URL)
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Zero(t, *hits)
	assert.True(t, p.Allowed("/private/x"))
}

func TestFetchAndEnforce(t *testing.T) {
	srv, hits := newHost(t)
	cfg := Config{Enabled: true, UserAgent: "TestBot"}

	p, err := Fetch(context.Background(), srv.Client(), ModeInherit, cfg, srv.URL+"/api/3")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 1, *hits)
	assert.True(t, p.Allowed("/public"))
	assert.False(t, p.Allowed("/private/data"))
	assert.Equal(t, time.Second, p.CrawlDelay())

	client := &http.Client{Transport: NewTransport(srv.Client().Transport, p, cfg.UserAgent)}

	resp, err := client.Get(srv.URL + "/public")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok TestBot", string(body))

	_, err = client.Get(srv.URL + "/private/data")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypePermission))
}

func TestPolicyPerAgent(t *testing.T) {
	p, err := Parse("example.org", http.StatusOK, []byte(policyText), "BadBot")
	require.NoError(t, err)
	assert.False(t, p.Allowed("/anything"))
}

func TestMissingPolicyAllowsAll(t *testing.T) {
	p, err := Parse("example.org", http.StatusNotFound, nil, "TestBot")
	require.NoError(t, err)
	assert.True(t, p.Allowed("/private/data"))
}

func TestFetchInvalidHost(t *testing.T) {
	_, err := Fetch(context.Background(), http.DefaultClient, ModeForce, Config{}, "not a url")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "invalid host url"))
}

func TestUnavailablePolicyDeniesAll(t *testing.T) {
	p, err := Parse("example.org", http.StatusServiceUnavailable, nil, "TestBot")
	require.NoError(t, err)
	assert.False(t, p.Allowed("/"))
}
