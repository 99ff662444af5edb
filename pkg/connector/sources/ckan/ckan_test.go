package ckan

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ajitpratap0/harvester/pkg/clients"
	"github.com/ajitpratap0/harvester/pkg/connector/core"
	"github.com/ajitpratap0/harvester/pkg/errors"
	"github.com/ajitpratap0/harvester/pkg/models"
	"github.com/ajitpratap0/harvester/pkg/testutil"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// portal is a fake CKAN instance serving a fixed list of datasets.
type portal struct {
	datasets []Dataset
	robots   string
	failOnce map[int]bool

	mu      sync.Mutex
	queries []map[string]string
	auth    []string
}

func (p *portal) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/robots.txt":
		if p.robots == "" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(p.robots))
	case "/api/3/action/package_search":
		q := r.URL.Query()
		start, _ := strconv.Atoi(q.Get("start"))
		rows, _ := strconv.Atoi(q.Get("rows"))

		p.mu.Lock()
		p.queries = append(p.queries, map[string]string{"start": q.Get("start"), "rows": q.Get("rows"), "fq": q.Get("fq")})
		p.auth = append(p.auth, r.Header.Get("Authorization"))
		fail := p.failOnce[start]
		delete(p.failOnce, start)
		p.mu.Unlock()

		if fail {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}

		var page []Dataset
		if start < len(p.datasets) {
			end := start + rows
			if end > len(p.datasets) {
				end = len(p.datasets)
			}
			page = p.datasets[start:end]
		}
		resp := map[string]interface{}{
			"success": true,
			"result":  map[string]interface{}{"count": len(p.datasets), "results": page},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	default:
		http.NotFound(w, r)
	}
}

func (p *portal) starts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.queries))
	for i, q := range p.queries {
		out[i] = q["start"]
	}
	return out
}

func testHTTPConfig() *clients.HTTPConfig {
	cfg := clients.DefaultHTTPConfig()
	cfg.EnableHTTP2 = false
	cfg.RateLimit = 0
	cfg.MaxRetries = 0
	cfg.CircuitBreakerEnabled = false
	cfg.RequestTimeout = 5 * time.Second
	return cfg
}

func sampleDatasets() []Dataset {
	return []Dataset{
		{
			ID: "d1", Name: "roads", Title: "Road network", MetadataModified: "2024-03-01T10:00:00.000000",
			Resources: []Resource{
				{ID: "r1", Name: "Roads WMS", URL: "https://maps.example.org/wms?service=WMS&request=GetCapabilities", Created: "2024-02-01T08:30:00.123456"},
				{ID: "r2", Description: "csv export", URL: "https://example.org/roads.csv", Created: "not a date"},
			},
		},
		{ID: "d2", Name: "empty", Title: "No resources"},
		{
			ID: "d3", Name: "rivers",
			Resources: []Resource{{URL: "https://example.org/rivers.zip"}},
		},
	}
}

func newBroker(t *testing.T, srvURL string, props map[string]string) *Broker {
	t.Helper()
	p := map[string]string{PropertyHostURL: srvURL}
	for k, v := range props {
		p[k] = v
	}
	def := models.NewEntityDefinition(Type, p)
	def.Label = "portal"
	b, err := New(def, testHTTPConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Terminate() })
	return b
}

func drain(t *testing.T, ctx context.Context, it core.Iterator) []*models.DataReference {
	t.Helper()
	var refs []*models.DataReference
	for {
		ok, err := it.HasNext(ctx)
		require.NoError(t, err)
		if !ok {
			return refs
		}
		ref, err := it.Next(ctx)
		require.NoError(t, err)
		refs = append(refs, ref)
	}
}

func TestBrokerURI(t *testing.T) {
	def := models.NewEntityDefinition(Type, map[string]string{PropertyHostURL: "https://example.org", PropertyAPIKey: ""})
	b, err := NewBroker(def)
	require.NoError(t, err)
	assert.Equal(t, "ckan://example.org", b.BrokerURI())

	def.Properties[PropertyHostURL] = "https://data.example.org/portal/"
	b, err = NewBroker(def)
	require.NoError(t, err)
	assert.Equal(t, "ckan://data.example.org/portal", b.BrokerURI())
}

func TestNewRejectsBadDefinitions(t *testing.T) {
	tests := []struct {
		name  string
		props map[string]string
	}{
		{"missing host", nil},
		{"relative host", map[string]string{PropertyHostURL: "example.org"}},
		{"unsupported scheme", map[string]string{PropertyHostURL: "ftp://example.org"}},
		{"bad page size", map[string]string{PropertyHostURL: "https://example.org", PropertyPageSize: "0"}},
		{"bad robots mode", map[string]string{PropertyHostURL: "https://example.org", PropertyRobots: "sometimes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBroker(models.NewEntityDefinition(Type, tt.props))
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
		})
	}
}

func TestHarvestPagesThroughResources(t *testing.T) {
	p := &portal{datasets: sampleDatasets()}
	srv := httptest.NewServer(p)
	defer srv.Close()

	b := newBroker(t, srv.URL, map[string]string{PropertyAPIKey: "secret", PropertyPageSize: "2"})
	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	require.NoError(t, b.Initialize(ctx, core.InitContext{RobotsEnabled: true, Logger: testutil.TestLogger(t)}))

	it, err := b.Iterator(ctx, core.IteratorContext{})
	require.NoError(t, err)
	refs := drain(t, ctx, it)

	require.Len(t, refs, 3)
	assert.Equal(t, "r1", refs[0].ID)
	assert.Equal(t, "r2", refs[1].ID)
	assert.Equal(t, "d3", refs[2].ID, "resource without id falls back to the dataset id")

	for _, ref := range refs {
		assert.Equal(t, b.BrokerURI(), ref.BrokerURI)
		assert.Equal(t, "portal", ref.SourceLabel)
		assert.Equal(t, ref.ID, ref.ContentURI)
		assert.Equal(t, "application/xml", ref.ContentType)
	}

	require.NotNil(t, refs[0].LastModified)
	assert.Equal(t, time.Date(2024, 2, 1, 8, 30, 0, 123456000, time.UTC), *refs[0].LastModified)
	assert.Nil(t, refs[1].LastModified)
	assert.Nil(t, refs[2].LastModified)

	first := string(refs[0].Content)
	assert.Contains(t, first, "<dc:identifier>r1</dc:identifier>")
	assert.Contains(t, first, "<dc:title>Roads WMS</dc:title>")
	assert.Contains(t, first, "2024-03-01T10:00:00.000000")
	assert.Contains(t, string(refs[1].Content), "<dc:title>Road network</dc:title>")
	assert.Contains(t, string(refs[1].Content), "<dc:description>csv export</dc:description>")
	assert.Contains(t, string(refs[2].Content), "<dc:title>rivers</dc:title>")

	assert.Equal(t, []string{"0", "2", "3"}, p.starts())
	for _, a := range p.auth {
		assert.Equal(t, "secret", a)
	}
}

func TestIncrementalHarvestFiltersByModification(t *testing.T) {
	p := &portal{}
	srv := httptest.NewServer(p)
	defer srv.Close()

	b := newBroker(t, srv.URL, nil)
	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	require.NoError(t, b.Initialize(ctx, core.InitContext{}))

	since := time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("CET", 3600))
	it, err := b.Iterator(ctx, core.IteratorContext{LastHarvest: &since})
	require.NoError(t, err)
	assert.Empty(t, drain(t, ctx, it))

	require.Len(t, p.queries, 1)
	assert.Equal(t, "metadata_modified:[2025-01-02T02:04:05Z TO *]", p.queries[0]["fq"])
	assert.Equal(t, "", p.auth[0])
}

func TestFailedPageIsRequestedAgain(t *testing.T) {
	p := &portal{datasets: sampleDatasets()[:1], failOnce: map[int]bool{0: true}}
	srv := httptest.NewServer(p)
	defer srv.Close()

	b := newBroker(t, srv.URL, nil)
	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	require.NoError(t, b.Initialize(ctx, core.InitContext{}))

	it, err := b.Iterator(ctx, core.IteratorContext{})
	require.NoError(t, err)

	_, err = it.HasNext(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInput))

	refs := drain(t, ctx, it)
	assert.Len(t, refs, 2)
	assert.Equal(t, []string{"0", "0", "1"}, p.starts())
}

func TestRobotsPolicy(t *testing.T) {
	p := &portal{datasets: sampleDatasets(), robots: "User-agent: *\nDisallow: /api/\n"}
	srv := httptest.NewServer(p)
	defer srv.Close()
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	t.Run("denied", func(t *testing.T) {
		b := newBroker(t, srv.URL, nil)
		require.NoError(t, b.Initialize(ctx, core.InitContext{RobotsEnabled: true}))
		it, err := b.Iterator(ctx, core.IteratorContext{})
		require.NoError(t, err)
		_, err = it.HasNext(ctx)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeInput))
		assert.True(t, strings.Contains(err.Error(), "robots.txt"))
	})

	t.Run("ignored by task", func(t *testing.T) {
		b := newBroker(t, srv.URL, nil)
		require.NoError(t, b.Initialize(ctx, core.InitContext{RobotsEnabled: true, IgnoreRobotsTxt: true}))
		it, err := b.Iterator(ctx, core.IteratorContext{})
		require.NoError(t, err)
		assert.Len(t, drain(t, ctx, it), 3)
	})

	t.Run("never mode", func(t *testing.T) {
		b := newBroker(t, srv.URL, map[string]string{PropertyRobots: "never"})
		require.NoError(t, b.Initialize(ctx, core.InitContext{RobotsEnabled: true}))
		it, err := b.Iterator(ctx, core.IteratorContext{})
		require.NoError(t, err)
		assert.Len(t, drain(t, ctx, it), 3)
	})
}

func TestIteratorRequiresInitialize(t *testing.T) {
	b := newBroker(t, "https://example.org", nil)
	_, err := b.Iterator(context.Background(), core.IteratorContext{})
	require.Error(t, err)
	assert.NoError(t, b.Terminate())
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want *time.Time
	}{
		{"", nil},
		{"garbage", nil},
		{"2024-05-06", ptr(time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC))},
		{"2024-05-06T07:08:09", ptr(time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC))},
		{"2024-05-06T07:08:09+02:00", ptr(time.Date(2024, 5, 6, 5, 8, 9, 0, time.UTC))},
	}
	for _, tt := range tests {
		got := parseTimestamp(tt.in)
		if tt.want == nil {
			assert.Nil(t, got, tt.in)
			continue
		}
		require.NotNil(t, got, tt.in)
		assert.True(t, tt.want.Equal(*got), tt.in)
	}
}

func ptr(t time.Time) *time.Time { return &t }
