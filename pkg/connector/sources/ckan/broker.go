// Package ckan harvests dataset resources from CKAN open data portals.
//
// Every resource of every dataset becomes one Dublin Core record. The broker
// pages through package_search and, for incremental tasks, asks only for
// datasets modified since the last successful harvest.
package ckan

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ajitpratap0/harvester/pkg/clients"
	"github.com/ajitpratap0/harvester/pkg/connector/core"
	"github.com/ajitpratap0/harvester/pkg/connector/sdk"
	"github.com/ajitpratap0/harvester/pkg/errors"
	"github.com/ajitpratap0/harvester/pkg/meta"
	"github.com/ajitpratap0/harvester/pkg/models"
	"github.com/ajitpratap0/harvester/pkg/robots"
	"go.uber.org/zap"
)

// Type is the connector type name.
const Type = "CKAN"

// Definition properties.
const (
	PropertyHostURL  = "hostUrl"
	PropertyAPIKey   = "apiKey"
	PropertyRobots   = "robotsTxt"
	PropertyPageSize = "pageSize"
)

const defaultPageSize = 10

// Broker is the CKAN input broker.
type Broker struct {
	def      models.EntityDefinition
	base     *url.URL
	apiKey   string
	pageSize int
	robots   robots.Mode
	httpCfg  *clients.HTTPConfig
	builder  meta.Builder

	mu     sync.Mutex
	http   *clients.HTTPClient
	client *Client
	logger *zap.Logger
}

// NewBroker builds a broker from def. It uses the HTTP settings of the engine.
func NewBroker(def models.EntityDefinition) (core.InputBroker, error) {
	return New(def, nil)
}

// New builds a broker from def. A nil httpCfg selects the settings handed
// over on Initialize.
func New(def models.EntityDefinition, httpCfg *clients.HTTPConfig) (*Broker, error) {
	v := sdk.NewPropertyValidator(def)
	host := v.Required(PropertyHostURL)
	apiKey := v.String(PropertyAPIKey, "")
	pageSize := v.Int(PropertyPageSize, defaultPageSize, 1, 1000)
	mode := v.Enum(PropertyRobots, string(robots.ModeInherit),
		string(robots.ModeInherit), string(robots.ModeForce), string(robots.ModeNever))
	if err := v.Err(); err != nil {
		return nil, err
	}

	base, err := url.Parse(host)
	if err != nil || base.Host == "" || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, errors.New(errors.ErrorTypeConfig, "invalid CKAN host url").
			WithDetail("type", Type).
			WithDetail(PropertyHostURL, host)
	}
	base.RawQuery = ""
	base.Fragment = ""

	return &Broker{
		def:      def.Clone(),
		base:     base,
		apiKey:   apiKey,
		pageSize: pageSize,
		robots:   robots.Mode(mode),
		httpCfg:  httpCfg,
		builder:  meta.NewDublinCoreBuilder(),
		logger:   zap.NewNop(),
	}, nil
}

// Initialize creates the HTTP client and installs the crawl policy of the
// host unless the task ignores robots.txt. A policy that cannot be fetched is
// logged and not enforced.
func (b *Broker) Initialize(ctx context.Context, initCtx core.InitContext) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.logger = initCtx.Log().With(zap.String("broker", b.BrokerURI()))

	var cfg clients.HTTPConfig
	switch {
	case b.httpCfg != nil:
		cfg = *b.httpCfg
	case initCtx.HTTP != nil:
		cfg = *initCtx.HTTP
	default:
		cfg = *clients.DefaultHTTPConfig()
	}
	if initCtx.UserAgent != "" {
		cfg.UserAgent = initCtx.UserAgent
	}
	hc := clients.NewHTTPClient(&cfg, b.logger)

	if !initCtx.IgnoreRobotsTxt {
		policy, err := robots.Fetch(ctx, hc.StandardClient(), b.robots,
			robots.Config{Enabled: initCtx.RobotsEnabled, UserAgent: cfg.UserAgent}, b.base.String())
		switch {
		case err != nil:
			b.logger.Warn("robots.txt unavailable, crawling without a policy", zap.Error(err))
		case policy != nil:
			hc = hc.WithTransport(func(rt http.RoundTripper) http.RoundTripper {
				return robots.NewTransport(rt, policy, cfg.UserAgent)
			})
			b.logger.Debug("robots.txt policy installed", zap.Duration("crawl_delay", policy.CrawlDelay()))
		}
	}

	b.http = hc
	b.client = NewClient(hc, b.base, b.apiKey)
	return nil
}

// Terminate releases the HTTP client.
func (b *Broker) Terminate() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.http == nil {
		return nil
	}
	err := b.http.Close()
	b.http = nil
	b.client = nil
	return err
}

func (b *Broker) EntityDefinition() models.EntityDefinition { return b.def.Clone() }

// BrokerURI is ckan://host followed by the portal path, if any.
func (b *Broker) BrokerURI() string {
	u := url.URL{Scheme: "ckan", Host: b.base.Host, Path: strings.TrimSuffix(b.base.Path, "/")}
	return u.String()
}

// Iterator lists every resource of every dataset, one page of datasets at a
// time. The offset only advances after a page was read, so a failed page is
// requested again on the next HasNext.
func (b *Broker) Iterator(_ context.Context, iterCtx core.IteratorContext) (core.Iterator, error) {
	b.mu.Lock()
	client := b.client
	b.mu.Unlock()
	if client == nil {
		return nil, errors.New(errors.ErrorTypeInternal, "broker is not initialized").WithDetail("broker", b.BrokerURI())
	}

	since := iterCtx.LastHarvest
	offset := 0
	fetch := func(ctx context.Context) ([]Dataset, error) {
		page, total, err := client.PackageSearch(ctx, offset, b.pageSize, since)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInput, "failed to list datasets").
				WithDetail("offset", offset)
		}
		offset += len(page)
		b.logger.Debug("dataset page read",
			zap.Int("offset", offset),
			zap.Int("page", len(page)),
			zap.Int("total", total))
		return page, nil
	}
	children := func(d Dataset) []Resource { return d.Resources }

	return sdk.NewPagedIterator(fetch, children, b.reference), nil
}

func (b *Broker) reference(d Dataset, r Resource) (*models.DataReference, error) {
	id := meta.FirstNonBlank(r.ID, d.ID)

	attrs := meta.Attributes{}
	attrs.Set(meta.AttrIdentifier, id)
	attrs.Set(meta.AttrTitle, meta.FirstNonBlank(r.Name, d.Title, d.Name))
	attrs.Set(meta.AttrDescription, r.Description)
	attrs.Set(meta.AttrModified, d.MetadataModified)
	if strings.TrimSpace(r.URL) != "" {
		attrs.Set(meta.AttrResourceURL, r.URL)
		attrs.Set(meta.AttrResourceURLScheme, meta.SchemeName(r.URL))
	}

	content, err := b.builder.Create(attrs)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInput, "failed to build metadata").
			WithDetail("dataset", d.ID).
			WithDetail("resource", r.ID)
	}

	return &models.DataReference{
		BrokerURI:    b.BrokerURI(),
		SourceLabel:  b.def.Label,
		ID:           id,
		LastModified: parseTimestamp(r.Created),
		ContentURI:   id,
		Content:      content,
		ContentType:  b.builder.ContentType(),
	}, nil
}

// CKAN writes timestamps without a zone; those are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseTimestamp(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return &t
		}
	}
	return nil
}
