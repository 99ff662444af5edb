package ckan

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ajitpratap0/harvester/pkg/clients"
	"github.com/ajitpratap0/harvester/pkg/errors"
)

// Dataset is a CKAN package as returned by the action API.
type Dataset struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Title            string     `json:"title"`
	Notes            string     `json:"notes"`
	MetadataModified string     `json:"metadata_modified"`
	Resources        []Resource `json:"resources"`
}

// Resource is one distribution of a dataset.
type Resource struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Format      string `json:"format"`
	Created     string `json:"created"`
}

type searchResponse struct {
	Success bool `json:"success"`
	Result  struct {
		Count   int       `json:"count"`
		Results []Dataset `json:"results"`
	} `json:"result"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"__type"`
	} `json:"error"`
}

// Client talks to the CKAN action API of one host.
type Client struct {
	http   *clients.HTTPClient
	base   *url.URL
	apiKey string
}

// NewClient creates a client for the CKAN instance at base.
func NewClient(http *clients.HTTPClient, base *url.URL, apiKey string) *Client {
	return &Client{http: http, base: base, apiKey: apiKey}
}

// PackageSearch returns rows datasets starting at start. When since is set only
// datasets modified at or after since are listed.
func (c *Client) PackageSearch(ctx context.Context, start, rows int, since *time.Time) ([]Dataset, int, error) {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/3/action/package_search"
	q := url.Values{}
	q.Set("start", strconv.Itoa(start))
	q.Set("rows", strconv.Itoa(rows))
	q.Set("sort", "metadata_modified asc")
	if since != nil {
		q.Set("fq", "metadata_modified:["+since.UTC().Format("2006-01-02T15:04:05Z")+" TO *]")
	}
	u.RawQuery = q.Encode()

	var headers map[string]string
	if c.apiKey != "" {
		headers = map[string]string{"Authorization": c.apiKey}
	}

	var resp searchResponse
	if err := c.http.GetJSON(ctx, u.String(), headers, &resp); err != nil {
		return nil, 0, err
	}
	if !resp.Success {
		msg := "package_search failed"
		if resp.Error != nil && resp.Error.Message != "" {
			msg = msg + ": " + resp.Error.Message
		}
		return nil, 0, errors.New(errors.ErrorTypeInput, msg).WithDetail("host", c.base.Host)
	}
	return resp.Result.Results, resp.Result.Count, nil
}
