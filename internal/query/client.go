// Package query talks to the SPARQL endpoint of the Wikidata query service.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/brensch/dumpstats/internal/downloader"
	"github.com/brensch/dumpstats/internal/util"
)

const (
	// DefaultEndpoint is the public Wikidata query service.
	DefaultEndpoint = "https://query.wikidata.org/sparql"
	// EntityURIPrefix is stripped from entity URIs to obtain bare ids.
	EntityURIPrefix = "http://www.wikidata.org/entity/"
	// DefaultTimeout bounds a single query.
	DefaultTimeout = 60 * time.Second

	acceptHeader = "application/sparql-results+json"
)

// Term is one bound variable in a result row.
type Term struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Binding is one result row keyed by variable name.
type Binding map[string]Term

// Value returns the value bound to field, and whether it was bound at all.
func (b Binding) Value(field string) (string, bool) {
	t, ok := b[field]
	return t.Value, ok
}

type envelope struct {
	Results struct {
		Bindings []Binding `json:"bindings"`
	} `json:"results"`
}

// Client runs SELECT queries. Requests share the dump fetcher's rules: one
// redirect at most and the configured User-Agent.
type Client struct {
	endpoint string
	fetcher  *downloader.Fetcher
	logger   *slog.Logger
}

// NewClient creates a client for endpoint. A nil httpClient gets a
// DefaultTimeout client.
func NewClient(endpoint string, httpClient *http.Client, userAgent string, logger *slog.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if httpClient == nil {
		httpClient = util.DefaultHTTPClient(DefaultTimeout)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "query"), slog.String("endpoint", endpoint))
	return &Client{
		endpoint: endpoint,
		fetcher:  downloader.NewFetcher(httpClient, userAgent, logger),
		logger:   logger,
	}
}

// Select runs sparql and returns its result rows.
func (c *Client) Select(ctx context.Context, sparql string) ([]Binding, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse query endpoint %s: %w", c.endpoint, err)
	}
	q := u.Query()
	q.Set("query", sparql)
	u.RawQuery = q.Encode()

	start := time.Now()
	body, err := c.fetcher.GetBytesAccepting(ctx, u.String(), acceptHeader)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", c.endpoint, err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode query response: %w", err)
	}
	c.logger.Debug("Query complete.", slog.Int("rows", len(env.Results.Bindings)), slog.Duration("duration", time.Since(start)))
	return env.Results.Bindings, nil
}

// StripEntityURI turns http://www.wikidata.org/entity/Q42 into Q42.
// Values without the prefix are returned unchanged.
func StripEntityURI(v string) string {
	return strings.TrimPrefix(v, EntityURIPrefix)
}
