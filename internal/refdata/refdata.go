// Package refdata provides the reference datasets the collectors need,
// fetched from the query service and cached on disk.
package refdata

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/brensch/dumpstats/internal/cache"
	"github.com/brensch/dumpstats/internal/query"
)

const (
	// ReferencePropertiesFile holds a comma separated list of property ids.
	ReferencePropertiesFile = "refProps.json"
	// WikimediaProjectsFile holds a JSON list of {entityID, dbname}.
	WikimediaProjectsFile = "mediawikis.json"
)

// Properties intended for use in references: those constrained to reference
// scope plus every Wikidata property for citations.
const referencePropertiesQuery = `SELECT DISTINCT ?prop WHERE {
  { ?prop p:P2302 [ ps:P2302 wd:Q53869507; pq:P5314 wd:Q54828450 ]. }
  UNION
  { ?prop wdt:P31/wdt:P279* wd:Q18608359. }
}`

// Every Wikimedia project with its database name.
const wikimediaProjectsQuery = `SELECT ?Wikimedia_project ?Wikimedia_database_name WHERE {
  ?Wikimedia_project wdt:P31?/wdt:P279* wd:Q14827288.
  ?Wikimedia_project wdt:P1800 ?Wikimedia_database_name.
}`

// WikimediaProject maps an item id to its database name, e.g. Q328 -> enwiki.
type WikimediaProject struct {
	EntityID string `json:"entityID"`
	DBName   string `json:"dbname"`
}

// Selecter runs a SELECT query.
type Selecter interface {
	Select(ctx context.Context, sparql string) ([]query.Binding, error)
}

// Provider serves datasets from the cache store, refreshing them through the
// query service when they are stale.
type Provider struct {
	store      *cache.Store
	query      Selecter
	maxAge     time.Duration
	allowStale bool
	logger     *slog.Logger
}

// NewProvider creates a Provider. When allowStale is set a failed refresh
// falls back to whatever copy is on disk.
func NewProvider(store *cache.Store, q Selecter, maxAge time.Duration, allowStale bool, logger *slog.Logger) *Provider {
	if maxAge <= 0 {
		maxAge = cache.DefaultMaxAge
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		store:      store,
		query:      q,
		maxAge:     maxAge,
		allowStale: allowStale,
		logger:     logger.With(slog.String("component", "refdata")),
	}
}

// ReferenceProperties returns the ids of properties intended for references.
func (p *Provider) ReferenceProperties(ctx context.Context) ([]string, error) {
	return load(ctx, p, ReferencePropertiesFile, cache.Codec[[]string](cache.ListCodec{}), func(ctx context.Context) ([]string, error) {
		rows, err := p.query.Select(ctx, referencePropertiesQuery)
		if err != nil {
			return nil, err
		}
		props := make([]string, 0, len(rows))
		for _, row := range rows {
			if v, ok := row.Value("prop"); ok {
				props = append(props, query.StripEntityURI(v))
			}
		}
		sort.Strings(props)
		return props, nil
	})
}

// WikimediaProjects returns a map from project item id to database name.
func (p *Provider) WikimediaProjects(ctx context.Context) (map[string]string, error) {
	list, err := load(ctx, p, WikimediaProjectsFile, cache.Codec[[]WikimediaProject](cache.JSONCodec[[]WikimediaProject]{}), func(ctx context.Context) ([]WikimediaProject, error) {
		rows, err := p.query.Select(ctx, wikimediaProjectsQuery)
		if err != nil {
			return nil, err
		}
		out := make([]WikimediaProject, 0, len(rows))
		for _, row := range rows {
			project, ok := row.Value("Wikimedia_project")
			if !ok {
				continue
			}
			db, ok := row.Value("Wikimedia_database_name")
			if !ok {
				continue
			}
			out = append(out, WikimediaProject{EntityID: query.StripEntityURI(project), DBName: db})
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	m := make(map[string]string, len(list))
	for _, wp := range list {
		m[wp.EntityID] = wp.DBName
	}
	return m, nil
}

func load[T any](ctx context.Context, p *Provider, name string, codec cache.Codec[T], refresh func(context.Context) (T, error)) (T, error) {
	v, err := cache.GetOrRefresh(ctx, p.store, name, p.maxAge, codec, refresh)
	if err == nil {
		return v, nil
	}

	var re *cache.RefreshError
	if !p.allowStale || !errors.As(err, &re) {
		return v, err
	}
	stale, staleErr := cache.LoadStale(p.store, name, codec)
	if staleErr != nil {
		return v, errors.Join(err, staleErr)
	}
	p.logger.Warn("Refresh failed, using stale cached dataset.", slog.String("dataset", name), "error", err)
	return stale, nil
}
