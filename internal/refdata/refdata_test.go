package refdata

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brensch/dumpstats/internal/cache"
	"github.com/brensch/dumpstats/internal/query"
)

type fakeSelecter struct {
	rows  []query.Binding
	err   error
	calls int
}

func (f *fakeSelecter) Select(ctx context.Context, sparql string) ([]query.Binding, error) {
	f.calls++
	return f.rows, f.err
}

func uri(id string) query.Term {
	return query.Term{Type: "uri", Value: query.EntityURIPrefix + id}
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestReferencePropertiesCached(t *testing.T) {
	store := cache.NewStore(t.TempDir(), discard())
	q := &fakeSelecter{rows: []query.Binding{{"prop": uri("P248")}, {"prop": uri("P143")}}}
	p := NewProvider(store, q, time.Hour, false, discard())

	props, err := p.ReferenceProperties(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"P143", "P248"}, props)

	raw, err := os.ReadFile(store.Path(ReferencePropertiesFile))
	require.NoError(t, err)
	assert.Equal(t, "P143,P248", string(raw))

	// a second provider over the same directory reads the file
	p2 := NewProvider(cache.NewStore(store.Dir(), discard()), q, time.Hour, false, discard())
	_, err = p2.ReferenceProperties(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, q.calls)
}

func TestWikimediaProjectsSkipsUnnamed(t *testing.T) {
	store := cache.NewStore(t.TempDir(), discard())
	q := &fakeSelecter{rows: []query.Binding{
		{"Wikimedia_project": uri("Q328"), "Wikimedia_database_name": {Type: "literal", Value: "enwiki"}},
		{"Wikimedia_project": uri("Q999")},
		{"Wikimedia_project": uri("Q48183"), "Wikimedia_database_name": {Type: "literal", Value: "dewiki"}},
	}}
	p := NewProvider(store, q, time.Hour, false, discard())

	got, err := p.WikimediaProjects(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Q328": "enwiki", "Q48183": "dewiki"}, got)
}

func TestAllowStale(t *testing.T) {
	dir := t.TempDir()
	store := cache.NewStore(dir, discard())
	path := store.Path(ReferencePropertiesFile)
	require.NoError(t, os.WriteFile(path, []byte("P143"), 0o644))
	old := time.Now().Add(-30 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	q := &fakeSelecter{err: errors.New("offline")}

	_, err := NewProvider(store, q, 0, false, discard()).ReferenceProperties(context.Background())
	var re *cache.RefreshError
	require.ErrorAs(t, err, &re)

	props, err := NewProvider(cache.NewStore(dir, discard()), q, 0, true, discard()).ReferenceProperties(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"P143"}, props)
}
