package query

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelect(t *testing.T) {
	var gotQuery, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/sparql-results+json")
		w.Write([]byte(`{"head":{"vars":["prop"]},"results":{"bindings":[
			{"prop":{"type":"uri","value":"http://www.wikidata.org/entity/P143"}},
			{"prop":{"type":"uri","value":"http://www.wikidata.org/entity/P248"}}]}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), "", nil)
	rows, err := c.Select(context.Background(), "SELECT ?prop WHERE { }")
	require.NoError(t, err)

	assert.Equal(t, "SELECT ?prop WHERE { }", gotQuery)
	assert.Equal(t, "application/sparql-results+json", gotAccept)
	require.Len(t, rows, 2)
	v, ok := rows[1].Value("prop")
	require.True(t, ok)
	assert.Equal(t, "P248", StripEntityURI(v))
	_, ok = rows[1].Value("missing")
	assert.False(t, ok)
}

func TestSelectBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, srv.Client(), "", nil).Select(context.Background(), "SELECT")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestSelectFollowsOneRedirectWithHeaders(t *testing.T) {
	var gotAccept, gotAgent string
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		gotAgent = r.Header.Get("User-Agent")
		w.Write([]byte(`{"results":{"bindings":[{"prop":{"type":"uri","value":"http://www.wikidata.org/entity/P854"}}]}}`))
	}))
	defer target.Close()
	front := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL+"/sparql?"+r.URL.RawQuery, http.StatusTemporaryRedirect)
	}))
	defer front.Close()

	rows, err := NewClient(front.URL, nil, "dumpstats-test", nil).Select(context.Background(), "SELECT ?prop WHERE { }")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, acceptHeader, gotAccept)
	assert.Equal(t, "dumpstats-test", gotAgent)
}
