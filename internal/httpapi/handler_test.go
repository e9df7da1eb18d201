package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagetrail/bookcore/internal/apperr"
	"github.com/pagetrail/bookcore/internal/breaker"
	"github.com/pagetrail/bookcore/internal/cache"
	"github.com/pagetrail/bookcore/internal/httpapi"
	"github.com/pagetrail/bookcore/internal/ingest"
	"github.com/pagetrail/bookcore/internal/metrics"
	"github.com/pagetrail/bookcore/internal/model"
	"github.com/pagetrail/bookcore/internal/provider"
	"github.com/pagetrail/bookcore/internal/search"
)

type fakeProvider struct {
	name    string
	results []model.SearchResult
}

func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) Search(ctx context.Context, q provider.Query) (provider.Response, error) {
	return provider.Response{NormalizedResults: f.results}, nil
}
func (f *fakeProvider) Hydrate(ctx context.Context, providerID string) (model.SearchResult, error) {
	return model.SearchResult{}, apperr.New(apperr.KindProviderPermanent, "not supported")
}

func newTestOrchestrator() *search.Orchestrator {
	mgr := cache.New(cache.NewMemoryL1(), cache.NewMemoryL2(), cache.DefaultConfig())
	p := &fakeProvider{name: "primary", results: []model.SearchResult{{Title: "Dune", Authors: []string{"Frank Herbert"}}}}
	pb := breaker.New("primary", breaker.DefaultConfig())
	return search.New(mgr, p, pb, nil, nil, search.DefaultConfig(), metrics.New(nil))
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	var ingestion *ingest.Service // unused by the request paths exercised below
	h := httpapi.NewServer(newTestOrchestrator(), ingestion, nil)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestSearchEndpointReturnsResults(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/books/search?q=dune&limit=10&offset=0")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	results := body["results"].([]any)
	require.Len(t, results, 1)
}

func TestSearchEndpointRejectsShortQuery(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/books/search?q=a")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSearchEndpointRejectsUnknownProvider(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/books/search?q=dune&provider=bogus")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFromSearchEndpointRequiresReaderID(t *testing.T) {
	srv := newTestServer(t)

	body, _ := json.Marshal(map[string]any{"searchResult": model.SearchResult{Title: "Dune"}, "status": "reading"})
	resp, err := http.Post(srv.URL+"/books/from-search", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFromSearchEndpointRejectsMalformedBody(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/books/from-search", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
