package provider_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagetrail/bookcore/internal/apperr"
	"github.com/pagetrail/bookcore/internal/provider"
)

func TestSecondarySearchParsesDocs(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Dune", r.URL.Query().Get("title"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"docs": [
				{
					"key": "/works/OL123W",
					"title": "Dune",
					"author_names": ["Frank Herbert"],
					"isbn_13": ["9780441172719"]
				}
			]
		}`))
	}))
	defer ts.Close()

	p := provider.NewSecondaryProvider(provider.Config{BaseURL: ts.URL, UserAgent: "bookcore-test"})
	q, err := provider.ValidateQuery("Dune", provider.SearchTitle, 10, 0)
	require.NoError(t, err)

	resp, err := p.Search(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, resp.NormalizedResults, 1)
	assert.Equal(t, "Dune", resp.NormalizedResults[0].Title)
	assert.Equal(t, "9780441172719", resp.NormalizedResults[0].ISBN13)
}

func TestSecondaryHydrateUnsupported(t *testing.T) {
	p := provider.NewSecondaryProvider(provider.Config{BaseURL: "https://example.invalid", UserAgent: "bookcore-test"})
	_, err := p.Hydrate(context.Background(), "OL123W")
	require.Error(t, err)
	assert.Equal(t, apperr.KindProviderPermanent, apperr.KindOf(err))
}

func TestSecondarySearchClassifiesRateLimit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	p := provider.NewSecondaryProvider(provider.Config{BaseURL: ts.URL, UserAgent: "bookcore-test"})
	q, err := provider.ValidateQuery("dune", provider.SearchGeneral, 10, 0)
	require.NoError(t, err)

	_, err = p.Search(context.Background(), q)
	require.Error(t, err)
	assert.Equal(t, apperr.KindProviderTransient, apperr.KindOf(err))
}
