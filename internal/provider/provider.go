// Package provider implements the Provider abstraction: one outbound search
// against a named third-party API, enforcing a per-call deadline and
// classifying errors, plus two concrete REST adapters (PrimaryProvider,
// SecondaryProvider).
package provider

import (
	"context"
	"strings"
	"time"

	"github.com/pagetrail/bookcore/internal/apperr"
	"github.com/pagetrail/bookcore/internal/model"
	"github.com/pagetrail/bookcore/internal/normalize"
)

// SearchType enumerates the query types a provider accepts.
type SearchType string

const (
	SearchGeneral SearchType = "general"
	SearchTitle   SearchType = "title"
	SearchAuthor  SearchType = "author"
	SearchISBN    SearchType = "isbn"
)

// CallDeadline is the hard per-call deadline, enforced at the call site even
// if the provider's own configuration would allow more.
const CallDeadline = 2500 * time.Millisecond

// Query is a validated search request.
type Query struct {
	Text   string
	Type   SearchType
	Limit  int
	Offset int
}

// ValidateQuery enforces input validation: query trimmed length in [2,500],
// limit in [1,40], offset >= 0.
func ValidateQuery(text string, searchType SearchType, limit, offset int) (Query, error) {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 2 || len(trimmed) > 500 {
		return Query{}, apperr.New(apperr.KindValidation, "q must be 2-500 characters after trim")
	}
	if limit < 1 || limit > 40 {
		return Query{}, apperr.New(apperr.KindValidation, "limit must be between 1 and 40")
	}
	if offset < 0 {
		return Query{}, apperr.New(apperr.KindValidation, "offset must be >= 0")
	}
	switch searchType {
	case SearchGeneral, SearchTitle, SearchAuthor, SearchISBN:
	default:
		return Query{}, apperr.New(apperr.KindValidation, "unknown search type")
	}
	return Query{Text: trimmed, Type: searchType, Limit: limit, Offset: offset}, nil
}

// Response is what a provider's Search returns on success.
type Response struct {
	RawResults        [][]byte
	NormalizedResults []model.SearchResult
}

// Provider is the polymorphic interface both concrete adapters implement.
// The orchestrator selects by Name(); adding a third provider requires only
// a new adapter plus registration.
type Provider interface {
	Name() string
	Search(ctx context.Context, q Query) (Response, error)
	// Hydrate fetches full detail for a single providerId. Providers that
	// don't support it return apperr.KindProviderPermanent with a
	// "not supported" message.
	Hydrate(ctx context.Context, providerID string) (model.SearchResult, error)
}

// Config is the opaque configuration record shared by both adapters: base
// URL, optional API key, timeout, user agent.
type Config struct {
	BaseURL   string
	APIKey    string
	TimeoutMs int
	UserAgent string
	RPS       int
}

func normalizeAll(providerName string, raw [][]byte) ([]model.SearchResult, error) {
	out := make([]model.SearchResult, 0, len(raw))
	for _, r := range raw {
		res, err := normalize.Normalize(providerName, r)
		if err != nil {
			// A single malformed item should not fail the whole page; the
			// normalizer's own error is ProviderPermanent-shaped, which the
			// orchestrator does not retry on, so we skip and continue.
			continue
		}
		out = append(out, res)
	}
	return out, nil
}
