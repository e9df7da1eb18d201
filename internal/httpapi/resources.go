package httpapi

import (
	"github.com/pagetrail/bookcore/internal/ingest"
	"github.com/pagetrail/bookcore/internal/model"
	"github.com/pagetrail/bookcore/internal/search"
)

// searchResponse is the wire shape for GET /books/search.
type searchResponse struct {
	Results      []model.SearchResult `json:"results"`
	Total        int                  `json:"total"`
	CacheHit     string               `json:"cacheHit"`
	Degraded     bool                 `json:"degraded"`
	ProviderUsed string               `json:"providerUsed"`
	LatencyMs    int64                `json:"latencyMs"`
}

func newSearchResponse(r search.Response) searchResponse {
	return searchResponse{
		Results:      r.Results,
		Total:        r.Total,
		CacheHit:     string(r.CacheHit),
		Degraded:     r.Degraded,
		ProviderUsed: r.ProviderUsed,
		LatencyMs:    r.LatencyMs,
	}
}

// fromSearchRequest is the wire shape for POST /books/from-search.
type fromSearchRequest struct {
	ReaderID     string                         `json:"readerId"`
	SearchResult model.SearchResult             `json:"searchResult"`
	Status       string                         `json:"status"`
	Overrides    map[model.OverrideField]string `json:"overrides,omitempty"`
	Force        bool                           `json:"force,omitempty"`
}

type bookResource struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Author      string   `json:"author"`
	Subtitle    string   `json:"subtitle,omitempty"`
	Language    string   `json:"language,omitempty"`
	Publisher   string   `json:"publisher,omitempty"`
	PageCount   int      `json:"pageCount,omitempty"`
	Description string   `json:"description,omitempty"`
	Categories  []string `json:"categories,omitempty"`
}

func newBookResource(b model.Book) bookResource {
	return bookResource{
		ID:          b.ID,
		Title:       b.Title,
		Author:      b.Author,
		Subtitle:    b.Subtitle,
		Language:    b.Language,
		Publisher:   b.Publisher,
		PageCount:   b.PageCount,
		Description: b.Description,
		Categories:  b.Categories,
	}
}

type editionResource struct {
	ID            string `json:"id"`
	BookID        string `json:"bookId"`
	ISBN10        string `json:"isbn10,omitempty"`
	ISBN13        string `json:"isbn13,omitempty"`
	CoverImageURL string `json:"coverImageUrl,omitempty"`
	ProviderID    string `json:"providerId,omitempty"`
}

func newEditionResource(e model.BookEdition) editionResource {
	return editionResource{
		ID:            e.ID,
		BookID:        e.BookID,
		ISBN10:        e.ISBN10,
		ISBN13:        e.ISBN13,
		CoverImageURL: e.CoverImageURL,
		ProviderID:    e.ProviderID,
	}
}

type readingEntryResource struct {
	ID            string `json:"id"`
	ReaderID      string `json:"readerId"`
	BookID        string `json:"bookId"`
	BookEditionID string `json:"bookEditionId"`
	Status        string `json:"status"`
}

func newReadingEntryResource(e model.ReadingEntry) readingEntryResource {
	return readingEntryResource{
		ID:            e.ID,
		ReaderID:      e.ReaderID,
		BookID:        e.BookID,
		BookEditionID: e.BookEditionID,
		Status:        e.Status,
	}
}

type duplicateResource struct {
	MatchType    string       `json:"matchType"`
	Confidence   float64      `json:"confidence"`
	ExistingBook bookResource `json:"existingBook"`
}

// ingestionResponse is the wire shape for POST /books/from-search.
type ingestionResponse struct {
	Book         *bookResource         `json:"book,omitempty"`
	Edition      *editionResource      `json:"edition,omitempty"`
	ReadingEntry *readingEntryResource `json:"readingEntry,omitempty"`
	Duplicate    *duplicateResource    `json:"duplicate,omitempty"`
}

func newIngestionResponse(r ingest.Result) ingestionResponse {
	if r.Duplicate != nil {
		return ingestionResponse{Duplicate: &duplicateResource{
			MatchType:    string(r.Duplicate.MatchType),
			Confidence:   r.Duplicate.Confidence,
			ExistingBook: newBookResource(r.Duplicate.ExistingBook),
		}}
	}
	book := newBookResource(r.Book)
	edition := newEditionResource(r.Edition)
	entry := newReadingEntryResource(r.ReadingEntry)
	return ingestionResponse{Book: &book, Edition: &edition, ReadingEntry: &entry}
}
