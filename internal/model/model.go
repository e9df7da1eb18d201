// Package model defines the data model shared by storage, search, dedupe,
// and ingestion: the canonical Book, its editions, provenance records,
// per-reader overrides, the durable search cache row, and the in-memory
// SearchResult wire shape.
package model

import "time"

// Format enumerates the edition formats a BookEdition may carry.
type Format string

const (
	FormatHardcover Format = "hardcover"
	FormatPaperback Format = "paperback"
	FormatEbook     Format = "ebook"
	FormatAudiobook Format = "audiobook"
	FormatAudioCD   Format = "audio_cd"
)

// SourceProvider enumerates where a BookMetadataSource's payload came from.
type SourceProvider string

const (
	SourcePrimary   SourceProvider = "primary"
	SourceSecondary SourceProvider = "secondary"
	SourceManual    SourceProvider = "manual"
)

// OverrideField enumerates the fields a reader is allowed to override on a
// ReadingEntry.
type OverrideField string

const (
	OverrideTitle           OverrideField = "title"
	OverrideAuthor          OverrideField = "author"
	OverrideSubtitle        OverrideField = "subtitle"
	OverridePageCount       OverrideField = "pageCount"
	OverridePublisher       OverrideField = "publisher"
	OverridePublicationDate OverrideField = "publicationDate"
	OverrideDescription     OverrideField = "description"
	OverrideLanguage        OverrideField = "language"
	OverrideEdition         OverrideField = "edition"
)

// AllowedOverrideFields is the closed set of field names IngestionService
// will accept in an overrides map.
var AllowedOverrideFields = map[OverrideField]bool{
	OverrideTitle:           true,
	OverrideAuthor:          true,
	OverrideSubtitle:        true,
	OverridePageCount:       true,
	OverridePublisher:       true,
	OverridePublicationDate: true,
	OverrideDescription:     true,
	OverrideLanguage:        true,
	OverrideEdition:         true,
}

// Book is the canonical, immutable-after-creation representation of a work,
// shared across all readers.
type Book struct {
	ID              string
	Title           string
	Author          string
	NormalizedTitle string
	PrimaryAuthor   string
	Subtitle        string
	Language        string
	Publisher       string
	PublicationDate *time.Time
	PageCount       int
	Description     string
	Categories      []string
	Fingerprint     string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// BookEdition is the ISBN/format-specific identity of a Book.
type BookEdition struct {
	ID            string
	BookID        string
	ISBN10        string
	ISBN13        string
	Edition       string
	Format        Format
	CoverImageURL string
	ProviderID    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasIdentity reports whether the edition satisfies its invariant: at least
// one of ISBN10, ISBN13, ProviderID must be non-empty.
func (e BookEdition) HasIdentity() bool {
	return e.ISBN10 != "" || e.ISBN13 != "" || e.ProviderID != ""
}

// BookMetadataSource is a provenance record for one fetch of one edition
// from one provider.
type BookMetadataSource struct {
	ID                string
	BookEditionID     string
	Provider          SourceProvider
	ProviderRequestID string
	FetchedAt         time.Time
	ETag              string
	PayloadHash       string
	RawPayload        []byte
	CreatedAt         time.Time
}

// ReadingEntryOverride is a per-reader, per-field replacement of a
// canonical Book field for one ReadingEntry.
type ReadingEntryOverride struct {
	ID             string
	ReadingEntryID string
	FieldName      OverrideField
	OverrideValue  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// BookSearchCache is the durable L2 cache row for one searchKey+provider.
type BookSearchCache struct {
	ID          string
	SearchKey   string
	Provider    string
	ResultCount int
	Results     []byte
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// SearchResult is the in-memory/wire-only shape produced by a provider
// search and normalization; it is never persisted directly.
type SearchResult struct {
	ProviderID      string     `json:"providerId"`
	Provider        string     `json:"provider"`
	Title           string     `json:"title"`
	Authors         []string   `json:"authors"`
	Subtitle        string     `json:"subtitle,omitempty"`
	ISBN10          string     `json:"isbn10,omitempty"`
	ISBN13          string     `json:"isbn13,omitempty"`
	Publisher       string     `json:"publisher,omitempty"`
	PublicationDate *time.Time `json:"publicationDate,omitempty"`
	PageCount       int        `json:"pageCount,omitempty"`
	Language        string     `json:"language,omitempty"`
	Categories      []string   `json:"categories,omitempty"`
	CoverImageURL   string     `json:"coverImageUrl,omitempty"`
	Description     string     `json:"description,omitempty"`
}

// ReadingEntry is the external collaborator's record of a reader's
// relationship to a book. It is modeled here only as a data shape; its
// storage-backed implementation lives behind the ingest.ReadingEntryStore
// interface, never mutated directly by core packages other than ingest.
type ReadingEntry struct {
	ID            string
	ReaderID      string
	BookID        string
	BookEditionID string
	Status        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
