// Package ingest implements the IngestionService: turning a provider
// SearchResult into durable Book/BookEdition/BookMetadataSource rows plus a
// ReadingEntry for one reader, with duplicate detection and a single
// transaction per call.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/sync/singleflight"

	"github.com/pagetrail/bookcore/internal/apperr"
	"github.com/pagetrail/bookcore/internal/applog"
	"github.com/pagetrail/bookcore/internal/dedupe"
	"github.com/pagetrail/bookcore/internal/metrics"
	"github.com/pagetrail/bookcore/internal/model"
	"github.com/pagetrail/bookcore/internal/normalize"
)

// descriptionPolicy strips markup from provider-supplied descriptions on
// refresh; some providers return HTML-formatted blurbs.
var descriptionPolicy = bluemonday.StrictPolicy()

// Querier is the minimal query surface a repository needs. Both pgx.Tx and
// *pgxpool.Pool satisfy it; repositories depend on it rather than a concrete
// driver type so tests can substitute an in-memory fake.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Tx is the transaction handle the service drives directly.
type Tx interface {
	Querier
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Beginner starts a transaction. A thin adapter over *pgxpool.Pool is the
// production implementation; tests use an in-memory fake.
type Beginner interface {
	Begin(ctx context.Context) (Tx, error)
}

// PoolBeginner adapts a *pgxpool.Pool to Beginner.
type PoolBeginner struct {
	Pool *pgxpool.Pool
}

func (b PoolBeginner) Begin(ctx context.Context) (Tx, error) {
	return b.Pool.Begin(ctx)
}

// BookRepository resolves and persists canonical Book rows within a
// transaction.
type BookRepository interface {
	Insert(ctx context.Context, q Querier, book model.Book) (model.Book, error)
}

// EditionRepository resolves and persists BookEdition rows within a
// transaction.
type EditionRepository interface {
	FindByISBN13(ctx context.Context, q Querier, isbn13 string) (*model.BookEdition, error)
	FindByISBN10(ctx context.Context, q Querier, isbn10 string) (*model.BookEdition, error)
	Insert(ctx context.Context, q Querier, edition model.BookEdition) (model.BookEdition, error)
}

// MetadataSourceRepository persists provenance records within a transaction.
type MetadataSourceRepository interface {
	Insert(ctx context.Context, q Querier, src model.BookMetadataSource) (model.BookMetadataSource, error)
}

// OverrideRepository persists per-reader field overrides within a
// transaction.
type OverrideRepository interface {
	Insert(ctx context.Context, q Querier, o model.ReadingEntryOverride) error
}

// ReadingEntryStore is the external collaborator that owns the reader/book
// relationship. It enforces its own uniqueness invariant (one entry per
// reader+book, per the "reader+book" normative rule rather than
// status-scoped matching) and returns a KindDuplicate error on conflict.
type ReadingEntryStore interface {
	Create(ctx context.Context, q Querier, readerID, bookID, bookEditionID, status string) (model.ReadingEntry, error)
}

// IngestionRequest is the object-form argument to AddFromSearchResult. There
// is no positional-argument variant.
type IngestionRequest struct {
	ReaderID      string
	Result        model.SearchResult
	InitialStatus string
	Overrides     map[model.OverrideField]string
	Force         bool

	// RawPayload, ProviderRequestID, and ETag describe the provenance of
	// Result and are recorded verbatim on the BookMetadataSource row.
	RawPayload        []byte
	ProviderRequestID string
	ETag              string
}

// DuplicateInfo describes why an ingestion attempt did not create new rows.
type DuplicateInfo struct {
	MatchType    dedupe.MatchType
	Confidence   float64
	ExistingBook model.Book
}

// Result is what AddFromSearchResult returns.
type Result struct {
	Book         model.Book
	Edition      model.BookEdition
	ReadingEntry model.ReadingEntry
	Duplicate    *DuplicateInfo
}

// Service is the IngestionService.
type Service struct {
	db        Beginner
	detector  *dedupe.Detector
	books     BookRepository
	editions  EditionRepository
	sources   MetadataSourceRepository
	overrides OverrideRepository
	entries   ReadingEntryStore
	metrics   *metrics.Metrics

	sf singleflight.Group
}

// New builds a Service over db and its collaborators. m may be
// metrics.New(nil) in tests that don't care about the registry.
func New(db Beginner, detector *dedupe.Detector, books BookRepository, editions EditionRepository, sources MetadataSourceRepository, overrides OverrideRepository, entries ReadingEntryStore, m *metrics.Metrics) *Service {
	if m == nil {
		m = metrics.New(nil)
	}
	return &Service{
		db:        db,
		detector:  detector,
		books:     books,
		editions:  editions,
		sources:   sources,
		overrides: overrides,
		entries:   entries,
		metrics:   m,
	}
}

// AddFromSearchResult runs the full ingestion algorithm as one transaction:
// duplicate check, resolve Book, resolve BookEdition, record provenance,
// create the reader's ReadingEntry, apply overrides. Concurrent calls for
// the same reader and the same SearchResult's fingerprint are collapsed into
// one in-flight attempt.
func (s *Service) AddFromSearchResult(ctx context.Context, req IngestionRequest) (Result, error) {
	if err := validateOverrides(req.Overrides); err != nil {
		return Result{}, err
	}

	cand := dedupe.CandidateFromSearchResult(req.Result)
	key := req.ReaderID + "|" + fingerprintOf(cand)

	v, err, _ := s.sf.Do(key, func() (any, error) {
		return s.addFromSearchResult(ctx, req, cand)
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (s *Service) addFromSearchResult(ctx context.Context, req IngestionRequest, cand dedupe.Candidate) (Result, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.KindStorageError, "begin ingestion transaction", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			applog.From(ctx).Warn("rollback after ingestion failure", "err", rbErr)
		}
	}()

	dup, err := s.detector.Detect(ctx, cand)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.KindStorageError, "duplicate check", err)
	}

	var book model.Book
	var isNewBook bool
	if dup.Match != nil {
		if !req.Force {
			s.metrics.RecordIngestionDuplicate(string(dup.MatchType))
			return Result{Duplicate: &DuplicateInfo{
				MatchType:    dup.MatchType,
				Confidence:   dup.Confidence,
				ExistingBook: *dup.Match,
			}}, nil
		}
		book = *dup.Match
	} else {
		book, err = s.resolveNewBook(ctx, tx, req.Result, cand)
		if err != nil {
			return Result{}, err
		}
		isNewBook = true
	}

	edition, err := s.resolveEdition(ctx, tx, book.ID, req.Result)
	if err != nil {
		return Result{}, err
	}

	source := model.BookMetadataSource{
		BookEditionID:     edition.ID,
		Provider:          model.SourceProvider(req.Result.Provider),
		ProviderRequestID: req.ProviderRequestID,
		ETag:              req.ETag,
		PayloadHash:       payloadHash(req.RawPayload),
		RawPayload:        req.RawPayload,
	}
	if _, err := s.sources.Insert(ctx, tx, source); err != nil {
		return Result{}, apperr.Wrap(apperr.KindStorageError, "insert metadata source", err)
	}

	entry, err := s.entries.Create(ctx, tx, req.ReaderID, book.ID, edition.ID, req.InitialStatus)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindDuplicate {
			s.metrics.RecordIngestionDuplicate("readerEntry")
			return Result{Duplicate: &DuplicateInfo{
				MatchType:    "readerEntry",
				Confidence:   1.0,
				ExistingBook: book,
			}}, nil
		}
		return Result{}, err
	}

	for field, value := range req.Overrides {
		o := model.ReadingEntryOverride{
			ReadingEntryID: entry.ID,
			FieldName:      field,
			OverrideValue:  value,
		}
		if err := s.overrides.Insert(ctx, tx, o); err != nil {
			return Result{}, apperr.Wrap(apperr.KindStorageError, "insert reading entry override", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Result{}, apperr.Wrap(apperr.KindStorageError, "commit ingestion transaction", err)
	}

	if isNewBook {
		s.metrics.RecordIngestionCreated()
	}
	return Result{Book: book, Edition: edition, ReadingEntry: entry}, nil
}

func (s *Service) resolveNewBook(ctx context.Context, q Querier, r model.SearchResult, cand dedupe.Candidate) (model.Book, error) {
	normTitle := normalize.NormalizedTitle(cand.Title)
	primaryAuthor := normalize.PrimaryAuthor(cand.Authors)
	fp := normalize.Fingerprint(normTitle, primaryAuthor, cand.PublicationYear)

	book := model.Book{
		Title:           r.Title,
		Author:          primaryAuthor,
		NormalizedTitle: normTitle,
		PrimaryAuthor:   primaryAuthor,
		Subtitle:        r.Subtitle,
		Language:        r.Language,
		Publisher:       r.Publisher,
		PublicationDate: r.PublicationDate,
		PageCount:       r.PageCount,
		Description:     r.Description,
		Categories:      r.Categories,
		Fingerprint:     fp,
	}
	inserted, err := s.books.Insert(ctx, q, book)
	if err != nil {
		return model.Book{}, apperr.Wrap(apperr.KindStorageError, "insert book", err)
	}
	return inserted, nil
}

// resolveEdition looks up an existing edition by ISBN-13 then ISBN-10, else
// inserts a new one. A unique-constraint violation on concurrent insert is
// retried exactly once by re-reading the row the other transaction created.
func (s *Service) resolveEdition(ctx context.Context, q Querier, bookID string, r model.SearchResult) (model.BookEdition, error) {
	if r.ISBN13 != "" {
		if e, err := s.editions.FindByISBN13(ctx, q, r.ISBN13); err != nil {
			return model.BookEdition{}, apperr.Wrap(apperr.KindStorageError, "lookup edition by isbn13", err)
		} else if e != nil {
			return *e, nil
		}
	}
	if r.ISBN10 != "" {
		if e, err := s.editions.FindByISBN10(ctx, q, r.ISBN10); err != nil {
			return model.BookEdition{}, apperr.Wrap(apperr.KindStorageError, "lookup edition by isbn10", err)
		} else if e != nil {
			return *e, nil
		}
	}

	edition := model.BookEdition{
		BookID:        bookID,
		ISBN10:        r.ISBN10,
		ISBN13:        r.ISBN13,
		CoverImageURL: r.CoverImageURL,
		ProviderID:    r.ProviderID,
	}
	if !edition.HasIdentity() {
		return model.BookEdition{}, apperr.New(apperr.KindValidation, "edition needs at least one of isbn10, isbn13, providerId")
	}

	inserted, err := s.editions.Insert(ctx, q, edition)
	if err == nil {
		return inserted, nil
	}
	if !isUniqueViolation(err) {
		return model.BookEdition{}, apperr.Wrap(apperr.KindStorageError, "insert edition", err)
	}

	// Another concurrent ingestion won the race; re-read once.
	if r.ISBN13 != "" {
		if e, rerr := s.editions.FindByISBN13(ctx, q, r.ISBN13); rerr == nil && e != nil {
			return *e, nil
		}
	}
	if r.ISBN10 != "" {
		if e, rerr := s.editions.FindByISBN10(ctx, q, r.ISBN10); rerr == nil && e != nil {
			return *e, nil
		}
	}
	return model.BookEdition{}, apperr.Wrap(apperr.KindStorageError, "insert edition raced and re-read failed", err)
}

// RefreshMetadata records a fresh BookMetadataSource for an existing edition
// and updates only the non-identity fields of its Book. It never touches the
// search cache.
func (s *Service) RefreshMetadata(ctx context.Context, book model.Book, edition model.BookEdition, r model.SearchResult, rawPayload []byte, providerRequestID, etag string) (model.Book, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return model.Book{}, apperr.Wrap(apperr.KindStorageError, "begin refresh transaction", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			applog.From(ctx).Warn("rollback after refresh failure", "err", rbErr)
		}
	}()

	book.Subtitle = r.Subtitle
	book.Language = r.Language
	book.Publisher = r.Publisher
	book.PublicationDate = r.PublicationDate
	book.PageCount = r.PageCount
	book.Description = descriptionPolicy.Sanitize(r.Description)
	book.Categories = r.Categories
	book.Fingerprint = normalize.Fingerprint(book.NormalizedTitle, book.PrimaryAuthor, normalize.Year(book.PublicationDate))

	updated, err := s.books.Insert(ctx, tx, book)
	if err != nil {
		return model.Book{}, apperr.Wrap(apperr.KindStorageError, "update book on refresh", err)
	}

	source := model.BookMetadataSource{
		BookEditionID:     edition.ID,
		Provider:          model.SourceProvider(r.Provider),
		ProviderRequestID: providerRequestID,
		ETag:              etag,
		PayloadHash:       payloadHash(rawPayload),
		RawPayload:        rawPayload,
	}
	if _, err := s.sources.Insert(ctx, tx, source); err != nil {
		return model.Book{}, apperr.Wrap(apperr.KindStorageError, "insert metadata source on refresh", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Book{}, apperr.Wrap(apperr.KindStorageError, "commit refresh transaction", err)
	}
	return updated, nil
}

func validateOverrides(overrides map[model.OverrideField]string) error {
	for field := range overrides {
		if !model.AllowedOverrideFields[field] {
			return apperr.New(apperr.KindValidation, "unknown override field: "+string(field))
		}
	}
	return nil
}

func fingerprintOf(cand dedupe.Candidate) string {
	normTitle := normalize.NormalizedTitle(cand.Title)
	primaryAuthor := normalize.PrimaryAuthor(cand.Authors)
	return normalize.Fingerprint(normTitle, primaryAuthor, cand.PublicationYear)
}

func payloadHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
