package storage

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagetrail/bookcore/internal/dedupe"
	"github.com/pagetrail/bookcore/internal/model"
)

const bookColumns = `id, title, author, normalized_title, primary_author, subtitle, language,
	publisher, publication_date, page_count, description, categories, fingerprint, created_at, updated_at`

func scanBook(row pgx.Row) (*model.Book, error) {
	var b model.Book
	err := row.Scan(&b.ID, &b.Title, &b.Author, &b.NormalizedTitle, &b.PrimaryAuthor, &b.Subtitle,
		&b.Language, &b.Publisher, &b.PublicationDate, &b.PageCount, &b.Description, &b.Categories,
		&b.Fingerprint, &b.CreatedAt, &b.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// DedupeRepo implements dedupe.Repository against the books table directly:
// the duplicate check runs outside the ingestion transaction, against the
// pool, since dedupe.Detector's Repository seam takes no transaction handle.
type DedupeRepo struct {
	pool *pgxpool.Pool

	trigramOnce sync.Once
	trigramOK   bool
}

// NewDedupeRepo wraps an existing pool. The pool is owned by the caller.
func NewDedupeRepo(pool *pgxpool.Pool) *DedupeRepo {
	return &DedupeRepo{pool: pool}
}

// hasTrigram reports whether pg_trgm is installed, probed once and cached
// for the life of the repo.
func (r *DedupeRepo) hasTrigram(ctx context.Context) bool {
	r.trigramOnce.Do(func() {
		var ok bool
		err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'pg_trgm')`).Scan(&ok)
		r.trigramOK = err == nil && ok
	})
	return r.trigramOK
}

func (r *DedupeRepo) FindByISBN13(ctx context.Context, isbn13 string) (*model.Book, error) {
	const q = `SELECT ` + bookColumns + ` FROM books b
		WHERE EXISTS (SELECT 1 FROM book_editions e WHERE e.book_id = b.id AND e.isbn13 = $1)
		LIMIT 1`
	return scanBook(r.pool.QueryRow(ctx, q, isbn13))
}

func (r *DedupeRepo) FindByISBN10(ctx context.Context, isbn10 string) (*model.Book, error) {
	const q = `SELECT ` + bookColumns + ` FROM books b
		WHERE EXISTS (SELECT 1 FROM book_editions e WHERE e.book_id = b.id AND e.isbn10 = $1)
		LIMIT 1`
	return scanBook(r.pool.QueryRow(ctx, q, isbn10))
}

func (r *DedupeRepo) FindByFingerprint(ctx context.Context, fingerprint string) ([]model.Book, error) {
	const q = `SELECT ` + bookColumns + ` FROM books WHERE fingerprint = $1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, q, fingerprint)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		if b != nil {
			out = append(out, *b)
		}
	}
	return out, rows.Err()
}

// FuzzyCandidates returns books whose publication year falls in
// [yearLow, yearHigh] or is unknown, bounded to the 500 most recently
// created so the in-memory trigram scoring in dedupe.Detector ranks a
// bounded set. The query itself filters by year only and does not call
// pg_trgm. Returns dedupe.ErrTrigramUnsupported if pg_trgm is not
// installed, so the fuzzy tier is skipped on such databases.
func (r *DedupeRepo) FuzzyCandidates(ctx context.Context, yearLow, yearHigh int) ([]model.Book, error) {
	if !r.hasTrigram(ctx) {
		return nil, dedupe.ErrTrigramUnsupported
	}

	const q = `SELECT ` + bookColumns + ` FROM books
		WHERE (publication_date IS NULL OR (EXTRACT(YEAR FROM publication_date) BETWEEN $1 AND $2))
		ORDER BY created_at DESC
		LIMIT 500`
	rows, err := r.pool.Query(ctx, q, yearLow, yearHigh)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		if b != nil {
			out = append(out, *b)
		}
	}
	return out, rows.Err()
}
