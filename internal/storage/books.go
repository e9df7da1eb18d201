package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/pagetrail/bookcore/internal/ingest"
	"github.com/pagetrail/bookcore/internal/model"
)

// BookRepo implements ingest.BookRepository against the books table.
type BookRepo struct{}

// NewBookRepo builds a BookRepo.
func NewBookRepo() *BookRepo { return &BookRepo{} }

// Insert creates a new Book row, or updates an existing one's non-identity
// fields (title/subtitle/publisher/etc.) when book.ID is already set, as
// RefreshMetadata does.
func (r *BookRepo) Insert(ctx context.Context, q ingest.Querier, book model.Book) (model.Book, error) {
	if book.ID == "" {
		book.ID = uuid.NewString()
	}
	const stmt = `
		INSERT INTO books (id, title, author, normalized_title, primary_author, subtitle,
			language, publisher, publication_date, page_count, description, categories, fingerprint)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title, subtitle = EXCLUDED.subtitle, language = EXCLUDED.language,
			publisher = EXCLUDED.publisher, publication_date = EXCLUDED.publication_date,
			page_count = EXCLUDED.page_count, description = EXCLUDED.description,
			categories = EXCLUDED.categories, fingerprint = EXCLUDED.fingerprint, updated_at = now()
		RETURNING created_at, updated_at`
	err := q.QueryRow(ctx, stmt,
		book.ID, book.Title, book.Author, book.NormalizedTitle, book.PrimaryAuthor, book.Subtitle,
		book.Language, book.Publisher, book.PublicationDate, book.PageCount, book.Description,
		book.Categories, book.Fingerprint,
	).Scan(&book.CreatedAt, &book.UpdatedAt)
	if err != nil {
		return model.Book{}, err
	}
	return book, nil
}
