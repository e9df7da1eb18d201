package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pagetrail/bookcore/internal/ingest"
	"github.com/pagetrail/bookcore/internal/model"
)

// EditionRepo implements ingest.EditionRepository against book_editions.
type EditionRepo struct{}

// NewEditionRepo builds an EditionRepo.
func NewEditionRepo() *EditionRepo { return &EditionRepo{} }

const editionColumns = `id, book_id, isbn10, isbn13, edition, format, cover_image_url, provider_id, created_at, updated_at`

func scanEdition(row pgx.Row) (*model.BookEdition, error) {
	var e model.BookEdition
	err := row.Scan(&e.ID, &e.BookID, &e.ISBN10, &e.ISBN13, &e.Edition, &e.Format, &e.CoverImageURL,
		&e.ProviderID, &e.CreatedAt, &e.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EditionRepo) FindByISBN13(ctx context.Context, q ingest.Querier, isbn13 string) (*model.BookEdition, error) {
	row := q.QueryRow(ctx, `SELECT `+editionColumns+` FROM book_editions WHERE isbn13 = $1`, isbn13)
	return scanEdition(row)
}

func (r *EditionRepo) FindByISBN10(ctx context.Context, q ingest.Querier, isbn10 string) (*model.BookEdition, error) {
	row := q.QueryRow(ctx, `SELECT `+editionColumns+` FROM book_editions WHERE isbn10 = $1`, isbn10)
	return scanEdition(row)
}

func (r *EditionRepo) Insert(ctx context.Context, q ingest.Querier, edition model.BookEdition) (model.BookEdition, error) {
	if edition.ID == "" {
		edition.ID = uuid.NewString()
	}
	const stmt = `
		INSERT INTO book_editions (id, book_id, isbn10, isbn13, edition, format, cover_image_url, provider_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`
	err := q.QueryRow(ctx, stmt, edition.ID, edition.BookID, edition.ISBN10, edition.ISBN13,
		edition.Edition, edition.Format, edition.CoverImageURL, edition.ProviderID,
	).Scan(&edition.CreatedAt, &edition.UpdatedAt)
	if err != nil {
		return model.BookEdition{}, err
	}
	return edition, nil
}
