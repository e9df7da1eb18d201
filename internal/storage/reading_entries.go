package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pagetrail/bookcore/internal/apperr"
	"github.com/pagetrail/bookcore/internal/ingest"
	"github.com/pagetrail/bookcore/internal/model"
)

// ReadingEntryRepo implements ingest.ReadingEntryStore, the external
// collaborator owning the reader/book relationship, against the
// reading_entries table. Its unique index on (reader_id, book_id) is the
// sole enforcement point for "one entry per reader per book".
type ReadingEntryRepo struct{}

// NewReadingEntryRepo builds a ReadingEntryRepo.
func NewReadingEntryRepo() *ReadingEntryRepo { return &ReadingEntryRepo{} }

func (r *ReadingEntryRepo) Create(ctx context.Context, q ingest.Querier, readerID, bookID, bookEditionID, status string) (model.ReadingEntry, error) {
	e := model.ReadingEntry{
		ID:            uuid.NewString(),
		ReaderID:      readerID,
		BookID:        bookID,
		BookEditionID: bookEditionID,
		Status:        status,
	}
	const stmt = `
		INSERT INTO reading_entries (id, reader_id, book_id, book_edition_id, status)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at, updated_at`
	err := q.QueryRow(ctx, stmt, e.ID, e.ReaderID, e.BookID, e.BookEditionID, e.Status).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return model.ReadingEntry{}, apperr.New(apperr.KindDuplicate, "reader already holds an entry for this book")
		}
		return model.ReadingEntry{}, apperr.Wrap(apperr.KindStorageError, "insert reading entry", err)
	}
	return e, nil
}
