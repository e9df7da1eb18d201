package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pagetrail/bookcore/internal/ingest"
	"github.com/pagetrail/bookcore/internal/model"
)

// MetadataSourceRepo implements ingest.MetadataSourceRepository against
// book_metadata_sources.
type MetadataSourceRepo struct{}

// NewMetadataSourceRepo builds a MetadataSourceRepo.
func NewMetadataSourceRepo() *MetadataSourceRepo { return &MetadataSourceRepo{} }

func (r *MetadataSourceRepo) Insert(ctx context.Context, q ingest.Querier, src model.BookMetadataSource) (model.BookMetadataSource, error) {
	if src.ID == "" {
		src.ID = uuid.NewString()
	}
	const stmt = `
		INSERT INTO book_metadata_sources (id, book_edition_id, provider, provider_request_id, etag, payload_hash, raw_payload)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING fetched_at, created_at`
	err := q.QueryRow(ctx, stmt, src.ID, src.BookEditionID, src.Provider, src.ProviderRequestID,
		src.ETag, src.PayloadHash, src.RawPayload,
	).Scan(&src.FetchedAt, &src.CreatedAt)
	if err != nil {
		return model.BookMetadataSource{}, err
	}
	return src, nil
}

// PurgeOlderThan deletes provenance rows older than before, implementing the
// daily retention sweep from spec.md §4.8. q is typically the pool itself
// rather than a transaction, since this runs independently of any ingestion.
func (r *MetadataSourceRepo) PurgeOlderThan(ctx context.Context, q ingest.Querier, before time.Time) (int64, error) {
	tag, err := q.Exec(ctx, `DELETE FROM book_metadata_sources WHERE created_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
