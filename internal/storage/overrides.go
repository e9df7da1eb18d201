package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/pagetrail/bookcore/internal/ingest"
	"github.com/pagetrail/bookcore/internal/model"
)

// OverrideRepo implements ingest.OverrideRepository against
// reading_entry_overrides.
type OverrideRepo struct{}

// NewOverrideRepo builds an OverrideRepo.
func NewOverrideRepo() *OverrideRepo { return &OverrideRepo{} }

func (r *OverrideRepo) Insert(ctx context.Context, q ingest.Querier, o model.ReadingEntryOverride) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	const stmt = `
		INSERT INTO reading_entry_overrides (id, reading_entry_id, field_name, override_value)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (reading_entry_id, field_name)
		DO UPDATE SET override_value = EXCLUDED.override_value, updated_at = now()`
	_, err := q.Exec(ctx, stmt, o.ID, o.ReadingEntryID, o.FieldName, o.OverrideValue)
	return err
}
