package cache

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagetrail/bookcore/internal/model"
)

// PostgresL2 implements L2 against the book_search_cache table.
type PostgresL2 struct {
	pool *pgxpool.Pool
}

// NewPostgresL2 wraps an existing pool. The pool is owned by the caller.
func NewPostgresL2(pool *pgxpool.Pool) *PostgresL2 {
	return &PostgresL2{pool: pool}
}

func (p *PostgresL2) Get(ctx context.Context, searchKey, provider string) (*model.BookSearchCache, error) {
	const q = `
		SELECT id, search_key, provider, result_count, results, expires_at, created_at
		FROM book_search_cache
		WHERE search_key = $1 AND provider = $2 AND expires_at >= now()`
	return p.scanOne(ctx, q, searchKey, provider)
}

func (p *PostgresL2) GetStale(ctx context.Context, searchKey, provider string) (*model.BookSearchCache, error) {
	const q = `
		SELECT id, search_key, provider, result_count, results, expires_at, created_at
		FROM book_search_cache
		WHERE search_key = $1 AND provider = $2`
	return p.scanOne(ctx, q, searchKey, provider)
}

func (p *PostgresL2) scanOne(ctx context.Context, q string, args ...any) (*model.BookSearchCache, error) {
	row := p.pool.QueryRow(ctx, q, args...)
	var r model.BookSearchCache
	err := row.Scan(&r.ID, &r.SearchKey, &r.Provider, &r.ResultCount, &r.Results, &r.ExpiresAt, &r.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (p *PostgresL2) Upsert(ctx context.Context, row model.BookSearchCache) error {
	const q = `
		INSERT INTO book_search_cache (search_key, provider, result_count, results, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (search_key, provider)
		DO UPDATE SET result_count = EXCLUDED.result_count, results = EXCLUDED.results, expires_at = EXCLUDED.expires_at`
	_, err := p.pool.Exec(ctx, q, row.SearchKey, row.Provider, row.ResultCount, row.Results, row.ExpiresAt)
	return err
}

func (p *PostgresL2) Delete(ctx context.Context, searchKey, provider string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM book_search_cache WHERE search_key = $1 AND provider = $2`, searchKey, provider)
	return err
}

// Sweep deletes rows whose expiresAt is before now, implementing the daily
// L2 cache sweep.
func (p *PostgresL2) Sweep(ctx context.Context, now time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM book_search_cache WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
