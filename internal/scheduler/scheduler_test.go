package scheduler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagetrail/bookcore/internal/ingest"
	"github.com/pagetrail/bookcore/internal/scheduler"
)

// fakePool is a no-op ingest.Querier; the provenance sweep only cares that
// Exec was called, never inspecting results.
type fakePool struct {
	execCalls int
	execErr   error
}

func (p *fakePool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p.execCalls++
	return pgconn.CommandTag{}, p.execErr
}
func (p *fakePool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (p *fakePool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }

type fakeCacheSweeper struct {
	deleted int64
	err     error
	calls   int
}

func (f *fakeCacheSweeper) Sweep(ctx context.Context, now time.Time) (int64, error) {
	f.calls++
	return f.deleted, f.err
}

type fakeProvenanceSweeper struct {
	deleted  int64
	err      error
	lastCall time.Time
}

func (f *fakeProvenanceSweeper) PurgeOlderThan(ctx context.Context, q ingest.Querier, before time.Time) (int64, error) {
	f.lastCall = before
	return f.deleted, f.err
}

func TestRunOnceExecutesBothSweeps(t *testing.T) {
	pool := &fakePool{}
	l2 := &fakeCacheSweeper{deleted: 3}
	sources := &fakeProvenanceSweeper{deleted: 5}
	s := scheduler.New(pool, l2, sources)

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 1, l2.calls)
	assert.WithinDuration(t, time.Now().Add(-90*24*time.Hour), sources.lastCall, time.Minute)
}

func TestRunOnceReturnsCacheSweepError(t *testing.T) {
	pool := &fakePool{}
	l2 := &fakeCacheSweeper{err: errors.New("db unavailable")}
	sources := &fakeProvenanceSweeper{}
	s := scheduler.New(pool, l2, sources)

	err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db unavailable")
}

func TestRunOnceReturnsProvenanceSweepError(t *testing.T) {
	pool := &fakePool{}
	l2 := &fakeCacheSweeper{}
	sources := &fakeProvenanceSweeper{err: errors.New("constraint violation")}
	s := scheduler.New(pool, l2, sources)

	err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "constraint violation")
}
