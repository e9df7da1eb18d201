// Package cache implements a two-level cache manager: an L1 fast/ephemeral
// layer (Redis; may be absent), a durable L2 layer (Postgres table
// book_search_cache, always required), stampede-lock acquisition, and the
// searchKey derivation both layers share.
package cache

import (
	"context"
	"time"

	"github.com/bytedance/sonic"

	"github.com/pagetrail/bookcore/internal/apperr"
	"github.com/pagetrail/bookcore/internal/applog"
	"github.com/pagetrail/bookcore/internal/model"
)

// Layer identifies which cache tier served a result.
type Layer string

const (
	LayerL1   Layer = "l1"
	LayerL2   Layer = "l2"
	LayerMiss Layer = "miss"
)

// CachedResults is what CacheManager.Get/GetStale return on a hit.
type CachedResults struct {
	Results        []model.SearchResult
	SourceProvider string
	ExpiresAt      time.Time
}

// L1 is the fast/ephemeral cache layer. Implementations must never return
// an entry past its stored TTL from Get.
type L1 interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX sets key to value with ttl only if key is currently absent,
	// reporting whether the set happened. Used for the stampede lock.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

// L2 is the durable cache layer backed by book_search_cache. Get must never
// return a row with expiresAt < now; GetStale is the only way to read an
// expired row.
type L2 interface {
	Get(ctx context.Context, searchKey, provider string) (*model.BookSearchCache, error)
	GetStale(ctx context.Context, searchKey, provider string) (*model.BookSearchCache, error)
	Upsert(ctx context.Context, row model.BookSearchCache) error
	Delete(ctx context.Context, searchKey, provider string) error
}

// payload is the JSON envelope stored in both cache layers.
type payload struct {
	Results        []model.SearchResult `json:"results"`
	SourceProvider string                `json:"sourceProvider"`
}

// Config holds the CacheManager's TTLs and stampede-lock parameters,
// overridable via environment.
type Config struct {
	L1TTL       time.Duration
	L2TTL       time.Duration
	LockLease   time.Duration
	RetryDelay  time.Duration
	RetryBudget int
}

// DefaultConfig returns the manager's baseline TTLs and retry parameters.
func DefaultConfig() Config {
	return Config{
		L1TTL:       12 * time.Hour,
		L2TTL:       30 * 24 * time.Hour,
		LockLease:   10 * time.Second,
		RetryDelay:  100 * time.Millisecond,
		RetryBudget: 20,
	}
}

// DegradedHook is called once per L1-unavailable state change.
type DegradedHook func(degraded bool)

// Manager is the CacheManager. L1 may be nil, which puts the manager into
// permanent degraded-L1 mode.
type Manager struct {
	l1  L1
	l2  L2
	cfg Config

	degraded     bool
	degradedHook DegradedHook
}

// New builds a Manager. Pass a nil l1 to start in degraded mode.
func New(l1 L1, l2 L2, cfg Config) *Manager {
	return &Manager{l1: l1, l2: l2, cfg: cfg, degraded: l1 == nil}
}

// OnDegradedChange registers hook to be called when L1 availability
// changes state.
func (m *Manager) OnDegradedChange(hook DegradedHook) {
	m.degradedHook = hook
}

func (m *Manager) setDegraded(ctx context.Context, degraded bool) {
	if degraded == m.degraded {
		return
	}
	m.degraded = degraded
	applog.From(ctx).Warn("cache L1 availability changed", "degraded", degraded)
	if m.degradedHook != nil {
		m.degradedHook(degraded)
	}
}

// Get looks up a cached result: L1, then L2, then Miss.
func (m *Manager) Get(ctx context.Context, searchKey, provider string) (CachedResults, Layer, error) {
	if m.l1 != nil {
		raw, ok, err := m.l1.Get(ctx, l1Key(searchKey, provider))
		if err != nil {
			applog.From(ctx).Warn("cache L1 get failed", "err", err)
			m.setDegraded(ctx, true)
		} else {
			m.setDegraded(ctx, false)
			if ok {
				p, decErr := decodePayload(raw)
				if decErr == nil {
					return CachedResults{Results: p.Results, SourceProvider: p.SourceProvider}, LayerL1, nil
				}
				applog.From(ctx).Warn("cache L1 payload corrupt", "err", decErr)
			}
		}
	}

	row, err := m.l2.Get(ctx, searchKey, provider)
	if err != nil {
		return CachedResults{}, LayerMiss, apperr.Wrap(apperr.KindStorageError, "l2 cache get failed", err)
	}
	if row == nil {
		return CachedResults{}, LayerMiss, nil
	}

	p, err := decodePayload(row.Results)
	if err != nil {
		return CachedResults{}, LayerMiss, apperr.Wrap(apperr.KindStorageError, "l2 cache payload corrupt", err)
	}

	// Backfill L1 asynchronously; failures are logged and swallowed.
	if m.l1 != nil {
		go func() {
			bgCtx := context.Background()
			if err := m.l1.Set(bgCtx, l1Key(searchKey, provider), row.Results, m.cfg.L1TTL); err != nil {
				applog.From(bgCtx).Warn("cache L1 backfill failed", "err", err)
			}
		}()
	}

	return CachedResults{Results: p.Results, SourceProvider: p.SourceProvider, ExpiresAt: row.ExpiresAt}, LayerL2, nil
}

// GetStale returns the L2 entry even if expired, used only for degraded
// fallback.
func (m *Manager) GetStale(ctx context.Context, searchKey, provider string) (CachedResults, bool, error) {
	row, err := m.l2.GetStale(ctx, searchKey, provider)
	if err != nil {
		return CachedResults{}, false, apperr.Wrap(apperr.KindStorageError, "l2 stale get failed", err)
	}
	if row == nil {
		return CachedResults{}, false, nil
	}
	p, err := decodePayload(row.Results)
	if err != nil {
		return CachedResults{}, false, apperr.Wrap(apperr.KindStorageError, "l2 stale payload corrupt", err)
	}
	return CachedResults{Results: p.Results, SourceProvider: p.SourceProvider, ExpiresAt: row.ExpiresAt}, true, nil
}

// Set writes both layers. L2 is an upsert on (searchKey, provider); L1
// failures are logged and swallowed, L2 failures propagate.
func (m *Manager) Set(ctx context.Context, searchKey, provider, sourceProvider string, results []model.SearchResult) error {
	encoded, err := encodePayload(payload{Results: results, SourceProvider: sourceProvider})
	if err != nil {
		return apperr.Wrap(apperr.KindStorageError, "encoding cache payload", err)
	}

	if m.l1 != nil {
		if err := m.l1.Set(ctx, l1Key(searchKey, provider), encoded, m.cfg.L1TTL); err != nil {
			applog.From(ctx).Warn("cache L1 set failed", "err", err)
			m.setDegraded(ctx, true)
		} else {
			m.setDegraded(ctx, false)
		}
	}

	row := model.BookSearchCache{
		SearchKey:   searchKey,
		Provider:    provider,
		ResultCount: len(results),
		Results:     encoded,
		ExpiresAt:   time.Now().Add(m.cfg.L2TTL),
		CreatedAt:   time.Now(),
	}
	if err := m.l2.Upsert(ctx, row); err != nil {
		return apperr.Wrap(apperr.KindStorageError, "l2 cache upsert failed", err)
	}
	return nil
}

// AcquireLock attempts the stampede lock for (searchKey, provider). If L1 is
// absent, stampede protection is a no-op and acquired is always true.
func (m *Manager) AcquireLock(ctx context.Context, searchKey, provider string) (acquired bool, release func(), err error) {
	if m.l1 == nil {
		return true, func() {}, nil
	}
	key := lockKey(searchKey, provider)
	ok, err := m.l1.SetNX(ctx, key, []byte("1"), m.cfg.LockLease)
	if err != nil {
		applog.From(ctx).Warn("stampede lock acquisition failed", "err", err)
		return true, func() {}, nil // degrade gracefully: proceed unguarded
	}
	if !ok {
		return false, func() {}, nil
	}
	return true, func() {
		_ = m.l1.Delete(context.Background(), key)
	}, nil
}

// WaitForFill implements the bounded stampede-retry loop: sleep
// RetryDelay and recheck Get, up to RetryBudget times.
func (m *Manager) WaitForFill(ctx context.Context, searchKey, provider string) (CachedResults, Layer, error) {
	for i := 0; i < m.cfg.RetryBudget; i++ {
		select {
		case <-ctx.Done():
			return CachedResults{}, LayerMiss, ctx.Err()
		case <-time.After(m.cfg.RetryDelay):
		}
		res, layer, err := m.Get(ctx, searchKey, provider)
		if err != nil {
			return CachedResults{}, LayerMiss, err
		}
		if layer != LayerMiss {
			return res, layer, nil
		}
	}
	applog.From(ctx).Warn("stampede lock contention exhausted retry budget", "searchKey", searchKey, "provider", provider)
	return CachedResults{}, LayerMiss, nil
}

// Bust evicts a search entry from both layers, used by the CLI's "bust"
// command for manual cache eviction (the teacher's bust.Run deletes an
// author's cached keys the same direct way).
func (m *Manager) Bust(ctx context.Context, searchKey, provider string) error {
	if m.l1 != nil {
		if err := m.l1.Delete(ctx, l1Key(searchKey, provider)); err != nil {
			applog.From(ctx).Warn("cache L1 bust failed", "err", err)
		}
	}
	if err := m.l2.Delete(ctx, searchKey, provider); err != nil {
		return apperr.Wrap(apperr.KindStorageError, "l2 cache bust failed", err)
	}
	return nil
}

func l1Key(searchKey, provider string) string {
	return "search:" + provider + ":" + searchKey
}

func lockKey(searchKey, provider string) string {
	return "lock:" + provider + ":" + searchKey
}

func encodePayload(p payload) ([]byte, error) {
	b, err := sonic.Marshal(p)
	if err != nil {
		return nil, err
	}
	return compress(b), nil
}

func decodePayload(raw []byte) (payload, error) {
	b, err := decompress(raw)
	if err != nil {
		return payload{}, err
	}
	var p payload
	if err := sonic.Unmarshal(b, &p); err != nil {
		return payload{}, err
	}
	return p, nil
}
