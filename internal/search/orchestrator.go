// Package search implements the SearchOrchestrator: the public search entry
// point wiring CacheManager, Breaker, Provider, and Normalizer together, with
// fallback to a secondary provider or stale cache on degradation.
package search

import (
	"context"
	"strconv"
	"time"

	"github.com/pagetrail/bookcore/internal/apperr"
	"github.com/pagetrail/bookcore/internal/applog"
	"github.com/pagetrail/bookcore/internal/breaker"
	"github.com/pagetrail/bookcore/internal/cache"
	"github.com/pagetrail/bookcore/internal/metrics"
	"github.com/pagetrail/bookcore/internal/model"
	"github.com/pagetrail/bookcore/internal/provider"
)

// CacheHit enumerates where a response's results came from.
type CacheHit string

const (
	CacheHitL1   CacheHit = "l1"
	CacheHitL2   CacheHit = "l2"
	CacheHitMiss CacheHit = "miss"
)

// Response is what Search returns.
type Response struct {
	Results      []model.SearchResult
	Total        int
	CacheHit     CacheHit
	Degraded     bool
	ProviderUsed string
	LatencyMs    int64
}

// providerBreaker pairs a provider adapter with the breaker guarding it.
type providerBreaker struct {
	provider provider.Provider
	breaker  *breaker.Breaker
}

// Config controls orchestrator-wide behavior not already owned by its
// collaborators.
type Config struct {
	// Deadline is the orchestrator's own floor deadline; the caller's
	// deadline is honored if it is longer.
	Deadline time.Duration
	// AllowCrossProviderCache permits caching a secondary-provider result
	// under the primary's searchKey when the primary itself failed.
	AllowCrossProviderCache bool
}

// DefaultConfig returns the orchestrator's baseline parameters.
func DefaultConfig() Config {
	return Config{Deadline: 3 * time.Second, AllowCrossProviderCache: true}
}

// Orchestrator is the SearchOrchestrator.
type Orchestrator struct {
	cache     *cache.Manager
	primary   providerBreaker
	secondary *providerBreaker
	cfg       Config
	metrics   *metrics.Metrics
}

// New builds an Orchestrator. secondary may be nil if only one provider is
// configured. m may be metrics.New(nil) in tests that don't care about the
// registry.
func New(cacheMgr *cache.Manager, primary provider.Provider, primaryBreaker *breaker.Breaker, secondary provider.Provider, secondaryBreaker *breaker.Breaker, cfg Config, m *metrics.Metrics) *Orchestrator {
	if m == nil {
		m = metrics.New(nil)
	}
	o := &Orchestrator{
		cache:   cacheMgr,
		primary: providerBreaker{provider: primary, breaker: primaryBreaker},
		cfg:     cfg,
		metrics: m,
	}
	if secondary != nil {
		o.secondary = &providerBreaker{provider: secondary, breaker: secondaryBreaker}
	}
	return o
}

// Search runs the full search algorithm: validate, check cache, acquire the
// stampede lock, call the primary provider under its breaker, fall back to
// the secondary provider or a stale cache entry on degradation.
func (o *Orchestrator) Search(ctx context.Context, text string, searchType provider.SearchType, limit, offset int) (Response, error) {
	start := time.Now()

	deadline := o.cfg.Deadline
	if dl, ok := ctx.Deadline(); ok {
		if remaining := time.Until(dl); remaining > deadline {
			deadline = remaining
		}
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	q, err := provider.ValidateQuery(text, searchType, limit, offset)
	if err != nil {
		return Response{}, err
	}

	searchKey := cache.SearchKey(q.Text, string(q.Type), map[string]string{
		"limit":  strconv.Itoa(q.Limit),
		"offset": strconv.Itoa(q.Offset),
	})

	resp, err := o.fromCache(ctx, searchKey, start)
	if err != nil {
		return Response{}, err
	}
	if resp != nil {
		return *resp, nil
	}

	acquired, release, err := o.cache.AcquireLock(ctx, searchKey, o.primary.provider.Name())
	if err != nil {
		return Response{}, err
	}
	if !acquired {
		cached, layer, err := o.cache.WaitForFill(ctx, searchKey, o.primary.provider.Name())
		if err != nil {
			return Response{}, err
		}
		if layer != cache.LayerMiss {
			return toResponse(cached, CacheHit(layer), false, o.primary.provider.Name(), start), nil
		}
		// Fall through and attempt the round-trip ourselves; the other
		// caller's lock lease may have expired without writing.
	} else {
		defer release()
		// Re-check the cache now that we hold the lock: another caller may
		// have filled it between our miss check and lock acquisition.
		resp, err := o.fromCache(ctx, searchKey, start)
		if err != nil {
			return Response{}, err
		}
		if resp != nil {
			return *resp, nil
		}
	}

	return o.fetchAndCache(ctx, searchKey, q, start)
}

func (o *Orchestrator) fromCache(ctx context.Context, searchKey string, start time.Time) (*Response, error) {
	cached, layer, err := o.cache.Get(ctx, searchKey, o.primary.provider.Name())
	if err != nil {
		return nil, err
	}
	if layer == cache.LayerMiss {
		o.metrics.RecordCacheMiss()
		return nil, nil
	}
	o.metrics.RecordCacheHit(string(layer))
	r := toResponse(cached, CacheHit(layer), false, cached.SourceProvider, start)
	return &r, nil
}

func (o *Orchestrator) fetchAndCache(ctx context.Context, searchKey string, q provider.Query, start time.Time) (Response, error) {
	applog.From(ctx).Debug("search cache miss, calling provider", "provider", o.primary.provider.Name())

	result, err := o.primary.breaker.Execute(ctx, func(ctx context.Context) (any, error) {
		return o.primary.provider.Search(ctx, q)
	})
	if err == nil {
		o.metrics.RecordProviderLatency(o.primary.provider.Name(), time.Since(start).Milliseconds())
		presp := result.(provider.Response)
		if cacheErr := o.cache.Set(ctx, searchKey, o.primary.provider.Name(), o.primary.provider.Name(), presp.NormalizedResults); cacheErr != nil {
			applog.From(ctx).Warn("cache write failed after successful search", "err", cacheErr)
		}
		return Response{
			Results:      presp.NormalizedResults,
			Total:        len(presp.NormalizedResults),
			CacheHit:     CacheHitMiss,
			Degraded:     false,
			ProviderUsed: o.primary.provider.Name(),
			LatencyMs:    time.Since(start).Milliseconds(),
		}, nil
	}

	o.metrics.RecordProviderError(o.primary.provider.Name(), apperr.KindOf(err))

	kind := apperr.KindOf(err)
	if kind == apperr.KindValidation || kind == apperr.KindProviderPermanent {
		return Response{}, err
	}

	applog.From(ctx).Warn("primary provider unavailable, attempting fallback", "err", err)

	if o.secondary != nil {
		sresult, serr := o.secondary.breaker.Execute(ctx, func(ctx context.Context) (any, error) {
			return o.secondary.provider.Search(ctx, q)
		})
		if serr == nil {
			o.metrics.RecordProviderLatency(o.secondary.provider.Name(), time.Since(start).Milliseconds())
			o.metrics.RecordDegraded()
			presp := sresult.(provider.Response)
			if o.cfg.AllowCrossProviderCache {
				if cacheErr := o.cache.Set(ctx, searchKey, o.primary.provider.Name(), o.secondary.provider.Name(), presp.NormalizedResults); cacheErr != nil {
					applog.From(ctx).Warn("cache write failed after fallback search", "err", cacheErr)
				}
			}
			return Response{
				Results:      presp.NormalizedResults,
				Total:        len(presp.NormalizedResults),
				CacheHit:     CacheHitMiss,
				Degraded:     true,
				ProviderUsed: o.secondary.provider.Name(),
				LatencyMs:    time.Since(start).Milliseconds(),
			}, nil
		}
		o.metrics.RecordProviderError(o.secondary.provider.Name(), apperr.KindOf(serr))
		applog.From(ctx).Warn("secondary provider also unavailable", "err", serr)
	}

	stale, ok, staleErr := o.cache.GetStale(ctx, searchKey, o.primary.provider.Name())
	if staleErr == nil && ok {
		o.metrics.RecordDegraded()
		r := toResponse(stale, CacheHitL2, true, stale.SourceProvider, start)
		return r, nil
	}

	return Response{}, err
}

func toResponse(cached cache.CachedResults, hit CacheHit, degraded bool, providerUsed string, start time.Time) Response {
	return Response{
		Results:      cached.Results,
		Total:        len(cached.Results),
		CacheHit:     hit,
		Degraded:     degraded,
		ProviderUsed: providerUsed,
		LatencyMs:    time.Since(start).Milliseconds(),
	}
}
