// Command bookcore is the book metadata search and ingestion service:
// an HTTP server (serve), a one-shot sweep runner for external cron (sweep),
// and a manual cache-eviction tool (bust).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/IBM/pgxpoolprometheus"
	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/alecthomas/kong"
	charm "github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagetrail/bookcore/internal/applog"
	"github.com/pagetrail/bookcore/internal/breaker"
	"github.com/pagetrail/bookcore/internal/cache"
	"github.com/pagetrail/bookcore/internal/dedupe"
	"github.com/pagetrail/bookcore/internal/httpapi"
	"github.com/pagetrail/bookcore/internal/ingest"
	"github.com/pagetrail/bookcore/internal/metrics"
	"github.com/pagetrail/bookcore/internal/provider"
	"github.com/pagetrail/bookcore/internal/scheduler"
	"github.com/pagetrail/bookcore/internal/search"
	"github.com/pagetrail/bookcore/internal/storage"
)

// cli contains our command-line flags.
type cli struct {
	Serve serveCmd `cmd:"" help:"Run the HTTP server."`
	Sweep sweepCmd `cmd:"" help:"Run the L2 cache and provenance-retention sweeps once."`
	Bust  bustCmd  `cmd:"" help:"Evict a search-cache entry."`
}

type pgconfig struct {
	DatabaseURL      string `env:"DATABASE_URL" help:"Full Postgres DSN; overrides the Postgres* flags below."`
	PostgresHost     string `default:"localhost" help:"Postgres host."`
	PostgresUser     string `default:"postgres" help:"Postgres user."`
	PostgresPassword string `default:"" help:"Postgres password."`
	PostgresPort     int    `default:"5432" help:"Postgres port."`
	PostgresDatabase string `default:"bookcore" help:"Postgres database to use."`
}

// dsn returns the database's DSN based on the provided flags, preferring the
// single DATABASE_URL over the individual Postgres* fields when both are set.
func (c *pgconfig) dsn() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		c.PostgresUser, c.PostgresPassword, c.PostgresHost, c.PostgresPort, c.PostgresDatabase)
}

type logconfig struct {
	Verbose bool `help:"Increase log verbosity."`
}

func (c *logconfig) apply() {
	if c.Verbose {
		applog.SetLevel(charm.DebugLevel)
	}
}

type cacheconfig struct {
	RedisAddr     string `default:"" env:"L1_URL" help:"Redis address for the L1 cache; when empty the manager runs without L1 (degraded)."`
	RedisPassword string `default:"" env:"L1_PASSWORD" help:"Redis password."`
	RedisDB       int    `default:"0" help:"Redis database index."`
	NoL1          bool   `help:"Disable the Redis L1 cache; the manager runs permanently degraded."`

	L1TTLSec int `default:"43200" env:"CACHE_L1_TTL_SEC" help:"L1 cache entry lifetime in seconds."`
	L2TTLSec int `default:"2592000" env:"CACHE_L2_TTL_SEC" help:"L2 cache entry lifetime in seconds."`
}

// l1 builds the Redis L1, or nil if disabled or no address is configured.
func (c *cacheconfig) l1() cache.L1 {
	if c.NoL1 || c.RedisAddr == "" {
		return nil
	}
	return cache.NewRedisL1(cache.RedisOptions{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB})
}

// cacheManagerConfig overrides cache.DefaultConfig's TTLs from flags/env
// without touching its stampede-lock parameters.
func (c *cacheconfig) cacheManagerConfig() cache.Config {
	cfg := cache.DefaultConfig()
	cfg.L1TTL = time.Duration(c.L1TTLSec) * time.Second
	cfg.L2TTL = time.Duration(c.L2TTLSec) * time.Second
	return cfg
}

type circuitconfig struct {
	BreakerTimeoutMs         int     `default:"2500" env:"CIRCUIT_TIMEOUT_MS" help:"Per-call provider timeout in milliseconds."`
	BreakerVolumeThreshold   int     `default:"5" help:"Minimum calls before the breaker evaluates its error rate."`
	BreakerErrorThresholdPct float64 `default:"50" env:"CIRCUIT_ERROR_PCT" help:"Error percentage that trips the breaker open."`
	BreakerResetMs           int     `default:"30000" env:"CIRCUIT_RESET_MS" help:"Time spent Open before probing Half-Open, in milliseconds."`
}

func (c *circuitconfig) breakerConfig() breaker.Config {
	return breaker.Config{
		Timeout:           time.Duration(c.BreakerTimeoutMs) * time.Millisecond,
		VolumeThreshold:   c.BreakerVolumeThreshold,
		ErrorThresholdPct: c.BreakerErrorThresholdPct,
		ResetTimeout:      time.Duration(c.BreakerResetMs) * time.Millisecond,
	}
}

type providerconfig struct {
	PrimaryBaseURL   string `default:"https://www.googleapis.com/books/v1/volumes" help:"Primary provider base URL."`
	PrimaryAPIKey    string `default:"" env:"PRIMARY_API_KEY" help:"Primary provider API key."`
	PrimaryRPS       int    `default:"10" help:"Primary provider requests per second."`
	SecondaryBaseURL string `default:"https://openlibrary.org/search.json" help:"Secondary provider base URL."`
	SecondaryRPS     int    `default:"5" help:"Secondary provider requests per second."`
	UserAgent        string `default:"bookcore/1.0" help:"User-Agent sent to upstream providers."`
	DisableSecondary bool   `help:"Run without a secondary (fallback) provider."`
}

func (c *providerconfig) primary() *provider.PrimaryProvider {
	return provider.NewPrimaryProvider(provider.Config{
		BaseURL: c.PrimaryBaseURL, APIKey: c.PrimaryAPIKey, UserAgent: c.UserAgent, RPS: c.PrimaryRPS,
	})
}

func (c *providerconfig) secondary() *provider.SecondaryProvider {
	if c.DisableSecondary {
		return nil
	}
	return provider.NewSecondaryProvider(provider.Config{
		BaseURL: c.SecondaryBaseURL, UserAgent: c.UserAgent, RPS: c.SecondaryRPS,
	})
}

type serveCmd struct {
	pgconfig
	logconfig
	cacheconfig
	circuitconfig
	providerconfig

	Port int `default:"8788" help:"Port to serve traffic on."`
}

func (s *serveCmd) Run() error {
	s.logconfig.apply()
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, s.pgconfig.dsn())
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pool.Close()

	if err := storage.Migrate(ctx, s.pgconfig.dsn()); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	reg := metrics.NewRegistry()
	reg.MustRegister(pgxpoolprometheus.NewCollector(pool, nil))
	m := metrics.New(reg)

	cacheMgr := cache.New(s.cacheconfig.l1(), cache.NewPostgresL2(pool), s.cacheconfig.cacheManagerConfig())
	cacheMgr.OnDegradedChange(m.RecordCacheL1Degraded)

	primaryBreaker := breaker.New("primary", s.circuitconfig.breakerConfig())
	primaryBreaker.OnStateChange(m.RecordBreakerState)

	primary := s.providerconfig.primary()

	var secondaryProvider provider.Provider
	var secondaryBreaker *breaker.Breaker
	if sp := s.providerconfig.secondary(); sp != nil {
		secondaryProvider = sp
		secondaryBreaker = breaker.New("secondary", s.circuitconfig.breakerConfig())
		secondaryBreaker.OnStateChange(m.RecordBreakerState)
	}

	orchestrator := search.New(cacheMgr, primary, primaryBreaker, secondaryProvider, secondaryBreaker, search.DefaultConfig(), m)

	dedupeRepo := storage.NewDedupeRepo(pool)
	detector := dedupe.New(dedupeRepo)
	ingestion := ingest.New(
		ingest.PoolBeginner{Pool: pool},
		detector,
		storage.NewBookRepo(),
		storage.NewEditionRepo(),
		storage.NewMetadataSourceRepo(),
		storage.NewOverrideRepo(),
		storage.NewReadingEntryRepo(),
		m,
	)

	sweeper := scheduler.New(pool, cache.NewPostgresL2(pool), storage.NewMetadataSourceRepo())
	go sweeper.Run(ctx)

	handler := httpapi.NewServer(orchestrator, ingestion, reg)
	addr := fmt.Sprintf(":%d", s.Port)
	httpServer := &http.Server{
		Handler:  handler,
		Addr:     addr,
		ErrorLog: slog.NewLogLogger(applog.SlogHandler(), slog.LevelError),
	}

	applog.From(ctx).Info("listening", "addr", addr)
	return httpServer.ListenAndServe()
}

type sweepCmd struct {
	pgconfig
	logconfig
}

func (s *sweepCmd) Run() error {
	s.logconfig.apply()
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, s.pgconfig.dsn())
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pool.Close()

	sweeper := scheduler.New(pool, cache.NewPostgresL2(pool), storage.NewMetadataSourceRepo())
	return sweeper.RunOnce(ctx)
}

type bustCmd struct {
	pgconfig
	logconfig
	cacheconfig

	Query    string `arg:"" help:"Search query text whose cached results should be evicted."`
	Type     string `default:"general" help:"Search type: general, title, author, or isbn."`
	Provider string `default:"primary" help:"Provider whose cached entry to evict: primary or secondary."`
	Limit    int    `default:"20" help:"Page size of the cached search to evict."`
	Offset   int    `default:"0" help:"Result offset of the cached search to evict."`
}

func (b *bustCmd) Run() error {
	b.logconfig.apply()
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, b.pgconfig.dsn())
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pool.Close()

	mgr := cache.New(b.cacheconfig.l1(), cache.NewPostgresL2(pool), b.cacheconfig.cacheManagerConfig())
	key := cache.SearchKey(b.Query, b.Type, map[string]string{
		"limit":  fmt.Sprint(b.Limit),
		"offset": fmt.Sprint(b.Offset),
	})
	return mgr.Bust(ctx, key, b.Provider)
}

func main() {
	kctx := kong.Parse(&cli{})
	err := kctx.Run()
	if err != nil {
		applog.From(context.Background()).Error("fatal", "err", err)
		os.Exit(1)
	}
}

func init() {
	// Limit our memory to 90% of what's free. This affects cache sizes.
	_, err := memlimit.SetGoMemLimitWithOpts(
		memlimit.WithRatio(0.9),
		memlimit.WithLogger(slog.Default()),
		memlimit.WithProvider(
			memlimit.ApplyFallback(
				memlimit.FromCgroup,
				memlimit.FromSystem,
			),
		),
	)
	if err != nil {
		panic(err)
	}
}
