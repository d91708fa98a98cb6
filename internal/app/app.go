// Package app wires the engine's dependencies once, in the manner of
// the teacher's api.InitDependencies (internal/api/dependencies.go):
// config, cache, both remote store adapters, and the coordinator that
// drives them, so cmd/sync and cmd/syncd share one construction path
// instead of duplicating wiring.
package app

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sanketpandia/recondrive/internal/cache"
	"github.com/sanketpandia/recondrive/internal/config"
	"github.com/sanketpandia/recondrive/internal/db"
	"github.com/sanketpandia/recondrive/internal/db/repository"
	"github.com/sanketpandia/recondrive/internal/logging"
	"github.com/sanketpandia/recondrive/internal/metrics"
	"github.com/sanketpandia/recondrive/internal/provider/relational"
	"github.com/sanketpandia/recondrive/internal/provider/sheet"
	"github.com/sanketpandia/recondrive/internal/sync/conflict"
	"github.com/sanketpandia/recondrive/internal/sync/coordinator"
	"github.com/sanketpandia/recondrive/internal/sync/payload"
	"github.com/sanketpandia/recondrive/internal/sync/schema"
)

// App holds every long-lived dependency the sync engine needs for the
// life of the process.
type App struct {
	Config      *config.Config
	Coordinator *coordinator.Coordinator
	Metrics     *metrics.Registry

	sqlxDB *sqlx.DB
	cache  cache.CacheInterface
}

// Build loads configuration and constructs the full dependency graph.
// Callers own the returned App's lifetime and must call Close when
// done.
func Build() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("app: load config: %w", err)
	}

	if err := logging.Init(appEnv(cfg)); err != nil {
		return nil, fmt.Errorf("app: init logging: %w", err)
	}

	sqlxDB, err := db.Connect(cfg.RelationalDSN)
	if err != nil {
		return nil, fmt.Errorf("app: connect relational store: %w", err)
	}

	gormDB, err := db.ConnectORM(cfg.RelationalDSN)
	if err != nil {
		return nil, fmt.Errorf("app: connect relational store (gorm): %w", err)
	}
	if err := repository.AutoMigrate(gormDB); err != nil {
		return nil, fmt.Errorf("app: migrate system_sync_runs: %w", err)
	}

	c, err := buildCache(cfg)
	if err != nil {
		return nil, fmt.Errorf("app: build cache: %w", err)
	}

	reg := metrics.NewRegistry()

	relAdapter := relational.New(sqlxDB)
	sheetAdapter := sheet.New(cfg, c, reg)

	coord := &coordinator.Coordinator{
		Relational:        relAdapter,
		Sheet:             sheetAdapter,
		RelationalAdapter: relAdapter,
		Runs:              repository.NewSyncRunRepo(gormDB),
		Window: conflict.Window{
			Source: cfg.RelationalTolerance,
			Target: cfg.SheetTolerance,
		},
		SheetEpsilon: cfg.SheetTolerance,
		Prep:         payload.New(cfg.BlankOverwriteAllow),
		Metrics:      reg,
	}

	return &App{
		Config:      cfg,
		Coordinator: coord,
		Metrics:     reg,
		sqlxDB:      sqlxDB,
		cache:       c,
	}, nil
}

func appEnv(cfg *config.Config) string {
	if cfg.Env == "production" || cfg.Env == "prod" {
		return "production"
	}
	return "development"
}

func buildCache(cfg *config.Config) (cache.CacheInterface, error) {
	switch cfg.CacheBackend {
	case "redis":
		return cache.NewRedisCacheService(cache.RedisOptions{Addr: cfg.RedisAddr, Password: cfg.RedisPass})
	default:
		return cache.NewCacheService(3600, 600), nil
	}
}

// Close releases the process-lifetime resources built by Build.
func (a *App) Close() error {
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.sqlxDB != nil {
		return a.sqlxDB.Close()
	}
	return nil
}

// ParseEntities validates CLI-supplied entity names against the fixed
// set the engine knows how to sync (§6.1), returning them in schema
// order rather than argv order so the coordinator's fixed dependency
// order is preserved regardless of how the operator typed them.
func ParseEntities(names []string) ([]schema.Entity, error) {
	if len(names) == 0 {
		return nil, nil
	}
	aliases := map[string]schema.Entity{
		"cars":      schema.Car,
		"locations": schema.Location,
		"companies": schema.Company,
		"loads":     schema.Load,
		"users":     schema.User,
		"bookings":  schema.Booking,
		"requests":  schema.Request,
	}
	requested := make(map[schema.Entity]bool, len(names))
	for _, n := range names {
		e, ok := aliases[n]
		if !ok {
			return nil, fmt.Errorf("unknown entity %q (valid: cars, locations, companies, users, loads, bookings, requests)", n)
		}
		requested[e] = true
	}
	var out []schema.Entity
	for _, e := range schema.Entities {
		if requested[e] {
			out = append(out, e)
		}
	}
	return out, nil
}
