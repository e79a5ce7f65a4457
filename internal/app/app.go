// Package app assembles the API from configuration: store, cache, authz,
// accounts and the HTTP router.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/geocoder89/taskflow/internal/accounts"
	"github.com/geocoder89/taskflow/internal/authz"
	"github.com/geocoder89/taskflow/internal/config"
	"github.com/geocoder89/taskflow/internal/db"
	"github.com/geocoder89/taskflow/internal/domain/rbac"
	httpx "github.com/geocoder89/taskflow/internal/http"
	"github.com/geocoder89/taskflow/internal/http/handlers"
	"github.com/geocoder89/taskflow/internal/http/middlewares"
	"github.com/geocoder89/taskflow/internal/identity"
	"github.com/geocoder89/taskflow/internal/observability"
	"github.com/geocoder89/taskflow/internal/redisclient"
	"github.com/geocoder89/taskflow/internal/repo/memory"
	"github.com/geocoder89/taskflow/internal/repo/postgres"
	"github.com/geocoder89/taskflow/internal/security"
	"github.com/geocoder89/taskflow/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type App struct {
	Router   *gin.Engine
	Engine   *authz.Engine
	Seeder   *authz.Seeder
	Accounts *accounts.Service

	cfg   config.Config
	log   *slog.Logger
	pool  *pgxpool.Pool
	redis *redisclient.Client
}

type Option func(*options)

type options struct {
	hasher   *security.Hasher
	registry *prometheus.Registry
}

// WithHasher overrides the password hasher, mostly so tests can use a low
// bcrypt cost.
func WithHasher(h *security.Hasher) Option {
	return func(o *options) { o.hasher = h }
}

// WithRegistry serves and records metrics on reg instead of a fresh registry
// carrying the Go runtime and process collectors.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// New connects to the configured backends and wires every component. Nothing
// is written to the store until Bootstrap runs.
func New(ctx context.Context, cfg config.Config, log *slog.Logger, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.hasher == nil {
		o.hasher = security.NewHasher(0)
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
		o.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	a := &App{cfg: cfg, log: log}
	prom := observability.NewProm(o.registry)

	var (
		tx    store.TxRunner
		repos store.Repos
	)
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		mem := memory.NewStore()
		tx, repos = mem, mem.Repos()
		log.Warn("using in-memory store, data is lost on restart")
	default:
		pool, err := db.NewPool(ctx, db.PoolOptions{
			URL:      cfg.DBURL,
			MaxConns: cfg.DBMaxConns,
			AppName:  cfg.OTelServiceName,
		})
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.pool = pool
		pg := postgres.NewStore(pool, prom)
		tx, repos = pg, pg.Repos()
	}

	if cfg.RedisAddr != "" {
		rc, err := redisclient.Connect(ctx, redisclient.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redis = rc
	}

	engineOpts := []authz.EngineOption{authz.WithMetrics(prom), authz.WithLogger(log)}
	switch cfg.AuthzCache {
	case config.CacheMemory:
		engineOpts = append(engineOpts, authz.WithCache(authz.NewMemoryCache(cfg.AuthzCacheTTL)))
	case config.CacheRedis:
		engineOpts = append(engineOpts, authz.WithCache(authz.NewRedisCache(a.redis.Raw(), cfg.AuthzCacheTTL)))
	}
	a.Engine = authz.NewEngine(repos.RBAC, engineOpts...)

	catalog := rbac.DefaultCatalog()
	if cfg.AuthzCatalogFile != "" {
		loaded, err := rbac.LoadCatalog(cfg.AuthzCatalogFile)
		if err != nil {
			a.Close()
			return nil, err
		}
		catalog = loaded
	}
	a.Seeder = authz.NewSeeder(tx, catalog, a.Engine, log)

	ids := identity.NewStore(repos, identity.WithTTL(cfg.TokenTTL))
	gate := authz.NewGate(ids, a.Engine)
	a.Accounts = accounts.NewService(tx, repos, ids, a.Engine, o.hasher, catalog.RegistrationRole(), log)

	a.Router = httpx.NewRouter(httpx.RouterDeps{
		Log:            log,
		Env:            cfg.Env,
		ServiceName:    cfg.OTelServiceName,
		Prom:           prom,
		Gatherer:       o.registry,
		Auth:           middlewares.NewAuthMiddleware(gate),
		Accounts:       handlers.NewAccountsHandler(a.Accounts),
		Tasks:          handlers.NewTasksHandler(tx, repos.Tasks),
		Health:         handlers.NewHealthHandler(a.readinessChecks()),
		CORSOrigins:    cfg.CORSOrigins,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		LoginRateLimit: middlewares.NewRateLimiter(cfg.LoginRateLimit, cfg.LoginRateWindow),
	})

	return a, nil
}

// Bootstrap prepares the store for serving: schema, catalog, admin user. Any
// failure means the process must not start listening.
func (a *App) Bootstrap(ctx context.Context) (authz.SeedReport, error) {
	if a.pool != nil {
		if err := db.Migrate(ctx, a.pool); err != nil {
			return authz.SeedReport{}, err
		}
	}

	report, err := a.Seeder.EnsureCatalog(ctx)
	if err != nil {
		return report, err
	}

	_, err = a.Accounts.EnsureAdmin(ctx, accounts.AdminSpec{
		Email:     a.cfg.AdminEmail,
		Password:  a.cfg.AdminPassword,
		FirstName: a.cfg.AdminFirstName,
		LastName:  a.cfg.AdminLastName,
	})
	return report, err
}

func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("redis close failed", "err", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func (a *App) readinessChecks() map[string]handlers.Check {
	checks := map[string]handlers.Check{}
	if a.pool != nil {
		checks["postgres"] = func(ctx context.Context) error { return a.pool.Ping(ctx) }
	}
	if a.redis != nil {
		checks["redis"] = a.redis.Ping
	}
	return checks
}
