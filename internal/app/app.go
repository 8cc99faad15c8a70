// Package app wires config into stores, clients and services. The API server
// and the operator CLI both start from here.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/geocoder89/projecthub/internal/auth"
	"github.com/geocoder89/projecthub/internal/blob"
	"github.com/geocoder89/projecthub/internal/cache"
	"github.com/geocoder89/projecthub/internal/config"
	"github.com/geocoder89/projecthub/internal/db"
	"github.com/geocoder89/projecthub/internal/identity"
	"github.com/geocoder89/projecthub/internal/observability"
	"github.com/geocoder89/projecthub/internal/planning"
	"github.com/geocoder89/projecthub/internal/repo/memory"
	"github.com/geocoder89/projecthub/internal/repo/postgres"
	"github.com/geocoder89/projecthub/internal/usersync"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

type App struct {
	Cfg      config.Config
	Log      *slog.Logger
	Registry *prometheus.Registry
	Prom     *observability.Prom

	Pool      *pgxpool.Pool // nil with the memory driver
	Cache     cache.Store
	Keycloak  *identity.Keycloak
	Directory *identity.Breaker
	Blobs     *blob.Client
	Verifier  *auth.Verifier

	UserStore usersync.Store
	Users     *usersync.Service
	Projects  *planning.ProjectService
	Tasks     *planning.TaskService

	closers []func()
}

func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	a := &App{Cfg: cfg, Log: log}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	a.Prom = observability.NewProm(a.Registry)

	var (
		users    usersync.Store
		projects planning.ProjectStore
		tasks    planning.TaskStore
	)

	switch cfg.StorageDriver {
	case "memory":
		store := memory.NewStore()
		users, projects, tasks = store.Users(), store.Projects(), store.Tasks()
		log.Warn("storage.memory", "msg", "data is lost on restart")

	case "postgres", "":
		if cfg.RunMigrations {
			version, err := db.RunMigrations(cfg.DBURL)
			if err != nil {
				return nil, err
			}
			log.Info("db.migrated", "version", version)
		}

		pool, err := db.NewPool(ctx, cfg.DBURL, int32(cfg.DBMaxConns))
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		a.Pool = pool
		a.closers = append(a.closers, pool.Close)

		users = postgres.NewUsersRepo(pool, a.Prom)
		projects = postgres.NewProjectsRepo(pool, a.Prom)
		tasks = postgres.NewTasksRepo(pool, a.Prom)

	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	if cfg.RedisAddr != "" {
		r := cache.NewRedis(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.CacheTTL,
		})
		a.Cache = r
		a.closers = append(a.closers, func() { _ = r.Close() })
	} else {
		a.Cache = cache.New(cfg.CacheTTL)
	}

	a.Keycloak, a.Directory = NewDirectory(cfg, a.Prom)

	a.Blobs = blob.NewClient(blob.Config{
		BaseURL:      cfg.RustFSBaseURL,
		UploadPath:   cfg.RustFSUploadPath,
		DownloadPath: cfg.RustFSDownloadPath,
	})

	a.Verifier = auth.NewVerifier(auth.VerifierConfig{
		RealmKey:    a.Keycloak.RealmPublicKey,
		HS256Secret: cfg.AuthHS256Secret,
		Issuer:      cfg.KeycloakIssuer(),
	})

	a.UserStore = users
	a.Users = usersync.NewService(users, a.Directory, a.Blobs, log, a.Prom)
	a.Tasks = planning.NewTaskService(tasks, projects, users, a.Cache, a.Prom, log)
	a.Projects = planning.NewProjectService(projects, users, a.Tasks, log)

	return a, nil
}

// NewDirectory builds the Keycloak client and the breaker every caller goes through.
func NewDirectory(cfg config.Config, observer identity.CallObserver) (*identity.Keycloak, *identity.Breaker) {
	kc := identity.NewKeycloak(identity.KeycloakConfig{
		BaseURL:      cfg.KeycloakURL,
		Realm:        cfg.KeycloakRealm,
		ClientID:     cfg.KeycloakClientID,
		ClientSecret: cfg.KeycloakClientSecret,
		HTTPClient:   &http.Client{Timeout: cfg.KeycloakTimeout},
	})
	return kc, identity.NewBreaker(kc, identity.BreakerConfig{
		Timeout:          cfg.KeycloakTimeout,
		FailureThreshold: cfg.KeycloakBreakerThreshold,
		Cooldown:         cfg.KeycloakBreakerCooldown,
	}, observer)
}

func (a *App) InitRoles(ctx context.Context) (usersync.BootstrapResult, error) {
	return usersync.InitializeRealmRoles(ctx, a.Directory, a.Log)
}

// Close releases the pool and cache connections, newest first.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
