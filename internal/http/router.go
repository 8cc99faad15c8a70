package http

import (
	"context"
	"log/slog"

	"github.com/geocoder89/projecthub/internal/config"
	"github.com/geocoder89/projecthub/internal/http/handlers"
	"github.com/geocoder89/projecthub/internal/http/middlewares"
	"github.com/geocoder89/projecthub/internal/observability"
	"github.com/geocoder89/projecthub/internal/planning"
	"github.com/geocoder89/projecthub/internal/usersync"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Deps is everything the router needs from main.
type Deps struct {
	Log      *slog.Logger
	Prom     *observability.Prom
	Gatherer prometheus.Gatherer

	Verifier  middlewares.TokenVerifier
	UserStore middlewares.UserLookup // resolves path ids for the self-or-admin check
	Users     *usersync.Service
	Projects  *planning.ProjectService
	Tasks     *planning.TaskService

	// InitRoles runs the realm role bootstrap on demand.
	InitRoles func(ctx context.Context) (usersync.BootstrapResult, error)

	// Ready gates /readyz; Info is reported there but never fails it.
	Ready map[string]handlers.Check
	Info  map[string]handlers.Check
}

func NewRouter(cfg config.Config, d Deps) *gin.Engine {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// ClientIP feeds the per-IP limiter, so forwarding headers count only from known proxies
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		d.Log.Warn("http.trusted_proxies.invalid", "proxies", cfg.TrustedProxies, "err", err)
		_ = r.SetTrustedProxies(nil)
	}

	// middleware
	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(d.Log))
	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}
	if cfg.OTelEnabled {
		r.Use(otelgin.Middleware("projecthub"))
	}
	r.Use(middlewares.SecurityHeaders(cfg.Env == "prod"))
	r.Use(middlewares.CORSMiddleware(cfg.CORSAllowedOrigins))
	// uploads carry the file plus multipart framing
	r.Use(middlewares.MaxBodyBytes(cfg.MaxUploadBytes + 1<<20))

	// health
	h := handlers.NewHealthHandler(d.Ready, d.Info)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	r.GET("/docs", handlers.SwaggerUI)
	r.GET("/docs/openapi.yaml", handlers.OpenAPISpec)

	authMw := middlewares.NewAuthMiddleware(d.Verifier)
	signupLimiter := middlewares.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	apiLimiter := middlewares.NewRateLimiter(cfg.RateLimitRPS*10, cfg.RateLimitBurst*10)

	usersHandler := handlers.NewUsersHandler(d.Users, cfg.MaxUploadBytes)
	authHandler := handlers.NewAuthHandler(d.Users)
	identityHandler := handlers.NewIdentityHandler(d.Users, d.InitRoles)
	projectsHandler := handlers.NewProjectsHandler(d.Projects, d.Tasks)
	tasksHandler := handlers.NewTasksHandler(d.Tasks)

	api := r.Group("/api")

	auth := api.Group("/auth")
	auth.POST("/signup",
		signupLimiter.RateLimiterMiddleware(middlewares.KeyByIP),
		middlewares.RequireJSON(),
		authHandler.SignUp,
	)

	secured := api.Group("")
	secured.Use(authMw.RequireAuth())
	secured.Use(apiLimiter.RateLimiterMiddleware(middlewares.KeyByUserOrIP))

	secured.GET("/auth/me", authHandler.Me)

	admin := authMw.RequireRole("ADMIN")
	selfOrAdmin := authMw.RequireSelfOrRole("ADMIN", "id", d.UserStore)

	// users
	users := secured.Group("/users")
	users.GET("", usersHandler.ListUsers)
	users.GET("/:id", usersHandler.GetUser)
	users.POST("", admin, middlewares.RequireJSON(), usersHandler.CreateUser)
	users.PUT("/:id", admin, middlewares.RequireJSON(), usersHandler.UpdateUser)
	users.DELETE("/:id", admin, usersHandler.DeleteUser)
	users.POST("/:id/document", selfOrAdmin, middlewares.RequireMultipart(), usersHandler.UploadDocument)
	users.GET("/:id/document", selfOrAdmin, usersHandler.DownloadDocument)
	users.PUT("/:id/roles/:role", admin, usersHandler.AssignRole)
	users.DELETE("/:id/roles/:role", admin, usersHandler.RemoveRole)

	// identity provider operations
	idp := secured.Group("/identity", admin)
	idp.POST("/init-roles", identityHandler.InitRoles)
	idp.POST("/admins", middlewares.RequireJSON(), identityHandler.CreateAdmin)
	idp.POST("/users/:externalId/sync", identityHandler.SyncUser)

	// projects
	projects := secured.Group("/projects")
	projects.GET("", projectsHandler.ListProjects)
	projects.POST("", middlewares.RequireJSON(), projectsHandler.CreateProject)
	projects.GET("/responsible/:userId", projectsHandler.ListByResponsible)
	projects.GET("/:id", projectsHandler.GetProject)
	projects.PUT("/:id", middlewares.RequireJSON(), projectsHandler.UpdateProject)
	projects.DELETE("/:id", projectsHandler.DeleteProject)
	projects.GET("/:id/tasks", projectsHandler.ListProjectTasks)
	projects.GET("/:id/task-stats", projectsHandler.TaskStats)

	// tasks
	tasks := secured.Group("/tasks")
	tasks.GET("", tasksHandler.ListTasks)
	tasks.POST("", middlewares.RequireJSON(), tasksHandler.CreateTask)
	tasks.GET("/filter", tasksHandler.FilterTasks)
	tasks.GET("/assignee/:userId", tasksHandler.ListByAssignee)
	tasks.GET("/:id", tasksHandler.GetTask)
	tasks.PUT("/:id", middlewares.RequireJSON(), tasksHandler.UpdateTask)
	tasks.PATCH("/:id/status", tasksHandler.UpdateStatus)
	tasks.DELETE("/:id", tasksHandler.DeleteTask)

	return r
}
