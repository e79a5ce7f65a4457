package http

import (
	"log/slog"

	"github.com/geocoder89/taskflow/internal/domain/rbac"
	"github.com/geocoder89/taskflow/internal/http/handlers"
	"github.com/geocoder89/taskflow/internal/http/middlewares"
	"github.com/geocoder89/taskflow/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type RouterDeps struct {
	Log         *slog.Logger
	Env         string
	ServiceName string
	Prom        *observability.Prom
	Gatherer    prometheus.Gatherer

	Auth     *middlewares.AuthMiddleware
	Accounts *handlers.AccountsHandler
	Tasks    *handlers.TasksHandler
	Health   *handlers.HealthHandler

	CORSOrigins    []string
	MaxBodyBytes   int64
	LoginRateLimit *middlewares.RateLimiter
}

func NewRouter(d RouterDeps) *gin.Engine {
	if d.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(d.ServiceName))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(d.Log))
	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.SecurityHeaders(d.Env == "prod"))
	r.Use(middlewares.CORSMiddleware(d.CORSOrigins))
	r.Use(middlewares.MaxBodyBytes(d.MaxBodyBytes))
	r.Use(middlewares.RequireJSON())

	// health
	r.GET("/", d.Health.Root)
	r.GET("/healthz", d.Health.Healthz)
	r.GET("/readyz", d.Health.Readyz)
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	auth := d.Auth

	// accounts
	acc := r.Group("/accounts")
	{
		limited := acc.Group("")
		if d.LoginRateLimit != nil {
			limited.Use(d.LoginRateLimit.RateLimiterMiddleware(middlewares.KeyByIP))
		}
		limited.POST("/register", d.Accounts.Register)
		limited.POST("/login", d.Accounts.Login)

		acc.POST("/logout", auth.RequireAuth(), d.Accounts.Logout)
		acc.GET("/me", auth.RequireAuth(), d.Accounts.Me)

		admin := acc.Group("/users/:id/roles", auth.RequireAuth(), auth.RequireSuperUser())
		admin.PUT("/:role", d.Accounts.AssignRole)
		admin.DELETE("/:role", d.Accounts.RemoveRole)
	}

	// taskboard
	tasks := r.Group("/taskboard/tasks", auth.RequireAuth())
	{
		tasks.GET("", d.Tasks.ListTasks)
		tasks.GET("/:id", d.Tasks.GetTask)
		tasks.POST("", auth.RequirePermission(rbac.CreateTask), d.Tasks.CreateTask)
		tasks.PUT("/:id", auth.RequirePermission(rbac.UpdateTask), d.Tasks.UpdateTask)
		tasks.DELETE("/:id", auth.RequirePermission(rbac.DeleteTask), d.Tasks.DeleteTask)
	}

	return r
}
