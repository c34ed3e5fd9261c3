package app

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	audithttp "github.com/veeduria/veeduria-api/internal/audit/http"
	"github.com/veeduria/veeduria-api/internal/auth"
	"github.com/veeduria/veeduria-api/internal/observability"
	"github.com/veeduria/veeduria-api/internal/platform/httpx"
	"github.com/veeduria/veeduria-api/internal/rbac"
	"github.com/veeduria/veeduria-api/internal/roles"
	"github.com/veeduria/veeduria-api/internal/users"
	"github.com/veeduria/veeduria-api/jobs"
)

// ReadinessChecker reports whether a backing service is reachable.
type ReadinessChecker interface {
	Check(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger       *slog.Logger
	Config       *Config
	Tokens       *Tokens
	Metrics      *observability.Metrics
	AuthHandler  *auth.Handler
	RolesHandler *roles.Handler
	UsersHandler *users.Handler
	RBACHandler  *rbac.Handler
	AuditHandler *audithttp.Handler
	JobHandler   *jobs.Handler
	Readiness    map[string]ReadinessChecker
}

// NewRouter constructs the chi.Router with API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
		Tokens:  params.Tokens,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readyHandler(params.Logger, params.Readiness))

	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}
	if params.UsersHandler != nil {
		perHour := 10
		if params.Config != nil && params.Config.RegisterLimitPerHour > 0 {
			perHour = params.Config.RegisterLimitPerHour
		}
		r.With(httprate.Limit(perHour, time.Hour,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(tooManyRequests),
		)).Post("/register", params.UsersHandler.Register)
		r.Route("/users", params.UsersHandler.MountRoutes)
	}
	if params.RolesHandler != nil {
		r.Route("/roles", params.RolesHandler.MountRoutes)
	}
	if params.RBACHandler != nil {
		params.RBACHandler.MountRoutes(r)
	}
	if params.AuditHandler != nil {
		r.Route("/logs", params.AuditHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, "Method Not Allowed", "")
	})

	return r
}

func readyHandler(logger *slog.Logger, checks map[string]ReadinessChecker) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return func(w http.ResponseWriter, r *http.Request) {
		status := make(map[string]string, len(names))
		healthy := true
		for _, name := range names {
			if err := checks[name].Check(r.Context()); err != nil {
				logger.Warn("readiness check failed", slog.String("check", name), slog.Any("error", err))
				status[name] = "unavailable"
				healthy = false
				continue
			}
			status[name] = "ok"
		}
		code := http.StatusOK
		if !healthy {
			code = http.StatusServiceUnavailable
		}
		httpx.JSON(w, code, map[string]any{"ready": healthy, "checks": status})
	}
}
