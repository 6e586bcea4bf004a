package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/credinet/credinet/internal/associates"
	"github.com/credinet/credinet/internal/audit"
	"github.com/credinet/credinet/internal/catalog"
	"github.com/credinet/credinet/internal/debts"
	"github.com/credinet/credinet/internal/loans"
	"github.com/credinet/credinet/internal/observability"
	"github.com/credinet/credinet/internal/payments"
	"github.com/credinet/credinet/internal/periods"
	"github.com/credinet/credinet/internal/platform/httpx"
	"github.com/credinet/credinet/internal/statements"
	"github.com/credinet/credinet/jobs"
)

// APIPrefix is where every domain handler is mounted.
const APIPrefix = "/api/v1"

// HealthCheck reports whether a backing store is reachable.
type HealthCheck func(r *http.Request) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger      *slog.Logger
	Config      *Config
	Idempotency IdempotencyKeys
	Metrics     *observability.Metrics
	Health      map[string]HealthCheck

	AssociatesHandler *associates.Handler
	LoansHandler      *loans.Handler
	PaymentsHandler   *payments.Handler
	PeriodsHandler    *periods.Handler
	StatementsHandler *statements.Handler
	DebtsHandler      *debts.Handler
	CatalogHandler    *catalog.Handler
	AuditHandler      *audit.Handler
	JobHandler        *jobs.Handler
}

// NewRouter constructs the chi.Router with credinet defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:      params.Logger,
		Config:      params.Config,
		Metrics:     params.Metrics,
		Idempotency: params.Idempotency,
	}) {
		r.Use(mw)
	}

	if params.Config == nil || !params.Config.IsProduction() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", healthz(params.Health))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route(APIPrefix, func(r chi.Router) {
		if params.AssociatesHandler != nil {
			params.AssociatesHandler.MountRoutes(r)
		}
		if params.LoansHandler != nil {
			params.LoansHandler.MountRoutes(r)
		}
		if params.PaymentsHandler != nil {
			params.PaymentsHandler.MountRoutes(r)
		}
		if params.PeriodsHandler != nil {
			params.PeriodsHandler.MountRoutes(r)
		}
		if params.StatementsHandler != nil {
			params.StatementsHandler.MountRoutes(r)
		}
		if params.DebtsHandler != nil {
			params.DebtsHandler.MountRoutes(r)
		}
		if params.CatalogHandler != nil {
			params.CatalogHandler.MountRoutes(r)
		}
		if params.AuditHandler != nil {
			params.AuditHandler.MountRoutes(r)
		}
		if params.JobHandler != nil {
			params.JobHandler.MountRoutes(r)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, "Method Not Allowed", r.Method+" is not supported here")
	})

	return r
}

func healthz(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		deps := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(r); err != nil {
				deps[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			deps[name] = "ok"
		}
		body := map[string]any{"status": "ok", "dependencies": deps}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		httpx.JSON(w, status, body)
	}
}
