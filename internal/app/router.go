package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	balancehttp "github.com/esgari/balance360/internal/balance/http"
	"github.com/esgari/balance360/internal/observability"
	"github.com/esgari/balance360/internal/platform/httpx"
	"github.com/esgari/balance360/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	BalanceHandler *balancehttp.Handler
	JobHandler     *jobs.Handler
	Metrics        *observability.Metrics
}

// NewRouter mounts the health, balance, jobs and metrics routes behind the
// middleware stack. Nil handlers leave their routes unmounted.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	r.Use(MiddlewareStack(MiddlewareConfig{
		Logger:    params.Logger,
		Config:    params.Config,
		Metrics:   params.Metrics,
		AccessLog: !InTestMode(),
	})...)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if params.BalanceHandler != nil {
		params.BalanceHandler.MountRoutes(r)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
