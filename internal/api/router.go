package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/unalkalkan/TaleWeaver/internal/health"
	"github.com/unalkalkan/TaleWeaver/internal/observe"
)

// RouterConfig holds the dependencies of the tale-store server
type RouterConfig struct {
	Tales   *TaleHandler
	Health  *health.Handler
	Metrics *observe.Metrics // nil disables request metrics
	Expose  bool             // serve /metrics
	Logger  *slog.Logger
}

// NewRouter builds the tale-store HTTP handler
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	if cfg.Metrics != nil {
		r.Use(observe.Middleware(cfg.Metrics, cfg.Logger, routePattern))
	}

	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	if cfg.Expose {
		r.Handle("/metrics", observe.Handler())
	}

	r.Post("/save_tale", cfg.Tales.SaveTale)
	r.Get("/list_tales", cfg.Tales.ListTales)
	r.Get("/load_tale/{id}", cfg.Tales.LoadTale)
	r.Post("/delete_tale/{id}", cfg.Tales.DeleteTale)
	r.Post("/clear_tales", cfg.Tales.ClearTales)

	return r
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}
