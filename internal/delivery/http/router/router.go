package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ghazaziz76/data-scraper/internal/delivery/http/handler"
	"github.com/ghazaziz76/data-scraper/internal/delivery/http/middleware"
	"github.com/ghazaziz76/data-scraper/pkg/metrics"
)

const requestTimeout = 60 * time.Second

func New(h *handler.Handler, gatherer prometheus.Gatherer, m *metrics.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics(m))
	r.Use(chimw.Recoverer)

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/api/health", h.HandleHealthCheck)

	r.Route("/api/jobs", func(r chi.Router) {
		// The progress stream is long-lived and must not be cut by the timeout.
		r.Get("/{id}/progress/ws", h.HandleProgressStream)

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(requestTimeout))
			r.Post("/", h.HandleSubmitJob)
			r.Get("/", h.HandleListJobs)
			r.Get("/{id}", h.HandleGetJob)
			r.Delete("/{id}", h.HandleDeleteJob)
			r.Post("/{id}/cancel", h.HandleCancelJob)
			r.Post("/{id}/run", h.HandleRerunJob)
			r.Get("/{id}/result", h.HandleGetResult)
			r.Get("/{id}/export", h.HandleExport)
		})
	})

	return r
}
