package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DiOS-Analysis/Backend/engine"
)

// maxRequestBodySize is the maximum accepted request body size (1 MB).
const maxRequestBodySize = 1 << 20

// API wires the HTTP handlers to an Engine.
type API struct {
	eng      *engine.Engine
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *httpMetrics
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the logger used for request and error logs.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) { a.logger = l }
}

// WithRegistry sets the Prometheus registry served on /metrics. A fresh
// registry with the Go and process collectors is used by default.
func WithRegistry(r *prometheus.Registry) Option {
	return func(a *API) { a.registry = r }
}

// New creates an API from an Engine.
func New(eng *engine.Engine, opts ...Option) *API {
	a := &API{eng: eng, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	if a.registry == nil {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	a.metrics = newHTTPMetrics(a.registry)
	return a
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.requestLogger)
	r.Use(a.metrics.instrument)
	r.Use(limitBody)

	a.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers all routes on r.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", a.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", a.listJobs)
		r.Post("/", a.createJob)
		r.Get("/getandsetworker/{workerId}/device/{udid}", a.claimJob)
		r.Get("/{jobId}", a.getJob)
		r.Post("/{jobId}/state", a.updateJobState)
	})

	r.Route("/workers", func(r chi.Router) {
		r.Get("/", a.listWorkers)
		r.Post("/", a.createWorker)
		r.Get("/{workerId}", a.getWorker)
	})

	r.Route("/devices", func(r chi.Router) {
		r.Get("/", a.listDevices)
		r.Post("/", a.saveDevice)
		r.Get("/{udid}", a.getDevice)
	})

	r.Route("/accounts", func(r chi.Router) {
		r.Get("/", a.listAccounts)
		r.Post("/", a.saveAccount)
		r.Get("/{uniqueIdentifier}", a.getAccount)
	})
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	if err := a.eng.Dispatcher().Store().Ping(r.Context()); err != nil {
		a.logger.Error("health check failed", slog.String("error", err.Error()))
		writeMessage(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeMessage(w, http.StatusOK, "OK")
}
