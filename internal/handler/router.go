// Package handler provides the operational HTTP surface for the Harmonium
// server: health and readiness probes, Prometheus metrics, and manual
// maintenance triggers.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/harmonium-app/harmonium/internal/service"
)

// Pinger checks a backing dependency, typically the database pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Router wires the operational endpoints.
type Router struct {
	db          Pinger
	gc          *service.GarbageCollector
	gatherer    prometheus.Gatherer
	metricsPath string
	logger      zerolog.Logger
}

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	DB          Pinger
	GC          *service.GarbageCollector
	Gatherer    prometheus.Gatherer
	MetricsPath string
	Logger      zerolog.Logger
}

// NewRouter creates a new Router.
func NewRouter(cfg RouterConfig) *Router {
	metricsPath := cfg.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	return &Router{
		db:          cfg.DB,
		gc:          cfg.GC,
		gatherer:    cfg.Gatherer,
		metricsPath: metricsPath,
		logger:      cfg.Logger.With().Str("component", "router").Logger(),
	}
}

// Handler returns the main HTTP handler.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", rt.handleHealth)
	r.Get("/readyz", rt.handleReady)

	if rt.gatherer != nil {
		r.Method(http.MethodGet, rt.metricsPath,
			promhttp.HandlerFor(rt.gatherer, promhttp.HandlerOpts{}))
	}

	if rt.gc != nil {
		r.Post("/admin/gc", rt.handleGCRun)
		r.Get("/admin/gc/stats", rt.handleGCStats)
	}

	return r
}

// handleHealth reports process liveness.
func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports readiness to serve, gated on the database.
func (rt *Router) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if rt.db != nil {
		if err := rt.db.Ping(ctx); err != nil {
			rt.logger.Warn().Err(err).Msg("readiness probe failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  "database unreachable",
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// gcRunResponse is the JSON body returned by a manual sweep trigger.
type gcRunResponse struct {
	FilesDeleted     int    `json:"files_deleted"`
	BytesFreed       int64  `json:"bytes_freed"`
	Errors           int    `json:"errors"`
	DurationMs       int64  `json:"duration_ms"`
	OrphansRemaining int    `json:"orphans_remaining"`
	DryRun           bool   `json:"dry_run,omitempty"`
	Status           string `json:"status"`
}

// handleGCRun triggers one orphan sweep synchronously.
func (rt *Router) handleGCRun(w http.ResponseWriter, r *http.Request) {
	result := rt.gc.RunOnce(r.Context())

	status := "ok"
	code := http.StatusOK
	if result.Errors > 0 {
		status = "partial"
	}

	writeJSON(w, code, gcRunResponse{
		FilesDeleted:     result.FilesDeleted,
		BytesFreed:       result.BytesFreed,
		Errors:           result.Errors,
		DurationMs:       result.Duration.Milliseconds(),
		OrphansRemaining: result.OrphansRemaining,
		Status:           status,
	})
}

// gcStatsResponse is the JSON body for sweep statistics.
type gcStatsResponse struct {
	OrphanFileCount  int    `json:"orphan_file_count"`
	OrphanFileSize   int64  `json:"orphan_file_size"`
	HasMoreOrphans   bool   `json:"has_more_orphans"`
	GracePeriodSecs  int64  `json:"grace_period_seconds"`
	NextRunInSeconds int64  `json:"next_run_in_seconds"`
	Status           string `json:"status"`
}

// handleGCStats reports the current orphan backlog.
func (rt *Router) handleGCStats(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.gc.GetStats(r.Context())
	if err != nil {
		rt.logger.Error().Err(err).Msg("failed to collect gc stats")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to collect stats"})
		return
	}

	writeJSON(w, http.StatusOK, gcStatsResponse{
		OrphanFileCount:  stats.OrphanFileCount,
		OrphanFileSize:   stats.OrphanFileSize,
		HasMoreOrphans:   stats.HasMoreOrphans,
		GracePeriodSecs:  int64(stats.GracePeriod.Seconds()),
		NextRunInSeconds: int64(stats.NextRunIn.Seconds()),
		Status:           "ok",
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
