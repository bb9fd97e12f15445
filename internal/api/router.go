package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/plasmakit/ionmix/internal/api/handlers"
	mw "github.com/plasmakit/ionmix/internal/api/middleware"
	"github.com/plasmakit/ionmix/internal/buildconfig"
	"github.com/plasmakit/ionmix/internal/config"
	"github.com/plasmakit/ionmix/internal/domain"
	"github.com/plasmakit/ionmix/internal/service"
	"github.com/plasmakit/ionmix/internal/store"
	"go.uber.org/zap"
)

// App holds the router and background services for lifecycle management.
type App struct {
	Router       *chi.Mux
	Retention    *service.RetentionService
	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
	inflight     atomic.Int64
}

func NewApp(db *pgxpool.Pool, logger *zap.Logger) *App {
	// Stores
	runStore := store.NewRunStore(db)
	stateStore := store.NewStateStore(db)
	provStore := store.NewProvenanceStore(db)

	// Services
	solveSvc := service.NewSolveService(runStore, stateStore, provStore, buildconfig.Version(), logger)
	if config.WarmStartEnabled() {
		solveSvc.SetWarmStart(service.NewWarmStartService(stateStore, logger))
	}
	retentionSvc := service.NewRetentionService(runStore, logger)
	retentionSvc.SetInterval(config.RetentionInterval())
	retentionSvc.SetMaxAge(config.RetentionMaxAge())

	// Handlers
	solveHandler := handlers.NewSolveHandler(solveSvc)
	diagnosticsHandler := handlers.NewDiagnosticsHandler()

	r := chi.NewRouter()

	app := &App{
		Router:    r,
		Retention: retentionSvc,
		startTime: time.Now(),
	}

	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount, &app.inflight)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	// Health (no auth)
	r.Get("/health", healthHandler(db))

	// Metrics (no auth)
	r.Get("/metrics", app.metricsHandler())

	// Authenticated routes
	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(config.APIKey()))

		r.Route("/solves", func(r chi.Router) {
			r.Post("/", solveHandler.Create)
			r.Get("/", solveHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", solveHandler.GetByID)
				r.Delete("/", solveHandler.Delete)
				r.Get("/state", solveHandler.GetState)
				r.Get("/provenance", solveHandler.GetProvenance)
			})
		})

		r.Get("/diagnostics", diagnosticsHandler.List)
	})

	return app
}

// NewRouter returns just the chi.Mux when lifecycle management is not needed.
func NewRouter(db *pgxpool.Pool, logger *zap.Logger) *chi.Mux {
	return NewApp(db, logger).Router
}

func healthHandler(db *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  "ok",
			"version": buildconfig.Version(),
		})
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.requestCount.Load(),
			"error_count":    app.errorCount.Load(),
			"inflight":       app.inflight.Load(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
			"build":      buildconfig.VersionInfo(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure stores satisfy the domain interfaces at compile time.
var (
	_ domain.RunStore        = (*store.RunStore)(nil)
	_ domain.StateStore      = (*store.StateStore)(nil)
	_ domain.ProvenanceStore = (*store.ProvenanceStore)(nil)
)
