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
	"github.com/sachinecin/AHS-Agentic/internal/api/handlers"
	mw "github.com/sachinecin/AHS-Agentic/internal/api/middleware"
	"github.com/sachinecin/AHS-Agentic/internal/buildconfig"
	"github.com/sachinecin/AHS-Agentic/internal/config"
	"github.com/sachinecin/AHS-Agentic/internal/domain"
	"github.com/sachinecin/AHS-Agentic/internal/embedding"
	"github.com/sachinecin/AHS-Agentic/internal/service"
	"github.com/sachinecin/AHS-Agentic/internal/store"
	"go.uber.org/zap"
)

// App holds the router and background services for lifecycle management.
type App struct {
	Router *chi.Mux
	Tiers  *service.TierManager
	Tuner  *service.ThresholdTuner

	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

func NewApp(db *pgxpool.Pool, logger *zap.Logger) (*App, error) {
	dimension := config.EmbeddingDimension()

	// Stores
	graph := store.NewFactGraph(dimension)
	deep := store.NewDeepIndexStore(db)
	cache := store.NewLocalDormantCache()

	// External clients via provider factory
	embeddingClient, err := embedding.NewClient(config.EmbeddingProvider(), config.EmbeddingAPIKey(), dimension)
	if err != nil {
		return nil, err
	}
	logger.Info("embedding client initialized", zap.String("provider", config.EmbeddingProvider()))

	// Services
	tierCfg := service.DefaultTierManagerConfig()
	tierCfg.Tier1Capacity = config.Tier1Capacity()
	tierCfg.Tier2Capacity = config.Tier2Capacity()
	tierCfg.InactivityWindow = config.InactivityWindow()
	tierCfg.AccessWeight, tierCfg.RecencyWeight, tierCfg.ConflictWeight = config.SalienceWeights()
	tiers := service.NewTierManager(graph, deep, cache, tierCfg, logger)
	tiers.SetInterval(config.SweepInterval())

	skeptic, err := service.NewSkeptic(graph, tiers, service.SkepticConfig{
		DefaultThreshold: config.DefaultConflictThreshold(),
		DomainThresholds: mergedDomainThresholds(),
	}, logger)
	if err != nil {
		return nil, err
	}

	retriever, err := service.NewSpeculativeRetriever(graph, cache, deep, service.RetrieverConfig{
		ConcurrencyLimit: config.ConcurrencyLimit(),
		LookupTimeout:    config.LookupTimeout(),
	}, logger)
	if err != nil {
		return nil, err
	}

	engine := service.NewEngine(graph, tiers, skeptic, retriever, embeddingClient, service.NewQueryMetrics(), logger)
	tuner := service.NewThresholdTuner(skeptic, logger)

	// Handlers
	factHandler := handlers.NewFactHandler(engine, embeddingClient)
	queryHandler := handlers.NewQueryHandler(engine)
	conflictHandler := handlers.NewConflictHandler(engine, tuner)
	metricsHandler := handlers.NewMetricsHandler(engine)

	r := chi.NewRouter()

	app := &App{
		Router:    r,
		Tiers:     tiers,
		Tuner:     tuner,
		startTime: time.Now(),
	}

	counter := mw.NewRequestCounter(&app.requestCount, &app.errorCount)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(counter.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	// Health
	r.Get("/health", healthHandler(db))

	// Process-level metrics
	r.Get("/metrics", app.metricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/facts", func(r chi.Router) {
			r.Post("/", factHandler.Create)
			r.Get("/{id}", factHandler.GetByID)
		})

		r.Post("/query", queryHandler.Query)

		r.Route("/conflicts", func(r chi.Router) {
			r.Post("/check", conflictHandler.Check)
			r.Post("/feedback", conflictHandler.Feedback)
			r.Get("/reports", conflictHandler.Reports)
		})

		r.Get("/metrics", metricsHandler.Snapshot)
	})

	return app, nil
}

// mergedDomainThresholds lays configured overrides on top of the
// calibrated defaults.
func mergedDomainThresholds() map[string]float64 {
	thresholds := make(map[string]float64, len(service.DomainThresholdDefaults))
	for name, th := range service.DomainThresholdDefaults {
		thresholds[name] = th
	}
	for name, th := range config.DomainThresholds() {
		thresholds[name] = th
	}
	return thresholds
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
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
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

// Ensure stores and clients satisfy interfaces at compile time.
var (
	_ domain.FactStore       = (*store.FactGraph)(nil)
	_ domain.DeepIndex       = (*store.DeepIndexStore)(nil)
	_ domain.DormantCache    = (*store.LocalDormantCache)(nil)
	_ domain.EmbeddingClient = (*embedding.OpenAIClient)(nil)
	_ domain.EmbeddingClient = (*embedding.MockClient)(nil)
)
