// Strategic discovery API server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/strategic-discovery/internal/agents"
	"github.com/ashureev/strategic-discovery/internal/api"
	"github.com/ashureev/strategic-discovery/internal/config"
	"github.com/ashureev/strategic-discovery/internal/events"
	"github.com/ashureev/strategic-discovery/internal/grpchealth"
	"github.com/ashureev/strategic-discovery/internal/identity"
	"github.com/ashureev/strategic-discovery/internal/jobs"
	"github.com/ashureev/strategic-discovery/internal/llm"
	"github.com/ashureev/strategic-discovery/internal/metrics"
	"github.com/ashureev/strategic-discovery/internal/middleware"
	"github.com/ashureev/strategic-discovery/internal/operations"
	"github.com/ashureev/strategic-discovery/internal/report"
	"github.com/ashureev/strategic-discovery/internal/store"
	"github.com/ashureev/strategic-discovery/internal/stream"
	"github.com/ashureev/strategic-discovery/internal/taxonomy"
	"github.com/ashureev/strategic-discovery/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "model", cfg.HasModel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	tree := taxonomy.Default()
	if cfg.TaxonomyPath != "" {
		if tree, err = taxonomy.LoadFile(cfg.TaxonomyPath); err != nil {
			slog.Error("Failed to load taxonomy", "path", cfg.TaxonomyPath, "error", err)
			os.Exit(1)
		}
	}

	// Observers stay nil interfaces when metrics are off.
	var (
		m         *metrics.Metrics
		recorder  agents.Recorder
		reportObs report.Observer
		opObs     operations.Observer
	)
	if cfg.MetricsEnabled {
		m = metrics.New()
		recorder, reportObs, opObs = m, m, m
	}

	// Model backend. Without an API key every agent serves its fallback and
	// enrichment uses canned data.
	var (
		gen      llm.Generator = llm.Offline
		chatter  llm.Chatter
		enricher agents.Enricher = agents.StaticEnricher{Delay: 2 * time.Second}
	)
	if cfg.HasModel() {
		gemini, err := llm.NewGemini(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
		if err != nil {
			slog.Error("Failed to initialize Gemini client", "error", err)
			os.Exit(1)
		}
		gen = llm.NewRetrying(gemini, llm.RetryConfig{
			MaxAttempts:       cfg.Agents.MaxAttempts,
			BackoffBase:       cfg.Agents.BackoffBase,
			BackoffMultiplier: 2.0,
			MaxBackoff:        15 * time.Second,
		}, logger)
		chatter = gemini
		enricher = agents.NewCompanyEnricher(gen,
			agents.WithModel(cfg.Gemini.Model),
			agents.WithTimeout(cfg.Enrichment.Timeout),
			agents.WithLogger(logger),
			agents.WithRecorder(recorder))
		slog.Info("Gemini backend ready", "model", cfg.Gemini.Model, "synthesis_model", cfg.Gemini.SynthesisModel)
	} else {
		slog.Warn("GEMINI_API_KEY not set, serving fallback content")
	}

	orchestrator := report.NewDefault(gen, report.Models{
		Section:   cfg.Gemini.Model,
		Synthesis: cfg.Gemini.SynthesisModel,
	}, cfg.Agents.Timeout, logger, recorder, reportObs)
	questions := agents.NewQuestions(gen,
		agents.WithModel(cfg.Gemini.Model),
		agents.WithTimeout(cfg.Agents.Timeout),
		agents.WithLogger(logger),
		agents.WithRecorder(recorder))

	var publisher events.Publisher = events.Noop{}
	if cfg.NATS.URL != "" {
		nc, err := events.ConnectNATS(cfg.NATS.URL, cfg.NATS.SubjectPrefix, logger)
		if err != nil {
			slog.Warn("Failed to connect to NATS, operation events disabled", "url", cfg.NATS.URL, "error", err)
		} else {
			publisher = nc
			slog.Info("Publishing operation events", "url", cfg.NATS.URL, "prefix", cfg.NATS.SubjectPrefix)
		}
	}

	queue := jobs.New(cfg.Enrichment.Workers, cfg.Enrichment.QueueSize, logger)
	svc := operations.NewService(repo, queue, enricher,
		operations.WithLogger(logger),
		operations.WithPublisher(publisher),
		operations.WithObserver(opObs),
		operations.WithEnrichmentTimeout(cfg.Enrichment.Timeout))

	if n, err := svc.Recover(ctx); err != nil {
		slog.Error("Failed to recover pending operations", "error", err)
	} else if n > 0 {
		slog.Info("Recovered pending operations", "count", n)
	}

	operations.StartRetentionWorker(ctx, repo, cfg.SessionRetention, logger)

	if m != nil {
		m.GaugeFunc("discovery_enrichment_queue_depth", "Enrichment jobs waiting for a worker.",
			func() float64 { return float64(queue.Len()) })
		m.GaugeFunc("discovery_status_subscribers", "Open operation status subscriptions.",
			func() float64 { return float64(svc.Hub().Subscribers()) })
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	defer limiter.Stop()

	handler := api.NewHandler(api.Deps{
		Sessions:  svc,
		Records:   repo,
		Reports:   orchestrator,
		Questions: questions,
		Chatter:   chatter,
		ChatModel: cfg.Gemini.Model,
		Taxonomy:  tree,
		Limiter:   limiter,
		Logger:    logger,
	})
	healthHandler := api.NewHealthHandler(repo)
	streamHandler := stream.NewHandler(svc, cfg.SSEKeepalive, cfg.FrontendURL, cfg.IsDevelopment(), logger)

	allowedOrigins := []string{"*"}
	if cfg.FrontendURL != "" {
		allowedOrigins = []string{cfg.FrontendURL}
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(allowedOrigins))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	healthHandler.RegisterHealth(r)
	handler.RegisterRoutes(r)
	streamHandler.RegisterRoutes(r)
	if m != nil {
		r.Handle("/metrics", m.Handler())
	}
	if cfg.StaticDir != "" {
		r.Handle("/*", web.SPAHandler(os.DirFS(cfg.StaticDir)))
		slog.Info("Serving frontend", "dir", cfg.StaticDir)
	}

	// SSE and websocket streams need WriteTimeout 0.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}
	srv.RegisterOnShutdown(streamHandler.Shutdown)

	if cfg.GRPCHealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCHealthAddr)
		if err != nil {
			slog.Error("Failed to listen for gRPC health", "addr", cfg.GRPCHealthAddr, "error", err)
			os.Exit(1)
		}
		hs := grpchealth.NewServer(repo, logger)
		go func() {
			if err := hs.Serve(ctx, lis); err != nil {
				slog.Error("gRPC health server failed", "error", err)
			}
		}()
	}

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	// The queue drains on its own budget whatever the HTTP drain used.
	// Interrupted enrichments stay processing and are resubmitted on the next start.
	drainCtx, drainCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer drainCancel()
	if err := queue.Shutdown(drainCtx); err != nil {
		slog.Warn("Enrichment queue did not drain", "error", err)
	}
	if err := publisher.Close(); err != nil {
		slog.Warn("Failed to close event publisher", "error", err)
	}

	slog.Info("Server stopped successfully")
}
