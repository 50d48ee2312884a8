package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/contentos/contentos-backend/internal/api"
	"github.com/contentos/contentos-backend/internal/cache"
	"github.com/contentos/contentos-backend/internal/calendar"
	"github.com/contentos/contentos-backend/internal/config"
	"github.com/contentos/contentos-backend/internal/log"
	"github.com/contentos/contentos-backend/internal/metrics"
	"github.com/contentos/contentos-backend/internal/store"
	"github.com/contentos/contentos-backend/internal/ws"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, err := log.NewSugar(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infow("Starting content calendar API server",
		"env", cfg.Env,
		"addr", cfg.HTTPAddr,
		"store", cfg.Store.Backend,
	)

	// Setup metrics
	metricsObj, metricsHandler, err := metrics.Setup("contentos-api")
	if err != nil {
		logger.Fatalw("Failed to setup metrics", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Select the calendar store backend
	var calendarStore calendar.Store
	switch cfg.Store.Backend {
	case "postgres":
		db, err := sql.Open("pgx", cfg.Store.PostgresDSN)
		if err != nil {
			logger.Fatalw("Failed to open database", "error", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			logger.Fatalw("Database ping failed", "error", err)
		}
		calendarStore = store.NewPostgres(db, logger)
	default:
		calendarStore = store.NewMemory()
	}
	logger.Infow("Store initialized", "backend", cfg.Store.Backend)

	// Setup Redis cache (falls back to in-process cache when Redis is down)
	cacheObj := cache.New(cfg.Cache.RedisAddr, logger, metricsObj)
	defer cacheObj.Close()

	// Setup WebSocket hub and SSE handler
	wsHub := ws.NewHub(cacheObj, logger, metricsObj, cfg.Security.CORSAllowedOrigins)
	sseHandler := ws.NewSSEHandler(cacheObj, logger)
	notifier := ws.NewToastNotifier(wsHub, logger)

	// Start hub in background
	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go wsHub.Run(hubCtx)

	// Setup the calendar service and load persisted state
	svc := calendar.NewService(calendarStore, notifier, logger,
		calendar.WithBroadcaster(wsHub),
		calendar.WithMutationRecorder(metricsObj),
	)
	if err := svc.Load(ctx, ""); err != nil {
		logger.Fatalw("Failed to load calendar state", "error", err)
	}
	logger.Infow("Calendar state loaded", "accounts", len(svc.Accounts()))

	// Setup API handler and middleware
	handler := api.NewHandler(svc, calendarStore, wsHub, sseHandler, cacheObj, cfg, logger, metricsObj)
	middleware := api.NewMiddleware(logger, metricsObj)

	// Create router with middleware and routes - pass security config to Routes
	router := handler.Routes(middleware, cfg.Security.CORSAllowedOrigins, cfg.Security.RateLimitRPM)

	// Log configured CORS origins for easier debugging in dev
	logger.Infow("CORS configured", "allowed_origins", cfg.Security.CORSAllowedOrigins)

	// Add metrics endpoint
	router.Handle("/metrics", metricsHandler)

	// Setup HTTP server
	// No server-wide write deadline: /v1/stream and /v1/ws hold their
	// connection open indefinitely. The router applies a per-request
	// timeout to every other route.
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		logger.Infow("API server starting", "addr", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	// Wait for interrupt signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Fatalw("Server startup failed", "error", err)
	case sig := <-shutdown:
		logger.Infow("Shutdown signal received", "signal", sig.String())

		// Give outstanding requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Errorw("Graceful shutdown failed", "error", err)
			server.Close()
		}

		logger.Infow("Server stopped")
	}
}
