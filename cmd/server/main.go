package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertramos07281021/centralize-coordinator/internal/api"
	"github.com/robertramos07281021/centralize-coordinator/internal/auth"
	"github.com/robertramos07281021/centralize-coordinator/internal/claims"
	"github.com/robertramos07281021/centralize-coordinator/internal/config"
	"github.com/robertramos07281021/centralize-coordinator/internal/coordinator"
	"github.com/robertramos07281021/centralize-coordinator/internal/dialer"
	"github.com/robertramos07281021/centralize-coordinator/internal/janitor"
	"github.com/robertramos07281021/centralize-coordinator/internal/metrics"
	"github.com/robertramos07281021/centralize-coordinator/internal/notify"
	"github.com/robertramos07281021/centralize-coordinator/internal/poller"
	"github.com/robertramos07281021/centralize-coordinator/internal/presence"
	"github.com/robertramos07281021/centralize-coordinator/internal/production"
	"github.com/robertramos07281021/centralize-coordinator/internal/roster"
	"github.com/robertramos07281021/centralize-coordinator/internal/storage"
	"github.com/robertramos07281021/centralize-coordinator/internal/websocket"
	"github.com/robertramos07281021/centralize-coordinator/pkg/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Configure logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("log_level", cfg.LogLevel).
		Msg("starting coordinator server")

	// Create context for background services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Record store
	store, err := storage.NewStore(ctx, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize record store")
	}

	// Notification fan-out
	fanout := notify.NewFanout(log.Logger)

	// Roster cache, warmed once before anything polls
	rosterCache := roster.NewCache(store, cfg.RosterRefreshInterval, log.Logger)
	if err := rosterCache.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("initial roster refresh failed, starting with an empty roster")
	}
	go rosterCache.Start(ctx)

	// Dialer control client and status poller
	dialerClient := dialer.NewClient(cfg.DialerCallTimeout, log.Logger)
	statusPoller := poller.NewPoller(dialerClient, rosterCache, fanout,
		cfg.PollInterval, cfg.DialerCallTimeout, cfg.SnapshotStaleAfter, log.Logger)
	go statusPoller.Start(ctx)

	// Domain services
	ledger := production.NewLedger(store, fanout, log.Logger)
	arbiter := claims.NewArbiter(store, rosterCache, fanout, log.Logger)
	reconciler := presence.NewReconciler(arbiter, ledger, dialerClient, rosterCache,
		store, fanout, cfg.DialerCallTimeout, log.Logger)

	coord := coordinator.New(store, ledger, arbiter, reconciler, fanout, log.Logger)
	tracker := presence.NewTracker(cfg.OfflineDebounce, coord.HandleOffline, log.Logger)
	coord.SetTracker(tracker)

	// WebSocket connection layer
	hub := websocket.NewHub(fanout, tracker, log.Logger)
	coord.SetConnectionCloser(hub)
	go hub.Run(ctx)
	wsHandler := websocket.NewHandler(hub, cfg, log.Logger)

	// Nightly unassignment job
	unassigner := janitor.NewJanitor(store, cfg.JanitorHour, cfg.JanitorBatchSize, log.Logger)
	go unassigner.Start(ctx)

	// JWKS for token verification, unless auth is bypassed
	if cfg.IssuerURL != "" && os.Getenv("SKIP_AUTH") != "true" {
		if err := auth.InitJWKS(cfg.IssuerURL); err != nil {
			log.Fatal().Err(err).Msg("failed to initialize JWKS")
		}
	}

	// HTTP handlers
	apiHandler := api.NewHandler(coord, ledger, log.Logger)
	presenceHandler := api.NewPresenceHandler(statusPoller, tracker, log.Logger)

	// Create router
	r := chi.NewRouter()

	// Add middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Public routes (no auth required)
	r.Get("/healthz", healthHandler)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)

		r.Get("/ws", wsHandler.ServeHTTP)

		r.Post("/api/session/login", apiHandler.Login)
		r.Post("/api/session/logout", apiHandler.Logout)
		r.Post("/api/tasks/{accountId}/select", apiHandler.SelectTask)
		r.Post("/api/tasks/{accountId}/deselect", apiHandler.DeselectTask)
		r.Post("/api/activity", apiHandler.SwitchActivity)
		r.Get("/api/production/{date}", apiHandler.Production)
		r.Get("/api/presence", presenceHandler.Snapshot)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole("team_leader"))
			r.Post("/api/tasks/{accountId}/escalate", apiHandler.Escalate)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole("admin"))
			r.Post("/api/admin/agents/{agentId}/force-logout", apiHandler.ForceLogout)
		})
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Msgf("server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Stop background loops
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","service":"centralize-coordinator"}`)
}
