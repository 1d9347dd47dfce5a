// Dialogue Trainer gateway server.
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

	"github.com/ashureev/dialog-trainer/internal/api"
	"github.com/ashureev/dialog-trainer/internal/backend"
	"github.com/ashureev/dialog-trainer/internal/chatws"
	"github.com/ashureev/dialog-trainer/internal/config"
	"github.com/ashureev/dialog-trainer/internal/dialog"
	"github.com/ashureev/dialog-trainer/internal/identity"
	"github.com/ashureev/dialog-trainer/internal/middleware"
	"github.com/ashureev/dialog-trainer/internal/probe"
	"github.com/ashureev/dialog-trainer/internal/store"
	"github.com/ashureev/dialog-trainer/internal/sweeper"
	"github.com/ashureev/dialog-trainer/internal/transcript"
	"github.com/ashureev/dialog-trainer/web"
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

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "backend_url", cfg.Backend.URL)

	// Initialize dependencies.
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

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	transcripts, err := transcript.New(transcript.Config{
		Enabled:   cfg.Transcript.Enabled,
		Dir:       cfg.Transcript.Dir,
		QueueSize: cfg.Transcript.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize transcript writer", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := transcripts.Close(); closeErr != nil {
			slog.Error("Failed to close transcript writer", "error", closeErr)
		}
	}()

	backendCfg := backend.Config{BaseURL: cfg.Backend.URL, Timeout: cfg.Backend.Timeout}
	backends := func(token string) dialog.Backend {
		return backend.NewClient(backendCfg, backend.StaticToken(token), logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize services.
	sm := chatws.NewSessionManager()
	limiter := chatws.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	go limiter.Run(ctx)

	// Initialize handlers.
	baseHandler := api.NewHandler(repo)
	healthHandler := api.NewHealthHandler(baseHandler, sm)
	dialogHandler := api.NewDialogHandler(baseHandler, api.ClientConfig{
		FinishPhrase:   cfg.Dialog.FinishPhrase,
		TickIntervalMS: cfg.Dialog.TimerTick.Milliseconds(),
		WebSocketPath:  "/ws/chat",
	})
	wsHandler := chatws.NewHandler(repo, backends, sm, limiter, transcripts, chatws.Options{
		FinishPhrase:  cfg.Dialog.FinishPhrase,
		TickInterval:  cfg.Dialog.TimerTick,
		AllowedOrigin: cfg.FrontendURL,
		IsDev:         cfg.IsDevelopment(),
		Logger:        logger,
	})

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))

	// Public routes.
	healthHandler.RegisterHealth(r)

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, cfg.IsDevelopment()))
		dialogHandler.RegisterRoutes(r)

		// WebSocket endpoint.
		r.Get("/ws/chat", wsHandler.ServeHTTP)
	})

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// WebSocket connections are long-lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Start binding sweeper.
	sweeper.New(repo, cfg.Bindings.TTL, cfg.Bindings.SweepInterval, logger).Start(ctx)

	// Optional gRPC health probe.
	probeDone := make(chan struct{})
	if cfg.HealthGRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.HealthGRPCAddr)
		if err != nil {
			slog.Error("Failed to listen for health probe", "addr", cfg.HealthGRPCAddr, "error", err)
			os.Exit(1)
		}
		go func() {
			defer close(probeDone)
			if err := probe.New(repo, 0, logger).Serve(ctx, lis); err != nil {
				slog.Error("Health probe failed", "error", err)
			}
		}()
	} else {
		close(probeDone)
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by Shutdown.
	sm.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}
	<-probeDone

	slog.Info("Server stopped successfully")
}
