// MedDesk - Virtual Doctor web server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/meddesk/internal/api"
	"github.com/ashureev/meddesk/internal/chat"
	"github.com/ashureev/meddesk/internal/config"
	"github.com/ashureev/meddesk/internal/identity"
	"github.com/ashureev/meddesk/internal/middleware"
	"github.com/ashureev/meddesk/internal/observability"
	"github.com/ashureev/meddesk/internal/probe"
	"github.com/ashureev/meddesk/internal/store"
	"github.com/ashureev/meddesk/internal/worker"
	"github.com/ashureev/meddesk/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
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
	level.Set(cfg.SlogLevel())

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

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
	slog.Info("Database connected", "path", cfg.DBPath)

	knowledge, err := chat.LoadKnowledge(cfg.KnowledgePath)
	if err != nil {
		slog.Error("Failed to load knowledge catalog", "error", err)
		os.Exit(1)
	}
	slog.Info("Knowledge catalog loaded", "tips", len(knowledge.Tips), "problems", len(knowledge.Problems))

	renderer, err := web.NewRenderer()
	if err != nil {
		slog.Error("Failed to parse templates", "error", err)
		os.Exit(1)
	}

	// Initialize services.
	chatService := chat.NewService(chat.NewEngine(knowledge), repo)
	sessions := identity.NewManager(repo, chatService, cfg.SessionTTL, cfg.IsDevelopment())
	limiter := chat.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration)
	defer limiter.Stop()

	// Initialize handlers.
	healthHandler := api.NewHealthHandler(repo)
	pageHandler := api.NewPageHandler(renderer)
	authHandler := api.NewAuthHandler(repo, sessions, renderer, cfg.BcryptCost)
	chatHandler := chat.NewHandler(chatService, limiter, cfg.Chat.MaxRequestBodySize)
	wsHandler := chat.NewWebSocketHandler(chatService, limiter, cfg.FrontendURL, cfg.IsDevelopment(), cfg.Chat.MaxRequestBodySize)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(middleware.RealIP(cfg.TrustProxy))
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(observability.MetricsMiddleware)
	r.Use(middleware.CORS(middleware.CORSOrigins(cfg.FrontendURL, cfg.IsDevelopment())))

	// Probes and static assets carry no session.
	healthHandler.RegisterHealth(r)
	r.Handle("/metrics", observability.Handler())
	static := web.StaticHandler()
	r.Handle("/css/*", static)
	r.Handle("/js/*", static)
	r.Handle("/images/*", static)

	r.Group(func(r chi.Router) {
		r.Use(sessions.Middleware)

		pageHandler.RegisterRoutes(r)
		authHandler.RegisterRoutes(r)
		chatHandler.RegisterRoutes(r)
		r.Get("/ws/chat", wsHandler.ServeHTTP)
	})

	// No WriteTimeout: chat WebSockets are long-lived.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeperDone := worker.NewSweeper(repo, cfg.SessionTTL, cfg.SweepInterval).Start(ctx)

	var healthProbe *probe.Server
	if cfg.GRPCHealthAddr != "" {
		healthProbe = probe.New(repo, 0)
		go func() {
			if err := healthProbe.ListenAndServe(ctx, cfg.GRPCHealthAddr); err != nil {
				slog.Error("gRPC health probe failed", "error", err)
			}
		}()
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

	if healthProbe != nil {
		healthProbe.Stop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	<-sweeperDone

	slog.Info("Server stopped successfully")
}
