package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/castellanhq/castellan/internal/auth"
	"github.com/castellanhq/castellan/internal/background"
	"github.com/castellanhq/castellan/internal/cache"
	"github.com/castellanhq/castellan/internal/config"
	"github.com/castellanhq/castellan/internal/database"
	"github.com/castellanhq/castellan/internal/directory"
	"github.com/castellanhq/castellan/internal/handlers"
	middlewareCustom "github.com/castellanhq/castellan/internal/middleware"
	"github.com/castellanhq/castellan/internal/repositories"
	"github.com/castellanhq/castellan/internal/routes"
	"github.com/castellanhq/castellan/internal/services"
	pkghttp "github.com/castellanhq/castellan/pkg/http"
	pkglogger "github.com/castellanhq/castellan/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 60*time.Second)
	if err := db.Migrate(migrateCtx); err != nil {
		migrateCancel()
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}
	migrateCancel()

	// Initialize cache
	statusCache, err := cache.New(&cfg.Redis, logger)
	if err != nil {
		logger.Error("failed to connect to cache", slog.Any("error", err))
		os.Exit(1)
	}
	defer statusCache.Close()

	// Initialize directory client
	directoryClient := directory.NewClient(&cfg.Directory, logger)
	defer directoryClient.Close()

	// Initialize repositories
	attemptRepo := repositories.NewAttemptRepository(db)
	lockoutRepo := repositories.NewLockoutRepository(db)

	// Initialize cleanup manager
	cleanupManager := background.NewCleanupManager(
		attemptRepo,
		lockoutRepo,
		logger,
		cfg.Lockout.CleanupInterval,
		cfg.Lockout.AttemptRetention,
	)

	// Initialize token manager
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)

	auditLogger := pkglogger.NewAuditLogger(logger)

	// Lockout alert notifier, optional
	var notifier services.LockoutNotifier
	if cfg.Email.Enabled {
		sesNotifier, err := services.NewSESNotifier(
			cfg.Email.AWSRegion,
			cfg.Email.FromAddress,
			cfg.Email.SecurityAddress,
			logger,
		)
		if err != nil {
			logger.Error("failed to initialize lockout notifier", slog.Any("error", err))
			os.Exit(1)
		}
		notifier = sesNotifier
	}

	// Initialize services
	lockoutService := services.NewLockoutService(
		attemptRepo,
		lockoutRepo,
		statusCache,
		notifier,
		services.LockoutConfig{
			MaxFailedAttempts:   cfg.Lockout.MaxFailedAttempts,
			AttemptWindow:       cfg.Lockout.AttemptWindow,
			BaseLockoutDuration: cfg.Lockout.BaseLockoutDuration,
			MaxLockoutDuration:  cfg.Lockout.MaxLockoutDuration,
		},
		logger,
		auditLogger,
	)
	authService := services.NewAuthService(directoryClient, lockoutService, tokenManager, logger, auditLogger)

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	authHandler := handlers.NewAuthHandler(authService, directoryClient, ipConfig)
	adminHandler := handlers.NewAdminHandler(lockoutService)
	healthHandler := handlers.NewHealthHandler(db, statusCache, directoryClient)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.RequestLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	router.Route("/api/v1", func(r chi.Router) {
		routes.RegisterRoutes(r, authHandler, adminHandler, healthHandler, tokenManager, cfg.Auth.AdminGroup)
	})
	router.Get("/health", healthHandler.Health)

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
