package routes

import (
	"time"

	"github.com/castellanhq/castellan/internal/auth"
	"github.com/castellanhq/castellan/internal/handlers"
	"github.com/castellanhq/castellan/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	adminHandler *handlers.AdminHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *auth.TokenManager,
	adminGroup string,
) {
	router.Get("/health", healthHandler.Health)

	// Public routes - no authentication required
	router.With(middleware.LoginRateLimit(10, time.Minute)).Post("/auth/login", authHandler.Login)

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(tokenManager))

		// Any authenticated user
		r.Get("/users/{username}", authHandler.GetUser)
		r.Get("/users/{username}/groups", authHandler.GetUserGroups)
		r.Get("/auth/lockout/{username}", adminHandler.GetLockoutStatus)

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireGroup(adminGroup))
			r.Post("/admin/unlock", adminHandler.UnlockAccount)
			r.Get("/admin/lockouts/{username}", adminHandler.GetLockoutHistory)
		})
	})
}
