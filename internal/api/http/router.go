package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/folio/internal/api/http/handlers"
	"github.com/spec-kit/folio/internal/auth"
	"github.com/spec-kit/folio/internal/domain"
	"github.com/spec-kit/folio/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Users          *handlers.UsersHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	if registry := cfg.Metrics.Registry(); registry != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	authenticate := cfg.AuthMiddleware.Authenticate()
	adminOnly := cfg.AuthMiddleware.AdminOnly()

	authGroup := app.Group("/api/auth")
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Get("/verify", authenticate, cfg.Auth.Verify)
	authGroup.Get("/me", authenticate, cfg.Auth.Me)
	authGroup.Post("/logout", authenticate, cfg.Auth.Logout)
	authGroup.Put("/password", authenticate, cfg.Auth.ChangePassword)

	users := app.Group("/api/users")
	users.Get("", cfg.AuthMiddleware.RequireRole(domain.RoleAdmin, domain.RoleContentManager), cfg.Users.List)
	users.Post("", adminOnly, cfg.Users.Create)
	users.Patch("/:id/status", adminOnly, cfg.Users.UpdateStatus)
	users.Patch("/:id/role", adminOnly, cfg.Users.UpdateRole)
}
