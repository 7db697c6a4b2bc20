package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/admin-ops/internal/api/http/handlers"
	"github.com/spec-kit/admin-ops/internal/auth"
	"github.com/spec-kit/admin-ops/internal/domain"
	"github.com/spec-kit/admin-ops/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Session        *handlers.SessionHandler
	Escalations    *handlers.EscalationsHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Metrics.Registry(), promhttp.HandlerOpts{})))
	}

	api := app.Group("/api/v1")
	api.Post("/auth/login", cfg.Auth.Login)

	protected := api.Group("", cfg.AuthMiddleware.Handle)
	protected.Get("/auth/me", cfg.Auth.Me)
	protected.Post("/auth/logout", cfg.Auth.Logout)
	protected.Get("/auth/sessions", cfg.Auth.Sessions)
	protected.Post("/auth/password", cfg.Auth.ChangePassword)
	protected.Post("/users", auth.RequireRole(domain.RoleAdmin), cfg.Auth.Register)

	if cfg.Session != nil {
		session := protected.Group("/session")
		session.Get("", auth.RequirePermission(auth.PermissionViewSession), cfg.Session.Current)
		session.Post("/check", auth.RequirePermission(auth.PermissionManageSession), cfg.Session.Check)
		session.Post("/renew", auth.RequirePermission(auth.PermissionManageSession), cfg.Session.Renew)
		session.Post("/sign-out", auth.RequirePermission(auth.PermissionManageSession), cfg.Session.SignOut)
	}

	view := auth.RequirePermission(auth.PermissionViewEscalations)
	manage := auth.RequirePermission(auth.PermissionManageEscalations)

	escalations := protected.Group("/escalations")
	escalations.Get("/stats", view, cfg.Escalations.Stats)
	escalations.Get("/rules", view, cfg.Escalations.Rules)
	escalations.Post("/check", auth.RequirePermission(auth.PermissionRunEscalations), cfg.Escalations.Check)
	escalations.Post("/:id/resolve", manage, cfg.Escalations.Resolve)
	escalations.Post("/:id/cancel", manage, cfg.Escalations.Cancel)

	protected.Get("/tickets/:id/escalations", view, cfg.Escalations.ListForTicket)
	protected.Post("/tickets/:id/escalations", manage, cfg.Escalations.Escalate)
}
