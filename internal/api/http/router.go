package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/queue-service/internal/api/http/handlers"
	"github.com/spec-kit/queue-service/internal/auth"
	"github.com/spec-kit/queue-service/internal/domain"
	"github.com/spec-kit/queue-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Queue          *handlers.QueueHandler
	Modules        *handlers.ModulesHandler
	Admin          *handlers.AdminHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	app.Post("/auth/login", cfg.Auth.Login)

	protected := app.Group("", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	protected.Get("/auth/me", cfg.Auth.Me)
	protected.Get("/queue", cfg.Queue.Overview)
	protected.Get("/state", cfg.Queue.State)

	reception := protected.Group("/reception", auth.RequireRole(domain.RoleReception, domain.RoleAdmin))
	reception.Post("/tickets", cfg.Queue.IssueTicket)

	modules := protected.Group("/modules", auth.RequireRole(domain.RoleModule, domain.RoleAdmin))
	access := auth.RequireModuleAccess("id")
	modules.Get("/:id", access, cfg.Modules.Get)
	modules.Get("/:id/calls", access, cfg.Modules.Calls)
	modules.Post("/:id/call", access, cfg.Modules.Call)
	modules.Post("/:id/attend", access, cfg.Modules.Attend)
	modules.Post("/:id/complete", access, cfg.Modules.Complete)
	modules.Post("/:id/pause", access, cfg.Modules.Pause)
	modules.Post("/:id/resume", access, cfg.Modules.Resume)
	modules.Post("/:id/toggle-pause", access, cfg.Modules.TogglePause)

	admin := protected.Group("/admin", auth.RequireRole(domain.RoleAdmin))
	admin.Get("/operators", cfg.Admin.Operators)
	admin.Post("/modules/activate-all", cfg.Admin.ActivateAll)
	admin.Post("/modules/deactivate-all", cfg.Admin.DeactivateAll)
	admin.Post("/modules/:id/activate", cfg.Admin.ActivateModule)
	admin.Post("/modules/:id/deactivate", cfg.Admin.DeactivateModule)
	admin.Post("/reset", cfg.Admin.Reset)
}
