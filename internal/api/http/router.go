package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/video-assignment-service/internal/api/http/handlers"
	"github.com/spec-kit/video-assignment-service/internal/auth"
	"github.com/spec-kit/video-assignment-service/internal/domain"
	"github.com/spec-kit/video-assignment-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Assignment     *handlers.AssignmentHandler
	Limits         *handlers.StaffLimitHandler
	Reclaim        *handlers.ReclaimHandler
	Staff          *handlers.StaffHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// NewApp builds the fiber app. Immutable is required: handlers hand route
// params and bodies to stores that outlive the request, and fiber reuses
// those buffers otherwise.
func NewApp(name string) *fiber.App {
	return fiber.New(fiber.Config{
		AppName:               name,
		DisableStartupMessage: true,
		Immutable:             true,
	})
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if reg := cfg.Metrics.Registry(); reg != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	staff := app.Group("/staff", cfg.AuthMiddleware.Handle, auth.RequireStaffRole())
	staff.Post("/videos/:id/claim", cfg.Assignment.Claim)
	staff.Get("/me/workload", cfg.Assignment.MyWorkload)

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle, auth.RequireStaffRole(domain.StaffRoleAdmin))

	videos := admin.Group("/videos")
	videos.Post("/:id/assign", cfg.Assignment.Assign)
	videos.Post("/:id/unassign", cfg.Assignment.Unassign)
	videos.Post("/:id/complete", cfg.Assignment.Complete)
	videos.Post("/:id/revision", cfg.Assignment.FlagRevision)
	videos.Post("/:id/revision/complete", cfg.Assignment.CompleteRevision)
	videos.Post("/:id/cancel", cfg.Assignment.Cancel)

	staffAdmin := admin.Group("/staff")
	staffAdmin.Post("", cfg.Staff.Register)
	staffAdmin.Get("/limits", cfg.Limits.ListLimits)
	staffAdmin.Get("/:id", cfg.Staff.Get)
	staffAdmin.Get("/:id/workload", cfg.Assignment.StaffWorkload)
	staffAdmin.Put("/:id/limit", cfg.Limits.SetLimit)
	staffAdmin.Delete("/:id/limit", cfg.Limits.RemoveLimit)

	reclaim := admin.Group("/reclaim")
	reclaim.Get("/expired", cfg.Reclaim.Expired)
	reclaim.Post("/videos/:id", cfg.Reclaim.ReclaimVideo)
	reclaim.Post("/sweep", cfg.Reclaim.Sweep)
}
