package http

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk/internal/auth"
)

const (
	loginAttempts = 10
	loginWindow   = time.Minute
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	Assignment     *handlers.AssignmentHandler
	Comments       *handlers.CommentsHandler
	Attachments    *handlers.AttachmentsHandler
	Stats          *handlers.StatsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", LoginLimiter(loginAttempts, loginWindow), cfg.Auth.Login)

	authGroup.Post("/logout", cfg.AuthMiddleware.Handle, cfg.Auth.Logout)
	authGroup.Get("/me", cfg.AuthMiddleware.Handle, cfg.Auth.Me)
	authGroup.Post("/password/change", cfg.AuthMiddleware.Handle, cfg.Auth.ChangePassword)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Patch("/:id", cfg.Tickets.UpdateTicket)
	tickets.Put("/:id", cfg.Tickets.UpdateTicket)
	tickets.Delete("/:id", cfg.Tickets.DeleteTicket)
	tickets.Get("/:id/history", cfg.Tickets.ListHistory)

	tickets.Post("/:id/assign", auth.RequireStaff(), cfg.Assignment.Assign)
	tickets.Post("/:id/auto-assign", auth.RequireStaff(), cfg.Assignment.AutoAssign)
	tickets.Post("/:id/unassign", auth.RequireStaff(), cfg.Assignment.Unassign)

	tickets.Get("/:id/comments", cfg.Comments.List)
	tickets.Post("/:id/comments", cfg.Comments.Create)
	tickets.Put("/:id/comments/:commentID", cfg.Comments.Update)
	tickets.Delete("/:id/comments/:commentID", cfg.Comments.Delete)

	tickets.Get("/:id/attachments", cfg.Attachments.List)
	tickets.Post("/:id/attachments", cfg.Attachments.Upload)

	attachments := app.Group("/attachments", cfg.AuthMiddleware.Handle)
	attachments.Get("/:id/download", cfg.Attachments.Download)
	attachments.Delete("/:id", cfg.Attachments.Delete)

	app.Get("/stats/dashboard", cfg.AuthMiddleware.Handle, cfg.Stats.Dashboard)
}
