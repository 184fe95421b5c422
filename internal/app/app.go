// Package app assembles services, handlers and the HTTP server.
package app

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httptransport "github.com/spec-kit/helpdesk/internal/api/http"
	"github.com/spec-kit/helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/service"
	"github.com/spec-kit/helpdesk/internal/storage"
	"github.com/spec-kit/helpdesk/internal/worker"
)

const (
	shutdownTimeout = 10 * time.Second
	// bodySlack leaves room for multipart framing around an attachment.
	bodySlack = 1 << 20
)

// Dependencies are the infrastructure pieces the application runs on.
type Dependencies struct {
	Config      config.Config
	Repos       repository.Set
	Blobs       storage.BlobStore
	Revocations auth.RevocationStore
	// Checks are run by /health/ready.
	Checks  map[string]handlers.Pinger
	Logger  *zap.Logger
	Metrics *observability.Metrics
	// Mailer receives notifications after the queue. Nil logs them.
	Mailer service.Mailer
	Now    func() time.Time
}

// App is the assembled application.
type App struct {
	Fiber      *fiber.App
	Auth       *service.AuthService
	Tickets    *service.TicketService
	Assignment *service.AssignmentService
	Comments   *service.CommentService
	Notifier   *worker.NotificationWorker

	logger *zap.Logger
}

// New wires services, handlers and routes.
func New(deps Dependencies) *App {
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	repos := deps.Repos

	dispatcher := events.NewInMemoryDispatcher(logger, metrics)

	mailer := deps.Mailer
	if mailer == nil {
		mailer = service.LogMailer{Logger: logger.Named("mail")}
	}
	if cfg.Notification.WebhookURL != "" {
		mailer = worker.WebhookMailer{URL: cfg.Notification.WebhookURL, Next: mailer}
	}
	notifier := worker.NewNotificationWorker(mailer, cfg.Notification.QueueSize, logger)
	notificationService := service.NewNotificationService(dispatcher, repos.Users, notifier, logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService)

	authService := service.NewAuthService(cfg, service.AuthDependencies{
		UserRepo:    repos.Users,
		Revocations: deps.Revocations,
		Logger:      logger,
		Now:         now,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		Transactor:     repos.Transactor,
		TicketRepo:     repos.Tickets,
		UserRepo:       repos.Users,
		CommentRepo:    repos.Comments,
		AttachmentRepo: repos.Attachments,
		HistoryRepo:    repos.History,
		Dispatcher:     dispatcher,
		Logger:         logger,
		Now:            now,
	})
	assignmentService := service.NewAssignmentService(service.AssignmentDependencies{
		Transactor:  repos.Transactor,
		TicketRepo:  repos.Tickets,
		UserRepo:    repos.Users,
		HistoryRepo: repos.History,
		Dispatcher:  dispatcher,
		Logger:      logger,
		Now:         now,
	})
	commentService := service.NewCommentService(service.CommentDependencies{
		TicketRepo:  repos.Tickets,
		CommentRepo: repos.Comments,
		Dispatcher:  dispatcher,
		Logger:      logger,
		Now:         now,
	})
	attachmentService := service.NewAttachmentService(service.AttachmentDependencies{
		TicketRepo:       repos.Tickets,
		CommentRepo:      repos.Comments,
		AttachmentRepo:   repos.Attachments,
		Blobs:            deps.Blobs,
		MaxBytes:         cfg.Attachment.MaxBytes,
		AllowedMimeTypes: cfg.Attachment.AllowedMimeTypes,
		Logger:           logger,
		Now:              now,
	})
	statsService := service.NewStatsService(service.StatsDependencies{
		StatsRepo:  repos.Stats,
		TicketRepo: repos.Tickets,
		Logger:     logger,
	})

	bodyLimit := fiber.DefaultBodyLimit
	if limit := cfg.Attachment.MaxBytes + bodySlack; limit > int64(bodyLimit) {
		bodyLimit = int(limit)
	}
	server := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		BodyLimit:    bodyLimit,
		ErrorHandler: httptransport.ErrorHandler(logger),
	})
	httptransport.RegisterMiddlewares(server, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(server, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, deps.Checks, metrics),
		Auth:           handlers.NewAuthHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Assignment:     handlers.NewAssignmentHandler(assignmentService, ticketService),
		Comments:       handlers.NewCommentsHandler(commentService),
		Attachments:    handlers.NewAttachmentsHandler(attachmentService),
		Stats:          handlers.NewStatsHandler(statsService),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), repos.Users, deps.Revocations),
	})

	return &App{
		Fiber:      server,
		Auth:       authService,
		Tickets:    ticketService,
		Assignment: assignmentService,
		Comments:   commentService,
		Notifier:   notifier,
		logger:     logger,
	}
}

// Run serves HTTP on addr and delivers notifications until ctx is done or
// either of them fails.
func (a *App) Run(ctx context.Context, addr string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Notifier.Run(ctx)
	})
	g.Go(func() error {
		a.logger.Info("http server listening", zap.String("addr", addr))
		return a.Fiber.Listen(addr)
	})
	g.Go(func() error {
		<-ctx.Done()
		a.logger.Info("shutting down http server")
		return a.Fiber.ShutdownWithTimeout(shutdownTimeout)
	})
	return g.Wait()
}
