package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/repository"
)

// Notification is a rendered message for one recipient.
type Notification struct {
	EventType events.EventType `json:"event_type"`
	TicketID  string           `json:"ticket_id"`
	To        string           `json:"to"`
	ToName    string           `json:"to_name"`
	From      string           `json:"from"`
	Subject   string           `json:"subject"`
	Body      string           `json:"body"`
	Link      string           `json:"link"`
}

// Mailer delivers notifications.
type Mailer interface {
	Send(ctx context.Context, n Notification) error
}

// LogMailer writes notifications to the log instead of delivering them.
type LogMailer struct {
	Logger *zap.Logger
}

func (m LogMailer) Send(_ context.Context, n Notification) error {
	m.Logger.Info("notification",
		zap.String("event_type", string(n.EventType)),
		zap.String("ticket_id", n.TicketID),
		zap.String("to", n.To),
		zap.String("subject", n.Subject),
		zap.String("link", n.Link))
	return nil
}

// NotificationService turns domain events into notifications.
type NotificationService struct {
	dispatcher events.Dispatcher
	users      repository.UserRepository
	mailer     Mailer
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service. A nil mailer logs messages.
func NewNotificationService(dispatcher events.Dispatcher, users repository.UserRepository, mailer Mailer, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mailer == nil {
		mailer = LogMailer{Logger: logger}
	}
	return &NotificationService{
		dispatcher: dispatcher,
		users:      users,
		mailer:     mailer,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil || !n.cfg.Enabled {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleTicketStatusChanged)
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.handleTicketAssigned)
	n.dispatcher.Subscribe(events.EventCommentAdded, n.handleCommentAdded)
}

// handleTicketCreated tells every agent and admin about a new ticket.
func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return errUnexpectedPayload(event)
	}
	staff, err := n.users.ListByRoles(ctx, domain.RoleAgent, domain.RoleAdmin)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("New ticket: %s", payload.Title)
	body := fmt.Sprintf("A new %s priority %s ticket was opened: %q.", payload.Priority, payload.Category, payload.Title)
	var errs []error
	for i := range staff {
		errs = append(errs, n.send(ctx, event, &staff[i], subject, body))
	}
	return errors.Join(errs...)
}

// handleTicketAssigned tells the assignee, for manual assignments only.
func (n *NotificationService) handleTicketAssigned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketAssignedPayload)
	if !ok {
		return errUnexpectedPayload(event)
	}
	if payload.Mode != events.AssignmentManual {
		return nil
	}
	return n.sendTo(ctx, event, payload.AssigneeID,
		fmt.Sprintf("Ticket assigned to you: %s", payload.Title),
		fmt.Sprintf("The %s priority ticket %q has been assigned to you.", payload.Priority, payload.Title))
}

// handleTicketStatusChanged tells the ticket creator.
func (n *NotificationService) handleTicketStatusChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketStatusChangedPayload)
	if !ok {
		return errUnexpectedPayload(event)
	}
	return n.sendTo(ctx, event, payload.CreatorID,
		fmt.Sprintf("Ticket status updated: %s", payload.Title),
		fmt.Sprintf("Your ticket %q changed from %s to %s.", payload.Title, humanStatus(payload.OldStatus), humanStatus(payload.NewStatus)))
}

// handleCommentAdded tells the ticket creator unless they wrote the comment.
func (n *NotificationService) handleCommentAdded(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.CommentAddedPayload)
	if !ok {
		return errUnexpectedPayload(event)
	}
	if payload.AuthorID == payload.CreatorID {
		return nil
	}
	return n.sendTo(ctx, event, payload.CreatorID,
		fmt.Sprintf("New comment on: %s", payload.Title),
		fmt.Sprintf("A new comment was added to your ticket:\n\n%s", payload.Excerpt))
}

func (n *NotificationService) sendTo(ctx context.Context, event events.Event, userID, subject, body string) error {
	recipient, err := n.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		n.logger.Debug("notification recipient gone", zap.String("user_id", userID))
		return nil
	}
	if err != nil {
		return err
	}
	return n.send(ctx, event, recipient, subject, body)
}

func (n *NotificationService) send(ctx context.Context, event events.Event, recipient *domain.User, subject, body string) error {
	return n.mailer.Send(ctx, Notification{
		EventType: event.Type,
		TicketID:  event.TicketID,
		To:        recipient.Email,
		ToName:    recipient.Name,
		From:      n.cfg.EmailFrom,
		Subject:   subject,
		Body:      body,
		Link:      n.ticketLink(event.TicketID),
	})
}

func (n *NotificationService) ticketLink(ticketID string) string {
	return fmt.Sprintf("%s/tickets/%s", strings.TrimRight(n.cfg.AppURL, "/"), ticketID)
}

func humanStatus(status domain.TicketStatus) string {
	return strings.ReplaceAll(string(status), "_", " ")
}

func errUnexpectedPayload(event events.Event) error {
	return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
}
