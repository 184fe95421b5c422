package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/policy"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

const (
	DefaultPerPage = 15
	MaxPerPage     = 100
)

// TicketService coordinates ticket workflows.
type TicketService struct {
	writer      *ticketWriter
	tickets     repository.TicketRepository
	users       repository.UserRepository
	comments    repository.CommentRepository
	attachments repository.AttachmentRepository
	history     repository.TicketHistoryRepository
	logger      *zap.Logger
	now         func() time.Time
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	Transactor     repository.Transactor
	TicketRepo     repository.TicketRepository
	UserRepo       repository.UserRepository
	CommentRepo    repository.CommentRepository
	AttachmentRepo repository.AttachmentRepository
	HistoryRepo    repository.TicketHistoryRepository
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
	Now            func() time.Time
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
	Category    domain.TicketCategory
	Priority    domain.TicketPriority
}

// AssigneeChange is the assignee part of an update. Set distinguishes an
// explicit null (unassign) from an absent field.
type AssigneeChange struct {
	Set bool
	ID  *string
}

// TicketUpdateInput is a partial update. Nil fields are left untouched.
// Status, priority, category and assignee are privileged: they are ignored
// for end-users.
type TicketUpdateInput struct {
	Title       *string
	Description *string
	Category    *domain.TicketCategory
	Priority    *domain.TicketPriority
	Status      *domain.TicketStatus
	Assignee    AssigneeChange
}

// TicketListFilter describes listing filters before visibility scoping.
type TicketListFilter struct {
	Statuses    []domain.TicketStatus
	Priorities  []domain.TicketPriority
	Categories  []domain.TicketCategory
	Search      string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Page        int
	PerPage     int
}

// TicketPage is one page of a listing.
type TicketPage struct {
	Tickets []domain.Ticket
	Total   int
	Page    int
	PerPage int
}

// LastPage returns the number of the final page, at least 1.
func (p TicketPage) LastPage() int {
	if p.PerPage <= 0 || p.Total == 0 {
		return 1
	}
	return (p.Total + p.PerPage - 1) / p.PerPage
}

// TicketDetails is a ticket with its related records resolved.
type TicketDetails struct {
	Ticket      *domain.Ticket
	Creator     *domain.User
	Assignee    *domain.User
	Comments    []domain.Comment
	Attachments []domain.Attachment
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &TicketService{
		writer: &ticketWriter{
			tx:         deps.Transactor,
			tickets:    deps.TicketRepo,
			history:    deps.HistoryRepo,
			dispatcher: deps.Dispatcher,
			logger:     logger,
			now:        now,
		},
		tickets:     deps.TicketRepo,
		users:       deps.UserRepo,
		comments:    deps.CommentRepo,
		attachments: deps.AttachmentRepo,
		history:     deps.HistoryRepo,
		logger:      logger,
		now:         now,
	}
}

// CreateTicket opens a ticket for an end-user. Status is forced to open and
// the ticket starts unassigned.
func (s *TicketService) CreateTicket(ctx context.Context, actor *domain.User, input TicketCreateInput) (*domain.Ticket, error) {
	if err := policy.Authorize(actor, policy.ActionCreateTicket, policy.Resource{}); err != nil {
		return nil, err
	}

	ticket := domain.NewTicket(actor.ID, input.Title, input.Description, input.Category, input.Priority)
	if err := ticket.Validate(); err != nil {
		return nil, err
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}
	s.logger.Info("ticket created", zap.String("ticket_id", ticket.ID), zap.String("creator_id", actor.ID))
	s.writer.publish(ctx, events.Event{
		Type:      events.EventTicketCreated,
		TicketID:  ticket.ID,
		Actor:     events.ActorFrom(actor),
		Timestamp: s.now().UTC(),
		Payload: events.TicketCreatedPayload{
			CreatorID: ticket.CreatorID,
			Title:     ticket.Title,
			Category:  ticket.Category,
			Priority:  ticket.Priority,
		},
	})
	return ticket, nil
}

// ListTickets returns the page of tickets the actor may see, newest first.
// Visibility is applied before any caller filter.
func (s *TicketService) ListTickets(ctx context.Context, actor *domain.User, filter TicketListFilter) (TicketPage, error) {
	if actor == nil {
		return TicketPage{}, apperrors.NewUnauthorized("authentication required")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	scope := policy.VisibilityScope(actor)
	repoFilter := repository.TicketFilter{
		CreatorID:            scope.CreatorID,
		AssigneeOrUnassigned: scope.AssigneeOrUnassigned,
		Statuses:             filter.Statuses,
		Priorities:           filter.Priorities,
		Categories:           filter.Categories,
		CreatedFrom:          filter.CreatedFrom,
		CreatedTo:            filter.CreatedTo,
		Limit:                perPage,
		Offset:               (page - 1) * perPage,
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		repoFilter.SearchTerm = &search
	}

	total, err := s.tickets.CountWithFilter(ctx, repoFilter)
	if err != nil {
		return TicketPage{}, err
	}
	tickets, err := s.tickets.ListWithFilter(ctx, repoFilter)
	if err != nil {
		return TicketPage{}, err
	}
	if tickets == nil {
		tickets = []domain.Ticket{}
	}
	return TicketPage{Tickets: tickets, Total: total, Page: page, PerPage: perPage}, nil
}

// GetTicket returns a visible ticket with creator, assignee, comments and
// attachments resolved.
func (s *TicketService) GetTicket(ctx context.Context, actor *domain.User, ticketID string) (*TicketDetails, error) {
	ticket, err := s.loadVisible(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}
	return s.Details(ctx, ticket)
}

// UpdateTicket applies a partial update under the role rules. End-users may
// change title and description of their own tickets; privileged fields they
// send are ignored. Status changes follow the transition table, and an
// assignee change applies assign or unassign semantics.
func (s *TicketService) UpdateTicket(ctx context.Context, actor *domain.User, ticketID string, input TicketUpdateInput) (*TicketDetails, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	before, after, err := s.writer.mutate(ctx, actor, ticketID, func(ctx context.Context, ticket *domain.Ticket) error {
		if err := policy.Authorize(actor, policy.ActionUpdateTicket, policy.Resource{Ticket: ticket}); err != nil {
			return err
		}
		if input.Title != nil {
			ticket.Title = strings.TrimSpace(*input.Title)
		}
		if input.Description != nil {
			ticket.Description = strings.TrimSpace(*input.Description)
		}
		if !policy.Can(actor, policy.ActionUpdatePrivileged, policy.Resource{Ticket: ticket}) {
			return nil
		}
		if input.Category != nil {
			ticket.Category = *input.Category
		}
		if input.Priority != nil {
			ticket.Priority = *input.Priority
		}
		if input.Assignee.Set {
			return s.applyAssignee(ctx, ticket, input.Assignee.ID)
		}
		if input.Status != nil {
			return ticket.ChangeStatus(*input.Status)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.writer.publishChanges(ctx, actor, before, after, events.AssignmentManual)
	return s.Details(ctx, after)
}

func (s *TicketService) applyAssignee(ctx context.Context, ticket *domain.Ticket, assigneeID *string) error {
	if assigneeID == nil {
		ticket.Unassign()
		return nil
	}
	assignee, err := s.users.GetByID(ctx, *assigneeID)
	if err != nil {
		return notFound(err, "assignee", *assigneeID)
	}
	return ticket.AssignTo(assignee)
}

// DeleteTicket soft-deletes a ticket. Comments and attachments stay in place
// and become unreachable with it.
func (s *TicketService) DeleteTicket(ctx context.Context, actor *domain.User, ticketID string) error {
	if actor == nil {
		return apperrors.NewUnauthorized("authentication required")
	}
	err := s.writer.retry(ctx, ticketID, func(ctx context.Context) error {
		ticket, err := s.tickets.GetByID(ctx, ticketID)
		if err != nil {
			return notFound(err, "ticket", ticketID)
		}
		if err := policy.Authorize(actor, policy.ActionDeleteTicket, policy.Resource{Ticket: ticket}); err != nil {
			return err
		}
		return s.tickets.SoftDelete(ctx, ticket)
	})
	if err != nil {
		return err
	}
	s.logger.Info("ticket deleted", zap.String("ticket_id", ticketID), zap.String("actor_id", actor.ID))
	s.writer.publish(ctx, events.Event{
		Type:      events.EventTicketDeleted,
		TicketID:  ticketID,
		Actor:     events.ActorFrom(actor),
		Timestamp: s.now().UTC(),
	})
	return nil
}

// ListHistory returns the audit trail of a visible ticket, oldest first.
func (s *TicketService) ListHistory(ctx context.Context, actor *domain.User, ticketID string) ([]domain.TicketHistory, error) {
	if _, err := s.loadVisible(ctx, actor, ticketID); err != nil {
		return nil, err
	}
	history, err := s.history.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if history == nil {
		history = []domain.TicketHistory{}
	}
	return history, nil
}

func (s *TicketService) loadVisible(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, notFound(err, "ticket", ticketID)
	}
	if err := policy.Authorize(actor, policy.ActionViewTicket, policy.Resource{Ticket: ticket}); err != nil {
		return nil, err
	}
	return ticket, nil
}

// Details resolves the creator, assignee, comments and attachments of an
// already authorized ticket.
func (s *TicketService) Details(ctx context.Context, ticket *domain.Ticket) (*TicketDetails, error) {
	details := &TicketDetails{Ticket: ticket}

	creator, err := s.optionalUser(ctx, &ticket.CreatorID)
	if err != nil {
		return nil, err
	}
	details.Creator = creator
	if details.Assignee, err = s.optionalUser(ctx, ticket.AssigneeID); err != nil {
		return nil, err
	}
	if details.Comments, err = s.comments.ListByTicket(ctx, ticket.ID); err != nil {
		return nil, err
	}
	if details.Attachments, err = s.attachments.ListByTicket(ctx, ticket.ID); err != nil {
		return nil, err
	}
	return details, nil
}

// optionalUser loads a related user, tolerating ones that were deleted.
func (s *TicketService) optionalUser(ctx context.Context, id *string) (*domain.User, error) {
	if id == nil {
		return nil, nil
	}
	user, err := s.users.GetByID(ctx, *id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return user, err
}

// Validate checks field shapes before any record is loaded.
func (in TicketUpdateInput) Validate() error {
	details := map[string]any{}
	if in.Title != nil {
		if n := utf8.RuneCountInString(strings.TrimSpace(*in.Title)); n == 0 {
			details["title"] = "title cannot be empty"
		} else if n > domain.TitleMaxLength {
			details["title"] = "title must be at most 255 characters"
		}
	}
	if in.Description != nil && strings.TrimSpace(*in.Description) == "" {
		details["description"] = "description cannot be empty"
	}
	if in.Category != nil && !in.Category.Valid() {
		details["category"] = "must be one of technical, billing, general, other"
	}
	if in.Priority != nil && !in.Priority.Valid() {
		details["priority"] = "must be one of low, medium, high"
	}
	if in.Status != nil && !in.Status.Valid() {
		details["status"] = "must be one of open, in_progress, resolved, closed"
	}
	if in.Status != nil && in.Assignee.Set {
		details["assignee_id"] = "cannot change status and assignee in the same request"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid ticket update", details)
	}
	return nil
}
