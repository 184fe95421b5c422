package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/policy"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// AssignmentService handles ticket assignment operations.
type AssignmentService struct {
	writer *ticketWriter
	users  repository.UserRepository
	logger *zap.Logger
}

// AssignmentDependencies bundles repositories.
type AssignmentDependencies struct {
	Transactor  repository.Transactor
	TicketRepo  repository.TicketRepository
	UserRepo    repository.UserRepository
	HistoryRepo repository.TicketHistoryRepository
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Now         func() time.Time
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &AssignmentService{
		writer: &ticketWriter{
			tx:         deps.Transactor,
			tickets:    deps.TicketRepo,
			history:    deps.HistoryRepo,
			dispatcher: deps.Dispatcher,
			logger:     logger,
			now:        now,
		},
		users:  deps.UserRepo,
		logger: logger,
	}
}

// AssignTicket hands a ticket to the given agent or admin and moves it to
// in_progress. The assignee is notified.
func (s *AssignmentService) AssignTicket(ctx context.Context, actor *domain.User, ticketID, assigneeID string) (*domain.Ticket, error) {
	if err := policy.Authorize(actor, policy.ActionAssign, policy.Resource{}); err != nil {
		return nil, err
	}

	before, after, err := s.writer.mutate(ctx, actor, ticketID, func(ctx context.Context, ticket *domain.Ticket) error {
		assignee, err := s.users.GetByID(ctx, assigneeID)
		if err != nil {
			return notFound(err, "assignee", assigneeID)
		}
		return ticket.AssignTo(assignee)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("ticket assigned",
		zap.String("ticket_id", ticketID),
		zap.String("assignee_id", assigneeID),
		zap.String("actor_id", actor.ID))
	s.writer.publishChanges(ctx, actor, before, after, events.AssignmentManual)
	return after, nil
}

// UnassignTicket clears the assignee and reopens the ticket.
func (s *AssignmentService) UnassignTicket(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error) {
	if err := policy.Authorize(actor, policy.ActionAssign, policy.Resource{}); err != nil {
		return nil, err
	}

	before, after, err := s.writer.mutate(ctx, actor, ticketID, func(_ context.Context, ticket *domain.Ticket) error {
		ticket.Unassign()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("ticket unassigned", zap.String("ticket_id", ticketID), zap.String("actor_id", actor.ID))
	s.writer.publishChanges(ctx, actor, before, after, events.AssignmentManual)
	return after, nil
}

// AutoAssignTicket assigns the ticket to the agent or admin with the fewest
// open and in-progress tickets. Loads are read live inside the same
// transaction as the write, so a retried conflict recomputes them.
func (s *AssignmentService) AutoAssignTicket(ctx context.Context, actor *domain.User, ticketID string) (*domain.Ticket, error) {
	if err := policy.Authorize(actor, policy.ActionAssign, policy.Resource{}); err != nil {
		return nil, err
	}

	var chosen domain.AgentLoad
	before, after, err := s.writer.mutate(ctx, actor, ticketID, func(ctx context.Context, ticket *domain.Ticket) error {
		loads, err := s.users.ListAgentLoads(ctx)
		if err != nil {
			return err
		}
		pick, ok := selectLeastLoaded(loads)
		if !ok {
			return apperrors.NewNoAvailableAgent()
		}
		chosen = pick
		return ticket.AssignTo(&pick.User)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("ticket auto-assigned",
		zap.String("ticket_id", ticketID),
		zap.String("assignee_id", chosen.User.ID),
		zap.Int("active_tickets", chosen.ActiveTickets))
	s.writer.publishChanges(ctx, actor, before, after, events.AssignmentAuto)
	return after, nil
}

// selectLeastLoaded picks the candidate with the fewest active tickets,
// breaking ties by earliest account creation and then by id. It does not
// rely on the order of loads.
func selectLeastLoaded(loads []domain.AgentLoad) (domain.AgentLoad, bool) {
	var (
		best  domain.AgentLoad
		found bool
	)
	for _, candidate := range loads {
		if !candidate.User.Role.IsStaff() || candidate.User.DeletedAt != nil {
			continue
		}
		if !found || lessLoaded(candidate, best) {
			best = candidate
			found = true
		}
	}
	return best, found
}

func lessLoaded(a, b domain.AgentLoad) bool {
	if a.ActiveTickets != b.ActiveTickets {
		return a.ActiveTickets < b.ActiveTickets
	}
	if !a.User.CreatedAt.Equal(b.User.CreatedAt) {
		return a.User.CreatedAt.Before(b.User.CreatedAt)
	}
	return a.User.ID < b.User.ID
}
