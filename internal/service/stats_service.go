package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// StatsService computes role dashboards.
type StatsService struct {
	stats   repository.StatsRepository
	tickets repository.TicketRepository
	logger  *zap.Logger
}

// StatsDependencies bundles repositories for the stats service.
type StatsDependencies struct {
	StatsRepo  repository.StatsRepository
	TicketRepo repository.TicketRepository
	Logger     *zap.Logger
}

// AdminStats is the system-wide rollup.
type AdminStats struct {
	TotalTickets   int            `json:"total_tickets"`
	ByStatus       map[string]int `json:"by_status"`
	UnassignedOpen int            `json:"unassigned_open"`
	ByPriority     map[string]int `json:"by_priority"`
	ByCategory     map[string]int `json:"by_category"`
	UsersByRole    map[string]int `json:"users_by_role"`
}

// AgentStats covers tickets assigned to the agent.
type AgentStats struct {
	MyAssigned     int `json:"my_assigned"`
	MyOpen         int `json:"my_open"`
	MyResolved     int `json:"my_resolved"`
	UnassignedOpen int `json:"unassigned_open"`
}

// UserStats covers tickets the user opened.
type UserStats struct {
	MyTickets  int `json:"my_tickets"`
	MyOpen     int `json:"my_open"`
	MyResolved int `json:"my_resolved"`
}

// Dashboard holds exactly one of the role views.
type Dashboard struct {
	Role  domain.Role `json:"role"`
	Admin *AdminStats `json:"admin,omitempty"`
	Agent *AgentStats `json:"agent,omitempty"`
	User  *UserStats  `json:"user,omitempty"`
}

func NewStatsService(deps StatsDependencies) *StatsService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsService{stats: deps.StatsRepo, tickets: deps.TicketRepo, logger: logger}
}

// Dashboard returns the rollup matching the actor's role. Counts cover live
// tickets only.
func (s *StatsService) Dashboard(ctx context.Context, actor *domain.User) (*Dashboard, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}

	dashboard := &Dashboard{Role: actor.Role}
	switch actor.Role {
	case domain.RoleAdmin:
		counts, err := s.stats.TicketCounts(ctx, repository.StatsScope{})
		if err != nil {
			return nil, err
		}
		unassigned, err := s.unassignedOpen(ctx)
		if err != nil {
			return nil, err
		}
		users, err := s.stats.CountUsersByRole(ctx)
		if err != nil {
			return nil, err
		}
		dashboard.Admin = &AdminStats{
			TotalTickets:   counts.Total,
			ByStatus:       withAllStatuses(counts.ByStatus),
			UnassignedOpen: unassigned,
			ByPriority:     counts.ByPriority,
			ByCategory:     counts.ByCategory,
			UsersByRole:    users,
		}
	case domain.RoleAgent:
		id := actor.ID
		counts, err := s.stats.TicketCounts(ctx, repository.StatsScope{AssigneeID: &id})
		if err != nil {
			return nil, err
		}
		unassigned, err := s.unassignedOpen(ctx)
		if err != nil {
			return nil, err
		}
		dashboard.Agent = &AgentStats{
			MyAssigned:     counts.Total,
			MyOpen:         activeCount(counts),
			MyResolved:     counts.ByStatus[string(domain.TicketStatusResolved)],
			UnassignedOpen: unassigned,
		}
	case domain.RoleUser:
		id := actor.ID
		counts, err := s.stats.TicketCounts(ctx, repository.StatsScope{CreatorID: &id})
		if err != nil {
			return nil, err
		}
		dashboard.User = &UserStats{
			MyTickets:  counts.Total,
			MyOpen:     activeCount(counts),
			MyResolved: counts.ByStatus[string(domain.TicketStatusResolved)] + counts.ByStatus[string(domain.TicketStatusClosed)],
		}
	default:
		return nil, apperrors.NewForbidden("unknown role")
	}
	return dashboard, nil
}

func (s *StatsService) unassignedOpen(ctx context.Context) (int, error) {
	return s.tickets.CountWithFilter(ctx, repository.TicketFilter{
		Unassigned: true,
		Statuses:   []domain.TicketStatus{domain.TicketStatusOpen},
	})
}

func activeCount(counts repository.TicketCounts) int {
	return counts.ByStatus[string(domain.TicketStatusOpen)] + counts.ByStatus[string(domain.TicketStatusInProgress)]
}

// withAllStatuses reports zero for statuses with no tickets.
func withAllStatuses(byStatus map[string]int) map[string]int {
	out := make(map[string]int, len(domain.TicketStatuses))
	for _, status := range domain.TicketStatuses {
		out[string(status)] = byStatus[string(status)]
	}
	return out
}
