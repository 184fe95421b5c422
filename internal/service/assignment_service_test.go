package service

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

func TestAssignAndUnassign(t *testing.T) {
	env := newTestEnv(t)
	user := env.addUser("mia", domain.RoleUser)
	agent := env.addUser("agent", domain.RoleAgent)
	ticket := env.openTicket(user, "Cannot print")
	ctx := context.Background()
	env.events.reset()

	assigned := env.assign(agent, ticket.ID, agent)
	if assigned.Status != domain.TicketStatusInProgress || assigned.AssigneeID == nil || *assigned.AssigneeID != agent.ID {
		t.Fatalf("unexpected assigned ticket: %+v", assigned)
	}
	if got := env.events.types(); !reflect.DeepEqual(got, []events.EventType{events.EventTicketAssigned}) {
		t.Fatalf("assignment should emit only ticket.assigned, got %v", got)
	}
	payload := env.events.events[0].Payload.(events.TicketAssignedPayload)
	if payload.Mode != events.AssignmentManual || payload.AssigneeID != agent.ID {
		t.Fatalf("unexpected payload %+v", payload)
	}
	env.events.reset()

	unassigned, err := env.assignment.UnassignTicket(ctx, agent, ticket.ID)
	if err != nil {
		t.Fatalf("unassign: %v", err)
	}
	if unassigned.Status != domain.TicketStatusOpen || unassigned.AssigneeID != nil {
		t.Fatalf("unassign should reopen, got %+v", unassigned)
	}
	if got := env.events.types(); !reflect.DeepEqual(got, []events.EventType{events.EventTicketUnassigned}) {
		t.Fatalf("unassign events = %v", got)
	}

	history, err := env.tickets.ListHistory(ctx, agent, ticket.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 4 {
		t.Fatalf("expected status and assignee entries for both changes, got %d", len(history))
	}
}

func TestAssignReopensResolvedTicket(t *testing.T) {
	env := newTestEnv(t)
	user := env.addUser("nate", domain.RoleUser)
	agentA := env.addUser("agent-a", domain.RoleAgent)
	agentB := env.addUser("agent-b", domain.RoleAgent)
	ticket := env.openTicket(user, "Reassign me")

	env.assign(agentA, ticket.ID, agentA)
	env.setStatus(agentA, ticket.ID, domain.TicketStatusResolved)

	reassigned := env.assign(agentA, ticket.ID, agentB)
	if reassigned.Status != domain.TicketStatusInProgress || *reassigned.AssigneeID != agentB.ID {
		t.Fatalf("reassignment should move to in_progress, got %+v", reassigned)
	}
}

func TestAssignRules(t *testing.T) {
	env := newTestEnv(t)
	user := env.addUser("olga", domain.RoleUser)
	agent := env.addUser("agent", domain.RoleAgent)
	ticket := env.openTicket(user, "Rules")
	ctx := context.Background()

	_, err := env.assignment.AssignTicket(ctx, user, ticket.ID, agent.ID)
	expectCode(t, err, apperrors.CodeForbidden)

	_, err = env.assignment.AssignTicket(ctx, agent, ticket.ID, user.ID)
	expectCode(t, err, apperrors.CodeInvalidAssignee)

	_, err = env.assignment.AssignTicket(ctx, agent, ticket.ID, "nobody")
	expectCode(t, err, apperrors.CodeNotFound)

	_, err = env.assignment.AssignTicket(ctx, agent, "missing", agent.ID)
	expectCode(t, err, apperrors.CodeNotFound)

	_, err = env.assignment.UnassignTicket(ctx, user, ticket.ID)
	expectCode(t, err, apperrors.CodeForbidden)
}

func TestAutoAssignPicksLeastLoaded(t *testing.T) {
	env := newTestEnv(t)
	user := env.addUser("pia", domain.RoleUser)
	busy := env.addUser("busy", domain.RoleAgent)
	idle := env.addUser("idle", domain.RoleAgent)
	admin := env.addUser("admin", domain.RoleAdmin)

	for i := 0; i < 3; i++ {
		ticket := env.openTicket(user, "Backlog")
		env.assign(admin, ticket.ID, busy)
	}
	// Resolved work does not count towards load.
	done := env.openTicket(user, "Done")
	env.assign(admin, done.ID, idle)
	env.setStatus(idle, done.ID, domain.TicketStatusResolved)

	target := env.openTicket(user, "Needs someone")
	env.events.reset()
	assigned, err := env.assignment.AutoAssignTicket(context.Background(), admin, target.ID)
	if err != nil {
		t.Fatalf("auto-assign: %v", err)
	}
	if assigned.AssigneeID == nil || *assigned.AssigneeID != idle.ID {
		t.Fatalf("expected idle agent, got %v", assigned.AssigneeID)
	}
	payload := env.events.events[0].Payload.(events.TicketAssignedPayload)
	if payload.Mode != events.AssignmentAuto {
		t.Fatalf("auto-assign should be reported as auto, got %s", payload.Mode)
	}
}

func TestSelectLeastLoaded(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	staff := func(id string, role domain.Role, created time.Time, load int) domain.AgentLoad {
		return domain.AgentLoad{User: domain.User{ID: id, Role: role, CreatedAt: created}, ActiveTickets: load}
	}
	deletedAt := base

	cases := []struct {
		name   string
		loads  []domain.AgentLoad
		wantID string
		wantOK bool
	}{
		{"empty pool", nil, "", false},
		{"only end-users", []domain.AgentLoad{staff("u1", domain.RoleUser, base, 0)}, "", false},
		{
			"fewest active wins",
			[]domain.AgentLoad{staff("x", domain.RoleAgent, base, 3), staff("y", domain.RoleAgent, base.Add(time.Hour), 0)},
			"y", true,
		},
		{
			"tie goes to earliest account",
			[]domain.AgentLoad{staff("late", domain.RoleAgent, base.Add(time.Hour), 1), staff("early", domain.RoleAdmin, base, 1)},
			"early", true,
		},
		{
			"full tie goes to lowest id",
			[]domain.AgentLoad{staff("b", domain.RoleAgent, base, 0), staff("a", domain.RoleAgent, base, 0)},
			"a", true,
		},
		{
			"deleted staff skipped",
			[]domain.AgentLoad{
				{User: domain.User{ID: "gone", Role: domain.RoleAgent, CreatedAt: base, DeletedAt: &deletedAt}},
				staff("here", domain.RoleAgent, base, 5),
			},
			"here", true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := selectLeastLoaded(tc.loads)
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if ok && got.User.ID != tc.wantID {
				t.Fatalf("picked %s, want %s", got.User.ID, tc.wantID)
			}
		})
	}
}

func TestAutoAssignRequiresStaff(t *testing.T) {
	env := newTestEnv(t)
	user := env.addUser("quinn", domain.RoleUser)
	ticket := env.openTicket(user, "Help")

	_, err := env.assignment.AutoAssignTicket(context.Background(), user, ticket.ID)
	expectCode(t, err, apperrors.CodeForbidden)
	if apperrors.ToDomainError(err).HTTPStatus != 403 {
		t.Fatalf("expected 403")
	}
}

type fixedLoads struct {
	repository.UserRepository
	loads []domain.AgentLoad
}

func (f *fixedLoads) ListAgentLoads(context.Context) ([]domain.AgentLoad, error) {
	return f.loads, nil
}

func TestAutoAssignWithoutCandidates(t *testing.T) {
	gone := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name  string
		loads []domain.AgentLoad
	}{
		{"empty pool", nil},
		{"only end-users", []domain.AgentLoad{{User: domain.User{ID: "u1", Role: domain.RoleUser}}}},
		{"deleted agent", []domain.AgentLoad{{User: domain.User{ID: "a1", Role: domain.RoleAgent, DeletedAt: &gone}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			base := newTestEnv(t)
			user := base.addUser("rae", domain.RoleUser)
			admin := base.addUser("admin", domain.RoleAdmin)
			ticket := base.openTicket(user, "Nobody home")

			repos := base.repos
			repos.Users = &fixedLoads{UserRepository: repos.Users, loads: tc.loads}
			env := newTestEnvWith(t, base.store, repos, base.clock)

			_, err := env.assignment.AutoAssignTicket(context.Background(), admin, ticket.ID)
			expectCode(t, err, apperrors.CodeNoAvailableAgent)
			if len(env.events.events) != 0 {
				t.Fatalf("no events expected, got %v", env.events.types())
			}

			stored, err := repos.Tickets.GetByID(context.Background(), ticket.ID)
			if err != nil {
				t.Fatalf("reload: %v", err)
			}
			if stored.AssigneeID != nil || stored.Status != domain.TicketStatusOpen {
				t.Fatalf("ticket should stay open and unassigned, got %+v", stored)
			}
		})
	}
}
