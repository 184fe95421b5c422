package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository/memory"
	"github.com/spec-kit/helpdesk/internal/service"
)

const fixtureYAML = `
users:
  - {name: Admin, email: admin@example.com, password: admin-pass, role: admin}
  - {name: Agent, email: Agent@Example.com, password: agent-pass, role: agent}
  - {name: User, email: user@example.com, password: user-pass, role: user}
tickets:
  - creator: user@example.com
    title: Printer offline
    description: The third floor printer is offline.
    category: technical
    priority: high
    assignee: agent@example.com
    status: resolved
    comments:
      - {author: user@example.com, text: Still offline after reboot.}
      - {author: agent@example.com, text: Looking into it.}
  - creator: user@example.com
    title: Refund
    description: Charged twice.
    category: billing
    priority: low
`

func newSeeder(t *testing.T) (*Seeder, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	repos := store.Set()
	cfg := config.Config{Auth: config.AuthConfig{JWTSecret: "seed", AccessTokenTTLMinutes: 5, BcryptCost: bcrypt.MinCost}}
	seeder := &Seeder{
		Auth: service.NewAuthService(cfg, service.AuthDependencies{UserRepo: repos.Users}),
		Tickets: service.NewTicketService(service.TicketDependencies{
			Transactor:     repos.Transactor,
			TicketRepo:     repos.Tickets,
			UserRepo:       repos.Users,
			CommentRepo:    repos.Comments,
			AttachmentRepo: repos.Attachments,
			HistoryRepo:    repos.History,
		}),
		Assignment: service.NewAssignmentService(service.AssignmentDependencies{
			Transactor:  repos.Transactor,
			TicketRepo:  repos.Tickets,
			UserRepo:    repos.Users,
			HistoryRepo: repos.History,
		}),
		Comments: service.NewCommentService(service.CommentDependencies{
			TicketRepo:  repos.Tickets,
			CommentRepo: repos.Comments,
		}),
		Users: repos.Users,
	}
	return seeder, store
}

func TestParse(t *testing.T) {
	fixture, err := Parse([]byte(fixtureYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(fixture.Users) != 3 || len(fixture.Tickets) != 2 {
		t.Fatalf("unexpected fixture %+v", fixture)
	}
	if fixture.Users[1].Role != domain.RoleAgent || fixture.Tickets[0].Status != domain.TicketStatusResolved {
		t.Fatalf("typed fields not decoded: %+v", fixture)
	}

	if _, err := Parse([]byte("  \n")); err == nil {
		t.Fatal("empty fixture should fail")
	}
	if _, err := Parse([]byte("users: [")); err == nil {
		t.Fatal("malformed yaml should fail")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(fixtureYAML), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadFile(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing file should fail")
	}
}

func TestApply(t *testing.T) {
	seeder, store := newSeeder(t)
	ctx := context.Background()
	fixture, err := Parse([]byte(fixtureYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	result, err := seeder.Apply(ctx, fixture)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result != (Result{Users: 3, Tickets: 2, Comments: 2}) {
		t.Fatalf("result = %+v", result)
	}

	admin, err := store.Users().GetByEmail(ctx, "admin@example.com")
	if err != nil {
		t.Fatalf("admin: %v", err)
	}
	page, err := seeder.Tickets.ListTickets(ctx, admin, service.TicketListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("expected 2 tickets, got %d", page.Total)
	}
	var printer domain.Ticket
	for _, ticket := range page.Tickets {
		if ticket.Title == "Printer offline" {
			printer = ticket
		}
	}
	if printer.Status != domain.TicketStatusResolved || printer.AssigneeID == nil {
		t.Fatalf("printer ticket should be assigned and resolved, got %+v", printer)
	}

	again, err := seeder.Apply(ctx, fixture)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if again.Users != 0 || again.Skipped != 3 {
		t.Fatalf("existing users should be reused, got %+v", again)
	}
}

func TestApplyRejectsUnreachableStatus(t *testing.T) {
	seeder, _ := newSeeder(t)
	fixture := Fixture{
		Users: []UserFixture{{Name: "U", Email: "u@example.com", Password: "password", Role: domain.RoleUser}},
		Tickets: []TicketFixture{{
			Creator:     "u@example.com",
			Title:       "No worker",
			Description: "Nobody to resolve it",
			Category:    domain.TicketCategoryGeneral,
			Status:      domain.TicketStatusResolved,
		}},
	}
	if _, err := seeder.Apply(context.Background(), fixture); err == nil {
		t.Fatal("status without assignee should fail")
	}
}

func TestNextStep(t *testing.T) {
	cases := []struct {
		from, to domain.TicketStatus
		want     domain.TicketStatus
		ok       bool
	}{
		{domain.TicketStatusOpen, domain.TicketStatusResolved, domain.TicketStatusInProgress, true},
		{domain.TicketStatusInProgress, domain.TicketStatusResolved, domain.TicketStatusResolved, true},
		{domain.TicketStatusOpen, domain.TicketStatusClosed, domain.TicketStatusClosed, true},
		{domain.TicketStatusClosed, domain.TicketStatusOpen, "", false},
	}
	for _, tc := range cases {
		got, ok := nextStep(tc.from, tc.to)
		if got != tc.want || ok != tc.ok {
			t.Errorf("nextStep(%s, %s) = %s, %v; want %s, %v", tc.from, tc.to, got, ok, tc.want, tc.ok)
		}
	}
}
