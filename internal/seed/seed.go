// Package seed loads YAML fixtures of users and tickets through the
// services, so seeded data obeys the same rules as API traffic.
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// Fixture is the file format.
type Fixture struct {
	Users   []UserFixture   `yaml:"users"`
	Tickets []TicketFixture `yaml:"tickets"`
}

type UserFixture struct {
	Name     string      `yaml:"name"`
	Email    string      `yaml:"email"`
	Password string      `yaml:"password"`
	Role     domain.Role `yaml:"role"`
}

// TicketFixture references users by email.
type TicketFixture struct {
	Creator     string                `yaml:"creator"`
	Title       string                `yaml:"title"`
	Description string                `yaml:"description"`
	Category    domain.TicketCategory `yaml:"category"`
	Priority    domain.TicketPriority `yaml:"priority"`
	Assignee    string                `yaml:"assignee"`
	Status      domain.TicketStatus   `yaml:"status"`
	Comments    []CommentFixture      `yaml:"comments"`
}

type CommentFixture struct {
	Author string `yaml:"author"`
	Text   string `yaml:"text"`
}

// Parse decodes a fixture.
func Parse(data []byte) (Fixture, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Fixture{}, errors.New("seed: fixture is empty")
	}
	var fixture Fixture
	if err := yaml.Unmarshal(data, &fixture); err != nil {
		return Fixture{}, fmt.Errorf("seed: decode fixture: %w", err)
	}
	return fixture, nil
}

// LoadFile reads and decodes a fixture file.
func LoadFile(path string) (Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("seed: read %s: %w", path, err)
	}
	fixture, err := Parse(data)
	if err != nil {
		return Fixture{}, fmt.Errorf("%s: %w", path, err)
	}
	return fixture, nil
}

// Seeder applies fixtures.
type Seeder struct {
	Auth       *service.AuthService
	Tickets    *service.TicketService
	Assignment *service.AssignmentService
	Comments   *service.CommentService
	Users      repository.UserRepository
	Logger     *zap.Logger
}

// Result counts what was created.
type Result struct {
	Users    int
	Skipped  int
	Tickets  int
	Comments int
}

// Apply creates the fixture's users, then its tickets. Users whose email
// already exists are reused, so applying a fixture twice only duplicates
// tickets.
func (s *Seeder) Apply(ctx context.Context, fixture Fixture) (Result, error) {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var result Result
	byEmail := map[string]*domain.User{}

	for _, u := range fixture.Users {
		user, err := s.Auth.CreateUser(ctx, u.Name, u.Email, u.Password, u.Role)
		if apperrors.HasCode(err, apperrors.CodeConflict) {
			user, err = s.Users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(u.Email)))
			result.Skipped++
		} else if err == nil {
			result.Users++
		}
		if err != nil {
			return result, fmt.Errorf("seed user %s: %w", u.Email, err)
		}
		byEmail[user.Email] = user
	}

	lookup := func(email string) (*domain.User, error) {
		email = strings.ToLower(strings.TrimSpace(email))
		if user, ok := byEmail[email]; ok {
			return user, nil
		}
		user, err := s.Users.GetByEmail(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("unknown user %q: %w", email, err)
		}
		byEmail[email] = user
		return user, nil
	}

	for i, t := range fixture.Tickets {
		if err := s.applyTicket(ctx, t, lookup, &result); err != nil {
			return result, fmt.Errorf("seed ticket %d (%s): %w", i, t.Title, err)
		}
	}

	logger.Info("seed applied",
		zap.Int("users", result.Users),
		zap.Int("users_skipped", result.Skipped),
		zap.Int("tickets", result.Tickets),
		zap.Int("comments", result.Comments))
	return result, nil
}

func (s *Seeder) applyTicket(ctx context.Context, t TicketFixture, lookup func(string) (*domain.User, error), result *Result) error {
	creator, err := lookup(t.Creator)
	if err != nil {
		return err
	}
	ticket, err := s.Tickets.CreateTicket(ctx, creator, service.TicketCreateInput{
		Title:       t.Title,
		Description: t.Description,
		Category:    t.Category,
		Priority:    t.Priority,
	})
	if err != nil {
		return err
	}
	result.Tickets++

	for _, c := range t.Comments {
		author, err := lookup(c.Author)
		if err != nil {
			return err
		}
		if _, err := s.Comments.AddComment(ctx, author, ticket.ID, c.Text); err != nil {
			return fmt.Errorf("comment by %s: %w", c.Author, err)
		}
		result.Comments++
	}

	var worker *domain.User
	if t.Assignee != "" {
		if worker, err = lookup(t.Assignee); err != nil {
			return err
		}
		if ticket, err = s.Assignment.AssignTicket(ctx, worker, ticket.ID, worker.ID); err != nil {
			return err
		}
	}
	if t.Status == "" || t.Status == ticket.Status {
		return nil
	}
	if worker == nil {
		return fmt.Errorf("status %s needs an assignee to act on the ticket", t.Status)
	}
	return s.advance(ctx, worker, ticket, t.Status)
}

// advance walks the ticket forward to target one legal transition at a time.
func (s *Seeder) advance(ctx context.Context, actor *domain.User, ticket *domain.Ticket, target domain.TicketStatus) error {
	for ticket.Status != target {
		next, ok := nextStep(ticket.Status, target)
		if !ok {
			return fmt.Errorf("cannot reach status %s from %s", target, ticket.Status)
		}
		details, err := s.Tickets.UpdateTicket(ctx, actor, ticket.ID, service.TicketUpdateInput{Status: &next})
		if err != nil {
			return err
		}
		ticket = details.Ticket
	}
	return nil
}

func nextStep(current, target domain.TicketStatus) (domain.TicketStatus, bool) {
	if domain.IsValidTransition(current, target) {
		return target, true
	}
	if current == domain.TicketStatusOpen && target == domain.TicketStatusResolved {
		return domain.TicketStatusInProgress, true
	}
	return "", false
}
