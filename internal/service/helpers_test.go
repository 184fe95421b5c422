package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/repository/memory"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingDispatcher keeps every published event and forwards it to inner
// when one is set.
type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
	inner  events.Dispatcher
}

func (d *recordingDispatcher) Publish(ctx context.Context, event events.Event) error {
	d.mu.Lock()
	d.events = append(d.events, event)
	d.mu.Unlock()
	if d.inner != nil {
		return d.inner.Publish(ctx, event)
	}
	return nil
}

func (d *recordingDispatcher) Subscribe(eventType events.EventType, handler events.EventHandler) {
	if d.inner != nil {
		d.inner.Subscribe(eventType, handler)
	}
}

func (d *recordingDispatcher) types() []events.EventType {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]events.EventType, 0, len(d.events))
	for _, e := range d.events {
		out = append(out, e.Type)
	}
	return out
}

func (d *recordingDispatcher) reset() {
	d.mu.Lock()
	d.events = nil
	d.mu.Unlock()
}

type testEnv struct {
	t          *testing.T
	store      *memory.Store
	repos      repository.Set
	clock      *fakeClock
	events     *recordingDispatcher
	tickets    *TicketService
	assignment *AssignmentService
	comments   *CommentService
	stats      *StatsService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := newFakeClock()
	store := memory.NewStore()
	store.SetClock(clock.Now)
	return newTestEnvWith(t, store, store.Set(), clock)
}

func newTestEnvWith(t *testing.T, store *memory.Store, repos repository.Set, clock *fakeClock) *testEnv {
	t.Helper()
	dispatcher := &recordingDispatcher{}
	return &testEnv{
		t:      t,
		store:  store,
		repos:  repos,
		clock:  clock,
		events: dispatcher,
		tickets: NewTicketService(TicketDependencies{
			Transactor:     repos.Transactor,
			TicketRepo:     repos.Tickets,
			UserRepo:       repos.Users,
			CommentRepo:    repos.Comments,
			AttachmentRepo: repos.Attachments,
			HistoryRepo:    repos.History,
			Dispatcher:     dispatcher,
			Now:            clock.Now,
		}),
		assignment: NewAssignmentService(AssignmentDependencies{
			Transactor:  repos.Transactor,
			TicketRepo:  repos.Tickets,
			UserRepo:    repos.Users,
			HistoryRepo: repos.History,
			Dispatcher:  dispatcher,
			Now:         clock.Now,
		}),
		comments: NewCommentService(CommentDependencies{
			TicketRepo:  repos.Tickets,
			CommentRepo: repos.Comments,
			Dispatcher:  dispatcher,
			Now:         clock.Now,
		}),
		stats: NewStatsService(StatsDependencies{
			StatsRepo:  repos.Stats,
			TicketRepo: repos.Tickets,
		}),
	}
}

// addUser stores an account. The clock moves forward so creation times are
// strictly ordered.
func (e *testEnv) addUser(name string, role domain.Role) *domain.User {
	e.t.Helper()
	e.clock.Advance(time.Second)
	user := &domain.User{Name: name, Email: name + "@example.com", PasswordHash: "x", Role: role}
	if err := e.repos.Users.Create(context.Background(), user); err != nil {
		e.t.Fatalf("create user %s: %v", name, err)
	}
	return user
}

func (e *testEnv) openTicket(creator *domain.User, title string) *domain.Ticket {
	e.t.Helper()
	e.clock.Advance(time.Second)
	ticket, err := e.tickets.CreateTicket(context.Background(), creator, TicketCreateInput{
		Title:       title,
		Description: "details for " + title,
		Category:    domain.TicketCategoryTechnical,
		Priority:    domain.TicketPriorityMedium,
	})
	if err != nil {
		e.t.Fatalf("create ticket %q: %v", title, err)
	}
	return ticket
}

func (e *testEnv) assign(actor *domain.User, ticketID string, assignee *domain.User) *domain.Ticket {
	e.t.Helper()
	ticket, err := e.assignment.AssignTicket(context.Background(), actor, ticketID, assignee.ID)
	if err != nil {
		e.t.Fatalf("assign %s: %v", ticketID, err)
	}
	return ticket
}

func (e *testEnv) setStatus(actor *domain.User, ticketID string, status domain.TicketStatus) {
	e.t.Helper()
	if _, err := e.tickets.UpdateTicket(context.Background(), actor, ticketID, TicketUpdateInput{Status: &status}); err != nil {
		e.t.Fatalf("set status %s on %s: %v", status, ticketID, err)
	}
}

func expectCode(t *testing.T, err error, code string) {
	t.Helper()
	if !apperrors.HasCode(err, code) {
		t.Fatalf("expected %s, got %v", code, err)
	}
}
