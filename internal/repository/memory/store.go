// Package memory provides in-process implementations of the repository
// interfaces. It backs the API when no Postgres DSN is configured and is
// used by service and handler tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
)

type txKey struct{}

// Store holds every table in maps guarded by a single mutex. A transaction
// holds the mutex for its whole duration and restores a snapshot when fn
// fails, so it is serializable.
type Store struct {
	mu  sync.Mutex
	now func() time.Time
	seq uint64

	users       map[string]domain.User
	tickets     map[string]domain.Ticket
	comments    map[string]domain.Comment
	attachments map[string]domain.Attachment
	history     []domain.TicketHistory
	order       map[string]uint64
}

// NewStore returns an empty store using the wall clock.
func NewStore() *Store {
	return &Store{
		now:         time.Now,
		users:       map[string]domain.User{},
		tickets:     map[string]domain.Ticket{},
		comments:    map[string]domain.Comment{},
		attachments: map[string]domain.Attachment{},
		order:       map[string]uint64{},
	}
}

// SetClock replaces the timestamp source.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Transactor returns a repository.Transactor bound to the store.
func (s *Store) Transactor() repository.Transactor { return s }

func (s *Store) Users() repository.UserRepository { return &userRepo{s} }
func (s *Store) Tickets() repository.TicketRepository { return &ticketRepo{s} }
func (s *Store) Comments() repository.CommentRepository { return &commentRepo{s} }
func (s *Store) Attachments() repository.AttachmentRepository { return &attachmentRepo{s} }
func (s *Store) History() repository.TicketHistoryRepository { return &historyRepo{s} }
func (s *Store) Stats() repository.StatsRepository { return &statsRepo{s} }

// Set returns every repository backed by this store.
func (s *Store) Set() repository.Set {
	return repository.Set{
		Transactor:  s,
		Users:       s.Users(),
		Tickets:     s.Tickets(),
		Comments:    s.Comments(),
		Attachments: s.Attachments(),
		History:     s.History(),
		Stats:       s.Stats(),
	}
}

// WithinTx implements repository.Transactor.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// lock acquires the store mutex unless ctx already runs inside a
// transaction of this store.
func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) nextSeq() uint64 {
	s.seq++
	return s.seq
}

type snapshot struct {
	seq         uint64
	users       map[string]domain.User
	tickets     map[string]domain.Ticket
	comments    map[string]domain.Comment
	attachments map[string]domain.Attachment
	history     []domain.TicketHistory
	order       map[string]uint64
}

func (s *Store) snapshot() snapshot {
	return snapshot{
		seq:         s.seq,
		users:       copyMap(s.users),
		tickets:     copyMap(s.tickets),
		comments:    copyMap(s.comments),
		attachments: copyMap(s.attachments),
		history:     append([]domain.TicketHistory(nil), s.history...),
		order:       copyMap(s.order),
	}
}

func (s *Store) restore(snap snapshot) {
	s.seq = snap.seq
	s.users = snap.users
	s.tickets = snap.tickets
	s.comments = snap.comments
	s.attachments = snap.attachments
	s.history = snap.history
	s.order = snap.order
}

func copyMap[V any](in map[string]V) map[string]V {
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

type userRepo struct{ s *Store }

func (r *userRepo) Create(ctx context.Context, user *domain.User) error {
	defer r.s.lock(ctx)()
	for _, existing := range r.s.users {
		if existing.DeletedAt == nil && strings.EqualFold(existing.Email, user.Email) {
			return repository.ErrDuplicate
		}
	}
	now := r.s.now()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.s.users[user.ID] = *user
	r.s.order[user.ID] = r.s.nextSeq()
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	defer r.s.lock(ctx)()
	user, ok := r.s.users[id]
	if !ok || user.DeletedAt != nil {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	defer r.s.lock(ctx)()
	for _, user := range r.s.users {
		if user.DeletedAt == nil && strings.EqualFold(user.Email, email) {
			found := user
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *userRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	defer r.s.lock(ctx)()
	user, ok := r.s.users[id]
	if !ok || user.DeletedAt != nil {
		return repository.ErrNotFound
	}
	user.PasswordHash = passwordHash
	user.UpdatedAt = r.s.now()
	r.s.users[id] = user
	return nil
}

func (r *userRepo) ListByRoles(ctx context.Context, roles ...domain.Role) ([]domain.User, error) {
	defer r.s.lock(ctx)()
	var result []domain.User
	for _, user := range r.s.users {
		if user.DeletedAt != nil {
			continue
		}
		for _, role := range roles {
			if user.Role == role {
				result = append(result, user)
				break
			}
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return r.s.order[result[i].ID] < r.s.order[result[j].ID]
	})
	return result, nil
}

func (r *userRepo) ListAgentLoads(ctx context.Context) ([]domain.AgentLoad, error) {
	defer r.s.lock(ctx)()
	active := map[string]int{}
	for _, ticket := range r.s.tickets {
		if ticket.DeletedAt != nil || ticket.AssigneeID == nil || !ticket.IsOpen() {
			continue
		}
		active[*ticket.AssigneeID]++
	}

	var result []domain.AgentLoad
	for _, user := range r.s.users {
		if user.DeletedAt != nil || !user.Role.IsStaff() {
			continue
		}
		result = append(result, domain.AgentLoad{User: user, ActiveTickets: active[user.ID]})
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.ActiveTickets != b.ActiveTickets {
			return a.ActiveTickets < b.ActiveTickets
		}
		return r.s.order[a.User.ID] < r.s.order[b.User.ID]
	})
	return result, nil
}

type ticketRepo struct{ s *Store }

func (r *ticketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	defer r.s.lock(ctx)()
	now := r.s.now()
	ticket.ID = uuid.NewString()
	ticket.Version = 1
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	r.s.tickets[ticket.ID] = *ticket.Clone()
	r.s.order[ticket.ID] = r.s.nextSeq()
	return nil
}

func (r *ticketRepo) Update(ctx context.Context, ticket *domain.Ticket) error {
	defer r.s.lock(ctx)()
	stored, ok := r.s.tickets[ticket.ID]
	if !ok || stored.DeletedAt != nil || stored.Version != ticket.Version {
		return repository.ErrVersionConflict
	}
	ticket.Version++
	ticket.UpdatedAt = r.s.now()
	updated := ticket.Clone()
	updated.CreatedAt = stored.CreatedAt
	r.s.tickets[ticket.ID] = *updated
	return nil
}

func (r *ticketRepo) SoftDelete(ctx context.Context, ticket *domain.Ticket) error {
	defer r.s.lock(ctx)()
	stored, ok := r.s.tickets[ticket.ID]
	if !ok || stored.DeletedAt != nil || stored.Version != ticket.Version {
		return repository.ErrVersionConflict
	}
	now := r.s.now()
	stored.DeletedAt = &now
	stored.Version++
	r.s.tickets[ticket.ID] = stored
	ticket.DeletedAt = &now
	ticket.Version = stored.Version
	return nil
}

func (r *ticketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	defer r.s.lock(ctx)()
	ticket, ok := r.s.tickets[id]
	if !ok || ticket.DeletedAt != nil {
		return nil, repository.ErrNotFound
	}
	return ticket.Clone(), nil
}

func (r *ticketRepo) ListWithFilter(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	defer r.s.lock(ctx)()
	matched := r.match(filter)
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return r.s.order[a.ID] > r.s.order[b.ID]
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 15
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (r *ticketRepo) CountWithFilter(ctx context.Context, filter repository.TicketFilter) (int, error) {
	defer r.s.lock(ctx)()
	return len(r.match(filter)), nil
}

func (r *ticketRepo) match(filter repository.TicketFilter) []domain.Ticket {
	var result []domain.Ticket
	for _, ticket := range r.s.tickets {
		if matchesTicket(ticket, filter) {
			result = append(result, *ticket.Clone())
		}
	}
	return result
}

func matchesTicket(t domain.Ticket, f repository.TicketFilter) bool {
	if t.DeletedAt != nil {
		return false
	}
	if f.CreatorID != nil && t.CreatorID != *f.CreatorID {
		return false
	}
	if f.AssigneeID != nil && (t.AssigneeID == nil || *t.AssigneeID != *f.AssigneeID) {
		return false
	}
	if f.AssigneeOrUnassigned != nil && t.AssigneeID != nil && *t.AssigneeID != *f.AssigneeOrUnassigned {
		return false
	}
	if f.Unassigned && t.AssigneeID != nil {
		return false
	}
	if len(f.Statuses) > 0 && !contains(f.Statuses, t.Status) {
		return false
	}
	if len(f.Priorities) > 0 && !contains(f.Priorities, t.Priority) {
		return false
	}
	if len(f.Categories) > 0 && !contains(f.Categories, t.Category) {
		return false
	}
	if f.CreatedFrom != nil && t.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && t.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	if f.SearchTerm != nil {
		term := strings.TrimSpace(*f.SearchTerm)
		if term != "" && !containsFold(t.Title, term) && !containsFold(t.Description, term) {
			return false
		}
	}
	return true
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

type commentRepo struct{ s *Store }

func (r *commentRepo) Create(ctx context.Context, comment *domain.Comment) error {
	defer r.s.lock(ctx)()
	now := r.s.now()
	comment.ID = uuid.NewString()
	comment.CreatedAt = now
	comment.UpdatedAt = now
	stored := *comment
	stored.Author = nil
	r.s.comments[comment.ID] = stored
	r.s.order[comment.ID] = r.s.nextSeq()
	return nil
}

func (r *commentRepo) UpdateText(ctx context.Context, comment *domain.Comment) error {
	defer r.s.lock(ctx)()
	stored, ok := r.s.comments[comment.ID]
	if !ok || stored.DeletedAt != nil {
		return repository.ErrNotFound
	}
	stored.Text = comment.Text
	stored.UpdatedAt = r.s.now()
	r.s.comments[comment.ID] = stored
	comment.UpdatedAt = stored.UpdatedAt
	return nil
}

func (r *commentRepo) SoftDelete(ctx context.Context, id string) error {
	defer r.s.lock(ctx)()
	stored, ok := r.s.comments[id]
	if !ok || stored.DeletedAt != nil {
		return repository.ErrNotFound
	}
	now := r.s.now()
	stored.DeletedAt = &now
	r.s.comments[id] = stored
	return nil
}

func (r *commentRepo) GetByID(ctx context.Context, id string) (*domain.Comment, error) {
	defer r.s.lock(ctx)()
	stored, ok := r.s.comments[id]
	if !ok || stored.DeletedAt != nil {
		return nil, repository.ErrNotFound
	}
	comment := r.withAuthor(stored)
	return &comment, nil
}

func (r *commentRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.Comment, error) {
	defer r.s.lock(ctx)()
	var result []domain.Comment
	for _, stored := range r.s.comments {
		if stored.TicketID == ticketID && stored.DeletedAt == nil {
			result = append(result, r.withAuthor(stored))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return r.s.order[result[i].ID] < r.s.order[result[j].ID]
	})
	return result, nil
}

func (r *commentRepo) withAuthor(comment domain.Comment) domain.Comment {
	if author, ok := r.s.users[comment.AuthorID]; ok {
		comment.Author = &domain.User{ID: author.ID, Name: author.Name, Email: author.Email, Role: author.Role}
	}
	return comment
}

type attachmentRepo struct{ s *Store }

func (r *attachmentRepo) Create(ctx context.Context, attachment *domain.Attachment) error {
	defer r.s.lock(ctx)()
	now := r.s.now()
	attachment.ID = uuid.NewString()
	attachment.CreatedAt = now
	attachment.UpdatedAt = now
	stored := *attachment
	stored.CommentID = cloneString(attachment.CommentID)
	r.s.attachments[attachment.ID] = stored
	r.s.order[attachment.ID] = r.s.nextSeq()
	return nil
}

func (r *attachmentRepo) GetByID(ctx context.Context, id string) (*domain.Attachment, error) {
	defer r.s.lock(ctx)()
	stored, ok := r.s.attachments[id]
	if !ok || stored.DeletedAt != nil {
		return nil, repository.ErrNotFound
	}
	stored.CommentID = cloneString(stored.CommentID)
	return &stored, nil
}

func (r *attachmentRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.Attachment, error) {
	defer r.s.lock(ctx)()
	var result []domain.Attachment
	for _, stored := range r.s.attachments {
		if stored.TicketID == ticketID && stored.DeletedAt == nil {
			stored.CommentID = cloneString(stored.CommentID)
			result = append(result, stored)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return r.s.order[result[i].ID] < r.s.order[result[j].ID]
	})
	return result, nil
}

func (r *attachmentRepo) SoftDelete(ctx context.Context, id string) error {
	defer r.s.lock(ctx)()
	stored, ok := r.s.attachments[id]
	if !ok || stored.DeletedAt != nil {
		return repository.ErrNotFound
	}
	now := r.s.now()
	stored.DeletedAt = &now
	r.s.attachments[id] = stored
	return nil
}

type historyRepo struct{ s *Store }

func (r *historyRepo) Create(ctx context.Context, history *domain.TicketHistory) error {
	defer r.s.lock(ctx)()
	history.ID = uuid.NewString()
	history.CreatedAt = r.s.now()
	r.s.history = append(r.s.history, *history)
	return nil
}

func (r *historyRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	defer r.s.lock(ctx)()
	var result []domain.TicketHistory
	for _, entry := range r.s.history {
		if entry.TicketID != ticketID {
			continue
		}
		if entry.ChangedByID != nil {
			entry.ChangedByName = r.s.users[*entry.ChangedByID].Name
		}
		result = append(result, entry)
	}
	return result, nil
}

type statsRepo struct{ s *Store }

func (r *statsRepo) TicketCounts(ctx context.Context, scope repository.StatsScope) (repository.TicketCounts, error) {
	defer r.s.lock(ctx)()
	counts := repository.TicketCounts{
		ByStatus:   map[string]int{},
		ByPriority: map[string]int{},
		ByCategory: map[string]int{},
	}
	for _, ticket := range r.s.tickets {
		if ticket.DeletedAt != nil {
			continue
		}
		if scope.CreatorID != nil && ticket.CreatorID != *scope.CreatorID {
			continue
		}
		if scope.AssigneeID != nil && (ticket.AssigneeID == nil || *ticket.AssigneeID != *scope.AssigneeID) {
			continue
		}
		counts.Total++
		counts.ByStatus[string(ticket.Status)]++
		counts.ByPriority[string(ticket.Priority)]++
		counts.ByCategory[string(ticket.Category)]++
	}
	return counts, nil
}

func (r *statsRepo) CountUsersByRole(ctx context.Context) (map[string]int, error) {
	defer r.s.lock(ctx)()
	result := map[string]int{}
	for _, user := range r.s.users {
		if user.DeletedAt == nil {
			result[string(user.Role)]++
		}
	}
	return result, nil
}
