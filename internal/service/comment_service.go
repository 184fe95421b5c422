package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/policy"
	"github.com/spec-kit/helpdesk/internal/repository"
)

// CommentService manages ticket threads.
type CommentService struct {
	tickets    repository.TicketRepository
	comments   repository.CommentRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// CommentDependencies bundles collaborators for the comment service.
type CommentDependencies struct {
	TicketRepo  repository.TicketRepository
	CommentRepo repository.CommentRepository
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Now         func() time.Time
}

func NewCommentService(deps CommentDependencies) *CommentService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &CommentService{
		tickets:    deps.TicketRepo,
		comments:   deps.CommentRepo,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		now:        now,
	}
}

// ListComments returns the thread of a visible ticket, oldest first.
func (s *CommentService) ListComments(ctx context.Context, actor *domain.User, ticketID string) ([]domain.Comment, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.ActionViewTicket, policy.Resource{Ticket: ticket}); err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if comments == nil {
		comments = []domain.Comment{}
	}
	return comments, nil
}

// AddComment appends to the thread. Permission is checked before the
// closed-ticket rule, so a stranger gets FORBIDDEN and never TICKET_CLOSED.
func (s *CommentService) AddComment(ctx context.Context, actor *domain.User, ticketID, text string) (*domain.Comment, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.ActionComment, policy.Resource{Ticket: ticket}); err != nil {
		return nil, err
	}
	if err := policy.CheckCommentable(ticket); err != nil {
		return nil, err
	}
	if err := domain.ValidateCommentText(text); err != nil {
		return nil, err
	}

	comment := &domain.Comment{
		TicketID: ticket.ID,
		AuthorID: actor.ID,
		Text:     strings.TrimSpace(text),
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, err
	}
	author := *actor
	comment.Author = &author

	s.logger.Info("comment added",
		zap.String("ticket_id", ticket.ID),
		zap.String("comment_id", comment.ID),
		zap.String("author_id", actor.ID))
	s.publish(ctx, events.Event{
		Type:      events.EventCommentAdded,
		TicketID:  ticket.ID,
		Actor:     events.ActorFrom(actor),
		Timestamp: s.now().UTC(),
		Payload: events.CommentAddedPayload{
			CommentID: comment.ID,
			AuthorID:  actor.ID,
			CreatorID: ticket.CreatorID,
			Title:     ticket.Title,
			Excerpt:   comment.Excerpt(),
		},
	})
	return comment, nil
}

// UpdateComment edits a comment's text. Authors may edit within the edit
// window while the ticket is not closed; admins may always edit.
func (s *CommentService) UpdateComment(ctx context.Context, actor *domain.User, ticketID, commentID, text string) (*domain.Comment, error) {
	ticket, comment, err := s.loadComment(ctx, ticketID, commentID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.ActionEditComment, policy.Resource{Ticket: ticket, Comment: comment}); err != nil {
		return nil, err
	}
	if err := policy.CheckCommentEditable(actor, comment, ticket, s.now()); err != nil {
		return nil, err
	}
	if err := domain.ValidateCommentText(text); err != nil {
		return nil, err
	}

	comment.Text = strings.TrimSpace(text)
	if err := s.comments.UpdateText(ctx, comment); err != nil {
		return nil, notFound(err, "comment", commentID)
	}
	s.logger.Info("comment updated", zap.String("comment_id", comment.ID), zap.String("actor_id", actor.ID))
	return comment, nil
}

// DeleteComment soft-deletes a comment. Only its author or an admin may.
func (s *CommentService) DeleteComment(ctx context.Context, actor *domain.User, ticketID, commentID string) error {
	ticket, comment, err := s.loadComment(ctx, ticketID, commentID)
	if err != nil {
		return err
	}
	if err := policy.Authorize(actor, policy.ActionDeleteComment, policy.Resource{Ticket: ticket, Comment: comment}); err != nil {
		return err
	}
	if err := s.comments.SoftDelete(ctx, comment.ID); err != nil {
		return notFound(err, "comment", commentID)
	}
	s.logger.Info("comment deleted", zap.String("comment_id", comment.ID), zap.String("actor_id", actor.ID))
	return nil
}

func (s *CommentService) loadTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, notFound(err, "ticket", ticketID)
	}
	return ticket, nil
}

// loadComment resolves a comment through its ticket. A comment that belongs
// to another ticket is reported as missing.
func (s *CommentService) loadComment(ctx context.Context, ticketID, commentID string) (*domain.Ticket, *domain.Comment, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	comment, err := s.comments.GetByID(ctx, commentID)
	if err != nil {
		return nil, nil, notFound(err, "comment", commentID)
	}
	if comment.TicketID != ticket.ID {
		return nil, nil, notFound(repository.ErrNotFound, "comment", commentID)
	}
	return ticket, comment, nil
}

func (s *CommentService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish event failed", zap.String("type", string(event.Type)), zap.Error(err))
	}
}
