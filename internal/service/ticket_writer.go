package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// maxWriteAttempts bounds read-modify-write cycles on a version conflict.
const maxWriteAttempts = 2

// ticketWriter runs ticket read-modify-write cycles shared by the ticket and
// assignment services.
type ticketWriter struct {
	tx         repository.Transactor
	tickets    repository.TicketRepository
	history    repository.TicketHistoryRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// mutate loads the ticket, applies fn, re-validates and persists it with a
// version compare-and-swap, recording history in the same transaction. On a
// version conflict the whole cycle, including fn, runs once more. It returns
// the ticket as it was read and as it was written.
func (w *ticketWriter) mutate(ctx context.Context, actor *domain.User, ticketID string, fn func(ctx context.Context, ticket *domain.Ticket) error) (*domain.Ticket, *domain.Ticket, error) {
	var before, after *domain.Ticket
	err := w.retry(ctx, ticketID, func(ctx context.Context) error {
		ticket, err := w.tickets.GetByID(ctx, ticketID)
		if err != nil {
			return notFound(err, "ticket", ticketID)
		}
		original := ticket.Clone()
		if err := fn(ctx, ticket); err != nil {
			return err
		}
		if !ticketChanged(original, ticket) {
			before, after = original, ticket
			return nil
		}
		if err := ticket.Validate(); err != nil {
			return err
		}
		if err := w.tickets.Update(ctx, ticket); err != nil {
			return err
		}
		if err := w.recordChanges(ctx, actor, original, ticket); err != nil {
			return err
		}
		before, after = original, ticket
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

// retry runs fn in a transaction, repeating on a version conflict until
// maxWriteAttempts is reached, then reports STATE_CONFLICT.
func (w *ticketWriter) retry(ctx context.Context, ticketID string, fn func(ctx context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := w.tx.WithinTx(ctx, fn)
		if !errors.Is(err, repository.ErrVersionConflict) {
			return err
		}
		if attempt >= maxWriteAttempts {
			w.logger.Warn("ticket write conflict", zap.String("ticket_id", ticketID), zap.Int("attempts", attempt))
			return apperrors.NewStateConflict("ticket", map[string]any{"ticket_id": ticketID})
		}
		w.logger.Debug("retrying ticket write after version conflict", zap.String("ticket_id", ticketID))
	}
}

func (w *ticketWriter) recordChanges(ctx context.Context, actor *domain.User, before, after *domain.Ticket) error {
	var actorID *string
	if actor != nil {
		id := actor.ID
		actorID = &id
	}
	record := func(change domain.TicketChangeType, key string, oldValue, newValue any) error {
		entry := &domain.TicketHistory{
			TicketID:    after.ID,
			ChangedByID: actorID,
			ChangeType:  change,
			OldValue:    map[string]any{key: oldValue},
			NewValue:    map[string]any{key: newValue},
		}
		if err := w.history.Create(ctx, entry); err != nil {
			return fmt.Errorf("record %s: %w", change, err)
		}
		return nil
	}

	if before.Status != after.Status {
		if err := record(domain.ChangeTypeStatus, "status", before.Status, after.Status); err != nil {
			return err
		}
	}
	if !sameAssignee(before.AssigneeID, after.AssigneeID) {
		if err := record(domain.ChangeTypeAssignee, "assignee_id", derefOrNil(before.AssigneeID), derefOrNil(after.AssigneeID)); err != nil {
			return err
		}
	}
	if before.Priority != after.Priority {
		if err := record(domain.ChangeTypePriority, "priority", before.Priority, after.Priority); err != nil {
			return err
		}
	}
	if before.Category != after.Category {
		if err := record(domain.ChangeTypeCategory, "category", before.Category, after.Category); err != nil {
			return err
		}
	}
	return nil
}

// publishChanges emits the events implied by a committed mutation.
// Assignment changes are reported as assignment events and suppress the
// status event they imply.
func (w *ticketWriter) publishChanges(ctx context.Context, actor *domain.User, before, after *domain.Ticket, mode events.AssignmentMode) {
	event := events.Event{TicketID: after.ID, Actor: events.ActorFrom(actor), Timestamp: w.now().UTC()}

	assigneeChanged := !sameAssignee(before.AssigneeID, after.AssigneeID)
	switch {
	case assigneeChanged && after.AssigneeID != nil:
		event.Type = events.EventTicketAssigned
		event.Payload = events.TicketAssignedPayload{
			AssigneeID:         *after.AssigneeID,
			PreviousAssigneeID: before.AssigneeID,
			Title:              after.Title,
			Priority:           after.Priority,
			Mode:               mode,
		}
		w.publish(ctx, event)
	case assigneeChanged:
		event.Type = events.EventTicketUnassigned
		event.Payload = events.TicketUnassignedPayload{PreviousAssigneeID: before.AssigneeID}
		w.publish(ctx, event)
	case before.Status != after.Status:
		event.Type = events.EventTicketStatusChanged
		event.Payload = events.TicketStatusChangedPayload{
			CreatorID: after.CreatorID,
			Title:     after.Title,
			OldStatus: before.Status,
			NewStatus: after.Status,
		}
		w.publish(ctx, event)
	}

	if fields := changedFields(before, after); len(fields) > 0 {
		event.Type = events.EventTicketUpdated
		event.Payload = events.TicketUpdatedPayload{Fields: fields}
		w.publish(ctx, event)
	}
}

func (w *ticketWriter) publish(ctx context.Context, event events.Event) {
	if w.dispatcher == nil {
		return
	}
	if err := w.dispatcher.Publish(ctx, event); err != nil {
		w.logger.Warn("publish event failed", zap.String("type", string(event.Type)), zap.Error(err))
	}
}

// changedFields lists edited fields other than status and assignee.
func changedFields(before, after *domain.Ticket) []string {
	var fields []string
	if before.Title != after.Title {
		fields = append(fields, "title")
	}
	if before.Description != after.Description {
		fields = append(fields, "description")
	}
	if before.Category != after.Category {
		fields = append(fields, "category")
	}
	if before.Priority != after.Priority {
		fields = append(fields, "priority")
	}
	return fields
}

func ticketChanged(before, after *domain.Ticket) bool {
	return before.Status != after.Status ||
		!sameAssignee(before.AssigneeID, after.AssigneeID) ||
		len(changedFields(before, after)) > 0
}

func sameAssignee(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func derefOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// notFound converts a repository miss into a NOT_FOUND error.
func notFound(err error, resource, id string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound(resource, map[string]any{"id": id})
	}
	return err
}
