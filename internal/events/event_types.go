package events

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket.created"
	EventTicketUpdated       EventType = "ticket.updated"
	EventTicketStatusChanged EventType = "ticket.status_changed"
	EventTicketAssigned      EventType = "ticket.assigned"
	EventTicketUnassigned    EventType = "ticket.unassigned"
	EventTicketDeleted       EventType = "ticket.deleted"
	EventCommentAdded        EventType = "comment.added"
)

// AssignmentMode records how an assignee was chosen.
type AssignmentMode string

const (
	AssignmentManual AssignmentMode = "manual"
	AssignmentAuto   AssignmentMode = "auto"
)

// Actor identifies who triggered an event.
type Actor struct {
	UserID string      `json:"user_id"`
	Role   domain.Role `json:"role"`
}

// ActorFrom builds an Actor from an authenticated user.
func ActorFrom(user *domain.User) Actor {
	if user == nil {
		return Actor{}
	}
	return Actor{UserID: user.ID, Role: user.Role}
}

// Event represents a domain event emitted by services after commit.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	CreatorID string                `json:"creator_id"`
	Title     string                `json:"title"`
	Category  domain.TicketCategory `json:"category"`
	Priority  domain.TicketPriority `json:"priority"`
}

// TicketUpdatedPayload lists the names of fields whose value changed.
type TicketUpdatedPayload struct {
	Fields []string `json:"fields"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	CreatorID string              `json:"creator_id"`
	Title     string              `json:"title"`
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	AssigneeID         string                `json:"assignee_id"`
	PreviousAssigneeID *string               `json:"previous_assignee_id,omitempty"`
	Title              string                `json:"title"`
	Priority           domain.TicketPriority `json:"priority"`
	Mode               AssignmentMode        `json:"mode"`
}

// TicketUnassignedPayload payload.
type TicketUnassignedPayload struct {
	PreviousAssigneeID *string `json:"previous_assignee_id,omitempty"`
}

// CommentAddedPayload payload.
type CommentAddedPayload struct {
	CommentID string `json:"comment_id"`
	AuthorID  string `json:"author_id"`
	CreatorID string `json:"creator_id"`
	Title     string `json:"title"`
	Excerpt   string `json:"excerpt"`
}
