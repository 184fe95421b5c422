package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// TicketPriority enumerates ticket urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
)

var TicketPriorities = []TicketPriority{TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh}

func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh:
		return true
	}
	return false
}

// TicketCategory classifies what a ticket is about.
type TicketCategory string

const (
	TicketCategoryTechnical TicketCategory = "technical"
	TicketCategoryBilling   TicketCategory = "billing"
	TicketCategoryGeneral   TicketCategory = "general"
	TicketCategoryOther     TicketCategory = "other"
)

var TicketCategories = []TicketCategory{
	TicketCategoryTechnical,
	TicketCategoryBilling,
	TicketCategoryGeneral,
	TicketCategoryOther,
}

func (c TicketCategory) Valid() bool {
	switch c {
	case TicketCategoryTechnical, TicketCategoryBilling, TicketCategoryGeneral, TicketCategoryOther:
		return true
	}
	return false
}

// TitleMaxLength bounds ticket titles, counted in characters.
const TitleMaxLength = 255

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID          string
	CreatorID   string
	AssigneeID  *string
	Title       string
	Description string
	Category    TicketCategory
	Priority    TicketPriority
	Status      TicketStatus

	// Version increments on every write and guards read-modify-write cycles.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// NewTicket builds an open, unassigned ticket owned by creatorID.
func NewTicket(creatorID, title, description string, category TicketCategory, priority TicketPriority) *Ticket {
	return &Ticket{
		CreatorID:   creatorID,
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(description),
		Category:    category,
		Priority:    priority,
		Status:      TicketStatusOpen,
	}
}

// IsOpen reports whether the ticket still needs work (open or in progress).
func (t *Ticket) IsOpen() bool {
	return t.Status == TicketStatusOpen || t.Status == TicketStatusInProgress
}

func (t *Ticket) IsClosed() bool {
	return t.Status == TicketStatusClosed
}

func (t *Ticket) IsAssigned() bool {
	return t.AssigneeID != nil
}

func (t *Ticket) IsAssignedTo(userID string) bool {
	return t.AssigneeID != nil && *t.AssigneeID == userID
}

func (t *Ticket) IsCreatedBy(userID string) bool {
	return t.CreatorID == userID
}

// ResolutionTime is the elapsed time between creation and the last update
// once the ticket is resolved or closed.
func (t *Ticket) ResolutionTime() (time.Duration, bool) {
	if t.Status != TicketStatusResolved && t.Status != TicketStatusClosed {
		return 0, false
	}
	return t.UpdatedAt.Sub(t.CreatedAt), true
}

// ChangeStatus applies a transition from the allowed-transition table.
func (t *Ticket) ChangeStatus(next TicketStatus) error {
	if !next.Valid() {
		return apperrors.NewValidationError("invalid status", map[string]any{"status": "must be one of open, in_progress, resolved, closed"})
	}
	if !IsValidTransition(t.Status, next) {
		return apperrors.NewInvalidTransition(string(t.Status), string(next))
	}
	t.Status = next
	return nil
}

// AssignTo hands the ticket to an agent or admin. Assignment always moves
// the ticket to in_progress, whatever its current status.
func (t *Ticket) AssignTo(assignee *User) error {
	if assignee == nil || !assignee.Role.IsStaff() {
		details := map[string]any{}
		if assignee != nil {
			details["assignee_id"] = assignee.ID
		}
		return apperrors.NewInvalidAssignee("can only assign to agents or admins", details)
	}
	id := assignee.ID
	t.AssigneeID = &id
	t.Status = TicketStatusInProgress
	return nil
}

// Unassign clears the assignee and reopens the ticket.
func (t *Ticket) Unassign() {
	t.AssigneeID = nil
	t.Status = TicketStatusOpen
}

// Validate checks the aggregate invariants that hold after every mutation.
func (t *Ticket) Validate() error {
	details := map[string]any{}
	if n := utf8.RuneCountInString(t.Title); n == 0 {
		details["title"] = "title is required"
	} else if n > TitleMaxLength {
		details["title"] = "title must be at most 255 characters"
	}
	if strings.TrimSpace(t.Description) == "" {
		details["description"] = "description is required"
	}
	if !t.Category.Valid() {
		details["category"] = "must be one of technical, billing, general, other"
	}
	if !t.Priority.Valid() {
		details["priority"] = "must be one of low, medium, high"
	}
	if !t.Status.Valid() {
		details["status"] = "must be one of open, in_progress, resolved, closed"
	}
	if t.CreatorID == "" {
		details["creator"] = "creator is required"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("ticket is invalid", details)
	}
	return nil
}

// Clone returns a deep copy of the ticket.
func (t *Ticket) Clone() *Ticket {
	clone := *t
	if t.AssigneeID != nil {
		id := *t.AssigneeID
		clone.AssigneeID = &id
	}
	if t.DeletedAt != nil {
		at := *t.DeletedAt
		clone.DeletedAt = &at
	}
	return &clone
}
