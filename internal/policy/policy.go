// Package policy decides which actor may do what to a ticket, comment or
// attachment. Every function is pure: callers load the facts (ownership,
// assignment, role) and ask.
package policy

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// Action names an operation subject to authorization.
type Action string

const (
	ActionViewTicket       Action = "ticket.view"
	ActionCreateTicket     Action = "ticket.create"
	ActionUpdateTicket     Action = "ticket.update"
	ActionUpdatePrivileged Action = "ticket.update_privileged"
	ActionDeleteTicket     Action = "ticket.delete"
	ActionAssign           Action = "ticket.assign"
	ActionComment          Action = "comment.create"
	ActionEditComment      Action = "comment.edit"
	ActionDeleteComment    Action = "comment.delete"
	ActionUploadAttachment Action = "attachment.upload"
	ActionViewAttachment   Action = "attachment.view"
	ActionDeleteAttachment Action = "attachment.delete"
)

// Resource carries the records an action targets. Only the fields an
// action needs must be set.
type Resource struct {
	Ticket     *domain.Ticket
	Comment    *domain.Comment
	Attachment *domain.Attachment
}

// Can reports whether actor may perform action on res. Unknown actions,
// missing actors and missing resources are denied.
func Can(actor *domain.User, action Action, res Resource) bool {
	if actor == nil || !actor.Role.Valid() {
		return false
	}

	switch action {
	case ActionCreateTicket:
		return actor.IsUser()
	case ActionAssign:
		return actor.CanWorkTickets()
	case ActionViewTicket, ActionComment, ActionUploadAttachment, ActionViewAttachment:
		return res.Ticket != nil && canSeeTicket(actor, res.Ticket)
	case ActionUpdateTicket:
		if res.Ticket == nil {
			return false
		}
		if actor.IsUser() {
			return res.Ticket.IsCreatedBy(actor.ID)
		}
		return true
	case ActionUpdatePrivileged:
		return res.Ticket != nil && actor.CanWorkTickets()
	case ActionDeleteTicket:
		if res.Ticket == nil {
			return false
		}
		if actor.IsAdmin() {
			return true
		}
		return actor.IsUser() && res.Ticket.IsCreatedBy(actor.ID)
	case ActionEditComment:
		if res.Comment == nil {
			return false
		}
		return actor.IsAdmin() || res.Comment.IsAuthor(actor.ID)
	case ActionDeleteComment:
		if res.Comment == nil {
			return false
		}
		return actor.IsAdmin() || res.Comment.IsAuthor(actor.ID)
	case ActionDeleteAttachment:
		if res.Attachment == nil {
			return false
		}
		return actor.IsAdmin() || res.Attachment.IsUploadedBy(actor.ID)
	}
	return false
}

// canSeeTicket is the view rule shared by viewing, commenting and attachments.
func canSeeTicket(actor *domain.User, ticket *domain.Ticket) bool {
	switch actor.Role {
	case domain.RoleAdmin:
		return true
	case domain.RoleAgent:
		return !ticket.IsAssigned() || ticket.IsAssignedTo(actor.ID)
	case domain.RoleUser:
		return ticket.IsCreatedBy(actor.ID)
	}
	return false
}

// Authorize is Can returning a FORBIDDEN error on deny.
func Authorize(actor *domain.User, action Action, res Resource) error {
	if actor == nil {
		return apperrors.NewUnauthorized("authentication required")
	}
	if !Can(actor, action, res) {
		return apperrors.NewForbidden(denyMessage(action))
	}
	return nil
}

func denyMessage(action Action) string {
	switch action {
	case ActionCreateTicket:
		return "only end-users can open tickets"
	case ActionAssign:
		return "only agents and admins can assign tickets"
	case ActionEditComment:
		return "can only edit your own comments"
	case ActionDeleteComment:
		return "can only delete your own comments"
	case ActionDeleteAttachment:
		return "can only delete your own attachments"
	}
	return "access denied"
}

// CheckCommentable rejects comments on closed tickets. It is a state rule,
// checked after Authorize, and never a permission failure.
func CheckCommentable(ticket *domain.Ticket) error {
	if ticket.IsClosed() {
		return apperrors.NewUnprocessable(apperrors.CodeTicketClosed, "cannot comment on closed tickets")
	}
	return nil
}

// CheckCommentEditable applies the closed-ticket and edit-window rules.
// Admins are exempt from both.
func CheckCommentEditable(actor *domain.User, comment *domain.Comment, ticket *domain.Ticket, now time.Time) error {
	if actor.IsAdmin() {
		return nil
	}
	if ticket.IsClosed() {
		return apperrors.NewUnprocessable(apperrors.CodeTicketClosed, "cannot update comments on closed tickets")
	}
	if !comment.EditableAt(now) {
		return apperrors.NewUnprocessable(apperrors.CodeEditWindowExpired, "can only edit comments within 1 hour")
	}
	return nil
}

// Scope is the visibility pre-filter applied to ticket listings. A nil
// field means no restriction on that column.
type Scope struct {
	// CreatorID restricts to tickets the actor opened.
	CreatorID *string
	// AssigneeOrUnassigned restricts to tickets assigned to this id or to nobody.
	AssigneeOrUnassigned *string
}

// VisibilityScope returns the listing filter equivalent to the view rule.
func VisibilityScope(actor *domain.User) Scope {
	id := actor.ID
	switch actor.Role {
	case domain.RoleAdmin:
		return Scope{}
	case domain.RoleAgent:
		return Scope{AssigneeOrUnassigned: &id}
	default:
		return Scope{CreatorID: &id}
	}
}
