package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// AssignmentHandler exposes manual and automatic assignment. Responses carry
// the ticket with creator and assignee resolved.
type AssignmentHandler struct {
	service *service.AssignmentService
	tickets *service.TicketService
}

func NewAssignmentHandler(assignmentService *service.AssignmentService, ticketService *service.TicketService) *AssignmentHandler {
	return &AssignmentHandler{service: assignmentService, tickets: ticketService}
}

// Assign POST /tickets/:id/assign.
func (h *AssignmentHandler) Assign(c *fiber.Ctx) error {
	user, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}
	var req dto.AssignTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}
	if strings.TrimSpace(req.AgentID) == "" {
		return apperrors.NewValidationError("invalid assignment", map[string]any{"agent_id": "agent_id is required"})
	}
	ticket, err := h.service.AssignTicket(c.UserContext(), user, c.Params("id"), strings.TrimSpace(req.AgentID))
	if err != nil {
		return err
	}
	return h.respond(c, ticket)
}

// AutoAssign POST /tickets/:id/auto-assign.
func (h *AssignmentHandler) AutoAssign(c *fiber.Ctx) error {
	user, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.AutoAssignTicket(c.UserContext(), user, c.Params("id"))
	if err != nil {
		return err
	}
	return h.respond(c, ticket)
}

// Unassign POST /tickets/:id/unassign.
func (h *AssignmentHandler) Unassign(c *fiber.Ctx) error {
	user, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.UnassignTicket(c.UserContext(), user, c.Params("id"))
	if err != nil {
		return err
	}
	return h.respond(c, ticket)
}

func (h *AssignmentHandler) respond(c *fiber.Ctx, ticket *domain.Ticket) error {
	details, err := h.tickets.Details(c.UserContext(), ticket)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(details)})
}
