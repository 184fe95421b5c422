package domain

import (
	"strings"
	"testing"
	"time"

	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

func TestIsValidTransition(t *testing.T) {
	cases := []struct {
		from, to TicketStatus
		want     bool
	}{
		{TicketStatusOpen, TicketStatusInProgress, true},
		{TicketStatusOpen, TicketStatusClosed, true},
		{TicketStatusOpen, TicketStatusResolved, false},
		{TicketStatusInProgress, TicketStatusResolved, true},
		{TicketStatusInProgress, TicketStatusClosed, true},
		{TicketStatusInProgress, TicketStatusOpen, false},
		{TicketStatusResolved, TicketStatusClosed, true},
		{TicketStatusResolved, TicketStatusInProgress, false},
		{TicketStatusClosed, TicketStatusOpen, false},
		{TicketStatusClosed, TicketStatusInProgress, false},
	}
	for _, tc := range cases {
		if got := IsValidTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("IsValidTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestSelfTransitionIsInvalid(t *testing.T) {
	for _, status := range TicketStatuses {
		if IsValidTransition(status, status) {
			t.Errorf("expected %s -> %s to be rejected", status, status)
		}
	}
}

func TestClosedIsTerminal(t *testing.T) {
	if got := AllowedTransitions(TicketStatusClosed); len(got) != 0 {
		t.Fatalf("expected no transitions out of closed, got %v", got)
	}
}

func TestChangeStatus(t *testing.T) {
	ticket := NewTicket("u1", "Printer", "It is on fire", TicketCategoryTechnical, TicketPriorityHigh)

	err := ticket.ChangeStatus(TicketStatusResolved)
	if !apperrors.HasCode(err, apperrors.CodeInvalidTransition) {
		t.Fatalf("expected INVALID_TRANSITION, got %v", err)
	}
	if ticket.Status != TicketStatusOpen {
		t.Fatalf("rejected transition must not mutate status, got %s", ticket.Status)
	}

	if err := ticket.ChangeStatus(TicketStatusInProgress); err != nil {
		t.Fatalf("open -> in_progress: %v", err)
	}
	if err := ticket.ChangeStatus(TicketStatusResolved); err != nil {
		t.Fatalf("in_progress -> resolved: %v", err)
	}

	err = ticket.ChangeStatus("reopened")
	if !apperrors.HasCode(err, apperrors.CodeValidationFailed) {
		t.Fatalf("expected VALIDATION_FAILED for unknown status, got %v", err)
	}
}

func TestAssignForcesInProgress(t *testing.T) {
	ticket := NewTicket("u1", "VPN", "Cannot connect", TicketCategoryTechnical, TicketPriorityMedium)
	ticket.Status = TicketStatusResolved
	agent := &User{ID: "a1", Role: RoleAgent}

	if err := ticket.AssignTo(agent); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if ticket.Status != TicketStatusInProgress {
		t.Errorf("expected in_progress after assign, got %s", ticket.Status)
	}
	if !ticket.IsAssignedTo("a1") {
		t.Errorf("expected assignee a1, got %v", ticket.AssigneeID)
	}

	ticket.Unassign()
	if ticket.IsAssigned() {
		t.Errorf("expected no assignee after unassign")
	}
	if ticket.Status != TicketStatusOpen {
		t.Errorf("expected open after unassign, got %s", ticket.Status)
	}
}

func TestAssignRejectsEndUser(t *testing.T) {
	ticket := NewTicket("u1", "VPN", "Cannot connect", TicketCategoryTechnical, TicketPriorityMedium)
	err := ticket.AssignTo(&User{ID: "u2", Role: RoleUser})
	if !apperrors.HasCode(err, apperrors.CodeInvalidAssignee) {
		t.Fatalf("expected INVALID_ASSIGNEE, got %v", err)
	}
	if ticket.IsAssigned() || ticket.Status != TicketStatusOpen {
		t.Fatalf("failed assignment must leave ticket untouched")
	}
}

func TestValidate(t *testing.T) {
	ticket := NewTicket("u1", "  ", "", "hardware", "urgent")
	err := ticket.Validate()
	domainErr := apperrors.ToDomainError(err)
	if domainErr == nil || domainErr.Code != apperrors.CodeValidationFailed {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, field := range []string{"title", "description", "category", "priority"} {
		if _, ok := domainErr.Details[field]; !ok {
			t.Errorf("expected detail for %s, got %v", field, domainErr.Details)
		}
	}

	long := NewTicket("u1", strings.Repeat("é", TitleMaxLength), "body", TicketCategoryOther, TicketPriorityLow)
	if err := long.Validate(); err != nil {
		t.Errorf("255 character title should be valid: %v", err)
	}
	long.Title += "x"
	if err := long.Validate(); err == nil {
		t.Errorf("256 character title should be rejected")
	}
}

func TestResolutionTime(t *testing.T) {
	created := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	ticket := &Ticket{Status: TicketStatusInProgress, CreatedAt: created, UpdatedAt: created.Add(5 * time.Hour)}
	if _, ok := ticket.ResolutionTime(); ok {
		t.Fatalf("in-progress tickets have no resolution time")
	}
	ticket.Status = TicketStatusClosed
	got, ok := ticket.ResolutionTime()
	if !ok || got != 5*time.Hour {
		t.Fatalf("expected 5h, got %v (%v)", got, ok)
	}
}

func TestCloneIsDeep(t *testing.T) {
	id := "a1"
	ticket := &Ticket{ID: "t1", AssigneeID: &id}
	clone := ticket.Clone()
	*clone.AssigneeID = "a2"
	if *ticket.AssigneeID != "a1" {
		t.Fatalf("clone shares assignee pointer")
	}
}
