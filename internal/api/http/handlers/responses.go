package handlers

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

func invalidPayload() error {
	return apperrors.NewValidationError("invalid payload", map[string]any{"body": "request body could not be parsed"})
}

func authResponse(result *service.AuthResult) dto.AuthResponse {
	return dto.AuthResponse{
		User:      userResponse(result.User),
		Token:     result.AccessToken,
		TokenType: "Bearer",
		ExpiresAt: result.Token.ExpiresAt,
	}
}

func userResponse(user *domain.User) dto.UserResponse {
	return dto.UserResponse{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Role:      user.Role,
		CreatedAt: user.CreatedAt,
	}
}

func userSummary(user *domain.User) *dto.UserSummary {
	if user == nil {
		return nil
	}
	return &dto.UserSummary{ID: user.ID, Name: user.Name, Email: user.Email, Role: user.Role}
}

func ticketResponse(ticket *domain.Ticket) dto.TicketResponse {
	return dto.TicketResponse{
		ID:          ticket.ID,
		Title:       ticket.Title,
		Description: ticket.Description,
		Category:    ticket.Category,
		Priority:    ticket.Priority,
		Status:      ticket.Status,
		CreatorID:   ticket.CreatorID,
		AssigneeID:  ticket.AssigneeID,
		Version:     ticket.Version,
		CreatedAt:   ticket.CreatedAt,
		UpdatedAt:   ticket.UpdatedAt,
	}
}

func ticketDetail(details *service.TicketDetails) dto.TicketDetailResponse {
	resp := dto.TicketDetailResponse{
		TicketResponse:     ticketResponse(details.Ticket),
		Creator:            userSummary(details.Creator),
		Assignee:           userSummary(details.Assignee),
		AllowedTransitions: domain.AllowedTransitions(details.Ticket.Status),
		Comments:           commentResponses(details.Comments),
		Attachments:        attachmentResponses(details.Attachments),
	}
	if elapsed, ok := details.Ticket.ResolutionTime(); ok {
		hours := math.Round(elapsed.Hours()*100) / 100
		resp.ResolutionTimeHours = &hours
	}
	return resp
}

func commentResponse(comment *domain.Comment) dto.CommentResponse {
	return dto.CommentResponse{
		ID:          comment.ID,
		TicketID:    comment.TicketID,
		UserID:      comment.AuthorID,
		CommentText: comment.Text,
		IsFromStaff: comment.IsFromStaff(),
		User:        userSummary(comment.Author),
		CreatedAt:   comment.CreatedAt,
		UpdatedAt:   comment.UpdatedAt,
	}
}

func commentResponses(comments []domain.Comment) []dto.CommentResponse {
	resp := make([]dto.CommentResponse, 0, len(comments))
	for i := range comments {
		resp = append(resp, commentResponse(&comments[i]))
	}
	return resp
}

func attachmentResponse(att *domain.Attachment) dto.AttachmentResponse {
	return dto.AttachmentResponse{
		ID:          att.ID,
		TicketID:    att.TicketID,
		CommentID:   att.CommentID,
		UserID:      att.UploaderID,
		FileName:    att.FileName,
		MimeType:    att.MimeType,
		SizeBytes:   att.SizeBytes,
		SizeHuman:   humanize.IBytes(uint64(att.SizeBytes)),
		Checksum:    att.Checksum,
		IsImage:     att.IsImage(),
		DownloadURL: fmt.Sprintf("/attachments/%s/download", att.ID),
		CreatedAt:   att.CreatedAt,
	}
}

func attachmentResponses(list []domain.Attachment) []dto.AttachmentResponse {
	resp := make([]dto.AttachmentResponse, 0, len(list))
	for i := range list {
		resp = append(resp, attachmentResponse(&list[i]))
	}
	return resp
}

func historyResponses(entries []domain.TicketHistory) []dto.TicketHistoryResponse {
	resp := make([]dto.TicketHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, dto.TicketHistoryResponse{
			ID:          entry.ID,
			ChangeType:  entry.ChangeType,
			ChangedByID: entry.ChangedByID,
			ChangedBy:   entry.ChangedByName,
			OldValue:    entry.OldValue,
			NewValue:    entry.NewValue,
			CreatedAt:   entry.CreatedAt,
		})
	}
	return resp
}

func pageMeta(page service.TicketPage) dto.PageMeta {
	return dto.PageMeta{
		CurrentPage: page.Page,
		PerPage:     page.PerPage,
		Total:       page.Total,
		LastPage:    page.LastPage(),
	}
}
