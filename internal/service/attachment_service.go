package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/policy"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/storage"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// AttachmentService stores files uploaded to tickets.
type AttachmentService struct {
	tickets     repository.TicketRepository
	comments    repository.CommentRepository
	attachments repository.AttachmentRepository
	blobs       storage.BlobStore
	maxBytes    int64
	allowed     map[string]struct{}
	logger      *zap.Logger
	now         func() time.Time
}

// AttachmentDependencies bundles collaborators for the attachment service.
type AttachmentDependencies struct {
	TicketRepo     repository.TicketRepository
	CommentRepo    repository.CommentRepository
	AttachmentRepo repository.AttachmentRepository
	Blobs          storage.BlobStore

	// MaxBytes defaults to 10 MiB and AllowedMimeTypes to
	// domain.DefaultAttachmentMimeTypes.
	MaxBytes         int64
	AllowedMimeTypes []string

	Logger *zap.Logger
	Now    func() time.Time
}

// UploadInput is a file received for a ticket.
type UploadInput struct {
	FileName string
	MimeType string
	// Size is the size declared by the client. The stored size is authoritative.
	Size      int64
	Content   io.Reader
	CommentID *string
}

func NewAttachmentService(deps AttachmentDependencies) *AttachmentService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	maxBytes := deps.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	types := deps.AllowedMimeTypes
	if len(types) == 0 {
		types = domain.DefaultAttachmentMimeTypes
	}
	allowed := make(map[string]struct{}, len(types))
	for _, t := range types {
		allowed[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	return &AttachmentService{
		tickets:     deps.TicketRepo,
		comments:    deps.CommentRepo,
		attachments: deps.AttachmentRepo,
		blobs:       deps.Blobs,
		maxBytes:    maxBytes,
		allowed:     allowed,
		logger:      logger,
		now:         now,
	}
}

// Upload stores a file against a visible ticket, optionally linked to one of
// its comments.
func (s *AttachmentService) Upload(ctx context.Context, actor *domain.User, ticketID string, input UploadInput) (*domain.Attachment, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.ActionUploadAttachment, policy.Resource{Ticket: ticket}); err != nil {
		return nil, err
	}

	fileName := filepath.Base(strings.TrimSpace(input.FileName))
	mimeType := normalizeMimeType(input.MimeType, fileName)
	if err := s.validateUpload(fileName, mimeType, input.Size); err != nil {
		return nil, err
	}
	if input.CommentID != nil {
		comment, err := s.comments.GetByID(ctx, *input.CommentID)
		if err != nil || comment.TicketID != ticket.ID {
			return nil, apperrors.NewValidationError("invalid attachment", map[string]any{"comment_id": "comment does not belong to this ticket"})
		}
	}

	key := fmt.Sprintf("attachments/%s/%s%s", s.now().UTC().Format("2006/01"), uuid.NewString(), strings.ToLower(filepath.Ext(fileName)))
	obj, err := s.blobs.Put(ctx, key, io.LimitReader(input.Content, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("store attachment: %w", err)
	}
	if obj.Size > s.maxBytes {
		s.discard(ctx, key)
		return nil, s.tooLarge()
	}

	attachment := &domain.Attachment{
		TicketID:    ticket.ID,
		CommentID:   input.CommentID,
		UploaderID:  actor.ID,
		FileName:    fileName,
		StoragePath: key,
		MimeType:    mimeType,
		SizeBytes:   obj.Size,
		Checksum:    obj.Checksum,
	}
	if err := s.attachments.Create(ctx, attachment); err != nil {
		s.discard(ctx, key)
		return nil, err
	}

	s.logger.Info("attachment uploaded",
		zap.String("ticket_id", ticket.ID),
		zap.String("attachment_id", attachment.ID),
		zap.String("size", humanize.IBytes(uint64(obj.Size))))
	return attachment, nil
}

// ListAttachments returns the live attachments of a visible ticket.
func (s *AttachmentService) ListAttachments(ctx context.Context, actor *domain.User, ticketID string) ([]domain.Attachment, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.ActionViewAttachment, policy.Resource{Ticket: ticket}); err != nil {
		return nil, err
	}
	list, err := s.attachments.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []domain.Attachment{}
	}
	return list, nil
}

// GetAttachment returns attachment metadata if the actor may see its ticket.
func (s *AttachmentService) GetAttachment(ctx context.Context, actor *domain.User, attachmentID string) (*domain.Attachment, error) {
	attachment, ticket, err := s.loadAttachment(ctx, attachmentID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(actor, policy.ActionViewAttachment, policy.Resource{Ticket: ticket, Attachment: attachment}); err != nil {
		return nil, err
	}
	return attachment, nil
}

// Open streams the stored bytes of an attachment obtained from GetAttachment.
func (s *AttachmentService) Open(ctx context.Context, attachment *domain.Attachment) (io.ReadCloser, error) {
	rc, err := s.blobs.Open(ctx, attachment.StoragePath)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.NewNotFound("attachment file", map[string]any{"id": attachment.ID})
	}
	return rc, err
}

// DeleteAttachment soft-deletes the record and then removes the stored file.
// Only the uploader or an admin may delete.
func (s *AttachmentService) DeleteAttachment(ctx context.Context, actor *domain.User, attachmentID string) error {
	attachment, ticket, err := s.loadAttachment(ctx, attachmentID)
	if err != nil {
		return err
	}
	if err := policy.Authorize(actor, policy.ActionDeleteAttachment, policy.Resource{Ticket: ticket, Attachment: attachment}); err != nil {
		return err
	}
	if err := s.attachments.SoftDelete(ctx, attachment.ID); err != nil {
		return notFound(err, "attachment", attachmentID)
	}
	s.discard(ctx, attachment.StoragePath)
	s.logger.Info("attachment deleted", zap.String("attachment_id", attachment.ID), zap.String("actor_id", actor.ID))
	return nil
}

func (s *AttachmentService) validateUpload(fileName, mimeType string, size int64) error {
	details := map[string]any{}
	if fileName == "" || fileName == "." || fileName == string(filepath.Separator) {
		details["file"] = "file is required"
	}
	if _, ok := s.allowed[mimeType]; !ok {
		details["file"] = fmt.Sprintf("file type %q is not allowed", mimeType)
	}
	if size > s.maxBytes {
		return s.tooLarge()
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid attachment", details)
	}
	return nil
}

func (s *AttachmentService) tooLarge() error {
	return apperrors.NewValidationError("invalid attachment", map[string]any{
		"file": fmt.Sprintf("file must not exceed %s", humanize.IBytes(uint64(s.maxBytes))),
	})
}

// discard removes a stored object, logging instead of failing.
func (s *AttachmentService) discard(ctx context.Context, key string) {
	if err := s.blobs.Delete(context.WithoutCancel(ctx), key); err != nil {
		s.logger.Warn("remove attachment file failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *AttachmentService) loadTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, notFound(err, "ticket", ticketID)
	}
	return ticket, nil
}

// loadAttachment resolves an attachment and its live ticket.
func (s *AttachmentService) loadAttachment(ctx context.Context, attachmentID string) (*domain.Attachment, *domain.Ticket, error) {
	attachment, err := s.attachments.GetByID(ctx, attachmentID)
	if err != nil {
		return nil, nil, notFound(err, "attachment", attachmentID)
	}
	ticket, err := s.tickets.GetByID(ctx, attachment.TicketID)
	if err != nil {
		return nil, nil, notFound(err, "attachment", attachmentID)
	}
	return attachment, ticket, nil
}

// normalizeMimeType strips parameters from the declared type and falls back
// to the file extension when none was sent.
func normalizeMimeType(declared, fileName string) string {
	declared = strings.TrimSpace(declared)
	if declared == "" || declared == "application/octet-stream" {
		if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(fileName))); byExt != "" {
			declared = byExt
		}
	}
	if mediaType, _, err := mime.ParseMediaType(declared); err == nil {
		return strings.ToLower(mediaType)
	}
	return strings.ToLower(declared)
}
