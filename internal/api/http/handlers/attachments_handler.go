package handlers

import (
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// AttachmentsHandler exposes upload, listing, download and deletion.
type AttachmentsHandler struct {
	service *service.AttachmentService
}

func NewAttachmentsHandler(attachmentService *service.AttachmentService) *AttachmentsHandler {
	return &AttachmentsHandler{service: attachmentService}
}

// List GET /tickets/:id/attachments.
func (h *AttachmentsHandler) List(c *fiber.Ctx) error {
	user, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}
	list, err := h.service.ListAttachments(c.UserContext(), user, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": attachmentResponses(list)})
}

// Upload POST /tickets/:id/attachments with multipart field "file" and an
// optional "comment_id".
func (h *AttachmentsHandler) Upload(c *fiber.Ctx) error {
	user, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}
	header, err := c.FormFile("file")
	if err != nil {
		return apperrors.NewValidationError("invalid attachment", map[string]any{"file": "file is required"})
	}
	file, err := header.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()

	input := service.UploadInput{
		FileName: header.Filename,
		MimeType: header.Header.Get(fiber.HeaderContentType),
		Size:     header.Size,
		Content:  file,
	}
	if commentID := strings.TrimSpace(c.FormValue("comment_id")); commentID != "" {
		input.CommentID = &commentID
	}

	attachment, err := h.service.Upload(c.UserContext(), user, c.Params("id"), input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": attachmentResponse(attachment)})
}

// Download GET /attachments/:id/download. The checksum doubles as a strong
// ETag.
func (h *AttachmentsHandler) Download(c *fiber.Ctx) error {
	user, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}
	attachment, err := h.service.GetAttachment(c.UserContext(), user, c.Params("id"))
	if err != nil {
		return err
	}

	etag := `"` + attachment.Checksum + `"`
	c.Set(fiber.HeaderETag, etag)
	if match := c.Get(fiber.HeaderIfNoneMatch); match != "" && match == etag {
		return c.SendStatus(http.StatusNotModified)
	}

	content, err := h.service.Open(c.UserContext(), attachment)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, attachment.MimeType)
	c.Set(fiber.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": attachment.FileName}))
	return c.SendStream(content, int(attachment.SizeBytes))
}

// Delete DELETE /attachments/:id.
func (h *AttachmentsHandler) Delete(c *fiber.Ctx) error {
	user, err := auth.CurrentUser(c)
	if err != nil {
		return err
	}
	if err := h.service.DeleteAttachment(c.UserContext(), user, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}
