package domain

import (
	"strings"
	"time"
)

// Attachment stores metadata for a file uploaded to a ticket or comment.
type Attachment struct {
	ID          string
	TicketID    string
	CommentID   *string
	UploaderID  string
	FileName    string
	StoragePath string
	MimeType    string
	SizeBytes   int64
	// Checksum is the hex BLAKE3 digest of the stored bytes.
	Checksum  string
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// DefaultAttachmentMimeTypes is the upload allow-list used when none is configured.
var DefaultAttachmentMimeTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"text/plain",
	"application/zip",
	"application/x-rar-compressed",
}

func (a *Attachment) IsImage() bool {
	return strings.HasPrefix(a.MimeType, "image/")
}

func (a *Attachment) IsUploadedBy(userID string) bool {
	return a.UploaderID == userID
}
