package dto

import "time"

// CommentRequest payload for creating or editing a comment.
type CommentRequest struct {
	CommentText string `json:"comment_text"`
}

// CommentResponse is one thread entry.
type CommentResponse struct {
	ID          string       `json:"id"`
	TicketID    string       `json:"ticket_id"`
	UserID      string       `json:"user_id"`
	CommentText string       `json:"comment_text"`
	IsFromStaff bool         `json:"is_from_staff"`
	User        *UserSummary `json:"user,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// AttachmentResponse metadata.
type AttachmentResponse struct {
	ID          string    `json:"id"`
	TicketID    string    `json:"ticket_id"`
	CommentID   *string   `json:"comment_id"`
	UserID      string    `json:"user_id"`
	FileName    string    `json:"file_name"`
	MimeType    string    `json:"mime_type"`
	SizeBytes   int64     `json:"file_size"`
	SizeHuman   string    `json:"size_human"`
	Checksum    string    `json:"checksum"`
	IsImage     bool      `json:"is_image"`
	DownloadURL string    `json:"download_url"`
	CreatedAt   time.Time `json:"created_at"`
}
