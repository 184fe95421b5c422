package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

const (
	// CommentMaxLength bounds comment text, counted in characters.
	CommentMaxLength = 1000
	// CommentEditWindow is how long after creation an author may edit.
	CommentEditWindow = time.Hour

	excerptLength = 100
)

// Comment is a message in a ticket thread.
type Comment struct {
	ID        string
	TicketID  string
	AuthorID  string
	Text      string
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time

	// Author is populated on reads that join the users table.
	Author *User
}

func (c *Comment) IsAuthor(userID string) bool {
	return c.AuthorID == userID
}

// EditableAt reports whether the edit window is still open at now. The
// boundary itself (exactly one hour) is inside the window.
func (c *Comment) EditableAt(now time.Time) bool {
	return now.Sub(c.CreatedAt) <= CommentEditWindow
}

// IsFromStaff reports whether the loaded author is an agent or admin.
func (c *Comment) IsFromStaff() bool {
	return c.Author != nil && c.Author.Role.IsStaff()
}

// Excerpt shortens the text for previews.
func (c *Comment) Excerpt() string {
	if utf8.RuneCountInString(c.Text) <= excerptLength {
		return c.Text
	}
	runes := []rune(c.Text)
	return string(runes[:excerptLength]) + "..."
}

// ValidateCommentText enforces the comment length rules.
func ValidateCommentText(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return apperrors.NewValidationError("invalid comment", map[string]any{"comment_text": "comment_text is required"})
	}
	if utf8.RuneCountInString(trimmed) > CommentMaxLength {
		return apperrors.NewValidationError("invalid comment", map[string]any{"comment_text": "comment_text must be at most 1000 characters"})
	}
	return nil
}
