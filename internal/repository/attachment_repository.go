package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// AttachmentRepository persists attachment metadata. File bytes live in a
// storage.BlobStore under StoragePath.
type AttachmentRepository interface {
	Create(ctx context.Context, attachment *domain.Attachment) error
	GetByID(ctx context.Context, id string) (*domain.Attachment, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Attachment, error)
	SoftDelete(ctx context.Context, id string) error
}

const attachmentColumns = `id, ticket_id, comment_id, user_id, file_name, file_path, mime_type, file_size,
               checksum, created_at, updated_at, deleted_at`

type attachmentRepository struct {
	pool *pgxpool.Pool
}

// NewAttachmentRepository constructs repository.
func NewAttachmentRepository(pool *pgxpool.Pool) AttachmentRepository {
	return &attachmentRepository{pool: pool}
}

func (r *attachmentRepository) Create(ctx context.Context, attachment *domain.Attachment) error {
	const query = `
        INSERT INTO attachments (ticket_id, comment_id, user_id, file_name, file_path, mime_type, file_size, checksum)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at, updated_at`
	return conn(ctx, r.pool).QueryRow(ctx, query,
		attachment.TicketID,
		attachment.CommentID,
		attachment.UploaderID,
		attachment.FileName,
		attachment.StoragePath,
		attachment.MimeType,
		attachment.SizeBytes,
		attachment.Checksum,
	).Scan(&attachment.ID, &attachment.CreatedAt, &attachment.UpdatedAt)
}

func (r *attachmentRepository) GetByID(ctx context.Context, id string) (*domain.Attachment, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	query := `SELECT ` + attachmentColumns + ` FROM attachments WHERE id=$1 AND deleted_at IS NULL`
	attachments, err := r.query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	if len(attachments) == 0 {
		return nil, pgx.ErrNoRows
	}
	return &attachments[0], nil
}

func (r *attachmentRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Attachment, error) {
	query := `SELECT ` + attachmentColumns + ` FROM attachments
        WHERE ticket_id=$1 AND deleted_at IS NULL ORDER BY created_at ASC, id ASC`
	return r.query(ctx, query, ticketID)
}

func (r *attachmentRepository) SoftDelete(ctx context.Context, id string) error {
	cmd, err := conn(ctx, r.pool).Exec(ctx, `UPDATE attachments SET deleted_at=NOW() WHERE id=$1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *attachmentRepository) query(ctx context.Context, query string, arg any) ([]domain.Attachment, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Attachment
	for rows.Next() {
		var attachment domain.Attachment
		if err := rows.Scan(
			&attachment.ID,
			&attachment.TicketID,
			&attachment.CommentID,
			&attachment.UploaderID,
			&attachment.FileName,
			&attachment.StoragePath,
			&attachment.MimeType,
			&attachment.SizeBytes,
			&attachment.Checksum,
			&attachment.CreatedAt,
			&attachment.UpdatedAt,
			&attachment.DeletedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, attachment)
	}
	return result, rows.Err()
}
