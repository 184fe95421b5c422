package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// CommentRepository manages ticket thread comments.
type CommentRepository interface {
	Create(ctx context.Context, comment *domain.Comment) error
	UpdateText(ctx context.Context, comment *domain.Comment) error
	SoftDelete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.Comment, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Comment, error)
}

type commentRepository struct {
	pool *pgxpool.Pool
}

// NewCommentRepository builds repository.
func NewCommentRepository(pool *pgxpool.Pool) CommentRepository {
	return &commentRepository{pool: pool}
}

func (r *commentRepository) Create(ctx context.Context, comment *domain.Comment) error {
	const query = `
        INSERT INTO comments (ticket_id, user_id, comment_text)
        VALUES ($1,$2,$3)
        RETURNING id, created_at, updated_at`
	return conn(ctx, r.pool).QueryRow(ctx, query,
		comment.TicketID,
		comment.AuthorID,
		comment.Text,
	).Scan(&comment.ID, &comment.CreatedAt, &comment.UpdatedAt)
}

func (r *commentRepository) UpdateText(ctx context.Context, comment *domain.Comment) error {
	const query = `
        UPDATE comments SET comment_text=$1, updated_at=NOW()
        WHERE id=$2 AND deleted_at IS NULL
        RETURNING updated_at`
	return conn(ctx, r.pool).QueryRow(ctx, query, comment.Text, comment.ID).Scan(&comment.UpdatedAt)
}

func (r *commentRepository) SoftDelete(ctx context.Context, id string) error {
	cmd, err := conn(ctx, r.pool).Exec(ctx, `UPDATE comments SET deleted_at=NOW() WHERE id=$1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *commentRepository) GetByID(ctx context.Context, id string) (*domain.Comment, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	comments, err := r.list(ctx, `c.id=$1`, id)
	if err != nil {
		return nil, err
	}
	if len(comments) == 0 {
		return nil, pgx.ErrNoRows
	}
	return &comments[0], nil
}

func (r *commentRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Comment, error) {
	return r.list(ctx, `c.ticket_id=$1`, ticketID)
}

func (r *commentRepository) list(ctx context.Context, where string, arg any) ([]domain.Comment, error) {
	query := `
        SELECT c.id, c.ticket_id, c.user_id, c.comment_text, c.created_at, c.updated_at,
               u.id, u.name, u.email, u.role
        FROM comments c
        LEFT JOIN users u ON u.id = c.user_id
        WHERE ` + where + ` AND c.deleted_at IS NULL
        ORDER BY c.created_at ASC, c.id ASC`
	rows, err := conn(ctx, r.pool).Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Comment
	for rows.Next() {
		var (
			comment     domain.Comment
			authorID    *string
			authorName  *string
			authorEmail *string
			authorRole  *domain.Role
		)
		if err := rows.Scan(
			&comment.ID,
			&comment.TicketID,
			&comment.AuthorID,
			&comment.Text,
			&comment.CreatedAt,
			&comment.UpdatedAt,
			&authorID,
			&authorName,
			&authorEmail,
			&authorRole,
		); err != nil {
			return nil, err
		}
		if authorID != nil {
			comment.Author = &domain.User{ID: *authorID}
			if authorName != nil {
				comment.Author.Name = *authorName
			}
			if authorEmail != nil {
				comment.Author.Email = *authorEmail
			}
			if authorRole != nil {
				comment.Author.Role = *authorRole
			}
		}
		result = append(result, comment)
	}
	return result, rows.Err()
}
