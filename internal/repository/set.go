package repository

import "github.com/jackc/pgx/v5/pgxpool"

// Set bundles one backend's repositories.
type Set struct {
	Transactor  Transactor
	Users       UserRepository
	Tickets     TicketRepository
	Comments    CommentRepository
	Attachments AttachmentRepository
	History     TicketHistoryRepository
	Stats       StatsRepository
}

// NewPostgresSet builds every repository over pool.
func NewPostgresSet(pool *pgxpool.Pool) Set {
	return Set{
		Transactor:  NewTransactor(pool),
		Users:       NewUserRepository(pool),
		Tickets:     NewTicketRepository(pool),
		Comments:    NewCommentRepository(pool),
		Attachments: NewAttachmentRepository(pool),
		History:     NewTicketHistoryRepository(pool),
		Stats:       NewStatsRepository(pool),
	}
}
