package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// StatsScope narrows aggregate counts. A nil field means no restriction.
type StatsScope struct {
	CreatorID  *string
	AssigneeID *string
}

// TicketCounts is a breakdown of live tickets per dimension.
type TicketCounts struct {
	Total      int
	ByStatus   map[string]int
	ByPriority map[string]int
	ByCategory map[string]int
}

// StatsRepository computes dashboard aggregates.
type StatsRepository interface {
	TicketCounts(ctx context.Context, scope StatsScope) (TicketCounts, error)
	CountUsersByRole(ctx context.Context) (map[string]int, error)
}

type statsRepository struct {
	pool *pgxpool.Pool
}

// NewStatsRepository constructs repository.
func NewStatsRepository(pool *pgxpool.Pool) StatsRepository {
	return &statsRepository{pool: pool}
}

func (r *statsRepository) TicketCounts(ctx context.Context, scope StatsScope) (TicketCounts, error) {
	where := "deleted_at IS NULL"
	args := []any{}
	if scope.CreatorID != nil {
		args = append(args, *scope.CreatorID)
		where += fmt.Sprintf(" AND creator_id=$%d", len(args))
	}
	if scope.AssigneeID != nil {
		args = append(args, *scope.AssigneeID)
		where += fmt.Sprintf(" AND assignee_id=$%d", len(args))
	}

	counts := TicketCounts{
		ByStatus:   map[string]int{},
		ByPriority: map[string]int{},
		ByCategory: map[string]int{},
	}

	query := `
        SELECT status, priority, category, COUNT(*)
        FROM tickets WHERE ` + where + `
        GROUP BY status, priority, category`
	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return counts, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status, priority, category string
			n                          int
		)
		if err := rows.Scan(&status, &priority, &category, &n); err != nil {
			return counts, err
		}
		counts.Total += n
		counts.ByStatus[status] += n
		counts.ByPriority[priority] += n
		counts.ByCategory[category] += n
	}
	return counts, rows.Err()
}

func (r *statsRepository) CountUsersByRole(ctx context.Context) (map[string]int, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `SELECT role, COUNT(*) FROM users WHERE deleted_at IS NULL GROUP BY role`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := map[string]int{}
	for rows.Next() {
		var (
			role string
			n    int
		)
		if err := rows.Scan(&role, &n); err != nil {
			return nil, err
		}
		result[role] = n
	}
	return result, rows.Err()
}
