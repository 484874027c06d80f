package messaging

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Resolver is the one surface the engagement core needs from the discussion
// feature: closing a project's open threads when its deliverable is
// approved. Thread creation and messaging live outside this core.
type Resolver struct {
	pool *pgxpool.Pool
}

func NewResolver(pool *pgxpool.Pool) *Resolver {
	return &Resolver{pool: pool}
}

// ResolveOpenThreads flips every open thread of the project to resolved and
// returns how many were closed. Resolving a project with no open threads is
// not an error.
func (r *Resolver) ResolveOpenThreads(ctx context.Context, projectID string) (int64, error) {
	const updateSQL = `
		UPDATE discussion_threads
		SET status = 'resolved',
		    resolved_at = now()
		WHERE project_id = $1 AND status = 'open'
	`

	tag, err := r.pool.Exec(ctx, updateSQL, projectID)
	if err != nil {
		return 0, fmt.Errorf("messaging: resolve open threads: %w", err)
	}
	return tag.RowsAffected(), nil
}
