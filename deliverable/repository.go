package deliverable

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrProjectNotFound is returned when the target project does not exist.
	ErrProjectNotFound = errors.New("deliverable: project not found")
	// ErrNotFound is returned when no deliverable row exists for the identifier.
	ErrNotFound = errors.New("deliverable: not found")
	// ErrInvalidState signals a guarded write matched zero rows because the
	// project or deliverable left the expected state.
	ErrInvalidState = errors.New("deliverable: operation illegal for current status")
)

// ProjectState is the slice of the project row the workflow needs: the
// owner, the current status, and who won the bid.
type ProjectState struct {
	ClientID             string
	Status               string
	AcceptedContractorID *string
}

// Repository defines the data access of the workflow. Every method takes
// the caller's transaction; submission and review are multi-row transitions
// that must commit atomically.
type Repository interface {
	LockProject(ctx context.Context, tx pgx.Tx, projectID string) (ProjectState, error)
	InsertSubmitted(ctx context.Context, tx pgx.Tx, row InsertRow) (Deliverable, error)
	MarkProjectSubmitted(ctx context.Context, tx pgx.Tx, projectID string) error
	ReviewDeliverable(ctx context.Context, tx pgx.Tx, deliverableID, projectID, reviewerID string, status Status) error
	CompleteProject(ctx context.Context, tx pgx.Tx, projectID string) error
	ReopenProject(ctx context.Context, tx pgx.Tx, projectID string) error

	ListForProject(ctx context.Context, projectID string) ([]Listing, error)
}

// InsertRow contains write parameters for a new submission.
type InsertRow struct {
	ID           string
	ProjectID    string
	ContractorID string
	FileURL      string
	Note         string
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// LockProject takes a row lock on the project and resolves the accepted
// contractor through the winning bid.
func (r *PGRepository) LockProject(ctx context.Context, tx pgx.Tx, projectID string) (ProjectState, error) {
	const lockSQL = `
		SELECT p.client_id, p.status::text, b.contractor_id
		FROM projects p
		LEFT JOIN bids b ON b.id = p.accepted_bid_id
		WHERE p.id = $1
		FOR UPDATE OF p
	`

	var st ProjectState
	if err := tx.QueryRow(ctx, lockSQL, projectID).Scan(&st.ClientID, &st.Status, &st.AcceptedContractorID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProjectState{}, ErrProjectNotFound
		}
		return ProjectState{}, fmt.Errorf("deliverable: lock project: %w", err)
	}
	return st, nil
}

func (r *PGRepository) InsertSubmitted(ctx context.Context, tx pgx.Tx, row InsertRow) (Deliverable, error) {
	const insertSQL = `
		INSERT INTO deliverables (id, project_id, contractor_id, file_url, note, status)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, 'submitted')
		RETURNING id, project_id, contractor_id, file_url, note, status::text, reviewed_by, reviewed_at, created_at
	`

	d, err := scanDeliverable(tx.QueryRow(ctx, insertSQL,
		row.ID,
		row.ProjectID,
		row.ContractorID,
		row.FileURL,
		row.Note,
	))
	if err != nil {
		return Deliverable{}, fmt.Errorf("deliverable: insert: %w", err)
	}
	return d, nil
}

// MarkProjectSubmitted advances the project to submitted from either of the
// two legal source states.
func (r *PGRepository) MarkProjectSubmitted(ctx context.Context, tx pgx.Tx, projectID string) error {
	const updateSQL = `
		UPDATE projects
		SET status = 'submitted'
		WHERE id = $1 AND status IN ('in_progress', 'review')
	`

	tag, err := tx.Exec(ctx, updateSQL, projectID)
	if err != nil {
		return fmt.Errorf("deliverable: mark project submitted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// ReviewDeliverable records the client's verdict on a submitted deliverable.
func (r *PGRepository) ReviewDeliverable(ctx context.Context, tx pgx.Tx, deliverableID, projectID, reviewerID string, status Status) error {
	const updateSQL = `
		UPDATE deliverables
		SET status = $4,
		    reviewed_by = $3,
		    reviewed_at = now()
		WHERE id = $1 AND project_id = $2 AND status = 'submitted'
	`

	tag, err := tx.Exec(ctx, updateSQL, deliverableID, projectID, reviewerID, status)
	if err != nil {
		return fmt.Errorf("deliverable: review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// CompleteProject moves the project to its terminal state and stamps the
// completion time.
func (r *PGRepository) CompleteProject(ctx context.Context, tx pgx.Tx, projectID string) error {
	const updateSQL = `
		UPDATE projects
		SET status = 'completed',
		    completed_at = now()
		WHERE id = $1 AND status = 'submitted'
	`

	tag, err := tx.Exec(ctx, updateSQL, projectID)
	if err != nil {
		return fmt.Errorf("deliverable: complete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

// ReopenProject returns a rejected project to in_progress so the contractor
// can resubmit.
func (r *PGRepository) ReopenProject(ctx context.Context, tx pgx.Tx, projectID string) error {
	const updateSQL = `
		UPDATE projects
		SET status = 'in_progress'
		WHERE id = $1 AND status = 'submitted'
	`

	tag, err := tx.Exec(ctx, updateSQL, projectID)
	if err != nil {
		return fmt.Errorf("deliverable: reopen project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

func (r *PGRepository) ListForProject(ctx context.Context, projectID string) ([]Listing, error) {
	const selectSQL = `
		SELECT d.id, d.project_id, d.contractor_id, d.file_url, d.note, d.status::text, d.reviewed_by, d.reviewed_at, d.created_at,
		       u.name
		FROM deliverables d
		JOIN users u ON u.id = d.contractor_id
		WHERE d.project_id = $1
		ORDER BY d.created_at DESC
	`

	rows, err := r.pool.Query(ctx, selectSQL, projectID)
	if err != nil {
		return nil, fmt.Errorf("deliverable: list for project: %w", err)
	}
	defer rows.Close()

	out := make([]Listing, 0, 4)
	for rows.Next() {
		var l Listing
		if err := rows.Scan(
			&l.ID, &l.ProjectID, &l.ContractorID, &l.FileURL, &l.Note, &l.Status, &l.ReviewedBy, &l.ReviewedAt, &l.CreatedAt,
			&l.ContractorName,
		); err != nil {
			return nil, fmt.Errorf("deliverable: scan listing: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("deliverable: iterate listings: %w", err)
	}
	return out, nil
}

func scanDeliverable(row pgx.Row) (Deliverable, error) {
	var d Deliverable
	return d, row.Scan(
		&d.ID,
		&d.ProjectID,
		&d.ContractorID,
		&d.FileURL,
		&d.Note,
		&d.Status,
		&d.ReviewedBy,
		&d.ReviewedAt,
		&d.CreatedAt,
	)
}
