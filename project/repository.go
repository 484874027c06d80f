package project

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when no project row exists for the identifier.
	ErrNotFound = errors.New("project: not found")
)

// Repository defines the data access required by the lifecycle service.
type Repository interface {
	Create(ctx context.Context, params CreateRow) (Project, error)
	Update(ctx context.Context, params UpdateRow) (int64, error)
	GetByID(ctx context.Context, projectID string) (Detail, error)
	ListOpen(ctx context.Context) ([]OpenListing, error)
	ListByClient(ctx context.Context, clientID string) ([]ClientListing, error)
	ClientHistory(ctx context.Context, clientID string) ([]ClientHistoryEntry, error)
	ContractorHistory(ctx context.Context, contractorID string) ([]ContractorHistoryEntry, error)
}

// CreateRow contains write parameters for inserting a project.
type CreateRow struct {
	ID          string
	ClientID    string
	Title       string
	Description string
	Budget      float64
	Deadline    time.Time
}

// UpdateRow contains parameters for the guarded owner update.
type UpdateRow struct {
	ProjectID     string
	ClientID      string
	Title         string
	Description   string
	Budget        float64
	Deadline      time.Time
	AttachmentURL *string
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Create(ctx context.Context, params CreateRow) (Project, error) {
	const insertSQL = `
		INSERT INTO projects (id, client_id, title, description, budget, deadline, status)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, 'open')
		RETURNING id, client_id, title, description, budget, deadline, status::text, accepted_bid_id, attachment_url, created_at, completed_at
	`

	row := r.pool.QueryRow(ctx, insertSQL,
		params.ID,
		params.ClientID,
		params.Title,
		params.Description,
		params.Budget,
		params.Deadline,
	)

	p, err := scanProject(row)
	if err != nil {
		return Project{}, fmt.Errorf("project: create: %w", err)
	}
	return p, nil
}

// Update mutates the editable fields while the project is still open and
// owned by the caller. A zero row count means the guard did not match; the
// caller decides how to surface that.
func (r *PGRepository) Update(ctx context.Context, params UpdateRow) (int64, error) {
	const updateSQL = `
		UPDATE projects
		SET title = $3,
		    description = $4,
		    budget = $5,
		    deadline = $6,
		    attachment_url = $7
		WHERE id = $1
		  AND client_id = $2
		  AND status = 'open'
	`

	tag, err := r.pool.Exec(ctx, updateSQL,
		params.ProjectID,
		params.ClientID,
		params.Title,
		params.Description,
		params.Budget,
		params.Deadline,
		params.AttachmentURL,
	)
	if err != nil {
		return 0, fmt.Errorf("project: update: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PGRepository) GetByID(ctx context.Context, projectID string) (Detail, error) {
	const selectSQL = `
		SELECT p.id, p.client_id, p.title, p.description, p.budget, p.deadline, p.status::text,
		       p.accepted_bid_id, p.attachment_url, p.created_at, p.completed_at,
		       u.name,
		       b.contractor_id
		FROM projects p
		JOIN users u ON u.id = p.client_id
		LEFT JOIN bids b ON b.id = p.accepted_bid_id
		WHERE p.id = $1
	`

	var d Detail
	err := r.pool.QueryRow(ctx, selectSQL, projectID).Scan(
		&d.ID,
		&d.ClientID,
		&d.Title,
		&d.Description,
		&d.Budget,
		&d.Deadline,
		&d.Status,
		&d.AcceptedBidID,
		&d.AttachmentURL,
		&d.CreatedAt,
		&d.CompletedAt,
		&d.ClientName,
		&d.AcceptedContractorID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Detail{}, ErrNotFound
		}
		return Detail{}, fmt.Errorf("project: get by id: %w", err)
	}
	return d, nil
}

func (r *PGRepository) ListOpen(ctx context.Context) ([]OpenListing, error) {
	const selectSQL = `
		SELECT p.id, p.client_id, p.title, p.description, p.budget, p.deadline, p.status::text,
		       p.accepted_bid_id, p.attachment_url, p.created_at, p.completed_at,
		       u.name,
		       (SELECT COUNT(*) FROM bids WHERE project_id = p.id) AS bid_count
		FROM projects p
		JOIN users u ON u.id = p.client_id
		WHERE p.status = 'open'
		ORDER BY p.created_at DESC
	`

	rows, err := r.pool.Query(ctx, selectSQL)
	if err != nil {
		return nil, fmt.Errorf("project: list open: %w", err)
	}
	defer rows.Close()

	out := make([]OpenListing, 0, 16)
	for rows.Next() {
		var l OpenListing
		if err := rows.Scan(
			&l.ID, &l.ClientID, &l.Title, &l.Description, &l.Budget, &l.Deadline, &l.Status,
			&l.AcceptedBidID, &l.AttachmentURL, &l.CreatedAt, &l.CompletedAt,
			&l.ClientName, &l.BidCount,
		); err != nil {
			return nil, fmt.Errorf("project: scan open listing: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("project: iterate open listings: %w", err)
	}
	return out, nil
}

func (r *PGRepository) ListByClient(ctx context.Context, clientID string) ([]ClientListing, error) {
	const selectSQL = `
		SELECT p.id, p.client_id, p.title, p.description, p.budget, p.deadline, p.status::text,
		       p.accepted_bid_id, p.attachment_url, p.created_at, p.completed_at,
		       u.name,
		       b.price,
		       (SELECT COUNT(*) FROM bids WHERE project_id = p.id) AS bid_count
		FROM projects p
		LEFT JOIN bids b ON b.id = p.accepted_bid_id
		LEFT JOIN users u ON u.id = b.contractor_id
		WHERE p.client_id = $1
		ORDER BY p.created_at DESC
	`

	rows, err := r.pool.Query(ctx, selectSQL, clientID)
	if err != nil {
		return nil, fmt.Errorf("project: list by client: %w", err)
	}
	defer rows.Close()

	out := make([]ClientListing, 0, 16)
	for rows.Next() {
		var l ClientListing
		if err := rows.Scan(
			&l.ID, &l.ClientID, &l.Title, &l.Description, &l.Budget, &l.Deadline, &l.Status,
			&l.AcceptedBidID, &l.AttachmentURL, &l.CreatedAt, &l.CompletedAt,
			&l.ContractorName, &l.FinalPrice, &l.BidCount,
		); err != nil {
			return nil, fmt.Errorf("project: scan client listing: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("project: iterate client listings: %w", err)
	}
	return out, nil
}

// ClientHistory returns the client's completed engagements, most recent
// completion first.
func (r *PGRepository) ClientHistory(ctx context.Context, clientID string) ([]ClientHistoryEntry, error) {
	const selectSQL = `
		SELECT p.id, p.title, p.budget, b.price, b.contractor_id, u.name, p.completed_at
		FROM projects p
		JOIN bids b ON b.id = p.accepted_bid_id
		JOIN users u ON u.id = b.contractor_id
		WHERE p.client_id = $1 AND p.status = 'completed'
		ORDER BY p.completed_at DESC
	`

	rows, err := r.pool.Query(ctx, selectSQL, clientID)
	if err != nil {
		return nil, fmt.Errorf("project: client history: %w", err)
	}
	defer rows.Close()

	out := make([]ClientHistoryEntry, 0, 16)
	for rows.Next() {
		var e ClientHistoryEntry
		if err := rows.Scan(
			&e.ProjectID, &e.Title, &e.Budget, &e.FinalPrice, &e.ContractorID, &e.ContractorName, &e.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("project: scan client history entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("project: iterate client history: %w", err)
	}
	return out, nil
}

func (r *PGRepository) ContractorHistory(ctx context.Context, contractorID string) ([]ContractorHistoryEntry, error) {
	const selectSQL = `
		SELECT p.id, p.title, p.description, p.budget, p.deadline, p.status::text, p.completed_at,
		       b.id, b.price, b.status::text, b.created_at,
		       u.name
		FROM bids b
		JOIN projects p ON p.id = b.project_id
		JOIN users u ON u.id = p.client_id
		WHERE b.contractor_id = $1
		ORDER BY b.created_at DESC
	`

	rows, err := r.pool.Query(ctx, selectSQL, contractorID)
	if err != nil {
		return nil, fmt.Errorf("project: contractor history: %w", err)
	}
	defer rows.Close()

	out := make([]ContractorHistoryEntry, 0, 16)
	for rows.Next() {
		var e ContractorHistoryEntry
		if err := rows.Scan(
			&e.ProjectID, &e.Title, &e.Description, &e.Budget, &e.Deadline, &e.ProjectStatus, &e.CompletedAt,
			&e.BidID, &e.Price, &e.BidStatus, &e.BidCreatedAt,
			&e.ClientName,
		); err != nil {
			return nil, fmt.Errorf("project: scan history entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("project: iterate history: %w", err)
	}
	return out, nil
}

func scanProject(row pgx.Row) (Project, error) {
	var p Project
	return p, row.Scan(
		&p.ID,
		&p.ClientID,
		&p.Title,
		&p.Description,
		&p.Budget,
		&p.Deadline,
		&p.Status,
		&p.AcceptedBidID,
		&p.AttachmentURL,
		&p.CreatedAt,
		&p.CompletedAt,
	)
}
