package bid

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrProjectNotFound is returned when the target project does not exist.
	ErrProjectNotFound = errors.New("bid: project not found")
	// ErrBidNotFound is returned when no bid row exists for the identifier.
	ErrBidNotFound = errors.New("bid: not found")
	// ErrDuplicateBid signals the (project, contractor) uniqueness constraint fired.
	ErrDuplicateBid = errors.New("bid: contractor already bid on this project")
	// ErrInvalidState signals a guarded write matched zero rows because the
	// project or bid left the expected state.
	ErrInvalidState = errors.New("bid: operation illegal for current status")
)

// ProjectState is the slice of the project row the ledger needs for guards.
type ProjectState struct {
	ClientID string
	Status   string
	Deadline time.Time
}

// Repository defines the data access required by the ledger service. The
// selection methods take the caller's transaction so the project lock and
// every bid write commit together.
type Repository interface {
	GetProjectState(ctx context.Context, projectID string) (ProjectState, error)
	InsertPending(ctx context.Context, row InsertRow) (Bid, error)
	RevisePrice(ctx context.Context, bidID, contractorID string, newPrice float64) (int64, error)

	LockProject(ctx context.Context, tx pgx.Tx, projectID string) (ProjectState, error)
	GetForProject(ctx context.Context, tx pgx.Tx, bidID, projectID string) (Bid, error)
	ApplySelection(ctx context.Context, tx pgx.Tx, projectID, bidID string) error

	ListForProject(ctx context.Context, projectID string) ([]Listing, error)
	ListByContractor(ctx context.Context, contractorID string) ([]Bid, error)
	GetByProjectAndContractor(ctx context.Context, projectID, contractorID string) (Bid, error)
}

// InsertRow contains write parameters for a new pending bid.
type InsertRow struct {
	ID           string
	ProjectID    string
	ContractorID string
	Price        float64
	Message      string
	ProposalURL  *string
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) GetProjectState(ctx context.Context, projectID string) (ProjectState, error) {
	const selectSQL = `SELECT client_id, status::text, deadline FROM projects WHERE id = $1`

	var st ProjectState
	if err := r.pool.QueryRow(ctx, selectSQL, projectID).Scan(&st.ClientID, &st.Status, &st.Deadline); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProjectState{}, ErrProjectNotFound
		}
		return ProjectState{}, fmt.Errorf("bid: get project state: %w", err)
	}
	return st, nil
}

// InsertPending inserts a pending bid only while the project is still open.
// The INSERT ... SELECT guard closes the race against a concurrent
// selection, and the (project_id, contractor_id) unique constraint closes
// the race between two bids from the same contractor.
func (r *PGRepository) InsertPending(ctx context.Context, row InsertRow) (Bid, error) {
	const insertSQL = `
		INSERT INTO bids (id, project_id, contractor_id, price, message, proposal_url, status)
		SELECT COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), p.id, $3, $4, $5, $6, 'pending'
		FROM projects p
		WHERE p.id = $2 AND p.status = 'open'
		RETURNING id, project_id, contractor_id, price, message, proposal_url, status::text, created_at
	`

	b, err := scanBid(r.pool.QueryRow(ctx, insertSQL,
		row.ID,
		row.ProjectID,
		row.ContractorID,
		row.Price,
		row.Message,
		row.ProposalURL,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bid{}, ErrInvalidState
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Bid{}, ErrDuplicateBid
		}
		return Bid{}, fmt.Errorf("bid: insert: %w", err)
	}
	return b, nil
}

// RevisePrice updates the price only while the bid is pending and owned by
// the caller. Returns the affected row count; zero means the guard did not
// match.
func (r *PGRepository) RevisePrice(ctx context.Context, bidID, contractorID string, newPrice float64) (int64, error) {
	const updateSQL = `
		UPDATE bids
		SET price = $3
		WHERE id = $1
		  AND contractor_id = $2
		  AND status = 'pending'
	`

	tag, err := r.pool.Exec(ctx, updateSQL, bidID, contractorID, newPrice)
	if err != nil {
		return 0, fmt.Errorf("bid: revise price: %w", err)
	}
	return tag.RowsAffected(), nil
}

// LockProject takes a row lock on the project so concurrent selection
// attempts serialize on it.
func (r *PGRepository) LockProject(ctx context.Context, tx pgx.Tx, projectID string) (ProjectState, error) {
	const lockSQL = `
		SELECT client_id, status::text, deadline
		FROM projects
		WHERE id = $1
		FOR UPDATE
	`

	var st ProjectState
	if err := tx.QueryRow(ctx, lockSQL, projectID).Scan(&st.ClientID, &st.Status, &st.Deadline); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProjectState{}, ErrProjectNotFound
		}
		return ProjectState{}, fmt.Errorf("bid: lock project: %w", err)
	}
	return st, nil
}

func (r *PGRepository) GetForProject(ctx context.Context, tx pgx.Tx, bidID, projectID string) (Bid, error) {
	const selectSQL = `
		SELECT id, project_id, contractor_id, price, message, proposal_url, status::text, created_at
		FROM bids
		WHERE id = $1 AND project_id = $2
	`

	b, err := scanBid(tx.QueryRow(ctx, selectSQL, bidID, projectID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bid{}, ErrBidNotFound
		}
		return Bid{}, fmt.Errorf("bid: get for project: %w", err)
	}
	return b, nil
}

// ApplySelection performs the three writes of a winning selection. Every
// update is guarded on the state it expects, so a concurrent selection that
// slipped past the lock still affects zero rows and surfaces as a state
// conflict instead of being silently ignored.
func (r *PGRepository) ApplySelection(ctx context.Context, tx pgx.Tx, projectID, bidID string) error {
	const projectSQL = `
		UPDATE projects
		SET status = 'in_progress',
		    accepted_bid_id = $2
		WHERE id = $1 AND status = 'open'
	`
	tag, err := tx.Exec(ctx, projectSQL, projectID, bidID)
	if err != nil {
		return fmt.Errorf("bid: mark project in progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}

	const winnerSQL = `
		UPDATE bids
		SET status = 'accepted'
		WHERE id = $1 AND project_id = $2 AND status = 'pending'
	`
	tag, err = tx.Exec(ctx, winnerSQL, bidID, projectID)
	if err != nil {
		return fmt.Errorf("bid: mark winner: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}

	const losersSQL = `
		UPDATE bids
		SET status = 'rejected'
		WHERE project_id = $1 AND id <> $2 AND status = 'pending'
	`
	if _, err := tx.Exec(ctx, losersSQL, projectID, bidID); err != nil {
		return fmt.Errorf("bid: reject losers: %w", err)
	}

	return nil
}

func (r *PGRepository) ListForProject(ctx context.Context, projectID string) ([]Listing, error) {
	const selectSQL = `
		SELECT b.id, b.project_id, b.contractor_id, b.price, b.message, b.proposal_url, b.status::text, b.created_at,
		       u.name
		FROM bids b
		JOIN users u ON u.id = b.contractor_id
		WHERE b.project_id = $1
		ORDER BY b.created_at ASC
	`

	rows, err := r.pool.Query(ctx, selectSQL, projectID)
	if err != nil {
		return nil, fmt.Errorf("bid: list for project: %w", err)
	}
	defer rows.Close()

	out := make([]Listing, 0, 8)
	for rows.Next() {
		var l Listing
		if err := rows.Scan(
			&l.ID, &l.ProjectID, &l.ContractorID, &l.Price, &l.Message, &l.ProposalURL, &l.Status, &l.CreatedAt,
			&l.ContractorName,
		); err != nil {
			return nil, fmt.Errorf("bid: scan listing: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bid: iterate listings: %w", err)
	}
	return out, nil
}

func (r *PGRepository) ListByContractor(ctx context.Context, contractorID string) ([]Bid, error) {
	const selectSQL = `
		SELECT id, project_id, contractor_id, price, message, proposal_url, status::text, created_at
		FROM bids
		WHERE contractor_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, selectSQL, contractorID)
	if err != nil {
		return nil, fmt.Errorf("bid: list by contractor: %w", err)
	}
	defer rows.Close()

	out := make([]Bid, 0, 8)
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("bid: scan contractor bid: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bid: iterate contractor bids: %w", err)
	}
	return out, nil
}

func (r *PGRepository) GetByProjectAndContractor(ctx context.Context, projectID, contractorID string) (Bid, error) {
	const selectSQL = `
		SELECT id, project_id, contractor_id, price, message, proposal_url, status::text, created_at
		FROM bids
		WHERE project_id = $1 AND contractor_id = $2
	`

	b, err := scanBid(r.pool.QueryRow(ctx, selectSQL, projectID, contractorID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bid{}, ErrBidNotFound
		}
		return Bid{}, fmt.Errorf("bid: get by project and contractor: %w", err)
	}
	return b, nil
}

func scanBid(row pgx.Row) (Bid, error) {
	var b Bid
	return b, row.Scan(
		&b.ID,
		&b.ProjectID,
		&b.ContractorID,
		&b.Price,
		&b.Message,
		&b.ProposalURL,
		&b.Status,
		&b.CreatedAt,
	)
}
