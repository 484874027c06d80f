package reputation

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
	// ErrProjectNotFound is returned when the reviewed project does not exist.
	ErrProjectNotFound = errors.New("reputation: project not found")
	// ErrDuplicateReview signals the (project, reviewer) uniqueness constraint fired.
	ErrDuplicateReview = errors.New("reputation: reviewer already reviewed this project")
)

// ProjectReviewState is the slice of the project row the engine needs to
// admit or refuse a review.
type ProjectReviewState struct {
	ClientID             string
	Status               string
	CompletedAt          *time.Time
	AcceptedContractorID *string
}

// Repository defines the data access of the reputation engine. The write
// path takes the caller's transaction; the aggregates read without locking
// and tolerate staleness against concurrent writes.
type Repository interface {
	GetProjectReviewState(ctx context.Context, tx pgx.Tx, projectID string) (ProjectReviewState, error)
	InsertReview(ctx context.Context, tx pgx.Tx, row InsertRow) (Review, error)

	ReceivedAverages(ctx context.Context, userID string) (AverageRow, error)
	RankAmongRole(ctx context.Context, userID, role string) (rank, total int, err error)
	ActivityCounts(ctx context.Context, userID string, since time.Time) (recent, total int, err error)
	Leaderboard(ctx context.Context, role string, limit int) ([]LeaderboardEntry, error)
}

// InsertRow contains write parameters for a new review.
type InsertRow struct {
	ID            string
	ProjectID     string
	ReviewerID    string
	RevieweeID    string
	Direction     Direction
	Quality       int
	Communication int
	Timeliness    int
	Comment       string
}

// AverageRow carries the raw received-review aggregates of one user.
type AverageRow struct {
	Count         int
	Quality       float64
	Communication float64
	Timeliness    float64
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) GetProjectReviewState(ctx context.Context, tx pgx.Tx, projectID string) (ProjectReviewState, error) {
	const selectSQL = `
		SELECT p.client_id, p.status::text, p.completed_at, b.contractor_id
		FROM projects p
		LEFT JOIN bids b ON b.id = p.accepted_bid_id
		WHERE p.id = $1
	`

	var st ProjectReviewState
	if err := tx.QueryRow(ctx, selectSQL, projectID).Scan(&st.ClientID, &st.Status, &st.CompletedAt, &st.AcceptedContractorID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProjectReviewState{}, ErrProjectNotFound
		}
		return ProjectReviewState{}, fmt.Errorf("reputation: get project state: %w", err)
	}
	return st, nil
}

func (r *PGRepository) InsertReview(ctx context.Context, tx pgx.Tx, row InsertRow) (Review, error) {
	const insertSQL = `
		INSERT INTO reviews (id, project_id, reviewer_id, reviewee_id, direction, score_quality, score_communication, score_timeliness, comment)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, project_id, reviewer_id, reviewee_id, direction::text, score_quality, score_communication, score_timeliness, comment, created_at
	`

	var rev Review
	err := tx.QueryRow(ctx, insertSQL,
		row.ID,
		row.ProjectID,
		row.ReviewerID,
		row.RevieweeID,
		row.Direction,
		row.Quality,
		row.Communication,
		row.Timeliness,
		row.Comment,
	).Scan(
		&rev.ID,
		&rev.ProjectID,
		&rev.ReviewerID,
		&rev.RevieweeID,
		&rev.Direction,
		&rev.Quality,
		&rev.Communication,
		&rev.Timeliness,
		&rev.Comment,
		&rev.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Review{}, ErrDuplicateReview
		}
		return Review{}, fmt.Errorf("reputation: insert review: %w", err)
	}
	return rev, nil
}

func (r *PGRepository) ReceivedAverages(ctx context.Context, userID string) (AverageRow, error) {
	const selectSQL = `
		SELECT COUNT(*),
		       COALESCE(AVG(score_quality), 0),
		       COALESCE(AVG(score_communication), 0),
		       COALESCE(AVG(score_timeliness), 0)
		FROM reviews
		WHERE reviewee_id = $1
	`

	var row AverageRow
	if err := r.pool.QueryRow(ctx, selectSQL, userID).Scan(&row.Count, &row.Quality, &row.Communication, &row.Timeliness); err != nil {
		return AverageRow{}, fmt.Errorf("reputation: received averages: %w", err)
	}
	return row, nil
}

// RankAmongRole computes the user's competition rank among same-role users
// with at least one received review, ordered by descending average score.
// Ties share a rank. Returns rank 0 when the user is unranked.
func (r *PGRepository) RankAmongRole(ctx context.Context, userID, role string) (int, int, error) {
	const selectSQL = `
		WITH scored AS (
			SELECT rv.reviewee_id AS user_id,
			       AVG((rv.score_quality + rv.score_communication + rv.score_timeliness) / 3.0) AS avg_score
			FROM reviews rv
			JOIN users u ON u.id = rv.reviewee_id
			WHERE u.role = $2
			GROUP BY rv.reviewee_id
		),
		ranked AS (
			SELECT user_id,
			       RANK() OVER (ORDER BY avg_score DESC) AS rnk,
			       COUNT(*) OVER () AS total
			FROM scored
		)
		SELECT rnk, total FROM ranked WHERE user_id = $1
	`

	var rank, total int
	err := r.pool.QueryRow(ctx, selectSQL, userID, role).Scan(&rank, &total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("reputation: rank among role: %w", err)
	}
	return rank, total, nil
}

func (r *PGRepository) ActivityCounts(ctx context.Context, userID string, since time.Time) (int, int, error) {
	const selectSQL = `
		SELECT COUNT(*) FILTER (WHERE created_at >= $2),
		       COUNT(*)
		FROM reviews
		WHERE reviewee_id = $1
	`

	var recent, total int
	if err := r.pool.QueryRow(ctx, selectSQL, userID, since).Scan(&recent, &total); err != nil {
		return 0, 0, fmt.Errorf("reputation: activity counts: %w", err)
	}
	return recent, total, nil
}

// Leaderboard returns the top users of a role with the same ordering and
// rank semantics as RankAmongRole; within a tied rank, earlier first review
// wins for display stability.
func (r *PGRepository) Leaderboard(ctx context.Context, role string, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	const selectSQL = `
		WITH scored AS (
			SELECT rv.reviewee_id AS user_id,
			       AVG((rv.score_quality + rv.score_communication + rv.score_timeliness) / 3.0) AS avg_score,
			       COUNT(*) AS review_count,
			       MIN(rv.created_at) AS first_review_at
			FROM reviews rv
			JOIN users u ON u.id = rv.reviewee_id
			WHERE u.role = $1
			GROUP BY rv.reviewee_id
		)
		SELECT s.user_id,
		       u.name,
		       RANK() OVER (ORDER BY s.avg_score DESC) AS rnk,
		       s.avg_score,
		       s.review_count
		FROM scored s
		JOIN users u ON u.id = s.user_id
		ORDER BY s.avg_score DESC, s.first_review_at ASC, s.user_id ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, selectSQL, role, limit)
	if err != nil {
		return nil, fmt.Errorf("reputation: leaderboard: %w", err)
	}
	defer rows.Close()

	out := make([]LeaderboardEntry, 0, limit)
	for rows.Next() {
		var e LeaderboardEntry
		var avg float64
		if err := rows.Scan(&e.UserID, &e.Name, &e.Rank, &avg, &e.ReviewCount); err != nil {
			return nil, fmt.Errorf("reputation: scan leaderboard entry: %w", err)
		}
		e.Average = round1(avg)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reputation: iterate leaderboard: %w", err)
	}
	return out, nil
}
