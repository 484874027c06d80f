package reputation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"gigflow/event"
)

// ReviewWindow is how long after completion either party may file a review.
// Past the window the project and its history are permanently read-only.
const ReviewWindow = 7 * 24 * time.Hour

// recencyWindow bounds the activity-score numerator.
const recencyWindow = 30 * 24 * time.Hour

var (
	// ErrValidation signals malformed input, e.g. sub-scores outside 1..5.
	ErrValidation = errors.New("reputation: validation failed")
	// ErrNotCompleted signals the project has not reached its terminal state.
	ErrNotCompleted = errors.New("reputation: project not completed")
	// ErrWindowExpired signals the review window has closed.
	ErrWindowExpired = errors.New("reputation: review window expired")
	// ErrNoCounterparty signals reviewer and reviewee are not the project's
	// client/accepted-contractor pair.
	ErrNoCounterparty = errors.New("reputation: reviewer and reviewee are not project counterparties")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OutboxWriter enqueues a notification inside the record transaction.
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// Service records post-completion reviews and computes the derived
// reputation data: aggregate scores, rank, percentile, recency-weighted
// activity and the role leaderboard.
type Service struct {
	pool   TxBeginner
	repo   Repository
	outbox OutboxWriter
	idGen  func() string
	now    func() time.Time
}

func NewService(pool TxBeginner, repo Repository) *Service {
	return &Service{
		pool:  pool,
		repo:  repo,
		idGen: func() string { return uuid.NewString() },
		now:   time.Now,
	}
}

func (s *Service) WithOutbox(outbox OutboxWriter) *Service {
	s.outbox = outbox
	return s
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGen = gen
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Record files one party's review of the other on a completed project. All
// preconditions are checked before the insert; any failure aborts with no
// partial writes.
func (s *Service) Record(ctx context.Context, params RecordParams) (Review, error) {
	if params.ProjectID == "" || params.ReviewerID == "" || params.RevieweeID == "" {
		return Review{}, fmt.Errorf("reputation: missing review identifiers")
	}
	if params.Direction != DirectionClientToContractor && params.Direction != DirectionContractorToClient {
		return Review{}, fmt.Errorf("%w: unknown direction %q", ErrValidation, params.Direction)
	}
	for _, score := range []int{params.Quality, params.Communication, params.Timeliness} {
		if score < 1 || score > 5 {
			return Review{}, fmt.Errorf("%w: sub-scores must be between 1 and 5", ErrValidation)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Review{}, fmt.Errorf("reputation: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	state, err := s.repo.GetProjectReviewState(ctx, tx, params.ProjectID)
	if err != nil {
		return Review{}, err
	}
	if state.Status != "completed" || state.CompletedAt == nil {
		return Review{}, ErrNotCompleted
	}
	if s.now().After(state.CompletedAt.Add(ReviewWindow)) {
		return Review{}, ErrWindowExpired
	}
	if err := checkCounterparties(state, params); err != nil {
		return Review{}, err
	}

	rev, err := s.repo.InsertReview(ctx, tx, InsertRow{
		ID:            s.idGen(),
		ProjectID:     params.ProjectID,
		ReviewerID:    params.ReviewerID,
		RevieweeID:    params.RevieweeID,
		Direction:     params.Direction,
		Quality:       params.Quality,
		Communication: params.Communication,
		Timeliness:    params.Timeliness,
		Comment:       params.Comment,
	})
	if err != nil {
		return Review{}, err
	}

	if s.outbox != nil {
		payload := map[string]any{
			"review_id":   rev.ID,
			"project_id":  rev.ProjectID,
			"reviewee_id": rev.RevieweeID,
			"direction":   rev.Direction,
		}
		if err := s.outbox.Enqueue(ctx, tx, event.TopicReviewRecorded, payload); err != nil {
			return Review{}, fmt.Errorf("reputation: enqueue review outbox: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Review{}, fmt.Errorf("reputation: commit review: %w", err)
	}

	return rev, nil
}

// checkCounterparties verifies the reviewer is one of the project's two
// parties, the reviewee is the counterpart, and the direction matches.
func checkCounterparties(state ProjectReviewState, params RecordParams) error {
	if state.AcceptedContractorID == nil {
		return ErrNoCounterparty
	}
	contractorID := *state.AcceptedContractorID

	switch params.ReviewerID {
	case state.ClientID:
		if params.RevieweeID != contractorID {
			return ErrNoCounterparty
		}
		if params.Direction != DirectionClientToContractor {
			return fmt.Errorf("%w: direction does not match reviewer role", ErrValidation)
		}
	case contractorID:
		if params.RevieweeID != state.ClientID {
			return ErrNoCounterparty
		}
		if params.Direction != DirectionContractorToClient {
			return fmt.Errorf("%w: direction does not match reviewer role", ErrValidation)
		}
	default:
		return ErrNoCounterparty
	}
	return nil
}

// Stats returns the received-review aggregates for a user. A user with no
// reviews gets zeros, not an error.
func (s *Service) Stats(ctx context.Context, userID string) (Stats, error) {
	row, err := s.repo.ReceivedAverages(ctx, userID)
	if err != nil {
		return Stats{}, err
	}
	if row.Count == 0 {
		return Stats{}, nil
	}
	return Stats{
		Count:         row.Count,
		Overall:       overallScore(row.Quality, row.Communication, row.Timeliness),
		Quality:       round1(row.Quality),
		Communication: round1(row.Communication),
		Timeliness:    round1(row.Timeliness),
	}, nil
}

// Ranking places the user among same-role users with at least one received
// review. Rank is computed per request; nothing is persisted.
func (s *Service) Ranking(ctx context.Context, userID, role string) (Ranking, error) {
	rank, total, err := s.repo.RankAmongRole(ctx, userID, role)
	if err != nil {
		return Ranking{}, err
	}
	if rank == 0 {
		return Ranking{Rank: nil, Percentile: 0, Total: total}, nil
	}
	return Ranking{
		Rank:       &rank,
		Percentile: percentile(rank, total),
		Total:      total,
	}, nil
}

// ActivityScore is the trailing-30-day share of the user's all-time
// received reviews, as a 0-100 integer.
func (s *Service) ActivityScore(ctx context.Context, userID string) (int, error) {
	recent, total, err := s.repo.ActivityCounts(ctx, userID, s.now().Add(-recencyWindow))
	if err != nil {
		return 0, err
	}
	return activityScore(recent, total), nil
}

// Leaderboard returns the top users of a role, consistent with Ranking in
// ordering and tie-break.
func (s *Service) Leaderboard(ctx context.Context, role string, limit int) ([]LeaderboardEntry, error) {
	return s.repo.Leaderboard(ctx, role, limit)
}
