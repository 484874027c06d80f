package bid

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"gigflow/event"
)

var (
	// ErrValidation signals malformed input.
	ErrValidation = errors.New("bid: validation failed")
	// ErrForbidden signals the caller does not own the project.
	ErrForbidden = errors.New("bid: forbidden")
	// ErrDeadlineExpired signals the project deadline lapsed; new bids are
	// blocked even though the project stays open.
	ErrDeadlineExpired = errors.New("bid: project deadline expired")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OutboxWriter enqueues a notification inside the selection transaction.
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// Service owns the bid ledger: placing and revising bids while a project is
// open, and the winner-selection transaction that moves the project to
// in_progress.
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

// Place records a pending bid on an open project. One bid per contractor per
// project; bids on the deadline day are still accepted, the day after they
// are not.
func (s *Service) Place(ctx context.Context, params PlaceParams) (Bid, error) {
	if params.ProjectID == "" || params.ContractorID == "" {
		return Bid{}, fmt.Errorf("bid: missing project or contractor id")
	}
	if params.Price <= 0 {
		return Bid{}, fmt.Errorf("%w: price must be positive", ErrValidation)
	}

	state, err := s.repo.GetProjectState(ctx, params.ProjectID)
	if err != nil {
		return Bid{}, err
	}
	if state.Status != "open" {
		return Bid{}, ErrInvalidState
	}
	if dateOf(s.now()).After(dateOf(state.Deadline)) {
		return Bid{}, ErrDeadlineExpired
	}

	return s.repo.InsertPending(ctx, InsertRow{
		ID:           s.idGen(),
		ProjectID:    params.ProjectID,
		ContractorID: params.ContractorID,
		Price:        params.Price,
		Message:      params.Message,
		ProposalURL:  params.ProposalURL,
	})
}

// RevisePrice changes a pending bid's price and returns how many rows
// changed. Zero means the bid is not the caller's or no longer pending.
func (s *Service) RevisePrice(ctx context.Context, bidID, contractorID string, newPrice float64) (int64, error) {
	if bidID == "" || contractorID == "" {
		return 0, fmt.Errorf("bid: missing bid or contractor id")
	}
	if newPrice <= 0 {
		return 0, fmt.Errorf("%w: price must be positive", ErrValidation)
	}
	return s.repo.RevisePrice(ctx, bidID, contractorID, newPrice)
}

// SelectWinner accepts one bid and rejects every other bid of the project in
// a single transaction. The project row lock serializes concurrent
// selections: exactly one caller finds the project still open, the others
// observe ErrInvalidState with state unchanged.
func (s *Service) SelectWinner(ctx context.Context, params SelectParams) (Bid, error) {
	if params.ProjectID == "" || params.BidID == "" || params.ClientID == "" {
		return Bid{}, fmt.Errorf("bid: missing selection identifiers")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Bid{}, fmt.Errorf("bid: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	state, err := s.repo.LockProject(ctx, tx, params.ProjectID)
	if err != nil {
		return Bid{}, err
	}
	if state.ClientID != params.ClientID {
		return Bid{}, ErrForbidden
	}
	if state.Status != "open" {
		return Bid{}, ErrInvalidState
	}

	winner, err := s.repo.GetForProject(ctx, tx, params.BidID, params.ProjectID)
	if err != nil {
		return Bid{}, err
	}
	if winner.Status != StatusPending {
		return Bid{}, ErrInvalidState
	}

	if err := s.repo.ApplySelection(ctx, tx, params.ProjectID, params.BidID); err != nil {
		return Bid{}, err
	}

	if s.outbox != nil {
		payload := map[string]any{
			"project_id":    params.ProjectID,
			"bid_id":        params.BidID,
			"contractor_id": winner.ContractorID,
			"price":         winner.Price,
		}
		if err := s.outbox.Enqueue(ctx, tx, event.TopicBidSelected, payload); err != nil {
			return Bid{}, fmt.Errorf("bid: enqueue selection outbox: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Bid{}, fmt.Errorf("bid: commit selection: %w", err)
	}

	winner.Status = StatusAccepted
	return winner, nil
}

// ListForProject returns all bids on a project with contractor names,
// oldest first.
func (s *Service) ListForProject(ctx context.Context, projectID string) ([]Listing, error) {
	return s.repo.ListForProject(ctx, projectID)
}

// ListByContractor returns every bid a contractor has placed, newest first.
func (s *Service) ListByContractor(ctx context.Context, contractorID string) ([]Bid, error) {
	return s.repo.ListByContractor(ctx, contractorID)
}

// GetByProjectAndContractor returns the single bid a contractor holds on a
// project, if any.
func (s *Service) GetByProjectAndContractor(ctx context.Context, projectID, contractorID string) (Bid, error) {
	return s.repo.GetByProjectAndContractor(ctx, projectID, contractorID)
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
