package deliverable

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"gigflow/event"
)

var (
	// ErrValidation signals malformed input.
	ErrValidation = errors.New("deliverable: validation failed")
	// ErrForbidden signals the caller is neither the owning client nor the
	// accepted contractor for the attempted operation.
	ErrForbidden = errors.New("deliverable: forbidden")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OutboxWriter enqueues a notification inside the approval transaction.
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// ThreadResolver is the messaging collaborator. It is invoked after the
// approval transaction commits, never inside it, so the state machine stays
// testable in isolation.
type ThreadResolver interface {
	ResolveOpenThreads(ctx context.Context, projectID string) (int64, error)
}

// Service drives the deliverable workflow and the project status moves that
// follow from it.
type Service struct {
	pool    TxBeginner
	repo    Repository
	outbox  OutboxWriter
	threads ThreadResolver
	idGen   func() string
}

func NewService(pool TxBeginner, repo Repository) *Service {
	return &Service{
		pool:  pool,
		repo:  repo,
		idGen: func() string { return uuid.NewString() },
	}
}

func (s *Service) WithOutbox(outbox OutboxWriter) *Service {
	s.outbox = outbox
	return s
}

func (s *Service) WithThreadResolver(threads ThreadResolver) *Service {
	s.threads = threads
	return s
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGen = gen
	return s
}

// Submit records a deliverable and advances the project to submitted. Legal
// only for the accepted contractor while the project is in_progress or
// review (a rejected deliverable permits resubmission).
func (s *Service) Submit(ctx context.Context, params SubmitParams) (Deliverable, error) {
	if params.ProjectID == "" || params.ContractorID == "" {
		return Deliverable{}, fmt.Errorf("deliverable: missing project or contractor id")
	}
	if strings.TrimSpace(params.FileURL) == "" {
		return Deliverable{}, fmt.Errorf("%w: file reference required", ErrValidation)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Deliverable{}, fmt.Errorf("deliverable: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	state, err := s.repo.LockProject(ctx, tx, params.ProjectID)
	if err != nil {
		return Deliverable{}, err
	}
	if state.Status != "in_progress" && state.Status != "review" {
		return Deliverable{}, ErrInvalidState
	}
	if state.AcceptedContractorID == nil || *state.AcceptedContractorID != params.ContractorID {
		return Deliverable{}, ErrForbidden
	}

	d, err := s.repo.InsertSubmitted(ctx, tx, InsertRow{
		ID:           s.idGen(),
		ProjectID:    params.ProjectID,
		ContractorID: params.ContractorID,
		FileURL:      params.FileURL,
		Note:         params.Note,
	})
	if err != nil {
		return Deliverable{}, err
	}

	if err := s.repo.MarkProjectSubmitted(ctx, tx, params.ProjectID); err != nil {
		return Deliverable{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Deliverable{}, fmt.Errorf("deliverable: commit submit: %w", err)
	}

	return d, nil
}

// Approve marks the deliverable accepted and completes the project in one
// transaction. After commit, the messaging collaborator is told to resolve
// the project's open discussion threads.
func (s *Service) Approve(ctx context.Context, projectID, deliverableID, clientID string) error {
	if err := s.review(ctx, projectID, deliverableID, clientID, StatusAccepted); err != nil {
		return err
	}

	if s.threads != nil {
		if _, err := s.threads.ResolveOpenThreads(ctx, projectID); err != nil {
			return fmt.Errorf("deliverable: resolve threads after approval: %w", err)
		}
	}

	return nil
}

// Reject marks the deliverable rejected and returns the project to
// in_progress so the contractor can resubmit.
func (s *Service) Reject(ctx context.Context, projectID, deliverableID, clientID string) error {
	return s.review(ctx, projectID, deliverableID, clientID, StatusRejected)
}

func (s *Service) review(ctx context.Context, projectID, deliverableID, clientID string, verdict Status) error {
	if projectID == "" || deliverableID == "" || clientID == "" {
		return fmt.Errorf("deliverable: missing review identifiers")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("deliverable: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	state, err := s.repo.LockProject(ctx, tx, projectID)
	if err != nil {
		return err
	}
	if state.ClientID != clientID {
		return ErrForbidden
	}
	if state.Status != "submitted" {
		return ErrInvalidState
	}

	if err := s.repo.ReviewDeliverable(ctx, tx, deliverableID, projectID, clientID, verdict); err != nil {
		return err
	}

	switch verdict {
	case StatusAccepted:
		if err := s.repo.CompleteProject(ctx, tx, projectID); err != nil {
			return err
		}
		if s.outbox != nil {
			payload := map[string]any{
				"project_id":     projectID,
				"deliverable_id": deliverableID,
			}
			if err := s.outbox.Enqueue(ctx, tx, event.TopicProjectCompleted, payload); err != nil {
				return fmt.Errorf("deliverable: enqueue completion outbox: %w", err)
			}
		}
	case StatusRejected:
		if err := s.repo.ReopenProject(ctx, tx, projectID); err != nil {
			return err
		}
	default:
		return fmt.Errorf("deliverable: unexpected verdict %q", verdict)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("deliverable: commit review: %w", err)
	}

	return nil
}

// ListForProject returns the project's submissions, newest first.
func (s *Service) ListForProject(ctx context.Context, projectID string) ([]Listing, error) {
	return s.repo.ListForProject(ctx, projectID)
}
