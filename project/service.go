package project

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrValidation signals malformed input, e.g. a deadline in the past.
	ErrValidation = errors.New("project: validation failed")
)

// Service owns project creation and owner-side field mutation. Status
// transitions are never triggered here directly: selecting a bid, submitting
// a deliverable and approving or rejecting it drive the status forward via
// guarded transactions in the bid and deliverable packages.
type Service struct {
	repo  Repository
	idGen func() string
	now   func() time.Time
}

// CreateParams contains the client-supplied fields for a new project.
type CreateParams struct {
	ClientID    string
	Title       string
	Description string
	Budget      float64
	Deadline    time.Time
}

// UpdateParams contains the editable fields. Updates only apply while the
// project is open and owned by the caller.
type UpdateParams struct {
	ProjectID     string
	ClientID      string
	Title         string
	Description   string
	Budget        float64
	Deadline      time.Time
	AttachmentURL *string
}

func NewService(repo Repository) *Service {
	return &Service{
		repo:  repo,
		idGen: func() string { return uuid.NewString() },
		now:   time.Now,
	}
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGen = gen
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create inserts a new open project. The deadline must not be in the past;
// a deadline of today is still accepted.
func (s *Service) Create(ctx context.Context, params CreateParams) (Project, error) {
	if params.ClientID == "" {
		return Project{}, fmt.Errorf("project: missing client id")
	}
	if strings.TrimSpace(params.Title) == "" {
		return Project{}, fmt.Errorf("%w: title required", ErrValidation)
	}
	if params.Budget <= 0 {
		return Project{}, fmt.Errorf("%w: budget must be positive", ErrValidation)
	}
	if dateOf(params.Deadline).Before(dateOf(s.now())) {
		return Project{}, fmt.Errorf("%w: deadline is in the past", ErrValidation)
	}

	return s.repo.Create(ctx, CreateRow{
		ID:          s.idGen(),
		ClientID:    params.ClientID,
		Title:       strings.TrimSpace(params.Title),
		Description: params.Description,
		Budget:      params.Budget,
		Deadline:    params.Deadline,
	})
}

// Update applies the guarded owner update and returns how many rows changed.
// Zero means the project was not found, not owned by the caller, or no
// longer open; callers treat that as an authorization/state error, never as
// a crash.
func (s *Service) Update(ctx context.Context, params UpdateParams) (int64, error) {
	if params.ProjectID == "" || params.ClientID == "" {
		return 0, fmt.Errorf("project: missing project or client id")
	}
	if strings.TrimSpace(params.Title) == "" {
		return 0, fmt.Errorf("%w: title required", ErrValidation)
	}
	if params.Budget <= 0 {
		return 0, fmt.Errorf("%w: budget must be positive", ErrValidation)
	}

	return s.repo.Update(ctx, UpdateRow{
		ProjectID:     params.ProjectID,
		ClientID:      params.ClientID,
		Title:         strings.TrimSpace(params.Title),
		Description:   params.Description,
		Budget:        params.Budget,
		Deadline:      params.Deadline,
		AttachmentURL: params.AttachmentURL,
	})
}

// GetByID returns the project joined with client and winner information.
func (s *Service) GetByID(ctx context.Context, projectID string) (Detail, error) {
	return s.repo.GetByID(ctx, projectID)
}

// ListOpen returns every open project with its bid count, newest first.
// A lapsed deadline does not remove a project from this listing; deadline
// expiry only blocks new bids.
func (s *Service) ListOpen(ctx context.Context) ([]OpenListing, error) {
	return s.repo.ListOpen(ctx)
}

// ListByClient returns all projects a client has posted, with winner name,
// final price and bid count where available.
func (s *Service) ListByClient(ctx context.Context, clientID string) ([]ClientListing, error) {
	return s.repo.ListByClient(ctx, clientID)
}

// ClientHistory returns the client's completed engagements with winner and
// final price, most recent completion first.
func (s *Service) ClientHistory(ctx context.Context, clientID string) ([]ClientHistoryEntry, error) {
	return s.repo.ClientHistory(ctx, clientID)
}

// ContractorHistory returns every bid a contractor has placed joined with
// the project it targeted, newest bid first.
func (s *Service) ContractorHistory(ctx context.Context, contractorID string) ([]ContractorHistoryEntry, error) {
	return s.repo.ContractorHistory(ctx, contractorID)
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
