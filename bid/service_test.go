package bid

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeRepo struct {
	projectState    ProjectState
	projectStateErr error

	inserted  *InsertRow
	insertErr error

	reviseRows int64
	reviseErr  error

	lockState    ProjectState
	lockErr      error
	lockedID     string
	winner       Bid
	winnerErr    error
	selectionErr error
	applied      bool
}

func (f *fakeRepo) GetProjectState(ctx context.Context, projectID string) (ProjectState, error) {
	return f.projectState, f.projectStateErr
}

func (f *fakeRepo) InsertPending(ctx context.Context, row InsertRow) (Bid, error) {
	if f.insertErr != nil {
		return Bid{}, f.insertErr
	}
	f.inserted = &row
	return Bid{
		ID:           row.ID,
		ProjectID:    row.ProjectID,
		ContractorID: row.ContractorID,
		Price:        row.Price,
		Status:       StatusPending,
	}, nil
}

func (f *fakeRepo) RevisePrice(ctx context.Context, bidID, contractorID string, newPrice float64) (int64, error) {
	return f.reviseRows, f.reviseErr
}

func (f *fakeRepo) LockProject(ctx context.Context, tx pgx.Tx, projectID string) (ProjectState, error) {
	f.lockedID = projectID
	return f.lockState, f.lockErr
}

func (f *fakeRepo) GetForProject(ctx context.Context, tx pgx.Tx, bidID, projectID string) (Bid, error) {
	return f.winner, f.winnerErr
}

func (f *fakeRepo) ApplySelection(ctx context.Context, tx pgx.Tx, projectID, bidID string) error {
	if f.selectionErr != nil {
		return f.selectionErr
	}
	f.applied = true
	return nil
}

func (f *fakeRepo) ListForProject(ctx context.Context, projectID string) ([]Listing, error) {
	return nil, nil
}

func (f *fakeRepo) ListByContractor(ctx context.Context, contractorID string) ([]Bid, error) {
	return nil, nil
}

func (f *fakeRepo) GetByProjectAndContractor(ctx context.Context, projectID, contractorID string) (Bid, error) {
	return Bid{}, ErrBidNotFound
}

type fakeOutbox struct {
	topics []string
}

func (f *fakeOutbox) Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	f.topics = append(f.topics, topic)
	return nil
}

func openProject(clientID string, deadline time.Time) ProjectState {
	return ProjectState{ClientID: clientID, Status: "open", Deadline: deadline}
}

func TestPlace_Success(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	repo := &fakeRepo{projectState: openProject("client-1", now.AddDate(0, 0, 3))}
	svc := NewService(&fakePool{}, repo).WithClock(func() time.Time { return now }).
		WithIDGenerator(func() string { return "b-1" })

	b, err := svc.Place(context.Background(), PlaceParams{
		ProjectID:    "p-1",
		ContractorID: "contractor-1",
		Price:        100,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Status != StatusPending {
		t.Fatalf("expected pending bid, got %s", b.Status)
	}
	if repo.inserted == nil || repo.inserted.ID != "b-1" {
		t.Fatalf("expected insert with generated id, got %+v", repo.inserted)
	}
}

func TestPlace_ProjectNotOpen(t *testing.T) {
	repo := &fakeRepo{projectState: ProjectState{ClientID: "client-1", Status: "in_progress", Deadline: time.Now().AddDate(0, 0, 3)}}
	svc := NewService(&fakePool{}, repo)

	_, err := svc.Place(context.Background(), PlaceParams{ProjectID: "p-1", ContractorID: "c-1", Price: 100})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if repo.inserted != nil {
		t.Fatal("expected no insert")
	}
}

func TestPlace_DeadlineExpired(t *testing.T) {
	now := time.Date(2024, 6, 15, 0, 30, 0, 0, time.UTC)
	repo := &fakeRepo{projectState: openProject("client-1", now.AddDate(0, 0, -1))}
	svc := NewService(&fakePool{}, repo).WithClock(func() time.Time { return now })

	_, err := svc.Place(context.Background(), PlaceParams{ProjectID: "p-1", ContractorID: "c-1", Price: 100})
	if !errors.Is(err, ErrDeadlineExpired) {
		t.Fatalf("expected ErrDeadlineExpired, got %v", err)
	}
}

func TestPlace_DeadlineDayStillAccepted(t *testing.T) {
	now := time.Date(2024, 6, 15, 23, 59, 0, 0, time.UTC)
	repo := &fakeRepo{projectState: openProject("client-1", time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC))}
	svc := NewService(&fakePool{}, repo).WithClock(func() time.Time { return now })

	if _, err := svc.Place(context.Background(), PlaceParams{ProjectID: "p-1", ContractorID: "c-1", Price: 100}); err != nil {
		t.Fatalf("expected bid on deadline day to succeed, got %v", err)
	}
}

func TestPlace_Duplicate(t *testing.T) {
	repo := &fakeRepo{
		projectState: openProject("client-1", time.Now().AddDate(0, 0, 3)),
		insertErr:    ErrDuplicateBid,
	}
	svc := NewService(&fakePool{}, repo)

	_, err := svc.Place(context.Background(), PlaceParams{ProjectID: "p-1", ContractorID: "c-1", Price: 100})
	if !errors.Is(err, ErrDuplicateBid) {
		t.Fatalf("expected ErrDuplicateBid, got %v", err)
	}
}

func TestPlace_InvalidPrice(t *testing.T) {
	svc := NewService(&fakePool{}, &fakeRepo{})

	_, err := svc.Place(context.Background(), PlaceParams{ProjectID: "p-1", ContractorID: "c-1", Price: 0})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestRevisePrice_ZeroRowsIsNotAnError(t *testing.T) {
	repo := &fakeRepo{reviseRows: 0}
	svc := NewService(&fakePool{}, repo)

	n, err := svc.RevisePrice(context.Background(), "b-1", "c-1", 90)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected zero rows, got %d", n)
	}
}

func TestSelectWinner_Success(t *testing.T) {
	pool := &fakePool{}
	outbox := &fakeOutbox{}
	repo := &fakeRepo{
		lockState: openProject("client-1", time.Now().AddDate(0, 0, 3)),
		winner:    Bid{ID: "b-120", ProjectID: "p-1", ContractorID: "c-2", Price: 120, Status: StatusPending},
	}
	svc := NewService(pool, repo).WithOutbox(outbox)

	won, err := svc.SelectWinner(context.Background(), SelectParams{
		ProjectID: "p-1",
		BidID:     "b-120",
		ClientID:  "client-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if won.Status != StatusAccepted {
		t.Fatalf("expected accepted winner, got %s", won.Status)
	}
	if !repo.applied {
		t.Fatal("expected selection writes to run")
	}
	if !pool.tx.committed {
		t.Fatal("expected commit")
	}
	if len(outbox.topics) != 1 || outbox.topics[0] != "bid.selected" {
		t.Fatalf("expected bid.selected outbox message, got %v", outbox.topics)
	}
}

func TestSelectWinner_Forbidden(t *testing.T) {
	pool := &fakePool{}
	repo := &fakeRepo{lockState: openProject("client-1", time.Now())}
	svc := NewService(pool, repo)

	_, err := svc.SelectWinner(context.Background(), SelectParams{
		ProjectID: "p-1",
		BidID:     "b-1",
		ClientID:  "intruder",
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if pool.tx.committed {
		t.Fatal("expected no commit")
	}
	if !pool.tx.rolled {
		t.Fatal("expected rollback")
	}
}

func TestSelectWinner_AlreadySelected(t *testing.T) {
	pool := &fakePool{}
	repo := &fakeRepo{lockState: ProjectState{ClientID: "client-1", Status: "in_progress"}}
	svc := NewService(pool, repo)

	_, err := svc.SelectWinner(context.Background(), SelectParams{
		ProjectID: "p-1",
		BidID:     "b-1",
		ClientID:  "client-1",
	})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on a second selection, got %v", err)
	}
	if repo.applied {
		t.Fatal("expected no writes on state conflict")
	}
}

func TestSelectWinner_BidNotPending(t *testing.T) {
	pool := &fakePool{}
	repo := &fakeRepo{
		lockState: openProject("client-1", time.Now()),
		winner:    Bid{ID: "b-1", Status: StatusRejected},
	}
	svc := NewService(pool, repo)

	_, err := svc.SelectWinner(context.Background(), SelectParams{
		ProjectID: "p-1",
		BidID:     "b-1",
		ClientID:  "client-1",
	})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

type fakePool struct {
	tx *fakeTx
}

func (f *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	f.tx = &fakeTx{}
	return f.tx, nil
}

type fakeTx struct {
	rolled    bool
	committed bool
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakeTx does not support nested transactions")
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolled = true
	return nil
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *fakeTx) Conn() *pgx.Conn {
	return nil
}
