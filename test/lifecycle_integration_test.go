package test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"gigflow/auth"
	"gigflow/bid"
	"gigflow/deliverable"
	"gigflow/event"
	"gigflow/messaging"
	"gigflow/project"
	"gigflow/reputation"
	"gigflow/test/infra"
)

// TestEngagementLifecycle drives one project from creation through bidding,
// selection, submission, rejection, resubmission, approval and the
// post-completion reviews, checking the persisted state at each transition.
func TestEngagementLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pool, terminate := setupDatabase(t, ctx)
	defer terminate()
	defer pool.Close()

	outbox := event.NewOutbox()
	authSvc := auth.NewService(auth.NewRepository(pool), "integration-secret")
	projectSvc := project.NewService(project.NewRepository(pool))
	bidSvc := bid.NewService(pool, bid.NewRepository(pool)).WithOutbox(outbox)
	deliverableSvc := deliverable.NewService(pool, deliverable.NewRepository(pool)).
		WithOutbox(outbox).
		WithThreadResolver(messaging.NewResolver(pool))
	reputationSvc := reputation.NewService(pool, reputation.NewRepository(pool)).WithOutbox(outbox)

	client := mustRegister(t, ctx, authSvc, "lifecycle-client", auth.RoleClient)
	winner := mustRegister(t, ctx, authSvc, "lifecycle-winner", auth.RoleContractor)
	loser := mustRegister(t, ctx, authSvc, "lifecycle-loser", auth.RoleContractor)

	p, err := projectSvc.Create(ctx, project.CreateParams{
		ClientID:    client.ID,
		Title:       "Marketplace landing page",
		Description: "Design and build the landing page",
		Budget:      1500,
		Deadline:    time.Now().AddDate(0, 0, 7),
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}

	winningBid, err := bidSvc.Place(ctx, bid.PlaceParams{
		ProjectID:    p.ID,
		ContractorID: winner.ID,
		Price:        1200,
		Message:      "can start today",
	})
	if err != nil {
		t.Fatalf("place winning bid: %v", err)
	}
	if _, err := bidSvc.Place(ctx, bid.PlaceParams{
		ProjectID:    p.ID,
		ContractorID: loser.ID,
		Price:        1400,
	}); err != nil {
		t.Fatalf("place losing bid: %v", err)
	}
	if _, err := bidSvc.Place(ctx, bid.PlaceParams{
		ProjectID:    p.ID,
		ContractorID: winner.ID,
		Price:        1100,
	}); !errors.Is(err, bid.ErrDuplicateBid) {
		t.Fatalf("expected ErrDuplicateBid on second bid, got %v", err)
	}

	rows, err := bidSvc.RevisePrice(ctx, winningBid.ID, winner.ID, 1150)
	if err != nil {
		t.Fatalf("revise price: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected one revised bid, got %d", rows)
	}

	if _, err := bidSvc.SelectWinner(ctx, bid.SelectParams{
		ProjectID: p.ID,
		BidID:     winningBid.ID,
		ClientID:  client.ID,
	}); err != nil {
		t.Fatalf("select winner: %v", err)
	}
	assertProjectStatus(t, ctx, pool, p.ID, "in_progress")

	if _, err := bidSvc.Place(ctx, bid.PlaceParams{
		ProjectID:    p.ID,
		ContractorID: loser.ID,
		Price:        900,
	}); !errors.Is(err, bid.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState bidding after selection, got %v", err)
	}

	seedOpenThread(t, ctx, pool, p.ID)

	first, err := deliverableSvc.Submit(ctx, deliverable.SubmitParams{
		ProjectID:    p.ID,
		ContractorID: winner.ID,
		FileURL:      "uploads/landing-v1.zip",
		Note:         "first cut",
	})
	if err != nil {
		t.Fatalf("submit deliverable: %v", err)
	}
	assertProjectStatus(t, ctx, pool, p.ID, "submitted")

	if err := deliverableSvc.Reject(ctx, p.ID, first.ID, client.ID); err != nil {
		t.Fatalf("reject deliverable: %v", err)
	}
	assertProjectStatus(t, ctx, pool, p.ID, "in_progress")

	second, err := deliverableSvc.Submit(ctx, deliverable.SubmitParams{
		ProjectID:    p.ID,
		ContractorID: winner.ID,
		FileURL:      "uploads/landing-v2.zip",
		Note:         "revised per feedback",
	})
	if err != nil {
		t.Fatalf("resubmit deliverable: %v", err)
	}

	if err := deliverableSvc.Approve(ctx, p.ID, second.ID, client.ID); err != nil {
		t.Fatalf("approve deliverable: %v", err)
	}
	assertProjectStatus(t, ctx, pool, p.ID, "completed")

	var openThreads int
	if err := pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM discussion_threads WHERE project_id=$1 AND status='open'`, p.ID,
	).Scan(&openThreads); err != nil {
		t.Fatalf("count open threads: %v", err)
	}
	if openThreads != 0 {
		t.Fatalf("expected all threads resolved, %d still open", openThreads)
	}

	if _, err := deliverableSvc.Submit(ctx, deliverable.SubmitParams{
		ProjectID:    p.ID,
		ContractorID: winner.ID,
		FileURL:      "uploads/landing-v3.zip",
	}); !errors.Is(err, deliverable.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState submitting after completion, got %v", err)
	}

	history, err := projectSvc.ClientHistory(ctx, client.ID)
	if err != nil {
		t.Fatalf("client history: %v", err)
	}
	if len(history) != 1 || history[0].ContractorID != winner.ID || history[0].FinalPrice != 1150 {
		t.Fatalf("unexpected client history: %+v", history)
	}

	if _, err := reputationSvc.Record(ctx, reputation.RecordParams{
		ProjectID:     p.ID,
		ReviewerID:    client.ID,
		RevieweeID:    winner.ID,
		Direction:     reputation.DirectionClientToContractor,
		Quality:       5,
		Communication: 4,
		Timeliness:    4,
		Comment:       "great second iteration",
	}); err != nil {
		t.Fatalf("client review: %v", err)
	}
	if _, err := reputationSvc.Record(ctx, reputation.RecordParams{
		ProjectID:     p.ID,
		ReviewerID:    winner.ID,
		RevieweeID:    client.ID,
		Direction:     reputation.DirectionContractorToClient,
		Quality:       5,
		Communication: 5,
		Timeliness:    5,
	}); err != nil {
		t.Fatalf("contractor review: %v", err)
	}
	if _, err := reputationSvc.Record(ctx, reputation.RecordParams{
		ProjectID:     p.ID,
		ReviewerID:    client.ID,
		RevieweeID:    winner.ID,
		Direction:     reputation.DirectionClientToContractor,
		Quality:       1,
		Communication: 1,
		Timeliness:    1,
	}); !errors.Is(err, reputation.ErrDuplicateReview) {
		t.Fatalf("expected ErrDuplicateReview, got %v", err)
	}
	if _, err := reputationSvc.Record(ctx, reputation.RecordParams{
		ProjectID:     p.ID,
		ReviewerID:    loser.ID,
		RevieweeID:    client.ID,
		Direction:     reputation.DirectionContractorToClient,
		Quality:       3,
		Communication: 3,
		Timeliness:    3,
	}); !errors.Is(err, reputation.ErrNoCounterparty) {
		t.Fatalf("expected ErrNoCounterparty for losing bidder, got %v", err)
	}

	stats, err := reputationSvc.Stats(ctx, winner.ID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Count != 1 || stats.Overall != 4.3 {
		t.Fatalf("unexpected winner stats: %+v", stats)
	}

	ranking, err := reputationSvc.Ranking(ctx, winner.ID, "contractor")
	if err != nil {
		t.Fatalf("ranking: %v", err)
	}
	if ranking.Rank == nil || *ranking.Rank != 1 || ranking.Total != 1 {
		t.Fatalf("unexpected winner ranking: %+v", ranking)
	}

	score, err := reputationSvc.ActivityScore(ctx, winner.ID)
	if err != nil {
		t.Fatalf("activity score: %v", err)
	}
	if score != 100 {
		t.Fatalf("expected activity score 100 for a fresh review, got %d", score)
	}

	board, err := reputationSvc.Leaderboard(ctx, "contractor", 10)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(board) != 1 || board[0].UserID != winner.ID || board[0].Rank != 1 {
		t.Fatalf("unexpected leaderboard: %+v", board)
	}

	var outboxTopics []string
	topicRows, err := pool.Query(ctx, `SELECT topic FROM outbox ORDER BY created_at`)
	if err != nil {
		t.Fatalf("read outbox: %v", err)
	}
	defer topicRows.Close()
	for topicRows.Next() {
		var topic string
		if err := topicRows.Scan(&topic); err != nil {
			t.Fatalf("scan outbox topic: %v", err)
		}
		outboxTopics = append(outboxTopics, topic)
	}
	if err := topicRows.Err(); err != nil {
		t.Fatalf("iterate outbox: %v", err)
	}
	want := []string{event.TopicBidSelected, event.TopicProjectCompleted, event.TopicReviewRecorded, event.TopicReviewRecorded}
	if len(outboxTopics) != len(want) {
		t.Fatalf("expected outbox topics %v, got %v", want, outboxTopics)
	}
	for i, topic := range want {
		if outboxTopics[i] != topic {
			t.Fatalf("expected outbox topics %v, got %v", want, outboxTopics)
		}
	}
}

func setupDatabase(t *testing.T, ctx context.Context) (*pgxpool.Pool, func()) {
	t.Helper()

	var (
		pgC *infra.PGContainer
		dsn string
		err error
	)
	switch {
	case *flDSN != "":
		dsn = *flDSN
		pgC = &infra.PGContainer{}
	case os.Getenv("TEST_PG_DSN") != "":
		dsn = os.Getenv("TEST_PG_DSN")
		pgC = &infra.PGContainer{}
	default:
		if !dockerAvailable(ctx) {
			t.Skip("no docker and no TEST_PG_DSN; skipping integration test")
		}
		pgC, dsn, err = infra.StartPostgres16(ctx, "")
		if err != nil {
			t.Fatalf("start postgres: %v", err)
		}
	}

	pool, err := infra.ApplyMigrations(ctx, dsn)
	if err != nil {
		pgC.Terminate(context.Background())
		t.Fatalf("apply migrations: %v", err)
	}
	return pool, func() { pgC.Terminate(context.Background()) }
}

func mustRegister(t *testing.T, ctx context.Context, svc *auth.Service, name string, role auth.Role) *auth.User {
	t.Helper()
	user, err := svc.Register(ctx, auth.RegisterRequest{
		Name:     name,
		Password: "integration password",
		Role:     role,
	})
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	return user
}

func assertProjectStatus(t *testing.T, ctx context.Context, pool *pgxpool.Pool, projectID, want string) {
	t.Helper()
	var status string
	if err := pool.QueryRow(ctx, `SELECT status::text FROM projects WHERE id=$1`, projectID).Scan(&status); err != nil {
		t.Fatalf("read project status: %v", err)
	}
	if status != want {
		t.Fatalf("expected project %s, got %s", want, status)
	}
}

func seedOpenThread(t *testing.T, ctx context.Context, pool *pgxpool.Pool, projectID string) {
	t.Helper()
	if _, err := pool.Exec(ctx,
		`INSERT INTO discussion_threads (project_id, subject) VALUES ($1, 'Scope question')`,
		projectID,
	); err != nil {
		t.Fatalf("seed thread: %v", err)
	}
}
