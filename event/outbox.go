package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Topics emitted by the engagement core. No dispatcher lives here; a worker
// outside this core drains the outbox table.
const (
	TopicBidSelected      = "bid.selected"
	TopicProjectCompleted = "project.completed"
	TopicReviewRecorded   = "review.recorded"
)

// Message represents a transactional outbox entry.
type Message struct {
	ID        string
	Topic     string
	Payload   []byte
	Status    string
	Attempts  int
	CreatedAt time.Time
}

// Outbox writes messages into the outbox table inside the caller's
// transaction, so a transition and its notification commit or roll back
// together.
type Outbox struct{}

func NewOutbox() *Outbox {
	return &Outbox{}
}

// Enqueue appends one message within the active transaction.
func (o *Outbox) Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	if topic == "" {
		return fmt.Errorf("event: empty outbox topic")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("event: marshal outbox payload: %w", err)
	}

	const insertSQL = `INSERT INTO outbox (topic, payload) VALUES ($1, $2::jsonb)`
	if _, err := tx.Exec(ctx, insertSQL, topic, body); err != nil {
		return fmt.Errorf("event: enqueue outbox: %w", err)
	}

	return nil
}
