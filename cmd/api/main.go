package main

import (
	"context"
	"log"
	"os"

	"gigflow/auth"
	"gigflow/bid"
	"gigflow/db"
	"gigflow/deliverable"
	"gigflow/event"
	"gigflow/messaging"
	"gigflow/project"
	"gigflow/reputation"
)

// main wires the engagement core against the shared store. The request
// layer that exposes these services over the wire lives outside this
// repository.
func main() {
	ctx := context.Background()

	connString := os.Getenv("DATABASE_URL")
	pool, err := db.NewPool(ctx, connString)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	outbox := event.NewOutbox()
	threads := messaging.NewResolver(pool)

	authService := auth.NewService(auth.NewRepository(pool), jwtSecret)
	projectService := project.NewService(project.NewRepository(pool))
	bidService := bid.NewService(pool, bid.NewRepository(pool)).WithOutbox(outbox)
	deliverableService := deliverable.NewService(pool, deliverable.NewRepository(pool)).
		WithOutbox(outbox).
		WithThreadResolver(threads)
	reputationService := reputation.NewService(pool, reputation.NewRepository(pool)).WithOutbox(outbox)

	log.Printf("engagement core ready: auth=%t project=%t bid=%t deliverable=%t reputation=%t",
		authService != nil,
		projectService != nil,
		bidService != nil,
		deliverableService != nil,
		reputationService != nil,
	)
}
