package deliverable

import "time"

// Status enumerates deliverable states. Backed by the deliverable_status
// enum in Postgres.
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
)

// Deliverable mirrors the deliverables table. Rows are append-mostly
// history; only the review transition mutates them.
type Deliverable struct {
	ID           string
	ProjectID    string
	ContractorID string
	FileURL      string
	Note         string
	Status       Status
	ReviewedBy   *string
	ReviewedAt   *time.Time
	CreatedAt    time.Time
}

// Listing is a deliverable joined with its contractor's display name.
type Listing struct {
	Deliverable
	ContractorName string
}

// SubmitParams contains the contractor-supplied fields for a submission.
type SubmitParams struct {
	ProjectID    string
	ContractorID string
	FileURL      string
	Note         string
}
