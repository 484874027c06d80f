package project

import "time"

// Status enumerates the project lifecycle states. Values are backed by the
// project_status enum in Postgres, so anything outside this set is rejected
// at the store boundary.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusSubmitted  Status = "submitted"
	StatusReview     Status = "review"
	StatusCompleted  Status = "completed"
)

// Project mirrors the projects table.
type Project struct {
	ID            string
	ClientID      string
	Title         string
	Description   string
	Budget        float64
	Deadline      time.Time
	Status        Status
	AcceptedBidID *string
	AttachmentURL *string
	CreatedAt     time.Time
	CompletedAt   *time.Time
}

// Detail is a project joined with the names surrounding it: the posting
// client and, once a bid was selected, the winning contractor.
type Detail struct {
	Project
	ClientName           string
	AcceptedContractorID *string
}

// OpenListing is a browsable open project with its current bid count.
type OpenListing struct {
	Project
	ClientName string
	BidCount   int
}

// ClientListing is a client-owned project enriched with winner information.
type ClientListing struct {
	Project
	ContractorName *string
	FinalPrice     *float64
	BidCount       int
}

// ClientHistoryEntry is one row of a client's completed engagements: the
// project joined with the winning contractor and the accepted price.
type ClientHistoryEntry struct {
	ProjectID      string
	Title          string
	Budget         float64
	FinalPrice     float64
	ContractorID   string
	ContractorName string
	CompletedAt    time.Time
}

// ContractorHistoryEntry is one row of a contractor's engagement history:
// the bid they placed joined with the project it targeted.
type ContractorHistoryEntry struct {
	ProjectID     string
	Title         string
	Description   string
	Budget        float64
	Deadline      time.Time
	ProjectStatus Status
	CompletedAt   *time.Time
	BidID         string
	Price         float64
	BidStatus     string
	BidCreatedAt  time.Time
	ClientName    string
}
