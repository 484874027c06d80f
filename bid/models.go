package bid

import "time"

// Status enumerates bid states. Backed by the bid_status enum in Postgres.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Bid mirrors the bids table. Once the project resolves, the row is
// immutable history.
type Bid struct {
	ID           string
	ProjectID    string
	ContractorID string
	Price        float64
	Message      string
	ProposalURL  *string
	Status       Status
	CreatedAt    time.Time
}

// Listing is a bid joined with its contractor's display name, as shown to
// the project owner.
type Listing struct {
	Bid
	ContractorName string
}

// PlaceParams contains the contractor-supplied fields for a new bid.
type PlaceParams struct {
	ProjectID    string
	ContractorID string
	Price        float64
	Message      string
	ProposalURL  *string
}

// SelectParams identifies the winning bid the project owner picked.
type SelectParams struct {
	ProjectID string
	BidID     string
	ClientID  string
}
