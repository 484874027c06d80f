package reputation

import "time"

// Direction identifies which party reviewed which. Backed by the
// review_direction enum in Postgres.
type Direction string

const (
	DirectionClientToContractor Direction = "client_to_contractor"
	DirectionContractorToClient Direction = "contractor_to_client"
)

// Review mirrors the reviews table. Rows are immutable once written.
type Review struct {
	ID            string
	ProjectID     string
	ReviewerID    string
	RevieweeID    string
	Direction     Direction
	Quality       int
	Communication int
	Timeliness    int
	Comment       string
	CreatedAt     time.Time
}

// RecordParams contains a party's post-completion rating of the other.
type RecordParams struct {
	ProjectID     string
	ReviewerID    string
	RevieweeID    string
	Direction     Direction
	Quality       int
	Communication int
	Timeliness    int
	Comment       string
}

// Stats aggregates the reviews a user has received. All values are zero
// when the user has no reviews; that is display data, not an error.
type Stats struct {
	Count         int
	Overall       float64
	Quality       float64
	Communication float64
	Timeliness    float64
}

// Ranking places a user among same-role peers with at least one received
// review. Rank is nil when the user has no reviews or nobody in the role is
// ranked.
type Ranking struct {
	Rank       *int
	Percentile float64
	Total      int
}

// LeaderboardEntry is one row of the role leaderboard, ordered and ranked
// exactly like Ranking.
type LeaderboardEntry struct {
	UserID      string
	Name        string
	Rank        int
	Average     float64
	ReviewCount int
}
