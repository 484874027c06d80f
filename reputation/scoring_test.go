package reputation

import "testing"

func TestOverallScore(t *testing.T) {
	tests := []struct {
		name    string
		quality float64
		comm    float64
		time    float64
		want    float64
	}{
		{"all fives", 5, 5, 5, 5},
		{"mixed averages", 4.5, 3.5, 4.0, 4.0},
		{"rounds to one decimal", 4, 4, 5, 4.3},
		{"exact tenth", 3.5, 3.5, 3.8, 3.6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := overallScore(tt.quality, tt.comm, tt.time); got != tt.want {
				t.Fatalf("overallScore(%v, %v, %v) = %v, want %v", tt.quality, tt.comm, tt.time, got, tt.want)
			}
		})
	}
}

func TestPercentile(t *testing.T) {
	tests := []struct {
		name  string
		rank  int
		total int
		want  float64
	}{
		{"top of ten", 1, 10, 90},
		{"middle of ten", 5, 10, 50},
		{"last of ten", 10, 10, 0},
		{"only ranked user", 1, 1, 0},
		{"third of seven", 3, 7, 57.1},
		{"nobody ranked", 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := percentile(tt.rank, tt.total); got != tt.want {
				t.Fatalf("percentile(%d, %d) = %v, want %v", tt.rank, tt.total, got, tt.want)
			}
		})
	}
}

func TestActivityScore(t *testing.T) {
	tests := []struct {
		name   string
		recent int
		total  int
		want   int
	}{
		{"no reviews", 0, 0, 0},
		{"all recent", 4, 4, 100},
		{"none recent", 0, 9, 0},
		{"one of three rounds", 1, 3, 33},
		{"two of three rounds", 2, 3, 67},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := activityScore(tt.recent, tt.total); got != tt.want {
				t.Fatalf("activityScore(%d, %d) = %d, want %d", tt.recent, tt.total, got, tt.want)
			}
		})
	}
}

func TestRound1(t *testing.T) {
	if got := round1(4.25); got != 4.3 {
		t.Fatalf("round1(4.25) = %v, want 4.3", got)
	}
	if got := round1(4.24); got != 4.2 {
		t.Fatalf("round1(4.24) = %v, want 4.2", got)
	}
}
