package reputation

import "math"

// round1 rounds to one decimal place, the precision every displayed score
// uses.
func round1(x float64) float64 {
	return math.Round(x*10) / 10
}

// overallScore is the mean of the three per-dimension averages, which equals
// the mean of the three sub-scores across every review.
func overallScore(quality, communication, timeliness float64) float64 {
	return round1((quality + communication + timeliness) / 3)
}

// percentile converts a 1-based competition rank into the share of ranked
// peers at or below the user: 100 - rank/total*100, one decimal.
func percentile(rank, total int) float64 {
	if total == 0 {
		return 0
	}
	return round1(100 - float64(rank)/float64(total)*100)
}

// activityScore is the trailing-30-day share of all-time reviews as a 0-100
// integer. A user with no reviews scores 0; there is no division by zero.
func activityScore(recent, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(recent) / float64(total) * 100))
}
