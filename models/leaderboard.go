package models

// LeaderboardEntry is a contributor's accumulated green credits.
// Computed from reports, never persisted as its own table.
type LeaderboardEntry struct {
	Username     string `json:"username"`
	GreenCredits int    `json:"green_credits"`
}
