package domain

import "time"

// ModeStats holds the cumulative counters of one ruleset
type ModeStats struct {
	RankedScore       uint64  `json:"ranked_score"`
	TotalScore        uint64  `json:"total_score"`
	PlayCount         uint64  `json:"play_count"`
	PerformancePoints float64 `json:"pp"`
}

// LeaderboardEntry is the per-user aggregate row.
// Score and play count counters only grow; PerformancePoints is replaced on recompute.
type LeaderboardEntry struct {
	UserID    int64                `json:"user_id"`
	Modes     [ModeCount]ModeStats `json:"modes"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// Stats returns the counters for a mode
func (e *LeaderboardEntry) Stats(mode PlayMode) ModeStats {
	if !mode.Valid() {
		return ModeStats{}
	}
	return e.Modes[mode]
}

// Clone returns a copy that does not share state with e
func (e *LeaderboardEntry) Clone() *LeaderboardEntry {
	c := *e
	return &c
}

// RankedPosition is a user's place on a mode's performance ranking
type RankedPosition struct {
	UserID            int64   `json:"user_id"`
	Mode              string  `json:"mode"`
	Rank              int64   `json:"rank"`
	PerformancePoints float64 `json:"pp"`
}

// StatsDelta is an additive change to one mode's counters
type StatsDelta struct {
	RankedScore uint64
	TotalScore  uint64
	PlayCount   uint64
}
