package domain

import "time"

// Score is one accepted play. Rows are immutable once inserted.
type Score struct {
	ID                int64     `json:"id"`
	UserID            int64     `json:"user_id"`
	BeatmapMD5        string    `json:"beatmap_md5"`
	Mode              PlayMode  `json:"mode"`
	Count300          int       `json:"count_300"`
	Count100          int       `json:"count_100"`
	Count50           int       `json:"count_50"`
	CountGeki         int       `json:"count_geki"`
	CountKatu         int       `json:"count_katu"`
	CountMiss         int       `json:"count_miss"`
	MaxCombo          int       `json:"max_combo"`
	Perfect           bool      `json:"perfect"`
	Mods              Mods      `json:"mods"`
	TotalScore        int64     `json:"total_score"`
	Accuracy          float64   `json:"accuracy"`
	PerformancePoints float64   `json:"pp"`
	ReplayHash        string    `json:"replay_hash,omitempty"`
	SubmittedAt       time.Time `json:"submitted_at"`
}

// ScoreDraft is a decoded submission before it has been accepted
type ScoreDraft struct {
	Score
	Username       string
	Passed         bool
	ClientChecksum string
	Grade          string
}

// Accuracy computes the hit accuracy of a play in the range [0, 1]
func Accuracy(s *Score) float64 {
	var hits, total float64
	switch s.Mode {
	case ModeOsu:
		total = float64(s.Count300 + s.Count100 + s.Count50 + s.CountMiss)
		hits = float64(s.Count300)*300 + float64(s.Count100)*100 + float64(s.Count50)*50
		total *= 300
	case ModeTaiko:
		total = float64(s.Count300 + s.Count100 + s.CountMiss)
		hits = float64(s.Count300) + float64(s.Count100)*0.5
	case ModeCatch:
		total = float64(s.Count300 + s.Count100 + s.Count50 + s.CountKatu + s.CountMiss)
		hits = float64(s.Count300 + s.Count100 + s.Count50)
	case ModeMania:
		total = float64(s.CountGeki+s.Count300+s.CountKatu+s.Count100+s.Count50+s.CountMiss) * 300
		hits = float64(s.CountGeki+s.Count300)*300 + float64(s.CountKatu)*200 +
			float64(s.Count100)*100 + float64(s.Count50)*50
	}
	if total <= 0 {
		return 0
	}
	return hits / total
}

// BoardQuery selects the scores shown on a beatmap scoreboard
type BoardQuery struct {
	BeatmapMD5 string
	Mode       PlayMode
	// Mods is matched exactly when MatchMods is set
	Mods      Mods
	MatchMods bool
	Limit     int
}

// BoardScore is a user's best score on a beatmap with the player's name
type BoardScore struct {
	Score
	Username string
}
