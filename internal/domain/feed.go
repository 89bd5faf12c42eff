package domain

import "time"

// ScoreEvent is published to the score feed for every accepted ranked play
type ScoreEvent struct {
	Node              string    `json:"node"`
	UserID            int64     `json:"user_id"`
	Username          string    `json:"username"`
	Mode              string    `json:"mode"`
	BeatmapID         int32     `json:"beatmap_id"`
	BeatmapName       string    `json:"beatmap_name"`
	Mods              string    `json:"mods"`
	TotalScore        int64     `json:"total_score"`
	Accuracy          float64   `json:"accuracy"`
	PerformancePoints float64   `json:"pp"`
	Rank              int64     `json:"rank"`
	Timestamp         time.Time `json:"timestamp"`
}

// Announcement is a public channel message produced by the server
type Announcement struct {
	Channel   string    `json:"channel"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
