package domain

import "time"

// User is a registered account
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Country      uint8     `json:"country"`
	Privileges   int32     `json:"privileges"`
	CreatedAt    time.Time `json:"created_at"`
}

// Action is what a connected client reports it is doing
type Action uint8

const (
	ActionIdle Action = iota
	ActionAfk
	ActionPlaying
	ActionEditing
	ActionModding
	ActionMultiplayer
	ActionWatching
	ActionUnknown
	ActionTesting
	ActionSubmitting
	ActionPaused
	ActionLobby
	ActionMultiplaying
	ActionOsuDirect
)

// UserStatus is the live status shown to other clients
type UserStatus struct {
	Action     Action
	ActionText string
	BeatmapMD5 string
	Mods       Mods
	Mode       PlayMode
	BeatmapID  int32
}

// UserStats is the cached mirror of a user's leaderboard entry for one mode.
// Position is the displayed 1-based rank.
type UserStats struct {
	Mode              PlayMode
	RankedScore       uint64
	TotalScore        uint64
	PlayCount         uint32
	Accuracy          float32
	Position          uint32
	PerformancePoints uint16
}
