package domain

import "errors"

// Domain errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrNotLoggedIn        = errors.New("user has no active session")
	ErrSessionNotFound    = errors.New("session not found")
	ErrScoreNotFound      = errors.New("score not found")
	ErrBeatmapNotFound    = errors.New("beatmap not found")
	ErrReplayNotFound     = errors.New("replay not found")
	ErrEntryNotFound      = errors.New("leaderboard entry not found")
	ErrMalformedPacket    = errors.New("malformed packet")
	ErrInvalidMode        = errors.New("invalid play mode")
	ErrInvalidScore       = errors.New("invalid score payload")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrInternalError      = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrScoreNotFound) ||
		errors.Is(err, ErrBeatmapNotFound) ||
		errors.Is(err, ErrReplayNotFound) ||
		errors.Is(err, ErrEntryNotFound)
}
