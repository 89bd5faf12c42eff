// Package memstore holds users, leaderboard rows and scores in process memory.
// It backs the memory storage driver and the package tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bancho-server/internal/auth"
	"github.com/bancho-server/internal/domain"
)

// Store is safe for concurrent use. Every row mutation happens under one lock,
// which makes the additive counter updates atomic.
type Store struct {
	mu      sync.RWMutex
	users   map[int64]*domain.User
	names   map[string]int64
	entries map[int64]*domain.LeaderboardEntry
	scores  map[int64]*domain.Score
	nextUID int64
	nextSID int64
}

// New creates an empty store
func New() *Store {
	return &Store{
		users:   make(map[int64]*domain.User),
		names:   make(map[string]int64),
		entries: make(map[int64]*domain.LeaderboardEntry),
		scores:  make(map[int64]*domain.Score),
	}
}

// CreateUser inserts a user, assigning an id when none is set
func (s *Store) CreateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.ID == 0 {
		s.nextUID++
		user.ID = s.nextUID
	} else if user.ID > s.nextUID {
		s.nextUID = user.ID
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	u := *user
	s.users[u.ID] = &u
	s.names[auth.SafeName(u.Username)] = u.ID
	return nil
}

// GetUser returns a copy of a user by id
func (s *Store) GetUser(_ context.Context, id int64) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	c := *u
	return &c, nil
}

// GetUserBySafeName resolves a normalized username
func (s *Store) GetUserBySafeName(ctx context.Context, safeName string) (*domain.User, error) {
	s.mu.RLock()
	id, ok := s.names[safeName]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return s.GetUser(ctx, id)
}

// GetOrCreateEntry returns a copy of a user's row, creating an empty one
func (s *Store) GetOrCreateEntry(_ context.Context, userID int64) (*domain.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entry(userID).Clone(), nil
}

// entry returns the live row; callers hold s.mu
func (s *Store) entry(userID int64) *domain.LeaderboardEntry {
	e, ok := s.entries[userID]
	if !ok {
		e = &domain.LeaderboardEntry{UserID: userID, UpdatedAt: time.Now()}
		s.entries[userID] = e
	}
	return e
}

// AddStats adds delta to a user's counters and returns the new totals
func (s *Store) AddStats(_ context.Context, userID int64, mode domain.PlayMode, delta domain.StatsDelta) (domain.ModeStats, error) {
	if !mode.Valid() {
		return domain.ModeStats{}, domain.ErrInvalidMode
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(userID)
	st := &e.Modes[mode]
	st.RankedScore += delta.RankedScore
	st.TotalScore += delta.TotalScore
	st.PlayCount += delta.PlayCount
	e.UpdatedAt = time.Now()
	return *st, nil
}

// SetPerformancePoints overwrites a user's PP in mode
func (s *Store) SetPerformancePoints(_ context.Context, userID int64, mode domain.PlayMode, pp float64) error {
	if !mode.Valid() {
		return domain.ErrInvalidMode
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(userID)
	e.Modes[mode].PerformancePoints = pp
	e.UpdatedAt = time.Now()
	return nil
}

// CountAhead counts rows in mode with strictly more PP
func (s *Store) CountAhead(_ context.Context, mode domain.PlayMode, pp float64) (int64, error) {
	if !mode.Valid() {
		return 0, domain.ErrInvalidMode
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, e := range s.entries {
		if e.Modes[mode].PerformancePoints > pp {
			n++
		}
	}
	return n, nil
}

// ListEntries returns a copy of every leaderboard row
func (s *Store) ListEntries(_ context.Context) ([]domain.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.LeaderboardEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// InsertScore stores a copy of score and sets its id
func (s *Store) InsertScore(_ context.Context, score *domain.Score) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSID++
	score.ID = s.nextSID
	if score.SubmittedAt.IsZero() {
		score.SubmittedAt = time.Now()
	}
	c := *score
	s.scores[c.ID] = &c
	return nil
}

// DeleteScore removes a score
func (s *Store) DeleteScore(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.scores[id]; !ok {
		return domain.ErrScoreNotFound
	}
	delete(s.scores, id)
	return nil
}

// GetScore returns a copy of a score by id
func (s *Store) GetScore(_ context.Context, id int64) (*domain.Score, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scores[id]
	if !ok {
		return nil, domain.ErrScoreNotFound
	}
	c := *sc
	return &c, nil
}

// BestScore returns the highest total score of a user on a beatmap
func (s *Store) BestScore(_ context.Context, userID int64, beatmapMD5 string, mode domain.PlayMode) (*domain.Score, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *domain.Score
	for _, sc := range s.scores {
		if sc.UserID != userID || sc.BeatmapMD5 != beatmapMD5 || sc.Mode != mode {
			continue
		}
		if best == nil || sc.TotalScore > best.TotalScore || (sc.TotalScore == best.TotalScore && sc.ID < best.ID) {
			best = sc
		}
	}
	if best == nil {
		return nil, domain.ErrScoreNotFound
	}
	c := *best
	return &c, nil
}

// BeatmapPosition counts other users whose best score on the beatmap is strictly higher
func (s *Store) BeatmapPosition(_ context.Context, score *domain.Score) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	best := make(map[int64]int64)
	for _, sc := range s.scores {
		if sc.BeatmapMD5 != score.BeatmapMD5 || sc.Mode != score.Mode || sc.UserID == score.UserID {
			continue
		}
		if sc.TotalScore > best[sc.UserID] {
			best[sc.UserID] = sc.TotalScore
		}
	}
	var n int64
	for _, total := range best {
		if total > score.TotalScore {
			n++
		}
	}
	return n, nil
}

// TopScores returns a user's scores in mode by PP, skipping any with excluded mods
func (s *Store) TopScores(_ context.Context, userID int64, mode domain.PlayMode, excluded domain.Mods, limit int) ([]domain.Score, error) {
	s.mu.RLock()
	out := make([]domain.Score, 0)
	for _, sc := range s.scores {
		if sc.UserID != userID || sc.Mode != mode || sc.Mods&excluded != 0 {
			continue
		}
		out = append(out, *sc)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].PerformancePoints != out[j].PerformancePoints {
			return out[i].PerformancePoints > out[j].PerformancePoints
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// BeatmapScores returns the best score of every user on a beatmap, highest total first
func (s *Store) BeatmapScores(_ context.Context, q domain.BoardQuery) ([]domain.BoardScore, error) {
	s.mu.RLock()
	best := make(map[int64]*domain.Score)
	for _, sc := range s.scores {
		if sc.BeatmapMD5 != q.BeatmapMD5 || sc.Mode != q.Mode || (q.MatchMods && sc.Mods != q.Mods) {
			continue
		}
		if cur, ok := best[sc.UserID]; !ok || sc.TotalScore > cur.TotalScore || (sc.TotalScore == cur.TotalScore && sc.ID < cur.ID) {
			best[sc.UserID] = sc
		}
	}
	out := make([]domain.BoardScore, 0, len(best))
	for userID, sc := range best {
		var name string
		if u, ok := s.users[userID]; ok {
			name = u.Username
		}
		out = append(out, domain.BoardScore{Score: *sc, Username: name})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalScore != out[j].TotalScore {
			return out[i].TotalScore > out[j].TotalScore
		}
		return out[i].ID < out[j].ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// ScoreCount returns the number of stored scores
func (s *Store) ScoreCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.scores)
}
