package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/bancho-server/internal/domain"
)

const (
	// DecayFactor weights the i-th best score by DecayFactor^i
	DecayFactor = 0.95
	// PerformanceScoreLimit is how many best scores count toward a user's PP
	PerformanceScoreLimit = 100
	// AccuracyScoreLimit is how many best scores count toward weighted accuracy
	AccuracyScoreLimit = 500
)

// Score sets excluded from aggregation
const (
	ppExcludedMods       = domain.ModRelax
	accuracyExcludedMods = domain.ModRelax | domain.ModAutopilot
)

// EntryStore persists leaderboard rows. Counter updates must be atomic per row.
type EntryStore interface {
	GetOrCreateEntry(ctx context.Context, userID int64) (*domain.LeaderboardEntry, error)
	AddStats(ctx context.Context, userID int64, mode domain.PlayMode, delta domain.StatsDelta) (domain.ModeStats, error)
	SetPerformancePoints(ctx context.Context, userID int64, mode domain.PlayMode, pp float64) error
	CountAhead(ctx context.Context, mode domain.PlayMode, pp float64) (int64, error)
}

// ScoreHistory returns a user's accepted scores for a mode,
// skipping any with a mod in excluded, best PP first.
type ScoreHistory interface {
	TopScores(ctx context.Context, userID int64, mode domain.PlayMode, excluded domain.Mods, limit int) ([]domain.Score, error)
}

// PositionIndex is a fast per-mode ordering of users by PP
type PositionIndex interface {
	SetPerformancePoints(ctx context.Context, mode domain.PlayMode, userID int64, pp float64) error
	CountAhead(ctx context.Context, mode domain.PlayMode, pp float64) (int64, error)
	Top(ctx context.Context, mode domain.PlayMode, n int) ([]domain.RankedPosition, error)
	Count(ctx context.Context, mode domain.PlayMode) (int64, error)
}

// RankingService maintains per-mode leaderboard aggregates
type RankingService struct {
	entries EntryStore
	scores  ScoreHistory
	index   PositionIndex
	logger  *slog.Logger
}

// NewRankingService creates a ranking service. index may be nil, in which case
// positions are counted from the entry store.
func NewRankingService(entries EntryStore, scores ScoreHistory, index PositionIndex, logger *slog.Logger) *RankingService {
	return &RankingService{
		entries: entries,
		scores:  scores,
		index:   index,
		logger:  logger,
	}
}

// GetOrCreateEntry returns the user's row, inserting an empty one if needed
func (s *RankingService) GetOrCreateEntry(ctx context.Context, userID int64) (*domain.LeaderboardEntry, error) {
	entry, err := s.entries.GetOrCreateEntry(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading leaderboard entry: %w", err)
	}
	return entry, nil
}

// IncreaseScore adds amount to the ranked or total score of mode
func (s *RankingService) IncreaseScore(ctx context.Context, entry *domain.LeaderboardEntry, amount uint64, ranked bool, mode domain.PlayMode) error {
	var delta domain.StatsDelta
	if ranked {
		delta.RankedScore = amount
	} else {
		delta.TotalScore = amount
	}
	return s.add(ctx, entry, mode, delta)
}

// IncreasePlaycount adds one play to mode
func (s *RankingService) IncreasePlaycount(ctx context.Context, entry *domain.LeaderboardEntry, mode domain.PlayMode) error {
	return s.add(ctx, entry, mode, domain.StatsDelta{PlayCount: 1})
}

func (s *RankingService) add(ctx context.Context, entry *domain.LeaderboardEntry, mode domain.PlayMode, delta domain.StatsDelta) error {
	if !mode.Valid() {
		return domain.ErrInvalidMode
	}
	stats, err := s.entries.AddStats(ctx, entry.UserID, mode, delta)
	if err != nil {
		return fmt.Errorf("updating %s counters: %w", mode, err)
	}
	entry.Modes[mode] = stats
	return nil
}

// RecomputePerformancePoints replaces the mode's PP with the decay weighted sum
// of the user's best non-relax scores.
func (s *RankingService) RecomputePerformancePoints(ctx context.Context, entry *domain.LeaderboardEntry, mode domain.PlayMode) (float64, error) {
	if !mode.Valid() {
		return 0, domain.ErrInvalidMode
	}
	scores, err := s.scores.TopScores(ctx, entry.UserID, mode, ppExcludedMods, PerformanceScoreLimit)
	if err != nil {
		return 0, fmt.Errorf("loading top scores: %w", err)
	}
	pp := WeightedPerformance(scores)

	if err := s.entries.SetPerformancePoints(ctx, entry.UserID, mode, pp); err != nil {
		return 0, fmt.Errorf("storing performance points: %w", err)
	}
	entry.Modes[mode].PerformancePoints = pp

	if s.index != nil {
		if err := s.index.SetPerformancePoints(ctx, mode, entry.UserID, pp); err != nil {
			s.logger.Warn("failed to update position index", "user_id", entry.UserID, "mode", mode.String(), "error", err)
		}
	}
	return pp, nil
}

// WeightedAccuracy returns the decay weighted accuracy of the user's best scores
// in [0, 1], or 0 without any qualifying score.
func (s *RankingService) WeightedAccuracy(ctx context.Context, entry *domain.LeaderboardEntry, mode domain.PlayMode) (float64, error) {
	if !mode.Valid() {
		return 0, domain.ErrInvalidMode
	}
	scores, err := s.scores.TopScores(ctx, entry.UserID, mode, accuracyExcludedMods, AccuracyScoreLimit)
	if err != nil {
		return 0, fmt.Errorf("loading top scores: %w", err)
	}
	return WeightedAccuracy(scores), nil
}

// GetPosition returns how many other users have strictly more PP in mode.
// The leader gets 0; display ranks are GetPosition+1.
func (s *RankingService) GetPosition(ctx context.Context, entry *domain.LeaderboardEntry, mode domain.PlayMode) (int64, error) {
	if !mode.Valid() {
		return 0, domain.ErrInvalidMode
	}
	pp := entry.Modes[mode].PerformancePoints
	if s.index != nil {
		n, err := s.index.CountAhead(ctx, mode, pp)
		if err == nil {
			return n, nil
		}
		s.logger.Warn("position index unavailable, counting from store", "mode", mode.String(), "error", err)
	}
	n, err := s.entries.CountAhead(ctx, mode, pp)
	if err != nil {
		return 0, fmt.Errorf("counting entries ahead: %w", err)
	}
	return n, nil
}

// Top returns the n highest ranked users of mode
func (s *RankingService) Top(ctx context.Context, mode domain.PlayMode, n int) ([]domain.RankedPosition, error) {
	if s.index == nil {
		return nil, fmt.Errorf("top %s: no position index configured", mode)
	}
	if n <= 0 {
		n = 50
	}
	return s.index.Top(ctx, mode, n)
}

// Count returns how many users are ranked in mode
func (s *RankingService) Count(ctx context.Context, mode domain.PlayMode) (int64, error) {
	if s.index == nil {
		return 0, fmt.Errorf("count %s: no position index configured", mode)
	}
	return s.index.Count(ctx, mode)
}

// Snapshot is a user's standing in one mode at a point in time
type Snapshot struct {
	Stats    domain.ModeStats
	Position int64
	Accuracy float64
}

// Snapshot reads the position and weighted accuracy of entry in mode
func (s *RankingService) Snapshot(ctx context.Context, entry *domain.LeaderboardEntry, mode domain.PlayMode) (Snapshot, error) {
	pos, err := s.GetPosition(ctx, entry, mode)
	if err != nil {
		return Snapshot{}, err
	}
	acc, err := s.WeightedAccuracy(ctx, entry, mode)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Stats: entry.Stats(mode), Position: pos, Accuracy: acc}, nil
}

// UserStats builds the live stats mirror for a session
func (s *RankingService) UserStats(ctx context.Context, userID int64, mode domain.PlayMode) (domain.UserStats, error) {
	entry, err := s.GetOrCreateEntry(ctx, userID)
	if err != nil {
		return domain.UserStats{}, err
	}
	snap, err := s.Snapshot(ctx, entry, mode)
	if err != nil {
		return domain.UserStats{}, err
	}
	return StatsMirror(mode, snap), nil
}

// StatsMirror converts a snapshot to the stats carried in UserStats packets
func StatsMirror(mode domain.PlayMode, snap Snapshot) domain.UserStats {
	pp := math.Round(snap.Stats.PerformancePoints)
	if pp > math.MaxUint16 {
		pp = math.MaxUint16
	}
	return domain.UserStats{
		Mode:              mode,
		RankedScore:       snap.Stats.RankedScore,
		TotalScore:        snap.Stats.TotalScore,
		PlayCount:         uint32(snap.Stats.PlayCount),
		Accuracy:          float32(snap.Accuracy),
		Position:          uint32(snap.Position + 1),
		PerformancePoints: uint16(pp),
	}
}

// WeightedPerformance sums the PP of the best PerformanceScoreLimit scores,
// the i-th best weighted by DecayFactor^i.
func WeightedPerformance(scores []domain.Score) float64 {
	ranked := byPerformance(scores, PerformanceScoreLimit)
	var total float64
	weight := 1.0
	for _, sc := range ranked {
		total += sc.PerformancePoints * weight
		weight *= DecayFactor
	}
	return total
}

// WeightedAccuracy averages the accuracy of the best AccuracyScoreLimit scores
// using the same decay weights.
func WeightedAccuracy(scores []domain.Score) float64 {
	ranked := byPerformance(scores, AccuracyScoreLimit)
	var total, weights float64
	weight := 1.0
	for _, sc := range ranked {
		total += sc.Accuracy * weight
		weights += weight
		weight *= DecayFactor
	}
	if weights == 0 {
		return 0
	}
	return total / weights
}

// byPerformance returns up to limit scores ordered by PP, highest first.
// Ties keep the lower id first so the result is stable across calls.
func byPerformance(scores []domain.Score, limit int) []domain.Score {
	sorted := make([]domain.Score, len(scores))
	copy(sorted, scores)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].PerformancePoints != sorted[j].PerformancePoints {
			return sorted[i].PerformancePoints > sorted[j].PerformancePoints
		}
		return sorted[i].ID < sorted[j].ID
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}
