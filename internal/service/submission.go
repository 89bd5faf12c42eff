package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/bancho-server/internal/config"
	"github.com/bancho-server/internal/domain"
	"github.com/bancho-server/internal/events"
	"github.com/bancho-server/internal/replay"
	"github.com/bancho-server/internal/session"
)

// Fixed plaintext replies of the submission endpoint
const (
	ReplyBadAuth  = "error: pass"
	ReplyFailure  = "error: no"
	ReplyUnranked = "Thanks for your hard work!"
)

// SubmitRequest is the form posted by the client
type SubmitRequest struct {
	Score      string
	IV         string
	OsuVersion string
	Password   string
	Replay     []byte
}

// ScoreDecoder turns the client's score blob into a draft
type ScoreDecoder interface {
	Decode(blob, iv, version string) (*domain.ScoreDraft, error)
}

// Scorer computes the performance points of a play
type Scorer interface {
	PerformancePoints(score *domain.Score, beatmap *domain.Beatmap) float64
}

// BeatmapLookup resolves beatmap metadata by file hash
type BeatmapLookup interface {
	ByMD5(ctx context.Context, md5 string) (*domain.Beatmap, error)
}

// ReplayWriter stores content addressed replay files
type ReplayWriter interface {
	Put(ctx context.Context, hash string, data []byte) error
	Delete(ctx context.Context, hash string) error
}

// ScoreStore persists accepted scores
type ScoreStore interface {
	ScoreHistory
	BestScore(ctx context.Context, userID int64, beatmapMD5 string, mode domain.PlayMode) (*domain.Score, error)
	InsertScore(ctx context.Context, score *domain.Score) error
	DeleteScore(ctx context.Context, id int64) error
	GetScore(ctx context.Context, id int64) (*domain.Score, error)
	// BeatmapPosition counts best scores on the same beatmap and mode with a
	// strictly higher total score.
	BeatmapPosition(ctx context.Context, score *domain.Score) (int64, error)
}

// Authenticator verifies submitted credentials
type Authenticator interface {
	Authenticate(ctx context.Context, username, passwordMD5 string) (*domain.User, error)
}

// ScoreFeed receives accepted ranked plays
type ScoreFeed interface {
	PublishScore(ctx context.Context, ev domain.ScoreEvent) error
}

// Feeds fans an event out to several feeds, returning the first error
type Feeds []ScoreFeed

func (f Feeds) PublishScore(ctx context.Context, ev domain.ScoreEvent) error {
	var first error
	for _, feed := range f {
		if err := feed.PublishScore(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// SubmissionDeps are the collaborators of the submission pipeline
type SubmissionDeps struct {
	Decoder  ScoreDecoder
	Auth     Authenticator
	Sessions *session.Registry
	Ranking  *RankingService
	Scores   ScoreStore
	Beatmaps BeatmapLookup
	Scorer   Scorer
	Replays  ReplayWriter
	Events   events.Publisher
	Feed     ScoreFeed // optional
}

// SubmissionService runs score submissions end to end
type SubmissionService struct {
	deps   SubmissionDeps
	config *config.BanchoConfig
	logger *slog.Logger
}

// NewSubmissionService creates a new submission service
func NewSubmissionService(deps SubmissionDeps, cfg *config.BanchoConfig, logger *slog.Logger) *SubmissionService {
	return &SubmissionService{
		deps:   deps,
		config: cfg,
		logger: logger,
	}
}

// Submit processes one submission and returns the plaintext response body.
// It never fails: faults are logged and answered with ReplyFailure.
func (s *SubmissionService) Submit(ctx context.Context, req SubmitRequest) (reply string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("score submission panicked", "panic", r, "stack", string(debug.Stack()))
			reply = ReplyFailure
		}
	}()

	reply, err := s.submit(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidCredentials), errors.Is(err, domain.ErrNotLoggedIn):
			s.logger.Info("score submission rejected", "error", err)
			return ReplyBadAuth
		default:
			s.logger.Error("score submission failed", "error", err)
			return ReplyFailure
		}
	}
	return reply
}

func (s *SubmissionService) submit(ctx context.Context, req SubmitRequest) (string, error) {
	draft, err := s.deps.Decoder.Decode(req.Score, req.IV, req.OsuVersion)
	if err != nil {
		return "", fmt.Errorf("decoding score: %w", err)
	}

	user, err := s.deps.Auth.Authenticate(ctx, draft.Username, req.Password)
	if err != nil {
		return "", err
	}
	pr, ok := s.deps.Sessions.LookupUser(user.ID)
	if !ok {
		return "", fmt.Errorf("user %d: %w", user.ID, domain.ErrNotLoggedIn)
	}
	draft.UserID = user.ID
	if draft.SubmittedAt.IsZero() {
		draft.SubmittedAt = time.Now()
	}

	entry, err := s.deps.Ranking.GetOrCreateEntry(ctx, user.ID)
	if err != nil {
		return "", err
	}

	beatmap, err := s.deps.Beatmaps.ByMD5(ctx, draft.BeatmapMD5)
	if err != nil && !errors.Is(err, domain.ErrBeatmapNotFound) {
		return "", fmt.Errorf("looking up beatmap: %w", err)
	}

	if !draft.Passed || !draft.Mods.IsRanked() || beatmap == nil || !beatmap.Ranked() {
		return s.submitUnranked(ctx, pr, entry, draft)
	}
	return s.submitRanked(ctx, pr, user, entry, draft, beatmap, req.Replay)
}

// submitUnranked counts the play without touching ranked score or PP
func (s *SubmissionService) submitUnranked(ctx context.Context, pr *session.Presence, entry *domain.LeaderboardEntry, draft *domain.ScoreDraft) (string, error) {
	mode := draft.Mode
	if err := s.deps.Ranking.IncreasePlaycount(ctx, entry, mode); err != nil {
		return "", err
	}
	if err := s.deps.Ranking.IncreaseScore(ctx, entry, uint64(max(draft.TotalScore, 0)), false, mode); err != nil {
		return "", err
	}

	snap, err := s.deps.Ranking.Snapshot(ctx, entry, mode)
	if err != nil {
		return "", err
	}
	pr.SetStats(StatsMirror(mode, snap))
	s.publishStats(ctx, pr)

	s.logger.Debug("unranked play counted",
		"user_id", entry.UserID,
		"mode", mode.String(),
		"passed", draft.Passed,
		"mods", draft.Mods.String(),
	)
	return ReplyUnranked, nil
}

func (s *SubmissionService) submitRanked(
	ctx context.Context,
	pr *session.Presence,
	user *domain.User,
	entry *domain.LeaderboardEntry,
	draft *domain.ScoreDraft,
	beatmap *domain.Beatmap,
	data []byte,
) (string, error) {
	mode := draft.Mode
	score := draft.Score

	score.ReplayHash = replay.Hash(data)
	if score.ReplayHash != "" {
		if err := s.deps.Replays.Put(ctx, score.ReplayHash, data); err != nil {
			return "", fmt.Errorf("storing replay: %w", err)
		}
	}
	score.Accuracy = domain.Accuracy(&score)
	score.PerformancePoints = s.deps.Scorer.PerformancePoints(&score, beatmap)

	previous, err := s.deps.Scores.BestScore(ctx, user.ID, score.BeatmapMD5, mode)
	if err != nil && !errors.Is(err, domain.ErrScoreNotFound) {
		return "", fmt.Errorf("loading previous best: %w", err)
	}
	var prevMapRank int64
	if previous != nil {
		pos, err := s.deps.Scores.BeatmapPosition(ctx, previous)
		if err != nil {
			return "", fmt.Errorf("ranking previous best: %w", err)
		}
		prevMapRank = pos + 1
	}

	before, err := s.deps.Ranking.Snapshot(ctx, entry, mode)
	if err != nil {
		return "", err
	}

	best, err := s.supersede(ctx, &score, previous)
	if err != nil {
		return "", err
	}

	if err := s.deps.Ranking.IncreasePlaycount(ctx, entry, mode); err != nil {
		return "", err
	}
	amount := uint64(max(score.TotalScore, 0))
	if err := s.deps.Ranking.IncreaseScore(ctx, entry, amount, true, mode); err != nil {
		return "", err
	}
	if err := s.deps.Ranking.IncreaseScore(ctx, entry, amount, false, mode); err != nil {
		return "", err
	}
	if _, err := s.deps.Ranking.RecomputePerformancePoints(ctx, entry, mode); err != nil {
		return "", err
	}

	after, err := s.deps.Ranking.Snapshot(ctx, entry, mode)
	if err != nil {
		return "", err
	}
	mapPos, err := s.deps.Scores.BeatmapPosition(ctx, best)
	if err != nil {
		return "", fmt.Errorf("ranking best score: %w", err)
	}

	beatmapChart := Chart{
		ID:               "beatmap",
		Name:             "Beatmap Ranking",
		URL:              s.beatmapURL(beatmap),
		RankBefore:       prevMapRank,
		RankAfter:        mapPos + 1,
		MaxComboAfter:    best.MaxCombo,
		AccuracyAfter:    best.Accuracy * 100,
		RankedScoreAfter: uint64(max(best.TotalScore, 0)),
		PPAfter:          best.PerformancePoints,
		OnlineScoreID:    best.ID,
	}
	if previous != nil {
		beatmapChart.MaxComboBefore = previous.MaxCombo
		beatmapChart.AccuracyBefore = previous.Accuracy * 100
		beatmapChart.RankedScoreBefore = uint64(max(previous.TotalScore, 0))
		beatmapChart.PPBefore = previous.PerformancePoints
	}

	overallChart := Chart{
		ID:                "overall",
		Name:              "Global Ranking",
		URL:               s.config.UserURL + fmt.Sprint(user.ID),
		RankBefore:        before.Position + 1,
		RankAfter:         after.Position + 1,
		AccuracyBefore:    before.Accuracy * 100,
		AccuracyAfter:     after.Accuracy * 100,
		RankedScoreBefore: before.Stats.RankedScore,
		RankedScoreAfter:  after.Stats.RankedScore,
		PPBefore:          before.Stats.PerformancePoints,
		PPAfter:           after.Stats.PerformancePoints,
		OnlineScoreID:     best.ID,
		Achievements:      Achievements(&score, previous, before, after),
		ListAchievements:  true,
	}

	pr.SetAttr(AttrLeaderboardEntry, entry.Clone())
	pr.SetStats(StatsMirror(mode, after))
	s.publishStats(ctx, pr)

	if after.Position == 0 && after.Stats.PerformancePoints > 0 {
		s.announceFirstPlace(ctx, user, beatmap, &score)
	}
	s.publishFeed(ctx, user, beatmap, &score, after.Position+1)

	s.logger.Info("score submitted",
		"user_id", user.ID,
		"username", user.Username,
		"score_id", best.ID,
		"pp", score.PerformancePoints,
		"accuracy", score.Accuracy*100,
		"beatmap", beatmap.DisplayName(),
		"mods", score.Mods.String(),
	)

	var b strings.Builder
	fmt.Fprintf(&b, "beatmapId:%d|beatmapSetId:%d|beatmapPlaycount:0|beatmapPasscount:0|approvedDate:\n\n", beatmap.ID, beatmap.SetID)
	b.WriteString(beatmapChart.String())
	b.WriteByte('\n')
	b.WriteString(overallChart.String())
	return b.String(), nil
}

// AttrLeaderboardEntry caches the last leaderboard row on the session
const AttrLeaderboardEntry = "leaderboard_entry"

// supersede stores score unless the previous best is at least as high, and
// returns whichever row is the best afterwards.
func (s *SubmissionService) supersede(ctx context.Context, score, previous *domain.Score) (*domain.Score, error) {
	if previous != nil && score.TotalScore <= previous.TotalScore {
		if score.ReplayHash != "" && score.ReplayHash != previous.ReplayHash {
			if err := s.deps.Replays.Delete(ctx, score.ReplayHash); err != nil {
				s.logger.Warn("failed to delete discarded replay", "hash", score.ReplayHash, "error", err)
			}
		}
		return previous, nil
	}

	if err := s.deps.Scores.InsertScore(ctx, score); err != nil {
		return nil, fmt.Errorf("inserting score: %w", err)
	}
	if previous == nil {
		return score, nil
	}

	if err := s.deps.Scores.DeleteScore(ctx, previous.ID); err != nil {
		return nil, fmt.Errorf("deleting superseded score %d: %w", previous.ID, err)
	}
	if previous.ReplayHash != "" && previous.ReplayHash != score.ReplayHash {
		if err := s.deps.Replays.Delete(ctx, previous.ReplayHash); err != nil {
			s.logger.Warn("failed to delete superseded replay", "hash", previous.ReplayHash, "error", err)
		}
	}
	return score, nil
}

func (s *SubmissionService) publishStats(ctx context.Context, pr *session.Presence) {
	reqs := []events.Event{
		events.NewStatsRequest(events.StatsRequest{
			Presence:  pr,
			UserIDs:   []int64{pr.UserID()},
			Broadcast: true,
		}),
		events.NewSendStatus(events.SendStatus{Presence: pr}),
	}
	for _, ev := range reqs {
		if err := s.deps.Events.Publish(ctx, ev); err != nil {
			s.logger.Warn("failed to publish event", "kind", ev.Kind.String(), "error", err)
		}
	}
}

func (s *SubmissionService) announceFirstPlace(ctx context.Context, user *domain.User, beatmap *domain.Beatmap, score *domain.Score) {
	msg := fmt.Sprintf("[http://%s/%d %s] has reached #1 on [%s %s] using %s Good job! +%.2fPP",
		s.config.PublicHost, user.ID, user.Username,
		s.beatmapURL(beatmap), beatmap.DisplayName(),
		score.Mods.String(), score.PerformancePoints,
	)
	ev := events.NewAnnounce(domain.Announcement{
		Channel:   s.config.AnnounceChannel,
		Message:   msg,
		Timestamp: time.Now(),
	})
	if err := s.deps.Events.Publish(ctx, ev); err != nil {
		s.logger.Warn("failed to publish announcement", "error", err)
	}
}

func (s *SubmissionService) publishFeed(ctx context.Context, user *domain.User, beatmap *domain.Beatmap, score *domain.Score, rank int64) {
	if s.deps.Feed == nil {
		return
	}
	ev := domain.ScoreEvent{
		Node:              s.config.NodeID,
		UserID:            user.ID,
		Username:          user.Username,
		Mode:              score.Mode.String(),
		BeatmapID:         beatmap.ID,
		BeatmapName:       beatmap.DisplayName(),
		Mods:              score.Mods.String(),
		TotalScore:        score.TotalScore,
		Accuracy:          score.Accuracy,
		PerformancePoints: score.PerformancePoints,
		Rank:              rank,
		Timestamp:         score.SubmittedAt,
	}
	if err := s.deps.Feed.PublishScore(ctx, ev); err != nil {
		s.logger.Warn("failed to publish score feed event", "user_id", user.ID, "error", err)
	}
}

func (s *SubmissionService) beatmapURL(b *domain.Beatmap) string {
	return s.config.BeatmapURL + fmt.Sprint(b.ID)
}
