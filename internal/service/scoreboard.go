package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/bancho-server/internal/cache"
	"github.com/bancho-server/internal/config"
	"github.com/bancho-server/internal/domain"
)

// BoardType is the leaderboard tab selected in the client
type BoardType int

const (
	BoardLocal BoardType = iota
	BoardGlobal
	BoardMods
	BoardFriends
	BoardCountry
)

// ScoreboardRequest is the query of the in-game scoreboard
type ScoreboardRequest struct {
	Username    string
	PasswordMD5 string
	BeatmapMD5  string
	Mode        domain.PlayMode
	Mods        domain.Mods
	Type        BoardType
}

// BoardStore reads the best scores of a beatmap
type BoardStore interface {
	BeatmapScores(ctx context.Context, q domain.BoardQuery) ([]domain.BoardScore, error)
	BestScore(ctx context.Context, userID int64, beatmapMD5 string, mode domain.PlayMode) (*domain.Score, error)
	BeatmapPosition(ctx context.Context, score *domain.Score) (int64, error)
}

// ScoreboardService renders beatmap scoreboards and caches them briefly
type ScoreboardService struct {
	auth     Authenticator
	beatmaps BeatmapLookup
	scores   BoardStore
	cache    cache.Cache
	config   *config.RankingConfig
	logger   *slog.Logger
}

// NewScoreboardService creates a new scoreboard service
func NewScoreboardService(
	auth Authenticator,
	beatmaps BeatmapLookup,
	scores BoardStore,
	c cache.Cache,
	cfg *config.RankingConfig,
	logger *slog.Logger,
) *ScoreboardService {
	return &ScoreboardService{
		auth:     auth,
		beatmaps: beatmaps,
		scores:   scores,
		cache:    c,
		config:   cfg,
		logger:   logger,
	}
}

// Scores returns the plaintext scoreboard for req. Bad credentials get
// ReplyBadAuth and any other fault ReplyFailure.
func (s *ScoreboardService) Scores(ctx context.Context, req ScoreboardRequest) string {
	user, err := s.auth.Authenticate(ctx, req.Username, req.PasswordMD5)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			return ReplyBadAuth
		}
		s.logger.Error("scoreboard authentication failed", "error", err)
		return ReplyFailure
	}

	key := fmt.Sprintf("scoreboard:%s:%d:%d:%d:%d", req.BeatmapMD5, req.Mode, req.Mods, req.Type, user.ID)
	if data, ok, err := s.cache.TryGet(ctx, key); err != nil {
		s.logger.Warn("scoreboard cache read failed", "error", err)
	} else if ok {
		return string(data)
	}

	board, err := s.render(ctx, req, user)
	if err != nil {
		s.logger.Error("failed to build scoreboard", "beatmap_md5", req.BeatmapMD5, "error", err)
		return ReplyFailure
	}
	if err := s.cache.Set(ctx, key, []byte(board), s.config.ScoreboardTTL); err != nil {
		s.logger.Warn("scoreboard cache write failed", "error", err)
	}
	return board
}

func (s *ScoreboardService) render(ctx context.Context, req ScoreboardRequest, user *domain.User) (string, error) {
	bm, err := s.beatmaps.ByMD5(ctx, req.BeatmapMD5)
	if errors.Is(err, domain.ErrBeatmapNotFound) {
		return "-1|false", nil
	}
	if err != nil {
		return "", fmt.Errorf("looking up beatmap: %w", err)
	}

	var (
		rows []domain.BoardScore
		own  *domain.Score
	)
	if bm.Ranked() {
		q := domain.BoardQuery{BeatmapMD5: req.BeatmapMD5, Mode: req.Mode, Limit: s.config.ScoreboardSize}
		if req.Type == BoardMods {
			q.Mods, q.MatchMods = req.Mods, true
		}
		if rows, err = s.scores.BeatmapScores(ctx, q); err != nil {
			return "", err
		}
		own, err = s.scores.BestScore(ctx, user.ID, req.BeatmapMD5, req.Mode)
		if err != nil && !errors.Is(err, domain.ErrScoreNotFound) {
			return "", err
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d|false|%d|%d|%d\n", clientStatus(bm.Status), bm.ID, bm.SetID, len(rows))
	b.WriteString("0\n")
	b.WriteString(bm.DisplayName() + "\n")
	b.WriteString("0\n")
	if own != nil {
		if err := s.writeRow(ctx, &b, own, user.Username); err != nil {
			return "", err
		}
	}
	b.WriteByte('\n')
	for i := range rows {
		if err := s.writeRow(ctx, &b, &rows[i].Score, rows[i].Username); err != nil {
			return "", err
		}
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// writeRow appends one score line without its trailing newline
func (s *ScoreboardService) writeRow(ctx context.Context, b *strings.Builder, sc *domain.Score, username string) error {
	pos, err := s.scores.BeatmapPosition(ctx, sc)
	if err != nil {
		return err
	}
	hasReplay := 0
	if sc.ReplayHash != "" {
		hasReplay = 1
	}
	fields := []string{
		strconv.FormatInt(sc.ID, 10),
		username,
		strconv.FormatInt(sc.TotalScore, 10),
		strconv.Itoa(sc.MaxCombo),
		strconv.Itoa(sc.Count50),
		strconv.Itoa(sc.Count100),
		strconv.Itoa(sc.Count300),
		strconv.Itoa(sc.CountMiss),
		strconv.Itoa(sc.CountKatu),
		strconv.Itoa(sc.CountGeki),
		boolDigit(sc.Perfect),
		strconv.FormatUint(uint64(sc.Mods), 10),
		strconv.FormatInt(sc.UserID, 10),
		strconv.FormatInt(pos+1, 10),
		strconv.FormatInt(sc.SubmittedAt.Unix(), 10),
		strconv.Itoa(hasReplay),
	}
	b.WriteString(strings.Join(fields, "|"))
	return nil
}

// clientStatus maps a mirror status to the value the scoreboard header carries
func clientStatus(status int) int {
	switch status {
	case domain.StatusRanked:
		return 2
	case domain.StatusApproved:
		return 3
	case domain.StatusQualified:
		return 4
	case domain.StatusLoved:
		return 5
	default:
		return 0
	}
}

func boolDigit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
