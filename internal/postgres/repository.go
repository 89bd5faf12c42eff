package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bancho-server/internal/auth"
	"github.com/bancho-server/internal/config"
	"github.com/bancho-server/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL-based data access
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Ping checks the database connection
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			username VARCHAR(32) NOT NULL,
			safe_name VARCHAR(32) NOT NULL UNIQUE,
			password_hash VARCHAR(72) NOT NULL,
			country SMALLINT DEFAULT 0,
			privileges INT DEFAULT 1,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS leaderboard_entries (
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			mode SMALLINT NOT NULL,
			ranked_score BIGINT NOT NULL DEFAULT 0,
			total_score BIGINT NOT NULL DEFAULT 0,
			play_count BIGINT NOT NULL DEFAULT 0,
			pp DOUBLE PRECISION NOT NULL DEFAULT 0,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, mode)
		)`,
		`CREATE TABLE IF NOT EXISTS scores (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			beatmap_md5 CHAR(32) NOT NULL,
			mode SMALLINT NOT NULL,
			count_300 INT NOT NULL,
			count_100 INT NOT NULL,
			count_50 INT NOT NULL,
			count_geki INT NOT NULL,
			count_katu INT NOT NULL,
			count_miss INT NOT NULL,
			max_combo INT NOT NULL,
			perfect BOOLEAN NOT NULL,
			mods BIGINT NOT NULL,
			total_score BIGINT NOT NULL,
			accuracy DOUBLE PRECISION NOT NULL,
			pp DOUBLE PRECISION NOT NULL,
			replay_hash VARCHAR(32) NOT NULL DEFAULT '',
			submitted_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_leaderboard_entries_pp ON leaderboard_entries(mode, pp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_scores_user_beatmap ON scores(user_id, beatmap_md5, mode)`,
		`CREATE INDEX IF NOT EXISTS idx_scores_beatmap ON scores(beatmap_md5, mode, total_score DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_scores_user_pp ON scores(user_id, mode, pp DESC)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// CreateUser inserts a user and sets its id
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (username, safe_name, password_hash, country, privileges, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	err := r.pool.QueryRow(ctx, query,
		user.Username,
		auth.SafeName(user.Username),
		user.PasswordHash,
		int16(user.Country),
		user.Privileges,
		user.CreatedAt,
	).Scan(&user.ID)
	if err != nil {
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

func (r *Repository) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	return r.getUser(ctx, `WHERE id = $1`, id)
}

func (r *Repository) GetUserBySafeName(ctx context.Context, safeName string) (*domain.User, error) {
	return r.getUser(ctx, `WHERE safe_name = $1`, safeName)
}

func (r *Repository) getUser(ctx context.Context, where string, arg any) (*domain.User, error) {
	query := `SELECT id, username, password_hash, country, privileges, created_at FROM users ` + where
	var (
		u       domain.User
		country int16
	)
	err := r.pool.QueryRow(ctx, query, arg).Scan(&u.ID, &u.Username, &u.PasswordHash, &country, &u.Privileges, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user: %w", err)
	}
	u.Country = uint8(country)
	return &u, nil
}

// GetOrCreateEntry returns the user's leaderboard row, creating the per-mode rows on first use
func (r *Repository) GetOrCreateEntry(ctx context.Context, userID int64) (*domain.LeaderboardEntry, error) {
	batch := &pgx.Batch{}
	for _, mode := range domain.Modes {
		batch.Queue(`
			INSERT INTO leaderboard_entries (user_id, mode)
			VALUES ($1, $2)
			ON CONFLICT (user_id, mode) DO NOTHING
		`, userID, int16(mode))
	}
	br := r.pool.SendBatch(ctx, batch)
	for range domain.Modes {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return nil, fmt.Errorf("creating leaderboard entry: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return nil, fmt.Errorf("creating leaderboard entry: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT user_id, mode, ranked_score, total_score, play_count, pp, updated_at
		FROM leaderboard_entries
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("getting leaderboard entry: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, domain.ErrEntryNotFound
	}
	return &entries[0], nil
}

// AddStats adds delta to a mode's counters in one statement and returns the new values
func (r *Repository) AddStats(ctx context.Context, userID int64, mode domain.PlayMode, delta domain.StatsDelta) (domain.ModeStats, error) {
	if !mode.Valid() {
		return domain.ModeStats{}, domain.ErrInvalidMode
	}
	query := `
		INSERT INTO leaderboard_entries (user_id, mode, ranked_score, total_score, play_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, mode)
		DO UPDATE SET
			ranked_score = leaderboard_entries.ranked_score + $3,
			total_score = leaderboard_entries.total_score + $4,
			play_count = leaderboard_entries.play_count + $5,
			updated_at = $6
		RETURNING ranked_score, total_score, play_count, pp
	`
	var ranked, total, plays int64
	var st domain.ModeStats
	err := r.pool.QueryRow(ctx, query,
		userID,
		int16(mode),
		int64(delta.RankedScore),
		int64(delta.TotalScore),
		int64(delta.PlayCount),
		time.Now(),
	).Scan(&ranked, &total, &plays, &st.PerformancePoints)
	if err != nil {
		return domain.ModeStats{}, fmt.Errorf("adding stats: %w", err)
	}
	st.RankedScore = uint64(ranked)
	st.TotalScore = uint64(total)
	st.PlayCount = uint64(plays)
	return st, nil
}

func (r *Repository) SetPerformancePoints(ctx context.Context, userID int64, mode domain.PlayMode, pp float64) error {
	if !mode.Valid() {
		return domain.ErrInvalidMode
	}
	query := `UPDATE leaderboard_entries SET pp = $3, updated_at = $4 WHERE user_id = $1 AND mode = $2`
	result, err := r.pool.Exec(ctx, query, userID, int16(mode), pp, time.Now())
	if err != nil {
		return fmt.Errorf("setting pp: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrEntryNotFound
	}
	return nil
}

// CountAhead counts the rows of a mode with strictly more pp
func (r *Repository) CountAhead(ctx context.Context, mode domain.PlayMode, pp float64) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM leaderboard_entries WHERE mode = $1 AND pp > $2`, int16(mode), pp).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting entries ahead: %w", err)
	}
	return n, nil
}

// ListEntries returns every leaderboard row (for sync)
func (r *Repository) ListEntries(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, mode, ranked_score, total_score, play_count, pp, updated_at
		FROM leaderboard_entries
		ORDER BY user_id, mode
	`)
	if err != nil {
		return nil, fmt.Errorf("listing leaderboard entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// scanEntries folds per-mode rows ordered by user into entries
func scanEntries(rows pgx.Rows) ([]domain.LeaderboardEntry, error) {
	var entries []domain.LeaderboardEntry
	for rows.Next() {
		var (
			userID               int64
			mode                 int16
			ranked, total, plays int64
			pp                   float64
			updatedAt            time.Time
		)
		if err := rows.Scan(&userID, &mode, &ranked, &total, &plays, &pp, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning leaderboard entry: %w", err)
		}
		if n := len(entries); n == 0 || entries[n-1].UserID != userID {
			entries = append(entries, domain.LeaderboardEntry{UserID: userID})
		}
		e := &entries[len(entries)-1]
		if m := domain.PlayMode(mode); m.Valid() {
			e.Modes[m] = domain.ModeStats{
				RankedScore:       uint64(ranked),
				TotalScore:        uint64(total),
				PlayCount:         uint64(plays),
				PerformancePoints: pp,
			}
		}
		if updatedAt.After(e.UpdatedAt) {
			e.UpdatedAt = updatedAt
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading leaderboard entries: %w", err)
	}
	return entries, nil
}

const scoreColumns = `id, user_id, beatmap_md5, mode, count_300, count_100, count_50, count_geki, count_katu,
	count_miss, max_combo, perfect, mods, total_score, accuracy, pp, replay_hash, submitted_at`

// InsertScore stores a score and sets its id
func (r *Repository) InsertScore(ctx context.Context, s *domain.Score) error {
	query := `
		INSERT INTO scores (user_id, beatmap_md5, mode, count_300, count_100, count_50, count_geki, count_katu,
			count_miss, max_combo, perfect, mods, total_score, accuracy, pp, replay_hash, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id
	`
	if s.SubmittedAt.IsZero() {
		s.SubmittedAt = time.Now()
	}
	err := r.pool.QueryRow(ctx, query,
		s.UserID, s.BeatmapMD5, int16(s.Mode),
		s.Count300, s.Count100, s.Count50, s.CountGeki, s.CountKatu, s.CountMiss,
		s.MaxCombo, s.Perfect, int64(s.Mods), s.TotalScore, s.Accuracy, s.PerformancePoints,
		s.ReplayHash, s.SubmittedAt,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("inserting score: %w", err)
	}
	return nil
}

func (r *Repository) DeleteScore(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM scores WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting score: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrScoreNotFound
	}
	return nil
}

func (r *Repository) GetScore(ctx context.Context, id int64) (*domain.Score, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+scoreColumns+` FROM scores WHERE id = $1`, id)
	return scanScore(row)
}

// BestScore returns the highest total score of a user on a beatmap
func (r *Repository) BestScore(ctx context.Context, userID int64, beatmapMD5 string, mode domain.PlayMode) (*domain.Score, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+scoreColumns+`
		FROM scores
		WHERE user_id = $1 AND beatmap_md5 = $2 AND mode = $3
		ORDER BY total_score DESC, id ASC
		LIMIT 1
	`, userID, beatmapMD5, int16(mode))
	return scanScore(row)
}

// BeatmapPosition counts other users whose best score on the beatmap is strictly higher
func (r *Repository) BeatmapPosition(ctx context.Context, s *domain.Score) (int64, error) {
	query := `
		SELECT COUNT(*) FROM (
			SELECT user_id, MAX(total_score) AS best
			FROM scores
			WHERE beatmap_md5 = $1 AND mode = $2 AND user_id <> $3
			GROUP BY user_id
		) b
		WHERE b.best > $4
	`
	var n int64
	if err := r.pool.QueryRow(ctx, query, s.BeatmapMD5, int16(s.Mode), s.UserID, s.TotalScore).Scan(&n); err != nil {
		return 0, fmt.Errorf("ranking score on beatmap: %w", err)
	}
	return n, nil
}

// TopScores returns a user's scores in a mode by pp, skipping any with excluded mods
func (r *Repository) TopScores(ctx context.Context, userID int64, mode domain.PlayMode, excluded domain.Mods, limit int) ([]domain.Score, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+scoreColumns+`
		FROM scores
		WHERE user_id = $1 AND mode = $2 AND (mods & $3) = 0
		ORDER BY pp DESC, id ASC
		LIMIT $4
	`, userID, int16(mode), int64(excluded), limit)
	if err != nil {
		return nil, fmt.Errorf("getting top scores: %w", err)
	}
	defer rows.Close()

	var scores []domain.Score
	for rows.Next() {
		s, err := scanScore(rows)
		if err != nil {
			return nil, err
		}
		scores = append(scores, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading top scores: %w", err)
	}
	return scores, nil
}

// BeatmapScores returns the best score of every user on a beatmap, highest total first
func (r *Repository) BeatmapScores(ctx context.Context, q domain.BoardQuery) ([]domain.BoardScore, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT b.*, u.username FROM (
			SELECT DISTINCT ON (user_id) `+scoreColumns+`
			FROM scores
			WHERE beatmap_md5 = $1 AND mode = $2 AND (NOT $3::boolean OR mods = $4)
			ORDER BY user_id, total_score DESC, id ASC
		) b
		JOIN users u ON u.id = b.user_id
		ORDER BY b.total_score DESC, b.id ASC
		LIMIT $5
	`, q.BeatmapMD5, int16(q.Mode), q.MatchMods, int64(q.Mods), q.Limit)
	if err != nil {
		return nil, fmt.Errorf("getting beatmap scores: %w", err)
	}
	defer rows.Close()

	var scores []domain.BoardScore
	for rows.Next() {
		var name string
		s, err := scanScore(rows, &name)
		if err != nil {
			return nil, err
		}
		scores = append(scores, domain.BoardScore{Score: *s, Username: name})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading beatmap scores: %w", err)
	}
	return scores, nil
}

// scanScore reads the scoreColumns of a row followed by any extra columns
func scanScore(row pgx.Row, extra ...any) (*domain.Score, error) {
	var (
		s    domain.Score
		mode int16
		mods int64
	)
	dest := []any{
		&s.ID, &s.UserID, &s.BeatmapMD5, &mode,
		&s.Count300, &s.Count100, &s.Count50, &s.CountGeki, &s.CountKatu, &s.CountMiss,
		&s.MaxCombo, &s.Perfect, &mods, &s.TotalScore, &s.Accuracy, &s.PerformancePoints,
		&s.ReplayHash, &s.SubmittedAt,
	}
	err := row.Scan(append(dest, extra...)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrScoreNotFound
		}
		return nil, fmt.Errorf("scanning score: %w", err)
	}
	s.Mode = domain.PlayMode(mode)
	s.Mods = domain.Mods(mods)
	return &s, nil
}
