// Package beatmap resolves beatmap metadata from a cheesegull compatible mirror.
package beatmap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bancho-server/internal/cache"
	"github.com/bancho-server/internal/domain"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// cached is the cache form of a beatmap; domain.Beatmap hides some fields from JSON
type cached struct {
	ID         int32   `json:"id"`
	SetID      int32   `json:"set_id"`
	MD5        string  `json:"md5"`
	DiffName   string  `json:"diff"`
	Mode       int     `json:"mode"`
	StarRating float64 `json:"stars"`
	MaxCombo   int     `json:"max_combo"`
	Title      string  `json:"title"`
	Artist     string  `json:"artist"`
	Status     int     `json:"status"`
}

// Mirror fetches beatmap sets over HTTP and caches resolved difficulties
type Mirror struct {
	baseURL string
	client  *http.Client
	cache   cache.Cache
	ttl     time.Duration
	logger  *slog.Logger
}

// NewMirror creates a mirror client. c may be nil to disable caching.
func NewMirror(baseURL string, timeout time.Duration, c cache.Cache, ttl time.Duration, logger *slog.Logger) *Mirror {
	return &Mirror{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		cache:   c,
		ttl:     ttl,
		logger:  logger,
	}
}

func cacheKey(md5 string) string {
	return "beatmap:" + md5
}

// ByMD5 returns the difficulty with the given file hash
func (m *Mirror) ByMD5(ctx context.Context, md5 string) (*domain.Beatmap, error) {
	if md5 == "" {
		return nil, domain.ErrBeatmapNotFound
	}
	if m.cache != nil {
		var c cached
		ok, err := cache.GetJSON(ctx, m.cache, cacheKey(md5), &c)
		if err != nil {
			m.logger.Warn("beatmap cache read failed", "md5", md5, "error", err)
		}
		if ok {
			return c.beatmap(), nil
		}
	}

	var bm domain.Beatmap
	if err := m.get(ctx, "/md5/"+md5, &bm); err != nil {
		return nil, err
	}
	var set domain.BeatmapSet
	if err := m.get(ctx, fmt.Sprintf("/s/%d", bm.SetID), &set); err != nil {
		return nil, err
	}
	found, ok := set.Find(md5)
	if !ok {
		return nil, fmt.Errorf("set %d has no difficulty %s: %w", set.SetID, md5, domain.ErrBeatmapNotFound)
	}

	if m.cache != nil {
		if err := cache.SetJSON(ctx, m.cache, cacheKey(md5), toCached(found), m.ttl); err != nil {
			m.logger.Warn("beatmap cache write failed", "md5", md5, "error", err)
		}
	}
	return found, nil
}

func (m *Mirror) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building mirror request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("querying mirror: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("mirror %s: %w", path, domain.ErrBeatmapNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mirror %s: unexpected status %d", path, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("reading mirror response: %w", err)
	}
	if len(body) == 0 || string(body) == "null" {
		return fmt.Errorf("mirror %s: %w", path, domain.ErrBeatmapNotFound)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decoding mirror response: %w", err)
	}
	return nil
}

func toCached(b *domain.Beatmap) cached {
	return cached{
		ID:         b.ID,
		SetID:      b.SetID,
		MD5:        b.MD5,
		DiffName:   b.DiffName,
		Mode:       b.Mode,
		StarRating: b.StarRating,
		MaxCombo:   b.MaxCombo,
		Title:      b.Title,
		Artist:     b.Artist,
		Status:     b.Status,
	}
}

func (c cached) beatmap() *domain.Beatmap {
	return &domain.Beatmap{
		ID:         c.ID,
		SetID:      c.SetID,
		MD5:        c.MD5,
		DiffName:   c.DiffName,
		Mode:       c.Mode,
		StarRating: c.StarRating,
		MaxCombo:   c.MaxCombo,
		Title:      c.Title,
		Artist:     c.Artist,
		Status:     c.Status,
	}
}

// IsNotFound reports whether err means the mirror does not know the beatmap
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrBeatmapNotFound)
}
