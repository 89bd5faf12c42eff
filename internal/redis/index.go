package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/bancho-server/internal/domain"
	"github.com/redis/go-redis/v9"
)

// PositionIndex keeps one sorted set per mode scored by performance points
type PositionIndex struct {
	client *redis.Client
	logger *slog.Logger
}

// NewPositionIndex creates a Redis backed position index
func NewPositionIndex(client *redis.Client, logger *slog.Logger) *PositionIndex {
	return &PositionIndex{
		client: client,
		logger: logger,
	}
}

// rankingKey returns the Redis key for a mode's sorted set
func (x *PositionIndex) rankingKey(mode domain.PlayMode) string {
	return fmt.Sprintf("ranking:%s:pp", mode)
}

// SetPerformancePoints sets a user's PP in the mode's ordering
func (x *PositionIndex) SetPerformancePoints(ctx context.Context, mode domain.PlayMode, userID int64, pp float64) error {
	err := x.client.ZAdd(ctx, x.rankingKey(mode), redis.Z{
		Score:  pp,
		Member: strconv.FormatInt(userID, 10),
	}).Err()
	if err != nil {
		return fmt.Errorf("setting pp: %w", err)
	}
	return nil
}

// CountAhead counts members with strictly more PP than pp
func (x *PositionIndex) CountAhead(ctx context.Context, mode domain.PlayMode, pp float64) (int64, error) {
	lower := "(" + strconv.FormatFloat(pp, 'g', -1, 64)
	n, err := x.client.ZCount(ctx, x.rankingKey(mode), lower, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("counting entries ahead: %w", err)
	}
	return n, nil
}

// Top returns the n best users of a mode (descending order)
func (x *PositionIndex) Top(ctx context.Context, mode domain.PlayMode, n int) ([]domain.RankedPosition, error) {
	results, err := x.client.ZRevRangeWithScores(ctx, x.rankingKey(mode), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting top n: %w", err)
	}

	out := make([]domain.RankedPosition, 0, len(results))
	for i, result := range results {
		member, _ := result.Member.(string)
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			x.logger.Warn("skipping malformed ranking member", "member", member)
			continue
		}
		out = append(out, domain.RankedPosition{
			UserID:            id,
			Mode:              mode.String(),
			Rank:              int64(i + 1),
			PerformancePoints: result.Score,
		})
	}
	return out, nil
}

// Replace rebuilds a mode's ordering from pps. The new set is written to a
// scratch key and renamed over the live one.
func (x *PositionIndex) Replace(ctx context.Context, mode domain.PlayMode, pps map[int64]float64) error {
	key := x.rankingKey(mode)
	if len(pps) == 0 {
		if err := x.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("clearing ranking: %w", err)
		}
		return nil
	}

	scratch := key + ":rebuild"
	members := make([]redis.Z, 0, len(pps))
	for id, pp := range pps {
		members = append(members, redis.Z{Score: pp, Member: strconv.FormatInt(id, 10)})
	}

	pipe := x.client.TxPipeline()
	pipe.Del(ctx, scratch)
	pipe.ZAdd(ctx, scratch, members...)
	pipe.Rename(ctx, scratch, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rebuilding ranking: %w", err)
	}
	return nil
}

// Count returns the number of users ranked in a mode
func (x *PositionIndex) Count(ctx context.Context, mode domain.PlayMode) (int64, error) {
	count, err := x.client.ZCard(ctx, x.rankingKey(mode)).Result()
	if err != nil {
		return 0, fmt.Errorf("getting count: %w", err)
	}
	return count, nil
}
