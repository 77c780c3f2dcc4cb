// Package cache keeps leaderboards in Redis sorted sets. The database stays
// the source of truth; a cold or unreachable cache is rebuilt from it.
package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/cittadino-app/cittadino/internal/domain"
)

// Leaderboard maintains one ZSET per board under a key prefix.
type Leaderboard struct {
	client *redis.Client
	prefix string
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewLeaderboard wraps client. An empty prefix defaults to "leaderboard".
func NewLeaderboard(client *redis.Client, prefix string) *Leaderboard {
	if prefix == "" {
		prefix = "leaderboard"
	}
	return &Leaderboard{client: client, prefix: prefix}
}

func (l *Leaderboard) key(board domain.Board) string {
	return l.prefix + ":" + string(board)
}

// SetXP writes the user's weekly and lifetime totals in one round trip.
// Scores are absolute, so a user missing from the board gets the right value
// and a lower, out of order total never replaces a higher one.
func (l *Leaderboard) SetXP(ctx context.Context, userID string, weekly, lifetime int64) error {
	pipe := l.client.TxPipeline()
	pipe.ZAddGT(ctx, l.key(domain.BoardWeeklyXP), redis.Z{Score: float64(weekly), Member: userID})
	pipe.ZAddGT(ctx, l.key(domain.BoardLifetimeXP), redis.Z{Score: float64(lifetime), Member: userID})
	_, err := pipe.Exec(ctx)
	return err
}

// SetStreak records the user's longest streak. Lower values never replace a
// higher one.
func (l *Leaderboard) SetStreak(ctx context.Context, userID string, longest int) error {
	return l.client.ZAddGT(ctx, l.key(domain.BoardStreak), redis.Z{
		Score:  float64(longest),
		Member: userID,
	}).Err()
}

// ResetWeekly drops the weekly board.
func (l *Leaderboard) ResetWeekly(ctx context.Context) error {
	return l.client.Del(ctx, l.key(domain.BoardWeeklyXP)).Err()
}

// Seed replaces a board with entries, typically read from the database.
func (l *Leaderboard) Seed(ctx context.Context, board domain.Board, entries []domain.LeaderboardEntry) error {
	pipe := l.client.TxPipeline()
	pipe.Del(ctx, l.key(board))
	if len(entries) > 0 {
		members := make([]redis.Z, len(entries))
		for i, e := range entries {
			members[i] = redis.Z{Score: float64(e.Score), Member: e.UserID}
		}
		pipe.ZAdd(ctx, l.key(board), members...)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Size returns how many users a board holds.
func (l *Leaderboard) Size(ctx context.Context, board domain.Board) (int64, error) {
	return l.client.ZCard(ctx, l.key(board)).Result()
}

// Top returns the best limit entries, highest score first.
func (l *Leaderboard) Top(ctx context.Context, board domain.Board, limit int) ([]domain.LeaderboardEntry, error) {
	results, err := l.client.ZRevRangeWithScores(ctx, l.key(board), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]domain.LeaderboardEntry, 0, len(results))
	for i, r := range results {
		member, _ := r.Member.(string)
		entries = append(entries, domain.LeaderboardEntry{
			Rank:   int64(i) + 1,
			UserID: member,
			Score:  int64(r.Score),
		})
	}
	return entries, nil
}

// Rank returns the user's 1-based position, or 0 when they are not ranked.
func (l *Leaderboard) Rank(ctx context.Context, board domain.Board, userID string) (int64, error) {
	rank, err := l.client.ZRevRank(ctx, l.key(board), userID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return rank + 1, nil
}
