package cache

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cittadino-app/cittadino/internal/domain"
)

func newTestLeaderboard(t *testing.T) *Leaderboard {
	t.Helper()
	url := os.Getenv("CITTADINO_TEST_REDIS_URL")
	if url == "" {
		t.Skip("CITTADINO_TEST_REDIS_URL not set")
	}
	client, err := Connect(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	lb := NewLeaderboard(client, "test-"+uuid.NewString())
	t.Cleanup(func() {
		ctx := context.Background()
		for _, b := range []domain.Board{domain.BoardWeeklyXP, domain.BoardLifetimeXP, domain.BoardStreak} {
			client.Del(ctx, lb.key(b))
		}
	})
	return lb
}

func TestKeys(t *testing.T) {
	lb := NewLeaderboard(nil, "")
	assert.Equal(t, "leaderboard:weekly_xp", lb.key(domain.BoardWeeklyXP))
	assert.Equal(t, "custom:streak", NewLeaderboard(nil, "custom").key(domain.BoardStreak))
}

func TestLeaderboard_XP(t *testing.T) {
	lb := newTestLeaderboard(t)
	ctx := context.Background()

	require.NoError(t, lb.SetXP(ctx, "anna", 50, 50))
	require.NoError(t, lb.SetXP(ctx, "bruno", 80, 80))
	require.NoError(t, lb.SetXP(ctx, "anna", 90, 90))
	require.NoError(t, lb.SetXP(ctx, "anna", 60, 60), "stale totals are ignored")

	top, err := lb.Top(ctx, domain.BoardWeeklyXP, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "anna", top[0].UserID)
	assert.Equal(t, int64(90), top[0].Score)
	assert.Equal(t, int64(2), top[1].Rank)

	rank, err := lb.Rank(ctx, domain.BoardLifetimeXP, "bruno")
	require.NoError(t, err)
	assert.Equal(t, int64(2), rank)

	rank, err = lb.Rank(ctx, domain.BoardLifetimeXP, "nobody")
	require.NoError(t, err)
	assert.Zero(t, rank)

	require.NoError(t, lb.ResetWeekly(ctx))
	n, err := lb.Size(ctx, domain.BoardWeeklyXP)
	require.NoError(t, err)
	assert.Zero(t, n)
	n, _ = lb.Size(ctx, domain.BoardLifetimeXP)
	assert.Equal(t, int64(2), n)
}

func TestLeaderboard_StreakKeepsMax(t *testing.T) {
	lb := newTestLeaderboard(t)
	ctx := context.Background()

	require.NoError(t, lb.SetStreak(ctx, "anna", 12))
	require.NoError(t, lb.SetStreak(ctx, "anna", 3))

	top, err := lb.Top(ctx, domain.BoardStreak, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, int64(12), top[0].Score)
}

func TestLeaderboard_Seed(t *testing.T) {
	lb := newTestLeaderboard(t)
	ctx := context.Background()

	require.NoError(t, lb.Seed(ctx, domain.BoardLifetimeXP, []domain.LeaderboardEntry{
		{UserID: "a", Score: 10}, {UserID: "b", Score: 30},
	}))
	top, err := lb.Top(ctx, domain.BoardLifetimeXP, 5)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "b", top[0].UserID)
}

func TestLeaderboard_SetXPOutsideSeed(t *testing.T) {
	lb := newTestLeaderboard(t)
	ctx := context.Background()

	require.NoError(t, lb.Seed(ctx, domain.BoardLifetimeXP, []domain.LeaderboardEntry{
		{UserID: "a", Score: 500}, {UserID: "b", Score: 300},
	}))
	// "c" already holds 400 XP in the database but was not seeded.
	require.NoError(t, lb.SetXP(ctx, "c", 10, 410))

	top, err := lb.Top(ctx, domain.BoardLifetimeXP, 3)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, "c", top[1].UserID)
	assert.Equal(t, int64(410), top[1].Score)
}
