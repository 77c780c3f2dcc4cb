package gamification

import (
	"context"
	"fmt"
	"log"

	"github.com/cittadino-app/cittadino/internal/domain"
	"github.com/cittadino-app/cittadino/internal/infra/observability"
)

// ─── Leaderboards ───────────────────────────────────────────────────────────

const (
	// maxBoardSize bounds leaderboard reads.
	maxBoardSize = 1000
	// rankScanLimit bounds cache warm-up and the database scan used when the
	// cache is down, so both rank the same users.
	rankScanLimit = 10000
)

// Top returns the best limit users on board. Reads go to the cache when one
// is configured and fall back to the database on error.
func (s *Service) Top(ctx context.Context, board domain.Board, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 || limit > maxBoardSize {
		limit = 10
	}
	if s.cache != nil {
		entries, err := s.cache.Top(ctx, board, limit)
		if err == nil {
			return entries, nil
		}
		observability.LeaderboardFallbacks.Inc()
		log.Printf("[gamification] leaderboard cache top %s: %v (using database)", board, err)
	}
	entries, err := s.store.TopProfiles(ctx, board, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard %s: %w", board, err)
	}
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}
	return entries, nil
}

// Rank returns the user's 1-based rank on board, or 0 when unranked.
func (s *Service) Rank(ctx context.Context, board domain.Board, userID string) (int64, error) {
	if s.cache != nil {
		rank, err := s.cache.Rank(ctx, board, userID)
		if err == nil {
			return rank, nil
		}
		observability.LeaderboardFallbacks.Inc()
		log.Printf("[gamification] leaderboard cache rank %s: %v (using database)", board, err)
	}
	entries, err := s.store.TopProfiles(ctx, board, rankScanLimit)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if e.UserID == userID {
			return e.Rank, nil
		}
	}
	return 0, nil
}

// ResetWeekly zeroes weekly XP in the database and drops the cached board.
func (s *Service) ResetWeekly(ctx context.Context) (int64, error) {
	n, err := s.store.ResetWeeklyXP(ctx)
	if err != nil {
		return 0, fmt.Errorf("reset weekly xp: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.ResetWeekly(ctx); err != nil {
			log.Printf("[gamification] leaderboard cache reset: %v", err)
		}
	}
	log.Printf("[gamification] weekly xp reset for %d users", n)
	return n, nil
}

// WarmLeaderboards replaces every cached board with the database's. The
// daemon runs it at startup and periodically, which also repairs writes lost
// while the cache was unreachable.
func (s *Service) WarmLeaderboards(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	for _, b := range []domain.Board{domain.BoardWeeklyXP, domain.BoardLifetimeXP, domain.BoardStreak} {
		entries, err := s.store.TopProfiles(ctx, b, rankScanLimit)
		if err != nil {
			return fmt.Errorf("read %s: %w", b, err)
		}
		if err := s.cache.Seed(ctx, b, entries); err != nil {
			return fmt.Errorf("seed %s: %w", b, err)
		}
	}
	return nil
}
