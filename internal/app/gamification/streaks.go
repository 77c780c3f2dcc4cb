package gamification

import (
	"context"
	"fmt"
	"log"

	"github.com/cittadino-app/cittadino/internal/domain"
	"github.com/cittadino-app/cittadino/internal/infra/observability"
)

// ─── Streaks ────────────────────────────────────────────────────────────────

// Streak returns the user's stored streak.
func (s *Service) Streak(ctx context.Context, userID string) (domain.StreakState, error) {
	if err := validUser(userID); err != nil {
		return domain.StreakState{}, err
	}
	u, err := s.store.Profile(ctx, userID)
	if err != nil {
		return domain.StreakState{}, err
	}
	return u.Streak(), nil
}

// UpdateStreak records today's activity. Repeated calls on the same day
// leave the streak unchanged.
//
// The write is a compare-and-swap on the previous activity date. A writer
// that loses re-reads and recomputes, so two concurrent first calls of the
// day increase the streak once. ErrStreakConflict is returned if every retry
// loses.
func (s *Service) UpdateStreak(ctx context.Context, userID string) (domain.StreakOutcome, error) {
	if err := validUser(userID); err != nil {
		return domain.StreakOutcome{}, err
	}
	premium, err := s.store.IsPremium(ctx, userID, s.now())
	if err != nil {
		return domain.StreakOutcome{}, fmt.Errorf("premium status: %w", err)
	}
	protection := 0
	if premium {
		protection = s.cfg.StreakProtectionDays
	}
	today := s.Today()

	for attempt := 0; attempt < s.cfg.StreakRetries; attempt++ {
		u, err := s.store.Profile(ctx, userID)
		if err != nil {
			return domain.StreakOutcome{}, fmt.Errorf("read streak: %w", err)
		}
		prev := u.Streak()
		next, out := domain.NextStreak(prev, today, protection)
		if !out.Increased && !out.Reset {
			observability.StreakUpdates.WithLabelValues("unchanged").Inc()
			return out, nil
		}

		ok, err := s.store.CompareAndSwapStreak(ctx, userID, domain.DateString(prev.LastActivityDate), next)
		if err != nil {
			return domain.StreakOutcome{}, err
		}
		if !ok {
			observability.StreakConflicts.Inc()
			continue
		}
		return out, s.afterStreak(ctx, userID, out)
	}
	return domain.StreakOutcome{}, domain.ErrStreakConflict
}

// afterStreak runs once per day, for the writer that won the swap.
func (s *Service) afterStreak(ctx context.Context, userID string, out domain.StreakOutcome) error {
	switch {
	case out.Protected:
		observability.StreakUpdates.WithLabelValues("protected").Inc()
	case out.Increased:
		observability.StreakUpdates.WithLabelValues("increased").Inc()
	default:
		observability.StreakUpdates.WithLabelValues("reset").Inc()
	}
	if s.cache != nil {
		if err := s.cache.SetStreak(ctx, userID, out.Longest); err != nil {
			log.Printf("[gamification] leaderboard cache streak for %s: %v", userID, err)
		}
	}
	s.publish(userID, EventStreak, out)

	if out.Increased {
		for _, def := range domain.AchievementsIn(domain.AchievementStreak) {
			if _, err := s.UpdateAchievementProgress(ctx, userID, def.ID, float64(out.Days)); err != nil {
				return err
			}
		}
		if out.MilestoneReached {
			s.notify(ctx, userID, domain.NotifyMilestone,
				fmt.Sprintf("%d giorni di fila!", out.Milestone),
				fmt.Sprintf("Bonus di %d XP per la tua costanza.", out.BonusXP))
		}
		if out.BonusXP > 0 {
			if _, err := s.AwardXP(ctx, userID, out.BonusXP, domain.ReasonStreakBonus); err != nil {
				return err
			}
		}
	}
	// A new active day, whether the streak grew or restarted.
	return s.trackChallenge(ctx, userID, domain.MetricStreakDays, 1)
}
