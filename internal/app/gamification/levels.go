package gamification

import (
	"context"
	"fmt"
	"log"

	"github.com/cittadino-app/cittadino/internal/domain"
	"github.com/cittadino-app/cittadino/internal/infra/observability"
)

// ─── Levels & XP ────────────────────────────────────────────────────────────

// LevelStatus is the user's position in the level table.
type LevelStatus struct {
	XP          int64         `json:"xp"`
	Current     domain.Level  `json:"current"`
	Next        *domain.Level `json:"next,omitempty"`
	XPToNext    int64         `json:"xp_to_next"`
	ProgressPct float64       `json:"progress_pct"`
}

func levelStatus(xp int64) LevelStatus {
	st := LevelStatus{
		XP:          xp,
		Current:     domain.LevelInfo(domain.LevelFor(xp)),
		XPToNext:    domain.XPToNext(xp),
		ProgressPct: domain.LevelProgressPct(xp),
	}
	if st.Current.Level < domain.MaxLevel {
		next := domain.LevelInfo(st.Current.Level + 1)
		st.Next = &next
	}
	return st
}

// Profile returns the user's gamification record with the active weekly
// challenge progress attached.
func (s *Service) Profile(ctx context.Context, userID string) (domain.UserGamification, error) {
	if err := validUser(userID); err != nil {
		return domain.UserGamification{}, err
	}
	u, err := s.store.Profile(ctx, userID)
	if err != nil {
		return u, fmt.Errorf("profile: %w", err)
	}
	cs, err := s.ChallengeStatus(ctx, userID)
	if err == nil {
		u.WeeklyChallenge = &cs.Progress
	}
	return u, nil
}

// Level returns the user's level status.
func (s *Service) Level(ctx context.Context, userID string) (LevelStatus, error) {
	if err := validUser(userID); err != nil {
		return LevelStatus{}, err
	}
	u, err := s.store.Profile(ctx, userID)
	if err != nil {
		return LevelStatus{}, err
	}
	return levelStatus(u.XP), nil
}

// AwardXP adds points to the user and runs the follow-ups: level
// achievements and a notification on level-up, and XP challenge progress.
// points must be positive.
func (s *Service) AwardXP(ctx context.Context, userID string, points int64, reason string) (domain.XPChange, error) {
	if err := validUser(userID); err != nil {
		return domain.XPChange{}, err
	}
	if points <= 0 {
		return domain.XPChange{}, fmt.Errorf("award %d xp: %w", points, domain.ErrInvalidInput)
	}
	if reason == "" {
		reason = domain.ReasonManual
	}

	change, err := s.store.AddXP(ctx, userID, points, reason, s.now())
	if err != nil {
		return change, fmt.Errorf("award xp: %w", err)
	}
	observability.XPAwarded.WithLabelValues(reason).Add(float64(points))
	if s.cache != nil {
		if err := s.cache.SetXP(ctx, userID, change.WeeklyXP, change.LifetimeXP); err != nil {
			log.Printf("[gamification] leaderboard cache xp for %s: %v (fixed by the next sync)", userID, err)
		}
	}
	s.publish(userID, EventXP, change)

	if change.LeveledUp() {
		observability.LevelUps.Inc()
		lvl := domain.LevelInfo(change.NewLevel)
		s.notify(ctx, userID, domain.NotifyLevelUp,
			fmt.Sprintf("Livello %d raggiunto!", lvl.Level),
			fmt.Sprintf("Ora sei %s.", lvl.Title))
		s.publish(userID, EventLevelUp, lvl)
		if err := s.CheckLevelAchievements(ctx, userID, change.NewLevel); err != nil {
			return change, err
		}
	}

	// Challenge rewards do not count toward XP challenges.
	if reason != domain.ReasonChallenge {
		if err := s.trackChallenge(ctx, userID, domain.MetricXP, points); err != nil {
			return change, err
		}
	}
	return change, nil
}

// XPHistory returns the user's latest ledger rows.
func (s *Service) XPHistory(ctx context.Context, userID string, limit int) ([]domain.XPEvent, error) {
	if err := validUser(userID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.store.XPEvents(ctx, userID, limit)
}
