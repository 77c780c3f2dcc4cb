package gamification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cittadino-app/cittadino/internal/domain"
	"github.com/cittadino-app/cittadino/internal/infra/observability"
)

// ─── Weekly Challenges ──────────────────────────────────────────────────────

// ChallengeStatus is the active challenge with the user's progress.
type ChallengeStatus struct {
	Challenge   domain.WeeklyChallenge   `json:"challenge"`
	Progress    domain.ChallengeProgress `json:"progress"`
	ProgressPct float64                  `json:"progress_pct"`
}

// ActiveChallenge returns the challenge running now.
func (s *Service) ActiveChallenge(ctx context.Context) (domain.WeeklyChallenge, error) {
	return s.store.ActiveChallenge(ctx, s.now())
}

// ChallengeStatus returns the active challenge and the user's progress on it.
func (s *Service) ChallengeStatus(ctx context.Context, userID string) (ChallengeStatus, error) {
	if err := validUser(userID); err != nil {
		return ChallengeStatus{}, err
	}
	c, err := s.ActiveChallenge(ctx)
	if err != nil {
		return ChallengeStatus{}, err
	}
	p, err := s.store.ChallengeProgress(ctx, userID, c.ID)
	if err != nil {
		return ChallengeStatus{}, err
	}
	if p.Target == 0 {
		p.Target = c.Target
	}
	return ChallengeStatus{Challenge: c, Progress: p, ProgressPct: p.ProgressPct()}, nil
}

// AddChallengeProgress adds delta to the user's progress on the active
// challenge. Completion and its reward happen once; later deltas still count.
func (s *Service) AddChallengeProgress(ctx context.Context, userID string, delta int64) (ChallengeStatus, error) {
	if err := validUser(userID); err != nil {
		return ChallengeStatus{}, err
	}
	if delta <= 0 {
		return ChallengeStatus{}, fmt.Errorf("challenge delta %d: %w", delta, domain.ErrInvalidInput)
	}
	c, err := s.ActiveChallenge(ctx)
	if err != nil {
		return ChallengeStatus{}, err
	}
	return s.addChallengeProgress(ctx, userID, c, delta)
}

func (s *Service) addChallengeProgress(ctx context.Context, userID string, c domain.WeeklyChallenge, delta int64) (ChallengeStatus, error) {
	p, completed, err := s.store.AddChallengeProgress(ctx, userID, c.ID, delta, c.Target, s.now())
	if err != nil {
		return ChallengeStatus{}, fmt.Errorf("challenge progress: %w", err)
	}
	st := ChallengeStatus{Challenge: c, Progress: p, ProgressPct: p.ProgressPct()}
	if !completed {
		return st, nil
	}

	observability.ChallengesCompleted.Inc()
	s.notify(ctx, userID, domain.NotifyChallenge,
		"Sfida settimanale completata!",
		fmt.Sprintf("%s: +%d XP", c.Title, c.RewardXP))
	s.publish(userID, EventChallenge, st)

	if c.RewardXP > 0 {
		if _, err := s.AwardXP(ctx, userID, c.RewardXP, domain.ReasonChallenge); err != nil {
			return st, err
		}
	}
	n, err := s.store.CountCompletedChallenges(ctx, userID)
	if err != nil {
		return st, err
	}
	return st, s.syncCountAchievements(ctx, userID, domain.AchievementChallenge, n)
}

// trackChallenge adds delta when the active challenge counts metric.
// No active challenge is not an error.
func (s *Service) trackChallenge(ctx context.Context, userID string, metric domain.ChallengeMetric, delta int64) error {
	c, err := s.ActiveChallenge(ctx)
	if errors.Is(err, domain.ErrNoActiveChallenge) {
		return nil
	}
	if err != nil {
		return err
	}
	if c.Metric != metric || delta <= 0 {
		return nil
	}
	_, err = s.addChallengeProgress(ctx, userID, c, delta)
	return err
}

// RotateChallenge schedules the rotation's challenge for the week containing
// at. The ID is derived from the week, so repeated calls are harmless.
func (s *Service) RotateChallenge(ctx context.Context, at time.Time) (domain.WeeklyChallenge, error) {
	c := domain.ChallengeForWeek(at.In(s.cfg.Location))
	if err := s.store.UpsertChallenge(ctx, c); err != nil {
		return c, fmt.Errorf("schedule challenge %s: %w", c.ID, err)
	}
	log.Printf("[gamification] weekly challenge %s: %s", c.ID, c.Title)
	return c, nil
}
