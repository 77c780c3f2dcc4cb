package gamification

import (
	"context"
	"fmt"
	"time"

	"github.com/cittadino-app/cittadino/internal/domain"
	"github.com/cittadino-app/cittadino/internal/infra/observability"
)

// ─── Achievements ───────────────────────────────────────────────────────────

// AchievementView joins a catalog entry with the user's progress.
type AchievementView struct {
	domain.AchievementDef
	Progress    float64 `json:"progress"`
	ProgressPct float64 `json:"progress_pct"`
	Earned      bool    `json:"earned"`
	EarnedAt    string  `json:"earned_at,omitempty"`
}

// AchievementUpdate is the result of a progress update.
type AchievementUpdate struct {
	Progress domain.AchievementProgress `json:"progress"`
	Unlocked bool                       `json:"unlocked"` // earned by this call
	RewardXP int64                      `json:"reward_xp,omitempty"`
}

// Achievements lists the whole catalog with the user's progress.
func (s *Service) Achievements(ctx context.Context, userID string) ([]AchievementView, error) {
	if err := validUser(userID); err != nil {
		return nil, err
	}
	stored, err := s.store.AchievementProgress(ctx, userID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.AchievementProgress, len(stored))
	for _, p := range stored {
		byID[p.AchievementID] = p
	}

	defs := domain.Achievements()
	out := make([]AchievementView, 0, len(defs))
	for _, d := range defs {
		p := byID[d.ID]
		v := AchievementView{AchievementDef: d, Progress: p.Progress, Earned: p.Earned()}
		if d.Required > 0 {
			v.ProgressPct = min(p.Progress/d.Required*100, 100)
		}
		if v.Earned {
			v.EarnedAt = p.EarnedAt.Format(time.RFC3339)
		}
		out = append(out, v)
	}
	return out, nil
}

// UpdateAchievementProgress raises stored progress to progress (never
// lowering it). The first update that reaches the required value unlocks the
// achievement and pays its reward; later updates change nothing else.
func (s *Service) UpdateAchievementProgress(ctx context.Context, userID, achievementID string, progress float64) (AchievementUpdate, error) {
	if err := validUser(userID); err != nil {
		return AchievementUpdate{}, err
	}
	def, ok := domain.AchievementByID(achievementID)
	if !ok {
		return AchievementUpdate{}, fmt.Errorf("%q: %w", achievementID, domain.ErrUnknownAchievement)
	}
	if progress < 0 {
		return AchievementUpdate{}, fmt.Errorf("progress %v: %w", progress, domain.ErrInvalidInput)
	}

	p, earned, err := s.store.RaiseAchievementProgress(ctx, userID, def.ID, progress, def.Required, s.now())
	if err != nil {
		return AchievementUpdate{}, fmt.Errorf("update achievement %s: %w", def.ID, err)
	}
	res := AchievementUpdate{Progress: p, Unlocked: earned}
	if !earned {
		return res, nil
	}

	observability.AchievementsEarned.WithLabelValues(string(def.Category)).Inc()
	s.notify(ctx, userID, domain.NotifyAchievement,
		fmt.Sprintf("%s %s", def.Icon, def.Name), def.Description)
	s.publish(userID, EventAchievement, def)

	if def.RewardXP > 0 {
		res.RewardXP = def.RewardXP
		if _, err := s.AwardXP(ctx, userID, def.RewardXP, domain.ReasonAchievement); err != nil {
			return res, err
		}
	}
	return res, nil
}

// CheckLevelAchievements feeds the user's level into the level achievements.
func (s *Service) CheckLevelAchievements(ctx context.Context, userID string, level int) error {
	for _, def := range domain.AchievementsIn(domain.AchievementLevel) {
		if _, err := s.UpdateAchievementProgress(ctx, userID, def.ID, float64(level)); err != nil {
			return err
		}
	}
	return nil
}

// syncCountAchievements feeds a counter into every achievement of a category.
func (s *Service) syncCountAchievements(ctx context.Context, userID string, cat domain.AchievementCategory, count int) error {
	for _, def := range domain.AchievementsIn(cat) {
		if _, err := s.UpdateAchievementProgress(ctx, userID, def.ID, float64(count)); err != nil {
			return err
		}
	}
	return nil
}
