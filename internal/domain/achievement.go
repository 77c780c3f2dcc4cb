package domain

import (
	"fmt"
	"time"
)

// ─── Achievements ───────────────────────────────────────────────────────────

// AchievementCategory groups achievements by the activity that feeds them.
type AchievementCategory string

const (
	AchievementStreak    AchievementCategory = "streak"
	AchievementLevel     AchievementCategory = "level"
	AchievementQuestions AchievementCategory = "questions"
	AchievementAccuracy  AchievementCategory = "accuracy"
	AchievementChallenge AchievementCategory = "challenge"
)

// AchievementDef is a named milestone with a required progress value and a
// one-time XP reward.
type AchievementDef struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Category    AchievementCategory `json:"category"`
	Icon        string              `json:"icon"`
	Required    float64             `json:"required"`
	RewardXP    int64               `json:"reward_xp"`
}

// AchievementProgress is a user's stored progress toward one achievement.
// Progress only grows; EarnedAt is set once, when Progress first reaches the
// achievement's required value.
type AchievementProgress struct {
	AchievementID string    `json:"achievement_id"`
	Progress      float64   `json:"progress"`
	EarnedAt      time.Time `json:"earned_at,omitempty"`
}

// Earned reports whether the achievement has been unlocked.
func (p AchievementProgress) Earned() bool { return !p.EarnedAt.IsZero() }

var achievementCatalog = buildAchievementCatalog()

func buildAchievementCatalog() []AchievementDef {
	var defs []AchievementDef

	for _, m := range StreakMilestones {
		defs = append(defs, AchievementDef{
			ID:          StreakAchievementID(m),
			Name:        fmt.Sprintf("%d giorni di fila", m),
			Description: fmt.Sprintf("Study %d days in a row", m),
			Category:    AchievementStreak,
			Icon:        "🔥",
			Required:    float64(m),
			RewardXP:    int64(m) * 5,
		})
	}

	for _, l := range []int{5, 10, 20, MaxLevel} {
		defs = append(defs, AchievementDef{
			ID:          LevelAchievementID(l),
			Name:        fmt.Sprintf("Livello %d", l),
			Description: fmt.Sprintf("Reach level %d (%s)", l, LevelInfo(l).Title),
			Category:    AchievementLevel,
			Icon:        "⭐",
			Required:    float64(l),
			RewardXP:    int64(l) * 25,
		})
	}

	for _, n := range []int{1, 10, 50, 100, 500} {
		defs = append(defs, AchievementDef{
			ID:          fmt.Sprintf("questions_%d", n),
			Name:        fmt.Sprintf("%d domande", n),
			Description: fmt.Sprintf("Answer %d daily questions", n),
			Category:    AchievementQuestions,
			Icon:        "📚",
			Required:    float64(n),
			RewardXP:    questionRewardXP(n),
		})
	}

	for _, n := range []int{10, 100} {
		defs = append(defs, AchievementDef{
			ID:          fmt.Sprintf("correct_%d", n),
			Name:        fmt.Sprintf("%d risposte esatte", n),
			Description: fmt.Sprintf("Answer %d questions correctly", n),
			Category:    AchievementAccuracy,
			Icon:        "🎯",
			Required:    float64(n),
			RewardXP:    int64(n) * 2,
		})
	}

	for _, n := range []int{1, 5} {
		defs = append(defs, AchievementDef{
			ID:          fmt.Sprintf("challenges_%d", n),
			Name:        fmt.Sprintf("%d sfide settimanali", n),
			Description: fmt.Sprintf("Complete %d weekly challenges", n),
			Category:    AchievementChallenge,
			Icon:        "🏆",
			Required:    float64(n),
			RewardXP:    int64(n) * 50,
		})
	}
	return defs
}

func questionRewardXP(n int) int64 {
	if n == 1 {
		return 10
	}
	return int64(n)
}

// Achievements returns the full achievement catalog.
func Achievements() []AchievementDef {
	out := make([]AchievementDef, len(achievementCatalog))
	copy(out, achievementCatalog)
	return out
}

// AchievementByID looks up a catalog entry.
func AchievementByID(id string) (AchievementDef, bool) {
	for _, d := range achievementCatalog {
		if d.ID == id {
			return d, true
		}
	}
	return AchievementDef{}, false
}

// AchievementsIn returns the catalog entries of one category.
func AchievementsIn(cat AchievementCategory) []AchievementDef {
	var out []AchievementDef
	for _, d := range achievementCatalog {
		if d.Category == cat {
			out = append(out, d)
		}
	}
	return out
}

// StreakAchievementID names the achievement unlocked by a streak milestone.
func StreakAchievementID(days int) string { return fmt.Sprintf("streak_%d", days) }

// LevelAchievementID names the achievement unlocked by reaching a level.
func LevelAchievementID(level int) string { return fmt.Sprintf("level_%d", level) }
