package domain

import (
	"fmt"
	"time"
)

// ─── Weekly Challenges ──────────────────────────────────────────────────────
// Challenge progress is additive (unlike achievements, which keep the max).
// Completion is one-shot: the reward is paid once even though progress keeps
// counting afterwards.

// ChallengeMetric names the activity a challenge counts.
type ChallengeMetric string

const (
	MetricAnswers        ChallengeMetric = "answers"
	MetricCorrectAnswers ChallengeMetric = "correct_answers"
	MetricXP             ChallengeMetric = "xp"
	MetricStreakDays     ChallengeMetric = "streak_days"
)

// WeeklyChallenge is a time-boxed goal shared by all users.
type WeeklyChallenge struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Metric   ChallengeMetric `json:"metric"`
	Target   int64           `json:"target"`
	RewardXP int64           `json:"reward_xp"`
	StartsAt time.Time       `json:"starts_at"`
	EndsAt   time.Time       `json:"ends_at"`
}

// ActiveAt reports whether t falls inside the challenge window [StartsAt, EndsAt).
func (c WeeklyChallenge) ActiveAt(t time.Time) bool {
	return !t.Before(c.StartsAt) && t.Before(c.EndsAt)
}

// ChallengeProgress is one user's progress on one challenge.
type ChallengeProgress struct {
	ChallengeID     string    `json:"challenge_id"`
	UserID          string    `json:"user_id"`
	CurrentProgress int64     `json:"current_progress"`
	Target          int64     `json:"target"`
	Completed       bool      `json:"completed"`
	CompletedAt     time.Time `json:"completed_at,omitempty"`
}

// ProgressPct returns completion percentage capped at 100.
func (p ChallengeProgress) ProgressPct() float64 {
	if p.Target <= 0 {
		return 0
	}
	pct := float64(p.CurrentProgress) / float64(p.Target) * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// WeekStart returns Monday 00:00 of the week containing t, in t's location.
func WeekStart(t time.Time) time.Time {
	d := Date(t)
	offset := (int(d.Weekday()) + 6) % 7 // Monday = 0
	return d.AddDate(0, 0, -offset)
}

// ChallengeTemplate describes a challenge before it is scheduled.
type ChallengeTemplate struct {
	Title    string
	Metric   ChallengeMetric
	Target   int64
	RewardXP int64
}

// challengeRotation is cycled week by week.
var challengeRotation = []ChallengeTemplate{
	{Title: "Rispondi a 20 domande", Metric: MetricAnswers, Target: 20, RewardXP: 150},
	{Title: "15 risposte esatte", Metric: MetricCorrectAnswers, Target: 15, RewardXP: 200},
	{Title: "Guadagna 300 XP", Metric: MetricXP, Target: 300, RewardXP: 150},
	{Title: "Studia 5 giorni", Metric: MetricStreakDays, Target: 5, RewardXP: 250},
}

// ChallengeForWeek builds the rotation's challenge for the week containing t.
// The ID is derived from the week so repeated scheduling is idempotent.
func ChallengeForWeek(t time.Time) WeeklyChallenge {
	start := WeekStart(t)
	_, week := start.ISOWeek()
	tpl := challengeRotation[week%len(challengeRotation)]
	return WeeklyChallenge{
		ID:       fmt.Sprintf("week-%s", start.Format(time.DateOnly)),
		Title:    tpl.Title,
		Metric:   tpl.Metric,
		Target:   tpl.Target,
		RewardXP: tpl.RewardXP,
		StartsAt: start,
		EndsAt:   start.AddDate(0, 0, 7),
	}
}
