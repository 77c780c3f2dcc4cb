package gamification

import (
	"context"
	"fmt"

	"github.com/cittadino-app/cittadino/internal/domain"
)

// XP paid per answered daily question.
const (
	CorrectAnswerXP   = 10
	IncorrectAnswerXP = 2
)

// AnswerOutcome is what one answered question earned.
type AnswerOutcome struct {
	XP     domain.XPChange      `json:"xp"`
	Streak domain.StreakOutcome `json:"streak"`
}

// RecordAnswer applies the gamification effects of an answered question:
// the day's streak, answer XP, answer-count achievements and challenge
// progress.
func (s *Service) RecordAnswer(ctx context.Context, userID string, correct bool) (AnswerOutcome, error) {
	var out AnswerOutcome
	if err := validUser(userID); err != nil {
		return out, err
	}

	streak, err := s.UpdateStreak(ctx, userID)
	if err != nil {
		return out, fmt.Errorf("record answer streak: %w", err)
	}
	out.Streak = streak

	points, reason := int64(IncorrectAnswerXP), domain.ReasonIncorrectAnswer
	if correct {
		points, reason = CorrectAnswerXP, domain.ReasonCorrectAnswer
	}
	out.XP, err = s.AwardXP(ctx, userID, points, reason)
	if err != nil {
		return out, err
	}

	total, right, err := s.store.CountAnswered(ctx, userID)
	if err != nil {
		return out, err
	}
	if err := s.syncCountAchievements(ctx, userID, domain.AchievementQuestions, total); err != nil {
		return out, err
	}
	if err := s.syncCountAchievements(ctx, userID, domain.AchievementAccuracy, right); err != nil {
		return out, err
	}

	if err := s.trackChallenge(ctx, userID, domain.MetricAnswers, 1); err != nil {
		return out, err
	}
	if correct {
		if err := s.trackChallenge(ctx, userID, domain.MetricCorrectAnswers, 1); err != nil {
			return out, err
		}
	}
	return out, nil
}
