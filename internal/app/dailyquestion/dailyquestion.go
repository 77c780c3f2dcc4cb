// Package dailyquestion selects, grades and schedules the daily exam
// questions.
//
// Selection targets the user's weakest category at a difficulty derived from
// their mean score, then degrades: same category and difficulty on any date,
// then any scheduled question. The daily quota is counted from stored answers,
// never from the client.
package dailyquestion

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cittadino-app/cittadino/internal/app/gamification"
	"github.com/cittadino-app/cittadino/internal/domain"
	"github.com/cittadino-app/cittadino/internal/infra/observability"
)

// Config controls selection.
type Config struct {
	HistorySize int // recent answers used to find the weakest category
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{HistorySize: 20}
}

// Service implements the daily question flow.
type Service struct {
	cfg   Config
	store domain.Store
	game  *gamification.Service
}

// New creates a daily question service. Answers are credited through game,
// whose clock and calendar location also define "today".
func New(cfg Config, store domain.Store, game *gamification.Service) *Service {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultConfig().HistorySize
	}
	return &Service{cfg: cfg, store: store, game: game}
}

// QuestionView is a scheduled question as shown to the user. The correct
// answer is withheld.
type QuestionView struct {
	DailyQuestionID int64             `json:"daily_question_id"`
	QuestionID      int64             `json:"question_id"`
	Date            string            `json:"date"`
	Category        string            `json:"category"`
	Difficulty      domain.Difficulty `json:"difficulty"`
	Prompt          string            `json:"prompt"`
	Options         []string          `json:"options"`
}

// Selection is the outcome of Next.
type Selection struct {
	Question     *QuestionView    `json:"question,omitempty"`
	Match        domain.MatchKind `json:"match,omitempty"`
	Quota        domain.Quota     `json:"quota"`
	LimitReached bool             `json:"limit_reached"`
}

// AnswerResult is the outcome of Answer.
type AnswerResult struct {
	State        domain.DailyState          `json:"state"`
	Correct      bool                       `json:"correct"`
	CorrectIndex int                        `json:"correct_index"`
	Explanation  string                     `json:"explanation,omitempty"`
	Quota        domain.Quota               `json:"quota"`
	Rewards      gamification.AnswerOutcome `json:"rewards"`
	Retry        bool                       `json:"retry,omitempty"`
}

// ─── Quota ──────────────────────────────────────────────────────────────────

// Quota counts today's answers against the user's plan limit. Reset answers
// still count.
func (s *Service) Quota(ctx context.Context, userID string) (domain.Quota, error) {
	quota, _, err := s.today(ctx, userID)
	return quota, err
}

func (s *Service) today(ctx context.Context, userID string) (domain.Quota, []domain.ProgressRecord, error) {
	if userID == "" {
		return domain.Quota{}, nil, domain.ErrUnauthenticated
	}
	premium, err := s.store.IsPremium(ctx, userID, s.game.Now())
	if err != nil {
		return domain.Quota{}, nil, fmt.Errorf("premium status: %w", err)
	}
	records, err := s.store.ProgressOn(ctx, userID, s.game.Today())
	if err != nil {
		return domain.Quota{}, nil, fmt.Errorf("today's answers: %w", err)
	}
	quota := domain.Quota{Used: len(records), Limit: domain.DailyLimit(premium), Premium: premium}
	return quota, records, nil
}

func (s *Service) limitHit(quota domain.Quota) {
	observability.DailyLimitHits.WithLabelValues(planLabel(quota)).Inc()
}

func planLabel(q domain.Quota) string {
	if q.Premium {
		return "premium"
	}
	return "free"
}

// ─── Selection ──────────────────────────────────────────────────────────────

// Next picks the user's next question for today. When the quota is used up
// the selection has LimitReached set and no question.
func (s *Service) Next(ctx context.Context, userID string) (Selection, error) {
	quota, answered, err := s.today(ctx, userID)
	if err != nil {
		return Selection{}, err
	}
	if quota.Reached() {
		s.limitHit(quota)
		return Selection{Quota: quota, LimitReached: true}, nil
	}

	today := s.game.Today()
	exclude := make([]int64, 0, len(answered))
	for _, r := range answered {
		if r.Live() {
			exclude = append(exclude, r.DailyQuestionID)
		}
	}

	category, difficulty, err := s.target(ctx, userID, today)
	if err != nil {
		return Selection{}, err
	}

	dq, match, err := s.cascade(ctx, today, category, difficulty, exclude)
	if err != nil {
		return Selection{}, err
	}
	q, err := s.store.Question(ctx, dq.QuestionID)
	if err != nil {
		return Selection{}, fmt.Errorf("load question %d: %w", dq.QuestionID, err)
	}
	observability.DailySelections.WithLabelValues(string(match)).Inc()

	return Selection{
		Question: &QuestionView{
			DailyQuestionID: dq.ID,
			QuestionID:      q.ID,
			Date:            domain.DateString(dq.Date),
			Category:        dq.Category,
			Difficulty:      dq.Difficulty,
			Prompt:          q.Prompt,
			Options:         q.Options,
		},
		Match: match,
		Quota: quota,
	}, nil
}

// target returns the category and difficulty to serve. Users with history
// get their weakest category at the tier of their mean score; new users get
// a category that rotates by date, at beginner level.
func (s *Service) target(ctx context.Context, userID string, today time.Time) (string, domain.Difficulty, error) {
	recent, err := s.store.RecentProgress(ctx, userID, s.cfg.HistorySize)
	if err != nil {
		return "", "", fmt.Errorf("recent answers: %w", err)
	}
	if cat, ok := domain.WeakestCategory(recent); ok {
		return cat, domain.DifficultyForScore(domain.MeanScore(recent)), nil
	}

	cats, err := s.store.Categories(ctx)
	if err != nil {
		return "", "", err
	}
	return domain.RotatingCategory(cats, today), domain.DifficultyBeginner, nil
}

// cascade tries exact, then category, then any match.
func (s *Service) cascade(ctx context.Context, today time.Time, category string, difficulty domain.Difficulty, exclude []int64) (domain.DailyQuestion, domain.MatchKind, error) {
	stages := []struct {
		match domain.MatchKind
		query domain.DailyQuery
	}{
		{domain.MatchExact, domain.DailyQuery{Date: today, Category: category, Difficulty: difficulty, ExcludeIDs: exclude}},
		{domain.MatchCategory, domain.DailyQuery{Category: category, Difficulty: difficulty, ExcludeIDs: exclude}},
		{domain.MatchAny, domain.DailyQuery{ExcludeIDs: exclude}},
	}
	for _, st := range stages {
		if st.match != domain.MatchAny && category == "" {
			continue
		}
		dq, err := s.store.FindDailyQuestion(ctx, st.query)
		if err == nil {
			return dq, st.match, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.DailyQuestion{}, "", err
		}
	}
	return domain.DailyQuestion{}, "", domain.ErrNoQuestionAvailable
}

// ─── Answers ────────────────────────────────────────────────────────────────

// Answer grades choice for a scheduled question and credits the user.
// A question can be answered once per day. A retry after Reset is graded and
// uses a quota slot but earns nothing.
func (s *Service) Answer(ctx context.Context, userID string, dailyQuestionID int64, choice int) (AnswerResult, error) {
	quota, answered, err := s.today(ctx, userID)
	if err != nil {
		return AnswerResult{}, err
	}
	if quota.Reached() {
		s.limitHit(quota)
		return AnswerResult{Quota: quota}, domain.ErrDailyLimitReached
	}
	retry := false
	for _, r := range answered {
		if r.DailyQuestionID == dailyQuestionID && !r.Live() {
			retry = true
		}
	}

	today := s.game.Today()
	dq, err := s.store.DailyQuestion(ctx, dailyQuestionID)
	if err != nil {
		return AnswerResult{}, err
	}
	if domain.DayDiff(domain.CalendarDate(dq.Date, today.Location()), today, today.Location()) < 0 {
		return AnswerResult{}, domain.ErrQuestionNotServed
	}
	q, err := s.store.Question(ctx, dq.QuestionID)
	if err != nil {
		return AnswerResult{}, fmt.Errorf("load question %d: %w", dq.QuestionID, err)
	}
	if choice < 0 || choice >= len(q.Options) {
		return AnswerResult{}, fmt.Errorf("choice %d of %d: %w", choice, len(q.Options), domain.ErrInvalidInput)
	}

	correct := choice == q.CorrectIndex
	rec := domain.ProgressRecord{
		UserID:          userID,
		DailyQuestionID: dq.ID,
		Date:            today,
		Category:        dq.Category,
		Correct:         correct,
		AnsweredAt:      s.game.Now(),
	}
	if correct {
		rec.Score = 100
	}
	if err := s.store.InsertProgress(ctx, rec, quota.Limit); err != nil {
		if errors.Is(err, domain.ErrDailyLimitReached) {
			s.limitHit(quota)
			quota.Used = quota.Limit
			return AnswerResult{Quota: quota}, err
		}
		return AnswerResult{}, err
	}
	result := "incorrect"
	if correct {
		result = "correct"
	}
	observability.DailyAnswers.WithLabelValues(result).Inc()

	res := AnswerResult{
		State:        rec.State(),
		Correct:      correct,
		CorrectIndex: q.CorrectIndex,
		Explanation:  q.Explanation,
		Quota:        quota,
		Retry:        retry,
	}
	res.Quota.Used++
	if retry {
		return res, nil
	}

	res.Rewards, err = s.game.RecordAnswer(ctx, userID, correct)
	if err != nil {
		// The answer is stored; only the rewards are incomplete.
		return res, fmt.Errorf("credit answer: %w", err)
	}
	return res, nil
}

// State reports today's answer state for a scheduled question.
func (s *Service) State(ctx context.Context, userID string, dailyQuestionID int64) (domain.DailyState, error) {
	if userID == "" {
		return "", domain.ErrUnauthenticated
	}
	today, err := s.store.ProgressOn(ctx, userID, s.game.Today())
	if err != nil {
		return "", err
	}
	for _, r := range today {
		if r.DailyQuestionID == dailyQuestionID && r.Live() {
			return r.State(), nil
		}
	}
	return domain.StateNotAttempted, nil
}

// Reset withdraws today's answer so the question can be retried. Premium
// only. The withdrawn answer keeps its quota slot and its rewards.
func (s *Service) Reset(ctx context.Context, userID string, dailyQuestionID int64) (domain.DailyState, error) {
	if userID == "" {
		return "", domain.ErrUnauthenticated
	}
	premium, err := s.store.IsPremium(ctx, userID, s.game.Now())
	if err != nil {
		return "", err
	}
	if !premium {
		return "", domain.ErrPremiumRequired
	}
	reset, err := s.store.ResetProgress(ctx, userID, dailyQuestionID, s.game.Today(), s.game.Now())
	if err != nil {
		return "", err
	}
	if !reset {
		return "", domain.ErrNotFound
	}
	return domain.StateNotAttempted, nil
}

// ─── Generation ─────────────────────────────────────────────────────────────

// GenerateReport summarizes a generation run.
type GenerateReport struct {
	Date     string `json:"date"`
	Created  int    `json:"created"`
	Existing int    `json:"existing"`
	Empty    int    `json:"empty"` // buckets with no bank question
}

var difficulties = []domain.Difficulty{
	domain.DifficultyBeginner,
	domain.DifficultyIntermediate,
	domain.DifficultyAdvanced,
}

// Generate schedules one question per (category, difficulty) for date,
// picking the least recently scheduled bank question. Existing rows are kept,
// so running it twice changes nothing.
func (s *Service) Generate(ctx context.Context, date time.Time) (GenerateReport, error) {
	date = domain.Date(date)
	rep := GenerateReport{Date: domain.DateString(date)}

	cats, err := s.store.Categories(ctx)
	if err != nil {
		return rep, err
	}
	for _, cat := range cats {
		for _, diff := range difficulties {
			q, err := s.store.PickQuestion(ctx, cat, diff)
			if errors.Is(err, domain.ErrNotFound) {
				rep.Empty++
				continue
			}
			if err != nil {
				return rep, fmt.Errorf("pick %s/%s: %w", cat, diff, err)
			}
			_, created, err := s.store.InsertDailyQuestion(ctx, domain.DailyQuestion{
				Date: date, Category: cat, Difficulty: diff, QuestionID: q.ID,
			})
			if err != nil {
				return rep, err
			}
			if created {
				rep.Created++
			} else {
				rep.Existing++
			}
		}
	}
	observability.DailyGenerated.Add(float64(rep.Created))
	log.Printf("[daily] %s: %d created, %d existing, %d empty buckets", rep.Date, rep.Created, rep.Existing, rep.Empty)
	return rep, nil
}
