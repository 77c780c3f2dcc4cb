package domain

import (
	"sort"
	"strings"
	"time"
)

// ─── Question Bank ──────────────────────────────────────────────────────────

// Difficulty is the tier a question is written for.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

// ParseDifficulty accepts the English tier names and their Italian labels.
func ParseDifficulty(s string) (Difficulty, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "beginner", "base", "facile":
		return DifficultyBeginner, nil
	case "intermediate", "intermedio", "medio":
		return DifficultyIntermediate, nil
	case "advanced", "avanzato", "difficile":
		return DifficultyAdvanced, nil
	}
	return "", ErrInvalidInput
}

// DifficultyForScore maps a mean score (0–100) to a tier:
// below 60 beginner, above 80 advanced, otherwise intermediate.
func DifficultyForScore(mean float64) Difficulty {
	switch {
	case mean < 60:
		return DifficultyBeginner
	case mean > 80:
		return DifficultyAdvanced
	default:
		return DifficultyIntermediate
	}
}

// Question is a multiple-choice item from the exam question bank.
type Question struct {
	ID           int64      `json:"id"`
	Category     string     `json:"category"`
	Difficulty   Difficulty `json:"difficulty"`
	Prompt       string     `json:"prompt"`
	Options      []string   `json:"options"`
	CorrectIndex int        `json:"-"`
	Explanation  string     `json:"-"`
}

// Validate checks the question is answerable.
func (q Question) Validate() error {
	if strings.TrimSpace(q.Category) == "" || strings.TrimSpace(q.Prompt) == "" {
		return ErrInvalidInput
	}
	if len(q.Options) < 2 || q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
		return ErrInvalidInput
	}
	if _, err := ParseDifficulty(string(q.Difficulty)); err != nil {
		return err
	}
	return nil
}

// DailyQuestion schedules one bank question for a (date, category, difficulty).
// Rows are immutable once created.
type DailyQuestion struct {
	ID         int64      `json:"id"`
	Date       time.Time  `json:"date"`
	Category   string     `json:"category"`
	Difficulty Difficulty `json:"difficulty"`
	QuestionID int64      `json:"question_id"`
}

// DailyQuery filters daily questions. Zero fields match anything.
type DailyQuery struct {
	Date       time.Time
	Category   string
	Difficulty Difficulty
	ExcludeIDs []int64
}

// MatchKind reports how closely a served question matched the request.
type MatchKind string

const (
	MatchExact    MatchKind = "exact"    // date, category and difficulty
	MatchCategory MatchKind = "category" // category and difficulty, any date
	MatchAny      MatchKind = "any"      // unrelated fallback
)

// ─── User Progress ──────────────────────────────────────────────────────────

// DailyState is the per-user, per-question, per-day answer state.
type DailyState string

const (
	StateNotAttempted      DailyState = "not_attempted"
	StateAnsweredCorrect   DailyState = "answered_correct"
	StateAnsweredIncorrect DailyState = "answered_incorrect"
)

// ProgressRecord is one answered daily question.
type ProgressRecord struct {
	UserID          string    `json:"user_id"`
	DailyQuestionID int64     `json:"daily_question_id"`
	Date            time.Time `json:"date"`
	Category        string    `json:"category"`
	Score           float64   `json:"score"` // 0–100
	Correct         bool      `json:"correct"`
	AnsweredAt      time.Time `json:"answered_at"`
	ResetAt         time.Time `json:"reset_at,omitempty"` // zero while the answer stands
}

// Live reports whether the answer has not been reset.
func (r ProgressRecord) Live() bool { return r.ResetAt.IsZero() }

// State returns the answer state the record represents.
func (r ProgressRecord) State() DailyState {
	if r.Correct {
		return StateAnsweredCorrect
	}
	return StateAnsweredIncorrect
}

// MeanScore returns the average score of records, or 0 for none.
func MeanScore(records []ProgressRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	var sum float64
	for _, r := range records {
		sum += r.Score
	}
	return sum / float64(len(records))
}

// WeakestCategory returns the category with the lowest mean score.
// Ties resolve alphabetically; ok is false when records is empty.
func WeakestCategory(records []ProgressRecord) (category string, ok bool) {
	type agg struct {
		sum float64
		n   int
	}
	byCat := make(map[string]*agg)
	for _, r := range records {
		if r.Category == "" {
			continue
		}
		a := byCat[r.Category]
		if a == nil {
			a = &agg{}
			byCat[r.Category] = a
		}
		a.sum += r.Score
		a.n++
	}
	if len(byCat) == 0 {
		return "", false
	}

	cats := make([]string, 0, len(byCat))
	for c := range byCat {
		cats = append(cats, c)
	}
	sort.Strings(cats)

	best := cats[0]
	bestMean := byCat[best].sum / float64(byCat[best].n)
	for _, c := range cats[1:] {
		mean := byCat[c].sum / float64(byCat[c].n)
		if mean < bestMean {
			best, bestMean = c, mean
		}
	}
	return best, true
}

// RotatingCategory picks a category for users without history so that
// consecutive days cycle through the bank.
func RotatingCategory(categories []string, day time.Time) string {
	if len(categories) == 0 {
		return ""
	}
	sorted := append([]string(nil), categories...)
	sort.Strings(sorted)
	days := Date(day).Unix() / 86400
	if days < 0 {
		days = -days
	}
	return sorted[int(days%int64(len(sorted)))]
}

// ─── Quota ──────────────────────────────────────────────────────────────────

// Daily answer limits.
const (
	FreeDailyLimit    = 5
	PremiumDailyLimit = 20
)

// DailyLimit returns how many questions a user may answer per day.
func DailyLimit(premium bool) int {
	if premium {
		return PremiumDailyLimit
	}
	return FreeDailyLimit
}

// Quota is a user's answered-today count against their limit.
type Quota struct {
	Used    int  `json:"used"`
	Limit   int  `json:"limit"`
	Premium bool `json:"premium"`
}

// Reached reports whether no further questions may be answered today.
func (q Quota) Reached() bool { return q.Used >= q.Limit }

// Remaining returns the number of answers left today.
func (q Quota) Remaining() int {
	if q.Used >= q.Limit {
		return 0
	}
	return q.Limit - q.Used
}
