package domain

import (
	"math"
	"time"
)

// ─── Streaks ────────────────────────────────────────────────────────────────

// StreakMilestones are the streak lengths that unlock an achievement and pay
// a milestone bonus of milestone × StreakMilestoneXPFactor.
var StreakMilestones = []int{3, 7, 14, 30, 60, 100, 180, 365}

const (
	// StreakDailyBonusXP is paid for every streak increase that is not a milestone.
	StreakDailyBonusXP = 10
	// StreakMilestoneXPFactor multiplies the milestone length into bonus XP.
	StreakMilestoneXPFactor = 20
	// StreakProtectionCooldownDays is the minimum number of days between two
	// protected gaps.
	StreakProtectionCooldownDays = 30
)

// StreakState is the streak portion of a user's gamification record.
type StreakState struct {
	Days             int       `json:"current_days"`
	Longest          int       `json:"longest_days"`
	LastActivityDate time.Time `json:"last_date,omitempty"`
	ProtectionUsedAt time.Time `json:"protection_used_at,omitempty"`
}

// StreakOutcome describes what a single streak update did.
type StreakOutcome struct {
	Days             int   `json:"current_days"`
	Longest          int   `json:"longest_days"`
	Increased        bool  `json:"increased"`
	Reset            bool  `json:"reset"`
	Protected        bool  `json:"protected"`
	MilestoneReached bool  `json:"milestone_reached"`
	Milestone        int   `json:"milestone,omitempty"`
	BonusXP          int64 `json:"bonus_xp"`
}

// Date truncates t to midnight in its own location.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// CalendarDate re-anchors a stored date (its Y-M-D in its own location) to
// midnight in loc. Stores hand dates back in UTC.
func CalendarDate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// DateString formats a date as YYYY-MM-DD, or "" for the zero time.
func DateString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}

// ParseDate parses YYYY-MM-DD in loc. The empty string yields the zero time.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(time.DateOnly, s, loc)
}

// DayDiff returns the number of calendar days from a to b in loc.
// Time of day is ignored; the result is negative when b precedes a.
func DayDiff(a, b time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	da := Date(a.In(loc))
	db := Date(b.In(loc))
	// Round absorbs the 23h/25h days around DST transitions.
	return int(math.Round(db.Sub(da).Hours() / 24))
}

// IsStreakMilestone reports whether days is a milestone length.
func IsStreakMilestone(days int) bool {
	for _, m := range StreakMilestones {
		if m == days {
			return true
		}
	}
	return false
}

// NextStreak applies one day of activity to prev.
//
//   - no previous activity, or a gap of more than one day → streak resets to 1
//   - exactly one day → streak + 1, Increased
//   - same day → unchanged
//
// When protectionDays > 0, a gap of up to protectionDays missed days continues
// the streak instead of resetting it, marking the outcome Protected. A gap is
// only covered once StreakProtectionCooldownDays have passed since the last
// protected one.
func NextStreak(prev StreakState, today time.Time, protectionDays int) (StreakState, StreakOutcome) {
	next := prev
	var out StreakOutcome

	todayDate := Date(today)
	loc := todayDate.Location()
	delta := 0
	if prev.LastActivityDate.IsZero() {
		next.Days = 1
		out.Reset = true
	} else {
		delta = DayDiff(CalendarDate(prev.LastActivityDate, loc), todayDate, loc)
		missed := delta - 1
		switch {
		case delta <= 0:
			// Already active today, or the stored date lies ahead of our clock.
		case delta == 1:
			next.Days = prev.Days + 1
			out.Increased = true
		case protectionDays > 0 && missed <= protectionDays && protectionReady(prev, todayDate):
			next.Days = prev.Days + 1
			next.ProtectionUsedAt = todayDate
			out.Increased = true
			out.Protected = true
		default:
			next.Days = 1
			out.Reset = true
		}
	}

	if next.Days > next.Longest {
		next.Longest = next.Days
	}
	if prev.LastActivityDate.IsZero() || delta > 0 {
		next.LastActivityDate = todayDate
	}

	if out.Increased && IsStreakMilestone(next.Days) {
		out.MilestoneReached = true
		out.Milestone = next.Days
	}
	out.Days = next.Days
	out.Longest = next.Longest
	out.BonusXP = StreakBonusXP(out)
	return next, out
}

func protectionReady(prev StreakState, today time.Time) bool {
	if prev.ProtectionUsedAt.IsZero() {
		return true
	}
	loc := today.Location()
	return DayDiff(CalendarDate(prev.ProtectionUsedAt, loc), today, loc) >= StreakProtectionCooldownDays
}

// StreakBonusXP returns the XP paid for a streak outcome.
func StreakBonusXP(o StreakOutcome) int64 {
	switch {
	case !o.Increased:
		return 0
	case o.MilestoneReached:
		return int64(o.Milestone) * StreakMilestoneXPFactor
	default:
		return StreakDailyBonusXP
	}
}
