package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cittadino-app/cittadino/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

var (
	ctx = context.Background()
	now = time.Date(2026, 5, 13, 10, 30, 0, 0, time.UTC)
)

func day(s string) time.Time {
	t, _ := domain.ParseDate(s, time.UTC)
	return t
}

// ─── Profile & XP ───────────────────────────────────────────────────────────

func TestProfile_Default(t *testing.T) {
	db := newTestDB(t)

	u, err := db.Profile(ctx, "ghost")
	if err != nil {
		t.Fatalf("Profile() error: %v", err)
	}
	if u.Level != 1 || u.XP != 0 || !u.LastActivityDate.IsZero() {
		t.Errorf("Profile() = %+v, want fresh level-1 record", u)
	}
}

func TestAddXP_LevelsAndLedger(t *testing.T) {
	db := newTestDB(t)

	change, err := db.AddXP(ctx, "u1", 100, domain.ReasonCorrectAnswer, now)
	if err != nil {
		t.Fatalf("AddXP() error: %v", err)
	}
	if change.OldXP != 0 || change.NewXP != 100 || change.LeveledUp() {
		t.Errorf("first award = %+v", change)
	}

	change, err = db.AddXP(ctx, "u1", 60, domain.ReasonStreakBonus, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("AddXP() error: %v", err)
	}
	if change.NewXP != 160 || change.OldLevel != 1 || change.NewLevel != 2 {
		t.Errorf("second award = %+v, want 160 XP at level 2", change)
	}

	u, err := db.Profile(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if u.XP != 160 || u.Level != 2 || u.WeeklyXP != 160 || u.LifetimeXP != 160 {
		t.Errorf("profile = %+v", u)
	}
	if !u.LastXPAt.Equal(now.Add(time.Minute)) {
		t.Errorf("LastXPAt = %v", u.LastXPAt)
	}
	if !u.LastActivityDate.IsZero() {
		t.Error("AddXP must not touch the streak date")
	}

	events, err := db.XPEvents(ctx, "u1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[0].Reason != domain.ReasonStreakBonus || events[1].Points != 100 {
		t.Errorf("XPEvents() = %+v", events)
	}
}

func TestAddXP_Concurrent(t *testing.T) {
	db := newTestDB(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := db.AddXP(ctx, "u1", 10, domain.ReasonCorrectAnswer, now); err != nil {
				t.Errorf("AddXP() error: %v", err)
			}
		}()
	}
	wg.Wait()

	u, _ := db.Profile(ctx, "u1")
	if u.XP != 200 {
		t.Errorf("XP = %d, want 200", u.XP)
	}
}

func TestResetWeeklyXP(t *testing.T) {
	db := newTestDB(t)
	db.AddXP(ctx, "a", 50, domain.ReasonManual, now)
	db.AddXP(ctx, "b", 70, domain.ReasonManual, now)

	n, err := db.ResetWeeklyXP(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("ResetWeeklyXP() = %d, want 2", n)
	}
	u, _ := db.Profile(ctx, "b")
	if u.WeeklyXP != 0 || u.LifetimeXP != 70 || u.XP != 70 {
		t.Errorf("after reset = %+v", u)
	}
}

func TestTopProfiles(t *testing.T) {
	db := newTestDB(t)
	db.AddXP(ctx, "a", 50, domain.ReasonManual, now)
	db.AddXP(ctx, "b", 70, domain.ReasonManual, now)
	db.AddXP(ctx, "c", 50, domain.ReasonManual, now)

	top, err := db.TopProfiles(ctx, domain.BoardLifetimeXP, 10)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"b", "a", "c"}
	if len(top) != len(want) {
		t.Fatalf("TopProfiles() = %+v", top)
	}
	for i, id := range want {
		if top[i].UserID != id || top[i].Rank != int64(i+1) {
			t.Errorf("top[%d] = %+v, want %s", i, top[i], id)
		}
	}

	if _, err := db.TopProfiles(ctx, domain.Board("bogus"), 10); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("bogus board error = %v", err)
	}
}

// ─── Streak CAS ─────────────────────────────────────────────────────────────

func TestCompareAndSwapStreak(t *testing.T) {
	db := newTestDB(t)

	first := domain.StreakState{Days: 1, Longest: 1, LastActivityDate: day("2026-05-12")}
	ok, err := db.CompareAndSwapStreak(ctx, "u1", "", first)
	if err != nil || !ok {
		t.Fatalf("first swap = %v, %v", ok, err)
	}

	// A writer still holding the empty date loses.
	ok, err = db.CompareAndSwapStreak(ctx, "u1", "", first)
	if err != nil || ok {
		t.Errorf("stale swap = %v, %v, want false", ok, err)
	}

	second := domain.StreakState{Days: 2, Longest: 2, LastActivityDate: day("2026-05-13")}
	ok, err = db.CompareAndSwapStreak(ctx, "u1", "2026-05-12", second)
	if err != nil || !ok {
		t.Fatalf("second swap = %v, %v", ok, err)
	}

	u, _ := db.Profile(ctx, "u1")
	if u.StreakDays != 2 || u.LongestStreak != 2 || domain.DateString(u.LastActivityDate) != "2026-05-13" {
		t.Errorf("profile streak = %+v", u.Streak())
	}
}

func TestCompareAndSwapStreak_LongestNeverShrinks(t *testing.T) {
	db := newTestDB(t)
	db.CompareAndSwapStreak(ctx, "u1", "", domain.StreakState{Days: 9, Longest: 9, LastActivityDate: day("2026-05-01")})
	db.CompareAndSwapStreak(ctx, "u1", "2026-05-01", domain.StreakState{Days: 1, Longest: 1, LastActivityDate: day("2026-05-13")})

	u, _ := db.Profile(ctx, "u1")
	if u.StreakDays != 1 || u.LongestStreak != 9 {
		t.Errorf("streak = %d/%d, want 1/9", u.StreakDays, u.LongestStreak)
	}
}

// ─── Achievements ───────────────────────────────────────────────────────────

func TestRaiseAchievementProgress(t *testing.T) {
	db := newTestDB(t)

	p, earned, err := db.RaiseAchievementProgress(ctx, "u1", "streak_7", 5, 7, now)
	if err != nil {
		t.Fatal(err)
	}
	if earned || p.Progress != 5 || p.Earned() {
		t.Errorf("partial = %+v earned=%v", p, earned)
	}

	// Lower values never reduce stored progress.
	p, _, _ = db.RaiseAchievementProgress(ctx, "u1", "streak_7", 2, 7, now)
	if p.Progress != 5 {
		t.Errorf("progress = %v, want 5", p.Progress)
	}

	p, earned, _ = db.RaiseAchievementProgress(ctx, "u1", "streak_7", 7, 7, now)
	if !earned || !p.Earned() {
		t.Errorf("reaching required should earn: %+v", p)
	}

	_, earned, _ = db.RaiseAchievementProgress(ctx, "u1", "streak_7", 8, 7, now.Add(time.Hour))
	if earned {
		t.Error("achievement earned twice")
	}

	n, _ := db.CountEarned(ctx, "u1")
	if n != 1 {
		t.Errorf("CountEarned() = %d, want 1", n)
	}
	u, _ := db.Profile(ctx, "u1")
	if len(u.Achievements) != 1 || !u.Achievements[0].EarnedAt.Equal(now) {
		t.Errorf("profile achievements = %+v", u.Achievements)
	}
}

// ─── Weekly Challenges ──────────────────────────────────────────────────────

func TestChallenges(t *testing.T) {
	db := newTestDB(t)

	if _, err := db.ActiveChallenge(ctx, now); !errors.Is(err, domain.ErrNoActiveChallenge) {
		t.Fatalf("ActiveChallenge() error = %v, want ErrNoActiveChallenge", err)
	}

	c := domain.ChallengeForWeek(now)
	if err := db.UpsertChallenge(ctx, c); err != nil {
		t.Fatal(err)
	}
	got, err := db.ActiveChallenge(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != c.ID || got.Target != c.Target || !got.StartsAt.Equal(c.StartsAt) {
		t.Errorf("ActiveChallenge() = %+v, want %+v", got, c)
	}
	if _, err := db.ActiveChallenge(ctx, c.EndsAt); !errors.Is(err, domain.ErrNoActiveChallenge) {
		t.Error("challenge window end should be exclusive")
	}

	p, completed, err := db.AddChallengeProgress(ctx, "u1", c.ID, 3, 5, now)
	if err != nil {
		t.Fatal(err)
	}
	if completed || p.CurrentProgress != 3 {
		t.Errorf("partial = %+v", p)
	}
	p, completed, _ = db.AddChallengeProgress(ctx, "u1", c.ID, 3, 5, now)
	if !completed || !p.Completed || p.CurrentProgress != 6 {
		t.Errorf("completion = %+v completed=%v", p, completed)
	}
	_, completed, _ = db.AddChallengeProgress(ctx, "u1", c.ID, 1, 5, now)
	if completed {
		t.Error("challenge completed twice")
	}

	n, _ := db.CountCompletedChallenges(ctx, "u1")
	if n != 1 {
		t.Errorf("CountCompletedChallenges() = %d", n)
	}
	empty, err := db.ChallengeProgress(ctx, "u2", c.ID)
	if err != nil || empty.CurrentProgress != 0 {
		t.Errorf("ChallengeProgress(u2) = %+v, %v", empty, err)
	}
}

// ─── Questions & Daily Schedule ─────────────────────────────────────────────

func seedQuestion(t *testing.T, db *DB, category string, diff domain.Difficulty, prompt string) int64 {
	t.Helper()
	id, err := db.InsertQuestion(ctx, domain.Question{
		Category: category, Difficulty: diff, Prompt: prompt,
		Options: []string{"a", "b", "c"}, CorrectIndex: 1, Explanation: "b",
	})
	if err != nil {
		t.Fatalf("InsertQuestion() error: %v", err)
	}
	return id
}

func TestQuestionBank(t *testing.T) {
	db := newTestDB(t)
	id := seedQuestion(t, db, "storia", domain.DifficultyBeginner, "Quando?")
	seedQuestion(t, db, "costituzione", domain.DifficultyBeginner, "Chi?")

	// Re-import updates in place.
	again := seedQuestion(t, db, "storia", domain.DifficultyIntermediate, "Quando?")
	if again != id {
		t.Errorf("re-import id = %d, want %d", again, id)
	}

	q, err := db.Question(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if q.Difficulty != domain.DifficultyIntermediate || len(q.Options) != 3 || q.CorrectIndex != 1 {
		t.Errorf("Question() = %+v", q)
	}
	if _, err := db.Question(ctx, 999); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing question error = %v", err)
	}

	cats, _ := db.Categories(ctx)
	if len(cats) != 2 || cats[0] != "costituzione" {
		t.Errorf("Categories() = %v", cats)
	}
	n, _ := db.QuestionCount(ctx)
	if n != 2 {
		t.Errorf("QuestionCount() = %d", n)
	}
}

func TestPickQuestion_LeastRecentlyScheduled(t *testing.T) {
	db := newTestDB(t)
	q1 := seedQuestion(t, db, "storia", domain.DifficultyBeginner, "uno")
	q2 := seedQuestion(t, db, "storia", domain.DifficultyBeginner, "due")

	got, err := db.PickQuestion(ctx, "storia", domain.DifficultyBeginner)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != q1 {
		t.Errorf("first pick = %d, want %d", got.ID, q1)
	}

	db.InsertDailyQuestion(ctx, domain.DailyQuestion{Date: day("2026-05-12"), Category: "storia", Difficulty: domain.DifficultyBeginner, QuestionID: q1})
	got, _ = db.PickQuestion(ctx, "storia", domain.DifficultyBeginner)
	if got.ID != q2 {
		t.Errorf("pick after scheduling q1 = %d, want %d", got.ID, q2)
	}

	if _, err := db.PickQuestion(ctx, "geografia", domain.DifficultyBeginner); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("empty bucket error = %v", err)
	}
}

func TestDailyQuestion_UniquePerBucket(t *testing.T) {
	db := newTestDB(t)
	q1 := seedQuestion(t, db, "storia", domain.DifficultyBeginner, "uno")
	q2 := seedQuestion(t, db, "storia", domain.DifficultyBeginner, "due")

	dq := domain.DailyQuestion{Date: day("2026-05-13"), Category: "storia", Difficulty: domain.DifficultyBeginner, QuestionID: q1}
	id, created, err := db.InsertDailyQuestion(ctx, dq)
	if err != nil || !created {
		t.Fatalf("first insert = %d %v %v", id, created, err)
	}
	dq.QuestionID = q2
	id2, created, err := db.InsertDailyQuestion(ctx, dq)
	if err != nil || created || id2 != id {
		t.Errorf("duplicate insert = %d %v %v, want existing %d", id2, created, err, id)
	}

	got, _ := db.DailyQuestion(ctx, id)
	if got.QuestionID != q1 {
		t.Errorf("daily question rewritten: %+v", got)
	}
}

func TestFindDailyQuestion(t *testing.T) {
	db := newTestDB(t)
	q := seedQuestion(t, db, "storia", domain.DifficultyBeginner, "uno")

	oldID, _, _ := db.InsertDailyQuestion(ctx, domain.DailyQuestion{Date: day("2026-05-10"), Category: "storia", Difficulty: domain.DifficultyBeginner, QuestionID: q})
	newID, _, _ := db.InsertDailyQuestion(ctx, domain.DailyQuestion{Date: day("2026-05-12"), Category: "storia", Difficulty: domain.DifficultyBeginner, QuestionID: q})
	otherID, _, _ := db.InsertDailyQuestion(ctx, domain.DailyQuestion{Date: day("2026-05-13"), Category: "diritti", Difficulty: domain.DifficultyAdvanced, QuestionID: q})

	tests := []struct {
		name  string
		query domain.DailyQuery
		want  int64
	}{
		{"exact", domain.DailyQuery{Date: day("2026-05-10"), Category: "storia", Difficulty: domain.DifficultyBeginner}, oldID},
		{"category newest", domain.DailyQuery{Category: "storia", Difficulty: domain.DifficultyBeginner}, newID},
		{"any newest", domain.DailyQuery{}, otherID},
		{"excluded", domain.DailyQuery{Category: "storia", ExcludeIDs: []int64{newID}}, oldID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.FindDailyQuestion(ctx, tt.query)
			if err != nil {
				t.Fatal(err)
			}
			if got.ID != tt.want {
				t.Errorf("FindDailyQuestion() = %d, want %d", got.ID, tt.want)
			}
		})
	}

	_, err := db.FindDailyQuestion(ctx, domain.DailyQuery{Date: day("2026-05-13"), Category: "storia"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("no match error = %v", err)
	}
}

// ─── Progress & Premium ─────────────────────────────────────────────────────

func TestProgress(t *testing.T) {
	db := newTestDB(t)
	q := seedQuestion(t, db, "storia", domain.DifficultyBeginner, "uno")
	dqID, _, _ := db.InsertDailyQuestion(ctx, domain.DailyQuestion{Date: day("2026-05-13"), Category: "storia", Difficulty: domain.DifficultyBeginner, QuestionID: q})

	rec := domain.ProgressRecord{UserID: "u1", DailyQuestionID: dqID, Date: day("2026-05-13"), Score: 100, Correct: true, AnsweredAt: now}
	if err := db.InsertProgress(ctx, rec, 5); err != nil {
		t.Fatal(err)
	}
	if err := db.InsertProgress(ctx, rec, 5); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Errorf("duplicate answer error = %v, want ErrAlreadyAnswered", err)
	}

	today, err := db.ProgressOn(ctx, "u1", day("2026-05-13"))
	if err != nil {
		t.Fatal(err)
	}
	if len(today) != 1 || today[0].Category != "storia" || today[0].State() != domain.StateAnsweredCorrect || !today[0].Live() {
		t.Errorf("ProgressOn() = %+v", today)
	}
	recent, _ := db.RecentProgress(ctx, "u1", 10)
	if len(recent) != 1 || !recent[0].AnsweredAt.Equal(now) {
		t.Errorf("RecentProgress() = %+v", recent)
	}
	total, correct, _ := db.CountAnswered(ctx, "u1")
	if total != 1 || correct != 1 {
		t.Errorf("CountAnswered() = %d/%d", total, correct)
	}

	reset, err := db.ResetProgress(ctx, "u1", dqID, day("2026-05-13"), now)
	if err != nil || !reset {
		t.Fatalf("ResetProgress() = %v, %v", reset, err)
	}
	if again, _ := db.ResetProgress(ctx, "u1", dqID, day("2026-05-13"), now); again {
		t.Error("second ResetProgress() found a live answer")
	}
	if total, _, _ := db.CountAnswered(ctx, "u1"); total != 0 {
		t.Errorf("CountAnswered() after reset = %d", total)
	}
	if err := db.InsertProgress(ctx, rec, 5); err != nil {
		t.Errorf("answer after reset error = %v", err)
	}

	today, _ = db.ProgressOn(ctx, "u1", day("2026-05-13"))
	if len(today) != 2 || today[0].Live() || today[0].ResetAt.IsZero() || !today[1].Live() {
		t.Errorf("ProgressOn() after retry = %+v", today)
	}
}

func TestInsertProgress_Limit(t *testing.T) {
	db := newTestDB(t)
	date := day("2026-05-13")
	var ids []int64
	for _, diff := range []domain.Difficulty{domain.DifficultyBeginner, domain.DifficultyIntermediate, domain.DifficultyAdvanced} {
		q := seedQuestion(t, db, "storia", diff, string(diff))
		id, _, err := db.InsertDailyQuestion(ctx, domain.DailyQuestion{Date: date, Category: "storia", Difficulty: diff, QuestionID: q})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	answer := func(id int64) error {
		return db.InsertProgress(ctx, domain.ProgressRecord{UserID: "u1", DailyQuestionID: id, Date: date, AnsweredAt: now}, 2)
	}

	if err := answer(ids[0]); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ResetProgress(ctx, "u1", ids[0], date, now); err != nil {
		t.Fatal(err)
	}
	if err := answer(ids[0]); err != nil {
		t.Fatalf("retry error = %v", err)
	}
	if err := answer(ids[1]); !errors.Is(err, domain.ErrDailyLimitReached) {
		t.Errorf("third row error = %v, want ErrDailyLimitReached", err)
	}
	if err := answer(ids[0]); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Errorf("live duplicate at the limit error = %v, want ErrAlreadyAnswered", err)
	}
	if err := db.InsertProgress(ctx, domain.ProgressRecord{UserID: "u1", DailyQuestionID: ids[2], Date: date, AnsweredAt: now}, 0); err != nil {
		t.Errorf("unbounded insert error = %v", err)
	}
}

func TestPremium(t *testing.T) {
	db := newTestDB(t)

	ok, _ := db.IsPremium(ctx, "u1", now)
	if ok {
		t.Error("unknown user is premium")
	}
	db.SetPremium(ctx, "u1", now.Add(24*time.Hour))
	if ok, _ := db.IsPremium(ctx, "u1", now); !ok {
		t.Error("premium not active")
	}
	if ok, _ := db.IsPremium(ctx, "u1", now.Add(48*time.Hour)); ok {
		t.Error("premium active after expiry")
	}
}

// ─── Notifications & Newsletter ─────────────────────────────────────────────

func TestNotifications(t *testing.T) {
	db := newTestDB(t)
	id, err := db.InsertNotification(ctx, domain.Notification{UserID: "u1", Kind: domain.NotifyLevelUp, Title: "Livello 2", CreatedAt: now})
	if err != nil {
		t.Fatal(err)
	}
	db.InsertNotification(ctx, domain.Notification{UserID: "u1", Kind: domain.NotifyAchievement, Title: "Prima domanda", CreatedAt: now.Add(time.Second)})

	pending, _ := db.PendingNotifications(ctx, "u1", 10)
	if len(pending) != 2 || pending[0].ID != id {
		t.Fatalf("PendingNotifications() = %+v", pending)
	}

	if err := db.MarkNotificationShown(ctx, "u2", id); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("foreign mark error = %v", err)
	}
	if err := db.MarkNotificationShown(ctx, "u1", id); err != nil {
		t.Fatal(err)
	}
	pending, _ = db.PendingNotifications(ctx, "u1", 10)
	if len(pending) != 1 {
		t.Errorf("pending after mark = %d", len(pending))
	}

	n, _ := db.CountNotificationsSince(ctx, "u1", now.Add(time.Millisecond))
	if n != 1 {
		t.Errorf("CountNotificationsSince() = %d, want 1", n)
	}
}

func TestNewsletter(t *testing.T) {
	db := newTestDB(t)

	tok, err := db.Subscribe(ctx, "a@example.com", "t1", now)
	if err != nil || tok != "t1" {
		t.Fatalf("Subscribe() = %q, %v", tok, err)
	}
	// Subscribing again keeps the active token.
	tok, _ = db.Subscribe(ctx, "a@example.com", "t2", now)
	if tok != "t1" {
		t.Errorf("resubscribe token = %q, want t1", tok)
	}

	ok, _ := db.Unsubscribe(ctx, "t1", now)
	if !ok {
		t.Fatal("Unsubscribe() = false")
	}
	if ok, _ := db.Unsubscribe(ctx, "t1", now); ok {
		t.Error("double unsubscribe reported success")
	}
	if n, _ := db.ActiveSubscribers(ctx); n != 0 {
		t.Errorf("ActiveSubscribers() = %d", n)
	}

	tok, _ = db.Subscribe(ctx, "a@example.com", "t3", now)
	if tok != "t3" {
		t.Errorf("reactivated token = %q, want t3", tok)
	}
	if n, _ := db.ActiveSubscribers(ctx); n != 1 {
		t.Errorf("ActiveSubscribers() = %d, want 1", n)
	}
}
