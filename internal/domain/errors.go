package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency.

var (
	// Lookup errors
	ErrNotFound            = errors.New("not found")
	ErrUnknownAchievement  = errors.New("unknown achievement")
	ErrNoActiveChallenge   = errors.New("no active weekly challenge")
	ErrNoQuestionAvailable = errors.New("no daily question available")

	// Request errors
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnauthenticated = errors.New("missing user identity")

	// Daily question errors
	ErrAlreadyAnswered   = errors.New("question already answered today")
	ErrDailyLimitReached = errors.New("daily question limit reached")
	ErrPremiumRequired   = errors.New("premium subscription required")
	ErrQuestionNotServed = errors.New("question is not scheduled for today")

	// Concurrency errors
	ErrStreakConflict = errors.New("streak changed concurrently, retries exhausted")

	// Voice errors
	ErrNoSpeechProvider = errors.New("no speech provider could serve the request")
)
