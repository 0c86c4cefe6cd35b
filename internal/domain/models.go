package domain

import "time"

// PointsPerLevel is the number of cumulative points per account level.
const PointsPerLevel = 100

// ActionKind enumerates the point-earning events the service accepts.
type ActionKind string

const (
	ReportSubmitted ActionKind = "report_submitted"
	ReviewPosted    ActionKind = "review_posted"
	FacilityAdded   ActionKind = "facility_added"
	QuizCompleted   ActionKind = "quiz_completed"
)

// Action is one immutable point-earning event submitted by the UI layer.
// IdempotencyKey is unique per logical submission so a retried request
// cannot award twice.
type Action struct {
	Kind           ActionKind `json:"kind"`
	UserID         string     `json:"userId"`
	Category       string     `json:"category,omitempty"` // report category, drives point lookup
	Score          int        `json:"score,omitempty"`    // quiz completions only
	Timestamp      time.Time  `json:"timestamp"`
	IdempotencyKey string     `json:"idempotencyKey"`
}

// UserAccount holds the per-user cumulative ledger state. Level is never
// authored directly; it is always recomputed from TotalPoints.
type UserAccount struct {
	UserID          string    `json:"userId"`
	DisplayName     string    `json:"displayName"`
	TotalPoints     int       `json:"totalPoints"`
	Level           int       `json:"level"`
	Badges          []string  `json:"badges"`
	ReportCount     int       `json:"reportCount"`
	ReviewCount     int       `json:"reviewCount"`
	QuizScore       int       `json:"quizScore"`
	FacilitiesAdded int       `json:"facilitiesAdded"`
	AppliedKeys     []string  `json:"appliedKeys"`
	Version         int64     `json:"version"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// LevelForPoints derives the account level from a points total.
func LevelForPoints(totalPoints int) int {
	if totalPoints < 0 {
		totalPoints = 0
	}
	return totalPoints/PointsPerLevel + 1
}

// HasBadge reports whether the badge has already been granted.
func (a UserAccount) HasBadge(name string) bool {
	for _, b := range a.Badges {
		if b == name {
			return true
		}
	}
	return false
}

// HasAppliedKey reports whether an idempotency key was already applied.
func (a UserAccount) HasAppliedKey(key string) bool {
	for _, k := range a.AppliedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate without aliasing
// store-held state.
func (a UserAccount) Clone() UserAccount {
	out := a
	out.Badges = append([]string(nil), a.Badges...)
	out.AppliedKeys = append([]string(nil), a.AppliedKeys...)
	return out
}

// PointAward is the rule engine's output for one action. It is folded
// into the account by the coordinator and never persisted on its own.
type PointAward struct {
	Points         int      `json:"points"`
	BadgesUnlocked []string `json:"badgesUnlocked"`
}

// AwardResult is what the action submission entry point returns for
// immediate user feedback.
type AwardResult struct {
	PointsAwarded int      `json:"pointsAwarded"`
	NewBadges     []string `json:"newBadges"`
	TotalPoints   int      `json:"totalPoints"`
	Level         int      `json:"level"`
	Duplicate     bool     `json:"duplicate"`
}

// LeaderboardEntry is a derived, read-only ranking row.
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	TotalPoints int    `json:"totalPoints"`
	Level       int    `json:"level"`
}

// Question is a multiple-choice question graded by exact option index.
type Question struct {
	Prompt      string   `json:"prompt"`
	Options     []string `json:"options"`
	Correct     int      `json:"correct"`
	Explanation string   `json:"explanation,omitempty"`
}

// Quiz is a collection of questions with a flat per-question award.
type Quiz struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	Category          string     `json:"category,omitempty"`
	Questions         []Question `json:"questions"`
	PointsPerQuestion int        `json:"pointsPerQuestion"` // defaults to 10 if zero
}

// QuestionPoints returns the award for one correct answer.
func (q Quiz) QuestionPoints() int {
	if q.PointsPerQuestion <= 0 {
		return 10
	}
	return q.PointsPerQuestion
}

// MaxScore is the score of a perfect run.
func (q Quiz) MaxScore() int {
	return len(q.Questions) * q.QuestionPoints()
}
