// Package rules holds the pure award computation: the category point
// table and the badge catalog. Nothing here performs I/O; the same
// inputs always produce the same award.
package rules

import (
	"strings"

	"civic-engage-service/internal/domain"
)

const (
	defaultReportPoints = 25
	reviewPoints        = 10
	facilityPoints      = 15
)

// reportPoints maps a report category to its award. Unknown categories
// fall back to defaultReportPoints rather than failing, so the caller
// always gets a displayable result.
var reportPoints = map[string]int{
	"infrastructure": 25,
	"environment":    30,
	"safety":         35,
	"transport":      20,
	"waste":          25,
}

// Compute maps an action to its point award and any badges that unlock
// as a result. Badge predicates are evaluated against the hypothetical
// post-award account so a single action can cross several thresholds
// at once.
func Compute(action domain.Action, current domain.UserAccount) domain.PointAward {
	points := pointsFor(action)
	next := applyHypothetical(current, action, points)

	var unlocked []string
	for _, badge := range Catalog {
		if current.HasBadge(badge.Name) {
			continue
		}
		if !badge.Unlocked(current) && badge.Unlocked(next) {
			unlocked = append(unlocked, badge.Name)
		}
	}
	return domain.PointAward{Points: points, BadgesUnlocked: unlocked}
}

func pointsFor(action domain.Action) int {
	switch action.Kind {
	case domain.ReportSubmitted:
		if p, ok := reportPoints[strings.ToLower(action.Category)]; ok {
			return p
		}
		return defaultReportPoints
	case domain.ReviewPosted:
		return reviewPoints
	case domain.FacilityAdded:
		return facilityPoints
	case domain.QuizCompleted:
		if action.Score < 0 {
			return 0
		}
		return action.Score
	default:
		return 0
	}
}

// applyHypothetical builds the account as it would look after the award,
// without touching version, applied keys, or badge grants. It exists
// only to feed badge predicates.
func applyHypothetical(current domain.UserAccount, action domain.Action, points int) domain.UserAccount {
	next := current
	next.TotalPoints += points
	next.Level = domain.LevelForPoints(next.TotalPoints)
	switch action.Kind {
	case domain.ReportSubmitted:
		next.ReportCount++
	case domain.ReviewPosted:
		next.ReviewCount++
	case domain.FacilityAdded:
		next.FacilitiesAdded++
	case domain.QuizCompleted:
		next.QuizScore += points
	}
	return next
}
