package rules

import "civic-engage-service/internal/domain"

// Badge pairs an achievement name with its unlock predicate. Predicates
// are total functions over account counters; once granted a badge is
// never revoked.
type Badge struct {
	Name        string
	Description string
	Unlocked    func(domain.UserAccount) bool
}

// Catalog lists every badge in its declared evaluation order. Order
// matters only for reproducibility of the unlocked-badge list.
var Catalog = []Badge{
	{
		Name:        "First Reporter",
		Description: "Submit your first civic report",
		Unlocked:    func(a domain.UserAccount) bool { return a.ReportCount >= 1 },
	},
	{
		Name:        "Community Helper",
		Description: "Submit five civic reports",
		Unlocked:    func(a domain.UserAccount) bool { return a.ReportCount >= 5 },
	},
	{
		Name:        "First Reviewer",
		Description: "Post your first facility review",
		Unlocked:    func(a domain.UserAccount) bool { return a.ReviewCount >= 1 },
	},
	{
		Name:        "Facility Scout",
		Description: "Add a public facility to the map",
		Unlocked:    func(a domain.UserAccount) bool { return a.FacilitiesAdded >= 1 },
	},
	{
		Name:        "Point Collector",
		Description: "Reach 100 total points",
		Unlocked:    func(a domain.UserAccount) bool { return a.TotalPoints >= 100 },
	},
	{
		Name:        "Civic Champion",
		Description: "Reach 500 total points",
		Unlocked:    func(a domain.UserAccount) bool { return a.TotalPoints >= 500 },
	},
	{
		Name:        "Quiz Whiz",
		Description: "Earn 80 quiz points",
		Unlocked:    func(a domain.UserAccount) bool { return a.QuizScore >= 80 },
	},
}

// BadgeByName looks a badge up in the catalog.
func BadgeByName(name string) (Badge, bool) {
	for _, b := range Catalog {
		if b.Name == name {
			return b, true
		}
	}
	return Badge{}, false
}
