package app

import (
	"sort"

	"civic-engage-service/internal/domain"
)

// MaxLeaderboardSize caps the leaderboard read entry point.
const MaxLeaderboardSize = 100

// ClampLeaderboardSize normalizes a requested size into [1, max].
func ClampLeaderboardSize(n int) int {
	if n <= 0 {
		return 10
	}
	if n > MaxLeaderboardSize {
		return MaxLeaderboardSize
	}
	return n
}

// RankAccounts orders account snapshots by (points desc, createdAt asc,
// userId asc) and projects the top n into ranked entries. Every backend
// ranks with this same total order so ties resolve identically
// everywhere.
func RankAccounts(accounts []domain.UserAccount, n int) []domain.LeaderboardEntry {
	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].TotalPoints != accounts[j].TotalPoints {
			return accounts[i].TotalPoints > accounts[j].TotalPoints
		}
		if !accounts[i].CreatedAt.Equal(accounts[j].CreatedAt) {
			return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
		}
		return accounts[i].UserID < accounts[j].UserID
	})

	if n > len(accounts) {
		n = len(accounts)
	}
	entries := make([]domain.LeaderboardEntry, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, domain.LeaderboardEntry{
			Rank:        i + 1,
			UserID:      accounts[i].UserID,
			DisplayName: accounts[i].DisplayName,
			TotalPoints: accounts[i].TotalPoints,
			Level:       domain.LevelForPoints(accounts[i].TotalPoints),
		})
	}
	return entries
}
