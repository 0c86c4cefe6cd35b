package memory

import (
	"context"
	"sync"
	"time"

	"civic-engage-service/internal/app"
	"civic-engage-service/internal/domain"
)

// LedgerStore is the in-memory reference implementation of
// app.LedgerStore. Versioned compare-and-set gives the same optimistic
// concurrency semantics as the Redis and Postgres backends, so the
// coordinator behaves identically against all three.
type LedgerStore struct {
	mu       sync.RWMutex
	accounts map[string]domain.UserAccount
	now      func() time.Time
}

func NewLedgerStore() *LedgerStore {
	return NewLedgerStoreWithClock(time.Now)
}

// NewLedgerStoreWithClock allows deterministic creation times in tests.
func NewLedgerStoreWithClock(now func() time.Time) *LedgerStore {
	return &LedgerStore{
		accounts: make(map[string]domain.UserAccount),
		now:      now,
	}
}

func (s *LedgerStore) Get(_ context.Context, userID string) (domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[userID]
	if !ok {
		return domain.UserAccount{}, domain.ErrUnknownUser
	}
	return account.Clone(), nil
}

func (s *LedgerStore) Create(_ context.Context, userID, displayName string) (domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account, ok := s.accounts[userID]; ok {
		return account.Clone(), nil
	}
	now := s.now()
	account := domain.UserAccount{
		UserID:      userID,
		DisplayName: displayName,
		Level:       domain.LevelForPoints(0),
		Badges:      []string{},
		AppliedKeys: []string{},
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.accounts[userID] = account
	return account.Clone(), nil
}

func (s *LedgerStore) CompareAndSet(_ context.Context, expectedVersion int64, account domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.accounts[account.UserID]
	if !ok {
		return domain.ErrUnknownUser
	}
	if stored.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	// Creation time is owned by the store, not the caller.
	account.CreatedAt = stored.CreatedAt
	s.accounts[account.UserID] = account.Clone()
	return nil
}

// Top recomputes the ranking from current snapshots on every read.
func (s *LedgerStore) Top(_ context.Context, n int) ([]domain.LeaderboardEntry, error) {
	s.mu.RLock()
	accounts := make([]domain.UserAccount, 0, len(s.accounts))
	for _, account := range s.accounts {
		accounts = append(accounts, account.Clone())
	}
	s.mu.RUnlock()

	return app.RankAccounts(accounts, n), nil
}
