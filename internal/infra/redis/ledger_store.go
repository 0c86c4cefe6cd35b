package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"civic-engage-service/internal/app"
	"civic-engage-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

const boardKey = "ledger:board"

// LedgerStore keeps one JSON account blob per user and an
// always-current sorted set of point totals. Compare-and-set rides on
// WATCH/MULTI: a concurrent writer invalidates the transaction and the
// coordinator retries against the fresh state. The sorted set is
// updated inside the same transaction, so the index never sees a
// commit it wasn't part of.
type LedgerStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewLedgerStore(client *redis.Client) *LedgerStore {
	return NewLedgerStoreWithClock(client, time.Now)
}

// NewLedgerStoreWithClock allows deterministic creation times in tests.
func NewLedgerStoreWithClock(client *redis.Client, now func() time.Time) *LedgerStore {
	return &LedgerStore{client: client, now: now}
}

func (s *LedgerStore) Get(ctx context.Context, userID string) (domain.UserAccount, error) {
	raw, err := s.client.Get(ctx, s.userKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.UserAccount{}, domain.ErrUnknownUser
	}
	if err != nil {
		return domain.UserAccount{}, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return decodeAccount(raw)
}

func (s *LedgerStore) Create(ctx context.Context, userID, displayName string) (domain.UserAccount, error) {
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
	data, err := json.Marshal(account)
	if err != nil {
		return domain.UserAccount{}, err
	}

	created, err := s.client.SetNX(ctx, s.userKey(userID), data, 0).Result()
	if err != nil {
		return domain.UserAccount{}, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	if !created {
		return s.Get(ctx, userID)
	}
	if err := s.client.ZAdd(ctx, boardKey, redis.Z{Score: 0, Member: userID}).Err(); err != nil {
		return domain.UserAccount{}, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return account, nil
}

func (s *LedgerStore) CompareAndSet(ctx context.Context, expectedVersion int64, account domain.UserAccount) error {
	key := s.userKey(account.UserID)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrUnknownUser
		}
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
		}
		stored, err := decodeAccount(raw)
		if err != nil {
			return err
		}
		if stored.Version != expectedVersion {
			return domain.ErrVersionConflict
		}

		account.CreatedAt = stored.CreatedAt
		data, err := json.Marshal(account)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.ZAdd(ctx, boardKey, redis.Z{Score: float64(account.TotalPoints), Member: account.UserID})
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		// Another writer touched the key between read and commit.
		return domain.ErrVersionConflict
	}
	return err
}

// Top reads the sorted set and resolves ties from the account
// snapshots. The fetch overscans past n so entries tied at the
// boundary rank by the same (createdAt, userId) order every backend
// uses.
func (s *LedgerStore) Top(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	fetch := int64(n)*2 + 16
	userIDs, err := s.client.ZRevRange(ctx, boardKey, 0, fetch-1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	if len(userIDs) == 0 {
		return []domain.LeaderboardEntry{}, nil
	}

	accounts := make([]domain.UserAccount, 0, len(userIDs))
	for _, userID := range userIDs {
		account, err := s.Get(ctx, userID)
		if errors.Is(err, domain.ErrUnknownUser) {
			continue // index ahead of a deleted account
		}
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return app.RankAccounts(accounts, n), nil
}

func (s *LedgerStore) userKey(userID string) string {
	return "ledger:user:" + userID
}

func decodeAccount(raw []byte) (domain.UserAccount, error) {
	var account domain.UserAccount
	if err := json.Unmarshal(raw, &account); err != nil {
		return domain.UserAccount{}, fmt.Errorf("decode account: %w", err)
	}
	return account, nil
}
