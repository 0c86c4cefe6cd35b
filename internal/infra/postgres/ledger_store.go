package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"civic-engage-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// LedgerStore persists accounts as JSONB rows with a version column.
// Compare-and-set is a conditional UPDATE on that column, so a lost
// race writes nothing and the coordinator retries against fresh state.
type LedgerStore struct {
	pool *pgxpool.Pool
}

func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

func (s *LedgerStore) Get(ctx context.Context, userID string) (domain.UserAccount, error) {
	var (
		raw       []byte
		version   int64
		createdAt time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT data, version, created_at FROM users WHERE id=$1`, userID,
	).Scan(&raw, &version, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UserAccount{}, domain.ErrUnknownUser
	}
	if err != nil {
		return domain.UserAccount{}, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}

	account, err := decodeAccount(raw)
	if err != nil {
		return domain.UserAccount{}, err
	}
	// The columns are authoritative for concurrency control and ranking.
	account.Version = version
	account.CreatedAt = createdAt
	return account, nil
}

func (s *LedgerStore) Create(ctx context.Context, userID, displayName string) (domain.UserAccount, error) {
	now := time.Now().UTC()
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

	_, err = s.pool.Exec(ctx,
		`INSERT INTO users (id, data, version, created_at)
		 VALUES ($1, $2, 1, $3)
		 ON CONFLICT (id) DO NOTHING`,
		userID, data, now,
	)
	if err != nil {
		return domain.UserAccount{}, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	// Return whatever row won, ours or a pre-existing one.
	return s.Get(ctx, userID)
}

func (s *LedgerStore) CompareAndSet(ctx context.Context, expectedVersion int64, account domain.UserAccount) error {
	data, err := json.Marshal(account)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET data=$2, version=$3 WHERE id=$1 AND version=$4`,
		account.UserID, data, account.Version, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Nothing updated: either the row is gone or another writer won.
	if _, err := s.Get(ctx, account.UserID); errors.Is(err, domain.ErrUnknownUser) {
		return domain.ErrUnknownUser
	}
	return domain.ErrVersionConflict
}

// Top recomputes the ranking in SQL with the shared total order.
func (s *LedgerStore) Top(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data, version, created_at FROM users
		 ORDER BY (data->>'totalPoints')::int DESC, created_at ASC, id ASC
		 LIMIT $1`, n,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	entries := make([]domain.LeaderboardEntry, 0, n)
	for rows.Next() {
		var (
			raw       []byte
			version   int64
			createdAt time.Time
		)
		if err := rows.Scan(&raw, &version, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
		}
		account, err := decodeAccount(raw)
		if err != nil {
			return nil, err
		}
		entries = append(entries, domain.LeaderboardEntry{
			Rank:        len(entries) + 1,
			UserID:      account.UserID,
			DisplayName: account.DisplayName,
			TotalPoints: account.TotalPoints,
			Level:       domain.LevelForPoints(account.TotalPoints),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return entries, nil
}

func decodeAccount(raw []byte) (domain.UserAccount, error) {
	var account domain.UserAccount
	if err := json.Unmarshal(raw, &account); err != nil {
		return domain.UserAccount{}, fmt.Errorf("decode account: %w", err)
	}
	return account, nil
}
