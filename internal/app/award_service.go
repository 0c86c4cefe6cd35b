package app

import (
	"context"
	"errors"
	"time"

	"civic-engage-service/internal/domain"
	"civic-engage-service/internal/rules"
)

// DefaultAwardRetries bounds how many times a lost CAS race is retried
// before the request is surfaced as transient.
const DefaultAwardRetries = 5

// LedgerStore abstracts per-user cumulative state (in-memory, Redis,
// Postgres). CompareAndSet must only commit when the stored version
// still equals expectedVersion, and must bump the version on success.
type LedgerStore interface {
	Get(ctx context.Context, userID string) (domain.UserAccount, error)
	// Create provisions a zeroed account; it is idempotent and returns
	// the existing account if one is already present.
	Create(ctx context.Context, userID, displayName string) (domain.UserAccount, error)
	CompareAndSet(ctx context.Context, expectedVersion int64, account domain.UserAccount) error
}

// LeaderboardIndex is the derived ranked view over the ledger. It may
// lag commits by one refresh cycle but every returned snapshot is
// internally consistent and totally ordered.
type LeaderboardIndex interface {
	Top(ctx context.Context, n int) ([]domain.LeaderboardEntry, error)
}

// QuizCatalog loads quiz content (from cache/backing store).
type QuizCatalog interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// AwardService is the coordinator: for one action it runs a single
// atomic read-compute-commit cycle against the ledger. Concurrent
// awards to the same user are serialized by optimistic concurrency;
// the loser of a race retries against the freshly committed state.
type AwardService struct {
	ledger  LedgerStore
	retries int
	now     func() time.Time
}

func NewAwardService(ledger LedgerStore) *AwardService {
	return &AwardService{ledger: ledger, retries: DefaultAwardRetries, now: time.Now}
}

// NewAwardServiceWithClock is test-only for deterministic timestamps.
func NewAwardServiceWithClock(ledger LedgerStore, retries int, now func() time.Time) *AwardService {
	if retries <= 0 {
		retries = DefaultAwardRetries
	}
	return &AwardService{ledger: ledger, retries: retries, now: now}
}

// Provision creates the zeroed account on first sign-in. Safe to call
// repeatedly for the same user.
func (s *AwardService) Provision(ctx context.Context, userID, displayName string) (domain.UserAccount, error) {
	return s.ledger.Create(ctx, userID, displayName)
}

// Account returns the current snapshot for a user.
func (s *AwardService) Account(ctx context.Context, userID string) (domain.UserAccount, error) {
	return s.ledger.Get(ctx, userID)
}

// Apply runs one action through the award cycle and returns the
// post-award feedback tuple. A replayed idempotency key is a no-op
// success reporting the unchanged snapshot. ErrUnknownUser is surfaced
// when the account was never provisioned; ErrRetriesExhausted when the
// conflict budget runs out with nothing written.
func (s *AwardService) Apply(ctx context.Context, action domain.Action) (domain.AwardResult, error) {
	for attempt := 0; attempt < s.retries; attempt++ {
		account, err := s.ledger.Get(ctx, action.UserID)
		if err != nil {
			return domain.AwardResult{}, err
		}

		if action.IdempotencyKey != "" && account.HasAppliedKey(action.IdempotencyKey) {
			return domain.AwardResult{
				TotalPoints: account.TotalPoints,
				Level:       account.Level,
				Duplicate:   true,
			}, nil
		}

		award := rules.Compute(action, account)
		updated := applyAward(account, action, award, s.now())

		err = s.ledger.CompareAndSet(ctx, account.Version, updated)
		if errors.Is(err, domain.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return domain.AwardResult{}, err
		}
		return domain.AwardResult{
			PointsAwarded: award.Points,
			NewBadges:     append([]string(nil), award.BadgesUnlocked...),
			TotalPoints:   updated.TotalPoints,
			Level:         updated.Level,
		}, nil
	}
	return domain.AwardResult{}, domain.ErrRetriesExhausted
}

// applyAward folds one award into the account: points, kind-specific
// counter, level recomputed from the post-award total, badge union,
// idempotency key, version bump. Pure so it is trivially retryable.
func applyAward(account domain.UserAccount, action domain.Action, award domain.PointAward, now time.Time) domain.UserAccount {
	updated := account.Clone()
	updated.TotalPoints += award.Points
	updated.Level = domain.LevelForPoints(updated.TotalPoints)
	switch action.Kind {
	case domain.ReportSubmitted:
		updated.ReportCount++
	case domain.ReviewPosted:
		updated.ReviewCount++
	case domain.FacilityAdded:
		updated.FacilitiesAdded++
	case domain.QuizCompleted:
		updated.QuizScore += award.Points
	}
	for _, badge := range award.BadgesUnlocked {
		if !updated.HasBadge(badge) {
			updated.Badges = append(updated.Badges, badge)
		}
	}
	if action.IdempotencyKey != "" {
		updated.AppliedKeys = append(updated.AppliedKeys, action.IdempotencyKey)
	}
	updated.Version = account.Version + 1
	updated.UpdatedAt = now
	return updated
}
