package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fyrsmithlabs/launchplan/internal/quota"
)

// SubscriptionStore is the hosted subscriptions table.
type SubscriptionStore struct {
	pool *pgxpool.Pool
}

// NewSubscriptionStore creates a store over pool.
func NewSubscriptionStore(pool *pgxpool.Pool) *SubscriptionStore {
	return &SubscriptionStore{pool: pool}
}

var _ quota.Store = (*SubscriptionStore)(nil)

func (s *SubscriptionStore) Get(ctx context.Context, accountID string) (*quota.Subscription, error) {
	query := `
		SELECT user_id, tier, plans_generated, reset_at, updated_at
		FROM subscriptions WHERE user_id = $1
	`
	var sub quota.Subscription
	var tier string
	err := s.pool.QueryRow(ctx, query, accountID).Scan(
		&sub.AccountID,
		&tier,
		&sub.PlansGenerated,
		&sub.ResetAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	sub.Tier = quota.Tier(tier)
	sub.ResetAt = sub.ResetAt.UTC()
	sub.UpdatedAt = sub.UpdatedAt.UTC()
	return &sub, nil
}

func (s *SubscriptionStore) Create(ctx context.Context, sub *quota.Subscription) (*quota.Subscription, error) {
	query := `
		INSERT INTO subscriptions (user_id, tier, plans_generated, reset_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := s.pool.Exec(ctx, query, sub.AccountID, string(sub.Tier), sub.PlansGenerated, sub.ResetAt, sub.UpdatedAt); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	stored, err := s.Get(ctx, sub.AccountID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, quota.ErrNoSubscription
	}
	return stored, nil
}

// Reset is conditional on the reset_at the caller observed, so concurrent
// readers reset a period only once.
func (s *SubscriptionStore) Reset(ctx context.Context, accountID string, prev, next, now time.Time) (bool, error) {
	query := `
		UPDATE subscriptions
		SET plans_generated = 0, reset_at = $3, updated_at = $4
		WHERE user_id = $1 AND reset_at = $2
	`
	tag, err := s.pool.Exec(ctx, query, accountID, prev, next, now)
	if err != nil {
		return false, fmt.Errorf("reset subscription: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Increment is a single conditional update; it never moves the counter past
// limit regardless of how many callers race.
func (s *SubscriptionStore) Increment(ctx context.Context, accountID string, limit int, now time.Time) (bool, error) {
	query := `
		UPDATE subscriptions
		SET plans_generated = plans_generated + 1, updated_at = $3
		WHERE user_id = $1 AND plans_generated < $2
	`
	tag, err := s.pool.Exec(ctx, query, accountID, limit, now)
	if err != nil {
		return false, fmt.Errorf("increment subscription: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *SubscriptionStore) SetTier(ctx context.Context, accountID string, tier quota.Tier, now time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE subscriptions SET tier = $2, updated_at = $3 WHERE user_id = $1`,
		accountID, string(tier), now)
	if err != nil {
		return fmt.Errorf("set subscription tier: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return quota.ErrNoSubscription
	}
	return nil
}
