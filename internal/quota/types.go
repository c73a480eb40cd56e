package quota

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fyrsmithlabs/launchplan/internal/config"
)

// Tier is a subscription plan level.
type Tier string

const (
	TierBasic      Tier = "basic"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

var (
	// ErrInvalidTier is returned by ChangeTier for an unknown tier name.
	ErrInvalidTier = errors.New("invalid subscription tier")

	// ErrAccountRequired is returned for operations that need an account.
	ErrAccountRequired = errors.New("account is required")

	// ErrNoSubscription is returned by stores when updating a missing row.
	ErrNoSubscription = errors.New("subscription not found")
)

// ParseTier validates a tier name, ignoring case and surrounding space.
func ParseTier(s string) (Tier, error) {
	switch t := Tier(strings.ToLower(strings.TrimSpace(s))); t {
	case TierBasic, TierPro, TierEnterprise:
		return t, nil
	}
	return "", ErrInvalidTier
}

// Limits maps each tier to its monthly generation allowance.
type Limits map[Tier]int

// DefaultLimits returns the standard allowances.
func DefaultLimits() Limits {
	return Limits{TierBasic: 2, TierPro: 10, TierEnterprise: 50}
}

// LimitsFromConfig builds limits from loaded settings.
func LimitsFromConfig(cfg config.QuotaConfig) Limits {
	return Limits{
		TierBasic:      cfg.BasicLimit,
		TierPro:        cfg.ProLimit,
		TierEnterprise: cfg.EnterpriseLimit,
	}
}

// For returns the limit of tier. Unknown tiers get the basic limit.
func (l Limits) For(tier Tier) int {
	if n, ok := l[tier]; ok {
		return n
	}
	return l[TierBasic]
}

// Subscription is the stored quota state of one account.
type Subscription struct {
	AccountID      string
	Tier           Tier
	PlansGenerated int
	ResetAt        time.Time
	UpdatedAt      time.Time
}

// Status is the caller-facing view of a subscription.
type Status struct {
	Tier           Tier      `json:"tier"`
	PlansGenerated int       `json:"plans_generated"`
	Limit          int       `json:"limit"`
	Remaining      int       `json:"remaining"`
	ResetAt        time.Time `json:"reset_at"`
	Anonymous      bool      `json:"anonymous,omitempty"`
}

// Store persists subscriptions. Every mutation is conditional so that
// concurrent callers cannot overshoot a limit or reset twice.
type Store interface {
	// Get returns the subscription, or nil if none exists.
	Get(ctx context.Context, accountID string) (*Subscription, error)

	// Create inserts sub unless one already exists, and returns the stored
	// row either way.
	Create(ctx context.Context, sub *Subscription) (*Subscription, error)

	// Reset zeroes the counter and moves reset_at to next, but only if
	// reset_at still equals prev. It reports whether this call did it.
	Reset(ctx context.Context, accountID string, prev, next, now time.Time) (bool, error)

	// Increment adds one generation if the counter is below limit. It
	// reports whether the increment happened.
	Increment(ctx context.Context, accountID string, limit int, now time.Time) (bool, error)

	// SetTier changes the tier without touching the counter.
	SetTier(ctx context.Context, accountID string, tier Tier, now time.Time) error
}
