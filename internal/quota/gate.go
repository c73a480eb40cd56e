// Package quota enforces the per-account monthly plan generation limit.
//
// CanGenerate is advisory and meant for showing or hiding the generate
// action. Increment is the authoritative gate: it is a conditional update
// that refuses to move past the tier limit, so a check-then-increment race
// can never overspend.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/launchplan/internal/logging"
)

const instrumentationName = "github.com/fyrsmithlabs/launchplan/internal/quota"

var deniedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "launchplan_quota_denied_total",
		Help: "Plan generations refused because the account reached its tier limit",
	},
	[]string{"tier"},
)

func init() {
	prometheus.MustRegister(deniedTotal)
}

// Gate tracks and enforces generation quotas.
type Gate struct {
	store  Store
	limits Limits
	clock  func() time.Time
	logger *logging.Logger

	increments metric.Int64Counter
	denials    metric.Int64Counter
	resets     metric.Int64Counter
}

// Option configures a Gate.
type Option func(*Gate)

// WithLimits overrides the tier limits.
func WithLimits(l Limits) Option {
	return func(g *Gate) { g.limits = l }
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(g *Gate) { g.clock = clock }
}

// WithLogger sets the gate's logger.
func WithLogger(l *logging.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

// WithMeterProvider sets the provider for quota counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(g *Gate) { g.initMetrics(mp) }
}

// NewGate creates a gate over store.
func NewGate(store Store, opts ...Option) (*Gate, error) {
	if store == nil {
		return nil, errors.New("quota store is required")
	}
	g := &Gate{
		store:  store,
		limits: DefaultLimits(),
		clock:  time.Now,
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.increments == nil {
		g.initMetrics(otel.GetMeterProvider())
	}
	g.logger = g.logger.Named("quota")
	return g, nil
}

func (g *Gate) initMetrics(mp metric.MeterProvider) {
	meter := mp.Meter(instrumentationName)
	var err error

	g.increments, err = meter.Int64Counter("launchplan.quota.increments_total",
		metric.WithDescription("Generations charged against a quota"),
		metric.WithUnit("{generation}"))
	if err != nil {
		g.logger.Warn(context.Background(), "failed to create increments counter", zap.Error(err))
	}
	g.denials, err = meter.Int64Counter("launchplan.quota.denials_total",
		metric.WithDescription("Generations refused at the tier limit"),
		metric.WithUnit("{generation}"))
	if err != nil {
		g.logger.Warn(context.Background(), "failed to create denials counter", zap.Error(err))
	}
	g.resets, err = meter.Int64Counter("launchplan.quota.resets_total",
		metric.WithDescription("Monthly counter resets"),
		metric.WithUnit("{reset}"))
	if err != nil {
		g.logger.Warn(context.Background(), "failed to create resets counter", zap.Error(err))
	}
}

func nextReset(now time.Time) time.Time {
	return now.AddDate(0, 1, 0)
}

// load returns the account's subscription, creating a basic one on first
// use and applying a due monthly reset.
func (g *Gate) load(ctx context.Context, accountID string) (*Subscription, error) {
	sub, err := g.store.Get(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("loading subscription: %w", err)
	}
	now := g.clock().UTC()
	if sub == nil {
		sub, err = g.store.Create(ctx, &Subscription{
			AccountID: accountID,
			Tier:      TierBasic,
			ResetAt:   nextReset(now),
			UpdatedAt: now,
		})
		if err != nil {
			return nil, fmt.Errorf("creating subscription: %w", err)
		}
		g.logger.Info(ctx, "created basic subscription", zap.Time("reset_at", sub.ResetAt))
	}

	if !now.After(sub.ResetAt) {
		return sub, nil
	}

	done, err := g.store.Reset(ctx, accountID, sub.ResetAt, nextReset(now), now)
	if err != nil {
		return nil, fmt.Errorf("resetting subscription: %w", err)
	}
	if done {
		g.add(ctx, g.resets, sub.Tier)
		g.logger.Info(ctx, "monthly quota reset",
			zap.Time("previous_reset_at", sub.ResetAt),
			zap.Int("plans_generated", sub.PlansGenerated))
	}

	sub, err = g.store.Get(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("reloading subscription: %w", err)
	}
	if sub == nil {
		return nil, ErrNoSubscription
	}
	return sub, nil
}

func (g *Gate) add(ctx context.Context, c metric.Int64Counter, tier Tier) {
	if c != nil {
		c.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", string(tier))))
	}
}

// CanGenerate reports whether the account has generations left. Anonymous
// callers are treated as a fresh basic account.
func (g *Gate) CanGenerate(ctx context.Context, accountID string) (bool, error) {
	if accountID == "" {
		return g.limits.For(TierBasic) > 0, nil
	}
	sub, err := g.load(ctx, accountID)
	if err != nil {
		return false, err
	}
	ok := sub.PlansGenerated < g.limits.For(sub.Tier)
	if !ok {
		g.deny(ctx, sub.Tier)
	}
	return ok, nil
}

// Increment charges one generation. It returns false and changes nothing
// when the account is already at its limit. Anonymous generations are
// never charged.
func (g *Gate) Increment(ctx context.Context, accountID string) (bool, error) {
	if accountID == "" {
		return false, nil
	}
	sub, err := g.load(ctx, accountID)
	if err != nil {
		return false, err
	}
	ok, err := g.store.Increment(ctx, accountID, g.limits.For(sub.Tier), g.clock().UTC())
	if err != nil {
		return false, fmt.Errorf("incrementing quota: %w", err)
	}
	if !ok {
		g.deny(ctx, sub.Tier)
		g.logger.Warn(ctx, "quota increment refused at limit",
			zap.String("tier", string(sub.Tier)),
			zap.Int("limit", g.limits.For(sub.Tier)))
		return false, nil
	}
	g.add(ctx, g.increments, sub.Tier)
	return true, nil
}

func (g *Gate) deny(ctx context.Context, tier Tier) {
	g.add(ctx, g.denials, tier)
	deniedTotal.WithLabelValues(string(tier)).Inc()
}

// Status returns the account's current quota. Anonymous callers get the
// basic default, which is not stored.
func (g *Gate) Status(ctx context.Context, accountID string) (*Status, error) {
	if accountID == "" {
		now := g.clock().UTC()
		st := g.status(&Subscription{Tier: TierBasic, ResetAt: nextReset(now)})
		st.Anonymous = true
		return st, nil
	}
	sub, err := g.load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return g.status(sub), nil
}

// ChangeTier moves the account to tier. The period's counter is kept.
func (g *Gate) ChangeTier(ctx context.Context, accountID string, tier Tier) (*Status, error) {
	if accountID == "" {
		return nil, ErrAccountRequired
	}
	tier, err := ParseTier(string(tier))
	if err != nil {
		return nil, err
	}
	sub, err := g.load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := g.store.SetTier(ctx, accountID, tier, g.clock().UTC()); err != nil {
		return nil, fmt.Errorf("changing tier: %w", err)
	}
	g.logger.Info(ctx, "subscription tier changed",
		zap.String("from", string(sub.Tier)),
		zap.String("to", string(tier)))

	sub.Tier = tier
	return g.status(sub), nil
}

func (g *Gate) status(sub *Subscription) *Status {
	limit := g.limits.For(sub.Tier)
	remaining := limit - sub.PlansGenerated
	if remaining < 0 {
		remaining = 0
	}
	return &Status{
		Tier:           sub.Tier,
		PlansGenerated: sub.PlansGenerated,
		Limit:          limit,
		Remaining:      remaining,
		ResetAt:        sub.ResetAt,
	}
}
