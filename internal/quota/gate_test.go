package quota

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fyrsmithlabs/launchplan/internal/config"
	"github.com/fyrsmithlabs/launchplan/internal/telemetry"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestGate(t *testing.T) (*Gate, *MemoryStore, *fakeClock, *telemetry.TestTelemetry) {
	t.Helper()
	store := NewMemoryStore()
	clock := &fakeClock{now: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)}
	tt := telemetry.NewTestTelemetry()
	g, err := NewGate(store, WithClock(clock.Now), WithMeterProvider(tt.MeterProvider()))
	require.NoError(t, err)
	return g, store, clock, tt
}

func TestNewGate_RequiresStore(t *testing.T) {
	_, err := NewGate(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota store is required")
}

func TestGate_IncrementStopsAtLimit(t *testing.T) {
	g, store, _, tt := newTestGate(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := g.Increment(ctx, "acct-1")
		require.NoError(t, err)
		assert.True(t, ok)
	}

	before := testutil.ToFloat64(deniedTotal.WithLabelValues("basic"))
	ok, err := g.Increment(ctx, "acct-1")
	require.NoError(t, err)
	assert.False(t, ok)

	sub, err := store.Get(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, 2, sub.PlansGenerated)

	can, err := g.CanGenerate(ctx, "acct-1")
	require.NoError(t, err)
	assert.False(t, can)

	assert.Equal(t, before+2, testutil.ToFloat64(deniedTotal.WithLabelValues("basic")))
	assert.Equal(t, int64(2), tt.CounterValue(t, "launchplan.quota.increments_total", attribute.String("tier", "basic")))
	assert.Equal(t, int64(2), tt.CounterValue(t, "launchplan.quota.denials_total"))
}

func TestGate_FirstReadCreatesBasicSubscription(t *testing.T) {
	g, store, clock, _ := newTestGate(t)
	ctx := context.Background()

	st, err := g.Status(ctx, "new-acct")
	require.NoError(t, err)
	assert.Equal(t, TierBasic, st.Tier)
	assert.Equal(t, 0, st.PlansGenerated)
	assert.Equal(t, 2, st.Limit)
	assert.Equal(t, 2, st.Remaining)
	assert.Equal(t, clock.Now().AddDate(0, 1, 0), st.ResetAt)
	assert.False(t, st.Anonymous)

	sub, err := store.Get(ctx, "new-acct")
	require.NoError(t, err)
	require.NotNil(t, sub)
}

func TestGate_ResetAdvancesFromNow(t *testing.T) {
	g, store, clock, tt := newTestGate(t)
	ctx := context.Background()

	_, err := store.Create(ctx, &Subscription{
		AccountID:      "acct-1",
		Tier:           TierBasic,
		PlansGenerated: 2,
		ResetAt:        clock.Now().Add(-90 * 24 * time.Hour),
	})
	require.NoError(t, err)

	st, err := g.Status(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, 0, st.PlansGenerated)
	assert.Equal(t, clock.Now().AddDate(0, 1, 0), st.ResetAt)
	assert.Equal(t, int64(1), tt.CounterValue(t, "launchplan.quota.resets_total"))

	ok, err := g.Increment(ctx, "acct-1")
	require.NoError(t, err)
	assert.True(t, ok)

	// No second reset within the new period.
	clock.Advance(24 * time.Hour)
	st, err = g.Status(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.PlansGenerated)
	assert.Equal(t, int64(1), tt.CounterValue(t, "launchplan.quota.resets_total"))
}

func TestGate_ResetHappensOnceUnderConcurrentReaders(t *testing.T) {
	g, store, clock, tt := newTestGate(t)
	ctx := context.Background()

	_, err := store.Create(ctx, &Subscription{
		AccountID:      "acct-1",
		Tier:           TierPro,
		PlansGenerated: 7,
		ResetAt:        clock.Now().Add(-time.Hour),
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Status(ctx, "acct-1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), tt.CounterValue(t, "launchplan.quota.resets_total"))
	sub, err := store.Get(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, 0, sub.PlansGenerated)
}

func TestGate_ConcurrentIncrementsNeverOvershoot(t *testing.T) {
	g, store, _, _ := newTestGate(t)
	ctx := context.Background()

	var granted int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := g.Increment(ctx, "acct-1")
			assert.NoError(t, err)
			if ok {
				atomic.AddInt32(&granted, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(2), granted)
	sub, err := store.Get(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, 2, sub.PlansGenerated)
}

func TestGate_Anonymous(t *testing.T) {
	g, store, _, _ := newTestGate(t)
	ctx := context.Background()

	can, err := g.CanGenerate(ctx, "")
	require.NoError(t, err)
	assert.True(t, can)

	ok, err := g.Increment(ctx, "")
	require.NoError(t, err)
	assert.False(t, ok)

	st, err := g.Status(ctx, "")
	require.NoError(t, err)
	assert.True(t, st.Anonymous)
	assert.Equal(t, TierBasic, st.Tier)
	assert.Equal(t, 2, st.Remaining)

	sub, err := store.Get(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, sub, "anonymous status must not be persisted")

	_, err = g.ChangeTier(ctx, "", TierPro)
	assert.ErrorIs(t, err, ErrAccountRequired)
}

func TestGate_ChangeTierKeepsCount(t *testing.T) {
	g, _, _, _ := newTestGate(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := g.Increment(ctx, "acct-1")
		require.NoError(t, err)
	}

	st, err := g.ChangeTier(ctx, "acct-1", "PRO")
	require.NoError(t, err)
	assert.Equal(t, TierPro, st.Tier)
	assert.Equal(t, 2, st.PlansGenerated)
	assert.Equal(t, 10, st.Limit)
	assert.Equal(t, 8, st.Remaining)

	ok, err := g.Increment(ctx, "acct-1")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = g.ChangeTier(ctx, "acct-1", "platinum")
	assert.ErrorIs(t, err, ErrInvalidTier)
}

func TestLimits(t *testing.T) {
	l := LimitsFromConfig(config.Default().Quota)
	assert.Equal(t, 2, l.For(TierBasic))
	assert.Equal(t, 10, l.For(TierPro))
	assert.Equal(t, 50, l.For(TierEnterprise))
	assert.Equal(t, 2, l.For(Tier("legacy")))
}

func TestGate_UnknownStoredTierUsesBasicLimit(t *testing.T) {
	g, store, clock, _ := newTestGate(t)
	ctx := context.Background()

	_, err := store.Create(ctx, &Subscription{AccountID: "acct-1", Tier: "legacy", PlansGenerated: 2, ResetAt: clock.Now().Add(time.Hour)})
	require.NoError(t, err)

	can, err := g.CanGenerate(ctx, "acct-1")
	require.NoError(t, err)
	assert.False(t, can)
}
