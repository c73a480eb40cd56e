package directory_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/launchplan/internal/directory"
	"github.com/fyrsmithlabs/launchplan/internal/logging"
	"github.com/fyrsmithlabs/launchplan/internal/persistence"
	"github.com/fyrsmithlabs/launchplan/internal/persistence/device"
	"github.com/fyrsmithlabs/launchplan/internal/plan"
)

type flakyHosted struct {
	*persistence.MemoryHostedStore
	listErr error
}

func (f *flakyHosted) ListByAccount(ctx context.Context, accountID string) ([]persistence.HostedDocument, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.MemoryHostedStore.ListByAccount(ctx, accountID)
}

// savingHosted runs onList after taking the hosted snapshot, before
// returning it.
type savingHosted struct {
	*persistence.MemoryHostedStore
	onList func()
}

func (s *savingHosted) ListByAccount(ctx context.Context, accountID string) ([]persistence.HostedDocument, error) {
	docs, err := s.MemoryHostedStore.ListByAccount(ctx, accountID)
	if s.onList != nil {
		s.onList()
	}
	return docs, err
}

type fixture struct {
	hosted *flakyHosted
	layer  *persistence.Layer
	dir    *directory.Directory
	logger *logging.TestLogger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hosted := &flakyHosted{MemoryHostedStore: persistence.NewMemoryHostedStore()}
	n := 0
	clock := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	layer, err := persistence.NewLayer(hosted, device.NewMemoryStore(),
		persistence.WithIDGenerator(func() string { n++; return fmt.Sprintf("plan-%d", n) }),
		persistence.WithClock(func() time.Time { clock = clock.Add(time.Minute); return clock }),
	)
	require.NoError(t, err)

	logger := logging.NewTestLogger()
	dir, err := directory.New(layer, logger.Logger)
	require.NoError(t, err)
	return &fixture{hosted: hosted, layer: layer, dir: dir, logger: logger}
}

func fullPlan(idea string) *plan.AggregatePlan {
	p := plan.NewAggregatePlan("gen", idea, "", time.Now(), &plan.Overview{
		Idea:     idea,
		Overview: "overview of " + idea,
		TargetMarket: plan.TargetMarket{
			Demographics: []string{"students"},
			MarketSize:   "large",
		},
		Steps: []plan.Step{{Title: "Validate", Description: "Talk to users", Tasks: []plan.Task{{Title: "Survey"}}}},
	})
	p.Record(plan.KindMarketMetrics, &plan.MarketMetrics{MarketSize: "$4B", GrowthRate: "12%"}, nil)
	p.Record(plan.KindCompetitors, []plan.Competitor{{Name: "Acme", Strengths: []string{"brand"}}}, nil)
	p.Record(plan.KindRiskAssessment, nil, errors.New("upstream down"))
	p.Record(plan.KindResearch, &plan.Research{}, nil)
	p.Record(plan.KindMarketingStrategy, nil, errors.New("malformed"))
	p.SettleWebsitePrompt("Build a landing page", nil)
	return p
}

func save(t *testing.T, f *fixture, owner plan.Owner, idea string) *plan.SavedPlanRecord {
	t.Helper()
	rec, err := f.layer.Save(context.Background(), owner, fullPlan(idea))
	require.NoError(t, err)
	return rec
}

func TestNew_RequiresLoader(t *testing.T) {
	_, err := directory.New(nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is required")
}

func TestDirectory_ListHosted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	save(t, f, plan.Account("acct"), "first")
	save(t, f, plan.Account("acct"), "second")
	save(t, f, plan.Account("other"), "not mine")

	listing, err := f.dir.List(ctx, plan.Account("acct"))
	require.NoError(t, err)
	assert.Equal(t, directory.SourceHosted, listing.Source)
	assert.NoError(t, listing.Err)
	require.Len(t, listing.Plans, 2)
	assert.Equal(t, "second", listing.Plans[0].Idea)
	assert.Equal(t, "first", listing.Plans[1].Idea)

	mirrored, err := f.layer.LoadMirror(ctx, plan.Account("acct"))
	require.NoError(t, err)
	assert.Len(t, mirrored, 2)
}

func TestDirectory_ListFallsBackToMirror(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	save(t, f, plan.Account("acct"), "cached idea")

	f.hosted.listErr = errors.New("connection refused")
	listing, err := f.dir.List(ctx, plan.Account("acct"))
	require.NoError(t, err)

	assert.Equal(t, directory.SourceDevice, listing.Source)
	var perr *plan.PersistenceError
	require.ErrorAs(t, listing.Err, &perr)
	assert.Contains(t, listing.Err.Error(), "connection refused")
	require.Len(t, listing.Plans, 1)
	assert.Equal(t, "cached idea", listing.Plans[0].Idea)

	f.logger.AssertLogged(t, zapcore.WarnLevel, "hosted plans unavailable, using device mirror")
}

func TestDirectory_ListAnonymous(t *testing.T) {
	f := newFixture(t)
	save(t, f, plan.Owner{}, "offline one")
	save(t, f, plan.Account("acct"), "hosted one")

	listing, err := f.dir.List(context.Background(), plan.Owner{})
	require.NoError(t, err)
	assert.Equal(t, directory.SourceDevice, listing.Source)
	require.Len(t, listing.Plans, 1)
	assert.Equal(t, "offline one", listing.Plans[0].Idea)
	assert.Empty(t, listing.Plans[0].AccountID)
}

func TestDirectory_ListAnonymousSessionsAreSeparate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := plan.Owner{SessionID: "session-a"}
	bob := plan.Owner{SessionID: "session-b"}
	rec := save(t, f, alice, "Eco packaging")

	listing, err := f.dir.List(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, listing.Plans)
	assert.False(t, f.dir.IsSaved(ctx, bob, "Eco packaging"))
	got, err := f.dir.FindByID(ctx, bob, rec.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
	_, err = f.dir.Export(ctx, bob, rec.ID)
	assert.ErrorIs(t, err, plan.ErrPlanNotFound)
	assert.ErrorIs(t, f.layer.Remove(ctx, bob, rec.ID), plan.ErrPlanNotFound)

	listing, err = f.dir.List(ctx, alice)
	require.NoError(t, err)
	require.Len(t, listing.Plans, 1)
	assert.Equal(t, rec.ID, listing.Plans[0].ID)
	assert.True(t, f.dir.IsSaved(ctx, alice, "eco packaging"))

	listing, err = f.dir.List(ctx, plan.Owner{})
	require.NoError(t, err)
	assert.Empty(t, listing.Plans, "session plans stay out of the local list")
}

func TestDirectory_ListKeepsPlanSavedDuringRefresh(t *testing.T) {
	hosted := &savingHosted{MemoryHostedStore: persistence.NewMemoryHostedStore()}
	n := 0
	layer, err := persistence.NewLayer(hosted, device.NewMemoryStore(),
		persistence.WithIDGenerator(func() string { n++; return fmt.Sprintf("plan-%d", n) }),
	)
	require.NoError(t, err)
	dir, err := directory.New(layer, nil)
	require.NoError(t, err)
	ctx := context.Background()
	owner := plan.Account("acct")

	first, err := layer.Save(ctx, owner, fullPlan("first"))
	require.NoError(t, err)

	var (
		second  *plan.SavedPlanRecord
		saveErr error
	)
	done := make(chan struct{})
	hosted.onList = func() {
		hosted.onList = nil
		go func() {
			defer close(done)
			second, saveErr = layer.Save(ctx, owner, fullPlan("second"))
		}()
		time.Sleep(50 * time.Millisecond)
	}

	listing, err := dir.List(ctx, owner)
	require.NoError(t, err)
	require.Len(t, listing.Plans, 1)
	assert.Equal(t, first.ID, listing.Plans[0].ID)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("concurrent save did not finish")
	}
	require.NoError(t, saveErr)

	mirrored, err := layer.LoadMirror(ctx, owner)
	require.NoError(t, err)
	ids := make([]string, 0, len(mirrored))
	for _, rec := range mirrored {
		ids = append(ids, rec.ID)
	}
	assert.ElementsMatch(t, []string{first.ID, second.ID}, ids)

	listing, err = dir.List(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, listing.Plans, 2)
}

func TestDirectory_ListOrdersWithTieBreak(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []*plan.SavedPlanRecord{
		{ID: "b", Idea: "same time b", CreatedAt: at},
		{ID: "old", Idea: "older", CreatedAt: at.Add(-time.Hour)},
		{ID: "a", Idea: "same time a", CreatedAt: at},
		{ID: "new", Idea: "newest", CreatedAt: at.Add(time.Hour)},
	}
	require.NoError(t, f.layer.Mirror(ctx, plan.Owner{}, records))

	listing, err := f.dir.List(ctx, plan.Owner{})
	require.NoError(t, err)
	ids := make([]string, 0, len(listing.Plans))
	for _, rec := range listing.Plans {
		ids = append(ids, rec.ID)
	}
	assert.Equal(t, []string{"new", "a", "b", "old"}, ids)
}

func TestDirectory_FindByIdea(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	older := save(t, f, plan.Account("acct"), "Eco Packaging")
	newer := save(t, f, plan.Account("acct"), "eco packaging")
	require.NotEqual(t, older.ID, newer.ID)

	for _, variant := range []string{"Eco Packaging", "eco packaging", "  Eco Packaging  ", "ECO PACKAGING"} {
		t.Run(variant, func(t *testing.T) {
			rec, err := f.dir.FindByIdea(ctx, plan.Account("acct"), variant)
			require.NoError(t, err)
			require.NotNil(t, rec)
			assert.Equal(t, newer.ID, rec.ID)
			assert.True(t, f.dir.IsSaved(ctx, plan.Account("acct"), variant))
		})
	}

	rec, err := f.dir.FindByIdea(ctx, plan.Account("acct"), "something else")
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = f.dir.FindByIdea(ctx, plan.Account("acct"), "   ")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestDirectory_IsSavedTreatsErrorsAsUnsaved(t *testing.T) {
	hosted := &flakyHosted{MemoryHostedStore: persistence.NewMemoryHostedStore(), listErr: errors.New("down")}
	dev := &brokenDevice{}
	layer, err := persistence.NewLayer(hosted, dev)
	require.NoError(t, err)
	dir, err := directory.New(layer, nil)
	require.NoError(t, err)

	assert.False(t, dir.IsSaved(context.Background(), plan.Account("acct"), "anything"))
}

type brokenDevice struct{}

func (brokenDevice) Get(context.Context, string) ([]byte, error) { return nil, errors.New("disk gone") }
func (brokenDevice) Put(context.Context, string, []byte) error   { return errors.New("disk gone") }

func TestDirectory_FindByID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := save(t, f, plan.Account("acct"), "tutoring")

	got, err := f.dir.FindByID(ctx, plan.Account("acct"), "  "+rec.ID+" ")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.ID, got.ID)

	got, err = f.dir.FindByID(ctx, plan.Account("other"), rec.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = f.dir.FindByID(ctx, plan.Account("acct"), "PLAN-1")
	require.NoError(t, err)
	assert.Nil(t, got, "IDs match exactly")
}

func TestDirectory_RoundTrip(t *testing.T) {
	tests := []struct {
		name       string
		owner      plan.Owner
		hostedDown bool
		source     directory.Source
	}{
		{"hosted shape", plan.Account("acct"), false, directory.SourceHosted},
		{"mirror after hosted failure", plan.Account("acct"), true, directory.SourceDevice},
		{"anonymous mirror", plan.Owner{}, false, directory.SourceDevice},
		{"anonymous session mirror", plan.Owner{SessionID: "tab-1"}, false, directory.SourceDevice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			original := fullPlan("AI tutoring app")
			saved, err := f.layer.Save(ctx, tt.owner, original)
			require.NoError(t, err)

			if tt.hostedDown {
				f.hosted.listErr = errors.New("timeout")
			}
			listing, err := f.dir.List(ctx, tt.owner)
			require.NoError(t, err)
			assert.Equal(t, tt.source, listing.Source)

			got, err := f.dir.FindByID(ctx, tt.owner, saved.ID)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, original.Snapshot(), got.Bundle)
			assert.Equal(t, tt.owner.AccountID, got.AccountID)
			assert.True(t, saved.CreatedAt.Equal(got.CreatedAt))
		})
	}
}

func TestDirectory_Export(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := save(t, f, plan.Account("acct"), "tutoring")

	data, err := f.dir.Export(ctx, plan.Account("acct"), rec.ID)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"idea\": \"tutoring\"")

	var exp plan.Export
	require.NoError(t, json.Unmarshal(data, &exp))
	assert.Equal(t, "tutoring", exp.Idea)
	assert.True(t, rec.CreatedAt.Equal(exp.Timestamp))
	require.NotNil(t, exp.Plan)
	assert.Equal(t, "overview of tutoring", exp.Plan.Overview)

	_, err = f.dir.Export(ctx, plan.Account("acct"), "missing")
	assert.ErrorIs(t, err, plan.ErrPlanNotFound)
}
