package assembler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/launchplan/internal/events"
	"github.com/fyrsmithlabs/launchplan/internal/logging"
	"github.com/fyrsmithlabs/launchplan/internal/plan"
	"github.com/fyrsmithlabs/launchplan/internal/telemetry"
)

type fakeGenerator struct {
	mu          sync.Mutex
	calls       []plan.SectionKind
	overviewErr error
	nilOverview bool
	sectionErrs map[plan.SectionKind]error
	// block makes a section wait for ctx to be done.
	block map[plan.SectionKind]bool
	// websiteGate, when set, holds the website prompt until closed.
	websiteGate chan struct{}
	websiteErr  error
	websiteAt   time.Time
	lastSection time.Time
}

func (f *fakeGenerator) record(kind plan.SectionKind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, kind)
}

func (f *fakeGenerator) Overview(ctx context.Context, idea string) (*plan.Overview, error) {
	f.record(plan.KindOverview)
	if f.overviewErr != nil {
		return nil, f.overviewErr
	}
	if f.nilOverview {
		return nil, nil
	}
	return &plan.Overview{Idea: idea, Overview: "overview of " + idea, Steps: []plan.Step{{Title: "Validate"}}}, nil
}

func (f *fakeGenerator) Section(ctx context.Context, kind plan.SectionKind, idea string) (any, error) {
	f.record(kind)
	defer func() {
		f.mu.Lock()
		f.lastSection = time.Now()
		f.mu.Unlock()
	}()
	if f.block[kind] {
		<-ctx.Done()
		return nil, &plan.UpstreamError{Op: "sections." + string(kind), Err: ctx.Err()}
	}
	if err := f.sectionErrs[kind]; err != nil {
		return nil, err
	}
	switch kind {
	case plan.KindMarketMetrics:
		return &plan.MarketMetrics{MarketSize: "$2B"}, nil
	case plan.KindCompetitors:
		return []plan.Competitor{{Name: "Acme"}}, nil
	case plan.KindRiskAssessment:
		return &plan.RiskAssessment{MarketRisks: []plan.Risk{{Risk: "slow adoption"}}}, nil
	case plan.KindResearch:
		return &plan.Research{}, nil
	case plan.KindMarketingStrategy:
		return &plan.MarketingStrategy{}, nil
	}
	return nil, errors.New("unknown section")
}

func (f *fakeGenerator) WebsitePrompt(ctx context.Context, idea string) (string, error) {
	f.record(plan.KindWebsitePrompt)
	f.mu.Lock()
	f.websiteAt = time.Now()
	gate := f.websiteGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.websiteErr != nil {
		return "", f.websiteErr
	}
	return "Build a landing page for " + idea, nil
}

func (f *fakeGenerator) called() []plan.SectionKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]plan.SectionKind(nil), f.calls...)
}

type fakeSaver struct {
	mu     sync.Mutex
	saves  []plan.Bundle
	owners []plan.Owner
	err    error
}

func (s *fakeSaver) Save(_ context.Context, owner plan.Owner, p *plan.AggregatePlan) (*plan.SavedPlanRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	b := p.Snapshot()
	s.saves = append(s.saves, b)
	s.owners = append(s.owners, owner)
	return &plan.SavedPlanRecord{ID: "rec-1", AccountID: owner.AccountID, Idea: p.Idea, CreatedAt: p.CreatedAt, Bundle: b}, nil
}

func (s *fakeSaver) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saves)
}

type savedSet map[string]bool

func (s savedSet) IsSaved(_ context.Context, _ plan.Owner, idea string) bool {
	return s[plan.NormalizeIdea(idea)]
}

type recordingPublisher struct {
	mu     sync.Mutex
	kinds  []events.Kind
	events []events.Event
}

func (r *recordingPublisher) Publish(_ context.Context, kind events.Kind, ev *events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
	r.events = append(r.events, *ev)
	return nil
}

func (r *recordingPublisher) snapshot() ([]events.Kind, []events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Kind(nil), r.kinds...), append([]events.Event(nil), r.events...)
}

type harness struct {
	gen    *fakeGenerator
	saver  *fakeSaver
	pub    *recordingPublisher
	tt     *telemetry.TestTelemetry
	logger *logging.TestLogger
	asm    *Assembler
}

func newHarness(t *testing.T, gen *fakeGenerator, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		gen:    gen,
		saver:  &fakeSaver{},
		pub:    &recordingPublisher{},
		tt:     telemetry.NewTestTelemetry(),
		logger: logging.NewTestLogger(),
	}
	base := []Option{
		WithPublisher(h.pub),
		WithLogger(h.logger.Logger),
		WithTracerProvider(h.tt.TracerProvider()),
		WithMeterProvider(h.tt.MeterProvider()),
		WithIDGenerator(func() string { return "gen-1" }),
		WithSectionTimeout(time.Second),
		WithWebsitePromptTimeout(time.Second),
	}
	asm, err := New(gen, h.saver, append(base, opts...)...)
	require.NoError(t, err)
	h.asm = asm
	return h
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(nil, &fakeSaver{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "section generator is required")

	_, err = New(&fakeGenerator{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plan saver is required")
}

func TestAssemble_SecondaryFailureIsContained(t *testing.T) {
	gen := &fakeGenerator{sectionErrs: map[plan.SectionKind]error{
		plan.KindMarketMetrics: &plan.UpstreamError{Op: "sections.market_metrics", StatusCode: 503, Err: errors.New("unavailable")},
	}}
	h := newHarness(t, gen)

	p, err := h.asm.Assemble(context.Background(), NewSession(plan.Account("acct-1")), "AI tutoring app")
	require.NoError(t, err)
	h.asm.Wait()

	require.NotNil(t, p.Overview())
	assert.Equal(t, "AI tutoring app", p.Overview().Idea)
	assert.NotEmpty(t, p.Overview().Steps)

	b := p.Snapshot()
	assert.Nil(t, b.MarketMetrics)
	assert.NotNil(t, b.Competitors)
	assert.NotNil(t, b.RiskAssessment)
	assert.NotNil(t, b.ResearchData)
	assert.NotNil(t, b.MarketingStrategy)
	assert.Contains(t, p.Failures()[plan.KindMarketMetrics], "unavailable")

	h.logger.AssertLogged(t, zapcore.WarnLevel, "section unavailable")
	h.tt.AssertSpanExists(t, "assembler.assemble")
	h.tt.AssertSpanAttribute(t, "assembler.assemble", "sections.unavailable", int64(1))
	assert.Equal(t, int64(1), h.tt.CounterValue(t, "launchplan.assembler.assemblies_total", attribute.String("outcome", "assembled")))
}

func TestAssemble_AttemptsEverySecondarySection(t *testing.T) {
	gen := &fakeGenerator{sectionErrs: map[plan.SectionKind]error{
		plan.KindCompetitors:    errors.New("boom"),
		plan.KindResearch:       &plan.MalformedResponseError{Op: "sections.research", Reason: "missing required key projects or trends"},
		plan.KindRiskAssessment: errors.New("boom"),
	}}
	h := newHarness(t, gen)

	owner := plan.Owner{SessionID: "tab-1"}
	p, err := h.asm.Assemble(context.Background(), NewSession(owner), "eco packaging")
	require.NoError(t, err)
	h.asm.Wait()
	require.Equal(t, 1, h.saver.count())
	assert.Equal(t, owner, h.saver.owners[0], "the plan is saved to the session's list")

	calls := gen.called()
	require.NotEmpty(t, calls)
	assert.Equal(t, plan.KindOverview, calls[0], "overview runs before the fan-out")
	assert.Equal(t, plan.KindWebsitePrompt, calls[len(calls)-1], "website prompt runs after the join")
	assert.ElementsMatch(t, plan.SecondaryKinds, calls[1:len(calls)-1])
	assert.False(t, gen.websiteAt.Before(gen.lastSection))

	b := p.Snapshot()
	assert.NotNil(t, b.MarketMetrics, "siblings of failed sections are still recorded")
	assert.NotNil(t, b.MarketingStrategy)
	assert.Len(t, p.Failures(), 3)
}

func TestAssemble_OverviewFailure(t *testing.T) {
	tests := []struct {
		name string
		gen  *fakeGenerator
	}{
		{"generator error", &fakeGenerator{overviewErr: &plan.UpstreamError{Op: "sections.overview", Err: errors.New("timeout")}}},
		{"nil overview", &fakeGenerator{nilOverview: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.gen)

			p, err := h.asm.Assemble(context.Background(), NewSession(plan.Account("acct")), "AI tutoring app")
			h.asm.Wait()
			assert.Nil(t, p)

			var genErr *plan.GenerationError
			require.ErrorAs(t, err, &genErr)
			assert.Equal(t, "AI tutoring app", genErr.Idea)
			assert.Equal(t, []plan.SectionKind{plan.KindOverview}, tt.gen.called())
			assert.Zero(t, h.saver.count())

			kinds, evs := h.pub.snapshot()
			assert.Equal(t, []events.Kind{events.KindStarted, events.KindFailed}, kinds)
			assert.NotEmpty(t, evs[1].Error)
			assert.Equal(t, int64(1), h.tt.CounterValue(t, "launchplan.assembler.assemblies_total", attribute.String("outcome", "failed")))
		})
	}
}

func TestAssemble_EmptyIdea(t *testing.T) {
	gen := &fakeGenerator{}
	h := newHarness(t, gen)
	_, err := h.asm.Assemble(context.Background(), NewSession(plan.Owner{}), "   ")
	assert.ErrorIs(t, err, plan.ErrEmptyIdea)
	assert.Empty(t, gen.called())
}

func TestAssemble_WebsitePromptIsDecoupled(t *testing.T) {
	gate := make(chan struct{})
	gen := &fakeGenerator{websiteGate: gate}
	h := newHarness(t, gen)

	p, err := h.asm.Assemble(context.Background(), NewSession(plan.Account("acct")), "AI tutoring app")
	require.NoError(t, err)
	assert.True(t, p.WebsitePromptPending())
	assert.Nil(t, p.Snapshot().WebsitePrompt)
	assert.Zero(t, h.saver.count(), "save waits for the website prompt")

	close(gate)
	h.asm.Wait()

	assert.False(t, p.WebsitePromptPending())
	require.NotNil(t, p.Snapshot().WebsitePrompt)
	assert.Equal(t, "Build a landing page for AI tutoring app", *p.Snapshot().WebsitePrompt)

	rec, err := p.Persisted()
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.NotNil(t, rec.WebsitePrompt, "the saved bundle includes the late prompt")

	kinds, _ := h.pub.snapshot()
	require.NotEmpty(t, kinds)
	assert.Equal(t, events.KindStarted, kinds[0])
	assert.Equal(t, events.KindWebsitePrompt, kinds[len(kinds)-1])
	assert.Contains(t, kinds, events.KindCompleted)
}

func TestAssemble_WebsitePromptTimeout(t *testing.T) {
	gen := &fakeGenerator{websiteGate: make(chan struct{})}
	h := newHarness(t, gen, WithWebsitePromptTimeout(30*time.Millisecond))

	p, err := h.asm.Assemble(context.Background(), NewSession(plan.Account("acct")), "slow prompt")
	require.NoError(t, err)
	h.asm.Wait()

	assert.False(t, p.WebsitePromptPending())
	assert.Nil(t, p.Snapshot().WebsitePrompt)
	assert.Contains(t, p.Failures(), plan.KindWebsitePrompt)
	assert.Equal(t, 1, h.saver.count(), "the plan is saved without the prompt")
}

func TestAssemble_WebsitePromptOutlivesRequestContext(t *testing.T) {
	gate := make(chan struct{})
	gen := &fakeGenerator{websiteGate: gate}
	h := newHarness(t, gen)

	ctx, cancel := context.WithCancel(context.Background())
	p, err := h.asm.Assemble(ctx, NewSession(plan.Owner{}), "detached")
	require.NoError(t, err)
	cancel()

	close(gate)
	h.asm.Wait()
	require.NotNil(t, p.Snapshot().WebsitePrompt)
	assert.Equal(t, 1, h.saver.count())
}

func TestAssemble_Cancellation(t *testing.T) {
	gen := &fakeGenerator{block: map[plan.SectionKind]bool{plan.KindResearch: true}}
	h := newHarness(t, gen, WithSectionTimeout(10*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	p, err := h.asm.Assemble(ctx, NewSession(plan.Account("acct")), "abandoned idea")
	h.asm.Wait()

	assert.Nil(t, p)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, h.saver.count(), "a cancelled assembly is never saved")
	assert.NotContains(t, gen.called(), plan.KindWebsitePrompt)
	assert.Equal(t, int64(1), h.tt.CounterValue(t, "launchplan.assembler.assemblies_total", attribute.String("outcome", "cancelled")))
}

func TestAssemble_SavesOncePerSession(t *testing.T) {
	h := newHarness(t, &fakeGenerator{})
	ctx := context.Background()
	session := NewSession(plan.Account("acct"))

	for _, idea := range []string{"Eco Packaging", "eco packaging", "  Eco Packaging  "} {
		p, err := h.asm.Assemble(ctx, session, idea)
		require.NoError(t, err)
		require.NotNil(t, p)
	}
	h.asm.Wait()
	assert.Equal(t, 1, h.saver.count())
	assert.True(t, session.Attempted("ECO PACKAGING"))

	// A new session saves again; the guard is not durable.
	_, err := h.asm.Assemble(ctx, NewSession(plan.Account("acct")), "eco packaging")
	require.NoError(t, err)
	h.asm.Wait()
	assert.Equal(t, 2, h.saver.count())
}

func TestAssemble_SkipsIdeasAlreadySaved(t *testing.T) {
	h := newHarness(t, &fakeGenerator{}, WithSavedChecker(savedSet{"eco packaging": true}))

	p, err := h.asm.Assemble(context.Background(), NewSession(plan.Account("acct")), "Eco Packaging")
	require.NoError(t, err)
	h.asm.Wait()

	assert.Zero(t, h.saver.count())
	rec, perr := p.Persisted()
	assert.Nil(t, rec)
	assert.NoError(t, perr)
}

func TestAssemble_SaveFailureDoesNotFailAssembly(t *testing.T) {
	h := newHarness(t, &fakeGenerator{})
	h.saver.err = &plan.PersistenceError{Op: "insert", Err: errors.New("connection reset")}

	p, err := h.asm.Assemble(context.Background(), NewSession(plan.Account("acct")), "AI tutoring app")
	require.NoError(t, err)
	h.asm.Wait()

	rec, perr := p.Persisted()
	assert.Nil(t, rec)
	var pe *plan.PersistenceError
	require.ErrorAs(t, perr, &pe)
	h.logger.AssertLogged(t, zapcore.ErrorLevel, "failed to save plan")
}

func TestAssemble_PublishesSectionEvents(t *testing.T) {
	gen := &fakeGenerator{sectionErrs: map[plan.SectionKind]error{plan.KindCompetitors: errors.New("boom")}}
	h := newHarness(t, gen)

	_, err := h.asm.Assemble(context.Background(), NewSession(plan.Account("acct")), "AI tutoring app")
	require.NoError(t, err)
	h.asm.Wait()

	kinds, evs := h.pub.snapshot()
	sectionEvents := map[plan.SectionKind]events.Event{}
	for i, k := range kinds {
		assert.Equal(t, "gen-1", evs[i].GenerationID)
		assert.Equal(t, "acct", evs[i].AccountID)
		if k == events.KindSection {
			sectionEvents[evs[i].Section] = evs[i]
		}
	}
	assert.Len(t, sectionEvents, len(plan.SecondaryKinds)+1)
	assert.Equal(t, plan.StateUnavailable, sectionEvents[plan.KindCompetitors].State)
	assert.Equal(t, "boom", sectionEvents[plan.KindCompetitors].Error)
	assert.Equal(t, plan.StateReady, sectionEvents[plan.KindOverview].State)
}
