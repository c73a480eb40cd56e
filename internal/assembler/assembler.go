// Package assembler builds an aggregate plan from the section generators.
//
// The overview is generated first and is the only section that can fail an
// assembly. The secondary sections are then fetched concurrently and each
// one settles on its own; a failed section is recorded as unavailable.
// Once they have all settled the website prompt is started in the
// background and the plan is returned without waiting for it.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/launchplan/internal/events"
	"github.com/fyrsmithlabs/launchplan/internal/logging"
	"github.com/fyrsmithlabs/launchplan/internal/plan"
	"github.com/fyrsmithlabs/launchplan/internal/sections"
)

const (
	instrumentationName = "github.com/fyrsmithlabs/launchplan/internal/assembler"

	defaultSectionTimeout       = 90 * time.Second
	defaultWebsitePromptTimeout = 2 * time.Minute
)

// Saver persists an assembled plan.
type Saver interface {
	Save(ctx context.Context, owner plan.Owner, p *plan.AggregatePlan) (*plan.SavedPlanRecord, error)
}

// SavedChecker reports whether an idea already has a saved plan.
type SavedChecker interface {
	IsSaved(ctx context.Context, owner plan.Owner, idea string) bool
}

// Assembler runs generations.
type Assembler struct {
	gen            sections.Generator
	saver          Saver
	saved          SavedChecker
	publisher      events.Publisher
	sectionTimeout time.Duration
	websiteTimeout time.Duration
	clock          func() time.Time
	newID          func() string
	logger         *logging.Logger
	tracer         trace.Tracer
	assemblies     metric.Int64Counter

	// background tracks website prompts and saves still running after
	// Assemble returned.
	background sync.WaitGroup
}

// Option configures an Assembler.
type Option func(*config)

type config struct {
	saved          SavedChecker
	publisher      events.Publisher
	sectionTimeout time.Duration
	websiteTimeout time.Duration
	clock          func() time.Time
	newID          func() string
	logger         *logging.Logger
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// WithSavedChecker skips saving ideas the checker already knows about.
func WithSavedChecker(c SavedChecker) Option {
	return func(cfg *config) { cfg.saved = c }
}

// WithPublisher sets where section events are published.
func WithPublisher(p events.Publisher) Option {
	return func(cfg *config) { cfg.publisher = p }
}

// WithSectionTimeout bounds each secondary section and the overview.
func WithSectionTimeout(d time.Duration) Option {
	return func(cfg *config) { cfg.sectionTimeout = d }
}

// WithWebsitePromptTimeout bounds the background website prompt, and how
// long a save waits for it.
func WithWebsitePromptTimeout(d time.Duration) Option {
	return func(cfg *config) { cfg.websiteTimeout = d }
}

// WithClock overrides the plan creation time source.
func WithClock(clock func() time.Time) Option {
	return func(cfg *config) { cfg.clock = clock }
}

// WithIDGenerator overrides generation ID creation.
func WithIDGenerator(f func() string) Option {
	return func(cfg *config) { cfg.newID = f }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(cfg *config) { cfg.logger = l }
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *config) { cfg.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(cfg *config) { cfg.meterProvider = mp }
}

// New creates an assembler.
func New(gen sections.Generator, saver Saver, opts ...Option) (*Assembler, error) {
	if gen == nil {
		return nil, errors.New("section generator is required")
	}
	if saver == nil {
		return nil, errors.New("plan saver is required")
	}

	cfg := &config{
		publisher:      events.NopPublisher{},
		sectionTimeout: defaultSectionTimeout,
		websiteTimeout: defaultWebsitePromptTimeout,
		clock:          time.Now,
		newID:          uuid.NewString,
		logger:         logging.Nop(),
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	a := &Assembler{
		gen:            gen,
		saver:          saver,
		saved:          cfg.saved,
		publisher:      cfg.publisher,
		sectionTimeout: cfg.sectionTimeout,
		websiteTimeout: cfg.websiteTimeout,
		clock:          cfg.clock,
		newID:          cfg.newID,
		logger:         cfg.logger.Named("assembler"),
		tracer:         cfg.tracerProvider.Tracer(instrumentationName),
	}

	var err error
	a.assemblies, err = cfg.meterProvider.Meter(instrumentationName).Int64Counter(
		"launchplan.assembler.assemblies_total",
		metric.WithDescription("Plan assemblies by outcome"),
	)
	if err != nil {
		a.logger.Warn(context.Background(), "failed to create assemblies counter", zap.Error(err))
	}
	return a, nil
}

// Assemble generates a plan for idea. It returns a *plan.GenerationError if
// the overview cannot be generated, and ctx's error if ctx is cancelled
// before the secondary sections settle; nothing is saved in either case.
//
// On the first successful assembly of an idea in session, the plan is saved
// in the background once its website prompt settles. The outcome is
// available from the plan's Persisted method.
func (a *Assembler) Assemble(ctx context.Context, session *Session, idea string) (*plan.AggregatePlan, error) {
	if session == nil {
		session = NewSession(plan.Owner{})
	}
	trimmed, err := plan.ValidateIdea(idea)
	if err != nil {
		return nil, err
	}

	genID := a.newID()
	ctx = logging.WithAccountID(ctx, session.Owner.AccountID)
	ctx = logging.WithGenerationID(ctx, genID)
	ctx, span := a.tracer.Start(ctx, "assembler.assemble", trace.WithAttributes(
		attribute.String("generation.id", genID),
		attribute.Int("idea.length", len(trimmed)),
		attribute.Bool("account.present", !session.Owner.Anonymous()),
	))
	defer span.End()

	base := events.Event{GenerationID: genID, AccountID: session.Owner.AccountID, Idea: trimmed}
	a.publish(ctx, events.KindStarted, base)

	overview, err := a.overview(ctx, trimmed)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.count(ctx, "failed")
		ev := base
		ev.Section = plan.KindOverview
		ev.Error = err.Error()
		a.publish(ctx, events.KindFailed, ev)
		return nil, err
	}

	p := plan.NewAggregatePlan(genID, trimmed, session.Owner.AccountID, a.clock().UTC(), overview)
	a.publishSection(ctx, base, plan.KindOverview, overview, nil)

	a.fanOut(ctx, base, p)

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "assembly cancelled")
		a.count(ctx, "cancelled")
		a.logger.Info(ctx, "assembly cancelled, discarding sections")
		return nil, fmt.Errorf("assembly cancelled: %w", err)
	}

	failures := p.Failures()
	span.SetAttributes(attribute.Int("sections.unavailable", len(failures)))
	a.count(ctx, "assembled")

	done := base
	done.Payload = p.Statuses()
	a.publish(ctx, events.KindCompleted, done)

	bg := context.WithoutCancel(ctx)
	a.background.Add(1)
	go a.websitePrompt(bg, base, p)

	if session.claim(trimmed) {
		a.background.Add(1)
		go a.persist(bg, session.Owner, p)
	} else {
		a.logger.Debug(ctx, "plan already saved in this session")
	}

	a.logger.Info(ctx, "plan assembled", zap.Int("sections_unavailable", len(failures)))
	return p, nil
}

func (a *Assembler) overview(ctx context.Context, idea string) (*plan.Overview, error) {
	octx, cancel := context.WithTimeout(ctx, a.sectionTimeout)
	defer cancel()

	overview, err := a.gen.Overview(octx, idea)
	if err != nil {
		return nil, &plan.GenerationError{Idea: idea, Err: err}
	}
	if overview == nil {
		return nil, &plan.GenerationError{Idea: idea, Err: errors.New("overview generator returned no plan")}
	}
	return overview, nil
}

// fanOut fetches every secondary section and waits for all of them. A
// failure in one never cancels another. Results that arrive after ctx is
// cancelled are dropped.
func (a *Assembler) fanOut(ctx context.Context, base events.Event, p *plan.AggregatePlan) {
	var wg sync.WaitGroup
	for _, kind := range plan.SecondaryKinds {
		wg.Add(1)
		go func(kind plan.SectionKind) {
			defer wg.Done()

			sctx, cancel := context.WithTimeout(ctx, a.sectionTimeout)
			defer cancel()

			payload, err := a.gen.Section(sctx, kind, p.Idea)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				a.logger.Warn(ctx, "section unavailable", zap.String("section", string(kind)), zap.Error(err))
			}
			p.Record(kind, payload, err)
			a.publishSection(ctx, base, kind, payload, err)
		}(kind)
	}
	wg.Wait()
}

func (a *Assembler) websitePrompt(ctx context.Context, base events.Event, p *plan.AggregatePlan) {
	defer a.background.Done()

	wctx, cancel := context.WithTimeout(ctx, a.websiteTimeout)
	defer cancel()

	prompt, err := a.gen.WebsitePrompt(wctx, p.Idea)
	if err != nil {
		a.logger.Warn(ctx, "website prompt unavailable", zap.Error(err))
	}
	p.SettleWebsitePrompt(prompt, err)

	ev := base
	ev.Section = plan.KindWebsitePrompt
	if err != nil {
		ev.State = plan.StateUnavailable
		ev.Error = err.Error()
	} else {
		ev.State = plan.StateReady
		ev.Payload = prompt
	}
	a.publish(ctx, events.KindWebsitePrompt, ev)
}

// persist saves p once its website prompt has settled, or once the prompt
// timeout has passed, whichever comes first.
func (a *Assembler) persist(ctx context.Context, owner plan.Owner, p *plan.AggregatePlan) {
	defer a.background.Done()

	if a.saved != nil && a.saved.IsSaved(ctx, owner, p.Idea) {
		a.logger.Debug(ctx, "idea already has a saved plan, skipping save")
		return
	}

	wctx, cancel := context.WithTimeout(ctx, a.websiteTimeout)
	err := p.WaitWebsitePrompt(wctx)
	cancel()
	if err != nil {
		a.logger.Debug(ctx, "saving plan before website prompt settled")
	}

	rec, err := a.saver.Save(ctx, owner, p)
	if err != nil {
		a.logger.Error(ctx, "failed to save plan", zap.Error(err))
	}
	p.MarkPersisted(rec, err)
}

// Wait blocks until every background website prompt and save has finished.
func (a *Assembler) Wait() {
	a.background.Wait()
}

func (a *Assembler) publishSection(ctx context.Context, base events.Event, kind plan.SectionKind, payload any, err error) {
	ev := base
	ev.Section = kind
	if err != nil {
		ev.State = plan.StateUnavailable
		ev.Error = err.Error()
	} else {
		ev.State = plan.StateReady
		ev.Payload = payload
	}
	a.publish(ctx, events.KindSection, ev)
}

func (a *Assembler) publish(ctx context.Context, kind events.Kind, ev events.Event) {
	if err := a.publisher.Publish(ctx, kind, &ev); err != nil {
		a.logger.Debug(ctx, "failed to publish event", zap.String("event", string(kind)), zap.Error(err))
	}
}

func (a *Assembler) count(ctx context.Context, outcome string) {
	if a.assemblies != nil {
		a.assemblies.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}
