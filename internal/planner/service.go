// Package planner runs the generation workflow: quota check, assembly, and
// the quota charge on success. It also keeps recent generations so the late
// website prompt can be fetched after the generate call has returned.
package planner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/launchplan/internal/assembler"
	"github.com/fyrsmithlabs/launchplan/internal/logging"
	"github.com/fyrsmithlabs/launchplan/internal/plan"
	"github.com/fyrsmithlabs/launchplan/internal/quota"
)

const (
	instrumentationName = "github.com/fyrsmithlabs/launchplan/internal/planner"

	defaultGenerationTTL = time.Hour
	defaultMaxSessions   = 1024
)

var (
	// ErrGenerationInFlight is returned when the caller already has a
	// generation running.
	ErrGenerationInFlight = errors.New("a generation is already in progress")

	// ErrGenerationNotFound is returned for unknown or expired generations.
	ErrGenerationNotFound = errors.New("generation not found")
)

// Assembler builds a plan for an idea.
type Assembler interface {
	Assemble(ctx context.Context, session *assembler.Session, idea string) (*plan.AggregatePlan, error)
}

// QuotaGate is the subset of quota.Gate the planner uses.
type QuotaGate interface {
	CanGenerate(ctx context.Context, accountID string) (bool, error)
	Increment(ctx context.Context, accountID string) (bool, error)
	Status(ctx context.Context, accountID string) (*quota.Status, error)
	ChangeTier(ctx context.Context, accountID string, tier quota.Tier) (*quota.Status, error)
}

// Brainstormer produces idea suggestions and market keywords.
type Brainstormer interface {
	Ideas(ctx context.Context, concept string) ([]string, error)
	TrendingKeywords(ctx context.Context) ([]plan.TrendingKeyword, error)
}

// Result is the outcome of a successful Generate.
type Result struct {
	Plan *plan.AggregatePlan
	// QuotaExhausted is set when the generation succeeded but could not be
	// charged because a concurrent generation used the last allowance.
	QuotaExhausted bool
	Quota          *quota.Status
}

// Service is the generation workflow.
type Service struct {
	assembler    Assembler
	quota        QuotaGate
	brainstormer Brainstormer
	logger       *logging.Logger
	clock        func() time.Time
	ttl          time.Duration
	generations  metric.Int64Counter

	mu       sync.Mutex
	inflight map[string]struct{}
	registry map[string]*generation
	sessions *sessionCache
}

type generation struct {
	plan    *plan.AggregatePlan
	owner   plan.Owner
	expires time.Time
}

// Option configures a Service.
type Option func(*options)

type options struct {
	logger        *logging.Logger
	clock         func() time.Time
	ttl           time.Duration
	maxSessions   int
	meterProvider metric.MeterProvider
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock overrides the time source for generation expiry.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// WithGenerationTTL sets how long finished generations stay fetchable.
func WithGenerationTTL(d time.Duration) Option {
	return func(o *options) { o.ttl = d }
}

// WithMaxSessions bounds the number of sessions kept in memory.
func WithMaxSessions(n int) Option {
	return func(o *options) { o.maxSessions = n }
}

// WithMeterProvider sets the meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// NewService creates the workflow service.
func NewService(asm Assembler, gate QuotaGate, brainstormer Brainstormer, opts ...Option) (*Service, error) {
	if asm == nil {
		return nil, errors.New("assembler is required")
	}
	if gate == nil {
		return nil, errors.New("quota gate is required")
	}
	if brainstormer == nil {
		return nil, errors.New("brainstormer is required")
	}

	o := &options{
		logger:        logging.Nop(),
		clock:         time.Now,
		ttl:           defaultGenerationTTL,
		maxSessions:   defaultMaxSessions,
		meterProvider: otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.ttl <= 0 {
		o.ttl = defaultGenerationTTL
	}
	if o.maxSessions <= 0 {
		o.maxSessions = defaultMaxSessions
	}

	s := &Service{
		assembler:    asm,
		quota:        gate,
		brainstormer: brainstormer,
		logger:       o.logger.Named("planner"),
		clock:        o.clock,
		ttl:          o.ttl,
		inflight:     make(map[string]struct{}),
		registry:     make(map[string]*generation),
		sessions:     newSessionCache(o.maxSessions),
	}

	var err error
	s.generations, err = o.meterProvider.Meter(instrumentationName).Int64Counter(
		"launchplan.planner.generations_total",
		metric.WithDescription("Generate calls by outcome"),
	)
	if err != nil {
		s.logger.Warn(context.Background(), "failed to create generations counter", zap.Error(err))
	}
	return s, nil
}

// Generate checks the owner's quota, assembles a plan for idea and charges
// the quota. The quota is not charged when assembly fails. The plan is saved
// for owner; sessionID scopes the once-per-idea save.
//
// Only one generation per caller runs at a time; a second concurrent call
// returns ErrGenerationInFlight. Callers are identified by account, or by
// session for anonymous use. An anonymous call without a session cannot be
// told apart from any other and is never refused.
func (s *Service) Generate(ctx context.Context, owner plan.Owner, sessionID, idea string) (*Result, error) {
	if _, err := plan.ValidateIdea(idea); err != nil {
		return nil, err
	}
	accountID := owner.AccountID
	ctx = logging.WithAccountID(ctx, accountID)
	ctx = logging.WithSessionID(ctx, sessionID)

	if key, ok := flightKey(accountID, sessionID); ok {
		if !s.acquire(key) {
			s.count(ctx, "in_flight")
			return nil, ErrGenerationInFlight
		}
		defer s.release(key)
	}

	ok, err := s.quota.CanGenerate(ctx, accountID)
	if err != nil {
		s.count(ctx, "error")
		return nil, fmt.Errorf("checking quota: %w", err)
	}
	if !ok {
		s.count(ctx, "quota_exceeded")
		s.logger.Info(ctx, "generation refused, quota exceeded")
		return nil, plan.ErrQuotaExceeded
	}

	p, err := s.assembler.Assemble(ctx, s.sessions.get(owner, sessionID), idea)
	if err != nil {
		s.count(ctx, "failed")
		return nil, err
	}
	s.register(owner, p)

	res := &Result{Plan: p}
	if accountID != "" {
		// The generation is spent even if the caller has gone away.
		charged, err := s.quota.Increment(context.WithoutCancel(ctx), accountID)
		switch {
		case err != nil:
			s.logger.Error(ctx, "failed to charge quota", zap.String("generation_id", p.ID), zap.Error(err))
		case !charged:
			s.logger.Warn(ctx, "generation completed past quota limit", zap.String("generation_id", p.ID))
			res.QuotaExhausted = true
		}
	}
	if st, err := s.quota.Status(context.WithoutCancel(ctx), accountID); err == nil {
		res.Quota = st
	}

	s.count(ctx, "generated")
	return res, nil
}

func flightKey(accountID, sessionID string) (string, bool) {
	switch {
	case accountID != "":
		return "account:" + accountID, true
	case sessionID != "":
		return "session:" + sessionID, true
	default:
		return "", false
	}
}

func (s *Service) acquire(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[key]; busy {
		return false
	}
	s.inflight[key] = struct{}{}
	return true
}

func (s *Service) release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, key)
}

func (s *Service) register(owner plan.Owner, p *plan.AggregatePlan) {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(now)
	s.registry[p.ID] = &generation{plan: p, owner: owner, expires: now.Add(s.ttl)}
}

func (s *Service) pruneLocked(now time.Time) {
	for id, g := range s.registry {
		if now.After(g.expires) {
			delete(s.registry, id)
		}
	}
}

// Generation returns a recent generation made for owner. Anonymous
// generations are returned only to the session that made them.
func (s *Service) Generation(owner plan.Owner, id string) (*plan.AggregatePlan, error) {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.registry[id]
	if !ok || now.After(g.expires) {
		return nil, ErrGenerationNotFound
	}
	if g.owner != owner {
		return nil, ErrGenerationNotFound
	}
	return g.plan, nil
}

// Ideas suggests business ideas around concept.
func (s *Service) Ideas(ctx context.Context, concept string) ([]string, error) {
	return s.brainstormer.Ideas(ctx, concept)
}

// Trends returns current market keywords.
func (s *Service) Trends(ctx context.Context) ([]plan.TrendingKeyword, error) {
	return s.brainstormer.TrendingKeywords(ctx)
}

// Quota returns the caller's quota status.
func (s *Service) Quota(ctx context.Context, accountID string) (*quota.Status, error) {
	return s.quota.Status(ctx, accountID)
}

// ChangeTier moves the account to the named tier.
func (s *Service) ChangeTier(ctx context.Context, accountID, tier string) (*quota.Status, error) {
	return s.quota.ChangeTier(ctx, accountID, quota.Tier(tier))
}

func (s *Service) count(ctx context.Context, outcome string) {
	if s.generations != nil {
		s.generations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}
