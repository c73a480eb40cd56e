// Package sections generates the individual sections of a startup plan.
//
// Each generator makes one chat-completion call, strips any markdown fence
// from the reply, checks the keys the section cannot do without, and fills
// every other missing array or string with an empty default. Generators are
// stateless and safe for concurrent use.
package sections

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/launchplan/internal/llm"
	"github.com/fyrsmithlabs/launchplan/internal/logging"
	"github.com/fyrsmithlabs/launchplan/internal/plan"
)

const instrumentationName = "github.com/fyrsmithlabs/launchplan/internal/sections"

// Extra operations that are not plan sections.
const (
	opIdeas  = "ideas"
	opTrends = "trending_keywords"
)

const (
	planTemperature  = 0.7
	ideasTemperature = 0.8
	trendsMaxTokens  = 2000
)

// Generator is the set of calls the assembler fans out over.
type Generator interface {
	Overview(ctx context.Context, idea string) (*plan.Overview, error)
	Section(ctx context.Context, kind plan.SectionKind, idea string) (any, error)
	WebsitePrompt(ctx context.Context, idea string) (string, error)
}

// Generators implements Generator on top of an llm.Client.
type Generators struct {
	client   llm.Client
	logger   *logging.Logger
	tracer   trace.Tracer
	failures metric.Int64Counter
}

// Option configures Generators.
type Option func(*options)

type options struct {
	logger *logging.Logger
	tp     trace.TracerProvider
	mp     metric.MeterProvider
}

// WithLogger sets the logger used for failure reports.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTracerProvider sets the provider for section spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tp = tp }
}

// WithMeterProvider sets the provider for section metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.mp = mp }
}

// New creates section generators backed by client.
func New(client llm.Client, opts ...Option) (*Generators, error) {
	if client == nil {
		return nil, errors.New("llm client is required")
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.Nop()
	}
	if o.tp == nil {
		o.tp = otel.GetTracerProvider()
	}
	if o.mp == nil {
		o.mp = otel.GetMeterProvider()
	}

	g := &Generators{
		client: client,
		logger: o.logger.Named("sections"),
		tracer: o.tp.Tracer(instrumentationName),
	}

	var err error
	g.failures, err = o.mp.Meter(instrumentationName).Int64Counter(
		"launchplan.sections.failures_total",
		metric.WithDescription("Section generations that returned an error"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		g.logger.Warn(context.Background(), "failed to create section failure counter", zap.Error(err))
	}
	return g, nil
}

// complete runs one traced chat call and decodes the reply with decode.
func (g *Generators) complete(ctx context.Context, kind, idea string, req *llm.ChatRequest, decode func(op, content string) error) error {
	op := "sections." + kind
	req.Op = op

	ctx, span := g.tracer.Start(ctx, op)
	defer span.End()
	span.SetAttributes(
		attribute.String("section.kind", kind),
		attribute.Int("idea.length", len(idea)),
		attribute.Bool("llm.json_mode", req.JSON),
	)

	start := time.Now()
	content, err := g.client.Complete(ctx, req)
	if err == nil {
		err = decode(op, content)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "section generation failed")
		if g.failures != nil {
			g.failures.Add(ctx, 1, metric.WithAttributes(
				attribute.String("section.kind", kind),
				attribute.String("error.type", errorType(err)),
			))
		}
		g.logger.Warn(ctx, "section generation failed",
			zap.String("section", kind),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func errorType(err error) string {
	var up *plan.UpstreamError
	var mal *plan.MalformedResponseError
	switch {
	case errors.As(err, &mal):
		return "malformed"
	case errors.As(err, &up):
		return "upstream"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "other"
	}
}

func jsonRequest(system, user string, temperature float64) *llm.ChatRequest {
	return &llm.ChatRequest{System: system, User: user, Temperature: temperature, JSON: true}
}

// Overview generates the primary section. The idea is echoed from the
// caller rather than trusted from the reply.
func (g *Generators) Overview(ctx context.Context, idea string) (*plan.Overview, error) {
	var out plan.Overview
	req := jsonRequest(overviewSystem, fmt.Sprintf(overviewUser, idea), planTemperature)
	err := g.complete(ctx, string(plan.KindOverview), idea, req, func(op, content string) error {
		top, err := decodeObject(op, content, &out)
		if err != nil {
			return err
		}
		if !top.has("overview") {
			return missing(op, "overview")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out.Idea = idea
	fillOverview(&out)
	return &out, nil
}

// MarketMetrics generates headline market numbers.
func (g *Generators) MarketMetrics(ctx context.Context, idea string) (*plan.MarketMetrics, error) {
	var out plan.MarketMetrics
	req := jsonRequest(marketMetricsSystem, fmt.Sprintf(marketMetricsUser, idea), planTemperature)
	err := g.complete(ctx, string(plan.KindMarketMetrics), idea, req, func(op, content string) error {
		top, err := decodeObject(op, content, &out)
		if err != nil {
			return err
		}
		if !top.has("marketSize") {
			return missing(op, "marketSize")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Competitors generates the competitor analysis.
func (g *Generators) Competitors(ctx context.Context, idea string) ([]plan.Competitor, error) {
	var out struct {
		Competitors []plan.Competitor `json:"competitors"`
	}
	req := jsonRequest(competitorsSystem, fmt.Sprintf(competitorsUser, idea), planTemperature)
	err := g.complete(ctx, string(plan.KindCompetitors), idea, req, func(op, content string) error {
		top, err := decodeObject(op, content, &out)
		if err != nil {
			return err
		}
		if !top.isArray("competitors") {
			return missing(op, "competitors")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fillCompetitors(out.Competitors), nil
}

// RiskAssessment generates the risk analysis. At least one risk category
// must be present.
func (g *Generators) RiskAssessment(ctx context.Context, idea string) (*plan.RiskAssessment, error) {
	var out plan.RiskAssessment
	req := jsonRequest(riskSystem, fmt.Sprintf(riskUser, idea), planTemperature)
	err := g.complete(ctx, string(plan.KindRiskAssessment), idea, req, func(op, content string) error {
		top, err := decodeObject(op, content, &out)
		if err != nil {
			return err
		}
		if !top.isArray("marketRisks") && !top.isArray("financialRisks") && !top.isArray("operationalRisks") {
			return missing(op, "marketRisks", "financialRisks", "operationalRisks")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	fillRisks(&out)
	return &out, nil
}

// Research generates R&D projects and technology trends.
func (g *Generators) Research(ctx context.Context, idea string) (*plan.Research, error) {
	var out plan.Research
	req := jsonRequest(researchSystem, fmt.Sprintf(researchUser, idea), planTemperature)
	err := g.complete(ctx, string(plan.KindResearch), idea, req, func(op, content string) error {
		top, err := decodeObject(op, content, &out)
		if err != nil {
			return err
		}
		if !top.isArray("projects") && !top.isArray("trends") {
			return missing(op, "projects", "trends")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	fillResearch(&out)
	return &out, nil
}

// MarketingStrategy generates the marketing plan.
func (g *Generators) MarketingStrategy(ctx context.Context, idea string) (*plan.MarketingStrategy, error) {
	var out plan.MarketingStrategy
	req := jsonRequest(marketingSystem, fmt.Sprintf(marketingUser, idea), planTemperature)
	err := g.complete(ctx, string(plan.KindMarketingStrategy), idea, req, func(op, content string) error {
		top, err := decodeObject(op, content, &out)
		if err != nil {
			return err
		}
		if !top.isArray("channels") {
			return missing(op, "channels")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	fillMarketing(&out)
	return &out, nil
}

// WebsitePrompt generates a free-text brief for AI website builders.
func (g *Generators) WebsitePrompt(ctx context.Context, idea string) (string, error) {
	var out string
	req := &llm.ChatRequest{System: websiteSystem, User: fmt.Sprintf(websiteUser, idea), Temperature: planTemperature}
	err := g.complete(ctx, string(plan.KindWebsitePrompt), idea, req, func(op, content string) error {
		out = strings.TrimSpace(content)
		if out == "" {
			return &plan.MalformedResponseError{Op: op, Reason: "empty content"}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

// Section dispatches to the generator for a secondary kind. The payload
// types match what plan.AggregatePlan.Record expects.
func (g *Generators) Section(ctx context.Context, kind plan.SectionKind, idea string) (any, error) {
	switch kind {
	case plan.KindMarketMetrics:
		return g.MarketMetrics(ctx, idea)
	case plan.KindCompetitors:
		return g.Competitors(ctx, idea)
	case plan.KindRiskAssessment:
		return g.RiskAssessment(ctx, idea)
	case plan.KindResearch:
		return g.Research(ctx, idea)
	case plan.KindMarketingStrategy:
		return g.MarketingStrategy(ctx, idea)
	default:
		return nil, fmt.Errorf("no generator for section %q", kind)
	}
}

// Ideas brainstorms startup ideas around a concept.
func (g *Generators) Ideas(ctx context.Context, concept string) ([]string, error) {
	concept = strings.TrimSpace(concept)
	if concept == "" {
		return nil, plan.ErrEmptyIdea
	}

	var out struct {
		Ideas []string `json:"ideas"`
	}
	req := jsonRequest(ideasSystem, fmt.Sprintf(ideasUser, concept), ideasTemperature)
	err := g.complete(ctx, opIdeas, concept, req, func(op, content string) error {
		top, err := decodeObject(op, content, &out)
		if err != nil {
			return err
		}
		if !top.isArray("ideas") {
			return missing(op, "ideas")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ideas := make([]string, 0, len(out.Ideas))
	for _, idea := range out.Ideas {
		if s := strings.TrimSpace(idea); s != "" {
			ideas = append(ideas, s)
		}
	}
	return ideas, nil
}

// TrendingKeywords predicts trending business keywords. A reply that cannot
// be parsed yields an empty list; only transport failures are errors.
func (g *Generators) TrendingKeywords(ctx context.Context) ([]plan.TrendingKeyword, error) {
	var out struct {
		Keywords []plan.TrendingKeyword `json:"keywords"`
	}
	req := &llm.ChatRequest{System: trendsSystem, User: trendsUser, Temperature: planTemperature, MaxTokens: trendsMaxTokens}
	err := g.complete(ctx, opTrends, "", req, func(op, content string) error {
		if _, err := decodeObject(op, content, &out); err != nil {
			g.logger.Warn(ctx, "discarding unparseable trending keywords", zap.Error(err))
			out.Keywords = nil
		}
		return nil
	})
	if err != nil {
		var mal *plan.MalformedResponseError
		if errors.As(err, &mal) {
			return []plan.TrendingKeyword{}, nil
		}
		return nil, err
	}

	keywords := orEmpty(out.Keywords)
	for i := range keywords {
		fillKeyword(&keywords[i])
	}
	return keywords, nil
}
