package sections

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/launchplan/internal/llm"
	"github.com/fyrsmithlabs/launchplan/internal/logging"
	"github.com/fyrsmithlabs/launchplan/internal/plan"
	"github.com/fyrsmithlabs/launchplan/internal/telemetry"
)

// fakeClient answers each request by op.
type fakeClient struct {
	mu       sync.Mutex
	replies  map[string]string
	errs     map[string]error
	requests []*llm.ChatRequest
}

func newFakeClient() *fakeClient {
	return &fakeClient{replies: map[string]string{}, errs: map[string]error{}}
}

func (f *fakeClient) Complete(_ context.Context, req *llm.ChatRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if err := f.errs[req.Op]; err != nil {
		return "", err
	}
	return f.replies[req.Op], nil
}

func (f *fakeClient) last() *llm.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newTestGenerators(t *testing.T, client llm.Client) (*Generators, *telemetry.TestTelemetry, *logging.TestLogger) {
	t.Helper()
	tt := telemetry.NewTestTelemetry()
	tl := logging.NewTestLogger()
	g, err := New(client,
		WithLogger(tl.Logger),
		WithTracerProvider(tt.TracerProvider()),
		WithMeterProvider(tt.MeterProvider()),
	)
	require.NoError(t, err)
	return g, tt, tl
}

func TestNew_RequiresClient(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm client is required")
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```\n", `{"a":1}`},
		{"  \n```JSON\n{\"a\":1}```", `{"a":1}`},
		{"```", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, stripFences(tt.in), "input %q", tt.in)
	}
}

func TestOverview(t *testing.T) {
	client := newFakeClient()
	client.replies["sections.overview"] = "```json\n" + `{
		"idea": "something else",
		"overview": "Adaptive tutoring for K-12.",
		"problemStatement": "Tutors are expensive.",
		"steps": [{"title": "Validate", "tasks": [{"title": "Interview"}]}]
	}` + "\n```"
	g, tt, _ := newTestGenerators(t, client)

	out, err := g.Overview(context.Background(), "AI tutoring app")
	require.NoError(t, err)

	assert.Equal(t, "AI tutoring app", out.Idea)
	assert.Equal(t, "Adaptive tutoring for K-12.", out.Overview)
	require.Len(t, out.Steps, 1)
	assert.NotNil(t, out.Steps[0].CriticalFactors)
	assert.NotNil(t, out.Steps[0].Tasks[0].Resources)
	assert.NotNil(t, out.KeyTraits)
	assert.NotNil(t, out.TargetMarket.Demographics)

	req := client.last()
	assert.True(t, req.JSON)
	assert.Equal(t, 0.7, req.Temperature)
	assert.Contains(t, req.User, `"AI tutoring app"`)
	assert.Contains(t, req.User, `"steps"`)
	assert.NotEmpty(t, req.System)

	tt.AssertSpanExists(t, "sections.overview")
	tt.AssertSpanAttribute(t, "sections.overview", "section.kind", "overview")
}

func TestOverview_MissingStepsIsEmptyPlan(t *testing.T) {
	client := newFakeClient()
	client.replies["sections.overview"] = `{"overview": "Just an overview."}`
	g, _, _ := newTestGenerators(t, client)

	out, err := g.Overview(context.Background(), "Eco packaging")
	require.NoError(t, err)
	assert.Empty(t, out.Steps)
	assert.NotNil(t, out.Steps)
}

func TestOverview_ToleratesFieldTypeDrift(t *testing.T) {
	client := newFakeClient()
	client.replies["sections.overview"] = `{
		"overview": "Refillable cleaning products.",
		"problemStatement": 42,
		"targetMarket": {"demographics": "urban renters", "psychographics": {"eco": true}, "marketSize": 5000000},
		"steps": "none",
		"keyTraits": [{"title": "Grit", "description": null}]
	}`
	g, _, _ := newTestGenerators(t, client)

	out, err := g.Overview(context.Background(), "Eco packaging")
	require.NoError(t, err)
	assert.Equal(t, "Refillable cleaning products.", out.Overview)
	assert.Equal(t, "42", out.ProblemStatement)
	assert.Equal(t, "5000000", out.TargetMarket.MarketSize)
	assert.Equal(t, []string{"urban renters"}, out.TargetMarket.Demographics)
	assert.NotNil(t, out.TargetMarket.Psychographics)
	assert.Empty(t, out.TargetMarket.Psychographics)
	assert.NotNil(t, out.Steps)
	assert.Empty(t, out.Steps)
	require.Len(t, out.KeyTraits, 1)
	assert.Equal(t, "Grit", out.KeyTraits[0].Title)
}

func TestOverview_Failures(t *testing.T) {
	tests := []struct {
		name      string
		reply     string
		err       error
		wantType  string
		wantInErr string
	}{
		{"not json", "I cannot help with that.", nil, "malformed", "not a JSON object"},
		{"missing overview", `{"steps": []}`, nil, "malformed", "missing required key overview"},
		{"null overview", `{"overview": null}`, nil, "malformed", "overview"},
		{"top-level array", `[{"overview": "x"}]`, nil, "malformed", "not a JSON object"},
		{"upstream", "", &plan.UpstreamError{Op: "sections.overview", StatusCode: 503, Err: errors.New("unavailable")}, "upstream", "503"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeClient()
			client.replies["sections.overview"] = tt.reply
			if tt.err != nil {
				client.errs["sections.overview"] = tt.err
			}
			g, tel, tl := newTestGenerators(t, client)

			out, err := g.Overview(context.Background(), "idea")
			require.Error(t, err)
			assert.Nil(t, out)
			assert.Contains(t, err.Error(), tt.wantInErr)

			switch tt.wantType {
			case "malformed":
				var mal *plan.MalformedResponseError
				assert.ErrorAs(t, err, &mal)
			case "upstream":
				var up *plan.UpstreamError
				assert.ErrorAs(t, err, &up)
			}

			tl.AssertLogged(t, zapcore.WarnLevel, "section generation failed")
			tl.AssertField(t, "section generation failed", "section", "overview")
			assert.Equal(t, int64(1), tel.CounterValue(t, "launchplan.sections.failures_total",
				attribute.String("section.kind", "overview"),
				attribute.String("error.type", tt.wantType)))
		})
	}
}

func TestSecondarySections(t *testing.T) {
	client := newFakeClient()
	client.replies["sections.market_metrics"] = `{"marketSize": "$500M", "growthRate": "12% YoY", "competitorCount": 14}`
	client.replies["sections.competitors"] = `{"competitors": [{"name": "Chegg"}]}`
	client.replies["sections.risk_assessment"] = `{"marketRisks": [{"risk": "Adoption", "impact": "High", "mitigation": "Pilots"}], "overallRiskScore": 6.5}`
	client.replies["sections.research"] = `{"trends": [{"name": "LLMs", "relevanceScore": 9}]}`
	client.replies["sections.marketing_strategy"] = `{"channels": [{"name": "SEO"}], "budgetAllocation": {"total": "$10k"}}`
	g, tt, _ := newTestGenerators(t, client)
	ctx := context.Background()

	mm, err := g.Section(ctx, plan.KindMarketMetrics, "idea")
	require.NoError(t, err)
	assert.Equal(t, 14, mm.(*plan.MarketMetrics).CompetitorCount)

	cs, err := g.Section(ctx, plan.KindCompetitors, "idea")
	require.NoError(t, err)
	comps := cs.([]plan.Competitor)
	require.Len(t, comps, 1)
	assert.NotNil(t, comps[0].Strengths)

	ra, err := g.Section(ctx, plan.KindRiskAssessment, "idea")
	require.NoError(t, err)
	risks := ra.(*plan.RiskAssessment)
	assert.Len(t, risks.MarketRisks, 1)
	assert.NotNil(t, risks.FinancialRisks)
	assert.Equal(t, 6.5, risks.OverallRiskScore)

	rd, err := g.Section(ctx, plan.KindResearch, "idea")
	require.NoError(t, err)
	research := rd.(*plan.Research)
	assert.NotNil(t, research.Projects)
	assert.Len(t, research.Trends, 1)

	ms, err := g.Section(ctx, plan.KindMarketingStrategy, "idea")
	require.NoError(t, err)
	strategy := ms.(*plan.MarketingStrategy)
	assert.Equal(t, "$10k", strategy.BudgetAllocation.Total)
	assert.NotNil(t, strategy.KPIs)
	assert.NotNil(t, strategy.BudgetAllocation.Breakdown)

	for _, kind := range plan.SecondaryKinds {
		tt.AssertSpanExists(t, "sections."+string(kind))
	}

	_, err = g.Section(ctx, plan.KindWebsitePrompt, "idea")
	assert.Error(t, err)
}

func TestSecondarySections_ToleratesFieldTypeDrift(t *testing.T) {
	client := newFakeClient()
	client.replies["sections.market_metrics"] = `{"marketSize": 2.5e9, "growthRate": 12, "competitorCount": "20+", "customerAcquisitionCost": "$40"}`
	client.replies["sections.risk_assessment"] = `{"marketRisks": [{"risk": "Churn", "impact": 8}], "overallRiskScore": "7/10"}`
	client.replies["sections.research"] = `{"trends": [{"name": "Edge AI", "relevanceScore": "high"}], "projects": "tbd"}`
	client.replies["sections.marketing_strategy"] = `{"channels": [{"name": "SEO", "tactics": "blog"}], "budgetAllocation": {"breakdown": [{"category": "Ads", "percentage": "40%", "amount": 4000}]}}`
	g, _, _ := newTestGenerators(t, client)
	ctx := context.Background()

	mm, err := g.Section(ctx, plan.KindMarketMetrics, "idea")
	require.NoError(t, err)
	metrics := mm.(*plan.MarketMetrics)
	assert.Equal(t, 20, metrics.CompetitorCount)
	assert.Equal(t, "2500000000", metrics.MarketSize)
	assert.Equal(t, "12", metrics.GrowthRate)

	ra, err := g.Section(ctx, plan.KindRiskAssessment, "idea")
	require.NoError(t, err)
	risks := ra.(*plan.RiskAssessment)
	assert.Equal(t, 7.0, risks.OverallRiskScore)
	require.Len(t, risks.MarketRisks, 1)
	assert.Equal(t, "8", risks.MarketRisks[0].Impact)

	rd, err := g.Section(ctx, plan.KindResearch, "idea")
	require.NoError(t, err)
	research := rd.(*plan.Research)
	require.Len(t, research.Trends, 1)
	assert.Zero(t, research.Trends[0].RelevanceScore)
	assert.NotNil(t, research.Projects)
	assert.Empty(t, research.Projects)

	ms, err := g.Section(ctx, plan.KindMarketingStrategy, "idea")
	require.NoError(t, err)
	strategy := ms.(*plan.MarketingStrategy)
	assert.Equal(t, []string{"blog"}, strategy.Channels[0].Tactics)
	require.Len(t, strategy.BudgetAllocation.Breakdown, 1)
	assert.Equal(t, 40.0, strategy.BudgetAllocation.Breakdown[0].Percentage)
	assert.Equal(t, "4000", strategy.BudgetAllocation.Breakdown[0].Amount)
}

func TestLeadingNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"20+", 20},
		{"$1,200", 1200},
		{"7/10", 7},
		{"-3.5%", -3.5},
		{"about 12.5 million", 12.5},
		{"5.", 5},
		{"high", 0},
		{"", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, leadingNumber(tt.in))
		})
	}
}

func TestSecondarySections_RequiredKeys(t *testing.T) {
	tests := []struct {
		kind  plan.SectionKind
		reply string
	}{
		{plan.KindMarketMetrics, `{"growthRate": "5%"}`},
		{plan.KindCompetitors, `{"competitors": {"name": "x"}}`},
		{plan.KindCompetitors, `{}`},
		{plan.KindRiskAssessment, `{"overallRiskScore": 3}`},
		{plan.KindResearch, `{"summary": "none"}`},
		{plan.KindMarketingStrategy, `{"kpis": []}`},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			client := newFakeClient()
			client.replies["sections."+string(tt.kind)] = tt.reply
			g, _, _ := newTestGenerators(t, client)

			_, err := g.Section(context.Background(), tt.kind, "idea")
			var mal *plan.MalformedResponseError
			require.ErrorAs(t, err, &mal)
			assert.Contains(t, mal.Reason, "missing required key")
		})
	}
}

func TestWebsitePrompt(t *testing.T) {
	client := newFakeClient()
	client.replies["sections.website_prompt"] = "  Build a calm, trustworthy site.\n"
	g, _, _ := newTestGenerators(t, client)

	out, err := g.WebsitePrompt(context.Background(), "AI tutoring app")
	require.NoError(t, err)
	assert.Equal(t, "Build a calm, trustworthy site.", out)
	assert.False(t, client.last().JSON)

	client.replies["sections.website_prompt"] = "   "
	_, err = g.WebsitePrompt(context.Background(), "AI tutoring app")
	var mal *plan.MalformedResponseError
	assert.ErrorAs(t, err, &mal)
}

func TestIdeas(t *testing.T) {
	client := newFakeClient()
	client.replies["sections.ideas"] = `{"ideas": ["Compostable mailers", " ", "Refill subscriptions"]}`
	g, _, _ := newTestGenerators(t, client)

	ideas, err := g.Ideas(context.Background(), "sustainable packaging")
	require.NoError(t, err)
	assert.Equal(t, []string{"Compostable mailers", "Refill subscriptions"}, ideas)
	assert.Equal(t, 0.8, client.last().Temperature)
	assert.True(t, strings.Contains(client.last().User, "12 innovative"))

	_, err = g.Ideas(context.Background(), "  ")
	assert.ErrorIs(t, err, plan.ErrEmptyIdea)

	client.replies["sections.ideas"] = `{"suggestions": []}`
	_, err = g.Ideas(context.Background(), "x")
	var mal *plan.MalformedResponseError
	assert.ErrorAs(t, err, &mal)
}

func TestTrendingKeywords(t *testing.T) {
	client := newFakeClient()
	client.replies["sections.trending_keywords"] = `{"keywords": [{"keyword": "Agentic commerce", "score": 91}]}`
	g, _, tl := newTestGenerators(t, client)

	kws, err := g.TrendingKeywords(context.Background())
	require.NoError(t, err)
	require.Len(t, kws, 1)
	assert.Equal(t, "Agentic commerce", kws[0].Keyword)
	assert.Equal(t, "Medium", kws[0].MarketImpact)
	assert.NotNil(t, kws[0].RelatedEvents)
	assert.Equal(t, 2000, client.last().MaxTokens)

	client.replies["sections.trending_keywords"] = "not json at all"
	kws, err = g.TrendingKeywords(context.Background())
	require.NoError(t, err)
	assert.Empty(t, kws)
	assert.NotNil(t, kws)
	tl.AssertLogged(t, zapcore.WarnLevel, "discarding unparseable trending keywords")

	client.errs["sections.trending_keywords"] = &plan.UpstreamError{Op: "sections.trending_keywords", Err: errors.New("down")}
	_, err = g.TrendingKeywords(context.Background())
	var up *plan.UpstreamError
	assert.ErrorAs(t, err, &up)
}
