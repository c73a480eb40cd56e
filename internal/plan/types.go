package plan

import "time"

// SectionKind identifies one independently fetched facet of a plan.
type SectionKind string

const (
	KindOverview          SectionKind = "overview"
	KindMarketMetrics     SectionKind = "market_metrics"
	KindCompetitors       SectionKind = "competitors"
	KindRiskAssessment    SectionKind = "risk_assessment"
	KindResearch          SectionKind = "research"
	KindMarketingStrategy SectionKind = "marketing_strategy"
	KindWebsitePrompt     SectionKind = "website_prompt"
)

// SecondaryKinds are the sections fetched concurrently once the overview is
// known. The website prompt is deliberately not part of this list.
var SecondaryKinds = []SectionKind{
	KindMarketMetrics,
	KindCompetitors,
	KindRiskAssessment,
	KindResearch,
	KindMarketingStrategy,
}

// AllKinds returns every section kind in display order.
func AllKinds() []SectionKind {
	kinds := make([]SectionKind, 0, len(SecondaryKinds)+2)
	kinds = append(kinds, KindOverview)
	kinds = append(kinds, SecondaryKinds...)
	return append(kinds, KindWebsitePrompt)
}

// Overview is the primary section: the plan itself.
type Overview struct {
	Idea             string       `json:"idea"`
	Overview         string       `json:"overview"`
	ProblemStatement string       `json:"problemStatement"`
	TargetMarket     TargetMarket `json:"targetMarket"`
	ValueProposition string       `json:"valueProposition"`
	Steps            []Step       `json:"steps"`
	KeyTraits        []KeyTrait   `json:"keyTraits"`
}

// TargetMarket describes who the plan is for.
type TargetMarket struct {
	Demographics   []string `json:"demographics"`
	Psychographics []string `json:"psychographics"`
	MarketSize     string   `json:"marketSize"`
}

// Step is one ordered implementation phase.
type Step struct {
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	EstimatedTimeframe string   `json:"estimatedTimeframe"`
	CriticalFactors    []string `json:"criticalFactors"`
	Tasks              []Task   `json:"tasks"`
}

// Task is a unit of work within a step.
type Task struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Timeline    string   `json:"timeline"`
	Resources   []string `json:"resources"`
	Metrics     []string `json:"metrics"`
}

// KeyTrait is a founder or team trait the plan calls out.
type KeyTrait struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// MarketMetrics are headline market numbers.
type MarketMetrics struct {
	MarketSize              string `json:"marketSize"`
	GrowthRate              string `json:"growthRate"`
	CompetitorCount         int    `json:"competitorCount"`
	CustomerAcquisitionCost string `json:"customerAcquisitionCost"`
}

// Competitor is one entry of the competitor analysis.
type Competitor struct {
	Name                string   `json:"name"`
	Strengths           []string `json:"strengths"`
	Weaknesses          []string `json:"weaknesses"`
	MarketShare         string   `json:"marketShare"`
	UniqueSellingPoints []string `json:"uniqueSellingPoints"`
}

// Risk is a single identified risk with its mitigation.
type Risk struct {
	Risk       string `json:"risk"`
	Impact     string `json:"impact"`
	Mitigation string `json:"mitigation"`
}

// RiskAssessment groups risks by category.
type RiskAssessment struct {
	MarketRisks      []Risk  `json:"marketRisks"`
	FinancialRisks   []Risk  `json:"financialRisks"`
	OperationalRisks []Risk  `json:"operationalRisks"`
	OverallRiskScore float64 `json:"overallRiskScore"`
}

// ResearchProject is a proposed R&D project.
type ResearchProject struct {
	ID                  string   `json:"id"`
	Title               string   `json:"title"`
	Description         string   `json:"description"`
	Status              string   `json:"status"`
	Priority            string   `json:"priority"`
	Timeline            string   `json:"timeline"`
	Budget              string   `json:"budget"`
	Objectives          []string `json:"objectives"`
	KeyFindings         []string `json:"keyFindings"`
	TechnicalChallenges []string `json:"technicalChallenges"`
	Resources           []string `json:"resources"`
}

// TechnologyTrend is a technology relevant to the idea.
type TechnologyTrend struct {
	Name                     string  `json:"name"`
	Description              string  `json:"description"`
	MaturityLevel            string  `json:"maturityLevel"`
	RelevanceScore           float64 `json:"relevanceScore"`
	PotentialImpact          string  `json:"potentialImpact"`
	ImplementationComplexity string  `json:"implementationComplexity"`
	EstimatedCost            string  `json:"estimatedCost"`
}

// Research is the R&D section.
type Research struct {
	Projects []ResearchProject `json:"projects"`
	Trends   []TechnologyTrend `json:"trends"`
}

// MarketingChannel is one acquisition channel.
type MarketingChannel struct {
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Priority        string   `json:"priority"`
	EstimatedBudget string   `json:"estimatedBudget"`
	ExpectedROI     string   `json:"expectedROI"`
	Tactics         []string `json:"tactics"`
}

// MarketingPhase is one phase of the marketing timeline.
type MarketingPhase struct {
	Phase      string   `json:"phase"`
	Duration   string   `json:"duration"`
	Activities []string `json:"activities"`
	Goals      []string `json:"goals"`
}

// KPI is a tracked marketing metric.
type KPI struct {
	Metric    string `json:"metric"`
	Target    string `json:"target"`
	Timeframe string `json:"timeframe"`
}

// BudgetLine is one category of the marketing budget.
type BudgetLine struct {
	Category   string  `json:"category"`
	Percentage float64 `json:"percentage"`
	Amount     string  `json:"amount"`
}

// BudgetAllocation splits the total marketing budget.
type BudgetAllocation struct {
	Total     string       `json:"total"`
	Breakdown []BudgetLine `json:"breakdown"`
}

// MarketingStrategy is the marketing section.
type MarketingStrategy struct {
	Channels         []MarketingChannel `json:"channels"`
	Timeline         []MarketingPhase   `json:"timeline"`
	KPIs             []KPI              `json:"kpis"`
	BudgetAllocation BudgetAllocation   `json:"budgetAllocation"`
}

// TrendingKeyword is a predicted business trend used for idea discovery.
type TrendingKeyword struct {
	Keyword             string   `json:"keyword"`
	Score               float64  `json:"score"`
	Category            string   `json:"category"`
	RelatedEvents       []string `json:"relatedEvents"`
	PredictedGrowth     float64  `json:"predictedGrowth"`
	Confidence          float64  `json:"confidence"`
	Timeframe           string   `json:"timeframe"`
	MarketImpact        string   `json:"marketImpact"`
	IndustryFocus       []string `json:"industryFocus"`
	GeographicRelevance []string `json:"geographicRelevance"`
}

// Bundle is the canonical, storage-independent set of sections. A nil field
// means the section is unavailable.
type Bundle struct {
	Plan              *Overview          `json:"plan,omitempty"`
	MarketMetrics     *MarketMetrics     `json:"marketMetrics,omitempty"`
	Competitors       []Competitor       `json:"competitors"`
	RiskAssessment    *RiskAssessment    `json:"riskAssessment,omitempty"`
	ResearchData      *Research          `json:"researchData,omitempty"`
	MarketingStrategy *MarketingStrategy `json:"marketingStrategy,omitempty"`
	WebsitePrompt     *string            `json:"websitePrompt,omitempty"`
}

// Has reports whether the bundle holds a value for kind.
func (b *Bundle) Has(kind SectionKind) bool {
	switch kind {
	case KindOverview:
		return b.Plan != nil
	case KindMarketMetrics:
		return b.MarketMetrics != nil
	case KindCompetitors:
		return b.Competitors != nil
	case KindRiskAssessment:
		return b.RiskAssessment != nil
	case KindResearch:
		return b.ResearchData != nil
	case KindMarketingStrategy:
		return b.MarketingStrategy != nil
	case KindWebsitePrompt:
		return b.WebsitePrompt != nil
	}
	return false
}

// SavedPlanRecord is the durable form of an assembled plan. The bundle
// fields are promoted to the top level of the JSON encoding.
type SavedPlanRecord struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id,omitempty"`
	Idea      string    `json:"idea"`
	CreatedAt time.Time `json:"created_at"`
	Bundle
}

// Export is the downloadable view of a saved plan.
type Export struct {
	Idea      string    `json:"idea"`
	Timestamp time.Time `json:"timestamp"`
	Plan      *Overview `json:"plan"`
}
