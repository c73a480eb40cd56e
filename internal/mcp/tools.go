package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/launchplan/internal/plan"
)

// defaultSessionID groups the generations of one stdio process so an idea is
// saved at most once per process.
const defaultSessionID = "mcp"

var errInvalidArguments = errors.New("invalid arguments")

// observe starts the metrics for one tool call. Defer the returned function
// with the handler's named error.
func (s *Server) observe(ctx context.Context, tool string) func(*error) {
	start := time.Now()
	s.metrics.IncrementActive(ctx, tool)
	return func(errp *error) {
		s.metrics.DecrementActive(ctx, tool)
		s.metrics.RecordInvocation(ctx, tool, time.Since(start), *errp)
		if *errp != nil {
			s.logger.Debug("tool call failed", zap.String("tool", tool), zap.Error(*errp))
		}
	}
}

func (s *Server) registerTools() {
	s.registerPlanTools()
	s.registerQuotaTools()
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return textResult(string(data)), nil
}

// ===== PLAN TOOLS =====

type sectionState struct {
	Kind  string `json:"kind" jsonschema:"Section kind"`
	State string `json:"state" jsonschema:"ready, unavailable or pending"`
	Error string `json:"error,omitempty" jsonschema:"Why the section is unavailable"`
}

type planGenerateInput struct {
	Idea      string `json:"idea" jsonschema:"The startup idea to build a plan for"`
	SessionID string `json:"session_id,omitempty" jsonschema:"Client session; an idea is saved at most once per session"`
}

type planGenerateOutput struct {
	GenerationID         string         `json:"generation_id" jsonschema:"Generation ID"`
	Idea                 string         `json:"idea" jsonschema:"Normalized idea"`
	Sections             []sectionState `json:"sections" jsonschema:"Per-section outcome"`
	WebsitePromptPending bool           `json:"website_prompt_pending" jsonschema:"True while the website prompt is still being generated"`
	QuotaExhausted       bool           `json:"quota_exhausted,omitempty" jsonschema:"True if the plan was generated but could not be charged"`
	QuotaRemaining       int            `json:"quota_remaining" jsonschema:"Generations left this period"`
	Anonymous            bool           `json:"anonymous" jsonschema:"True when no account is configured"`
}

type planSummary struct {
	ID               string `json:"id" jsonschema:"Saved plan ID"`
	Idea             string `json:"idea" jsonschema:"Idea the plan was generated for"`
	CreatedAt        string `json:"created_at" jsonschema:"RFC 3339 creation time"`
	SectionsReady    int    `json:"sections_ready" jsonschema:"Number of sections with content"`
	HasWebsitePrompt bool   `json:"has_website_prompt" jsonschema:"True if the website prompt was saved"`
}

type planListInput struct{}

type planListOutput struct {
	Plans   []planSummary `json:"plans" jsonschema:"Saved plans, newest first"`
	Count   int           `json:"count" jsonschema:"Number of plans returned"`
	Source  string        `json:"source" jsonschema:"hosted or device"`
	Warning string        `json:"warning,omitempty" jsonschema:"Set when the hosted store was unavailable"`
}

type planFindInput struct {
	ID   string `json:"id,omitempty" jsonschema:"Saved plan ID"`
	Idea string `json:"idea,omitempty" jsonschema:"Idea text; matched ignoring case and surrounding space"`
}

type planDeleteInput struct {
	ID string `json:"id" jsonschema:"Saved plan ID to delete"`
}

type planDeleteOutput struct {
	ID      string `json:"id" jsonschema:"Deleted plan ID"`
	Deleted bool   `json:"deleted" jsonschema:"True if the plan was removed"`
}

func summarize(rec *plan.SavedPlanRecord) planSummary {
	ready := 0
	for _, kind := range append([]plan.SectionKind{plan.KindOverview}, plan.SecondaryKinds...) {
		if rec.Has(kind) {
			ready++
		}
	}
	return planSummary{
		ID:               rec.ID,
		Idea:             rec.Idea,
		CreatedAt:        rec.CreatedAt.UTC().Format(time.RFC3339),
		SectionsReady:    ready,
		HasWebsitePrompt: rec.WebsitePrompt != nil,
	}
}

func (s *Server) registerPlanTools() {
	// plan_generate
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "plan_generate",
		Description: "Generate a startup plan for an idea. Secondary sections that fail are reported as unavailable; the website prompt may arrive after the call returns.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args planGenerateInput) (_ *mcp.CallToolResult, _ planGenerateOutput, err error) {
		defer s.observe(ctx, "plan_generate")(&err)
		ctx = s.callerContext(ctx)

		session := strings.TrimSpace(args.SessionID)
		if session == "" {
			session = defaultSessionID
		}

		res, err := s.planner.Generate(ctx, s.owner(), session, args.Idea)
		if err != nil {
			return nil, planGenerateOutput{}, fmt.Errorf("plan generation failed: %w", err)
		}

		p := res.Plan
		out := planGenerateOutput{
			GenerationID:         p.ID,
			Idea:                 p.Idea,
			WebsitePromptPending: p.WebsitePromptPending(),
			QuotaExhausted:       res.QuotaExhausted,
			Anonymous:            s.account == "",
		}
		statuses := p.Statuses()
		out.Sections = make([]sectionState, 0, len(statuses))
		for _, st := range statuses {
			out.Sections = append(out.Sections, sectionState{Kind: string(st.Kind), State: string(st.State), Error: st.Error})
		}
		if res.Quota != nil {
			out.QuotaRemaining = res.Quota.Remaining
		}

		result, err := jsonResult(p.Snapshot())
		if err != nil {
			return nil, planGenerateOutput{}, err
		}
		return result, out, nil
	})

	// plan_list
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "plan_list",
		Description: "List saved startup plans, newest first",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args planListInput) (_ *mcp.CallToolResult, _ planListOutput, err error) {
		defer s.observe(ctx, "plan_list")(&err)
		ctx = s.callerContext(ctx)

		listing, err := s.directory.List(ctx, s.owner())
		if err != nil {
			return nil, planListOutput{}, fmt.Errorf("listing plans failed: %w", err)
		}

		out := planListOutput{
			Plans:  make([]planSummary, 0, len(listing.Plans)),
			Source: string(listing.Source),
		}
		for _, rec := range listing.Plans {
			out.Plans = append(out.Plans, summarize(rec))
		}
		out.Count = len(out.Plans)
		if listing.Err != nil {
			out.Warning = listing.Err.Error()
		}

		return textResult(fmt.Sprintf("Found %d saved plans (%s)", out.Count, out.Source)), out, nil
	})

	// plan_find
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "plan_find",
		Description: "Fetch one saved plan by ID or by idea text",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args planFindInput) (_ *mcp.CallToolResult, _ planSummary, err error) {
		defer s.observe(ctx, "plan_find")(&err)
		ctx = s.callerContext(ctx)

		var rec *plan.SavedPlanRecord
		switch {
		case strings.TrimSpace(args.ID) != "":
			rec, err = s.directory.FindByID(ctx, s.owner(), args.ID)
		case strings.TrimSpace(args.Idea) != "":
			rec, err = s.directory.FindByIdea(ctx, s.owner(), args.Idea)
		default:
			return nil, planSummary{}, fmt.Errorf("%w: id or idea is required", errInvalidArguments)
		}
		if err != nil {
			return nil, planSummary{}, fmt.Errorf("finding plan failed: %w", err)
		}
		if rec == nil {
			return nil, planSummary{}, plan.ErrPlanNotFound
		}

		result, err := jsonResult(rec)
		if err != nil {
			return nil, planSummary{}, err
		}
		return result, summarize(rec), nil
	})

	// plan_delete
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "plan_delete",
		Description: "Delete a saved plan",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args planDeleteInput) (_ *mcp.CallToolResult, _ planDeleteOutput, err error) {
		defer s.observe(ctx, "plan_delete")(&err)
		ctx = s.callerContext(ctx)

		if err := s.remover.Remove(ctx, s.owner(), args.ID); err != nil {
			return nil, planDeleteOutput{}, fmt.Errorf("deleting plan failed: %w", err)
		}
		return textResult(fmt.Sprintf("Plan deleted: %s", args.ID)), planDeleteOutput{ID: args.ID, Deleted: true}, nil
	})
}

// ===== QUOTA AND IDEA TOOLS =====

type quotaStatusInput struct{}

type quotaStatusOutput struct {
	Tier           string `json:"tier" jsonschema:"Subscription tier"`
	PlansGenerated int    `json:"plans_generated" jsonschema:"Generations used this period"`
	Limit          int    `json:"limit" jsonschema:"Generations allowed per period"`
	Remaining      int    `json:"remaining" jsonschema:"Generations left this period"`
	ResetAt        string `json:"reset_at,omitempty" jsonschema:"RFC 3339 time the counter resets"`
	Anonymous      bool   `json:"anonymous" jsonschema:"True when no account is configured"`
}

type ideaBrainstormInput struct {
	Concept string `json:"concept" jsonschema:"Broad concept to brainstorm startup ideas around"`
}

type ideaBrainstormOutput struct {
	Ideas []string `json:"ideas" jsonschema:"Suggested startup ideas"`
	Count int      `json:"count" jsonschema:"Number of ideas"`
}

func (s *Server) registerQuotaTools() {
	// quota_status
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "quota_status",
		Description: "Show the plan generation allowance of the configured account",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args quotaStatusInput) (_ *mcp.CallToolResult, _ quotaStatusOutput, err error) {
		defer s.observe(ctx, "quota_status")(&err)
		ctx = s.callerContext(ctx)

		st, err := s.planner.Quota(ctx, s.account)
		if err != nil {
			return nil, quotaStatusOutput{}, fmt.Errorf("quota status failed: %w", err)
		}
		out := quotaStatusOutput{
			Tier:           string(st.Tier),
			PlansGenerated: st.PlansGenerated,
			Limit:          st.Limit,
			Remaining:      st.Remaining,
			Anonymous:      st.Anonymous,
		}
		if !st.ResetAt.IsZero() {
			out.ResetAt = st.ResetAt.UTC().Format(time.RFC3339)
		}
		return textResult(fmt.Sprintf("%s tier: %d of %d plans remaining", out.Tier, out.Remaining, out.Limit)), out, nil
	})

	// idea_brainstorm
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "idea_brainstorm",
		Description: "Suggest startup ideas for a broad concept",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ideaBrainstormInput) (_ *mcp.CallToolResult, _ ideaBrainstormOutput, err error) {
		defer s.observe(ctx, "idea_brainstorm")(&err)
		ctx = s.callerContext(ctx)

		ideas, err := s.planner.Ideas(ctx, args.Concept)
		if err != nil {
			return nil, ideaBrainstormOutput{}, fmt.Errorf("brainstorm failed: %w", err)
		}
		return textResult(strings.Join(ideas, "\n")), ideaBrainstormOutput{Ideas: ideas, Count: len(ideas)}, nil
	})
}
