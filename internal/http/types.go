package http

import (
	"time"

	"github.com/fyrsmithlabs/launchplan/internal/directory"
	"github.com/fyrsmithlabs/launchplan/internal/plan"
	"github.com/fyrsmithlabs/launchplan/internal/quota"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status   string            `json:"status"`
	Version  string            `json:"version,omitempty"`
	Services map[string]string `json:"services"`
}

// GenerateRequest is the request body for POST /api/v1/plans/generate.
type GenerateRequest struct {
	Idea      string `json:"idea"`
	SessionID string `json:"session_id"`
}

// GenerationResponse describes a generation, either just completed or
// fetched later by ID.
type GenerationResponse struct {
	GenerationID         string               `json:"generation_id"`
	Idea                 string               `json:"idea"`
	CreatedAt            time.Time            `json:"created_at"`
	Plan                 plan.Bundle          `json:"plan"`
	Sections             []plan.SectionStatus `json:"sections"`
	WebsitePromptPending bool                 `json:"website_prompt_pending"`
	SavedPlanID          string               `json:"saved_plan_id,omitempty"`
	PersistError         string               `json:"persist_error,omitempty"`
	QuotaExhausted       bool                 `json:"quota_exhausted,omitempty"`
	Quota                *quota.Status        `json:"quota,omitempty"`
	// SessionID is the session an anonymous generation was saved under.
	SessionID string `json:"session_id,omitempty"`
}

// ListResponse is the response body for GET /api/v1/plans.
type ListResponse struct {
	Plans  []*plan.SavedPlanRecord `json:"plans"`
	Source directory.Source        `json:"source"`
	Error  string                  `json:"error,omitempty"`
}

// TierRequest is the request body for PUT /api/v1/subscription/tier.
type TierRequest struct {
	Tier string `json:"tier"`
}

// IdeasRequest is the request body for POST /api/v1/ideas.
type IdeasRequest struct {
	Concept string `json:"concept"`
}

// IdeasResponse is the response body for POST /api/v1/ideas.
type IdeasResponse struct {
	Ideas []string `json:"ideas"`
}

// TrendsResponse is the response body for GET /api/v1/trends.
type TrendsResponse struct {
	Keywords []plan.TrendingKeyword `json:"keywords"`
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Message string `json:"message"`
}

func generationResponse(p *plan.AggregatePlan) GenerationResponse {
	resp := GenerationResponse{
		GenerationID:         p.ID,
		Idea:                 p.Idea,
		CreatedAt:            p.CreatedAt,
		Plan:                 p.Snapshot(),
		Sections:             p.Statuses(),
		WebsitePromptPending: p.WebsitePromptPending(),
	}
	if rec, err := p.Persisted(); rec != nil {
		resp.SavedPlanID = rec.ID
	} else if err != nil {
		resp.PersistError = err.Error()
	}
	return resp
}
