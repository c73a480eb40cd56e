package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/launchplan/internal/events"
	"github.com/fyrsmithlabs/launchplan/internal/plan"
	"github.com/fyrsmithlabs/launchplan/internal/planner"
	"github.com/fyrsmithlabs/launchplan/internal/quota"
)

// toHTTPError maps service errors to API status codes.
func (s *Server) toHTTPError(c echo.Context, err error) error {
	var (
		genErr     *plan.GenerationError
		upErr      *plan.UpstreamError
		persistErr *plan.PersistenceError
	)
	switch {
	case errors.Is(err, plan.ErrEmptyIdea), errors.Is(err, quota.ErrInvalidTier):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, quota.ErrAccountRequired):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, plan.ErrQuotaExceeded):
		return echo.NewHTTPError(http.StatusPaymentRequired, err.Error())
	case errors.Is(err, planner.ErrGenerationInFlight):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, plan.ErrPlanNotFound), errors.Is(err, planner.ErrGenerationNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.As(err, &genErr), errors.As(err, &upErr):
		s.logger.Warn(c.Request().Context(), "upstream generation failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	case errors.As(err, &persistErr):
		s.logger.Error(c.Request().Context(), "persistence failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	s.logger.Error(c.Request().Context(), "request failed", zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}

func (s *Server) handleGenerate(c echo.Context) error {
	var req GenerateRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid generate request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	o := owner(c, req.SessionID)
	session := req.SessionID
	if o.Anonymous() {
		session = o.SessionID
	}
	res, err := s.planner.Generate(c.Request().Context(), o, session, req.Idea)
	if err != nil {
		return s.toHTTPError(c, err)
	}

	resp := generationResponse(res.Plan)
	resp.QuotaExhausted = res.QuotaExhausted
	resp.Quota = res.Quota
	resp.SessionID = o.SessionID
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGeneration(c echo.Context) error {
	p, err := s.planner.Generation(owner(c, ""), c.Param("id"))
	if err != nil {
		return s.toHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, generationResponse(p))
}

// handleGenerationEvents streams a generation's events as SSE. The stream
// ends once the website prompt settles. A generation that has already
// finished gets a single website_prompt event carrying the full snapshot.
func (s *Server) handleGenerationEvents(c echo.Context) error {
	if s.nc == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "event streaming is disabled")
	}
	o := owner(c, "")
	p, err := s.planner.Generation(o, c.Param("id"))
	if err != nil {
		return s.toHTTPError(c, err)
	}

	sub, err := events.Subscribe(s.nc, events.GenerationSubject(o.AccountID, p.ID))
	if err != nil {
		return s.toHTTPError(c, err)
	}
	defer func() {
		_ = sub.Close()
	}()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	if !p.WebsitePromptPending() {
		body, err := json.Marshal(generationResponse(p))
		if err != nil {
			return err
		}
		return events.WriteEvent(res, events.KindWebsitePrompt, body)
	}
	return sub.Stream(c.Request().Context(), res)
}

func (s *Server) handleListPlans(c echo.Context) error {
	listing, err := s.directory.List(c.Request().Context(), owner(c, ""))
	if err != nil {
		return s.toHTTPError(c, err)
	}
	resp := ListResponse{Plans: listing.Plans, Source: listing.Source}
	if listing.Err != nil {
		resp.Error = listing.Err.Error()
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSearchPlans(c echo.Context) error {
	idea := c.QueryParam("idea")
	if idea == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "idea query parameter is required")
	}
	rec, err := s.directory.FindByIdea(c.Request().Context(), owner(c, ""), idea)
	if err != nil {
		return s.toHTTPError(c, err)
	}
	if rec == nil {
		return s.toHTTPError(c, plan.ErrPlanNotFound)
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) handleGetPlan(c echo.Context) error {
	rec, err := s.directory.FindByID(c.Request().Context(), owner(c, ""), c.Param("id"))
	if err != nil {
		return s.toHTTPError(c, err)
	}
	if rec == nil {
		return s.toHTTPError(c, plan.ErrPlanNotFound)
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) handleDeletePlan(c echo.Context) error {
	if err := s.remover.Remove(c.Request().Context(), owner(c, ""), c.Param("id")); err != nil {
		return s.toHTTPError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleExportPlan(c echo.Context) error {
	id := c.Param("id")
	data, err := s.directory.Export(c.Request().Context(), owner(c, ""), id)
	if err != nil {
		return s.toHTTPError(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", "startup-plan-"+id+".json"))
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, data)
}

func (s *Server) handleSubscription(c echo.Context) error {
	st, err := s.planner.Quota(c.Request().Context(), accountID(c))
	if err != nil {
		return s.toHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) handleChangeTier(c echo.Context) error {
	var req TierRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	st, err := s.planner.ChangeTier(c.Request().Context(), accountID(c), req.Tier)
	if err != nil {
		return s.toHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) handleIdeas(c echo.Context) error {
	var req IdeasRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ideas, err := s.planner.Ideas(c.Request().Context(), req.Concept)
	if err != nil {
		return s.toHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, IdeasResponse{Ideas: ideas})
}

func (s *Server) handleTrends(c echo.Context) error {
	keywords, err := s.planner.Trends(c.Request().Context())
	if err != nil {
		return s.toHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, TrendsResponse{Keywords: keywords})
}
