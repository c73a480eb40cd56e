// Package http provides the launchplan HTTP API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/launchplan/internal/config"
	"github.com/fyrsmithlabs/launchplan/internal/directory"
	"github.com/fyrsmithlabs/launchplan/internal/logging"
	"github.com/fyrsmithlabs/launchplan/internal/plan"
	"github.com/fyrsmithlabs/launchplan/internal/planner"
)

// Remover deletes saved plans.
type Remover interface {
	Remove(ctx context.Context, owner plan.Owner, id string) error
}

// Deps are the services behind the API.
type Deps struct {
	Planner   *planner.Service
	Directory *directory.Directory
	Remover   Remover
	Auth      *Authenticator
	// NATS enables the generation event stream. It may be nil.
	NATS          *nats.Conn
	Logger        *logging.Logger
	MeterProvider metric.MeterProvider
	Version       string
}

// Server serves the launchplan API.
type Server struct {
	echo      *echo.Echo
	planner   *planner.Service
	directory *directory.Directory
	remover   Remover
	auth      *Authenticator
	nc        *nats.Conn
	logger    *logging.Logger
	config    config.ServerConfig
	version   string
}

// NewServer creates a new HTTP server.
func NewServer(deps Deps, cfg config.ServerConfig) (*Server, error) {
	if deps.Planner == nil {
		return nil, errors.New("planner is required")
	}
	if deps.Directory == nil {
		return nil, errors.New("directory is required")
	}
	if deps.Remover == nil {
		return nil, errors.New("plan remover is required")
	}
	if deps.Auth == nil {
		return nil, errors.New("authenticator is required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Nop()
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 8480
	}

	logger := deps.Logger.Named("http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			ctx := logging.WithRequestID(req.Context(), c.Response().Header().Get(echo.HeaderXRequestID))
			c.SetRequest(req.WithContext(ctx))

			err := next(c)

			logger.Info(ctx, "http request",
				zap.String("method", req.Method),
				zap.String("route", c.Path()),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return err
		}
	})
	e.Use(NewHTTPMetrics(logger.Underlying(), deps.MeterProvider).MetricsMiddleware())

	s := &Server{
		echo:      e,
		planner:   deps.Planner,
		directory: deps.Directory,
		remover:   deps.Remover,
		auth:      deps.Auth,
		nc:        deps.NATS,
		logger:    logger,
		config:    cfg,
		version:   deps.Version,
	}
	s.registerRoutes()
	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1", s.auth.Middleware())
	v1.POST("/plans/generate", s.handleGenerate)
	v1.GET("/generations/:id", s.handleGeneration)
	v1.GET("/generations/:id/events", s.handleGenerationEvents)
	v1.GET("/plans", s.handleListPlans)
	v1.GET("/plans/search", s.handleSearchPlans)
	v1.GET("/plans/:id", s.handleGetPlan)
	v1.DELETE("/plans/:id", s.handleDeletePlan)
	v1.GET("/plans/:id/export", s.handleExportPlan)
	v1.GET("/subscription", s.handleSubscription)
	v1.PUT("/subscription/tier", s.handleChangeTier)
	v1.POST("/ideas", s.handleIdeas)
	v1.GET("/trends", s.handleTrends)
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	services := map[string]string{"nats": "disabled"}
	if s.nc != nil {
		services["nats"] = "ok"
		if !s.nc.IsConnected() {
			services["nats"] = "disconnected"
		}
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: s.version, Services: services})
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
