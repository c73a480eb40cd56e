package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/launchplan/internal/directory"
	"github.com/fyrsmithlabs/launchplan/internal/logging"
	"github.com/fyrsmithlabs/launchplan/internal/plan"
	"github.com/fyrsmithlabs/launchplan/internal/planner"
)

// Remover deletes saved plans.
type Remover interface {
	Remove(ctx context.Context, owner plan.Owner, id string) error
}

// Server is an MCP server backed by the planner and directory services.
type Server struct {
	mcp       *mcp.Server
	planner   *planner.Service
	directory *directory.Directory
	remover   Remover
	account   string
	metrics   *Metrics
	logger    *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "launchplan")
	Name string

	// Version is the server version (default: "dev")
	Version string

	// Account is the account every tool call acts for. Empty is anonymous.
	Account string

	Logger        *zap.Logger
	MeterProvider metric.MeterProvider
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "launchplan",
		Version: "dev",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates a new MCP server with the given services.
func NewServer(cfg *Config, svc *planner.Service, dir *directory.Directory, remover Remover) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if svc == nil {
		return nil, errors.New("planner is required")
	}
	if dir == nil {
		return nil, errors.New("directory is required")
	}
	if remover == nil {
		return nil, errors.New("plan remover is required")
	}
	if cfg.Name == "" {
		cfg.Name = "launchplan"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	s := &Server{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		planner:   svc,
		directory: dir,
		remover:   remover,
		account:   cfg.Account,
		metrics:   NewMetrics(cfg.Logger, cfg.MeterProvider),
		logger:    cfg.Logger.Named("mcp"),
	}
	s.registerTools()
	return s, nil
}

// Run starts the MCP server on the stdio transport.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport", zap.Bool("anonymous", s.account == ""))
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Connect serves a single session over t. Run is the stdio shorthand.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, t, nil)
}

func (s *Server) callerContext(ctx context.Context) context.Context {
	if s.account == "" {
		return ctx
	}
	return logging.WithAccountID(ctx, s.account)
}

// owner is the account the server acts for. Without one, plans belong to the
// local user of the device.
func (s *Server) owner() plan.Owner {
	return plan.Account(s.account)
}
