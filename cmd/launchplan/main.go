// Launchplan serves the startup plan API.
//
// The binary loads configuration, wires the stores, section generators and
// quota gate, and serves the HTTP API. The mcp subcommand serves the same
// operations as MCP tools over stdio instead.
//
// Usage:
//
//	# Start the HTTP API with defaults
//	launchplan
//
//	# Configure via environment
//	SERVER_HTTP_PORT=9090 LLM_API_KEY=sk-... launchplan
//
//	# Serve MCP tools over stdio for the configured account
//	MCP_ACCOUNT=acct-42 launchplan mcp
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/launchplan/internal/config"
	"github.com/fyrsmithlabs/launchplan/internal/mcp"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "launchplan",
		Short: "Startup plan generation service",
		Long: `launchplan turns a startup idea into a multi-section business plan.

Running it without a subcommand starts the HTTP API.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/launchplan/config.yaml)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(cmd)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "mcp",
		Short: "Serve plan tools over the MCP stdio transport",
		Long: `Serve the plan tools over stdio for MCP clients.

Every tool call acts for the account in mcp.account (MCP_ACCOUNT). When it
is empty, calls are anonymous and plans are kept in the device store only.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runMCP(cmd.Context(), cfg)
		},
	})
	return root
}

func printVersion(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "launchplan by Fyrsmith Labs\n")
	fmt.Fprintf(out, "Version:    %s\n", version)
	fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
	fmt.Fprintf(out, "Build Date: %s\n", buildDate)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// runServer starts the HTTP API and blocks until ctx is cancelled, then
// drains in-flight requests and background saves.
func runServer(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := a.httpServer()
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	a.zap.Info("launchplan started",
		zap.String("addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)),
		zap.Bool("hosted_store", a.pool != nil),
		zap.Bool("events", a.nc != nil),
		zap.String("version", version))

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.zap.Info("shutting down", zap.Duration("timeout", cfg.Server.ShutdownTimeout.Duration()))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.zap.Warn("http shutdown incomplete", zap.Error(err))
	}
	return nil
}

// runMCP serves the tools on stdio. Logs go to stderr so stdout carries
// only protocol messages.
func runMCP(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg, appOptions{stdio: true})
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := mcp.NewServer(&mcp.Config{
		Name:          "launchplan",
		Version:       version,
		Account:       cfg.MCP.Account,
		Logger:        a.zap,
		MeterProvider: a.tel.MeterProvider(),
	}, a.planner, a.directory, a.layer)
	if err != nil {
		return fmt.Errorf("failed to create mcp server: %w", err)
	}
	return srv.Run(ctx)
}
