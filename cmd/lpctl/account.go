package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	httpserver "github.com/fyrsmithlabs/launchplan/internal/http"
	"github.com/fyrsmithlabs/launchplan/internal/quota"
)

func printQuota(cmd *cobra.Command, st *quota.Status) {
	out := cmd.OutOrStdout()
	if st.Anonymous {
		fmt.Fprintln(out, "Anonymous: generations are not charged (pass --token to use an account)")
		return
	}
	fmt.Fprintf(out, "Tier: %s\n", st.Tier)
	fmt.Fprintf(out, "Used: %d of %d\n", st.PlansGenerated, st.Limit)
	fmt.Fprintf(out, "Remaining: %d\n", st.Remaining)
	fmt.Fprintf(out, "Resets: %s\n", st.ResetAt.Format("2006-01-02"))
}

func newQuotaCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "quota",
		Short: "Show the plan generation quota of the account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var st quota.Status
			if _, _, err := newClient(opts).do(cmd.Context(), http.MethodGet, "/api/v1/subscription", nil, &st); err != nil {
				return fmt.Errorf("failed to fetch quota: %w", err)
			}
			if opts.outputJSON {
				return outputJSON(cmd.OutOrStdout(), st)
			}
			printQuota(cmd, &st)
			return nil
		},
	}
}

func newUpgradeCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade <basic|pro|enterprise>",
		Short: "Change the subscription tier of the account",
		Long: `Change the subscription tier of the account. The generations already
used this period still count against the new limit.

Examples:
  lpctl upgrade pro --token $LAUNCHPLAN_TOKEN`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.token == "" {
				return fmt.Errorf("--token is required to change the tier")
			}
			var st quota.Status
			req := httpserver.TierRequest{Tier: args[0]}
			if _, _, err := newClient(opts).do(cmd.Context(), http.MethodPut, "/api/v1/subscription/tier", req, &st); err != nil {
				return fmt.Errorf("failed to change tier: %w", err)
			}
			if opts.outputJSON {
				return outputJSON(cmd.OutOrStdout(), st)
			}
			printQuota(cmd, &st)
			return nil
		},
	}
}

func newIdeasCmd(opts *cliOptions) *cobra.Command {
	var trends bool

	cmd := &cobra.Command{
		Use:   "ideas <concept>",
		Short: "Brainstorm startup ideas",
		Long: `Brainstorm startup ideas for a broad concept, or list trending
keywords with --trends.

Examples:
  lpctl ideas "pet care"
  lpctl ideas --trends`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(opts)
			out := cmd.OutOrStdout()

			if trends {
				var resp httpserver.TrendsResponse
				if _, _, err := c.do(cmd.Context(), http.MethodGet, "/api/v1/trends", nil, &resp); err != nil {
					return fmt.Errorf("failed to fetch trends: %w", err)
				}
				if opts.outputJSON {
					return outputJSON(out, resp)
				}
				for _, kw := range resp.Keywords {
					fmt.Fprintf(out, "%s (%s, confidence %.2f)\n", kw.Keyword, kw.Category, kw.Confidence)
				}
				return nil
			}

			if len(args) == 0 {
				return fmt.Errorf("a concept is required (or pass --trends)")
			}
			var resp httpserver.IdeasResponse
			req := httpserver.IdeasRequest{Concept: strings.Join(args, " ")}
			if _, _, err := c.do(cmd.Context(), http.MethodPost, "/api/v1/ideas", req, &resp); err != nil {
				return fmt.Errorf("failed to brainstorm ideas: %w", err)
			}
			if opts.outputJSON {
				return outputJSON(out, resp)
			}
			for _, idea := range resp.Ideas {
				fmt.Fprintf(out, "- %s\n", idea)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&trends, "trends", false, "List trending keywords instead")
	return cmd
}

func newHealthCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check launchplan server health",
		Long: `Check the health status of the launchplan HTTP server.

Examples:
  lpctl health
  lpctl health --server http://localhost:9090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(opts)
			c.http.Timeout = 5 * time.Second

			var resp httpserver.HealthResponse
			if _, _, err := c.do(cmd.Context(), http.MethodGet, "/health", nil, &resp); err != nil {
				return fmt.Errorf("failed to reach %s: %w", opts.serverURL, err)
			}
			out := cmd.OutOrStdout()
			if opts.outputJSON {
				return outputJSON(out, resp)
			}
			fmt.Fprintf(out, "Server Status: %s\n", resp.Status)
			fmt.Fprintf(out, "Server URL: %s\n", opts.serverURL)
			if resp.Version != "" {
				fmt.Fprintf(out, "Version: %s\n", resp.Version)
			}
			for name, state := range resp.Services {
				fmt.Fprintf(out, "  %s: %s\n", name, state)
			}
			return nil
		},
	}
}
