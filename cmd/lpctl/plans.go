package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	httpserver "github.com/fyrsmithlabs/launchplan/internal/http"
	"github.com/fyrsmithlabs/launchplan/internal/plan"
)

func newGenerateCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <idea>",
		Short: "Generate a startup plan",
		Long: `Generate a startup plan for an idea.

Sections that fail are reported as unavailable; the plan is still returned.
The website prompt may still be pending when the command returns; fetch it
later with "lpctl show".

Examples:
  # Generate a plan
  lpctl generate "AI tutoring app for high school students"

  # Output the full plan as JSON
  lpctl generate "Eco packaging marketplace" --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := httpserver.GenerateRequest{
				Idea:      strings.Join(args, " "),
				SessionID: opts.sessionID,
			}
			var resp httpserver.GenerationResponse
			if _, _, err := newClient(opts).do(cmd.Context(), http.MethodPost, "/api/v1/plans/generate", req, &resp); err != nil {
				return fmt.Errorf("failed to generate plan: %w", err)
			}

			out := cmd.OutOrStdout()
			if opts.outputJSON {
				return outputJSON(out, resp)
			}

			fmt.Fprintf(out, "Plan generated for %q\n", resp.Idea)
			fmt.Fprintf(out, "Generation: %s\n", resp.GenerationID)
			if resp.Plan.Plan != nil {
				fmt.Fprintf(out, "Overview: %s\n", resp.Plan.Plan.Overview)
			}
			fmt.Fprintln(out)
			printSections(out, resp.Sections)
			if resp.WebsitePromptPending {
				fmt.Fprintln(out, "\nWebsite prompt is still being generated.")
			}
			if resp.Quota != nil && !resp.Quota.Anonymous {
				fmt.Fprintf(out, "\nQuota: %d of %d plans remaining\n", resp.Quota.Remaining, resp.Quota.Limit)
			}
			return nil
		},
	}
	return cmd
}

func printSections(w io.Writer, statuses []plan.SectionStatus) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SECTION\tSTATE\tERROR")
	for _, st := range statuses {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", st.Kind, st.State, truncate(st.Error, 60))
	}
	tw.Flush()
}

func newListCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved plans",
		Long: `List saved plans, newest first.

When the hosted store is unreachable the server answers from the device
mirror and the warning is printed to stderr.

Examples:
  lpctl list
  lpctl list --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp httpserver.ListResponse
			if _, _, err := newClient(opts).do(cmd.Context(), http.MethodGet, "/api/v1/plans", nil, &resp); err != nil {
				return fmt.Errorf("failed to list plans: %w", err)
			}
			if resp.Error != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "[lpctl] warning: %s\n", resp.Error)
			}

			out := cmd.OutOrStdout()
			if opts.outputJSON {
				return outputJSON(out, resp)
			}
			if len(resp.Plans) == 0 {
				fmt.Fprintln(out, "No saved plans found")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tIDEA\tCREATED\tWEBSITE")
			for _, rec := range resp.Plans {
				website := ""
				if rec.WebsitePrompt != nil {
					website = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					truncate(rec.ID, 36),
					truncate(rec.Idea, 40),
					rec.CreatedAt.Format("2006-01-02 15:04"),
					website,
				)
			}
			w.Flush()
			fmt.Fprintf(out, "\nSource: %s\n", resp.Source)
			return nil
		},
	}
}

func newShowCmd(opts *cliOptions) *cobra.Command {
	var byIdea bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a saved plan",
		Long: `Show a saved plan by ID, or by idea text with --idea.

Examples:
  lpctl show 3f2a9c1e-...
  lpctl show --idea "eco packaging"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/plans/" + url.PathEscape(args[0])
			if byIdea {
				path = "/api/v1/plans/search?idea=" + url.QueryEscape(strings.Join(args, " "))
			}

			var rec plan.SavedPlanRecord
			if _, _, err := newClient(opts).do(cmd.Context(), http.MethodGet, path, nil, &rec); err != nil {
				return fmt.Errorf("failed to fetch plan: %w", err)
			}

			out := cmd.OutOrStdout()
			if opts.outputJSON {
				return outputJSON(out, rec)
			}

			fmt.Fprintf(out, "ID: %s\n", rec.ID)
			fmt.Fprintf(out, "Idea: %s\n", rec.Idea)
			fmt.Fprintf(out, "Created: %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05"))
			if rec.Plan != nil {
				fmt.Fprintf(out, "\n%s\n", rec.Plan.Overview)
				for i, step := range rec.Plan.Steps {
					fmt.Fprintf(out, "  %d. %s\n", i+1, step.Title)
				}
			}
			if rec.MarketMetrics != nil {
				fmt.Fprintf(out, "\nMarket size: %s, growth: %s\n", rec.MarketMetrics.MarketSize, rec.MarketMetrics.GrowthRate)
			}
			if len(rec.Competitors) > 0 {
				names := make([]string, 0, len(rec.Competitors))
				for _, c := range rec.Competitors {
					names = append(names, c.Name)
				}
				fmt.Fprintf(out, "Competitors: %s\n", strings.Join(names, ", "))
			}
			if rec.WebsitePrompt != nil {
				fmt.Fprintf(out, "\nWebsite prompt:\n%s\n", *rec.WebsitePrompt)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&byIdea, "idea", false, "Look the plan up by idea text instead of ID")
	return cmd
}

func newDeleteCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/plans/" + url.PathEscape(args[0])
			if _, _, err := newClient(opts).do(cmd.Context(), http.MethodDelete, path, nil, nil); err != nil {
				return fmt.Errorf("failed to delete plan: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Plan deleted: %s\n", args[0])
			return nil
		},
	}
}

func newExportCmd(opts *cliOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Download a saved plan as JSON",
		Long: `Download a saved plan as JSON.

The file is named after the server's attachment name unless --output is set.
Use --output - to write to stdout.

Examples:
  lpctl export 3f2a9c1e-...
  lpctl export 3f2a9c1e-... --output plan.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/plans/" + url.PathEscape(args[0]) + "/export"
			data, header, err := newClient(opts).do(cmd.Context(), http.MethodGet, path, nil, nil)
			if err != nil {
				return fmt.Errorf("failed to export plan: %w", err)
			}

			if output == "-" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			name := output
			if name == "" {
				name = attachmentName(header.Get("Content-Disposition"), args[0])
			}
			if err := os.WriteFile(name, data, 0600); err != nil {
				return fmt.Errorf("failed to write %s: %w", name, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Plan exported to %s\n", name)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: server-provided name)")
	return cmd
}

// attachmentName extracts the base filename from a Content-Disposition
// header, falling back to a name derived from id.
func attachmentName(disposition, id string) string {
	const key = "filename="
	if i := strings.Index(disposition, key); i >= 0 {
		name := strings.Trim(disposition[i+len(key):], `"; `)
		if base := filepath.Base(name); base != "." && base != "/" && base != "" {
			return base
		}
	}
	return "startup-plan-" + filepath.Base(id) + ".json"
}
