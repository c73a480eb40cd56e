// Package main implements lpctl, a CLI for the launchplan HTTP API.
package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

// cliOptions are the persistent flags shared by every command.
type cliOptions struct {
	serverURL  string
	token      string
	sessionID  string
	outputJSON bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:   "lpctl",
		Short: "CLI for the launchplan HTTP API",
		Long: `lpctl is a command-line interface for the launchplan HTTP API.
It generates startup plans, manages saved plans and shows the quota of the
authenticated account.

Without --token every call is anonymous: plans are not charged and are kept
only in the server's device store, under the --session-id session.`,
		Version:      version,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.serverURL, "server", envOr("LAUNCHPLAN_SERVER", "http://localhost:8480"), "launchplan server URL")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("LAUNCHPLAN_TOKEN"), "bearer token for the account")
	root.PersistentFlags().StringVar(&opts.sessionID, "session-id", envOr("LAUNCHPLAN_SESSION", "lpctl"), "session ID; anonymous plans are kept per session and an idea is saved at most once per session")
	root.PersistentFlags().BoolVar(&opts.outputJSON, "json", false, "Output results as JSON")

	root.AddCommand(
		newGenerateCmd(opts),
		newListCmd(opts),
		newShowCmd(opts),
		newDeleteCmd(opts),
		newExportCmd(opts),
		newQuotaCmd(opts),
		newUpgradeCmd(opts),
		newIdeasCmd(opts),
		newHealthCmd(opts),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
