package main

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuGH/sportsdvr/internal/version"
)

const defaultAddr = "http://localhost:8089"

type commandContext struct {
	addr    string
	timeout time.Duration
	json    bool
}

func (c *commandContext) client() *apiClient {
	return newAPIClient(c.addr, c.timeout)
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "sportsctl",
		Short:         "Control a running sportsdvr daemon",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	addr := strings.TrimSpace(os.Getenv("SPORTSDVR_API"))
	if addr == "" {
		addr = defaultAddr
	}
	rootCmd.PersistentFlags().StringVar(&ctx.addr, "addr", addr, "Daemon API base URL (env SPORTSDVR_API)")
	rootCmd.PersistentFlags().DurationVar(&ctx.timeout, "timeout", 10*time.Minute, "Request timeout")
	rootCmd.PersistentFlags().BoolVar(&ctx.json, "json", false, "Print raw JSON")

	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newScoreCommand(ctx))
	rootCmd.AddCommand(newSubsCommand(ctx))
	rootCmd.AddCommand(newScanCommand(ctx))
	rootCmd.AddCommand(newTimersCommand(ctx))
	rootCmd.AddCommand(newAliasesCommand(ctx))
	rootCmd.AddCommand(newRetentionCommand(ctx))

	return rootCmd
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

const stampLayout = "2006-01-02 15:04"

func formatStamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(stampLayout)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
