package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuGH/sportsdvr/internal/api"
	"github.com/ManuGH/sportsdvr/internal/dvr"
	"github.com/ManuGH/sportsdvr/internal/retention"
	"github.com/ManuGH/sportsdvr/internal/scoring"
	"github.com/ManuGH/sportsdvr/internal/subscription"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var st api.StatusResponse
			if err := ctx.client().get(cmd.Context(), "/api/status", &st); err != nil {
				return err
			}
			if ctx.json {
				return writeJSON(cmd, st)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Version:   %s\n", st.Version)
			fmt.Fprintf(out, "Uptime:    %s\n", time.Duration(st.UptimeSeconds)*time.Second)
			fmt.Fprintf(out, "Receiver:  %s\n", st.Receiver)
			fmt.Fprintf(out, "Budget:    %d\n", st.Budget)
			fmt.Fprintf(out, "Horizon:   %dh\n", st.HorizonHours)
			if st.LastScan != nil {
				fmt.Fprintf(out, "Last scan: %s (%d new, %d already scheduled)\n", st.LastScan.Status, st.LastScan.NewRecordings, st.LastScan.AlreadyScheduled)
			} else {
				fmt.Fprintln(out, "Last scan: none")
			}
			return nil
		},
	}
}

func newScoreCommand(ctx *commandContext) *cobra.Command {
	var req api.ScoreRequest
	cmd := &cobra.Command{
		Use:   "score <title>",
		Short: "Score a program title",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Title = strings.Join(args, " ")
			var res scoring.ScoredProgram
			if err := ctx.client().post(cmd.Context(), "/api/score", req, &res); err != nil {
				return err
			}
			if ctx.json {
				return writeJSON(cmd, res)
			}
			rows := [][]string{
				{"clean title", res.CleanTitle},
				{"score", strconv.Itoa(res.Score)},
				{"likely game", yesNo(res.IsLikelyGame)},
				{"possible game", yesNo(res.IsPossibleGame)},
				{"replay", yesNo(res.IsReplay)},
				{"matchup", yesNo(res.HasMatchup)},
			}
			if res.Team1 != "" || res.Team2 != "" {
				rows = append(rows, []string{"teams", res.Team1 + " / " + res.Team2})
			}
			if res.League != "" {
				rows = append(rows, []string{"league", res.League})
			}
			if len(res.Signals) > 0 {
				rows = append(rows, []string{"signals", strings.Join(res.Signals, ", ")})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Channel, "channel", "", "Channel name")
	cmd.Flags().StringVar(&req.Description, "description", "", "Program description")
	cmd.Flags().BoolVar(&req.SportsHint, "sports", false, "Guide marks the program as sports")
	return cmd
}

func newSubsCommand(ctx *commandContext) *cobra.Command {
	subsCmd := &cobra.Command{
		Use:     "subs",
		Aliases: []string{"subscriptions"},
		Short:   "Manage subscriptions",
	}

	subsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List subscriptions in priority order",
		RunE: func(cmd *cobra.Command, args []string) error {
			var list api.SubscriptionList
			if err := ctx.client().get(cmd.Context(), "/api/subscriptions", &list); err != nil {
				return err
			}
			if ctx.json {
				return writeJSON(cmd, list)
			}
			printSubscriptions(cmd, list.Subscriptions)
			return nil
		},
	})

	subsCmd.AddCommand(&cobra.Command{
		Use:   "toggle <id>",
		Short: "Enable or disable a subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var sub subscription.Subscription
			if err := ctx.client().post(cmd.Context(), "/api/subscriptions/"+url.PathEscape(args[0])+"/toggle", nil, &sub); err != nil {
				return err
			}
			state := "disabled"
			if sub.Enabled {
				state = "enabled"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", sub.Name, state)
			return nil
		},
	})

	subsCmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.client().do(cmd.Context(), http.MethodDelete, "/api/subscriptions/"+url.PathEscape(args[0]), nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	})

	return subsCmd
}

func printSubscriptions(cmd *cobra.Command, subs []subscription.Subscription) {
	if len(subs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No subscriptions")
		return
	}
	rows := make([][]string, 0, len(subs))
	for _, s := range subs {
		rows = append(rows, []string{
			s.ID,
			s.Name,
			string(s.Kind),
			strconv.Itoa(s.Priority),
			strconv.Itoa(s.KeepLast),
			strconv.Itoa(s.RetentionDays),
			yesNo(s.Enabled),
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"ID", "Name", "Kind", "Priority", "Keep", "Days", "Enabled"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
	))
}

func newScanCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a scan now",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dryRun {
				var report dvr.ScanReport
				if err := ctx.client().post(cmd.Context(), "/api/scan/dry-run", nil, &report); err != nil {
					return err
				}
				if ctx.json {
					return writeJSON(cmd, report)
				}
				printReport(cmd, &report)
				return nil
			}
			var res api.ScanResponse
			if err := ctx.client().post(cmd.Context(), "/api/scan", nil, &res); err != nil {
				return err
			}
			if ctx.json {
				return writeJSON(cmd, res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Scan %s: %d matches, %d new recordings, %d already scheduled\n",
				res.Status, res.MatchesFound, res.NewRecordings, res.AlreadyScheduled)
			if res.Message != "" {
				fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			}
			return nil
		},
	}
	scanCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Plan without creating timers")

	scanCmd.AddCommand(&cobra.Command{
		Use:   "last",
		Short: "Show the last scan report",
		RunE: func(cmd *cobra.Command, args []string) error {
			var report dvr.ScanReport
			if err := ctx.client().get(cmd.Context(), "/api/scan/last", &report); err != nil {
				return err
			}
			if ctx.json {
				return writeJSON(cmd, report)
			}
			printReport(cmd, &report)
			return nil
		},
	})

	scanCmd.AddCommand(&cobra.Command{
		Use:   "cache",
		Short: "List programs already scheduled",
		RunE: func(cmd *cobra.Command, args []string) error {
			var list api.ScheduledList
			if err := ctx.client().get(cmd.Context(), "/api/scan/cache", &list); err != nil {
				return err
			}
			if ctx.json {
				return writeJSON(cmd, list)
			}
			if len(list.Entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Scheduled cache is empty")
				return nil
			}
			rows := make([][]string, 0, len(list.Entries))
			for _, e := range list.Entries {
				rows = append(rows, []string{formatStamp(e.Start), e.Title, e.Channel, e.SubscriptionID})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Start", "Title", "Channel", "Subscription"}, rows, nil))
			return nil
		},
	})

	return scanCmd
}

func printReport(cmd *cobra.Command, r *dvr.ScanReport) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s (%s) %s, budget %d\n", r.RunID, r.Trigger, r.Status, r.Budget)
	if r.Message != "" {
		fmt.Fprintln(out, r.Message)
	}
	s := r.Summary
	fmt.Fprintf(out, "Channels: %d (%d failed)  Programs: %d  Matched: %d  Planned: %d  Created: %d\n",
		s.ChannelsTotal, s.ChannelsFailed, s.ProgramsFetched, s.Matched, s.TimersPlanned, s.TimersCreated)
	if len(r.Decisions) == 0 {
		return
	}
	rows := make([][]string, 0, len(r.Decisions))
	for _, d := range r.Decisions {
		rows = append(rows, []string{
			formatStamp(d.Program.Start),
			d.Program.Title,
			d.Program.ChannelName,
			d.SubscriptionName,
			string(d.Action),
			strconv.Itoa(d.Scored.Score),
			d.Reason,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Start", "Title", "Channel", "Subscription", "Action", "Score", "Reason"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))
}

func newTimersCommand(ctx *commandContext) *cobra.Command {
	timersCmd := &cobra.Command{
		Use:   "timers",
		Short: "Bulk timer operations",
	}
	timersCmd.AddCommand(&cobra.Command{
		Use:   "cancel-managed",
		Short: "Cancel every timer this scheduler created",
		RunE: func(cmd *cobra.Command, args []string) error {
			var res dvr.CancelResult
			if err := ctx.client().post(cmd.Context(), "/api/timers/cancel-managed", nil, &res); err != nil {
				return err
			}
			if ctx.json {
				return writeJSON(cmd, res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancelled %d timers, %d failed\n", res.Cancelled, res.Failed)
			for _, e := range res.Errors {
				fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", e)
			}
			return nil
		},
	})
	timersCmd.AddCommand(&cobra.Command{
		Use:   "cancel-all",
		Short: "Cancel every pending timer on the receiver",
		RunE: func(cmd *cobra.Command, args []string) error {
			var res api.CountResponse
			if err := ctx.client().post(cmd.Context(), "/api/timers/cancel-all", nil, &res); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancelled %d timers\n", res.Count)
			return nil
		},
	})
	return timersCmd
}

func newAliasesCommand(ctx *commandContext) *cobra.Command {
	aliasesCmd := &cobra.Command{
		Use:   "aliases",
		Short: "Inspect team and league aliases",
	}
	aliasesCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List known aliases",
		RunE: func(cmd *cobra.Command, args []string) error {
			var list api.AliasList
			if err := ctx.client().get(cmd.Context(), "/api/aliases", &list); err != nil {
				return err
			}
			if ctx.json {
				return writeJSON(cmd, list)
			}
			rows := make([][]string, 0, len(list.Aliases))
			for _, a := range list.Aliases {
				rows = append(rows, []string{a.Canonical, strings.Join(a.Aliases, ", "), yesNo(a.Custom)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Canonical", "Aliases", "Custom"}, rows, nil))
			return nil
		},
	})
	return aliasesCmd
}

func newRetentionCommand(ctx *commandContext) *cobra.Command {
	retentionCmd := &cobra.Command{
		Use:   "retention",
		Short: "Plan or run recording retention",
	}
	run := func(path string) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			var report retention.Report
			var err error
			if path == "/api/retention/plan" {
				err = ctx.client().get(cmd.Context(), path, &report)
			} else {
				err = ctx.client().post(cmd.Context(), path, nil, &report)
			}
			if err != nil {
				return err
			}
			if ctx.json {
				return writeJSON(cmd, report)
			}
			printRetention(cmd, &report)
			return nil
		}
	}
	retentionCmd.AddCommand(&cobra.Command{
		Use:   "plan",
		Short: "Show which recordings a run would delete",
		RunE:  run("/api/retention/plan"),
	})
	retentionCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Delete expired recordings now",
		RunE:  run("/api/retention/run"),
	})
	return retentionCmd
}

func printRetention(cmd *cobra.Command, r *retention.Report) {
	out := cmd.OutOrStdout()
	mode := "run"
	if r.DryRun {
		mode = "dry run"
	}
	fmt.Fprintf(out, "Retention %s: %d evaluated, %d protected, %d deleted, %d failed\n",
		mode, r.Evaluated, r.Protected, r.Deleted, r.Failed)
	if len(r.Planned) == 0 {
		return
	}
	rows := make([][]string, 0, len(r.Planned))
	for _, p := range r.Planned {
		reasons := make([]string, 0, len(p.Reasons))
		for _, reason := range p.Reasons {
			reasons = append(reasons, string(reason))
		}
		rows = append(rows, []string{
			formatStamp(p.Recording.AiredAt),
			p.Recording.Title,
			p.SubscriptionName,
			strings.Join(reasons, ", "),
			yesNo(p.Deleted),
		})
	}
	fmt.Fprintln(out, renderTable([]string{"Aired", "Title", "Subscription", "Reasons", "Deleted"}, rows, nil))
}
