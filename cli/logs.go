package cli

import (
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newLogsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Search and view logs",
	}
	cmd.AddCommand(newLogsSearchCommand(a), newLogsTailCommand(a), newLogsErrorsCommand(a))
	return cmd
}

func newLogsSearchCommand(a *app) *cobra.Command {
	var (
		hours    int
		severity string
		service  string
		traceID  string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "search [QUERY]",
		Short: "Search logs in a trailing time window",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			end := a.now().UTC()
			body := map[string]any{
				"start": end.Add(-time.Duration(hours) * time.Hour).Format(time.RFC3339),
				"end":   end.Format(time.RFC3339),
				"limit": limit,
			}
			if len(args) == 1 {
				body["query"] = args[0]
			}
			if severity != "" {
				body["min_severity"] = strings.ToUpper(severity)
			}
			if service != "" {
				body["service"] = service
			}
			if traceID != "" {
				body["trace_id"] = traceID
			}

			resp, err := a.client.SearchLogs(cmd.Context(), body)
			if err != nil {
				return err
			}
			if a.format == FormatJSON {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			return printLogs(cmd.OutOrStdout(), resp.Get("logs").Array(), a.format)
		},
	}

	cmd.Flags().IntVarP(&hours, "hours", "t", 1, "Time range in hours")
	cmd.Flags().StringVarP(&severity, "severity", "s", "", "Minimum severity level")
	cmd.Flags().StringVar(&service, "service", "", "Filter by service name")
	cmd.Flags().StringVar(&traceID, "trace-id", "", "Filter by trace id")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum results")
	return cmd
}

func newLogsTailCommand(a *app) *cobra.Command {
	var (
		count    int
		minutes  int
		severity string
		service  string
	)

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the most recent logs, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string]any{"count": count, "minutes": minutes}
			if severity != "" {
				params["min_severity"] = strings.ToUpper(severity)
			}
			if service != "" {
				params["service"] = service
			}

			env, err := a.client.CallTool(cmd.Context(), "tail_logs", params)
			if err != nil {
				return err
			}
			if a.format == FormatJSON {
				return printJSON(cmd.OutOrStdout(), env.Get("data"))
			}

			// the tool answers newest first
			logs := env.Get("data.logs").Array()
			slices.Reverse(logs)
			return printLogs(cmd.OutOrStdout(), logs, a.format)
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 20, "Number of logs to show")
	cmd.Flags().IntVarP(&minutes, "minutes", "m", 10, "Look back this many minutes")
	cmd.Flags().StringVarP(&severity, "severity", "s", "", "Minimum severity level")
	cmd.Flags().StringVar(&service, "service", "", "Filter by service name")
	return cmd
}

func newLogsErrorsCommand(a *app) *cobra.Command {
	var hours, limit int

	cmd := &cobra.Command{
		Use:   "errors",
		Short: "Show the most frequent error patterns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := a.client.CallTool(cmd.Context(), "get_error_summary", map[string]any{"hours": hours, "limit": limit})
			if err != nil {
				return err
			}
			if a.format == FormatJSON {
				return printJSON(cmd.OutOrStdout(), env.Get("data"))
			}
			printErrorSummary(cmd.OutOrStdout(), env.Get("data"), hours)
			return nil
		},
	}

	cmd.Flags().IntVarP(&hours, "hours", "t", 24, "Time range in hours")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of top error patterns")
	return cmd
}
