package cli

import (
	"time"

	"github.com/spf13/cobra"
)

func newMetricsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "List and query metrics",
	}
	cmd.AddCommand(newMetricsListCommand(a), newMetricsQueryCommand(a))
	return cmd
}

func newMetricsListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available metric names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.client.MetricNames(cmd.Context())
			if err != nil {
				return err
			}
			if a.format == FormatJSON {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			printMetricNames(cmd.OutOrStdout(), resp.Get("names"))
			return nil
		},
	}
}

func newMetricsQueryCommand(a *app) *cobra.Command {
	var (
		hours       int
		aggregation string
		interval    int
		service     string
		labels      map[string]string
	)

	cmd := &cobra.Command{
		Use:   "query NAME",
		Short: "Aggregate a metric into time buckets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			end := a.now().UTC()
			body := map[string]any{
				"metric_name":      args[0],
				"start":            end.Add(-time.Duration(hours) * time.Hour).Format(time.RFC3339),
				"end":              end.Format(time.RFC3339),
				"aggregation":      aggregation,
				"interval_seconds": interval,
			}
			if service != "" {
				body["service"] = service
			}
			if len(labels) > 0 {
				body["labels"] = labels
			}

			resp, err := a.client.QueryMetrics(cmd.Context(), body)
			if err != nil {
				return err
			}
			if a.format == FormatJSON {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			return printSeries(cmd.OutOrStdout(), args[0], aggregation, resp.Get("data"), a.format)
		},
	}

	cmd.Flags().IntVarP(&hours, "hours", "t", 1, "Time range in hours")
	cmd.Flags().StringVarP(&aggregation, "aggregation", "a", "avg", "Aggregation: avg, min, max, sum, count")
	cmd.Flags().IntVarP(&interval, "interval", "i", 60, "Bucket width in seconds")
	cmd.Flags().StringVar(&service, "service", "", "Filter by service name")
	cmd.Flags().StringToStringVarP(&labels, "label", "l", nil, "Attribute filter, key=value (repeatable)")
	return cmd
}
