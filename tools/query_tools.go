package tools

import (
	"context"
	"time"

	"github.com/archives-observability/archives/archerr"
	"github.com/archives-observability/archives/models"
	"github.com/archives-observability/archives/services"
	"github.com/archives-observability/archives/utils"
)

// MetricNameList is the result of list_metrics.
type MetricNameList struct {
	Count   int      `json:"count"`
	Metrics []string `json:"metrics"`
}

var (
	startParam = Param{Name: "start", Type: TypeString, Description: "Range start (RFC3339). Takes precedence over hours together with end"}
	endParam   = Param{Name: "end", Type: TypeString, Description: "Range end (RFC3339)"}
)

func hoursParam(def int, description string) Param {
	return Param{
		Name:        "hours",
		Type:        TypeInteger,
		Description: description,
		Default:     def,
		Minimum:     intPtr(1),
		Maximum:     intPtr(models.HoursBackMax),
	}
}

func severityParam() Param {
	return Param{
		Name:        "min_severity",
		Type:        TypeString,
		Description: "Minimum severity level to include",
		Enum:        append(models.SeverityNames(), "WARNING"),
	}
}

func serviceParam() Param {
	return Param{Name: "service", Type: TypeString, Description: "Filter by service name"}
}

// QueryTools returns the tool set served by svc. now supplies the clock used
// for hours-back ranges.
func QueryTools(svc services.QueryServiceInterface, now func() time.Time) []Tool {
	if now == nil {
		now = time.Now
	}
	return []Tool{
		NewTool("search_logs",
			"Search logs with time range, severity filter, and text query. Returns matching log entries.",
			[]Param{
				{Name: "query", Type: TypeString, Description: "Text to search for in log messages"},
				hoursParam(1, "Number of hours to search back (default: 1)"),
				startParam,
				endParam,
				severityParam(),
				serviceParam(),
				{Name: "trace_id", Type: TypeString, Description: "Only return logs of this trace"},
				{Name: "offset", Type: TypeInteger, Description: "Number of results to skip", Default: 0},
				{Name: "limit", Type: TypeInteger, Description: "Maximum number of results (default: 50)", Default: 50},
			},
			func(a Args) (models.LogSearchRequest, error) { return bindSearchLogs(a, now()) },
			func(ctx context.Context, req models.LogSearchRequest) (any, error) {
				records, err := svc.SearchLogs(ctx, req)
				if err != nil {
					return nil, err
				}
				return models.NewLogLines(records), nil
			},
		),
		NewTool("tail_logs",
			"Get the most recent logs, newest first. Useful for seeing what is happening right now.",
			[]Param{
				{Name: "count", Type: TypeInteger, Description: "Number of recent logs to return (default: 20)", Default: models.DefaultTailCount, Minimum: intPtr(1)},
				{Name: "minutes", Type: TypeInteger, Description: "Window to look back in minutes (default: 10)", Default: models.DefaultTailMinutes, Minimum: intPtr(1), Maximum: intPtr(models.TailWindowMinutesMax)},
				severityParam(),
				serviceParam(),
			},
			bindTailLogs,
			func(ctx context.Context, req models.LogTailRequest) (any, error) {
				records, err := svc.TailLogs(ctx, req)
				if err != nil {
					return nil, err
				}
				return models.NewLogLines(records), nil
			},
		),
		NewTool("get_error_summary",
			"Get a summary of errors in the system. Groups errors by message pattern and shows counts.",
			[]Param{
				hoursParam(models.DefaultErrorHours, "Number of hours to analyze (default: 24)"),
				startParam,
				endParam,
				{Name: "limit", Type: TypeInteger, Description: "Maximum number of error patterns to return (default: 10)", Default: models.DefaultErrorLimit, Minimum: intPtr(1), Maximum: intPtr(models.ErrorSummaryLimitMax)},
			},
			func(a Args) (models.ErrorSummaryRequest, error) { return bindErrorSummary(a, now()) },
			func(ctx context.Context, req models.ErrorSummaryRequest) (any, error) {
				return svc.ErrorSummary(ctx, req)
			},
		),
		NewTool("query_metrics",
			"Query metrics with aggregation over time. Returns time series data.",
			[]Param{
				{Name: "metric_name", Type: TypeString, Description: "Name of the metric to query", Required: true},
				hoursParam(models.DefaultMetricHours, "Number of hours to query (default: 1)"),
				startParam,
				endParam,
				{Name: "aggregation", Type: TypeString, Description: "Aggregation function (default: avg)", Default: string(models.DefaultAggregation), Enum: models.AggregationNames()},
				{Name: "interval_seconds", Type: TypeInteger, Description: "Time bucket size in seconds (default: 60)", Default: models.DefaultIntervalSeconds},
				serviceParam(),
				{Name: "labels", Type: TypeObject, Description: "Exact-match metric attribute filters"},
			},
			func(a Args) (models.MetricQueryRequest, error) { return bindQueryMetrics(a, now()) },
			func(ctx context.Context, req models.MetricQueryRequest) (any, error) {
				return svc.QueryMetrics(ctx, req)
			},
		),
		NewTool("list_metrics",
			"List the names of all metrics available for query_metrics.",
			nil,
			func(Args) (struct{}, error) { return struct{}{}, nil },
			func(ctx context.Context, _ struct{}) (any, error) {
				names, err := svc.MetricNames(ctx)
				if err != nil {
					return nil, err
				}
				return MetricNameList{Count: len(names), Metrics: names}, nil
			},
		),
		NewTool("get_system_health",
			"Get overall system health summary including error rates, log volume, and storage usage.",
			nil,
			func(Args) (struct{}, error) { return struct{}{}, nil },
			func(ctx context.Context, _ struct{}) (any, error) {
				return svc.SystemHealth(ctx)
			},
		),
	}
}

// resolveRange prefers explicit start and end over hours.
func resolveRange(a Args, now time.Time) (models.TimeRange, error) {
	hasStart, hasEnd := a.Has("start"), a.Has("end")
	if !hasStart && !hasEnd {
		return models.LastHours(now.UTC(), a.Int("hours")), nil
	}
	if !hasStart {
		return models.TimeRange{}, archerr.Param("start", "is required when end is given")
	}
	if !hasEnd {
		return models.TimeRange{}, archerr.Param("end", "is required when start is given")
	}
	start, err := parseTimestamp("start", a.String("start"))
	if err != nil {
		return models.TimeRange{}, err
	}
	end, err := parseTimestamp("end", a.String("end"))
	if err != nil {
		return models.TimeRange{}, err
	}
	return models.TimeRange{Start: start, End: end}, nil
}

func parseTimestamp(field, value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, archerr.Param(field, "must be an RFC3339 timestamp")
	}
	return t.UTC(), nil
}

func severityArg(a Args) (*models.Severity, error) {
	if !a.Has("min_severity") {
		return nil, nil
	}
	sev, err := models.ParseSeverity(a.String("min_severity"))
	if err != nil {
		return nil, err
	}
	return &sev, nil
}

func bindSearchLogs(a Args, now time.Time) (models.LogSearchRequest, error) {
	r, err := resolveRange(a, now)
	if err != nil {
		return models.LogSearchRequest{}, err
	}
	sev, err := severityArg(a)
	if err != nil {
		return models.LogSearchRequest{}, err
	}
	req := models.LogSearchRequest{
		TimeRange:   r,
		Query:       a.String("query"),
		MinSeverity: sev,
		Service:     a.String("service"),
		TraceID:     a.String("trace_id"),
		Offset:      a.Int("offset"),
		Limit:       a.Int("limit"),
	}
	return req, utils.ValidateStruct(&req)
}

func bindTailLogs(a Args) (models.LogTailRequest, error) {
	sev, err := severityArg(a)
	if err != nil {
		return models.LogTailRequest{}, err
	}
	req := models.LogTailRequest{
		Count:       a.Int("count"),
		Minutes:     a.Int("minutes"),
		MinSeverity: sev,
		Service:     a.String("service"),
	}
	return req, utils.ValidateStruct(&req)
}

func bindErrorSummary(a Args, now time.Time) (models.ErrorSummaryRequest, error) {
	r, err := resolveRange(a, now)
	if err != nil {
		return models.ErrorSummaryRequest{}, err
	}
	return models.ErrorSummaryRequest{TimeRange: r, Limit: a.Int("limit")}, nil
}

func bindQueryMetrics(a Args, now time.Time) (models.MetricQueryRequest, error) {
	r, err := resolveRange(a, now)
	if err != nil {
		return models.MetricQueryRequest{}, err
	}
	req := models.MetricQueryRequest{
		TimeRange:       r,
		MetricName:      a.String("metric_name"),
		Aggregation:     models.Aggregation(a.String("aggregation")),
		IntervalSeconds: a.Int("interval_seconds"),
		Service:         a.String("service"),
		Labels:          a.StringMap("labels"),
	}
	return req, utils.ValidateStruct(&req)
}
