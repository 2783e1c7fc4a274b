// Package query turns validated requests into parameterized store queries.
//
// Every user-supplied value travels as a bound argument. The only fragments
// interpolated into query text are table names, which are checked as plain
// identifiers when the Builder is constructed, and aggregation expressions
// chosen from a closed table.
package query

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/archives-observability/archives/archerr"
	"github.com/archives-observability/archives/models"
)

// Query is a query template plus its positional arguments.
type Query struct {
	// Name identifies the query shape in logs and metrics.
	Name string
	Text string
	Args []any
}

// Config holds the table layout and windowing limits used when building queries.
type Config struct {
	Database     string
	LogsTable    string
	MetricsTable string
	// MetricsTablePrefix selects the tables counted as metric storage.
	MetricsTablePrefix string
	DefaultLimit       int
	MaxLimit           int
}

// DefaultConfig returns the layout written by the OpenTelemetry ClickHouse exporter.
func DefaultConfig() Config {
	return Config{
		Database:           "default",
		LogsTable:          "otel_logs",
		MetricsTable:       "otel_metrics_gauge",
		MetricsTablePrefix: "otel_metrics",
		DefaultLimit:       models.DefaultSearchLimit,
		MaxLimit:           1000,
	}
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether name can be used as a bare table or database name.
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

var aggregationExpressions = map[models.Aggregation]string{
	models.AggregationAvg:   "avg(Value)",
	models.AggregationMin:   "min(Value)",
	models.AggregationMax:   "max(Value)",
	models.AggregationSum:   "sum(Value)",
	models.AggregationCount: "count()",
	models.AggregationP50:   "quantile(0.5)(Value)",
	models.AggregationP90:   "quantile(0.9)(Value)",
	models.AggregationP95:   "quantile(0.95)(Value)",
	models.AggregationP99:   "quantile(0.99)(Value)",
}

// AggregationExpression returns the store expression for agg.
func AggregationExpression(agg models.Aggregation) (string, bool) {
	expr, ok := aggregationExpressions[agg]
	return expr, ok
}

const logColumns = `Timestamp, ObservedTimestamp, TraceId, SpanId, SeverityNumber, SeverityText, Body, ResourceAttributes, LogAttributes, ServiceName`

// Builder builds queries. It holds no per-request state and is safe for concurrent use.
type Builder struct {
	cfg Config
}

// NewBuilder validates cfg and returns a Builder.
func NewBuilder(cfg Config) (*Builder, error) {
	for field, name := range map[string]string{
		"database":      cfg.Database,
		"logs table":    cfg.LogsTable,
		"metrics table": cfg.MetricsTable,
	} {
		if !ValidIdentifier(name) {
			return nil, fmt.Errorf("invalid %s name %q", field, name)
		}
	}
	if cfg.MetricsTablePrefix == "" {
		cfg.MetricsTablePrefix = cfg.MetricsTable
	}
	if cfg.MaxLimit <= 0 {
		return nil, fmt.Errorf("max limit must be positive, got %d", cfg.MaxLimit)
	}
	if cfg.DefaultLimit <= 0 || cfg.DefaultLimit > cfg.MaxLimit {
		cfg.DefaultLimit = min(models.DefaultSearchLimit, cfg.MaxLimit)
	}
	return &Builder{cfg: cfg}, nil
}

// Config returns the effective configuration.
func (b *Builder) Config() Config {
	return b.cfg
}

// ClampLimit applies the default and maximum window sizes to a requested limit.
func (b *Builder) ClampLimit(limit int) (int, error) {
	switch {
	case limit < 0:
		return 0, archerr.Newf(archerr.InvalidRequest, "limit must not be negative, got %d", limit)
	case limit == 0:
		return b.cfg.DefaultLimit, nil
	case limit > b.cfg.MaxLimit:
		return b.cfg.MaxLimit, nil
	}
	return limit, nil
}

// LogSearch builds an ascending, windowed search over log records.
func (b *Builder) LogSearch(req models.LogSearchRequest) (Query, error) {
	if err := req.TimeRange.Validate(); err != nil {
		return Query{}, err
	}
	if req.Offset < 0 {
		return Query{}, archerr.Newf(archerr.InvalidRequest, "offset must not be negative, got %d", req.Offset)
	}
	limit, err := b.ClampLimit(req.Limit)
	if err != nil {
		return Query{}, err
	}

	w := newWhere()
	w.add("Timestamp >= ?", req.Start)
	w.add("Timestamp < ?", req.End)
	if req.MinSeverity != nil {
		w.add("SeverityNumber >= ?", req.MinSeverity.Number())
	}
	if req.Query != "" {
		w.add("positionCaseInsensitiveUTF8(Body, ?) > 0", req.Query)
	}
	if req.Service != "" {
		w.add("ServiceName = ?", req.Service)
	}
	if req.TraceID != "" {
		w.add("TraceId = ?", req.TraceID)
	}

	text := "SELECT " + logColumns + " FROM " + b.cfg.LogsTable +
		w.clause() + " ORDER BY Timestamp ASC LIMIT ? OFFSET ?"
	return Query{Name: "log_search", Text: text, Args: append(w.args, limit, req.Offset)}, nil
}

// LogTail builds a newest-first query over the trailing window ending at now.
func (b *Builder) LogTail(req models.LogTailRequest, now time.Time) (Query, error) {
	if req.Count < 0 {
		return Query{}, archerr.Newf(archerr.InvalidRequest, "count must not be negative, got %d", req.Count)
	}
	if req.Minutes < 0 {
		return Query{}, archerr.Newf(archerr.InvalidRequest, "minutes must not be negative, got %d", req.Minutes)
	}
	count := req.Count
	if count == 0 {
		count = models.DefaultTailCount
	}
	count = min(count, b.cfg.MaxLimit)
	minutes := req.Minutes
	if minutes == 0 {
		minutes = models.DefaultTailMinutes
	}
	window := models.LastMinutes(now, minutes)

	w := newWhere()
	w.add("Timestamp >= ?", window.Start)
	w.add("Timestamp <= ?", window.End)
	if req.MinSeverity != nil {
		w.add("SeverityNumber >= ?", req.MinSeverity.Number())
	}
	if req.Service != "" {
		w.add("ServiceName = ?", req.Service)
	}

	text := "SELECT " + logColumns + " FROM " + b.cfg.LogsTable +
		w.clause() + " ORDER BY Timestamp DESC LIMIT ?"
	return Query{Name: "log_tail", Text: text, Args: append(w.args, count)}, nil
}

// ErrorPatterns builds the grouped error summary. Groups are keyed by the first
// models.PatternLength characters of the body and ordered by count descending,
// then pattern ascending.
func (b *Builder) ErrorPatterns(req models.ErrorSummaryRequest) (Query, error) {
	if err := req.TimeRange.Validate(); err != nil {
		return Query{}, err
	}
	if req.Limit < 0 {
		return Query{}, archerr.Newf(archerr.InvalidRequest, "limit must not be negative, got %d", req.Limit)
	}
	limit := req.Limit
	if limit == 0 {
		limit = models.DefaultErrorLimit
	}
	limit = min(limit, models.ErrorSummaryLimitMax, b.cfg.MaxLimit)

	w := b.errorWindow(req.TimeRange)
	text := "SELECT substringUTF8(Body, 1, ?) AS pattern, count() AS occurrences, any(Body) AS example, max(lengthUTF8(Body)) AS max_length" +
		" FROM " + b.cfg.LogsTable + w.clause() +
		" GROUP BY pattern ORDER BY occurrences DESC, pattern ASC LIMIT ?"
	args := append([]any{models.PatternLength}, w.args...)
	return Query{Name: "error_patterns", Text: text, Args: append(args, limit)}, nil
}

// ErrorTotal counts ERROR and FATAL records in the range.
func (b *Builder) ErrorTotal(r models.TimeRange) (Query, error) {
	if err := r.Validate(); err != nil {
		return Query{}, err
	}
	w := b.errorWindow(r)
	return Query{
		Name: "error_total",
		Text: "SELECT count() AS total FROM " + b.cfg.LogsTable + w.clause(),
		Args: w.args,
	}, nil
}

func (b *Builder) errorWindow(r models.TimeRange) *where {
	w := newWhere()
	w.add("Timestamp >= ?", r.Start)
	w.add("Timestamp < ?", r.End)
	w.add("SeverityNumber >= ?", models.SeverityError.Number())
	return w
}

// LogCount counts all records in the range.
func (b *Builder) LogCount(r models.TimeRange) (Query, error) {
	if err := r.Validate(); err != nil {
		return Query{}, err
	}
	w := newWhere()
	w.add("Timestamp >= ?", r.Start)
	w.add("Timestamp < ?", r.End)
	return Query{
		Name: "log_count",
		Text: "SELECT count() AS total FROM " + b.cfg.LogsTable + w.clause(),
		Args: w.args,
	}, nil
}

// MetricSeries builds a bucketed aggregation over one metric. The bucket index
// is intDiv(unix(TimeUnix) - unix(start), interval); see Bucketing for the
// inverse mapping.
func (b *Builder) MetricSeries(req models.MetricQueryRequest) (Query, Bucketing, error) {
	if strings.TrimSpace(req.MetricName) == "" {
		return Query{}, Bucketing{}, archerr.New(archerr.InvalidRequest, "metric_name is required")
	}
	if err := req.TimeRange.Validate(); err != nil {
		return Query{}, Bucketing{}, err
	}
	if req.IntervalSeconds <= 0 {
		return Query{}, Bucketing{}, archerr.Newf(archerr.InvalidRequest, "interval_seconds must be positive, got %d", req.IntervalSeconds)
	}
	agg := req.Aggregation
	if agg == "" {
		agg = models.DefaultAggregation
	}
	expr, ok := AggregationExpression(agg)
	if !ok {
		return Query{}, Bucketing{}, archerr.Param("aggregation", fmt.Sprintf("unsupported aggregation %q", agg))
	}

	bucketing := NewBucketing(req.Start, req.IntervalSeconds)

	w := newWhere()
	w.add("MetricName = ?", req.MetricName)
	w.add("TimeUnix >= ?", req.Start)
	w.add("TimeUnix < ?", req.End)
	if req.Service != "" {
		w.add("ServiceName = ?", req.Service)
	}
	keys := make([]string, 0, len(req.Labels))
	for k := range req.Labels {
		if k == "" {
			return Query{}, Bucketing{}, archerr.Param("labels", "label keys must not be empty")
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		w.add("Attributes[?] = ?", k, req.Labels[k])
	}

	text := "SELECT intDiv(toInt64(toUnixTimestamp(TimeUnix)) - ?, ?) AS bucket_index, " + expr + " AS value" +
		" FROM " + b.cfg.MetricsTable + w.clause() +
		" GROUP BY bucket_index ORDER BY bucket_index ASC"
	args := append([]any{bucketing.Start.Unix(), int64(req.IntervalSeconds)}, w.args...)
	return Query{Name: "metric_series", Text: text, Args: args}, bucketing, nil
}

// MetricNames lists distinct metric names in ascending order.
func (b *Builder) MetricNames() Query {
	return Query{
		Name: "metric_names",
		Text: "SELECT DISTINCT MetricName AS name FROM " + b.cfg.MetricsTable + " ORDER BY name LIMIT ?",
		Args: []any{b.cfg.MaxLimit},
	}
}

// StorageStats reports rows and bytes per active table of the database.
func (b *Builder) StorageStats() Query {
	return Query{
		Name: "storage_stats",
		Text: "SELECT table, sum(rows) AS rows, sum(bytes_on_disk) AS bytes FROM system.parts" +
			" WHERE database = ? AND active = 1 GROUP BY table ORDER BY table",
		Args: []any{b.cfg.Database},
	}
}

// HealthQueries returns the fixed set of queries behind a system health snapshot.
type HealthQueries struct {
	Storage       Query
	LastHourTotal Query
	LastHourError Query
}

// Health builds the health query set for the hour ending at now.
func (b *Builder) Health(now time.Time) HealthQueries {
	window := models.LastHours(now, 1)
	// window comes from now and cannot be inverted
	total, _ := b.LogCount(window)
	errs, _ := b.ErrorTotal(window)
	return HealthQueries{
		Storage:       b.StorageStats(),
		LastHourTotal: total,
		LastHourError: errs,
	}
}

type where struct {
	clauses []string
	args    []any
}

func newWhere() *where {
	return &where{}
}

func (w *where) add(clause string, args ...any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

func (w *where) clause() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}
