package models

import (
	"strings"
	"time"

	"github.com/archives-observability/archives/archerr"
)

// Request defaults shared by the HTTP and tool surfaces.
const (
	DefaultSearchLimit      = 100
	DefaultTailCount        = 20
	DefaultTailMinutes      = 10
	DefaultErrorHours       = 24
	DefaultErrorLimit       = 10
	DefaultMetricHours      = 1
	DefaultIntervalSeconds  = 60
	DefaultAggregation      = AggregationAvg
	ErrorSummaryLimitMax    = 100
	TailWindowMinutesMax    = 24 * 60
	HoursBackMax            = 24 * 90
	PatternLength           = 50
	PatternTruncationMarker = "..."
)

// TimeRange is a half-open interval [Start, End).
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// LastHours returns the range ending at now and starting hours earlier.
func LastHours(now time.Time, hours int) TimeRange {
	return TimeRange{Start: now.Add(-time.Duration(hours) * time.Hour), End: now}
}

// LastMinutes returns the range ending at now and starting minutes earlier.
func LastMinutes(now time.Time, minutes int) TimeRange {
	return TimeRange{Start: now.Add(-time.Duration(minutes) * time.Minute), End: now}
}

// Validate rejects missing and inverted ranges. Inverted ranges are never swapped.
func (r TimeRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return archerr.New(archerr.InvalidRequest, "time range requires both start and end")
	}
	if r.Start.After(r.End) {
		return archerr.New(archerr.InvalidRequest, "time range start must not be after end")
	}
	return nil
}

// Duration returns End - Start.
func (r TimeRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Aggregation selects the function applied to each metric bucket.
type Aggregation string

const (
	AggregationAvg   Aggregation = "avg"
	AggregationMin   Aggregation = "min"
	AggregationMax   Aggregation = "max"
	AggregationSum   Aggregation = "sum"
	AggregationCount Aggregation = "count"
	AggregationP50   Aggregation = "p50"
	AggregationP90   Aggregation = "p90"
	AggregationP95   Aggregation = "p95"
	AggregationP99   Aggregation = "p99"
)

// Aggregations lists every supported aggregation.
func Aggregations() []Aggregation {
	return []Aggregation{
		AggregationAvg, AggregationMin, AggregationMax, AggregationSum, AggregationCount,
		AggregationP50, AggregationP90, AggregationP95, AggregationP99,
	}
}

// AggregationNames lists every supported aggregation as strings.
func AggregationNames() []string {
	aggs := Aggregations()
	names := make([]string, len(aggs))
	for i, a := range aggs {
		names[i] = string(a)
	}
	return names
}

// ParseAggregation resolves an aggregation name case-insensitively.
func ParseAggregation(name string) (Aggregation, error) {
	candidate := Aggregation(strings.ToLower(strings.TrimSpace(name)))
	for _, a := range Aggregations() {
		if a == candidate {
			return a, nil
		}
	}
	return "", archerr.Param("aggregation", "unknown aggregation \""+name+"\", expected one of "+strings.Join(AggregationNames(), ", "))
}

// UnmarshalText decodes and validates an aggregation name.
func (a *Aggregation) UnmarshalText(text []byte) error {
	parsed, err := ParseAggregation(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// LogSearchRequest filters stored log records inside a time range.
type LogSearchRequest struct {
	TimeRange
	Query       string    `json:"query,omitempty" validate:"max=1024"`
	MinSeverity *Severity `json:"min_severity,omitempty"`
	Service     string    `json:"service,omitempty" validate:"max=256"`
	TraceID     string    `json:"trace_id,omitempty" validate:"omitempty,hexadecimal,max=64"`
	Offset      int       `json:"offset"`
	Limit       int       `json:"limit"`
}

// LogTailRequest selects the most recent records, newest first.
type LogTailRequest struct {
	Count       int       `json:"count"`
	Minutes     int       `json:"minutes"`
	MinSeverity *Severity `json:"min_severity,omitempty"`
	Service     string    `json:"service,omitempty" validate:"max=256"`
}

// ErrorSummaryRequest groups ERROR and FATAL records by message pattern.
type ErrorSummaryRequest struct {
	TimeRange
	Limit int `json:"limit"`
}

// MetricQueryRequest aggregates one metric into fixed-width time buckets.
type MetricQueryRequest struct {
	TimeRange
	MetricName      string            `json:"metric_name" validate:"required,max=512"`
	Aggregation     Aggregation       `json:"aggregation,omitempty"`
	IntervalSeconds int               `json:"interval_seconds"`
	Service         string            `json:"service,omitempty" validate:"max=256"`
	Labels          map[string]string `json:"labels,omitempty"`
}
