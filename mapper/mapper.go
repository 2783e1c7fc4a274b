// Package mapper converts store rows into response objects.
//
// Optional columns that are missing or null map to zero values. A missing
// required column fails the whole mapping with MalformedRow; no partial
// results are returned.
package mapper

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/archives-observability/archives/archerr"
	"github.com/archives-observability/archives/models"
	"github.com/archives-observability/archives/query"
	"github.com/archives-observability/archives/store"
	"github.com/google/uuid"
)

// recordNamespace scopes deterministic log record ids.
var recordNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("archives:log-record"))

func malformed(index int, format string, args ...any) error {
	return archerr.Newf(archerr.MalformedRow, "row %d: "+format, append([]any{index}, args...)...)
}

// LogRecords maps log rows in order.
func LogRecords(rows []store.Row) ([]models.LogRecord, error) {
	out := make([]models.LogRecord, 0, len(rows))
	for i, row := range rows {
		rec, err := logRecord(i, row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// LogRecord maps a single log row.
func LogRecord(row store.Row) (models.LogRecord, error) {
	return logRecord(0, row)
}

func logRecord(index int, row store.Row) (models.LogRecord, error) {
	ts, ok := asTime(row["Timestamp"])
	if !ok {
		return models.LogRecord{}, malformed(index, "missing Timestamp")
	}
	observed, _ := asTime(row["ObservedTimestamp"])

	rec := models.LogRecord{
		Timestamp:          ts,
		ObservedTimestamp:  observed,
		TraceID:            asString(row["TraceId"]),
		SpanID:             asString(row["SpanId"]),
		SeverityText:       asString(row["SeverityText"]),
		Body:               asString(row["Body"]),
		ResourceAttributes: asStringMap(row["ResourceAttributes"]),
		LogAttributes:      asStringMap(row["LogAttributes"]),
		ServiceName:        asString(row["ServiceName"]),
	}

	number, hasNumber := asInt64(row["SeverityNumber"])
	switch {
	case hasNumber && number > 0:
		rec.SeverityNumber = int32(number)
		rec.Severity = models.SeverityFromNumber(rec.SeverityNumber)
	case rec.SeverityText != "":
		if sev, err := models.ParseSeverity(rec.SeverityText); err == nil {
			rec.Severity = sev
		} else {
			rec.Severity = models.SeverityInfo
		}
		rec.SeverityNumber = rec.Severity.Number()
	default:
		rec.Severity = models.SeverityInfo
	}
	if rec.SeverityText == "" {
		rec.SeverityText = rec.Severity.String()
	}
	if rec.ServiceName == "" {
		rec.ServiceName = rec.ResourceAttributes["service.name"]
	}

	rec.ID = RecordID(rec)
	return rec, nil
}

// RecordID derives a stable id from the fields that identify a stored event.
func RecordID(rec models.LogRecord) string {
	key := strings.Join([]string{
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
		rec.TraceID,
		rec.SpanID,
		rec.ServiceName,
		rec.Body,
	}, "\x00")
	return uuid.NewSHA1(recordNamespace, []byte(key)).String()
}

// MetricPoints maps bucket rows onto bucket start timestamps. Buckets whose
// aggregate is not a finite number are dropped.
func MetricPoints(rows []store.Row, b query.Bucketing) ([]models.MetricPoint, error) {
	out := make([]models.MetricPoint, 0, len(rows))
	for i, row := range rows {
		idx, ok := asInt64(row["bucket_index"])
		if !ok {
			return nil, malformed(i, "missing bucket_index")
		}
		value, ok := asFloat64(row["value"])
		if !ok {
			return nil, malformed(i, "missing value")
		}
		if math.IsNaN(value) || math.IsInf(value, 0) {
			continue
		}
		out = append(out, models.MetricPoint{Timestamp: b.BucketStart(idx), Value: value})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// MetricNames maps the name column.
func MetricNames(rows []store.Row) ([]string, error) {
	out := make([]string, 0, len(rows))
	for i, row := range rows {
		name := asString(row["name"])
		if name == "" {
			return nil, malformed(i, "missing name")
		}
		out = append(out, name)
	}
	return out, nil
}

// NormalizePattern truncates a message to the grouping key length and marks
// the cut.
func NormalizePattern(message string) string {
	runes := []rune(message)
	if len(runes) <= models.PatternLength {
		return message
	}
	return string(runes[:models.PatternLength]) + models.PatternTruncationMarker
}

// ErrorPatterns maps grouped pattern rows, ordered by count descending and
// then by pattern.
func ErrorPatterns(rows []store.Row) ([]models.ErrorPattern, error) {
	out := make([]models.ErrorPattern, 0, len(rows))
	for i, row := range rows {
		count, ok := asUint64(row["occurrences"])
		if !ok {
			return nil, malformed(i, "missing occurrences")
		}
		pattern := asString(row["pattern"])
		example := asString(row["example"])
		if maxLen, ok := asInt64(row["max_length"]); ok && maxLen > int64(models.PatternLength) {
			pattern += models.PatternTruncationMarker
		} else if !ok {
			pattern = NormalizePattern(pattern)
		}
		out = append(out, models.ErrorPattern{Pattern: pattern, Count: count, Example: example})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Pattern < out[j].Pattern
	})
	return out, nil
}

// Count reads the single count column of an aggregate row set.
func Count(rows []store.Row, column string) (uint64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n, ok := asUint64(rows[0][column])
	if !ok {
		return 0, malformed(0, "missing %s", column)
	}
	return n, nil
}

// ErrorSummary assembles a summary for the given range.
func ErrorSummary(totalRows, patternRows []store.Row, r models.TimeRange) (models.ErrorSummary, error) {
	total, err := Count(totalRows, "total")
	if err != nil {
		return models.ErrorSummary{}, err
	}
	patterns, err := ErrorPatterns(patternRows)
	if err != nil {
		return models.ErrorSummary{}, err
	}
	return models.ErrorSummary{
		TotalErrors:    total,
		TimeRangeHours: math.Round(r.Duration().Hours()*100) / 100,
		TopPatterns:    patterns,
	}, nil
}

// StorageStats folds per-table rows from the parts summary into log and
// metric totals. Tables starting with metricsPrefix count as metric storage.
func StorageStats(rows []store.Row, logsTable, metricsPrefix string) (models.StorageStats, error) {
	var stats models.StorageStats
	for i, row := range rows {
		table := asString(row["table"])
		if table == "" {
			return models.StorageStats{}, malformed(i, "missing table")
		}
		count, _ := asUint64(row["rows"])
		bytes, _ := asUint64(row["bytes"])
		switch {
		case table == logsTable:
			stats.LogCount += count
			stats.LogBytes += bytes
		case strings.HasPrefix(table, metricsPrefix):
			stats.MetricCount += count
			stats.MetricBytes += bytes
		}
	}
	stats.LogBytesHuman = FormatBytes(stats.LogBytes)
	stats.MetricBytesHuman = FormatBytes(stats.MetricBytes)
	return stats, nil
}

// HealthRows carries the raw results behind a health snapshot.
type HealthRows struct {
	Storage       []store.Row
	LastHourTotal []store.Row
	LastHourError []store.Row
}

// SystemHealth builds the health snapshot.
func SystemHealth(rows HealthRows, logsTable, metricsPrefix string, checkedAt time.Time) (models.SystemHealth, error) {
	storage, err := StorageStats(rows.Storage, logsTable, metricsPrefix)
	if err != nil {
		return models.SystemHealth{}, err
	}
	total, err := Count(rows.LastHourTotal, "total")
	if err != nil {
		return models.SystemHealth{}, err
	}
	errs, err := Count(rows.LastHourError, "total")
	if err != nil {
		return models.SystemHealth{}, err
	}
	return models.SystemHealth{
		Status:    "operational",
		Storage:   storage,
		LastHour:  models.LastHourStats{TotalLogs: total, ErrorCount: errs},
		CheckedAt: checkedAt.UTC(),
	}, nil
}

const (
	kib = 1 << 10
	mib = 1 << 20
	gib = 1 << 30
)

// FormatBytes renders n with binary units and two decimals, up to GB.
func FormatBytes(n uint64) string {
	switch {
	case n >= gib:
		return fmt.Sprintf("%.2f GB", float64(n)/gib)
	case n >= mib:
		return fmt.Sprintf("%.2f MB", float64(n)/mib)
	case n >= kib:
		return fmt.Sprintf("%.2f KB", float64(n)/kib)
	}
	return fmt.Sprintf("%d bytes", n)
}
