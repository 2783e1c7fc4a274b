package mapper

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/archives-observability/archives/archerr"
	"github.com/archives-observability/archives/models"
	"github.com/archives-observability/archives/query"
	"github.com/archives-observability/archives/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rowFromRecord builds the row the store would return for rec.
func rowFromRecord(rec models.LogRecord) store.Row {
	return store.Row{
		"Timestamp":          rec.Timestamp,
		"ObservedTimestamp":  rec.ObservedTimestamp,
		"TraceId":            rec.TraceID,
		"SpanId":             rec.SpanID,
		"SeverityNumber":     rec.SeverityNumber,
		"SeverityText":       rec.SeverityText,
		"Body":               rec.Body,
		"ResourceAttributes": rec.ResourceAttributes,
		"LogAttributes":      rec.LogAttributes,
		"ServiceName":        rec.ServiceName,
	}
}

func sampleRecord() models.LogRecord {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 123000000, time.UTC)
	return models.LogRecord{
		Timestamp:          ts,
		ObservedTimestamp:  ts.Add(5 * time.Millisecond),
		TraceID:            "4bf92f3577b34da6a3ce929d0e0e4736",
		SpanID:             "00f067aa0ba902b7",
		Severity:           models.SeverityError,
		SeverityText:       "ERROR",
		SeverityNumber:     17,
		Body:               "connection refused to db-primary:5432",
		ResourceAttributes: map[string]string{"service.name": "checkout", "host.name": "node-3"},
		LogAttributes:      map[string]string{"retry": "2"},
		ServiceName:        "checkout",
	}
}

func TestLogRecord_RoundTrip(t *testing.T) {
	want := sampleRecord()

	got, err := LogRecord(rowFromRecord(want))
	require.NoError(t, err)

	want.ID = got.ID
	assert.Equal(t, want, got)
	assert.Equal(t, rowFromRecord(want), rowFromRecord(got))
	assert.NotEmpty(t, got.ID)
}

func TestLogRecord_MissingOptionalFields(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	got, err := LogRecord(store.Row{"Timestamp": ts, "Body": "started", "TraceId": nil})
	require.NoError(t, err)

	assert.Equal(t, ts, got.Timestamp)
	assert.True(t, got.ObservedTimestamp.IsZero())
	assert.Empty(t, got.TraceID)
	assert.Equal(t, models.SeverityInfo, got.Severity)
	assert.Equal(t, "INFO", got.SeverityText)
	assert.NotNil(t, got.ResourceAttributes)
	assert.Empty(t, got.LogAttributes)
}

func TestLogRecord_SeverityFromTextWhenNumberMissing(t *testing.T) {
	got, err := LogRecord(store.Row{"Timestamp": time.Now(), "SeverityText": "warning"})
	require.NoError(t, err)
	assert.Equal(t, models.SeverityWarn, got.Severity)
	assert.Equal(t, int32(13), got.SeverityNumber)
	assert.Equal(t, "warning", got.SeverityText)
}

func TestLogRecord_AttributesFromJSON(t *testing.T) {
	got, err := LogRecord(store.Row{
		"Timestamp":          "2024-03-01 12:00:00.5",
		"ResourceAttributes": `{"service.name":"api","k8s.pod.restarts":3}`,
		"LogAttributes":      []byte(`not json`),
	})
	require.NoError(t, err)
	assert.Equal(t, "api", got.ResourceAttributes["service.name"])
	assert.Equal(t, "3", got.ResourceAttributes["k8s.pod.restarts"])
	assert.Equal(t, "api", got.ServiceName)
	assert.Empty(t, got.LogAttributes)
	assert.Equal(t, 500*time.Millisecond, time.Duration(got.Timestamp.Nanosecond()))
}

func TestLogRecords_MissingTimestampFailsWhole(t *testing.T) {
	rows := []store.Row{
		rowFromRecord(sampleRecord()),
		{"Body": "no timestamp"},
	}
	records, err := LogRecords(rows)
	require.Error(t, err)
	assert.Nil(t, records)
	assert.Equal(t, archerr.MalformedRow, archerr.KindOf(err))
	assert.Contains(t, err.Error(), "row 1")
}

func TestRecordID_Deterministic(t *testing.T) {
	rec := sampleRecord()
	assert.Equal(t, RecordID(rec), RecordID(rec))

	other := rec
	other.Body = "different"
	assert.NotEqual(t, RecordID(rec), RecordID(other))
}

func TestMetricPoints_ThreeMinutesThreeBuckets(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	b := query.NewBucketing(start, 60)

	// one bucket row per minute as the store groups samples every 10s
	rows := []store.Row{
		{"bucket_index": int64(0), "value": 1.5},
		{"bucket_index": int64(1), "value": 2.5},
		{"bucket_index": int64(2), "value": uint64(4)},
	}

	points, err := MetricPoints(rows, b)
	require.NoError(t, err)
	require.Len(t, points, 3)
	for i, p := range points {
		lo, hi := b.Bounds(int64(i))
		assert.Equal(t, start.Add(time.Duration(i)*time.Minute), p.Timestamp)
		assert.Equal(t, lo, p.Timestamp)
		assert.Equal(t, 60*time.Second, hi.Sub(lo))
	}
	assert.Equal(t, 4.0, points[2].Value)
}

func TestMetricPoints_EmptyAndNonFinite(t *testing.T) {
	b := query.NewBucketing(time.Unix(0, 0), 60)

	points, err := MetricPoints(nil, b)
	require.NoError(t, err)
	assert.NotNil(t, points)
	assert.Empty(t, points)

	points, err = MetricPoints([]store.Row{
		{"bucket_index": int64(0), "value": math.NaN()},
		{"bucket_index": int64(3), "value": 7.0},
	}, b)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, time.Unix(180, 0).UTC(), points[0].Timestamp)

	_, err = MetricPoints([]store.Row{{"value": 1.0}}, b)
	assert.Equal(t, archerr.MalformedRow, archerr.KindOf(err))
}

func TestErrorPatterns_OrderAndTruncation(t *testing.T) {
	long := strings.Repeat("x", 50)
	rows := []store.Row{
		{"pattern": "timeout calling payments", "occurrences": uint64(30), "example": "timeout calling payments", "max_length": uint64(24)},
		{"pattern": long, "occurrences": uint64(45), "example": long + " and more", "max_length": uint64(59)},
		{"pattern": "disk full", "occurrences": uint64(10), "example": "disk full", "max_length": uint64(9)},
		{"pattern": "a tie", "occurrences": uint64(10), "example": "a tie", "max_length": uint64(5)},
	}

	patterns, err := ErrorPatterns(rows)
	require.NoError(t, err)
	require.Len(t, patterns, 4)

	counts := []uint64{patterns[0].Count, patterns[1].Count, patterns[2].Count, patterns[3].Count}
	assert.Equal(t, []uint64{45, 30, 10, 10}, counts)
	assert.Equal(t, long+"...", patterns[0].Pattern)
	assert.Equal(t, long+" and more", patterns[0].Example)
	assert.Equal(t, "a tie", patterns[2].Pattern)
	assert.Equal(t, "disk full", patterns[3].Pattern)
}

func TestNormalizePattern(t *testing.T) {
	assert.Equal(t, "short", NormalizePattern("short"))
	exact := strings.Repeat("é", 50)
	assert.Equal(t, exact, NormalizePattern(exact))
	assert.Equal(t, exact+"...", NormalizePattern(exact+"é"))
}

func TestErrorSummary(t *testing.T) {
	end := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	summary, err := ErrorSummary(
		[]store.Row{{"total": uint64(85)}},
		[]store.Row{{"pattern": "oops", "occurrences": uint64(85), "example": "oops", "max_length": uint64(4)}},
		models.LastHours(end, 12),
	)
	require.NoError(t, err)
	assert.Equal(t, uint64(85), summary.TotalErrors)
	assert.Equal(t, 12.0, summary.TimeRangeHours)
	require.Len(t, summary.TopPatterns, 1)

	_, err = ErrorSummary([]store.Row{{"other": 1}}, nil, models.LastHours(end, 1))
	assert.Equal(t, archerr.MalformedRow, archerr.KindOf(err))
}

func TestStorageStats(t *testing.T) {
	rows := []store.Row{
		{"table": "otel_logs", "rows": uint64(1200), "bytes": uint64(123456789)},
		{"table": "otel_metrics_gauge", "rows": uint64(300), "bytes": uint64(1024)},
		{"table": "otel_metrics_sum", "rows": uint64(100), "bytes": uint64(512)},
		{"table": "otel_traces", "rows": uint64(999), "bytes": uint64(999)},
	}
	stats, err := StorageStats(rows, "otel_logs", "otel_metrics")
	require.NoError(t, err)
	assert.Equal(t, uint64(1200), stats.LogCount)
	assert.Equal(t, "117.74 MB", stats.LogBytesHuman)
	assert.Equal(t, uint64(400), stats.MetricCount)
	assert.Equal(t, uint64(1536), stats.MetricBytes)
	assert.Equal(t, "1.50 KB", stats.MetricBytesHuman)
}

func TestSystemHealth(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	health, err := SystemHealth(HealthRows{
		Storage:       []store.Row{{"table": "otel_logs", "rows": uint64(10), "bytes": uint64(10)}},
		LastHourTotal: []store.Row{{"total": uint64(10)}},
		LastHourError: []store.Row{{"total": uint64(2)}},
	}, "otel_logs", "otel_metrics", now)
	require.NoError(t, err)
	assert.Equal(t, "operational", health.Status)
	assert.Equal(t, uint64(10), health.LastHour.TotalLogs)
	assert.Equal(t, uint64(2), health.LastHour.ErrorCount)
	assert.Equal(t, "10 bytes", health.Storage.LogBytesHuman)
	assert.Equal(t, "0 bytes", health.Storage.MetricBytesHuman)
	assert.Equal(t, now, health.CheckedAt)
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{0, "0 bytes"},
		{1023, "1023 bytes"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{123456789, "117.74 MB"},
		{5 * 1 << 30, "5.00 GB"},
		{3 << 40, "3072.00 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBytes(tt.in))
	}
}

func TestMetricNames(t *testing.T) {
	names, err := MetricNames([]store.Row{{"name": "cpu.usage"}, {"name": "mem.rss"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"cpu.usage", "mem.rss"}, names)
}
