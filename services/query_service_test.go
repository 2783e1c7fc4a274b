package services

import (
	"context"
	"testing"
	"time"

	"github.com/archives-observability/archives/archerr"
	"github.com/archives-observability/archives/models"
	"github.com/archives-observability/archives/query"
	"github.com/archives-observability/archives/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockQueryRunner is a mock implementation of QueryRunner for testing
type MockQueryRunner struct {
	mock.Mock
}

func (m *MockQueryRunner) Query(ctx context.Context, q query.Query) ([]store.Row, error) {
	args := m.Called(ctx, q)
	rows, _ := args.Get(0).([]store.Row)
	return rows, args.Error(1)
}

func (m *MockQueryRunner) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockQueryRunner) Stats() models.PoolStats {
	return m.Called().Get(0).(models.PoolStats)
}

func named(name string) interface{} {
	return mock.MatchedBy(func(q query.Query) bool { return q.Name == name })
}

func newTestService(t *testing.T, cfg QueryServiceConfig) (*QueryService, *MockQueryRunner) {
	t.Helper()
	builder, err := query.NewBuilder(query.DefaultConfig())
	require.NoError(t, err)
	runner := &MockQueryRunner{}
	svc := NewQueryService(builder, runner, cfg)
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc, runner
}

func logRow(ts time.Time, number int32, body string) store.Row {
	return store.Row{
		"Timestamp":      ts,
		"SeverityNumber": number,
		"Body":           body,
		"ServiceName":    "checkout",
	}
}

func TestQueryService_SearchLogs(t *testing.T) {
	svc, runner := newTestService(t, QueryServiceConfig{})
	ts := time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)
	runner.On("Query", mock.Anything, named("log_search")).Return([]store.Row{
		logRow(ts, 17, "connection refused"),
		logRow(ts.Add(time.Second), 21, "connection refused again"),
	}, nil)

	sev := models.SeverityError
	records, err := svc.SearchLogs(context.Background(), models.LogSearchRequest{
		TimeRange:   models.LastHours(ts.Add(time.Hour), 24),
		Query:       "connection refused",
		MinSeverity: &sev,
		Limit:       20,
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, models.SeverityError, records[0].Severity)
	assert.Equal(t, models.SeverityFatal, records[1].Severity)
	runner.AssertExpectations(t)
}

func TestQueryService_SearchLogsDropsOutOfRangeNumbers(t *testing.T) {
	svc, runner := newTestService(t, QueryServiceConfig{})
	ts := time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)
	runner.On("Query", mock.Anything, named("log_search")).Return([]store.Row{
		logRow(ts, 17, "boom"),
		logRow(ts, 30, "vendor level"),
	}, nil)

	sev := models.SeverityError
	records, err := svc.SearchLogs(context.Background(), models.LogSearchRequest{
		TimeRange:   models.LastHours(ts.Add(time.Hour), 1),
		MinSeverity: &sev,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "boom", records[0].Body)
}

func TestQueryService_InvalidRequestSkipsStore(t *testing.T) {
	svc, runner := newTestService(t, QueryServiceConfig{})
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := svc.QueryMetrics(context.Background(), models.MetricQueryRequest{
		TimeRange:       models.LastHours(now, 1),
		MetricName:      "cpu.usage",
		IntervalSeconds: 0,
	})
	assert.Equal(t, archerr.InvalidRequest, archerr.KindOf(err))

	_, err = svc.SearchLogs(context.Background(), models.LogSearchRequest{
		TimeRange: models.TimeRange{Start: now, End: now.Add(-time.Hour)},
	})
	assert.Equal(t, archerr.InvalidRequest, archerr.KindOf(err))

	runner.AssertNotCalled(t, "Query", mock.Anything, mock.Anything)
}

func TestQueryService_StoreErrorPropagates(t *testing.T) {
	svc, runner := newTestService(t, QueryServiceConfig{})
	runner.On("Query", mock.Anything, named("metric_names")).
		Return(nil, archerr.New(archerr.StoreUnavailable, "cannot reach store"))

	_, err := svc.MetricNames(context.Background())
	assert.Equal(t, archerr.StoreUnavailable, archerr.KindOf(err))
}

func TestQueryService_ErrorSummaryOrdering(t *testing.T) {
	svc, runner := newTestService(t, QueryServiceConfig{})
	runner.On("Query", mock.Anything, named("error_patterns")).Return([]store.Row{
		{"pattern": "disk full", "occurrences": uint64(10), "example": "disk full", "max_length": uint64(9)},
		{"pattern": "timeout", "occurrences": uint64(45), "example": "timeout", "max_length": uint64(7)},
		{"pattern": "refused", "occurrences": uint64(30), "example": "refused", "max_length": uint64(7)},
	}, nil)
	runner.On("Query", mock.Anything, named("error_total")).Return([]store.Row{{"total": uint64(85)}}, nil)

	now := svc.now()
	summary, err := svc.ErrorSummary(context.Background(), models.ErrorSummaryRequest{
		TimeRange: models.LastHours(now, 12),
		Limit:     5,
	})
	require.NoError(t, err)
	require.Len(t, summary.TopPatterns, 3)
	assert.Equal(t, uint64(45), summary.TopPatterns[0].Count)
	assert.Equal(t, uint64(30), summary.TopPatterns[1].Count)
	assert.Equal(t, uint64(10), summary.TopPatterns[2].Count)
	assert.Equal(t, uint64(85), summary.TotalErrors)
	assert.Equal(t, 12.0, summary.TimeRangeHours)
}

func TestQueryService_QueryMetrics(t *testing.T) {
	svc, runner := newTestService(t, QueryServiceConfig{})
	runner.On("Query", mock.Anything, named("metric_series")).Return([]store.Row{
		{"bucket_index": int64(0), "value": 0.5},
		{"bucket_index": int64(2), "value": 0.75},
	}, nil)

	start := time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)
	series, err := svc.QueryMetrics(context.Background(), models.MetricQueryRequest{
		TimeRange:       models.TimeRange{Start: start, End: start.Add(time.Hour)},
		MetricName:      "cpu.usage",
		IntervalSeconds: 60,
	})
	require.NoError(t, err)
	assert.Equal(t, models.AggregationAvg, series.Aggregation)
	assert.Equal(t, 2, series.DataPoints)
	assert.Equal(t, start.Add(2*time.Minute), series.Data[1].Timestamp)
}

func TestQueryService_SystemHealthCached(t *testing.T) {
	svc, runner := newTestService(t, QueryServiceConfig{HealthCacheTTL: time.Minute})
	runner.On("Query", mock.Anything, named("storage_stats")).
		Return([]store.Row{{"table": "otel_logs", "rows": uint64(5), "bytes": uint64(2048)}}, nil).Once()
	runner.On("Query", mock.Anything, named("log_count")).Return([]store.Row{{"total": uint64(5)}}, nil).Once()
	runner.On("Query", mock.Anything, named("error_total")).Return([]store.Row{{"total": uint64(1)}}, nil).Once()

	first, err := svc.SystemHealth(context.Background())
	require.NoError(t, err)
	second, err := svc.SystemHealth(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "2.00 KB", first.Storage.LogBytesHuman)
	assert.Equal(t, uint64(1), first.LastHour.ErrorCount)
	runner.AssertNumberOfCalls(t, "Query", 3)
}

func TestQueryService_SystemHealthUncachedByDefault(t *testing.T) {
	svc, runner := newTestService(t, QueryServiceConfig{})
	runner.On("Query", mock.Anything, named("storage_stats")).Return([]store.Row{}, nil)
	runner.On("Query", mock.Anything, named("log_count")).Return([]store.Row{{"total": uint64(0)}}, nil)
	runner.On("Query", mock.Anything, named("error_total")).Return([]store.Row{{"total": uint64(0)}}, nil)

	_, err := svc.SystemHealth(context.Background())
	require.NoError(t, err)
	_, err = svc.SystemHealth(context.Background())
	require.NoError(t, err)
	runner.AssertNumberOfCalls(t, "Query", 6)
}

func TestQueryService_Status(t *testing.T) {
	svc, runner := newTestService(t, QueryServiceConfig{
		Version:   "1.2.0",
		Retention: models.Retention{LogsDays: 30, MetricsDays: 90},
	})
	runner.On("Query", mock.Anything, named("storage_stats")).Return([]store.Row{
		{"table": "otel_logs", "rows": uint64(100), "bytes": uint64(4096)},
		{"table": "otel_metrics_gauge", "rows": uint64(7), "bytes": uint64(512)},
	}, nil)
	runner.On("Stats").Return(models.PoolStats{MaxConnections: 10})

	status, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, "1.2.0", status.Version)
	assert.Equal(t, uint64(100), status.LogCount)
	assert.Equal(t, uint64(7), status.MetricCount)
	assert.EqualValues(t, 10, status.Pool.MaxConnections)
	assert.Equal(t, 90, status.Retention.MetricsDays)
}

func TestQueryService_Ping(t *testing.T) {
	svc, runner := newTestService(t, QueryServiceConfig{})
	runner.On("Ping", mock.Anything).Return(archerr.New(archerr.StoreUnavailable, "down")).Once()
	runner.On("Ping", mock.Anything).Return(nil).Once()

	assert.Error(t, svc.Ping(context.Background()))
	assert.NoError(t, svc.Ping(context.Background()))
}
