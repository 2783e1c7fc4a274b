package services

import (
	"context"
	"time"

	"github.com/archives-observability/archives/mapper"
	"github.com/archives-observability/archives/models"
	"github.com/archives-observability/archives/query"
	"github.com/archives-observability/archives/store"
	"github.com/archives-observability/archives/utils"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"
)

const healthCacheKey = "system_health"

// QueryServiceConfig holds the values reported alongside query results.
type QueryServiceConfig struct {
	Version   string
	Retention models.Retention
	// HealthCacheTTL enables caching of system health snapshots when positive.
	HealthCacheTTL time.Duration
	// Now overrides the clock used for trailing windows.
	Now func() time.Time
}

// QueryService composes the builder, the executor and the mapper for each
// read operation. It holds no per-request state.
type QueryService struct {
	builder *query.Builder
	runner  QueryRunner
	config  QueryServiceConfig
	health  *cache.Cache
	now     func() time.Time
	logger  *utils.Logger
}

// NewQueryService creates a query service.
func NewQueryService(builder *query.Builder, runner QueryRunner, config QueryServiceConfig) *QueryService {
	s := &QueryService{
		builder: builder,
		runner:  runner,
		config:  config,
		now:     config.Now,
		logger:  utils.GetLogger(),
	}
	if s.now == nil {
		s.now = time.Now
	}
	if config.HealthCacheTTL > 0 {
		s.health = cache.New(config.HealthCacheTTL, 0)
	}
	return s
}

// SearchLogs returns records in the range, oldest first.
func (s *QueryService) SearchLogs(ctx context.Context, req models.LogSearchRequest) ([]models.LogRecord, error) {
	q, err := s.builder.LogSearch(req)
	if err != nil {
		return nil, err
	}
	records, err := s.logRecords(ctx, q)
	if err != nil {
		return nil, err
	}
	return filterSeverity(records, req.MinSeverity), nil
}

// TailLogs returns the most recent records, newest first.
func (s *QueryService) TailLogs(ctx context.Context, req models.LogTailRequest) ([]models.LogRecord, error) {
	q, err := s.builder.LogTail(req, s.now())
	if err != nil {
		return nil, err
	}
	records, err := s.logRecords(ctx, q)
	if err != nil {
		return nil, err
	}
	return filterSeverity(records, req.MinSeverity), nil
}

func (s *QueryService) logRecords(ctx context.Context, q query.Query) ([]models.LogRecord, error) {
	rows, err := s.runner.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	return mapper.LogRecords(rows)
}

// filterSeverity drops records whose mapped level is below floor. The SQL
// floor only bounds SeverityNumber from below, so numbers above 24 pass it
// and map back to INFO.
func filterSeverity(records []models.LogRecord, floor *models.Severity) []models.LogRecord {
	if floor == nil {
		return records
	}
	kept := records[:0]
	for _, r := range records {
		if models.Matches(r.Severity, *floor) {
			kept = append(kept, r)
		}
	}
	return kept
}

// ErrorSummary ranks error patterns in the range. The pattern and total
// queries run concurrently.
func (s *QueryService) ErrorSummary(ctx context.Context, req models.ErrorSummaryRequest) (models.ErrorSummary, error) {
	patternsQuery, err := s.builder.ErrorPatterns(req)
	if err != nil {
		return models.ErrorSummary{}, err
	}
	totalQuery, err := s.builder.ErrorTotal(req.TimeRange)
	if err != nil {
		return models.ErrorSummary{}, err
	}

	var patternRows, totalRows []store.Row
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		patternRows, err = s.runner.Query(gctx, patternsQuery)
		return err
	})
	g.Go(func() error {
		var err error
		totalRows, err = s.runner.Query(gctx, totalQuery)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.ErrorSummary{}, err
	}
	return mapper.ErrorSummary(totalRows, patternRows, req.TimeRange)
}

// QueryMetrics aggregates one metric into populated buckets.
func (s *QueryService) QueryMetrics(ctx context.Context, req models.MetricQueryRequest) (models.MetricSeries, error) {
	if req.Aggregation == "" {
		req.Aggregation = models.DefaultAggregation
	}
	q, bucketing, err := s.builder.MetricSeries(req)
	if err != nil {
		return models.MetricSeries{}, err
	}
	rows, err := s.runner.Query(ctx, q)
	if err != nil {
		return models.MetricSeries{}, err
	}
	points, err := mapper.MetricPoints(rows, bucketing)
	if err != nil {
		return models.MetricSeries{}, err
	}
	return models.MetricSeries{
		MetricName:      req.MetricName,
		Aggregation:     req.Aggregation,
		IntervalSeconds: req.IntervalSeconds,
		DataPoints:      len(points),
		Data:            points,
	}, nil
}

// MetricNames lists known metric names.
func (s *QueryService) MetricNames(ctx context.Context) ([]string, error) {
	rows, err := s.runner.Query(ctx, s.builder.MetricNames())
	if err != nil {
		return nil, err
	}
	return mapper.MetricNames(rows)
}

// SystemHealth computes storage and last-hour ingest figures. Snapshots are
// reused for HealthCacheTTL when configured.
func (s *QueryService) SystemHealth(ctx context.Context) (models.SystemHealth, error) {
	if s.health != nil {
		if cached, ok := s.health.Get(healthCacheKey); ok {
			return cached.(models.SystemHealth), nil
		}
	}

	now := s.now()
	queries := s.builder.Health(now)
	var rows mapper.HealthRows

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows.Storage, err = s.runner.Query(gctx, queries.Storage)
		return err
	})
	g.Go(func() error {
		var err error
		rows.LastHourTotal, err = s.runner.Query(gctx, queries.LastHourTotal)
		return err
	})
	g.Go(func() error {
		var err error
		rows.LastHourError, err = s.runner.Query(gctx, queries.LastHourError)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.SystemHealth{}, err
	}

	cfg := s.builder.Config()
	health, err := mapper.SystemHealth(rows, cfg.LogsTable, cfg.MetricsTablePrefix, now)
	if err != nil {
		return models.SystemHealth{}, err
	}
	if s.health != nil {
		s.health.SetDefault(healthCacheKey, health)
	}
	return health, nil
}

// Status reports storage totals together with pool usage and retention.
func (s *QueryService) Status(ctx context.Context) (models.StoreStatus, error) {
	rows, err := s.runner.Query(ctx, s.builder.StorageStats())
	if err != nil {
		return models.StoreStatus{}, err
	}
	cfg := s.builder.Config()
	stats, err := mapper.StorageStats(rows, cfg.LogsTable, cfg.MetricsTablePrefix)
	if err != nil {
		return models.StoreStatus{}, err
	}
	return models.StoreStatus{
		Status:      "ok",
		Version:     s.config.Version,
		LogCount:    stats.LogCount,
		LogBytes:    stats.LogBytes,
		MetricCount: stats.MetricCount,
		MetricBytes: stats.MetricBytes,
		Pool:        s.runner.Stats(),
		Retention:   s.config.Retention,
	}, nil
}

// Ping checks store connectivity.
func (s *QueryService) Ping(ctx context.Context) error {
	if err := s.runner.Ping(ctx); err != nil {
		s.logger.WithSource("query_service").Warn("Store ping failed", map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}
	return nil
}
