package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/archives-observability/archives/archerr"
	"github.com/archives-observability/archives/models"
	"github.com/archives-observability/archives/query"
	"github.com/archives-observability/archives/utils"
)

// Querier is the subset of *sql.DB the executor needs.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PingContext(ctx context.Context) error
	Stats() sql.DBStats
	Close() error
}

// Row is one result row keyed by column name. Values are whatever the driver produced.
type Row map[string]any

// QueryObserver receives one callback per executed query.
type QueryObserver interface {
	ObserveQuery(name string, kind archerr.Kind, duration time.Duration, rows int)
}

// Config controls executor limits.
type Config struct {
	QueryTimeout   time.Duration
	AcquireTimeout time.Duration
	MaxConnections int64
	Retry          *utils.RetryConfig
	// Breaker opens after consecutive StoreUnavailable failures. Nil disables it.
	Breaker  *utils.CircuitBreakerConfig
	Observer QueryObserver
}

// DefaultConfig mirrors the service defaults.
func DefaultConfig() Config {
	return Config{
		QueryTimeout:   10 * time.Second,
		AcquireTimeout: 5 * time.Second,
		MaxConnections: 10,
	}
}

// Executor runs built queries with a bounded pool, a per-query deadline and
// a single retry for transient connection failures.
type Executor struct {
	db       Querier
	limiter  *utils.ConnectionLimiter
	retry    *utils.RetryExecutor
	breaker  *utils.CircuitBreaker
	timeout  time.Duration
	observer QueryObserver
	logger   *utils.Logger
}

// NewExecutor wraps db. A nil logger uses the global logger.
func NewExecutor(db Querier, cfg Config, logger *utils.Logger) *Executor {
	if logger == nil {
		logger = utils.GetLogger()
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultConfig().QueryTimeout
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = DefaultConfig().MaxConnections
	}
	retryCfg := utils.DefaultRetryConfig()
	if cfg.Retry != nil {
		copied := *cfg.Retry
		retryCfg = &copied
	}
	retryCfg.RetryCondition = retryable

	e := &Executor{
		db:       db,
		limiter:  utils.NewConnectionLimiter(cfg.MaxConnections, cfg.AcquireTimeout),
		retry:    utils.NewRetryExecutor(retryCfg, logger),
		timeout:  cfg.QueryTimeout,
		observer: cfg.Observer,
		logger:   logger,
	}
	if cfg.Breaker != nil {
		breakerCfg := *cfg.Breaker
		breakerCfg.Counts = retryable
		e.breaker = utils.NewCircuitBreaker(&breakerCfg, logger)
	}
	return e
}

// Query executes q and returns all rows. Failures are *archerr.Error values
// of kind StoreUnavailable, StoreTimeout or StoreQueryFailed.
func (e *Executor) Query(ctx context.Context, q query.Query) ([]Row, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	var rows []Row
	err := e.withConnection(ctx, func(ctx context.Context) error {
		return e.guard(ctx, func(ctx context.Context) error {
			return e.retry.Execute(ctx, func(ctx context.Context) error {
				var runErr error
				rows, runErr = e.run(ctx, q)
				return runErr
			})
		})
	})
	err = classify(ctx, err)
	elapsed := time.Since(start)

	if e.observer != nil {
		e.observer.ObserveQuery(q.Name, archerr.KindOf(err), elapsed, len(rows))
	}

	log := e.logger.WithSource("store").WithContext(map[string]interface{}{
		"query":       q.Name,
		"duration_ms": elapsed.Milliseconds(),
	})
	if err != nil {
		log.Error("Query failed", err, map[string]interface{}{"kind": string(archerr.KindOf(err))})
		return nil, err
	}
	log.Debug("Query executed", map[string]interface{}{"rows": len(rows)})
	return rows, nil
}

// guard runs fn through the circuit breaker when one is configured.
func (e *Executor) guard(ctx context.Context, fn func(context.Context) error) error {
	if e.breaker == nil {
		return fn(ctx)
	}
	return e.breaker.Execute(ctx, fn)
}

// withConnection holds one limiter slot for the whole call, retries included.
// A saturated pool is a single bounded wait and never reaches the breaker.
func (e *Executor) withConnection(ctx context.Context, fn func(context.Context) error) error {
	release, err := e.limiter.Acquire(ctx)
	if err != nil {
		return classify(ctx, err)
	}
	defer release()
	return fn(ctx)
}

func (e *Executor) run(ctx context.Context, q query.Query) ([]Row, error) {
	rs, err := e.db.QueryContext(ctx, q.Text, q.Args...)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer rs.Close()

	rows, err := scanRows(rs)
	if err != nil {
		return nil, classify(ctx, err)
	}
	return rows, nil
}

func scanRows(rs *sql.Rows) ([]Row, error) {
	columns, err := rs.Columns()
	if err != nil {
		return nil, err
	}

	out := make([]Row, 0)
	for rs.Next() {
		values := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rs.Scan(targets...); err != nil {
			return nil, err
		}
		row := make(Row, len(columns))
		for i, name := range columns {
			row[name] = values[i]
		}
		out = append(out, row)
	}
	return out, rs.Err()
}

// Ping checks that the store answers within the query timeout.
func (e *Executor) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	release, err := e.limiter.Acquire(ctx)
	if err != nil {
		return classify(ctx, err)
	}
	defer release()

	if err := e.db.PingContext(ctx); err != nil {
		cerr := classify(ctx, err)
		if archerr.Is(cerr, archerr.StoreQueryFailed) {
			return archerr.Wrap(archerr.StoreUnavailable, err, "store ping failed")
		}
		return cerr
	}
	return nil
}

// Stats reports limiter and driver pool usage.
func (e *Executor) Stats() models.PoolStats {
	ls := e.limiter.GetStats()
	ds := e.db.Stats()
	stats := models.PoolStats{
		MaxConnections:   ls.MaxConnections,
		InUse:            ls.InUse,
		TotalAcquired:    ls.TotalAcquired,
		AcquireTimeouts:  ls.AcquireTimeouts,
		AverageLatencyMs: ls.AverageLatency,
		OpenConnections:  ds.OpenConnections,
		IdleConnections:  ds.Idle,
		WaitCount:        ds.WaitCount,
		WaitDurationMs:   ds.WaitDuration.Milliseconds(),
	}
	if e.breaker != nil {
		stats.CircuitState = e.breaker.State().String()
		stats.CircuitRejected = e.breaker.Rejected()
	}
	return stats
}

// Close releases the underlying pool.
func (e *Executor) Close() error {
	return e.db.Close()
}
