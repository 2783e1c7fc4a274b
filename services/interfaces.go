package services

import (
	"context"

	"github.com/archives-observability/archives/models"
	"github.com/archives-observability/archives/query"
	"github.com/archives-observability/archives/store"
)

// QueryRunner executes built queries. *store.Executor satisfies it.
type QueryRunner interface {
	Query(ctx context.Context, q query.Query) ([]store.Row, error)
	Ping(ctx context.Context) error
	Stats() models.PoolStats
}

// QueryServiceInterface is the read API shared by the HTTP and tool surfaces.
type QueryServiceInterface interface {
	SearchLogs(ctx context.Context, req models.LogSearchRequest) ([]models.LogRecord, error)
	TailLogs(ctx context.Context, req models.LogTailRequest) ([]models.LogRecord, error)
	ErrorSummary(ctx context.Context, req models.ErrorSummaryRequest) (models.ErrorSummary, error)
	QueryMetrics(ctx context.Context, req models.MetricQueryRequest) (models.MetricSeries, error)
	MetricNames(ctx context.Context) ([]string, error)
	SystemHealth(ctx context.Context) (models.SystemHealth, error)
	Status(ctx context.Context) (models.StoreStatus, error)
	Ping(ctx context.Context) error
}

// WebSocketBroadcaster interface for WebSocket broadcasting
type WebSocketBroadcaster interface {
	BroadcastToAll(msgType string, data interface{})
	ClientCount() int
}
