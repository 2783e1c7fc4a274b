package models

import "time"

// LogRecord is an immutable snapshot of one stored log event.
type LogRecord struct {
	ID                 string            `json:"id"`
	Timestamp          time.Time         `json:"timestamp"`
	ObservedTimestamp  time.Time         `json:"observed_timestamp"`
	TraceID            string            `json:"trace_id,omitempty"`
	SpanID             string            `json:"span_id,omitempty"`
	Severity           Severity          `json:"severity"`
	SeverityText       string            `json:"severity_text"`
	SeverityNumber     int32             `json:"severity_number"`
	Body               string            `json:"body"`
	ResourceAttributes map[string]string `json:"resource_attributes"`
	LogAttributes      map[string]string `json:"log_attributes"`
	ServiceName        string            `json:"service_name,omitempty"`
}

// LogLine is the condensed view of a record returned to agents.
type LogLine struct {
	Timestamp time.Time `json:"timestamp"`
	Severity  Severity  `json:"severity"`
	Service   string    `json:"service,omitempty"`
	Message   string    `json:"message"`
	TraceID   string    `json:"trace_id,omitempty"`
}

// Line condenses r.
func (r LogRecord) Line() LogLine {
	return LogLine{
		Timestamp: r.Timestamp,
		Severity:  r.Severity,
		Service:   r.ServiceName,
		Message:   r.Body,
		TraceID:   r.TraceID,
	}
}

// LogLines is the agent-facing result of a search or tail.
type LogLines struct {
	Count int       `json:"count"`
	Logs  []LogLine `json:"logs"`
}

// NewLogLines condenses records while keeping their order.
func NewLogLines(records []LogRecord) LogLines {
	lines := make([]LogLine, 0, len(records))
	for _, r := range records {
		lines = append(lines, r.Line())
	}
	return LogLines{Count: len(lines), Logs: lines}
}

// MetricPoint is one populated bucket. Timestamp is the bucket start.
type MetricPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// MetricSeries is the agent-facing result of a metric query.
type MetricSeries struct {
	MetricName      string        `json:"metric_name"`
	Aggregation     Aggregation   `json:"aggregation"`
	IntervalSeconds int           `json:"interval_seconds"`
	DataPoints      int           `json:"data_points"`
	Data            []MetricPoint `json:"data"`
}

// ErrorPattern groups error records sharing a normalized message prefix.
type ErrorPattern struct {
	Pattern string `json:"pattern"`
	Count   uint64 `json:"count"`
	Example string `json:"example"`
}

// ErrorSummary ranks the most frequent error patterns in a time range.
type ErrorSummary struct {
	TotalErrors    uint64         `json:"total_errors"`
	TimeRangeHours float64        `json:"time_range_hours"`
	TopPatterns    []ErrorPattern `json:"top_patterns"`
}

// StorageStats reports row counts and on-disk bytes of the telemetry tables.
type StorageStats struct {
	LogCount         uint64 `json:"log_count"`
	LogBytes         uint64 `json:"log_bytes"`
	LogBytesHuman    string `json:"log_bytes_human"`
	MetricCount      uint64 `json:"metric_count"`
	MetricBytes      uint64 `json:"metric_bytes"`
	MetricBytesHuman string `json:"metric_bytes_human"`
}

// LastHourStats reports ingest volume over the trailing hour.
type LastHourStats struct {
	TotalLogs  uint64 `json:"total_logs"`
	ErrorCount uint64 `json:"error_count"`
}

// SystemHealth is a point-in-time health snapshot computed from the store.
type SystemHealth struct {
	Status    string        `json:"status"`
	Storage   StorageStats  `json:"storage"`
	LastHour  LastHourStats `json:"last_hour"`
	CheckedAt time.Time     `json:"checked_at"`
}

// PoolStats reports connection usage towards the store.
type PoolStats struct {
	MaxConnections   int64   `json:"max_connections"`
	InUse            int64   `json:"in_use"`
	TotalAcquired    int64   `json:"total_acquired"`
	AcquireTimeouts  int64   `json:"acquire_timeouts"`
	AverageLatencyMs float64 `json:"average_latency_ms"`
	OpenConnections  int     `json:"open_connections"`
	IdleConnections  int     `json:"idle_connections"`
	WaitCount        int64   `json:"wait_count"`
	WaitDurationMs   int64   `json:"wait_duration_ms"`
	// CircuitState is CLOSED, OPEN or HALF_OPEN; empty when no breaker runs.
	CircuitState    string `json:"circuit_state,omitempty"`
	CircuitRejected uint64 `json:"circuit_rejected,omitempty"`
}

// Retention reports the TTLs enforced by the store. Informational only.
type Retention struct {
	LogsDays    int `json:"logs_days"`
	MetricsDays int `json:"metrics_days"`
}

// StoreStatus is the operator-facing status snapshot.
type StoreStatus struct {
	Status      string    `json:"status"`
	Version     string    `json:"version"`
	LogCount    uint64    `json:"log_count"`
	LogBytes    uint64    `json:"log_bytes"`
	MetricCount uint64    `json:"metric_count"`
	MetricBytes uint64    `json:"metric_bytes"`
	Pool        PoolStats `json:"pool"`
	Retention   Retention `json:"retention"`
}
