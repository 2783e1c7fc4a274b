package utils

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrPoolExhausted is returned when no connection slot frees up within the acquire timeout.
var ErrPoolExhausted = errors.New("connection pool exhausted")

// ConnectionLimiter bounds the number of in-flight store round trips. Callers
// beyond the limit queue for at most the acquire timeout.
type ConnectionLimiter struct {
	sem            *semaphore.Weighted
	max            int64
	acquireTimeout time.Duration
	stats          ConnectionLimiterStats
	mu             sync.Mutex
}

// ConnectionLimiterStats holds statistics about limiter usage
type ConnectionLimiterStats struct {
	MaxConnections  int64     `json:"max_connections"`
	InUse           int64     `json:"in_use"`
	TotalAcquired   int64     `json:"total_acquired"`
	AcquireTimeouts int64     `json:"acquire_timeouts"`
	AverageLatency  float64   `json:"average_latency_ms"`
	TotalLatency    int64     `json:"total_latency_ms"`
	LastUsed        time.Time `json:"last_used"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewConnectionLimiter creates a limiter allowing size concurrent holders.
func NewConnectionLimiter(size int64, acquireTimeout time.Duration) *ConnectionLimiter {
	if size <= 0 {
		size = 1
	}
	now := time.Now()
	return &ConnectionLimiter{
		sem:            semaphore.NewWeighted(size),
		max:            size,
		acquireTimeout: acquireTimeout,
		stats: ConnectionLimiterStats{
			MaxConnections: size,
			CreatedAt:      now,
			LastUsed:       now,
		},
	}
}

// Acquire reserves a slot. The returned release must be called exactly once.
// It fails with ErrPoolExhausted when the acquire timeout elapses first, or
// with ctx.Err() when ctx ends first.
func (l *ConnectionLimiter) Acquire(ctx context.Context) (func(), error) {
	waitCtx := ctx
	if l.acquireTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.acquireTimeout)
		defer cancel()
	}

	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		l.mu.Lock()
		l.stats.AcquireTimeouts++
		l.mu.Unlock()
		return nil, ErrPoolExhausted
	}

	start := time.Now()
	l.mu.Lock()
	l.stats.InUse++
	l.stats.TotalAcquired++
	l.stats.LastUsed = start
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			held := time.Since(start).Milliseconds()
			l.mu.Lock()
			l.stats.InUse--
			l.stats.TotalLatency += held
			if l.stats.TotalAcquired > 0 {
				l.stats.AverageLatency = float64(l.stats.TotalLatency) / float64(l.stats.TotalAcquired)
			}
			l.mu.Unlock()
			l.sem.Release(1)
		})
	}, nil
}

// Max returns the configured concurrency limit.
func (l *ConnectionLimiter) Max() int64 {
	return l.max
}

// GetStats returns a copy of the limiter statistics
func (l *ConnectionLimiter) GetStats() ConnectionLimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}
