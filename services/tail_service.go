package services

import (
	"context"
	"math"
	"slices"
	"time"

	"github.com/archives-observability/archives/archerr"
	"github.com/archives-observability/archives/models"
	"github.com/archives-observability/archives/utils"
)

// DefaultTailBatch is the most records fetched per poll.
const DefaultTailBatch = 500

// TailService polls for new log records and broadcasts them to live tail
// subscribers. Polling is skipped while nobody is connected.
type TailService struct {
	query    QueryServiceInterface
	wsHub    WebSocketBroadcaster
	interval time.Duration
	batch    int
	now      func() time.Time
	logger   *utils.Logger

	// cursor is the newest timestamp already broadcast; seen holds the ids
	// sharing that timestamp.
	cursor time.Time
	seen   map[string]struct{}
}

// NewTailService creates a tail poller.
func NewTailService(query QueryServiceInterface, wsHub WebSocketBroadcaster, interval time.Duration) *TailService {
	return &TailService{
		query:    query,
		wsHub:    wsHub,
		interval: interval,
		batch:    DefaultTailBatch,
		now:      time.Now,
		logger:   utils.GetLogger().Named("tail"),
		seen:     map[string]struct{}{},
	}
}

// Run polls every interval until ctx is cancelled.
func (s *TailService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Live tail started", map[string]interface{}{
		"poll_interval": s.interval.String(),
	})

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pollCtx, cancel := context.WithTimeout(ctx, s.interval)
			s.Poll(pollCtx)
			cancel()
		}
	}
}

// Poll fetches records newer than the cursor and broadcasts them oldest
// first. It returns the number of records broadcast.
func (s *TailService) Poll(ctx context.Context) int {
	if s.wsHub == nil || s.wsHub.ClientCount() == 0 {
		// start from "now" again when the next subscriber arrives
		s.cursor = time.Time{}
		clear(s.seen)
		return 0
	}

	now := s.now()
	if s.cursor.IsZero() {
		s.cursor = now.Add(-s.interval)
	}

	minutes := int(math.Ceil(now.Sub(s.cursor).Minutes()))
	minutes = max(1, min(minutes, models.TailWindowMinutesMax))

	records, err := s.query.TailLogs(ctx, models.LogTailRequest{Count: s.batch, Minutes: minutes})
	if err != nil {
		s.logger.Warn("Live tail poll failed", map[string]interface{}{
			"error": err.Error(),
			"kind":  string(archerr.KindOf(err)),
		})
		s.broadcastError(err)
		return 0
	}

	fresh := s.advance(records)
	if len(fresh) == 0 {
		return 0
	}
	if len(records) == s.batch {
		s.logger.Debug("Live tail batch full, older records in the window were skipped", map[string]interface{}{
			"batch": s.batch,
		})
	}

	s.wsHub.BroadcastToAll(models.StreamLogs, fresh)
	return len(fresh)
}

// advance keeps records past the cursor, returns them in ascending order and
// moves the cursor to the newest one. records arrive newest first.
func (s *TailService) advance(records []models.LogRecord) []models.LogRecord {
	fresh := make([]models.LogRecord, 0, len(records))
	for _, r := range records {
		if r.Timestamp.Before(s.cursor) {
			continue
		}
		if r.Timestamp.Equal(s.cursor) {
			if _, dup := s.seen[r.ID]; dup {
				continue
			}
		}
		fresh = append(fresh, r)
	}
	slices.Reverse(fresh)

	for _, r := range fresh {
		if r.Timestamp.After(s.cursor) {
			s.cursor = r.Timestamp
			clear(s.seen)
		}
		s.seen[r.ID] = struct{}{}
	}
	return fresh
}

func (s *TailService) broadcastError(err error) {
	kind := archerr.KindOf(err)
	message := archerr.MessageOf(err)
	if kind == archerr.Internal {
		message = "internal error"
	}
	s.wsHub.BroadcastToAll(models.StreamError, models.TailError{Error: string(kind), Message: message})
}
