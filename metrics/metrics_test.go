package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/archives-observability/archives/archerr"
	"github.com/archives-observability/archives/models"
	"github.com/archives-observability/archives/store"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ store.QueryObserver = (*Metrics)(nil)

func TestObserveQuery(t *testing.T) {
	m := New()

	m.ObserveQuery("log_search", "", 20*time.Millisecond, 7)
	m.ObserveQuery("log_search", "", 10*time.Millisecond, 3)
	m.ObserveQuery("log_search", archerr.StoreTimeout, 10*time.Second, 0)

	assert.Equal(t, float64(10), testutil.ToFloat64(m.queryRows.WithLabelValues("log_search")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.queryDuration))
}

func TestObserveToolAndRequest(t *testing.T) {
	m := New()

	m.ObserveTool("search_logs", "")
	m.ObserveTool("search_logs", "")
	m.ObserveTool("query_metrics", "InvalidParameter")
	m.ObserveRequest("api", "POST", "/v1/logs/search", 200, 5*time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.toolCalls.WithLabelValues("search_logs", OutcomeOK)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.toolCalls.WithLabelValues("query_metrics", "InvalidParameter")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.httpRequests.WithLabelValues("api", "POST", "/v1/logs/search", "200")))
}

func TestRegisterPool(t *testing.T) {
	m := New()
	stats := models.PoolStats{MaxConnections: 10, InUse: 3, AcquireTimeouts: 2}
	require.NoError(t, m.RegisterPool(func() models.PoolStats { return stats }))

	stats.InUse = 4
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "archives_store_connections_in_use 4")
	assert.Contains(t, string(body), "archives_store_connections_max 10")
	assert.Contains(t, string(body), "archives_store_acquire_timeouts_total 2")

	assert.Error(t, m.RegisterPool(func() models.PoolStats { return stats }))
}

func TestSetTailClients(t *testing.T) {
	m := New()
	m.SetTailClients(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(m.tailClients))
}
