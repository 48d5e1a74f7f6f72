package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServiceScrapeAndSnapshot(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodPost, "/api/v1/jig-requests/:id/receive", http.StatusOK, 20*time.Millisecond)
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/jig-requests", http.StatusOK, 10*time.Millisecond)
	m.ObserveStoreOperation("jigRequests.get", 2*time.Millisecond)
	m.RecordTransactionAbort("transaction")
	m.RecordRollback("jig_request")
	m.RecordNotification("jig", true)
	m.RecordNotification("work", false)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `factoryops_workspace_rollbacks_total{kind="jig_request"} 1`)
	assert.Contains(t, body, `factoryops_notifications_writes_total{outcome="failed",type="work"} 1`)
	assert.Contains(t, body, `factoryops_store_transaction_aborts_total{operation="transaction"} 1`)
	assert.Contains(t, body, `route="/api/v1/jig-requests/:id/receive"`)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.RequestsTotal)
	assert.InDelta(t, 15.0, snap.AverageRequestDurationMs, 0.001)
	assert.InDelta(t, 2.0, snap.AverageStoreDurationMs, 0.001)
	assert.InDelta(t, 1.0/3.0, snap.CacheHitRatio, 0.001)
	assert.Equal(t, uint64(1), snap.NotificationsDelivered)
	assert.Equal(t, uint64(1), snap.NotificationFailures)
}

func TestNilMetricsServiceIsInert(t *testing.T) {
	var m *MetricsService
	m.RecordRollback("jig_request")
	m.ObserveStoreOperation("get", time.Millisecond)
	assert.Zero(t, m.Snapshot().Rollbacks)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
