package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsServiceSnapshot(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/students", http.StatusOK, 20*time.Millisecond)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)
	m.RecordTransition("deletion_request", "Approved")
	m.RecordFanoutFailure("requisition")
	m.RecordRealtimeEvent("students")

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.RequestsTotal)
	assert.InDelta(t, 0.5, snap.CacheHitRatio, 0.001)
	assert.Equal(t, uint64(1), snap.WorkflowTransitions)
	assert.Equal(t, uint64(1), snap.FanoutFailures)
	assert.Equal(t, uint64(1), snap.RealtimeEvents)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), `workflow_transitions_total{entity="deletion_request",to="Approved"} 1`)
	assert.Contains(t, w.Body.String(), "notification_fanout_failures_total")
}

func TestNilMetricsServiceIsSafe(t *testing.T) {
	var m *MetricsService
	m.RecordTransition("requisition", "Rejected")
	m.RecordFanoutFailure("student")
	assert.Equal(t, uint64(0), m.Snapshot().WorkflowTransitions)
}
