package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordDestuffOperation(t *testing.T) {
	m := New(DefaultConfig("cfs-destuffing-service"))

	m.RecordDestuffOperation("complete", "completed")
	m.RecordDestuffOperation("complete", "completed")
	m.RecordResealRequired()

	var metric dto.Metric
	require.NoError(t, m.DestuffOperations.WithLabelValues("cfs-destuffing-service", "complete", "completed").Write(&metric))
	assert.Equal(t, 2.0, metric.GetCounter().GetValue())

	metric.Reset()
	require.NoError(t, m.ResealRequired.Write(&metric))
	assert.Equal(t, 1.0, metric.GetCounter().GetValue())
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordHTTPRequest("GET", "/x", 200, time.Millisecond)
		m.RecordCollaboratorCall("cfs-backend", "unseal", true, time.Millisecond)
		m.SetOutboxPending(3)
		m.RecordCacheReconcile(true)
		m.RecordSessionDegraded()
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New(DefaultConfig("cfs-destuffing-service"))
	m.RecordHTTPRequest("GET", "/api/v1/plans/:planId", 200, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "wms_http_requests_total")
}
