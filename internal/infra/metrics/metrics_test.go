package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.AlertSent()
	c.AlertSent()
	c.AlertFailed()
	c.ClaimLost()
	c.AlertsScheduled(3)
	c.AlertsScheduled(0)
	c.Swept(2, 5)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.alertsSent))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.alertsFailed))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.claimsLost))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.alertsScheduled))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.datesSwept))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.alertsSwept))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.AlertSent()
		c.AlertFailed()
		c.AlertAbandoned()
		c.ClaimLost()
		c.AlertsScheduled(1)
		c.Swept(1, 1)
		c.ObserveJob("dispatch", time.Now())
	})
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)
	c.AlertSent()
	c.ObserveJob("dispatch", time.Now())

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "contract_alerts_sent_total 1")
	assert.Contains(t, rec.Body.String(), `contract_alert_job_duration_seconds_count{job="dispatch"} 1`)
}
