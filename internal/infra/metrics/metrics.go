// Package metrics exposes Prometheus counters for the alert engine's
// background jobs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector groups the engine's metrics. A nil *Collector is valid and records
// nothing.
type Collector struct {
	alertsSent      prometheus.Counter
	alertsFailed    prometheus.Counter
	alertsAbandoned prometheus.Counter
	claimsLost      prometheus.Counter
	alertsScheduled prometheus.Counter
	datesSwept      prometheus.Counter
	alertsSwept     prometheus.Counter
	jobDuration     *prometheus.HistogramVec
}

// New creates the collector and registers it with reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		alertsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "contract_alerts_sent_total",
			Help: "Alerts delivered by the notifier and marked dispatched",
		}),
		alertsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "contract_alerts_failed_total",
			Help: "Alert sends that failed or timed out and were released for retry",
		}),
		alertsAbandoned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "contract_alerts_abandoned_total",
			Help: "Alerts deactivated after exhausting the retry budget",
		}),
		claimsLost: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "contract_alert_claims_lost_total",
			Help: "Due alerts skipped because another worker claimed them first",
		}),
		alertsScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "contract_alerts_scheduled_total",
			Help: "Alerts created by reconciliation",
		}),
		datesSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "contract_dates_swept_total",
			Help: "Expired contract dates removed by the sweeper",
		}),
		alertsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "contract_alerts_swept_total",
			Help: "Alerts removed by the sweeper, cascaded or dangling",
		}),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "contract_alert_job_duration_seconds",
				Help:    "Duration of background job runs",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8), // 10ms to ~3m
			},
			[]string{"job"},
		),
	}
	reg.MustRegister(
		c.alertsSent, c.alertsFailed, c.alertsAbandoned, c.claimsLost,
		c.alertsScheduled, c.datesSwept, c.alertsSwept, c.jobDuration,
	)
	return c
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (c *Collector) AlertSent() {
	if c != nil {
		c.alertsSent.Inc()
	}
}

func (c *Collector) AlertFailed() {
	if c != nil {
		c.alertsFailed.Inc()
	}
}

func (c *Collector) AlertAbandoned() {
	if c != nil {
		c.alertsAbandoned.Inc()
	}
}

func (c *Collector) ClaimLost() {
	if c != nil {
		c.claimsLost.Inc()
	}
}

func (c *Collector) AlertsScheduled(n int) {
	if c != nil && n > 0 {
		c.alertsScheduled.Add(float64(n))
	}
}

func (c *Collector) Swept(dates, alerts int) {
	if c == nil {
		return
	}
	if dates > 0 {
		c.datesSwept.Add(float64(dates))
	}
	if alerts > 0 {
		c.alertsSwept.Add(float64(alerts))
	}
}

// ObserveJob records how long a job run took.
func (c *Collector) ObserveJob(job string, started time.Time) {
	if c != nil {
		c.jobDuration.WithLabelValues(job).Observe(time.Since(started).Seconds())
	}
}
