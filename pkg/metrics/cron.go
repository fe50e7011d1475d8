package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CronJobMetrics tracks how the reconciliation jobs behave over time: how
// long each run takes and whether it finished cleanly. A nil receiver or a
// zero value is a no-op, which keeps test wiring simple.
type CronJobMetrics struct {
	runSeconds *prometheus.HistogramVec
	ok         *prometheus.CounterVec
	failed     *prometheus.CounterVec
}

// NewCronJobMetrics registers the job metrics on reg. Passing a nil
// registerer yields an inert instance.
func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	m := &CronJobMetrics{
		runSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "How long each scheduled job run took.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		ok: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "job_success",
			Help: "Scheduled job runs that completed without error.",
		}, []string{"job"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "job_failure",
			Help: "Scheduled job runs that returned an error.",
		}, []string{"job"}),
	}
	reg.MustRegister(m.runSeconds, m.ok, m.failed)
	return m
}

// ObserveDuration records how long the named job ran.
func (c *CronJobMetrics) ObserveDuration(job string, duration time.Duration) {
	if c == nil || c.runSeconds == nil {
		return
	}
	c.runSeconds.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

// IncSuccess counts a clean run of the named job.
func (c *CronJobMetrics) IncSuccess(job string) {
	if c == nil || c.ok == nil {
		return
	}
	c.ok.WithLabelValues(normalizeLabel(job)).Inc()
}

// IncFailure counts a failed run of the named job.
func (c *CronJobMetrics) IncFailure(job string) {
	if c == nil || c.failed == nil {
		return
	}
	c.failed.WithLabelValues(normalizeLabel(job)).Inc()
}
